package domain

import "time"

// EventKind labels the typed events the core publishes. Subscribers filter on
// these names; they also double as the notify/relay channel suffixes.
type EventKind string

const (
	EventSignalGenerated EventKind = "signal_generated"
	EventTradeApproved   EventKind = "trade_approved"
	EventTradeRejected   EventKind = "trade_rejected"
	EventTradeExecuted   EventKind = "trade_executed"
	EventPositionOpened  EventKind = "position_opened"
	EventPositionClosed  EventKind = "position_closed"
)

// Event is one typed occurrence published on the in-process bus. Components
// publish events instead of invoking subscriber callbacks directly.
type Event interface {
	Kind() EventKind
	At() time.Time
}

// SignalGenerated fires for every scored signal, actionable or not.
type SignalGenerated struct {
	Signal Signal
}

func (e SignalGenerated) Kind() EventKind { return EventSignalGenerated }
func (e SignalGenerated) At() time.Time   { return e.Signal.CreatedAt }

// TradeApproved fires when the risk gate passes a proposal.
type TradeApproved struct {
	Proposal TradeProposal
	Time     time.Time
}

func (e TradeApproved) Kind() EventKind { return EventTradeApproved }
func (e TradeApproved) At() time.Time   { return e.Time }

// TradeRejected fires when the risk gate or the execution call refuses a
// proposal. Reason is human-readable.
type TradeRejected struct {
	Proposal TradeProposal
	Reason   string
	Time     time.Time
}

func (e TradeRejected) Kind() EventKind { return EventTradeRejected }
func (e TradeRejected) At() time.Time   { return e.Time }

// TradeExecuted fires once per filled executor call, open and close alike.
// Carries the accounting record the recorder persists.
type TradeExecuted struct {
	Record TradeRecord
}

func (e TradeExecuted) Kind() EventKind { return EventTradeExecuted }
func (e TradeExecuted) At() time.Time   { return e.Record.ExecutedAt }

// PositionOpened fires after the ledger records a filled trade.
type PositionOpened struct {
	Position Position
}

func (e PositionOpened) Kind() EventKind { return EventPositionOpened }
func (e PositionOpened) At() time.Time   { return e.Position.OpenedAt }

// PositionClosed fires after the ledger closes a position.
type PositionClosed struct {
	Position Position
	PnL      float64
	Time     time.Time
}

func (e PositionClosed) Kind() EventKind { return EventPositionClosed }
func (e PositionClosed) At() time.Time   { return e.Time }
