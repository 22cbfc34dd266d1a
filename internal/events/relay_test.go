package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

type relayMsg struct {
	channel string
	payload []byte
}

type captureRelay struct {
	mu   sync.Mutex
	msgs []relayMsg
}

func (c *captureRelay) Publish(_ context.Context, channel string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, relayMsg{channel: channel, payload: payload})
	return nil
}

func (c *captureRelay) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *captureRelay) last() relayMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[len(c.msgs)-1]
}

func TestRelayForwardsBusEvents(t *testing.T) {
	b := NewBus(testLogger(), 8)
	defer b.Close()
	sink := &captureRelay{}
	r := NewRelay(testLogger(), b, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Republish until the relay's subscription is live and one copy lands.
	evt := signalEvent("BTC")
	deadline := time.Now().Add(time.Second)
	for sink.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("relay never forwarded the event")
		}
		b.Publish(evt)
		time.Sleep(5 * time.Millisecond)
	}

	msg := sink.last()
	if msg.channel != "signals" {
		t.Fatalf("expected channel signals, got %s", msg.channel)
	}
	var fields map[string]any
	if err := json.Unmarshal(msg.payload, &fields); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if fields["event"] != "signal_generated" {
		t.Fatalf("expected event signal_generated, got %v", fields["event"])
	}
	if fields["symbol"] != "BTC" {
		t.Fatalf("expected symbol BTC, got %v", fields["symbol"])
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on cancel")
	}
}

func TestRelayStopsWhenBusCloses(t *testing.T) {
	b := NewBus(testLogger(), 8)
	r := NewRelay(testLogger(), b, &captureRelay{})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	b.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on bus close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("relay did not stop when the bus closed")
	}
}

func TestDescribeEventShapes(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	exit := 0.61
	prop := domain.TradeProposal{
		ID: "prop-1", Symbol: "ETH", TokenID: "tok-up",
		Side: domain.SideLong, SizeUSD: 40, LimitPrice: 0.55,
	}
	pos := domain.Position{
		ID: "pos-1", Symbol: "ETH", Side: domain.SideLong,
		EntryPrice: 0.55, SizeUSD: 40, OpenedAt: at,
		ExitPrice: &exit, CloseReason: domain.CloseReasonTakeProfit,
	}

	cases := []struct {
		name    string
		evt     domain.Event
		channel string
		event   string
		key     string
		want    any
	}{
		{
			name:    "approved",
			evt:     domain.TradeApproved{Proposal: prop, Time: at},
			channel: "trades", event: "trade_approved",
			key: "limit_price", want: 0.55,
		},
		{
			name:    "rejected",
			evt:     domain.TradeRejected{Proposal: prop, Reason: "daily loss limit", Time: at},
			channel: "trades", event: "trade_rejected",
			key: "reason", want: "daily loss limit",
		},
		{
			name:    "opened",
			evt:     domain.PositionOpened{Position: pos},
			channel: "positions", event: "position_opened",
			key: "entry_price", want: 0.55,
		},
		{
			name:    "closed",
			evt:     domain.PositionClosed{Position: pos, PnL: 2.4, Time: at},
			channel: "positions", event: "position_closed",
			key: "exit_price", want: 0.61,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			channel, fields := Describe(tc.evt)
			if channel != tc.channel {
				t.Fatalf("expected channel %s, got %s", tc.channel, channel)
			}
			payload, err := json.Marshal(fields)
			if err != nil {
				t.Fatalf("marshal fields: %v", err)
			}
			var decoded map[string]any
			if err := json.Unmarshal(payload, &decoded); err != nil {
				t.Fatalf("unmarshal fields: %v", err)
			}
			if decoded["event"] != tc.event {
				t.Fatalf("expected event %s, got %v", tc.event, decoded["event"])
			}
			switch want := tc.want.(type) {
			case float64:
				got, ok := decoded[tc.key].(float64)
				if !ok || got != want {
					t.Fatalf("expected %s=%v, got %v", tc.key, want, decoded[tc.key])
				}
			default:
				if decoded[tc.key] != tc.want {
					t.Fatalf("expected %s=%v, got %v", tc.key, tc.want, decoded[tc.key])
				}
			}
		})
	}
}

func TestDescribeEventSkipsUnknownKinds(t *testing.T) {
	channel, fields := Describe(fakeEvent{})
	if channel != "" || fields != nil {
		t.Fatalf("expected unknown event to be skipped, got channel %q", channel)
	}
}

type fakeEvent struct{}

func (fakeEvent) Kind() domain.EventKind { return domain.EventKind("fake") }
func (fakeEvent) At() time.Time          { return time.Time{} }
