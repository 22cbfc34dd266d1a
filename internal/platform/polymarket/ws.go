package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookHandler is called for every full orderbook snapshot.
type BookHandler func(BookMessage)

// TradeHandler is called for every last-trade-price message.
type TradeHandler func(TradeMessage)

// MarketStream is a WebSocket client for the CLOB market data feed. It
// manages the connection lifecycle, keeps the subscribed token set current,
// and dispatches book and trade messages to its handlers.
type MarketStream struct {
	wsURL   string
	onBook  BookHandler
	onTrade TradeHandler

	mu     sync.RWMutex
	conn   *websocket.Conn
	assets []string
	closed bool

	// done is closed when the stream is shut down.
	done chan struct{}
}

// NewMarketStream creates a stream for the given WebSocket URL. Handlers may
// be nil.
//
// wsURL is the CLOB WebSocket endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewMarketStream(wsURL string, onBook BookHandler, onTrade TradeHandler) *MarketStream {
	return &MarketStream{
		wsURL:   wsURL,
		onBook:  onBook,
		onTrade: onTrade,
		done:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and resubscribes the current
// token set.
func (s *MarketStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	s.conn = conn

	// Keep-alive via pong deadline extension.
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.readLoop()
	go s.pingLoop()

	if len(s.assets) > 0 {
		if err := s.sendCommand(wsCommand{Type: "subscribe", Channel: "market", Assets: s.assets}); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// SetAssets replaces the subscribed token set, unsubscribing tokens that
// fell out of the watch list and subscribing new ones.
func (s *MarketStream) SetAssets(ctx context.Context, assets []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	current := make(map[string]struct{}, len(s.assets))
	for _, a := range s.assets {
		current[a] = struct{}{}
	}
	next := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		next[a] = struct{}{}
	}

	var added, removed []string
	for a := range next {
		if _, ok := current[a]; !ok {
			added = append(added, a)
		}
	}
	for a := range current {
		if _, ok := next[a]; !ok {
			removed = append(removed, a)
		}
	}

	if len(removed) > 0 {
		if err := s.sendCommand(wsCommand{Type: "unsubscribe", Channel: "market", Assets: removed}); err != nil {
			return fmt.Errorf("polymarket/ws: unsubscribe: %w", err)
		}
	}
	if len(added) > 0 {
		if err := s.sendCommand(wsCommand{Type: "subscribe", Channel: "market", Assets: added}); err != nil {
			return fmt.Errorf("polymarket/ws: subscribe: %w", err)
		}
	}

	s.assets = append([]string(nil), assets...)
	return nil
}

// Close shuts down the WebSocket connection and stops the read loop.
func (s *MarketStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.done)

	if s.conn != nil {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return s.conn.Close()
	}

	return nil
}

// sendCommand sends a JSON command to the WebSocket. Caller must hold s.mu.
func (s *MarketStream) sendCommand(cmd wsCommand) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages from the WebSocket and dispatches
// them to the handlers. On disconnect it hands off to reconnect.
func (s *MarketStream) readLoop() {
	defer func() {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}

			s.reconnect()
			return // reconnect -> Connect starts a fresh readLoop
		}

		s.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (s *MarketStream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw WebSocket frame and routes it by message type.
func (s *MarketStream) handleMessage(raw []byte) {
	var envelope struct {
		MsgType string `json:"msg_type"`
		Event   string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return // silently drop unparseable messages
	}

	msgType := envelope.MsgType
	if msgType == "" {
		msgType = envelope.Event
	}

	switch msgType {
	case "book":
		if s.onBook == nil {
			return
		}
		var book BookMessage
		if err := json.Unmarshal(raw, &book); err != nil {
			return
		}
		s.onBook(book)

	case "last_trade_price":
		if s.onTrade == nil {
			return
		}
		var trade TradeMessage
		if err := json.Unmarshal(raw, &trade); err != nil {
			return
		}
		s.onTrade(trade)
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the stream is closed.
func (s *MarketStream) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-s.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
