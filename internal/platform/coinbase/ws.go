// Package coinbase implements the exchange-facing transport: the level2
// WebSocket feed and the product discovery REST API.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfeed/bookwatch/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second

	channelLevel2 = "level2_batch"
)

// SnapshotHandler is called once per product after subscribing, with the
// full book expressed as a Delta.
type SnapshotHandler func(domain.Delta)

// DeltaHandler is called for every incremental level2 update.
type DeltaHandler func(domain.Delta)

// WSClient is a WebSocket client for the exchange level2 market data feed.
// It owns one connection at a time and decodes messages into domain Deltas
// before dispatching them to registered handlers.
//
// The client does not reconnect itself. Listen returns when the connection
// dies; the feed runner decides whether and when to dial again, because a
// reconnect must also reset downstream book state.
type WSClient struct {
	wsURL string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	handlerMu        sync.RWMutex
	snapshotHandlers []SnapshotHandler
	deltaHandlers    []DeltaHandler

	done chan struct{}
}

// NewWSClient creates a client for the given feed endpoint, e.g.
// "wss://ws-feed.exchange.coinbase.com".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection. It replaces any previous
// connection, so the caller must not have a Listen loop running on one.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("coinbase/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("coinbase/ws: connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	w.conn = conn
	go w.pingLoop(conn)
	return nil
}

// Subscribe requests the level2 channel for the given products. The feed
// responds with one snapshot message per product followed by l2update
// messages.
func (w *WSClient) Subscribe(ctx context.Context, productIDs []string) error {
	return w.sendCommand(WSCommand{
		Type:       "subscribe",
		ProductIDs: productIDs,
		Channels:   []string{channelLevel2},
	})
}

// Unsubscribe stops the level2 stream for the given products.
func (w *WSClient) Unsubscribe(ctx context.Context, productIDs []string) error {
	return w.sendCommand(WSCommand{
		Type:       "unsubscribe",
		ProductIDs: productIDs,
		Channels:   []string{channelLevel2},
	})
}

// OnSnapshot registers a handler for full-book messages.
func (w *WSClient) OnSnapshot(h SnapshotHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.snapshotHandlers = append(w.snapshotHandlers, h)
}

// OnDelta registers a handler for incremental updates.
func (w *WSClient) OnDelta(h DeltaHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.deltaHandlers = append(w.deltaHandlers, h)
}

// Listen reads and dispatches messages until the connection fails, ctx is
// cancelled, or Close is called. It always returns a non-nil error
// describing why the loop ended.
func (w *WSClient) Listen(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("coinbase/ws: not connected")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return fmt.Errorf("coinbase/ws: %w", domain.ErrWSDisconnect)
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return fmt.Errorf("coinbase/ws: %w", domain.ErrWSDisconnect)
			default:
			}
			return fmt.Errorf("coinbase/ws: read: %w", err)
		}

		w.handleMessage(message)
	}
}

// Close shuts down the connection. Safe to call more than once.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// sendCommand marshals and writes one control message.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("coinbase/ws: not connected")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("coinbase/ws: marshal command: %w", err)
	}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("coinbase/ws: send %s: %w", cmd.Type, err)
	}
	return nil
}

// pingLoop keeps the connection alive until it is replaced or the client
// shuts down.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one raw feed message and routes it by type.
// Unparseable envelopes and unknown types are dropped silently; the feed
// also sends subscription confirmations and heartbeats we do not act on.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.Type {
	case "snapshot":
		var m SnapshotMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		d := SnapshotToDomain(&m)

		w.handlerMu.RLock()
		handlers := w.snapshotHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(d)
		}

	case "l2update":
		var m L2UpdateMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		d := L2UpdateToDomain(&m)

		w.handlerMu.RLock()
		handlers := w.deltaHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(d)
		}
	}
}
