package metaapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
)

// wsStreamingConnection pushes market data over a websocket. One connection
// per account; handlers are fanned out from a single read loop.
type wsStreamingConnection struct {
	url       string
	token     string
	accountID string

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[int]TickHandler
	nextID   int
	done     chan struct{}
}

func newWSStreamingConnection(url, token, accountID string) *wsStreamingConnection {
	return &wsStreamingConnection{
		url:       url,
		token:     token,
		accountID: accountID,
		handlers:  map[int]TickHandler{},
	}
}

type streamCommand struct {
	Type      string `json:"type"`
	AccountID string `json:"accountId"`
	Symbol    string `json:"symbol,omitempty"`
}

type streamEvent struct {
	Type string      `json:"type"`
	Tick domain.Tick `json:"tick"`
}

func (s *wsStreamingConnection) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}

	header := http.Header{}
	header.Set("auth-token", s.token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial stream (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial stream: %w", err)
	}

	s.conn = conn
	s.done = make(chan struct{})
	go s.readLoop(conn, s.done)
	return nil
}

func (s *wsStreamingConnection) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var event streamEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("stream read failed", "accountId", s.accountID, "error", err)
			}
			return
		}
		if event.Type != "tick" {
			continue
		}
		s.mu.Lock()
		handlers := make([]TickHandler, 0, len(s.handlers))
		for _, h := range s.handlers {
			handlers = append(handlers, h)
		}
		s.mu.Unlock()
		for _, h := range handlers {
			h(event.Tick)
		}
	}
}

func (s *wsStreamingConnection) send(cmd streamCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("stream not connected")
	}
	return s.conn.WriteJSON(cmd)
}

func (s *wsStreamingConnection) SubscribeToMarketData(ctx context.Context, symbol string) error {
	return s.send(streamCommand{Type: "subscribe", AccountID: s.accountID, Symbol: symbol})
}

func (s *wsStreamingConnection) UnsubscribeFromMarketData(ctx context.Context, symbol string) error {
	return s.send(streamCommand{Type: "unsubscribe", AccountID: s.accountID, Symbol: symbol})
}

func (s *wsStreamingConnection) OnTick(h TickHandler) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

func (s *wsStreamingConnection) Close() error {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	err := conn.Close()
	if done != nil {
		<-done
	}
	return err
}
