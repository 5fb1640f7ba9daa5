// Package conn owns the single live websocket connection of an
// authenticated session: its lifetime, its subscription to the current
// room, and reconnection.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lalith-99/chatcore/internal/backend"
	"github.com/lalith-99/chatcore/internal/models"
	"go.uber.org/zap"
)

// Envelope is a frame on the live channel: a logical event name plus its
// JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Live channel event names.
const (
	EventJoinRoom    = "joinRoom"
	EventSendMessage = "sendMessage"
	EventNewMessage  = "newMessage"
)

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// ErrClosed is returned by operations on a manager that has been closed.
var ErrClosed = errors.New("conn: manager closed")

const (
	reconnectBase = 250 * time.Millisecond
	reconnectMax  = 5 * time.Second
)

// Config holds configuration for creating a Manager.
type Config struct {
	// SocketURL is the websocket endpoint (e.g. "ws://localhost:8081/ws").
	SocketURL string
	// Token is the session token sent as a bearer credential on dial.
	Token string
	// Fallback is the request/response send path used while the live
	// connection is down. Required.
	Fallback backend.MessageService
	// Logger is used for structured logging. If nil, zap.NewNop() is used.
	Logger *zap.Logger
	// Dialer overrides the websocket dialer. If nil, the default is used.
	Dialer *websocket.Dialer
}

// Manager owns exactly one live connection. Subscribe sends a room-join
// signal over the existing connection; it never opens a new one. On read
// failure the manager reconnects with capped backoff and re-joins the
// previously subscribed room. While disconnected, Send degrades to the
// REST fallback instead of failing outright.
type Manager struct {
	socketURL string
	token     string
	fallback  backend.MessageService
	logger    *zap.Logger
	dialer    *websocket.Dialer

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool
	room      string // subscribed room, re-joined after reconnect
	handler   func(models.Message)
	closed    bool
}

// NewManager creates a Manager. Call Open to establish the connection.
func NewManager(config Config) (*Manager, error) {
	if config.SocketURL == "" {
		return nil, fmt.Errorf("conn: SocketURL is required")
	}
	if config.Fallback == nil {
		return nil, fmt.Errorf("conn: Fallback message service is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Manager{
		socketURL: config.SocketURL,
		token:     config.Token,
		fallback:  config.Fallback,
		logger:    logger,
		dialer:    dialer,
	}, nil
}

// Open dials the live connection and starts the read loop. The handshake
// is the only blocking part; delivery of inbound events happens on the
// manager's own goroutine.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.ws != nil {
		m.mu.Unlock()
		return fmt.Errorf("conn: already open")
	}
	m.mu.Unlock()

	ws, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("conn: open: %w", err)
	}

	m.mu.Lock()
	m.ws = ws
	m.connected = true
	m.mu.Unlock()

	go m.readLoop(ws)
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ws := m.ws
	m.ws = nil
	m.connected = false
	m.mu.Unlock()

	if ws != nil {
		return ws.Close()
	}
	return nil
}

// Connected reports whether the live connection is currently up.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// OnMessage registers the single consumer for inbound live events.
// Re-registration replaces the previous handler; it does not stack.
func (m *Manager) OnMessage(handler func(models.Message)) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// Subscribe joins a room's live events over the existing connection and
// records the room so a reconnect re-joins it.
func (m *Manager) Subscribe(roomID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.room = roomID
	m.mu.Unlock()
	return m.writeEvent(EventJoinRoom, joinRoomPayload{RoomID: roomID})
}

// Unsubscribe clears the recorded room so reconnects stop re-joining it.
// The server scopes delivery by the join signal, so on a live connection
// the previous room's events stop once a new room is joined; clearing the
// record is what prevents a reconnect from resurrecting the subscription.
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	m.room = ""
	m.mu.Unlock()
}

// Send delivers an outgoing message: over the live connection when it is
// up, otherwise through the REST fallback. Failures propagate — the
// operation is not retried, preferring at-most-once over duplicates.
func (m *Manager) Send(ctx context.Context, out backend.OutgoingMessage) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	connected := m.connected
	m.mu.Unlock()

	if connected {
		if err := m.writeEvent(EventSendMessage, out); err != nil {
			return fmt.Errorf("conn: live send: %w", err)
		}
		return nil
	}

	if _, err := m.fallback.CreateMessage(ctx, out); err != nil {
		return fmt.Errorf("conn: fallback send: %w", err)
	}
	return nil
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if m.token != "" {
		header.Set("Authorization", "Bearer "+m.token)
	}
	ws, _, err := m.dialer.DialContext(ctx, m.socketURL, header)
	return ws, err
}

// writeEvent marshals and writes one frame. gorilla connections allow a
// single concurrent writer, so writes serialize on the mutex.
func (m *Manager) writeEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("conn: encode %s payload: %w", event, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ws == nil || !m.connected {
		return fmt.Errorf("conn: not connected")
	}
	if err := m.ws.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("conn: write %s: %w", event, err)
	}
	return nil
}

// readLoop consumes frames until the connection fails, then hands off to
// the reconnect loop. Exits when the manager is closed.
func (m *Manager) readLoop(ws *websocket.Conn) {
	for {
		var envelope Envelope
		if err := ws.ReadJSON(&envelope); err != nil {
			m.mu.Lock()
			closed := m.closed
			m.connected = false
			m.mu.Unlock()
			if closed {
				return
			}
			m.logger.Warn("live connection lost, reconnecting", zap.Error(err))
			m.reconnect()
			return
		}

		if envelope.Event != EventNewMessage {
			continue
		}

		var payload backend.MessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			m.logger.Warn("malformed live message payload", zap.Error(err))
			continue
		}

		m.mu.Lock()
		handler := m.handler
		m.mu.Unlock()
		if handler != nil {
			handler(payload.Model())
		}
	}
}

// reconnect re-dials with capped backoff, re-joins the recorded room, and
// restarts the read loop.
func (m *Manager) reconnect() {
	backoff := reconnectBase
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		room := m.room
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ws, err := m.dial(ctx)
		cancel()
		if err != nil {
			m.logger.Warn("reconnect attempt failed",
				zap.Duration("retry_in", backoff),
				zap.Error(err),
			)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			ws.Close()
			return
		}
		m.ws = ws
		m.connected = true
		m.mu.Unlock()

		if room != "" {
			if err := m.writeEvent(EventJoinRoom, joinRoomPayload{RoomID: room}); err != nil {
				m.logger.Warn("room re-join after reconnect failed", zap.Error(err))
			}
		}

		m.logger.Info("live connection re-established", zap.String("room_id", room))
		go m.readLoop(ws)
		return
	}
}
