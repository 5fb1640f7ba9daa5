package devserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/chatcore/internal/backend"
	"github.com/lalith-99/chatcore/internal/conn"
	"github.com/lalith-99/chatcore/internal/models"
	"go.uber.org/zap"
)

// hub tracks live websocket clients and which room each has joined.
// Delivery is room-scoped: a client only receives newMessage frames for
// its joined room. The sender receives its own broadcast too — the
// engine's reconciler de-duplicates the echo.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	ws *websocket.Conn

	mu   sync.Mutex // serializes writes; gorilla allows one writer
	room string
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]struct{})}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.ws.Close()
}

// broadcast delivers a message to every client joined to its room.
func (h *hub) broadcast(msg models.Message) {
	payload, err := json.Marshal(backend.PayloadFromMessage(msg))
	if err != nil {
		return
	}
	frame := conn.Envelope{Event: conn.EventNewMessage, Data: payload}

	h.mu.Lock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		joined := c.room == msg.RoomID
		if joined {
			c.ws.WriteJSON(frame)
		}
		c.mu.Unlock()
	}
}

var upgrader = websocket.Upgrader{
	// The devserver is a local fixture; cross-origin checks add nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveWS upgrades the connection and pumps frames until the client goes
// away. joinRoom re-scopes the client's subscription (one room at a time);
// sendMessage persists and broadcasts.
func (s *Server) serveWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{ws: ws}
	s.hub.add(client)
	defer s.hub.remove(client)

	user := CurrentUser(c)
	s.logger.Info("live client connected", zap.String("user_id", user.ID))

	for {
		var envelope conn.Envelope
		if err := ws.ReadJSON(&envelope); err != nil {
			s.logger.Info("live client disconnected",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
			return
		}

		switch envelope.Event {
		case conn.EventJoinRoom:
			var payload struct {
				RoomID string `json:"roomId"`
			}
			if err := json.Unmarshal(envelope.Data, &payload); err != nil {
				continue
			}
			client.mu.Lock()
			client.room = payload.RoomID
			client.mu.Unlock()

		case conn.EventSendMessage:
			var out backend.OutgoingMessage
			if err := json.Unmarshal(envelope.Data, &out); err != nil {
				continue
			}
			msg, err := s.store.CreateMessage(out.RoomID, out.UserID, out.Content, replyRefFromOutgoing(out))
			if err != nil {
				s.logger.Warn("live send rejected", zap.Error(err))
				continue
			}
			s.hub.broadcast(msg)
		}
	}
}

func replyRefFromOutgoing(out backend.OutgoingMessage) *models.ReplyRef {
	if out.ReplyToMessageID == "" {
		return nil
	}
	return &models.ReplyRef{
		MessageID: out.ReplyToMessageID,
		UserID:    out.ReplyToUserID,
		Content:   out.ReplyToContent,
	}
}
