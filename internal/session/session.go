// Package session orchestrates the per-room lifecycle: join, leave and
// switch, coordinating access control, timeline reconciliation and the
// live connection. SwitchTo is the only place room transitions happen.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/lalith-99/chatcore/internal/access"
	"github.com/lalith-99/chatcore/internal/backend"
	"github.com/lalith-99/chatcore/internal/models"
	"github.com/lalith-99/chatcore/internal/reconcile"
	"github.com/lalith-99/chatcore/internal/reply"
	"go.uber.org/zap"
)

// Validation failures on the send path. The caller keeps the draft either
// way — the engine never clears caller-held input.
var (
	ErrEmptyContent = errors.New("session: message content is empty")
	ErrNotJoined    = errors.New("session: no joined room")
)

// Connection is the slice of the connection manager the session drives.
type Connection interface {
	Subscribe(roomID string) error
	Unsubscribe()
	OnMessage(handler func(models.Message))
	Send(ctx context.Context, out backend.OutgoingMessage) error
}

// State is the caller-visible snapshot of the active room.
type State struct {
	Room                 models.Room
	AccessStatus         access.Decision
	Joined               bool
	Messages             []models.Message
	ConnectionSubscribed bool
}

// Listener receives ordered timeline snapshots for the active room: the
// initial merged history and every subsequent live update.
type Listener func(roomID string, messages []models.Message)

// Session is the per-user orchestrator. All message flow for the active
// room funnels through it; switching rooms invalidates everything scoped
// to the previous room via an epoch counter, so a late history response or
// a stale live handler can never mutate the new room's state.
type Session struct {
	user       models.User
	controller *access.Controller
	conn       Connection
	reconciler *reconcile.Reconciler
	logger     *zap.Logger

	mu         sync.Mutex
	epoch      uint64
	room       models.Room
	status     access.Decision
	joined     bool
	subscribed bool
	cancelLoad context.CancelFunc
	listener   Listener
}

// New creates a Session for user.
func New(user models.User, controller *access.Controller, conn Connection, reconciler *reconcile.Reconciler, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		user:       user,
		controller: controller,
		conn:       conn,
		reconciler: reconciler,
		logger:     logger,
	}
}

// User returns the session identity.
func (s *Session) User() models.User {
	return s.user
}

// OnUpdate registers the timeline listener. Re-registration replaces.
func (s *Session) OnUpdate(listener Listener) {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
}

// SwitchTo makes room the active room.
//
// The previous room's state is discarded and its in-flight history load is
// cancelled. Access is evaluated first; unless the decision is Granted the
// session stops there — no live subscription, no history load — so an
// unapproved user never receives room content. When granted, the session
// subscribes the live connection, then loads history asynchronously; the
// merged timeline and later live updates arrive through the listener.
func (s *Session) SwitchTo(ctx context.Context, room models.Room) (State, error) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	if s.subscribed {
		s.conn.Unsubscribe()
	}
	s.room = room
	s.joined = false
	s.subscribed = false
	s.status = access.Unrequested
	s.mu.Unlock()

	s.reconciler.Reset(room.ID)

	decision := s.controller.Evaluate(ctx, s.user, room)

	s.mu.Lock()
	if s.epoch != epoch {
		// A later SwitchTo already superseded this one.
		state := s.stateLocked()
		s.mu.Unlock()
		return state, nil
	}
	s.status = decision
	if decision != access.Granted {
		state := s.stateLocked()
		s.mu.Unlock()
		return state, nil
	}
	s.joined = true
	s.mu.Unlock()

	// Live events are scoped to this epoch and room: anything delivered by
	// a handler registered for a previous room is dropped at the gate.
	s.conn.OnMessage(func(msg models.Message) {
		if msg.RoomID != room.ID {
			return
		}
		s.mu.Lock()
		stale := s.epoch != epoch
		s.mu.Unlock()
		if stale {
			return
		}
		snapshot := s.reconciler.ApplyLive(msg)
		s.notify(room.ID, snapshot)
	})

	subscribed := true
	if err := s.conn.Subscribe(room.ID); err != nil {
		// Degraded: history still loads, sends fall back to REST, and the
		// reconnect path re-joins the room once the connection returns.
		s.logger.Warn("live subscription failed",
			zap.String("room_id", room.ID),
			zap.Error(err),
		)
		subscribed = false
	}

	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	if s.epoch != epoch {
		state := s.stateLocked()
		s.mu.Unlock()
		cancel()
		return state, nil
	}
	s.subscribed = subscribed
	s.cancelLoad = cancel
	state := s.stateLocked()
	s.mu.Unlock()

	go func() {
		snapshot := s.reconciler.LoadHistory(loadCtx)
		s.mu.Lock()
		stale := s.epoch != epoch
		if !stale && s.cancelLoad != nil {
			s.cancelLoad = nil
		}
		s.mu.Unlock()
		cancel()
		if stale {
			return
		}
		s.notify(room.ID, snapshot)
	}()

	return state, nil
}

// Leave unsubscribes the live connection and clears all per-room state.
func (s *Session) Leave() {
	s.mu.Lock()
	s.epoch++
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.room = models.Room{}
	s.status = access.Unrequested
	s.joined = false
	s.subscribed = false
	s.mu.Unlock()

	s.conn.Unsubscribe()
	s.conn.OnMessage(nil)
	s.reconciler.Reset("")
}

// Send validates and delivers a message to the active room, attaching the
// quoted message's preview when quoted is non-nil. On failure the caller's
// draft is untouched and may be retried.
func (s *Session) Send(ctx context.Context, content string, quoted *models.Message) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	s.mu.Lock()
	joined := s.joined
	roomID := s.room.ID
	s.mu.Unlock()
	if !joined || roomID == "" {
		return ErrNotJoined
	}

	draft := reply.Attach(models.Message{
		RoomID:  roomID,
		UserID:  s.user.ID,
		Content: content,
	}, quoted)

	out := backend.OutgoingFromDraft(draft.RoomID, draft.UserID, draft.Content, draft.ReplyTo)
	return s.conn.Send(ctx, out)
}

// State returns the current per-room snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// RequestAccess files an access request for the active room and updates
// the session's access status from the result.
func (s *Session) RequestAccess(ctx context.Context) (*models.AccessRequest, error) {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room.ID == "" {
		return nil, ErrNotJoined
	}

	request, err := s.controller.RequestAccess(ctx, s.user, room)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.room.ID == room.ID && request.Status == models.AccessPending {
		s.status = access.Pending
	}
	s.mu.Unlock()
	return request, nil
}

// stateLocked builds the snapshot. Caller holds s.mu. The message snapshot
// comes from the reconciler, which has its own lock; the two locks never
// nest the other way around.
func (s *Session) stateLocked() State {
	var messages []models.Message
	if s.joined {
		messages = s.reconciler.Snapshot()
	}
	return State{
		Room:                 s.room,
		AccessStatus:         s.status,
		Joined:               s.joined,
		Messages:             messages,
		ConnectionSubscribed: s.subscribed,
	}
}

func (s *Session) notify(roomID string, messages []models.Message) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		listener(roomID, messages)
	}
}
