package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lalith-99/chatcore/internal/access"
	"github.com/lalith-99/chatcore/internal/backend"
	"github.com/lalith-99/chatcore/internal/models"
	"github.com/lalith-99/chatcore/internal/reconcile"
)

var (
	standardUser = models.User{ID: "u-std", DisplayName: "stan", Capability: models.CapabilityStandard}
	elevatedUser = models.User{ID: "u-adm", DisplayName: "root", Capability: models.CapabilityElevated}
	roomX        = models.Room{ID: "rx", Name: "x"}
	roomY        = models.Room{ID: "ry", Name: "y"}
)

// requestsStub serves a fixed request list per room.
type requestsStub struct {
	mu       sync.Mutex
	requests []models.AccessRequest
}

func (s *requestsStub) ListRequests(ctx context.Context, roomID string) ([]models.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AccessRequest, 0)
	for _, r := range s.requests {
		if r.RoomID == roomID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *requestsStub) CreateRequest(ctx context.Context, roomID, userID string) (*models.AccessRequest, error) {
	request := models.AccessRequest{
		ID: "req-" + roomID + "-" + userID, UserID: userID, RoomID: roomID,
		Status: models.AccessPending, CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.requests = append(s.requests, request)
	s.mu.Unlock()
	return &request, nil
}

func (s *requestsStub) ApproveRequest(ctx context.Context, requestID string) error { return nil }
func (s *requestsStub) DenyRequest(ctx context.Context, requestID string) error    { return nil }

type membersStub struct{}

func (membersStub) GrantMembership(ctx context.Context, roomID, userID string) error { return nil }

// fakeConn records connection-manager interactions.
type fakeConn struct {
	mu           sync.Mutex
	subscribes   []string
	unsubscribes int
	handler      func(models.Message)
	sent         []backend.OutgoingMessage
	sendErr      error
}

func (f *fakeConn) Subscribe(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, roomID)
	return nil
}

func (f *fakeConn) Unsubscribe() {
	f.mu.Lock()
	f.unsubscribes++
	f.mu.Unlock()
}

func (f *fakeConn) OnMessage(handler func(models.Message)) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

func (f *fakeConn) Send(ctx context.Context, out backend.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, out)
	return nil
}

// deliver pushes a live event through the currently registered handler,
// as the read loop would.
func (f *fakeConn) deliver(msg models.Message) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func (f *fakeConn) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes)
}

// historyStub serves history per room and can hold a room's fetch open.
type historyStub struct {
	mu      sync.Mutex
	history map[string][]models.Message
	block   map[string]chan struct{}
	calls   int
}

func (s *historyStub) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	s.mu.Lock()
	s.calls++
	block := s.block[roomID]
	history := s.history[roomID]
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	return history, nil
}

func (s *historyStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type update struct {
	roomID   string
	messages []models.Message
}

func msg(id, roomID string, t int64) models.Message {
	return models.Message{ID: id, RoomID: roomID, UserID: "u1", Content: id, CreatedAt: time.Unix(t, 0)}
}

func newTestSession(user models.User, conn *fakeConn, history *historyStub, requests *requestsStub) (*Session, chan update) {
	controller := access.NewController(requests, membersStub{}, nil)
	reconciler := reconcile.New(history, nil)
	sess := New(user, controller, conn, reconciler, nil)

	updates := make(chan update, 32)
	sess.OnUpdate(func(roomID string, messages []models.Message) {
		updates <- update{roomID: roomID, messages: messages}
	})
	return sess, updates
}

func waitUpdate(t *testing.T, updates chan update) update {
	t.Helper()
	select {
	case u := <-updates:
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("no timeline update arrived")
		return update{}
	}
}

func TestSwitchToWithoutAccessLoadsNothing(t *testing.T) {
	conn := &fakeConn{}
	history := &historyStub{history: map[string][]models.Message{
		roomX.ID: {msg("m1", roomX.ID, 1)},
	}}
	sess, _ := newTestSession(standardUser, conn, history, &requestsStub{})

	state, err := sess.SwitchTo(context.Background(), roomX)
	if err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	if state.Joined {
		t.Fatal("joined without access")
	}
	if state.AccessStatus != access.Unrequested {
		t.Fatalf("access status = %s, want %s", state.AccessStatus, access.Unrequested)
	}
	if conn.subscribeCount() != 0 {
		t.Fatal("subscribed to live events without access")
	}
	if history.callCount() != 0 {
		t.Fatal("history was loaded without access")
	}
}

func TestSwitchToPendingAndDeniedExposeStatus(t *testing.T) {
	cases := []struct {
		name   string
		status models.AccessStatus
		want   access.Decision
	}{
		{"pending", models.AccessPending, access.Pending},
		{"denied", models.AccessDenied, access.Denied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requests := &requestsStub{requests: []models.AccessRequest{{
				ID: "q1", UserID: standardUser.ID, RoomID: roomX.ID,
				Status: tc.status, CreatedAt: time.Unix(1, 0),
			}}}
			sess, _ := newTestSession(standardUser, &fakeConn{}, &historyStub{}, requests)

			state, err := sess.SwitchTo(context.Background(), roomX)
			if err != nil {
				t.Fatalf("SwitchTo failed: %v", err)
			}
			if state.Joined || state.AccessStatus != tc.want {
				t.Fatalf("state = %+v, want not joined with %s", state, tc.want)
			}
		})
	}
}

func TestSwitchToGrantedLoadsHistory(t *testing.T) {
	conn := &fakeConn{}
	history := &historyStub{history: map[string][]models.Message{
		roomX.ID: {msg("m1", roomX.ID, 1), msg("m2", roomX.ID, 2)},
	}}
	sess, updates := newTestSession(elevatedUser, conn, history, &requestsStub{})

	state, err := sess.SwitchTo(context.Background(), roomX)
	if err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	if !state.Joined || !state.ConnectionSubscribed {
		t.Fatalf("state = %+v, want joined and subscribed", state)
	}
	if conn.subscribeCount() != 1 || conn.subscribes[0] != roomX.ID {
		t.Fatalf("subscribes = %v", conn.subscribes)
	}

	u := waitUpdate(t, updates)
	if u.roomID != roomX.ID || len(u.messages) != 2 {
		t.Fatalf("update = %+v", u)
	}
}

func TestLiveEventReachesListener(t *testing.T) {
	conn := &fakeConn{}
	history := &historyStub{history: map[string][]models.Message{
		roomX.ID: {msg("m1", roomX.ID, 1)},
	}}
	sess, updates := newTestSession(elevatedUser, conn, history, &requestsStub{})

	if _, err := sess.SwitchTo(context.Background(), roomX); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	waitUpdate(t, updates) // initial history

	conn.deliver(msg("m2", roomX.ID, 2))
	u := waitUpdate(t, updates)
	if len(u.messages) != 2 || u.messages[1].ID != "m2" {
		t.Fatalf("update = %+v", u)
	}

	// Redelivery of the same event is a no-op on the timeline.
	conn.deliver(msg("m2", roomX.ID, 2))
	u = waitUpdate(t, updates)
	if len(u.messages) != 2 {
		t.Fatalf("duplicate applied: %d messages", len(u.messages))
	}
}

func TestLiveEventForOtherRoomIgnored(t *testing.T) {
	conn := &fakeConn{}
	history := &historyStub{history: map[string][]models.Message{}}
	sess, updates := newTestSession(elevatedUser, conn, history, &requestsStub{})

	if _, err := sess.SwitchTo(context.Background(), roomX); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	waitUpdate(t, updates)

	conn.deliver(msg("stray", roomY.ID, 1))
	if got := sess.State().Messages; len(got) != 0 {
		t.Fatalf("stray event applied: %+v", got)
	}
}

func TestRapidSwitchDiscardsStaleHistory(t *testing.T) {
	blockX := make(chan struct{})
	conn := &fakeConn{}
	history := &historyStub{
		history: map[string][]models.Message{
			roomX.ID: {msg("x1", roomX.ID, 1)},
			roomY.ID: {msg("y1", roomY.ID, 1)},
		},
		block: map[string]chan struct{}{roomX.ID: blockX},
	}
	sess, updates := newTestSession(elevatedUser, conn, history, &requestsStub{})
	ctx := context.Background()

	if _, err := sess.SwitchTo(ctx, roomX); err != nil {
		t.Fatalf("SwitchTo(roomX) failed: %v", err)
	}
	// Switch to roomY before roomX's history resolves.
	if _, err := sess.SwitchTo(ctx, roomY); err != nil {
		t.Fatalf("SwitchTo(roomY) failed: %v", err)
	}

	u := waitUpdate(t, updates)
	if u.roomID != roomY.ID {
		t.Fatalf("first update for %s, want %s", u.roomID, roomY.ID)
	}

	// Let roomX's load resolve late; it must not touch roomY's state.
	close(blockX)
	time.Sleep(50 * time.Millisecond)

	state := sess.State()
	if state.Room.ID != roomY.ID {
		t.Fatalf("active room = %s", state.Room.ID)
	}
	for _, m := range state.Messages {
		if m.RoomID != roomY.ID {
			t.Fatalf("stale room message leaked: %+v", m)
		}
	}

	// No late update for roomX may arrive either.
	select {
	case u := <-updates:
		if u.roomID == roomX.ID {
			t.Fatalf("late update for abandoned room: %+v", u)
		}
	default:
	}
}

func TestStaleHandlerCannotMutateCurrentRoom(t *testing.T) {
	conn := &fakeConn{}
	history := &historyStub{history: map[string][]models.Message{}}
	sess, updates := newTestSession(elevatedUser, conn, history, &requestsStub{})
	ctx := context.Background()

	if _, err := sess.SwitchTo(ctx, roomX); err != nil {
		t.Fatalf("SwitchTo(roomX) failed: %v", err)
	}
	waitUpdate(t, updates)

	conn.mu.Lock()
	staleHandler := conn.handler
	conn.mu.Unlock()

	if _, err := sess.SwitchTo(ctx, roomY); err != nil {
		t.Fatalf("SwitchTo(roomY) failed: %v", err)
	}
	waitUpdate(t, updates)

	staleHandler(msg("ghost", roomX.ID, 1))
	if got := sess.State().Messages; len(got) != 0 {
		t.Fatalf("stale handler mutated current room: %+v", got)
	}
}

func TestSendValidation(t *testing.T) {
	conn := &fakeConn{}
	sess, _ := newTestSession(elevatedUser, conn, &historyStub{}, &requestsStub{})
	ctx := context.Background()

	t.Run("empty content", func(t *testing.T) {
		if err := sess.Send(ctx, "   ", nil); err != ErrEmptyContent {
			t.Fatalf("got %v, want ErrEmptyContent", err)
		}
	})

	t.Run("not joined", func(t *testing.T) {
		if err := sess.Send(ctx, "hello", nil); err != ErrNotJoined {
			t.Fatalf("got %v, want ErrNotJoined", err)
		}
	})
}

func TestSendAttachesReplyPreview(t *testing.T) {
	conn := &fakeConn{}
	sess, updates := newTestSession(elevatedUser, conn, &historyStub{}, &requestsStub{})
	ctx := context.Background()

	if _, err := sess.SwitchTo(ctx, roomX); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	waitUpdate(t, updates)

	quoted := msg("m1", roomX.ID, 1)
	quoted.UserID = "alice"
	quoted.Content = "original"
	if err := sess.Send(ctx, "a reply", &quoted); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(conn.sent))
	}
	out := conn.sent[0]
	if out.RoomID != roomX.ID || out.UserID != elevatedUser.ID || out.Content != "a reply" {
		t.Fatalf("unexpected outgoing message: %+v", out)
	}
	if out.ReplyToMessageID != "m1" || out.ReplyToUserID != "alice" || out.ReplyToContent != "original" {
		t.Fatalf("reply preview not attached: %+v", out)
	}
}

func TestLeaveClearsState(t *testing.T) {
	conn := &fakeConn{}
	history := &historyStub{history: map[string][]models.Message{
		roomX.ID: {msg("m1", roomX.ID, 1)},
	}}
	sess, updates := newTestSession(elevatedUser, conn, history, &requestsStub{})

	if _, err := sess.SwitchTo(context.Background(), roomX); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	waitUpdate(t, updates)

	sess.Leave()

	state := sess.State()
	if state.Joined || state.Room.ID != "" || len(state.Messages) != 0 {
		t.Fatalf("state after leave = %+v", state)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.unsubscribes == 0 {
		t.Fatal("connection was not unsubscribed")
	}
}

func TestRequestAccessUpdatesStatus(t *testing.T) {
	requests := &requestsStub{}
	sess, _ := newTestSession(standardUser, &fakeConn{}, &historyStub{}, requests)
	ctx := context.Background()

	if _, err := sess.SwitchTo(ctx, roomX); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	request, err := sess.RequestAccess(ctx)
	if err != nil {
		t.Fatalf("RequestAccess failed: %v", err)
	}
	if request.Status != models.AccessPending {
		t.Fatalf("request status = %s", request.Status)
	}
	if got := sess.State().AccessStatus; got != access.Pending {
		t.Fatalf("session access status = %s, want %s", got, access.Pending)
	}
}
