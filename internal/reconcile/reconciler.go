// Package reconcile merges a one-shot history fetch with an unbounded live
// event stream into a single de-duplicated, order-stable message timeline.
//
// The two channels race: a live event can arrive before, during, or after
// the history load it also appears in (the local echo of a sent message,
// or a redelivery after reconnect). The reconciler guarantees that each
// message id appears exactly once and that the sequence stays ordered by
// (CreatedAt, ID) at every observable point.
package reconcile

import (
	"context"
	"sort"
	"sync"

	"github.com/lalith-99/chatcore/internal/models"
	"go.uber.org/zap"
)

// HistoryFetcher is the one-shot history source, normally the backend
// message service.
type HistoryFetcher interface {
	ListMessages(ctx context.Context, roomID string) ([]models.Message, error)
}

// Reconciler owns the message timeline for the active room. All mutation
// goes through Reset, LoadHistory and ApplyLive behind a single mutex —
// no two reconciliation operations interleave.
type Reconciler struct {
	fetcher HistoryFetcher
	logger  *zap.Logger

	mu       sync.Mutex
	roomID   string
	gen      uint64 // bumped by Reset; stale loads check it before merging
	loading  bool
	messages []models.Message
	ids      map[string]struct{}
	buffered []models.Message // live events held while a load is in flight
}

// New creates a Reconciler.
func New(fetcher HistoryFetcher, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		fetcher: fetcher,
		logger:  logger,
		ids:     make(map[string]struct{}),
	}
}

// Reset discards all timeline state and retargets the reconciler at a new
// room. Until LoadHistory completes, live events for the room are buffered
// rather than applied, so nothing arriving between the reset and the load's
// completion is dropped.
func (r *Reconciler) Reset(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomID = roomID
	r.gen++
	r.loading = true
	r.messages = nil
	r.ids = make(map[string]struct{})
	r.buffered = nil
}

// LoadHistory fetches the current room's history and replaces the timeline
// with it, then replays any live events buffered during the fetch. A fetch
// failure degrades to an empty timeline — an empty room view is preferable
// to blocking. If the reconciler was Reset while the fetch was in flight
// (the caller switched rooms), the late response is discarded.
func (r *Reconciler) LoadHistory(ctx context.Context) []models.Message {
	r.mu.Lock()
	roomID := r.roomID
	gen := r.gen
	r.mu.Unlock()

	if roomID == "" {
		return nil
	}

	history, err := r.fetcher.ListMessages(ctx, roomID)
	if err != nil {
		r.logger.Warn("history load failed, starting from empty timeline",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		history = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		// Superseded by a Reset for another room; the fresh owner of the
		// timeline must not see this response.
		return r.snapshotLocked()
	}

	r.messages = nil
	r.ids = make(map[string]struct{})
	for _, msg := range history {
		r.insertLocked(msg)
	}

	r.loading = false
	for _, msg := range r.buffered {
		r.insertLocked(msg)
	}
	r.buffered = nil

	return r.snapshotLocked()
}

// ApplyLive merges one inbound live event into the timeline and returns the
// resulting snapshot. Duplicates (by id) are suppressed; new events are
// inserted at their ordered position, not appended, since a live event may
// race ahead of older history. Events for a different room are ignored.
func (r *Reconciler) ApplyLive(msg models.Message) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.RoomID != "" && msg.RoomID != r.roomID {
		return r.snapshotLocked()
	}

	if r.loading {
		r.buffered = append(r.buffered, msg)
		return r.snapshotLocked()
	}

	r.insertLocked(msg)
	return r.snapshotLocked()
}

// Snapshot returns a copy of the current ordered timeline.
func (r *Reconciler) Snapshot() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// RoomID returns the room the reconciler is targeting.
func (r *Reconciler) RoomID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID
}

// insertLocked places msg at its ordered position unless its id is already
// present. Caller holds r.mu.
func (r *Reconciler) insertLocked(msg models.Message) {
	if msg.ID == "" {
		return
	}
	if _, exists := r.ids[msg.ID]; exists {
		return
	}

	i := sort.Search(len(r.messages), func(i int) bool {
		return models.MessageBefore(msg, r.messages[i])
	})
	r.messages = append(r.messages, models.Message{})
	copy(r.messages[i+1:], r.messages[i:])
	r.messages[i] = msg
	r.ids[msg.ID] = struct{}{}
}

func (r *Reconciler) snapshotLocked() []models.Message {
	out := make([]models.Message, len(r.messages))
	copy(out, r.messages)
	return out
}
