// Package access owns the per-room access-control workflow: whether a user
// may receive a room's content at all, and the elevated-only operations
// that resolve pending requests.
package access

import (
	"context"
	"errors"
	"sync"

	"github.com/lalith-99/chatcore/internal/backend"
	"github.com/lalith-99/chatcore/internal/models"
	"go.uber.org/zap"
)

// ErrNotAuthorized is returned when a standard-capability caller invokes an
// elevated-only operation. It is always surfaced, never swallowed.
var ErrNotAuthorized = errors.New("access: operation requires elevated capability")

// Decision is the outcome of evaluating a user against a room.
type Decision string

const (
	// Granted means messages may flow: either the user is elevated or
	// their most recent access request was approved.
	Granted Decision = "granted"
	// Pending means a request exists and awaits an elevated decision.
	Pending Decision = "pending"
	// Denied means the most recent request was rejected. The user may
	// file a new request.
	Denied Decision = "denied"
	// Unrequested means no request exists for this (user, room).
	Unrequested Decision = "unrequested"
)

// Controller evaluates room access and manages the request lifecycle.
// Request records are server-owned; the only local state is a cache of
// pending lists for elevated callers, pruned on approve/deny.
type Controller struct {
	requests backend.AccessRequestService
	members  backend.MembershipService
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string][]models.AccessRequest // roomID -> cached pending requests
}

// NewController creates a Controller.
func NewController(requests backend.AccessRequestService, members backend.MembershipService, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		requests: requests,
		members:  members,
		logger:   logger,
		pending:  make(map[string][]models.AccessRequest),
	}
}

// Evaluate decides whether user may join room.
//
// Elevated users are always Granted; the membership grant issued alongside
// is fire-and-forget, since elevation itself is the authority. For standard
// users the room's requests are fetched and the most recent one belonging
// to the user is authoritative. A transport failure on the fetch degrades
// to Unrequested — the caller's view stays usable and the user can
// (re)request.
func (c *Controller) Evaluate(ctx context.Context, user models.User, room models.Room) Decision {
	if user.Capability.Elevated() {
		c.grantMembership(ctx, room.ID, user.ID)
		return Granted
	}

	request, ok := c.authoritativeRequest(ctx, user.ID, room.ID)
	if !ok {
		return Unrequested
	}

	switch request.Status {
	case models.AccessApproved:
		c.grantMembership(ctx, room.ID, user.ID)
		return Granted
	case models.AccessPending:
		return Pending
	case models.AccessDenied:
		return Denied
	default:
		c.logger.Warn("access request with unknown status",
			zap.String("request_id", request.ID),
			zap.String("status", string(request.Status)),
		)
		return Unrequested
	}
}

// RequestAccess files an access request for (user, room). It is idempotent
// while a request is already pending: the existing request is returned and
// no duplicate is created. A denied user may re-request; an approved user
// gets the approved request back unchanged, since approval already grants
// entry.
func (c *Controller) RequestAccess(ctx context.Context, user models.User, room models.Room) (*models.AccessRequest, error) {
	if existing, ok := c.authoritativeRequest(ctx, user.ID, room.ID); ok {
		switch existing.Status {
		case models.AccessPending, models.AccessApproved:
			return &existing, nil
		}
	}

	request, err := c.requests.CreateRequest(ctx, room.ID, user.ID)
	if err != nil {
		// A conflict means a pending request raced in from elsewhere —
		// the idempotence safety net resolves to that request.
		if backend.IsCode(err, backend.CodeConflict) {
			if existing, ok := c.authoritativeRequest(ctx, user.ID, room.ID); ok {
				return &existing, nil
			}
		}
		return nil, err
	}
	return request, nil
}

// ListPending returns the room's pending requests. Elevated-only.
func (c *Controller) ListPending(ctx context.Context, caller models.User, room models.Room) ([]models.AccessRequest, error) {
	if !caller.Capability.Elevated() {
		return nil, ErrNotAuthorized
	}

	all, err := c.requests.ListRequests(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	pending := make([]models.AccessRequest, 0)
	for _, request := range all {
		if request.Status == models.AccessPending {
			pending = append(pending, request)
		}
	}

	c.mu.Lock()
	c.pending[room.ID] = pending
	c.mu.Unlock()

	return pending, nil
}

// PendingCached returns the last pending list fetched for the room, without
// a network round trip.
func (c *Controller) PendingCached(roomID string) []models.AccessRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached := c.pending[roomID]
	out := make([]models.AccessRequest, len(cached))
	copy(out, cached)
	return out
}

// Approve transitions a request to approved. Elevated-only; a standard
// caller gets ErrNotAuthorized and nothing is mutated.
func (c *Controller) Approve(ctx context.Context, caller models.User, requestID string) error {
	if !caller.Capability.Elevated() {
		return ErrNotAuthorized
	}
	if err := c.requests.ApproveRequest(ctx, requestID); err != nil {
		return err
	}
	c.prune(requestID)
	return nil
}

// Deny transitions a request to denied. Elevated-only; a standard caller
// gets ErrNotAuthorized and nothing is mutated.
func (c *Controller) Deny(ctx context.Context, caller models.User, requestID string) error {
	if !caller.Capability.Elevated() {
		return ErrNotAuthorized
	}
	if err := c.requests.DenyRequest(ctx, requestID); err != nil {
		return err
	}
	c.prune(requestID)
	return nil
}

// authoritativeRequest fetches the room's requests and returns the most
// recent one for userID. When timestamps tie, the later entry in the list
// wins. The second return is false when no request exists or the fetch
// failed (read paths degrade).
func (c *Controller) authoritativeRequest(ctx context.Context, userID, roomID string) (models.AccessRequest, bool) {
	all, err := c.requests.ListRequests(ctx, roomID)
	if err != nil {
		c.logger.Warn("listing access requests failed, treating as unrequested",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		return models.AccessRequest{}, false
	}

	var latest models.AccessRequest
	found := false
	for _, request := range all {
		if request.UserID != userID {
			continue
		}
		if !found || !request.CreatedAt.Before(latest.CreatedAt) {
			latest = request
			found = true
		}
	}
	return latest, found
}

// grantMembership issues the idempotent membership grant. Failure is logged
// and otherwise ignored: for elevated users elevation is the authority, and
// for approved users the approval record is.
func (c *Controller) grantMembership(ctx context.Context, roomID, userID string) {
	if err := c.members.GrantMembership(ctx, roomID, userID); err != nil {
		c.logger.Warn("membership grant failed",
			zap.String("room_id", roomID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// prune drops a resolved request from every cached pending list.
func (c *Controller) prune(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for roomID, cached := range c.pending {
		for i, request := range cached {
			if request.ID == requestID {
				c.pending[roomID] = append(cached[:i], cached[i+1:]...)
				break
			}
		}
	}
}
