package backend

import (
	"context"

	"github.com/lalith-99/chatcore/internal/models"
)

// The engine consumes the backend through these interfaces rather than the
// concrete HTTP client, so tests substitute in-memory fakes and the
// transport stays swappable. Every method takes a context — all of them
// cross the network.

// RoomService lists and manages rooms.
type RoomService interface {
	// ListRooms returns all rooms. Empty slice, not nil, when there are none.
	ListRooms(ctx context.Context) ([]models.Room, error)

	// CreateRoom creates a room and returns it with ID populated.
	CreateRoom(ctx context.Context, name string) (*models.Room, error)

	// DeleteRoom removes a room. Elevated-only; the backend re-checks the
	// asserted capability and answers not_authorized otherwise.
	DeleteRoom(ctx context.Context, roomID string, caller models.User) error
}

// MessageService is the request/response message path.
type MessageService interface {
	// ListMessages returns a room's history, oldest first.
	ListMessages(ctx context.Context, roomID string) ([]models.Message, error)

	// CreateMessage persists a message via REST. Used as the send fallback
	// while the live connection is down.
	CreateMessage(ctx context.Context, out OutgoingMessage) (*models.Message, error)
}

// MembershipService manages the backend-owned membership list.
type MembershipService interface {
	// GrantMembership adds a user to a room's member list. Idempotent:
	// granting an existing membership succeeds.
	GrantMembership(ctx context.Context, roomID, userID string) error
}

// AccessRequestService manages the access-request records, which are
// server-owned: the engine never caches them across room switches.
type AccessRequestService interface {
	// ListRequests returns all access requests for a room, every status.
	ListRequests(ctx context.Context, roomID string) ([]models.AccessRequest, error)

	// CreateRequest files a new request. The backend answers conflict if
	// one is already pending for (user, room).
	CreateRequest(ctx context.Context, roomID, userID string) (*models.AccessRequest, error)

	// ApproveRequest resolves a request as approved.
	ApproveRequest(ctx context.Context, requestID string) error

	// DenyRequest resolves a request as denied.
	DenyRequest(ctx context.Context, requestID string) error
}

// UserService is the backend-owned user registry.
type UserService interface {
	// ListUsers returns every registered user.
	ListUsers(ctx context.Context) ([]models.User, error)

	// RegisterUser creates a user. The backend answers conflict on a
	// duplicate display name.
	RegisterUser(ctx context.Context, displayName string) (*models.User, error)

	// Login resolves a display name to a session token.
	Login(ctx context.Context, displayName string) (*LoginResult, error)
}
