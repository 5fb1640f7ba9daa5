package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/chatcore/internal/models"
)

// Store errors, mapped to API error codes by the handlers.
var (
	errNotFound   = errors.New("not found")
	errConflict   = errors.New("conflict")
	errValidation = errors.New("validation")
)

// Store is the devserver's in-memory state. It stands in for the real
// backend's persistence; everything is lost on restart, which is exactly
// what a development fixture wants.
type Store struct {
	mu       sync.Mutex
	users    []models.User
	rooms    []models.Room
	messages map[string][]models.Message // roomID -> ordered by (CreatedAt, ID)
	requests []models.AccessRequest
	members  map[string]map[string]bool // roomID -> userID -> member
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		messages: make(map[string][]models.Message),
		members:  make(map[string]map[string]bool),
	}
}

// SeedUser adds a user with a fixed capability; used by cmd/devserver to
// provision the initial elevated account.
func (s *Store) SeedUser(displayName string, capability models.Capability) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := models.User{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Capability:  capability,
	}
	s.users = append(s.users, user)
	return user
}

func (s *Store) ListUsers() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, len(s.users))
	copy(out, s.users)
	return out
}

func (s *Store) CreateUser(displayName string) (models.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return models.User{}, errValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.DisplayName == displayName {
			return models.User{}, errConflict
		}
	}
	user := models.User{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Capability:  models.CapabilityStandard,
	}
	s.users = append(s.users, user)
	return user, nil
}

func (s *Store) UserByName(displayName string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.DisplayName == displayName {
			return u, nil
		}
	}
	return models.User{}, errNotFound
}

func (s *Store) ListRooms() []models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Room, len(s.rooms))
	copy(out, s.rooms)
	return out
}

func (s *Store) CreateRoom(name string) (models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Room{}, errValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room := models.Room{ID: uuid.NewString(), Name: name}
	s.rooms = append(s.rooms, room)
	return room, nil
}

func (s *Store) DeleteRoom(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, room := range s.rooms {
		if room.ID == roomID {
			s.rooms = append(s.rooms[:i], s.rooms[i+1:]...)
			delete(s.messages, roomID)
			delete(s.members, roomID)
			kept := s.requests[:0]
			for _, request := range s.requests {
				if request.RoomID != roomID {
					kept = append(kept, request)
				}
			}
			s.requests = kept
			return nil
		}
	}
	return errNotFound
}

func (s *Store) roomExistsLocked(roomID string) bool {
	for _, room := range s.rooms {
		if room.ID == roomID {
			return true
		}
	}
	return false
}

// ListMessages returns a room's history oldest first.
func (s *Store) ListMessages(roomID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.roomExistsLocked(roomID) {
		return nil, errNotFound
	}
	history := s.messages[roomID]
	out := make([]models.Message, len(history))
	copy(out, history)
	return out, nil
}

// CreateMessage persists a message, assigning id and timestamp.
func (s *Store) CreateMessage(roomID, userID, content string, replyTo *models.ReplyRef) (models.Message, error) {
	if strings.TrimSpace(content) == "" || roomID == "" {
		return models.Message{}, errValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.roomExistsLocked(roomID) {
		return models.Message{}, errNotFound
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		ReplyTo:   replyTo,
	}
	history := append(s.messages[roomID], msg)
	sort.SliceStable(history, func(i, j int) bool {
		return models.MessageBefore(history[i], history[j])
	})
	s.messages[roomID] = history
	return msg, nil
}

// GrantMembership is idempotent: granting an existing membership succeeds.
func (s *Store) GrantMembership(roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.roomExistsLocked(roomID) {
		return errNotFound
	}
	if s.members[roomID] == nil {
		s.members[roomID] = make(map[string]bool)
	}
	s.members[roomID][userID] = true
	return nil
}

// IsMember reports room membership.
func (s *Store) IsMember(roomID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[roomID][userID]
}

// ListRequests returns every access request for a room, all statuses.
func (s *Store) ListRequests(roomID string) []models.AccessRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AccessRequest, 0)
	for _, request := range s.requests {
		if request.RoomID == roomID {
			out = append(out, request)
		}
	}
	return out
}

// CreateRequest files an access request. A pending duplicate for the same
// (user, room) is a conflict.
func (s *Store) CreateRequest(roomID, userID string) (models.AccessRequest, error) {
	if roomID == "" || userID == "" {
		return models.AccessRequest{}, errValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.roomExistsLocked(roomID) {
		return models.AccessRequest{}, errNotFound
	}
	for _, request := range s.requests {
		if request.RoomID == roomID && request.UserID == userID && request.Status == models.AccessPending {
			return models.AccessRequest{}, errConflict
		}
	}
	request := models.AccessRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		RoomID:    roomID,
		Status:    models.AccessPending,
		CreatedAt: time.Now().UTC(),
	}
	s.requests = append(s.requests, request)
	return request, nil
}

// ResolveRequest sets a request's terminal status.
func (s *Store) ResolveRequest(requestID string, status models.AccessStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.requests {
		if s.requests[i].ID == requestID {
			s.requests[i].Status = status
			return nil
		}
	}
	return errNotFound
}
