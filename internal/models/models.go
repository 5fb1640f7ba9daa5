package models

import (
	"time"
)

// Capability is the access level carried on a User. It is asserted by the
// backend at login and immutable for the lifetime of the session.
//
// A typed value keeps role checks at one boundary (the access controller)
// instead of ad hoc string comparisons at call sites, and the compiler
// catches a misspelled constant.
type Capability string

const (
	// CapabilityStandard users must pass the access-request workflow
	// before they may receive a room's content.
	CapabilityStandard Capability = "standard"

	// CapabilityElevated users bypass the access-request workflow, may
	// approve or deny requests, and may delete rooms.
	CapabilityElevated Capability = "elevated"
)

// Elevated reports whether the capability grants unconditional room access.
func (c Capability) Elevated() bool {
	return c == CapabilityElevated
}

// User is a participant. Created by the backend registry; this engine never
// mutates one.
type User struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	Capability  Capability `json:"capability"`
}

// Room is a chat room. Created by the backend; referenced, never mutated,
// by this engine.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AccessStatus is the lifecycle state of an AccessRequest.
type AccessStatus string

const (
	AccessPending  AccessStatus = "pending"
	AccessApproved AccessStatus = "approved"
	AccessDenied   AccessStatus = "denied"
)

// AccessRequest is a standard user's petition to enter a room. Created by
// the requester, resolved (approved or denied) only by an elevated user.
// When multiple requests exist for the same (user, room), the most recent
// one is authoritative.
type AccessRequest struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	RoomID    string       `json:"roomId"`
	Status    AccessStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// ReplyRef is the denormalized preview of a quoted message, captured at
// send time. If the quoted message is later altered the preview is stale —
// that is the at-send-time semantics, not a defect.
type ReplyRef struct {
	MessageID string `json:"replyToMessageId"`
	UserID    string `json:"replyToUserId"`
	Content   string `json:"replyToContent"`
}

// Message is a single chat message. Immutable once created.
//
// ReplyTo is nil for messages that quote nothing; absence is a valid state
// everywhere in the engine, never an error.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	ReplyTo   *ReplyRef `json:"replyTo,omitempty"`
}

// MessageBefore is the timeline ordering relation: CreatedAt first, ID as
// tie-break so ordering stays stable when timestamps collide.
func MessageBefore(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
