package backend

import (
	"time"

	"github.com/lalith-99/chatcore/internal/models"
)

// MessagePayload is the wire shape of a message, shared by the REST surface
// and the live channel. Reply preview fields travel flat, matching the
// backend contract; the engine's models.Message keeps them grouped in a
// ReplyRef.
type MessagePayload struct {
	ID               string    `json:"id"`
	RoomID           string    `json:"roomId"`
	UserID           string    `json:"userId"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"createdAt"`
	ReplyToMessageID string    `json:"replyToMessageId,omitempty"`
	ReplyToContent   string    `json:"replyToContent,omitempty"`
	ReplyToUserID    string    `json:"replyToUserId,omitempty"`
}

// Model converts the wire shape into the engine's message entity.
func (p MessagePayload) Model() models.Message {
	msg := models.Message{
		ID:        p.ID,
		RoomID:    p.RoomID,
		UserID:    p.UserID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
	}
	if p.ReplyToMessageID != "" {
		msg.ReplyTo = &models.ReplyRef{
			MessageID: p.ReplyToMessageID,
			UserID:    p.ReplyToUserID,
			Content:   p.ReplyToContent,
		}
	}
	return msg
}

// PayloadFromMessage converts a message entity to its wire shape.
func PayloadFromMessage(m models.Message) MessagePayload {
	p := MessagePayload{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if m.ReplyTo != nil {
		p.ReplyToMessageID = m.ReplyTo.MessageID
		p.ReplyToContent = m.ReplyTo.Content
		p.ReplyToUserID = m.ReplyTo.UserID
	}
	return p
}

// OutgoingMessage is a draft on its way to the backend, either over the
// live channel or the REST fallback. The backend assigns ID and CreatedAt.
type OutgoingMessage struct {
	RoomID           string `json:"roomId"`
	UserID           string `json:"userId"`
	Content          string `json:"content"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
	ReplyToContent   string `json:"replyToContent,omitempty"`
	ReplyToUserID    string `json:"replyToUserId,omitempty"`
}

// OutgoingFromDraft builds the wire draft from engine values.
func OutgoingFromDraft(roomID, userID, content string, replyTo *models.ReplyRef) OutgoingMessage {
	out := OutgoingMessage{
		RoomID:  roomID,
		UserID:  userID,
		Content: content,
	}
	if replyTo != nil {
		out.ReplyToMessageID = replyTo.MessageID
		out.ReplyToContent = replyTo.Content
		out.ReplyToUserID = replyTo.UserID
	}
	return out
}

// LoginResult is returned by Login: the signed session token plus the
// resolved user for immediate use.
type LoginResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}
