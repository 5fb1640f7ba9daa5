// Package reply attaches and resolves denormalized reply previews.
//
// A reply preview is captured at send time: the quoted message's id, author
// and content are copied onto the outgoing draft. The preview is not a live
// reference — later changes to the quoted message do not propagate.
package reply

import (
	"github.com/lalith-99/chatcore/internal/models"
)

// Attach copies the quoted message's preview fields into the draft's
// ReplyTo. A nil quoted message leaves the draft untouched.
func Attach(draft models.Message, quoted *models.Message) models.Message {
	if quoted == nil {
		return draft
	}
	draft.ReplyTo = &models.ReplyRef{
		MessageID: quoted.ID,
		UserID:    quoted.UserID,
		Content:   quoted.Content,
	}
	return draft
}

// AuthorName resolves a display name for the quoted author. A miss in the
// directory falls back to the raw author id — a missing name is a valid
// state, so this never fails.
func AuthorName(ref *models.ReplyRef, directory map[string]string) string {
	if ref == nil {
		return ""
	}
	if name, ok := directory[ref.UserID]; ok && name != "" {
		return name
	}
	return ref.UserID
}

// Directory builds an id-to-name lookup from a user list.
func Directory(users []models.User) map[string]string {
	directory := make(map[string]string, len(users))
	for _, u := range users {
		directory[u.ID] = u.DisplayName
	}
	return directory
}
