package reply

import (
	"testing"
	"time"

	"github.com/lalith-99/chatcore/internal/models"
)

func TestAttach(t *testing.T) {
	quoted := models.Message{
		ID:        "m1",
		RoomID:    "r1",
		UserID:    "alice",
		Content:   "original",
		CreatedAt: time.Unix(1, 0),
	}
	draft := models.Message{RoomID: "r1", UserID: "bob", Content: "a reply"}

	got := Attach(draft, &quoted)

	if got.ReplyTo == nil {
		t.Fatal("ReplyTo not attached")
	}
	if got.ReplyTo.MessageID != "m1" || got.ReplyTo.UserID != "alice" || got.ReplyTo.Content != "original" {
		t.Fatalf("unexpected preview: %+v", got.ReplyTo)
	}
	if got.Content != "a reply" {
		t.Fatalf("draft content changed: %q", got.Content)
	}
}

func TestAttachNilQuoted(t *testing.T) {
	draft := models.Message{RoomID: "r1", UserID: "bob", Content: "plain"}
	got := Attach(draft, nil)
	if got.ReplyTo != nil {
		t.Fatalf("unexpected ReplyTo: %+v", got.ReplyTo)
	}
}

func TestAttachIsStaleByDesign(t *testing.T) {
	quoted := models.Message{ID: "m1", UserID: "alice", Content: "before edit"}
	got := Attach(models.Message{Content: "re"}, &quoted)

	quoted.Content = "after edit"
	if got.ReplyTo.Content != "before edit" {
		t.Fatalf("preview followed the quoted message: %q", got.ReplyTo.Content)
	}
}

func TestAuthorName(t *testing.T) {
	directory := map[string]string{"alice-id": "Alice"}

	t.Run("hit", func(t *testing.T) {
		ref := &models.ReplyRef{UserID: "alice-id"}
		if got := AuthorName(ref, directory); got != "Alice" {
			t.Fatalf("got %q, want Alice", got)
		}
	})

	t.Run("miss falls back to raw id", func(t *testing.T) {
		ref := &models.ReplyRef{UserID: "ghost-id"}
		if got := AuthorName(ref, directory); got != "ghost-id" {
			t.Fatalf("got %q, want ghost-id", got)
		}
	})

	t.Run("nil ref", func(t *testing.T) {
		if got := AuthorName(nil, directory); got != "" {
			t.Fatalf("got %q, want empty", got)
		}
	})

	t.Run("nil directory", func(t *testing.T) {
		ref := &models.ReplyRef{UserID: "alice-id"}
		if got := AuthorName(ref, nil); got != "alice-id" {
			t.Fatalf("got %q, want alice-id", got)
		}
	})
}

func TestDirectory(t *testing.T) {
	users := []models.User{
		{ID: "a", DisplayName: "Alice"},
		{ID: "b", DisplayName: "Bob"},
	}
	directory := Directory(users)
	if directory["a"] != "Alice" || directory["b"] != "Bob" {
		t.Fatalf("unexpected directory: %v", directory)
	}
}
