package schemas

import (
	"context"
	"time"
)

// -- Transcript Mirror Interface --

// Transcript is what a TranscriptMirror keeps for one conversation.
type Transcript struct {
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
}

// TranscriptMirror keeps a copy of a chat transcript across restarts. It is
// used for display continuity only; nothing reads it back for correctness.
type TranscriptMirror interface {
	// Save replaces the stored history. The creation timestamp is written on
	// the first save for a key and never overwritten.
	Save(ctx context.Context, key string, messages []ChatMessage) error
	// Load returns the stored transcript, or a zero Transcript if none exists.
	Load(ctx context.Context, key string) (Transcript, error)
	// Clear removes both the history and its timestamp.
	Clear(ctx context.Context, key string) error
}

// -- Toast Notifications --

// ToastVariant selects how a notification is styled.
type ToastVariant string

const (
	ToastDefault     ToastVariant = "default"
	ToastDestructive ToastVariant = "destructive"
)

// Toast is a transient user-facing notification produced by a mutation.
type Toast struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Variant     ToastVariant `json:"variant"`
}
