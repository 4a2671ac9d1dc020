package core

import (
	"context"
	"time"
)

const (
	ChatSystem    = "system"
	ChatUser      = "user"
	ChatAssistant = "assistant"
)

// Image is inline binary content attached to a chat message.
type Image struct {
	MediaType string
	Data      []byte
}

type Message struct {
	Role    string
	Content string
	Images  []Image
}

type AIProvider interface {
	Chat(ctx context.Context, history []Message) (Message, error)
}

// Messenger delivers outbound messages to an identity over the chat transport.
type Messenger interface {
	Notify(ctx context.Context, identityID int64, text string) error
	DeliverReminder(ctx context.Context, r Reminder, text string) error
}

// Document is an opened paginated artifact. Pages are zero-based.
type Document interface {
	NumPage() int
	Text(page int) (string, error)
	RenderPNG(page int, dpi float64) ([]byte, error)
	Close() error
}

type DocumentOpener interface {
	Open(data []byte) (Document, error)
}

// Source is an external content feed merged by the sync coordinator.
type Source interface {
	Name() string
	Interval() time.Duration
	// List returns items strictly after marker, ordered by marker.
	List(ctx context.Context, marker string) ([]SyncItem, error)
	Fetch(ctx context.Context, item SyncItem) (Artifact, error)
}

type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length,omitempty"`
}

// ModelLister is implemented by providers that can enumerate their models.
type ModelLister interface {
	Models(ctx context.Context) ([]Model, error)
}
