package store

import (
	"context"

	"github.com/nhle/mail-assistant/internal/model"
)

// Store defines the persistence interface for cached messages, templates,
// and sync metadata.
type Store interface {
	// Initialize opens the database if needed. Calling it on an open
	// store is a no-op.
	Initialize(ctx context.Context) error

	// === Messages ===

	// UpsertMessages replaces every message in the batch by ID inside a
	// single transaction.
	UpsertMessages(ctx context.Context, msgs []model.Message) error
	GetMessages(ctx context.Context, limit int, isDraft bool) ([]model.Message, error)
	// GetMessageByID returns nil, nil when the message is not cached.
	GetMessageByID(ctx context.Context, id string) (*model.Message, error)
	GetConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error)
	ClearMessages(ctx context.Context) error

	// === Templates ===

	ListTemplates(ctx context.Context) ([]model.Template, error)
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	CreateTemplate(ctx context.Context, in model.TemplateInput) (*model.Template, error)
	UpdateTemplate(ctx context.Context, id string, patch model.TemplatePatch) (*model.Template, error)
	DeleteTemplate(ctx context.Context, id string) error

	// === Sync metadata ===

	SetSyncMetadata(ctx context.Context, key, value string) error
	// GetSyncMetadata reports ok == false for a missing key.
	GetSyncMetadata(ctx context.Context, key string) (value string, ok bool, err error)

	Close() error
}

// Well-known sync metadata keys.
const (
	MetaLastSync = "last_sync"
)

const (
	defaultMessageLimit = 50
	defaultSearchLimit  = 20
)
