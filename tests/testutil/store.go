package testutil

import (
	"testing"
	"time"

	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Message builds a cached-message fixture received at base plus offset.
func Message(id string, offset time.Duration, isDraft bool) model.Message {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return model.Message{
		ID:               id,
		Subject:          "Subject " + id,
		From:             model.Address{Name: "Sender " + id, Email: id + "@example.com"},
		To:               []model.Address{{Name: "Me", Email: "me@example.com"}},
		Body:             "<p>Body of " + id + "</p>",
		BodyPreview:      "Body of " + id,
		ReceivedDateTime: base.Add(offset),
		IsDraft:          isDraft,
	}
}
