package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/store"
	"github.com/nhle/mail-assistant/tests/testutil"
)

var ignoreSyncedAt = cmpopts.IgnoreFields(model.Message{}, "SyncedAt")

func TestUpsertMessagesOverwritesByID(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	first := testutil.Message("m1", 0, false)
	if err := s.UpsertMessages(ctx, []model.Message{first}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	before, err := s.GetMessageByID(ctx, "m1")
	if err != nil || before == nil {
		t.Fatalf("GetMessageByID after first upsert = %v, %v", before, err)
	}

	second := first
	second.Subject = "Changed"
	second.To = []model.Address{
		{Name: "B", Email: "b@example.com"},
		{Name: "A", Email: "a@example.com"},
	}
	second.ConversationID = "conv-1"
	if err := s.UpsertMessages(ctx, []model.Message{second}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetMessageByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessageByID: %v", err)
	}
	if diff := cmp.Diff(second, *got, ignoreSyncedAt); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
	if got.SyncedAt.Before(before.SyncedAt) {
		t.Errorf("SyncedAt went backwards: %v -> %v", before.SyncedAt, got.SyncedAt)
	}

	all, err := s.GetMessages(ctx, 10, false)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("GetMessages returned %d records, want 1", len(all))
	}
}

func TestGetMessagesFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	msgs := []model.Message{
		testutil.Message("a", 1*time.Hour, false),
		testutil.Message("b", 3*time.Hour, false),
		testutil.Message("c", 2*time.Hour, true),
		testutil.Message("d", 0, false),
		testutil.Message("e", 4*time.Hour, true),
	}
	if err := s.UpsertMessages(ctx, msgs); err != nil {
		t.Fatalf("UpsertMessages: %v", err)
	}

	tests := []struct {
		name    string
		limit   int
		isDraft bool
		want    []string
	}{
		{name: "inbox", limit: 10, isDraft: false, want: []string{"b", "a", "d"}},
		{name: "inbox truncated", limit: 2, isDraft: false, want: []string{"b", "a"}},
		{name: "drafts", limit: 10, isDraft: true, want: []string{"e", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetMessages(ctx, tt.limit, tt.isDraft)
			if err != nil {
				t.Fatalf("GetMessages: %v", err)
			}
			var ids []string
			for i, m := range got {
				if m.IsDraft != tt.isDraft {
					t.Errorf("message %s has IsDraft=%v", m.ID, m.IsDraft)
				}
				if i > 0 && m.ReceivedDateTime.After(got[i-1].ReceivedDateTime) {
					t.Errorf("message %s out of order", m.ID)
				}
				ids = append(ids, m.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetMessageByIDMissing(t *testing.T) {
	s := testutil.NewTestStore(t)

	got, err := s.GetMessageByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetMessageByID: %v", err)
	}
	if got != nil {
		t.Fatalf("GetMessageByID = %+v, want nil", got)
	}
}

func TestGetConversationChronological(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	inThread := func(id string, offset time.Duration, conv string) model.Message {
		m := testutil.Message(id, offset, false)
		m.ConversationID = conv
		return m
	}
	msgs := []model.Message{
		inThread("r2", 2*time.Hour, "t1"),
		inThread("r0", 0, "t1"),
		inThread("x", time.Hour, "t2"),
		inThread("r1", time.Hour, "t1"),
	}
	if err := s.UpsertMessages(ctx, msgs); err != nil {
		t.Fatalf("UpsertMessages: %v", err)
	}

	got, err := s.GetConversation(ctx, "t1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}

	var ids []string
	for _, m := range got {
		if m.ConversationID != "t1" {
			t.Errorf("message %s belongs to %q", m.ID, m.ConversationID)
		}
		ids = append(ids, m.ID)
	}
	if diff := cmp.Diff([]string{"r0", "r1", "r2"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchMessages(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	invoice := testutil.Message("inv", time.Hour, false)
	invoice.Subject = "Invoice for March"
	alice := testutil.Message("alice", 2*time.Hour, false)
	alice.From.Name = "Alice Invoicer"
	other := testutil.Message("other", 3*time.Hour, false)
	percent := testutil.Message("pct", 4*time.Hour, false)
	percent.BodyPreview = "Discount of 100% today"

	if err := s.UpsertMessages(ctx, []model.Message{invoice, alice, other, percent}); err != nil {
		t.Fatalf("UpsertMessages: %v", err)
	}

	tests := []struct {
		query string
		limit int
		want  []string
	}{
		{query: "INVOICE", limit: 10, want: []string{"alice", "inv"}},
		{query: "invoice", limit: 1, want: []string{"alice"}},
		{query: "100%", limit: 10, want: []string{"pct"}},
		{query: "nothing-matches", limit: 10, want: nil},
	}
	for _, tt := range tests {
		got, err := s.SearchMessages(ctx, tt.query, tt.limit)
		if err != nil {
			t.Fatalf("SearchMessages(%q): %v", tt.query, err)
		}
		var ids []string
		for _, m := range got {
			ids = append(ids, m.ID)
		}
		if diff := cmp.Diff(tt.want, ids); diff != "" {
			t.Errorf("SearchMessages(%q) mismatch (-want +got):\n%s", tt.query, diff)
		}
	}
}

func TestClearMessages(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	if err := s.UpsertMessages(ctx, []model.Message{testutil.Message("a", 0, false)}); err != nil {
		t.Fatalf("UpsertMessages: %v", err)
	}
	if err := s.ClearMessages(ctx); err != nil {
		t.Fatalf("ClearMessages: %v", err)
	}
	got, err := s.GetMessages(ctx, 10, false)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetMessages after clear returned %d messages", len(got))
	}
}

func TestCloseThenReuse(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "mail.db")

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if err := s.UpsertMessages(ctx, []model.Message{testutil.Message("keep", 0, false)}); err != nil {
		t.Fatalf("UpsertMessages: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := s.GetMessageByID(ctx, "keep")
	if err != nil {
		t.Fatalf("GetMessageByID after Close: %v", err)
	}
	if got == nil {
		t.Fatal("message lost after Close and reopen")
	}
}

func TestUpsertMessagesAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	if err := s.Exec(ctx, `CREATE TRIGGER reject_bad BEFORE INSERT ON messages
		WHEN NEW.id = 'bad' BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatalf("creating trigger: %v", err)
	}

	batch := []model.Message{testutil.Message("ok", 0, false), testutil.Message("bad", time.Minute, false)}
	err := s.UpsertMessages(ctx, batch)
	if !apperr.IsKind(err, apperr.StorageUnavailable) {
		t.Fatalf("UpsertMessages error = %v, want kind %v", err, apperr.StorageUnavailable)
	}

	got, err := s.GetMessageByID(ctx, "ok")
	if err != nil {
		t.Fatalf("GetMessageByID: %v", err)
	}
	if got != nil {
		t.Error("message from a failed batch is visible")
	}
}

func TestCorruptRowIsStorageError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		update string
	}{
		{"recipients", `UPDATE messages SET to_recipients = '{broken'`},
		{"received time", `UPDATE messages SET received_date_time = 'yesterday'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testutil.NewTestStore(t)
			if err := s.UpsertMessages(ctx, []model.Message{testutil.Message("x", 0, false)}); err != nil {
				t.Fatalf("UpsertMessages: %v", err)
			}
			if err := s.Exec(ctx, tt.update); err != nil {
				t.Fatalf("corrupting row: %v", err)
			}

			if _, err := s.GetMessages(ctx, 10, false); !apperr.IsKind(err, apperr.StorageUnavailable) {
				t.Errorf("GetMessages error = %v, want kind %v", err, apperr.StorageUnavailable)
			}
			if _, err := s.GetMessageByID(ctx, "x"); !apperr.IsKind(err, apperr.StorageUnavailable) {
				t.Errorf("GetMessageByID error = %v, want kind %v", err, apperr.StorageUnavailable)
			}
		})
	}
}
