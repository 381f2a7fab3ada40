package mail_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/mail"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/source"
	"github.com/nhle/mail-assistant/internal/store"
	"github.com/nhle/mail-assistant/tests/testutil"
)

var ignoreSyncedAt = cmpopts.IgnoreFields(model.Message{}, "SyncedAt")

var errOutage = apperr.Wrap(apperr.ProviderUnavailable, "listing inbox", errors.New("connection refused"))

type sentReply struct {
	original model.Message
	body     string
	subject  string
}

// fakeGateway is an in-memory source.Gateway.
type fakeGateway struct {
	inbox     []model.Message
	drafts    []model.Message
	messages  map[string]model.Message
	err       error
	inboxHits int
	draftHits int
	getHits   int
	replies   []sentReply
}

var _ source.Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) Name() string { return "fake" }

func (f *fakeGateway) ListInbox(_ context.Context, limit int) ([]model.Message, error) {
	f.inboxHits++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.inbox) > limit {
		return f.inbox[:limit], nil
	}
	return f.inbox, nil
}

func (f *fakeGateway) ListDrafts(context.Context) ([]model.Message, error) {
	f.draftHits++
	if f.err != nil {
		return nil, f.err
	}
	return f.drafts, nil
}

func (f *fakeGateway) GetMessage(_ context.Context, id string) (*model.Message, error) {
	f.getHits++
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "no such message")
	}
	return &m, nil
}

func (f *fakeGateway) SendMessage(context.Context, []model.Address, string, string) error {
	return f.err
}

func (f *fakeGateway) SendReply(_ context.Context, original model.Message, body, subject string) error {
	if f.err != nil {
		return f.err
	}
	f.replies = append(f.replies, sentReply{original: original, body: body, subject: source.EnsureReplySubject(subject)})
	return nil
}

func (f *fakeGateway) CreateDraft(_ context.Context, to []model.Address, subject, body string) (*model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Message{ID: "new-draft", Subject: subject, To: to, Body: body, ReceivedDateTime: time.Now()}, nil
}

func (f *fakeGateway) Profile(context.Context) (*model.UserInfo, error) {
	return &model.UserInfo{Email: "me@example.com", Name: "me"}, f.err
}

func newService(t *testing.T, gw *fakeGateway) (*mail.Service, store.Store) {
	t.Helper()
	s := testutil.NewTestStore(t)
	return mail.NewService(s, gw, zerolog.Nop()), s
}

func TestFetchInboxWritesThroughThenFallsBack(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{inbox: []model.Message{
		testutil.Message("m1", 2*time.Hour, false),
		testutil.Message("m2", time.Hour, false),
	}}
	svc, s := newService(t, gw)

	fresh, err := svc.FetchInbox(ctx, 50)
	if err != nil {
		t.Fatalf("FetchInbox: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("fresh inbox has %d messages, want 2", len(fresh))
	}
	cached, err := s.GetMessages(ctx, 50, false)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if diff := cmp.Diff(fresh, cached, ignoreSyncedAt); diff != "" {
		t.Errorf("cache does not mirror provider (-provider +cache):\n%s", diff)
	}

	gw.err = errOutage
	fallback, err := svc.FetchInbox(ctx, 50)
	if err != nil {
		t.Fatalf("FetchInbox during outage: %v", err)
	}
	if diff := cmp.Diff(cached, fallback, ignoreSyncedAt); diff != "" {
		t.Errorf("fallback mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchInboxOutageWithEmptyCache(t *testing.T) {
	svc, _ := newService(t, &fakeGateway{err: errOutage})

	_, err := svc.FetchInbox(context.Background(), 50)
	if !apperr.IsKind(err, apperr.ProviderUnavailable) {
		t.Fatalf("FetchInbox error = %v, want ProviderUnavailable", err)
	}
}

func TestFetchInboxFallbackExcludesDrafts(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{err: errOutage}
	svc, s := newService(t, gw)

	if err := s.UpsertMessages(ctx, []model.Message{
		testutil.Message("draft", 0, true),
		testutil.Message("inbox", 0, false),
	}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	got, err := svc.FetchInbox(ctx, 50)
	if err != nil {
		t.Fatalf("FetchInbox: %v", err)
	}
	if len(got) != 1 || got[0].ID != "inbox" {
		t.Errorf("fallback = %+v, want only the inbox message", got)
	}
}

func TestGetMessageCacheFirst(t *testing.T) {
	ctx := context.Background()
	remote := testutil.Message("remote", 0, false)
	gw := &fakeGateway{messages: map[string]model.Message{"remote": remote}}
	svc, s := newService(t, gw)

	if err := s.UpsertMessages(ctx, []model.Message{testutil.Message("local", 0, false)}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	got, err := svc.GetMessage(ctx, "local")
	if err != nil || got == nil || got.ID != "local" {
		t.Fatalf("GetMessage(local) = %+v, %v", got, err)
	}
	if gw.getHits != 0 {
		t.Errorf("gateway called %d times for a cached message", gw.getHits)
	}

	got, err = svc.GetMessage(ctx, "remote")
	if err != nil || got == nil || got.ID != "remote" {
		t.Fatalf("GetMessage(remote) = %+v, %v", got, err)
	}
	cached, err := s.GetMessageByID(ctx, "remote")
	if err != nil || cached == nil {
		t.Errorf("remote message was not cached: %v, %v", cached, err)
	}
}

func TestGetMessageAbsentEverywhere(t *testing.T) {
	svc, _ := newService(t, &fakeGateway{messages: map[string]model.Message{}})

	got, err := svc.GetMessage(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetMessage error = %v, want nil", err)
	}
	if got != nil {
		t.Errorf("GetMessage = %+v, want nil", got)
	}
}

func TestGetDraftsCacheFirst(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{drafts: []model.Message{testutil.Message("remote-draft", 0, true)}}
	svc, s := newService(t, gw)

	if err := s.UpsertMessages(ctx, []model.Message{testutil.Message("d1", 0, true)}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	drafts, err := svc.GetDrafts(ctx)
	if err != nil {
		t.Fatalf("GetDrafts: %v", err)
	}
	if len(drafts) != 1 || drafts[0].ID != "d1" {
		t.Errorf("drafts = %+v", drafts)
	}
	if gw.draftHits != 0 {
		t.Errorf("gateway consulted %d times with a warm cache", gw.draftHits)
	}
}

func TestGetDraftsColdCache(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{drafts: []model.Message{testutil.Message("remote-draft", 0, true)}}
	svc, s := newService(t, gw)

	drafts, err := svc.GetDrafts(ctx)
	if err != nil {
		t.Fatalf("GetDrafts: %v", err)
	}
	if len(drafts) != 1 || gw.draftHits != 1 {
		t.Fatalf("drafts = %+v, hits = %d", drafts, gw.draftHits)
	}
	cached, err := s.GetMessages(ctx, 50, true)
	if err != nil || len(cached) != 1 {
		t.Errorf("drafts not cached: %v, %v", cached, err)
	}

	gw.err = errOutage
	empty, _ := newService(t, gw)
	if _, err := empty.GetDrafts(ctx); !apperr.IsKind(err, apperr.ProviderUnavailable) {
		t.Errorf("GetDrafts with cold cache and outage = %v", err)
	}
}

func TestSyncRecordsLastSync(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{inbox: []model.Message{testutil.Message("m1", 0, false)}}
	svc, s := newService(t, gw)

	if _, ok, _ := svc.LastSync(ctx); ok {
		t.Fatal("LastSync reported a value before any sync")
	}

	before := time.Now().Add(-time.Second)
	n, err := svc.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n != 1 {
		t.Errorf("Sync count = %d, want 1", n)
	}

	raw, ok, err := s.GetSyncMetadata(ctx, store.MetaLastSync)
	if err != nil || !ok {
		t.Fatalf("last_sync missing: %v", err)
	}
	stamp, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("last_sync %q is not RFC 3339: %v", raw, err)
	}
	if stamp.Before(before.Truncate(time.Second)) {
		t.Errorf("last_sync %v is older than the sync", stamp)
	}

	last, ok, err := svc.LastSync(ctx)
	if err != nil || !ok || !last.Equal(stamp) {
		t.Errorf("LastSync = %v, %v, %v", last, ok, err)
	}
}

func TestSyncFailureLeavesLastSyncUnset(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t, &fakeGateway{err: errOutage})

	if _, err := svc.Sync(ctx); err == nil {
		t.Fatal("Sync succeeded during an outage")
	}
	if _, ok, _ := s.GetSyncMetadata(ctx, store.MetaLastSync); ok {
		t.Error("last_sync written by a failed sync")
	}
}

func TestSendReplyUsesCacheOnly(t *testing.T) {
	ctx := context.Background()
	original := testutil.Message("m1", 0, false)
	original.Subject = "Quarterly Update"
	original.ConversationID = "conv-1"

	gw := &fakeGateway{messages: map[string]model.Message{"remote-only": original}}
	svc, s := newService(t, gw)
	if err := s.UpsertMessages(ctx, []model.Message{original}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	if err := svc.SendReply(ctx, "m1", "Thanks, looks good.", "Quarterly Update"); err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if len(gw.replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(gw.replies))
	}
	reply := gw.replies[0]
	if reply.subject != "Re: Quarterly Update" {
		t.Errorf("subject = %q", reply.subject)
	}
	if reply.original.From.Email != original.From.Email || reply.original.ConversationID != "conv-1" {
		t.Errorf("reply target = %+v", reply.original)
	}

	err := svc.SendReply(ctx, "remote-only", "hi", "")
	if !apperr.IsKind(err, apperr.NotFound) || apperr.Message(err) != "original message not found" {
		t.Errorf("SendReply(uncached) = %v, want NotFound", err)
	}
	if gw.getHits != 0 {
		t.Errorf("gateway GetMessage called %d times", gw.getHits)
	}
}

func TestSendReplyRejectsEmptyBody(t *testing.T) {
	svc, _ := newService(t, &fakeGateway{})

	err := svc.SendReply(context.Background(), "m1", "   ", "")
	if !apperr.IsKind(err, apperr.ValidationFailed) {
		t.Errorf("SendReply error = %v, want ValidationFailed", err)
	}
}

func TestCreateDraftIsCached(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t, &fakeGateway{})

	draft, err := svc.CreateDraft(ctx, []model.Address{{Email: "x@example.com"}}, "Plan", "body")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	cached, err := s.GetMessageByID(ctx, draft.ID)
	if err != nil || cached == nil || !cached.IsDraft {
		t.Errorf("draft not cached as draft: %+v, %v", cached, err)
	}
}

func TestSendMessageRequiresRecipient(t *testing.T) {
	svc, _ := newService(t, &fakeGateway{})

	err := svc.SendMessage(context.Background(), nil, "s", "b")
	if !apperr.IsKind(err, apperr.ValidationFailed) {
		t.Errorf("SendMessage error = %v", err)
	}
}

func TestConversationAndSearch(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t, &fakeGateway{})

	a := testutil.Message("a", time.Hour, false)
	a.ConversationID = "c1"
	b := testutil.Message("b", 0, false)
	b.ConversationID = "c1"
	b.Subject = "Budget review"
	if err := s.UpsertMessages(ctx, []model.Message{a, b}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	conv, err := svc.Conversation(ctx, "c1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(conv) != 2 || conv[0].ID != "b" {
		t.Errorf("Conversation order = %+v", conv)
	}

	found, err := svc.Search(ctx, "budget", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].ID != "b" {
		t.Errorf("Search = %+v", found)
	}

	if err := svc.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if left, _ := s.GetMessages(ctx, 50, false); len(left) != 0 {
		t.Errorf("cache still holds %d messages", len(left))
	}
}
