package graph

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/source"
)

const inboxJSON = `{
  "value": [
    {
      "id": "AAMk-1",
      "subject": "Quarterly Update",
      "from": {"emailAddress": {"name": "Jane Doe", "address": "jane@example.com"}},
      "toRecipients": [{"emailAddress": {"name": "Me", "address": "me@example.com"}}],
      "body": {"contentType": "html", "content": "<p>Numbers are in.</p>"},
      "bodyPreview": "Numbers are in.",
      "receivedDateTime": "2025-03-04T08:00:00Z",
      "isDraft": false,
      "conversationId": "conv-1"
    },
    {
      "id": "AAMk-2",
      "subject": "",
      "from": {"emailAddress": {"address": "bob@example.com"}},
      "toRecipients": [],
      "body": {"contentType": "text", "content": "plain body"},
      "bodyPreview": "",
      "receivedDateTime": "",
      "isDraft": false,
      "conversationId": "conv-2"
    }
  ]
}`

func newTestAdapter(t *testing.T, h http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAdapter(srv.URL, srv.Client(), zerolog.Nop())
}

func TestListInbox(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/mailFolders/inbox/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("$top") != "10" || q.Get("$orderby") != "receivedDateTime DESC" {
			t.Errorf("query = %v", q)
		}
		_, _ = io.WriteString(w, inboxJSON)
	})

	msgs, err := a.ListInbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	first := msgs[0]
	if diff := cmp.Diff(model.Address{Name: "Jane Doe", Email: "jane@example.com"}, first.From); diff != "" {
		t.Errorf("From mismatch (-want +got):\n%s", diff)
	}
	if first.ConversationID != "conv-1" || first.BodyPreview != "Numbers are in." {
		t.Errorf("first = %+v", first)
	}

	second := msgs[1]
	if second.Subject != model.NoSubject {
		t.Errorf("Subject = %q, want placeholder", second.Subject)
	}
	if second.From.Name != "bob" {
		t.Errorf("From.Name = %q, want local part", second.From.Name)
	}
	if second.BodyPreview != "plain body" {
		t.Errorf("BodyPreview = %q, want derived from body", second.BodyPreview)
	}
	if second.ReceivedDateTime.IsZero() {
		t.Error("ReceivedDateTime should default to fetch time")
	}
	if second.To == nil {
		t.Error("To should be an empty slice, not nil")
	}
}

func TestListDraftsMarksDrafts(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/mailFolders/drafts/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("$orderby"); got != "lastModifiedDateTime DESC" {
			t.Errorf("$orderby = %q", got)
		}
		_, _ = io.WriteString(w, `{"value":[{"id":"d1","subject":"Draft","conversationId":"c"}]}`)
	})

	drafts, err := a.ListDrafts(context.Background())
	if err != nil {
		t.Fatalf("ListDrafts: %v", err)
	}
	if len(drafts) != 1 || !drafts[0].IsDraft {
		t.Errorf("drafts = %+v", drafts)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   apperr.Kind
	}{
		{http.StatusNotFound, apperr.NotFound},
		{http.StatusUnauthorized, apperr.AuthenticationFailed},
		{http.StatusForbidden, apperr.AuthenticationFailed},
		{http.StatusInternalServerError, apperr.ProviderUnavailable},
	}
	for _, tt := range tests {
		a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"error":{"code":"Err","message":"nope"}}`)
		})

		_, err := a.GetMessage(context.Background(), "x")
		if got := apperr.KindOf(err); got != tt.want {
			t.Errorf("status %d: kind = %v, want %v (%v)", tt.status, got, tt.want, err)
		}
		if tt.want == apperr.AuthenticationFailed && !source.IsAuthError(err) {
			t.Errorf("status %d: expected an AuthError in the chain", tt.status)
		}
	}
}

func TestThrottledRequestIsRetried(t *testing.T) {
	var calls atomic.Int32
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"displayName":"Jane Doe","userPrincipalName":"jane@contoso.com"}`)
	})

	info, err := a.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if info.Email != "jane@contoso.com" || info.Name != "Jane Doe" {
		t.Errorf("Profile = %+v", info)
	}
}

func TestSendReplyUsesReplyAction(t *testing.T) {
	var (
		got replyRequest
		raw map[string]json.RawMessage
	)
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/me/messages/AAMk-1/reply" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &raw)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	original := model.Message{ID: "AAMk-1", Subject: "Re: Quarterly Update", ConversationID: "conv-1"}
	if err := a.SendReply(context.Background(), original, "Thanks!", ""); err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if got.Message.Subject != "Re: Quarterly Update" {
		t.Errorf("Subject = %q, want no double prefix", got.Message.Subject)
	}
	if got.Message.Body == nil || got.Message.Body.Content != "Thanks!" || got.Message.Body.ContentType != "Text" {
		t.Errorf("Body = %+v", got.Message.Body)
	}
	if _, ok := raw["comment"]; ok {
		t.Error("reply carries both comment and message body")
	}
}

func TestSendMessage(t *testing.T) {
	var got sendMailRequest
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/sendMail" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	})

	to := []model.Address{{Name: "Jane", Email: "jane@example.com"}}
	if err := a.SendMessage(context.Background(), to, "Hello", "<b>hi</b>"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !got.SaveToSentItems || len(got.Message.ToRecipients) != 1 {
		t.Errorf("request = %+v", got)
	}
	if got.Message.Body.ContentType != "HTML" {
		t.Errorf("ContentType = %q", got.Message.Body.ContentType)
	}
}

func TestThrottledFinalAttemptReturnsWithoutWaiting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	c.maxRetries = 0

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	err := c.Get(ctx, "getting profile", "/me", nil)
	if !apperr.IsKind(err, apperr.ProviderUnavailable) {
		t.Fatalf("error = %v, want ProviderUnavailable", err)
	}
	if ctx.Err() != nil || time.Since(start) > 2*time.Second {
		t.Errorf("waited %v after the last throttled attempt", time.Since(start))
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
