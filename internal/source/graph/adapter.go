package graph

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/source"
)

const draftsPageSize = 50

// selectFields are the message properties requested on every listing.
var selectFields = strings.Join([]string{
	"id", "subject", "from", "toRecipients", "body", "bodyPreview",
	"receivedDateTime", "isDraft", "conversationId",
}, ",")

// Adapter implements source.Gateway for Microsoft 365 mailboxes.
type Adapter struct {
	client  *Client
	breaker *source.Breaker
	log     zerolog.Logger
}

var _ source.Gateway = (*Adapter)(nil)

// NewAdapter creates a Graph adapter. httpClient must attach OAuth
// bearer tokens; baseURL may be empty for the public endpoint.
func NewAdapter(baseURL string, httpClient *http.Client, log zerolog.Logger) *Adapter {
	log = log.With().Str("component", "graph").Logger()
	return &Adapter{
		client:  NewClient(baseURL, httpClient),
		breaker: source.NewBreaker("graph-api", log),
		log:     log,
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return model.ProviderMicrosoft
}

func (a *Adapter) get(ctx context.Context, op, path string, result interface{}) error {
	return a.breaker.Do(op, func() error {
		return a.client.Get(ctx, op, path, result)
	})
}

func (a *Adapter) post(ctx context.Context, op, path string, body, result interface{}) error {
	return a.breaker.Do(op, func() error {
		return a.client.Post(ctx, op, path, body, result)
	})
}

// ListInbox returns up to limit inbox messages, newest first.
func (a *Adapter) ListInbox(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("$top", strconv.Itoa(limit))
	q.Set("$select", selectFields)
	q.Set("$orderby", "receivedDateTime DESC")

	var list messageList
	if err := a.get(ctx, "listing inbox", "/me/mailFolders/inbox/messages?"+q.Encode(), &list); err != nil {
		return nil, err
	}
	return toMessages(list.Value), nil
}

// ListDrafts returns the most recently edited drafts.
func (a *Adapter) ListDrafts(ctx context.Context) ([]model.Message, error) {
	q := url.Values{}
	q.Set("$top", strconv.Itoa(draftsPageSize))
	q.Set("$select", selectFields)
	q.Set("$orderby", "lastModifiedDateTime DESC")

	var list messageList
	if err := a.get(ctx, "listing drafts", "/me/mailFolders/drafts/messages?"+q.Encode(), &list); err != nil {
		return nil, err
	}
	msgs := toMessages(list.Value)
	for i := range msgs {
		msgs[i].IsDraft = true
	}
	return msgs, nil
}

// GetMessage fetches one message by id.
func (a *Adapter) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var gm graphMessage
	if err := a.get(ctx, "getting message", "/me/messages/"+url.PathEscape(id), &gm); err != nil {
		return nil, err
	}
	msg := toMessage(gm)
	return &msg, nil
}

// SendMessage sends a new message and keeps a copy in Sent Items.
func (a *Adapter) SendMessage(ctx context.Context, to []model.Address, subject, body string) error {
	req := sendMailRequest{
		Message:         outgoing(to, subject, body),
		SaveToSentItems: true,
	}
	return a.post(ctx, "sending message", "/me/sendMail", req, nil)
}

// SendReply uses the reply action so Graph keeps the conversation id.
// The overriding message carries the normalized subject and body.
func (a *Adapter) SendReply(ctx context.Context, original model.Message, body, subject string) error {
	if subject == "" {
		subject = original.Subject
	}
	req := replyRequest{
		Message: outgoingMessage{
			Subject: source.EnsureReplySubject(subject),
			Body:    bodyOf(body),
		},
	}
	path := "/me/messages/" + url.PathEscape(original.ID) + "/reply"
	return a.post(ctx, "sending reply", path, req, nil)
}

// CreateDraft saves a message in the drafts folder.
func (a *Adapter) CreateDraft(ctx context.Context, to []model.Address, subject, body string) (*model.Message, error) {
	var gm graphMessage
	if err := a.post(ctx, "creating draft", "/me/messages", outgoing(to, subject, body), &gm); err != nil {
		return nil, err
	}
	msg := toMessage(gm)
	msg.IsDraft = true
	return &msg, nil
}

// Profile returns the signed-in user.
func (a *Adapter) Profile(ctx context.Context) (*model.UserInfo, error) {
	var m me
	if err := a.get(ctx, "getting profile", "/me", &m); err != nil {
		return nil, err
	}
	email := m.Mail
	if email == "" {
		email = m.UserPrincipalName
	}
	return &model.UserInfo{Email: email, Name: m.DisplayName}, nil
}

func outgoing(to []model.Address, subject, body string) outgoingMessage {
	recipients := make([]recipient, 0, len(to))
	for _, addr := range to {
		recipients = append(recipients, recipient{
			EmailAddress: emailAddress{Name: addr.Name, Address: addr.Email},
		})
	}
	return outgoingMessage{
		Subject:      subject,
		Body:         bodyOf(body),
		ToRecipients: recipients,
	}
}

func bodyOf(content string) *itemBody {
	contentType := "Text"
	if strings.Contains(content, "<") && strings.Contains(content, ">") {
		contentType = "HTML"
	}
	return &itemBody{ContentType: contentType, Content: content}
}

func toMessages(in []graphMessage) []model.Message {
	out := make([]model.Message, 0, len(in))
	for _, gm := range in {
		out = append(out, toMessage(gm))
	}
	return out
}

func toMessage(gm graphMessage) model.Message {
	var from model.Address
	if gm.From != nil {
		from = toAddress(gm.From.EmailAddress)
	} else {
		from = source.ParseAddress("")
	}

	to := make([]model.Address, 0, len(gm.ToRecipients))
	for _, r := range gm.ToRecipients {
		to = append(to, toAddress(r.EmailAddress))
	}

	var body string
	if gm.Body != nil {
		body = gm.Body.Content
	}

	received, _ := time.Parse(time.RFC3339, gm.ReceivedDateTime)

	return model.Message{
		ID:               gm.ID,
		Subject:          source.SubjectOrPlaceholder(gm.Subject),
		From:             from,
		To:               to,
		Body:             body,
		BodyPreview:      source.Preview(gm.BodyPreview, body),
		ReceivedDateTime: source.TimestampOrNow(received).UTC(),
		IsDraft:          gm.IsDraft,
		ConversationID:   gm.ConversationID,
	}
}

func toAddress(e emailAddress) model.Address {
	if e.Name == "" {
		return source.ParseAddress(e.Address)
	}
	return model.Address{Name: e.Name, Email: e.Address}
}
