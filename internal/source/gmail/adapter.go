package gmail

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/source"
)

// See https://developers.google.com/gmail/api/reference/quota
const (
	quotaUnitsMessagesList = 5
	quotaUnitsMessagesGet  = 5
	quotaUnitsMessagesSend = 100
	quotaUnitsDraftsList   = 5
	quotaUnitsDraftsGet    = 5
	quotaUnitsDraftsCreate = 10
	quotaUnitsGetProfile   = 1

	defaultQuotaUnitsPerSecond = 250

	fetchConcurrency = 8
	draftsPageSize   = 50
	userID           = "me"
)

// Options configures an Adapter.
type Options struct {
	// QuotaUnitsPerSecond caps API usage. Zero selects the Gmail default.
	QuotaUnitsPerSecond int

	// Endpoint overrides the API base URL.
	Endpoint string
}

// Adapter implements source.Gateway over the Gmail REST API.
type Adapter struct {
	svc     *gmailapi.Service
	limiter *rate.Limiter
	breaker *source.Breaker
	log     zerolog.Logger
}

var _ source.Gateway = (*Adapter)(nil)

// New creates a Gmail adapter that issues requests through httpClient,
// which must already carry OAuth credentials.
func New(
	ctx context.Context,
	httpClient *http.Client,
	opts Options,
	log zerolog.Logger,
) (*Adapter, error) {
	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := gmailapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating gmail service")
	}

	units := opts.QuotaUnitsPerSecond
	if units <= 0 {
		units = defaultQuotaUnitsPerSecond
	}

	log = log.With().Str("component", "gmail").Logger()
	return &Adapter{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(float64(units)*0.8), units),
		breaker: source.NewBreaker("gmail-api", log),
		log:     log,
	}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return model.ProviderGmail
}

// call waits for quota, then runs fn under the circuit breaker.
func (a *Adapter) call(ctx context.Context, op string, units int, fn func() error) error {
	if err := a.limiter.WaitN(ctx, units); err != nil {
		return apperr.Wrap(apperr.ProviderUnavailable, op, err)
	}
	return a.breaker.Do(op, func() error {
		if err := fn(); err != nil {
			return classify(op, err)
		}
		return nil
	})
}

// classify maps a Gmail API failure onto an apperr kind.
func classify(op string, err error) error {
	if apiErr, ok := errors.Cause(err).(*googleapi.Error); ok {
		return source.StatusError(model.ProviderGmail, op, apiErr.Code, apiErr.Message)
	}
	return source.TransportError(op, err)
}

// ListInbox lists the newest inbox messages and fetches each in raw form.
func (a *Adapter) ListInbox(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var resp *gmailapi.ListMessagesResponse
	err := a.call(ctx, "listing inbox", quotaUnitsMessagesList, func() error {
		var err error
		resp, err = a.svc.Users.Messages.List(userID).
			LabelIds("INBOX").
			MaxResults(int64(limit)).
			Context(ctx).
			Do()
		return errors.Wrap(err, "listing gmail messages")
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return a.fetchAll(ctx, ids)
}

// fetchAll retrieves messages concurrently, keeping the order of ids.
// Messages deleted after the listing are skipped.
func (a *Adapter) fetchAll(ctx context.Context, ids []string) ([]model.Message, error) {
	msgs := make([]model.Message, len(ids))
	found := make([]bool, len(ids))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(fetchConcurrency)
	for i, id := range ids {
		i, id := i, id
		grp.Go(func() error {
			raw, err := a.getRaw(gctx, id)
			if apperr.IsKind(err, apperr.NotFound) {
				a.log.Debug().Str("message_id", id).Msg("message vanished before fetch, skipping")
				return nil
			}
			if err != nil {
				return err
			}
			msg, err := toMessage(raw, false)
			if err != nil {
				return err
			}
			msgs[i], found[i] = msg, true
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return compact(msgs, found), nil
}

// compact keeps the messages whose fetch succeeded.
func compact(msgs []model.Message, found []bool) []model.Message {
	out := msgs[:0]
	for i, m := range msgs {
		if found[i] {
			out = append(out, m)
		}
	}
	return out
}

func (a *Adapter) getRaw(ctx context.Context, id string) (*gmailapi.Message, error) {
	var msg *gmailapi.Message
	err := a.call(ctx, "getting message", quotaUnitsMessagesGet, func() error {
		var err error
		msg, err = a.svc.Users.Messages.Get(userID, id).Format("raw").Context(ctx).Do()
		return errors.Wrapf(err, "getting message %v from gmail", id)
	})
	return msg, err
}

// ListDrafts returns up to 50 drafts.
func (a *Adapter) ListDrafts(ctx context.Context) ([]model.Message, error) {
	var resp *gmailapi.ListDraftsResponse
	err := a.call(ctx, "listing drafts", quotaUnitsDraftsList, func() error {
		var err error
		resp, err = a.svc.Users.Drafts.List(userID).MaxResults(draftsPageSize).Context(ctx).Do()
		return errors.Wrap(err, "listing gmail drafts")
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]model.Message, len(resp.Drafts))
	found := make([]bool, len(resp.Drafts))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(fetchConcurrency)
	for i, d := range resp.Drafts {
		i := i
		draftID := d.Id
		grp.Go(func() error {
			msg, err := a.getDraft(gctx, draftID)
			if apperr.IsKind(err, apperr.NotFound) {
				a.log.Debug().Str("draft_id", draftID).Msg("draft vanished before fetch, skipping")
				return nil
			}
			if err != nil {
				return err
			}
			msgs[i], found[i] = *msg, true
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return compact(msgs, found), nil
}

func (a *Adapter) getDraft(ctx context.Context, draftID string) (*model.Message, error) {
	var draft *gmailapi.Draft
	err := a.call(ctx, "getting draft", quotaUnitsDraftsGet, func() error {
		var err error
		draft, err = a.svc.Users.Drafts.Get(userID, draftID).Format("raw").Context(ctx).Do()
		return errors.Wrapf(err, "getting draft %v from gmail", draftID)
	})
	if err != nil {
		return nil, err
	}
	if draft.Message == nil {
		return nil, apperr.Newf(apperr.NotFound, "draft %s has no message", draftID)
	}
	msg, err := toMessage(draft.Message, true)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessage fetches one message by id.
func (a *Adapter) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	raw, err := a.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	msg, err := toMessage(raw, false)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendMessage sends a new message.
func (a *Adapter) SendMessage(ctx context.Context, to []model.Address, subject, body string) error {
	return a.send(ctx, &gmailapi.Message{}, source.Outgoing{
		To:      to,
		Subject: subject,
		Body:    body,
	})
}

// SendReply answers original in its thread. Gmail groups a reply with
// its thread only when the ids match and the subject is preserved, so
// the original Message-ID is looked up for the reference headers.
func (a *Adapter) SendReply(ctx context.Context, original model.Message, body, subject string) error {
	if subject == "" {
		subject = original.Subject
	}

	out := source.Outgoing{
		To:        []model.Address{original.From},
		Subject:   source.EnsureReplySubject(subject),
		Body:      body,
		InReplyTo: a.messageID(ctx, original.ID),
	}
	return a.send(ctx, &gmailapi.Message{ThreadId: original.ConversationID}, out)
}

// messageID returns the RFC 5322 Message-ID of a stored message, or ""
// when it cannot be read.
func (a *Adapter) messageID(ctx context.Context, id string) string {
	var meta *gmailapi.Message
	err := a.call(ctx, "getting message headers", quotaUnitsMessagesGet, func() error {
		var err error
		meta, err = a.svc.Users.Messages.Get(userID, id).
			Format("metadata").
			MetadataHeaders("Message-ID").
			Context(ctx).
			Do()
		return errors.Wrapf(err, "getting headers of %v", id)
	})
	if err != nil || meta.Payload == nil {
		a.log.Debug().Err(err).Str("message_id", id).Msg("reply sent without reference headers")
		return ""
	}
	for _, h := range meta.Payload.Headers {
		if strings.EqualFold(h.Name, "Message-ID") {
			return strings.Trim(strings.TrimSpace(h.Value), "<>")
		}
	}
	return ""
}

func (a *Adapter) send(ctx context.Context, envelope *gmailapi.Message, out source.Outgoing) error {
	raw, err := source.ComposeMIME(out)
	if err != nil {
		return apperr.Wrap(apperr.ValidationFailed, "composing message", err)
	}
	envelope.Raw = base64.URLEncoding.EncodeToString(raw)

	return a.call(ctx, "sending message", quotaUnitsMessagesSend, func() error {
		_, err := a.svc.Users.Messages.Send(userID, envelope).Context(ctx).Do()
		return errors.Wrap(err, "sending gmail message")
	})
}

// CreateDraft saves a draft and returns it as stored by Gmail.
func (a *Adapter) CreateDraft(ctx context.Context, to []model.Address, subject, body string) (*model.Message, error) {
	raw, err := source.ComposeMIME(source.Outgoing{To: to, Subject: subject, Body: body})
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationFailed, "composing draft", err)
	}

	var created *gmailapi.Draft
	err = a.call(ctx, "creating draft", quotaUnitsDraftsCreate, func() error {
		var err error
		created, err = a.svc.Users.Drafts.Create(userID, &gmailapi.Draft{
			Message: &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString(raw)},
		}).Context(ctx).Do()
		return errors.Wrap(err, "creating gmail draft")
	})
	if err != nil {
		return nil, err
	}
	return a.getDraft(ctx, created.Id)
}

// Profile returns the mailbox owner's address.
func (a *Adapter) Profile(ctx context.Context) (*model.UserInfo, error) {
	var p *gmailapi.Profile
	err := a.call(ctx, "getting profile", quotaUnitsGetProfile, func() error {
		var err error
		p, err = a.svc.Users.GetProfile(userID).Context(ctx).Do()
		return errors.Wrap(err, "getting gmail profile")
	})
	if err != nil {
		return nil, err
	}
	name, _, _ := strings.Cut(p.EmailAddress, "@")
	return &model.UserInfo{Email: p.EmailAddress, Name: name}, nil
}

// toMessage normalizes a raw-format Gmail message.
func toMessage(m *gmailapi.Message, isDraft bool) (model.Message, error) {
	raw, err := decodeRaw(m.Raw)
	if err != nil {
		return model.Message{}, apperr.Wrap(apperr.ParseFailure, "decoding message "+m.Id, err)
	}
	parsed := source.ParseMIME(raw)

	received := parsed.Date
	if received.IsZero() && m.InternalDate > 0 {
		received = time.UnixMilli(m.InternalDate)
	}

	for _, label := range m.LabelIds {
		if label == "DRAFT" {
			isDraft = true
		}
	}

	body := parsed.Body()
	return model.Message{
		ID:               m.Id,
		Subject:          source.SubjectOrPlaceholder(parsed.Subject),
		From:             parsed.From,
		To:               parsed.To,
		Body:             body,
		BodyPreview:      source.Preview(m.Snippet, body),
		ReceivedDateTime: source.TimestampOrNow(received).UTC(),
		IsDraft:          isDraft,
		ConversationID:   m.ThreadId,
	}, nil
}

func decodeRaw(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decoding base64url payload")
	}
	return b, nil
}
