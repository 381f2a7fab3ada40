// Package mail combines a mailbox gateway with the local cache. It owns
// the freshness policy for each read: the inbox prefers the provider,
// single messages and drafts prefer the cache.
package mail

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/metrics"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/source"
	"github.com/nhle/mail-assistant/internal/store"
)

const (
	// DefaultInboxLimit is the page size for inbox reads and sync.
	DefaultInboxLimit = 50

	draftsLimit        = 50
	defaultSearchLimit = 20
)

// Service is the cache-backed mail API used by the handlers.
type Service struct {
	store   store.Store
	gateway source.Gateway
	log     zerolog.Logger
	now     func() time.Time
}

// NewService creates a Service over an initialized store and a gateway.
func NewService(s store.Store, gw source.Gateway, log zerolog.Logger) *Service {
	return &Service{
		store:   s,
		gateway: gw,
		log:     log.With().Str("component", "mail").Logger(),
		now:     time.Now,
	}
}

// Provider returns the gateway's provider name.
func (s *Service) Provider() string {
	return s.gateway.Name()
}

// timed runs fn and records its latency against the gateway.
func (s *Service) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveGateway(s.gateway.Name(), op, err, time.Since(start))
	return err
}

// FetchInbox returns the newest inbox messages from the provider and
// writes them through to the cache. When the provider fails, cached
// non-draft messages are returned instead; with an empty cache the
// provider error is returned.
func (s *Service) FetchInbox(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}

	var msgs []model.Message
	err := s.timed("list_inbox", func() error {
		var err error
		msgs, err = s.gateway.ListInbox(ctx, limit)
		return err
	})
	if err == nil {
		if err := s.store.UpsertMessages(ctx, msgs); err != nil {
			return nil, err
		}
		return msgs, nil
	}

	s.log.Warn().Err(err).Msg("inbox fetch failed, falling back to cache")
	cached, cacheErr := s.store.GetMessages(ctx, limit, false)
	if cacheErr != nil {
		s.log.Warn().Err(cacheErr).Msg("reading cached inbox")
		return nil, err
	}
	if len(cached) == 0 {
		return nil, err
	}
	metrics.CacheFallbacks.WithLabelValues("inbox").Inc()
	return cached, nil
}

// GetMessage returns a cached message, fetching and caching it on a
// miss. A message the provider cannot return is reported as absent
// (nil, nil).
func (s *Service) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	cached, err := s.store.GetMessageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.RecordLookup("message", cached != nil)
	if cached != nil {
		return cached, nil
	}

	var msg *model.Message
	err = s.timed("get_message", func() error {
		var err error
		msg, err = s.gateway.GetMessage(ctx, id)
		return err
	})
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", id).Msg("message not available from provider")
		return nil, nil
	}
	if msg == nil {
		return nil, nil
	}

	if err := s.store.UpsertMessages(ctx, []model.Message{*msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// GetDrafts returns cached drafts. The provider is consulted only when
// the cache holds none.
func (s *Service) GetDrafts(ctx context.Context) ([]model.Message, error) {
	cached, err := s.store.GetMessages(ctx, draftsLimit, true)
	if err != nil {
		return nil, err
	}
	metrics.RecordLookup("drafts", len(cached) > 0)
	if len(cached) > 0 {
		return cached, nil
	}

	var drafts []model.Message
	err = s.timed("list_drafts", func() error {
		var err error
		drafts, err = s.gateway.ListDrafts(ctx)
		return err
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("drafts fetch failed, falling back to cache")
		fallback, cacheErr := s.store.GetMessages(ctx, draftsLimit, true)
		if cacheErr == nil && len(fallback) > 0 {
			metrics.CacheFallbacks.WithLabelValues("drafts").Inc()
			return fallback, nil
		}
		return nil, err
	}

	for i := range drafts {
		drafts[i].IsDraft = true
	}
	if err := s.store.UpsertMessages(ctx, drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

// Sync fetches the inbox unconditionally, writes it through and records
// the sync time. It returns the number of messages written.
func (s *Service) Sync(ctx context.Context) (int, error) {
	var msgs []model.Message
	err := s.timed("sync", func() error {
		var err error
		msgs, err = s.gateway.ListInbox(ctx, DefaultInboxLimit)
		return err
	})
	if err != nil {
		return 0, err
	}

	if err := s.store.UpsertMessages(ctx, msgs); err != nil {
		return 0, err
	}

	stamp := s.now().UTC().Format(time.RFC3339)
	if err := s.store.SetSyncMetadata(ctx, store.MetaLastSync, stamp); err != nil {
		return 0, err
	}

	metrics.SyncedMessages.Add(float64(len(msgs)))
	s.log.Info().Int("count", len(msgs)).Msg("inbox synced")
	return len(msgs), nil
}

// LastSync returns the time of the last successful sync. ok is false
// when the inbox has never been synced.
func (s *Service) LastSync(ctx context.Context) (time.Time, bool, error) {
	value, ok, err := s.store.GetSyncMetadata(ctx, store.MetaLastSync)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, apperr.Wrap(apperr.ParseFailure, "reading last sync time", err)
	}
	return t, true, nil
}

// SendReply answers a cached message. The original is never fetched
// from the provider; replying to an uncached id fails with NotFound.
func (s *Service) SendReply(ctx context.Context, id, body, subject string) error {
	if strings.TrimSpace(body) == "" {
		return apperr.New(apperr.ValidationFailed, "reply body is empty")
	}

	original, err := s.store.GetMessageByID(ctx, id)
	if err != nil {
		return err
	}
	if original == nil {
		return apperr.New(apperr.NotFound, "original message not found")
	}

	return s.timed("send_reply", func() error {
		return s.gateway.SendReply(ctx, *original, body, subject)
	})
}

// SendMessage sends a new message.
func (s *Service) SendMessage(ctx context.Context, to []model.Address, subject, body string) error {
	if len(to) == 0 {
		return apperr.New(apperr.ValidationFailed, "at least one recipient is required")
	}
	return s.timed("send_message", func() error {
		return s.gateway.SendMessage(ctx, to, subject, body)
	})
}

// CreateDraft saves a draft with the provider and caches the result.
func (s *Service) CreateDraft(ctx context.Context, to []model.Address, subject, body string) (*model.Message, error) {
	var draft *model.Message
	err := s.timed("create_draft", func() error {
		var err error
		draft, err = s.gateway.CreateDraft(ctx, to, subject, body)
		return err
	})
	if err != nil {
		return nil, err
	}

	draft.IsDraft = true
	if err := s.store.UpsertMessages(ctx, []model.Message{*draft}); err != nil {
		return nil, err
	}
	return draft, nil
}

// Search matches cached messages by subject, preview and sender name.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return s.store.SearchMessages(ctx, query, limit)
}

// Conversation returns the cached messages of one conversation, oldest
// first.
func (s *Service) Conversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	if conversationID == "" {
		return nil, apperr.New(apperr.ValidationFailed, "conversation id is required")
	}
	return s.store.GetConversation(ctx, conversationID)
}

// ClearCache drops every cached message.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.store.ClearMessages(ctx)
}

// Profile returns the mailbox owner.
func (s *Service) Profile(ctx context.Context) (*model.UserInfo, error) {
	var info *model.UserInfo
	err := s.timed("profile", func() error {
		var err error
		info, err = s.gateway.Profile(ctx)
		return err
	})
	return info, err
}
