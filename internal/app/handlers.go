package app

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-assistant/internal/ai"
	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/auth"
	"github.com/nhle/mail-assistant/internal/credential"
	"github.com/nhle/mail-assistant/internal/mail"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/placeholder"
	"github.com/nhle/mail-assistant/internal/store"
)

// Handlers is the operation surface the terminal UI and the one-shot
// CLI call into. Long-lived services are built once by main and passed
// in; Handlers only routes and logs.
type Handlers struct {
	cfg       *model.AppConfig
	cfgPath   string
	store     store.Store
	mail      *mail.Service
	assistant *ai.Assistant
	secrets   credential.SecretStore
	auth      *auth.Manager
	log       zerolog.Logger
}

// Deps groups the services Handlers routes to.
type Deps struct {
	Config     *model.AppConfig
	ConfigPath string
	Store      store.Store
	Mail       *mail.Service
	Assistant  *ai.Assistant
	Secrets    credential.SecretStore
	Auth       *auth.Manager
}

// NewHandlers wires the handler surface.
func NewHandlers(d Deps, log zerolog.Logger) *Handlers {
	cfg := d.Config
	if cfg == nil {
		cfg = model.DefaultAppConfig()
	}
	return &Handlers{
		cfg:       cfg,
		cfgPath:   d.ConfigPath,
		store:     d.Store,
		mail:      d.Mail,
		assistant: d.Assistant,
		secrets:   d.Secrets,
		auth:      d.Auth,
		log:       log.With().Str("component", "handlers").Logger(),
	}
}

// fail logs err under op and returns it unchanged.
func (h *Handlers) fail(op string, err error) error {
	h.log.Error().Err(err).Str("op", op).Str("kind", apperr.KindOf(err).String()).Msg(apperr.Message(err))
	return err
}

// === Mail ===

// FetchInbox returns the newest inbox messages. A non-positive limit uses
// the configured page size.
func (h *Handlers) FetchInbox(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = h.cfg.Mailbox.PageSize
	}
	msgs, err := h.mail.FetchInbox(ctx, limit)
	if err != nil {
		return nil, h.fail("fetch_inbox", err)
	}
	return msgs, nil
}

// GetMessage returns the message or nil when it is unavailable.
func (h *Handlers) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	msg, err := h.mail.GetMessage(ctx, id)
	if err != nil {
		return nil, h.fail("get_message", err)
	}
	return msg, nil
}

func (h *Handlers) GetDrafts(ctx context.Context) ([]model.Message, error) {
	msgs, err := h.mail.GetDrafts(ctx)
	if err != nil {
		return nil, h.fail("get_drafts", err)
	}
	return msgs, nil
}

// Sync refreshes the inbox cache and reports how many messages were written.
func (h *Handlers) Sync(ctx context.Context) (int, error) {
	n, err := h.mail.Sync(ctx)
	if err != nil {
		return 0, h.fail("sync", err)
	}
	return n, nil
}

// LastSync returns the time of the last successful sync, if any.
func (h *Handlers) LastSync(ctx context.Context) (time.Time, bool, error) {
	t, ok, err := h.mail.LastSync(ctx)
	if err != nil {
		return time.Time{}, false, h.fail("last_sync", err)
	}
	return t, ok, nil
}

func (h *Handlers) SendReply(ctx context.Context, id, body, subject string) error {
	if err := h.mail.SendReply(ctx, id, body, subject); err != nil {
		return h.fail("send_reply", err)
	}
	return nil
}

func (h *Handlers) SendMessage(ctx context.Context, to []model.Address, subject, body string) error {
	if err := h.mail.SendMessage(ctx, to, subject, body); err != nil {
		return h.fail("send_message", err)
	}
	return nil
}

func (h *Handlers) CreateDraft(ctx context.Context, to []model.Address, subject, body string) (*model.Message, error) {
	draft, err := h.mail.CreateDraft(ctx, to, subject, body)
	if err != nil {
		return nil, h.fail("create_draft", err)
	}
	return draft, nil
}

// SearchMessages searches the local cache.
func (h *Handlers) SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error) {
	msgs, err := h.mail.Search(ctx, query, limit)
	if err != nil {
		return nil, h.fail("search", err)
	}
	return msgs, nil
}

func (h *Handlers) GetConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	msgs, err := h.mail.Conversation(ctx, conversationID)
	if err != nil {
		return nil, h.fail("conversation", err)
	}
	return msgs, nil
}

// ClearCache drops every cached message.
func (h *Handlers) ClearCache(ctx context.Context) error {
	if err := h.mail.ClearCache(ctx); err != nil {
		return h.fail("clear_cache", err)
	}
	return nil
}

// === Assistant ===

// ImproveDraft streams an improved draft to dest.
func (h *Handlers) ImproveDraft(ctx context.Context, dest *ai.Destination, content, subject string) error {
	if err := h.assistant.ImproveDraft(ctx, dest, content, subject); err != nil {
		return h.fail("improve_draft", err)
	}
	return nil
}

// GenerateResponse streams a reply to the message with the given id.
func (h *Handlers) GenerateResponse(ctx context.Context, dest *ai.Destination, id string, tone model.ResponseTone) error {
	msg, err := h.mail.GetMessage(ctx, id)
	if err != nil {
		return h.fail("generate_response", err)
	}
	if msg == nil {
		return h.fail("generate_response", apperr.Newf(apperr.NotFound, "message %s not found", id))
	}
	if err := h.assistant.GenerateResponse(ctx, dest, *msg, tone); err != nil {
		return h.fail("generate_response", err)
	}
	return nil
}

func (h *Handlers) AnalyzeTone(ctx context.Context, content string) (*model.ToneAnalysis, error) {
	analysis, err := h.assistant.AnalyzeTone(ctx, content)
	if err != nil {
		return nil, h.fail("analyze_tone", err)
	}
	return analysis, nil
}

// === API key ===

// SetAPIKey stores key and drops the cached completion client so the
// next request uses it.
func (h *Handlers) SetAPIKey(key string) error {
	if err := credential.SetAPIKey(h.secrets, key); err != nil {
		return h.fail("set_api_key", err)
	}
	h.assistant.Reset()
	h.log.Info().Msg("API key updated")
	return nil
}

// GetAPIKey returns the stored key masked for display, or "" when unset.
func (h *Handlers) GetAPIKey() (string, error) {
	key, ok, err := credential.GetAPIKey(h.secrets)
	if err != nil {
		return "", h.fail("get_api_key", err)
	}
	if !ok {
		return "", nil
	}
	return credential.MaskKey(key), nil
}

func (h *Handlers) DeleteAPIKey() error {
	if err := credential.DeleteAPIKey(h.secrets); err != nil {
		return h.fail("delete_api_key", err)
	}
	h.assistant.Reset()
	return nil
}

// ValidateAPIKey reports whether key is accepted by the completion provider.
func (h *Handlers) ValidateAPIKey(ctx context.Context, key string) bool {
	return h.assistant.ValidateAPIKey(ctx, strings.TrimSpace(key))
}

// === Templates ===

func (h *Handlers) ListTemplates(ctx context.Context) ([]model.Template, error) {
	tpls, err := h.store.ListTemplates(ctx)
	if err != nil {
		return nil, h.fail("list_templates", err)
	}
	return tpls, nil
}

// CreateTemplate stores a new template. When in.Variables is nil the
// placeholders found in the subject and body are used.
func (h *Handlers) CreateTemplate(ctx context.Context, in model.TemplateInput) (*model.Template, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, h.fail("create_template", apperr.New(apperr.ValidationFailed, "template name must not be empty"))
	}
	if in.Variables == nil {
		in.Variables = placeholder.Extract(in.Subject, in.Body)
	} else {
		in.Variables = placeholder.Normalize(in.Variables)
	}
	tpl, err := h.store.CreateTemplate(ctx, in)
	if err != nil {
		return nil, h.fail("create_template", err)
	}
	return tpl, nil
}

// UpdateTemplate applies the supplied fields of patch.
func (h *Handlers) UpdateTemplate(ctx context.Context, id string, patch model.TemplatePatch) (*model.Template, error) {
	if patch.Variables != nil {
		vars := placeholder.Normalize(*patch.Variables)
		patch.Variables = &vars
	}
	tpl, err := h.store.UpdateTemplate(ctx, id, patch)
	if err != nil {
		return nil, h.fail("update_template", err)
	}
	return tpl, nil
}

func (h *Handlers) DeleteTemplate(ctx context.Context, id string) error {
	if err := h.store.DeleteTemplate(ctx, id); err != nil {
		return h.fail("delete_template", err)
	}
	return nil
}

// ApplyTemplate fills the template's placeholders from values. Every
// placeholder must have a value.
func (h *Handlers) ApplyTemplate(ctx context.Context, id string, values map[string]string) (subject, body string, err error) {
	tpl, err := h.store.GetTemplate(ctx, id)
	if err != nil {
		return "", "", h.fail("apply_template", err)
	}
	if tpl == nil {
		return "", "", h.fail("apply_template", apperr.Newf(apperr.NotFound, "template %s not found", id))
	}
	if missing := placeholder.Missing(values, tpl.Subject, tpl.Body); len(missing) > 0 {
		return "", "", h.fail("apply_template", apperr.Newf(apperr.ValidationFailed,
			"missing values for %s", strings.Join(missing, ", ")))
	}
	return placeholder.Apply(tpl.Subject, values), placeholder.Apply(tpl.Body, values), nil
}

// === Account ===

// Login signs in with the device flow. prompt receives the code to show.
func (h *Handlers) Login(ctx context.Context, prompt auth.PromptFunc) (*model.UserInfo, error) {
	info, err := h.auth.Login(ctx, prompt, h.mail.Profile)
	if err != nil {
		return nil, h.fail("login", err)
	}
	return info, nil
}

// Logout forgets the mailbox token and clears the message cache.
func (h *Handlers) Logout(ctx context.Context) error {
	if err := h.auth.Logout(); err != nil {
		return h.fail("logout", err)
	}
	if err := h.mail.ClearCache(ctx); err != nil {
		return h.fail("logout", err)
	}
	return nil
}

func (h *Handlers) IsAuthenticated() bool {
	return h.auth.IsAuthenticated()
}

// UserInfo returns the signed-in user or nil.
func (h *Handlers) UserInfo() (*model.UserInfo, error) {
	info, err := h.auth.UserInfo()
	if err != nil {
		return nil, h.fail("user_info", err)
	}
	return info, nil
}

// Provider names the configured mailbox provider.
func (h *Handlers) Provider() string {
	return h.cfg.Mailbox.Provider
}

// === Preferences ===

func (h *Handlers) Preferences() model.Preferences {
	return h.cfg.Preferences
}

// SetPreferences validates p, applies it and writes the config file.
func (h *Handlers) SetPreferences(p model.Preferences) error {
	switch p.Theme {
	case "dark", "light":
	default:
		return h.fail("set_preferences", apperr.Newf(apperr.ValidationFailed, "unknown theme %q", p.Theme))
	}
	if p.SyncIntervalMin < 1 {
		return h.fail("set_preferences", apperr.New(apperr.ValidationFailed, "sync interval must be at least one minute"))
	}

	h.cfg.Preferences = p
	if h.cfgPath == "" {
		return nil
	}
	if err := model.SaveConfig(h.cfgPath, h.cfg); err != nil {
		return h.fail("set_preferences", apperr.Wrap(apperr.StorageUnavailable, "saving preferences", err))
	}
	return nil
}

// SyncInterval is the auto-sync period from preferences.
func (h *Handlers) SyncInterval() time.Duration {
	return time.Duration(h.cfg.Preferences.SyncIntervalMin) * time.Minute
}
