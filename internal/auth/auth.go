// Package auth signs the user in to their mailbox with the OAuth 2.0
// device authorization flow and keeps the token in the secret store.
package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/credential"
	"github.com/nhle/mail-assistant/internal/model"
)

const userInfoKey = "mailbox-user-info"

var googleEndpoint = oauth2.Endpoint{
	AuthURL:       "https://accounts.google.com/o/oauth2/auth",
	TokenURL:      "https://oauth2.googleapis.com/token",
	DeviceAuthURL: "https://oauth2.googleapis.com/device/code",
	AuthStyle:     oauth2.AuthStyleInParams,
}

var (
	gmailScopes = []string{
		"https://www.googleapis.com/auth/gmail.modify",
		"https://www.googleapis.com/auth/gmail.send",
		"email",
	}
	graphScopes = []string{
		"offline_access",
		"https://graph.microsoft.com/User.Read",
		"https://graph.microsoft.com/Mail.ReadWrite",
		"https://graph.microsoft.com/Mail.Send",
	}
)

// DeviceCode is what the user needs to approve a login on another device.
type DeviceCode struct {
	VerificationURI string
	UserCode        string
}

// PromptFunc shows a device code to the user.
type PromptFunc func(DeviceCode)

// ProfileFunc looks up the signed-in mailbox owner.
type ProfileFunc func(ctx context.Context) (*model.UserInfo, error)

// Manager owns the mailbox OAuth token.
type Manager struct {
	config  *oauth2.Config
	secrets credential.SecretStore
	log     zerolog.Logger

	mu     sync.Mutex
	source oauth2.TokenSource
	last   *oauth2.Token
}

// NewManager builds a Manager for the configured provider.
func NewManager(cfg model.MailboxConfig, secrets credential.SecretStore, log zerolog.Logger) *Manager {
	return &Manager{
		config:  oauthConfig(cfg),
		secrets: secrets,
		log:     log.With().Str("component", "auth").Logger(),
	}
}

func oauthConfig(cfg model.MailboxConfig) *oauth2.Config {
	c := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}
	switch cfg.Provider {
	case model.ProviderGmail:
		c.Endpoint = googleEndpoint
		c.Scopes = gmailScopes
	default:
		tenant := cfg.Tenant
		if tenant == "" {
			tenant = "common"
		}
		c.Endpoint = microsoft.AzureADEndpoint(tenant)
		c.Endpoint.DeviceAuthURL = "https://login.microsoftonline.com/" + tenant + "/oauth2/v2.0/devicecode"
		c.Scopes = graphScopes
	}
	return c
}

// HTTPClient returns a client that authorizes every request with the
// stored token. Requests fail with AuthenticationFailed until Login
// has succeeded.
func (m *Manager) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: m},
	}
}

// Token implements oauth2.TokenSource. Refreshed tokens are written
// back to the secret store.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.source == nil {
		tok, err := m.loadToken()
		if err != nil {
			return nil, err
		}
		if tok == nil {
			return nil, apperr.New(apperr.AuthenticationFailed, "not signed in to a mailbox")
		}
		m.last = tok
		m.source = m.config.TokenSource(context.Background(), tok)
	}

	tok, err := m.source.Token()
	if err != nil {
		return nil, apperr.Wrap(apperr.AuthenticationFailed, "refreshing mailbox token", err)
	}
	if m.last == nil || tok.AccessToken != m.last.AccessToken {
		if err := m.saveToken(tok); err != nil {
			m.log.Warn().Err(err).Msg("refreshed token not persisted")
		}
		m.last = tok
	}
	return tok, nil
}

// Login runs the device flow, stores the token and records the
// mailbox owner reported by profile.
func (m *Manager) Login(ctx context.Context, prompt PromptFunc, profile ProfileFunc) (*model.UserInfo, error) {
	if m.config.ClientID == "" {
		return nil, apperr.New(apperr.NotConfigured, "mailbox client_id is not configured")
	}

	da, err := m.config.DeviceAuth(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "starting device login", err)
	}

	uri := da.VerificationURIComplete
	if uri == "" {
		uri = da.VerificationURI
	}
	m.log.Info().Str("verification_uri", uri).Msg("waiting for device approval")
	if prompt != nil {
		prompt(DeviceCode{VerificationURI: uri, UserCode: da.UserCode})
	}

	tok, err := m.config.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, apperr.Wrap(apperr.AuthenticationFailed, "completing device login", err)
	}

	m.mu.Lock()
	err = m.saveToken(tok)
	if err == nil {
		m.last = tok
		m.source = m.config.TokenSource(context.Background(), tok)
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	info, err := profile(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.saveUserInfo(info); err != nil {
		return nil, err
	}
	m.log.Info().Str("email", info.Email).Msg("signed in")
	return info, nil
}

// Logout forgets the token and the cached user.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.source = nil
	m.last = nil
	if err := m.secrets.Delete(credential.OAuthTokenName); err != nil {
		return apperr.Wrap(apperr.StorageUnavailable, "deleting mailbox token", err)
	}
	if err := m.secrets.Delete(userInfoKey); err != nil {
		return apperr.Wrap(apperr.StorageUnavailable, "deleting user info", err)
	}
	m.log.Info().Msg("signed out")
	return nil
}

// IsAuthenticated reports whether a token is stored.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last != nil {
		return true
	}
	tok, err := m.loadToken()
	return err == nil && tok != nil
}

// UserInfo returns the signed-in user, or nil when nobody is signed in.
func (m *Manager) UserInfo() (*model.UserInfo, error) {
	raw, ok, err := m.secrets.Get(userInfoKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageUnavailable, "reading user info", err)
	}
	if !ok {
		return nil, nil
	}
	var info model.UserInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, apperr.Wrap(apperr.ParseFailure, "decoding user info", err)
	}
	return &info, nil
}

func (m *Manager) loadToken() (*oauth2.Token, error) {
	raw, ok, err := m.secrets.Get(credential.OAuthTokenName)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageUnavailable, "reading mailbox token", err)
	}
	if !ok {
		return nil, nil
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal([]byte(raw), tok); err != nil {
		return nil, apperr.Wrap(apperr.ParseFailure, "decoding mailbox token", err)
	}
	return tok, nil
}

func (m *Manager) saveToken(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return apperr.Wrap(apperr.ParseFailure, "encoding mailbox token", err)
	}
	if err := m.secrets.Set(credential.OAuthTokenName, string(data)); err != nil {
		return apperr.Wrap(apperr.StorageUnavailable, "storing mailbox token", err)
	}
	return nil
}

func (m *Manager) saveUserInfo(info *model.UserInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return apperr.Wrap(apperr.ParseFailure, "encoding user info", err)
	}
	if err := m.secrets.Set(userInfoKey, string(data)); err != nil {
		return apperr.Wrap(apperr.StorageUnavailable, "storing user info", err)
	}
	return nil
}
