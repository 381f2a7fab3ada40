package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/model"
)

// Request is a single-turn completion request.
type Request struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// Provider is a completion backend bound to one API key.
type Provider interface {
	// Stream sends req and calls onText for every text delta in arrival
	// order. An error returned by onText aborts the stream.
	Stream(ctx context.Context, req Request, onText func(chunk string) error) error

	// Complete sends req and returns the whole response text.
	Complete(ctx context.Context, req Request) (string, error)
}

// Factory builds a Provider for an API key.
type Factory func(apiKey string) Provider

// NewFactory returns the factory for the configured AI provider.
// httpClient may be nil.
func NewFactory(cfg model.AIConfig, httpClient *http.Client) (Factory, error) {
	switch cfg.Provider {
	case "", model.AIProviderAnthropic:
		return func(apiKey string) Provider {
			return NewAnthropic(apiKey, cfg.BaseURL, httpClient)
		}, nil
	case model.AIProviderOpenAI:
		return func(apiKey string) Provider {
			return NewOpenAI(apiKey, cfg.BaseURL, httpClient)
		}, nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// statusError classifies a failed completion response.
func statusError(op string, status int, detail string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.Wrap(apperr.AuthenticationFailed, op,
			fmt.Errorf("API error (%d): %s", status, detail))
	case http.StatusBadRequest:
		return apperr.Wrap(apperr.ValidationFailed, op,
			fmt.Errorf("API error (%d): %s", status, detail))
	default:
		return apperr.Wrap(apperr.ProviderUnavailable, op,
			fmt.Errorf("API error (%d): %s", status, detail))
	}
}
