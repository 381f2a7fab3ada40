package ai

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/metrics"
	"github.com/nhle/mail-assistant/internal/model"
)

const (
	improveMaxTokens  = 2048
	responseMaxTokens = 1500
	toneMaxTokens     = 800
	validateMaxTokens = 10
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = apperr.New(apperr.NotConfigured,
	"Claude API key not configured. Please add your API key in Settings.")

// KeySource returns the current API key. ok is false when none is set.
type KeySource func() (key string, ok bool, err error)

// Assistant runs drafting and analysis requests against a completion
// provider. The provider client is built on first use and cached until
// Reset.
type Assistant struct {
	keys    KeySource
	factory Factory
	model   string
	log     zerolog.Logger

	mu     sync.Mutex
	client Provider
}

// NewAssistant creates an Assistant. modelName may be empty.
func NewAssistant(keys KeySource, factory Factory, modelName string, log zerolog.Logger) *Assistant {
	if modelName == "" {
		modelName = defaultModel
	}
	return &Assistant{
		keys:    keys,
		factory: factory,
		model:   modelName,
		log:     log.With().Str("component", "assistant").Logger(),
	}
}

// provider returns the cached client, creating it from the current key.
func (a *Assistant) provider() (Provider, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	key, ok, err := a.keys()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConfigured
	}

	a.client = a.factory(key)
	a.log.Debug().Msg("completion client created")
	return a.client, nil
}

// Reset drops the cached client so the next request reads the key again.
func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client = nil
	a.log.Info().Msg("completion client reset")
}

// ImproveDraft streams an improved version of content to dest. It
// returns after the completion event has been emitted.
func (a *Assistant) ImproveDraft(ctx context.Context, dest *Destination, content, subject string) error {
	if strings.TrimSpace(content) == "" {
		return apperr.New(apperr.ValidationFailed, "draft content is empty")
	}
	err := a.stream(ctx, dest, model.ResultImprovement, Request{
		Model:     a.model,
		Prompt:    improvePrompt(content, subject),
		MaxTokens: improveMaxTokens,
	})
	metrics.RecordAssistant("improve_draft", err)
	return err
}

// GenerateResponse streams a reply to msg in the requested tone.
func (a *Assistant) GenerateResponse(ctx context.Context, dest *Destination, msg model.Message, tone model.ResponseTone) error {
	if !tone.Valid() {
		return apperr.Newf(apperr.ValidationFailed, "unknown response tone %q", tone)
	}
	a.log.Info().Str("tone", string(tone)).Str("message_id", msg.ID).Msg("generating response")
	err := a.stream(ctx, dest, model.ResultResponse, Request{
		Model:     a.model,
		Prompt:    responsePrompt(msg, tone),
		MaxTokens: responseMaxTokens,
	})
	metrics.RecordAssistant("generate_response", err)
	return err
}

// stream relays every chunk to dest, then emits the concatenation as
// the completion result.
func (a *Assistant) stream(ctx context.Context, dest *Destination, resultType string, req Request) error {
	p, err := a.provider()
	if err != nil {
		return err
	}
	if err := dest.begin(); err != nil {
		return err
	}

	var full strings.Builder
	err = p.Stream(ctx, req, func(chunk string) error {
		full.WriteString(chunk)
		dest.emitUpdate(chunk)
		return nil
	})
	if err != nil {
		dest.fail()
		a.log.Error().Err(err).Str("type", resultType).Msg("streaming request failed")
		return err
	}

	dest.emitComplete(model.AIResult{Type: resultType, Content: full.String()})
	a.log.Info().Str("type", resultType).Int("length", full.Len()).Msg("streaming request complete")
	return nil
}

// AnalyzeTone asks for a structured tone analysis of content.
func (a *Assistant) AnalyzeTone(ctx context.Context, content string) (*model.ToneAnalysis, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.New(apperr.ValidationFailed, "content to analyze is empty")
	}

	p, err := a.provider()
	if err != nil {
		return nil, err
	}

	text, err := p.Complete(ctx, Request{
		Model:     a.model,
		Prompt:    tonePrompt(content),
		MaxTokens: toneMaxTokens,
	})
	if err != nil {
		metrics.RecordAssistant("analyze_tone", err)
		return nil, err
	}

	analysis, err := parseToneAnalysis(text)
	metrics.RecordAssistant("analyze_tone", err)
	if err != nil {
		a.log.Warn().Err(err).Msg("tone analysis response was not usable")
		return nil, err
	}
	return analysis, nil
}

// ValidateAPIKey sends a minimal request with key alone. Any failure
// reports the key as invalid.
func (a *Assistant) ValidateAPIKey(ctx context.Context, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}

	text, err := a.factory(key).Complete(ctx, Request{
		Model:     a.model,
		Prompt:    "test",
		MaxTokens: validateMaxTokens,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("API key validation failed")
		return false
	}
	return text != ""
}
