package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nhle/mail-assistant/internal/apperr"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI is a Provider backed by the Chat Completions API.
type OpenAI struct {
	client *openai.Client
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates a client for apiKey. baseURL may be empty; it
// allows OpenAI-compatible endpoints.
func NewOpenAI(apiKey, baseURL string, httpClient *http.Client) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg)}
}

func chatRequest(r Request, stream bool) openai.ChatCompletionRequest {
	modelName := r.Model
	if modelName == "" || strings.HasPrefix(modelName, "claude") {
		modelName = defaultOpenAIModel
	}
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return openai.ChatCompletionRequest{
		Model:     modelName,
		MaxTokens: maxTokens,
		Stream:    stream,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: r.Prompt},
		},
	}
}

// Complete makes a single non-streaming request.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, chatRequest(req, false))
	if err != nil {
		return "", classifyOpenAI("calling OpenAI API", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream relays content deltas until the stream ends.
func (o *OpenAI) Stream(ctx context.Context, req Request, onText func(string) error) error {
	stream, err := o.client.CreateChatCompletionStream(ctx, chatRequest(req, true))
	if err != nil {
		return classifyOpenAI("calling OpenAI API", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return classifyOpenAI("reading stream", err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onText(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
}

func classifyOpenAI(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(op, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(op, reqErr.HTTPStatusCode, reqErr.Error())
	}
	return apperr.Wrap(apperr.ProviderUnavailable, op, err)
}
