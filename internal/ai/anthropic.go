package ai

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/nhle/mail-assistant/internal/apperr"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 1024
	anthropicURL     = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
)

// Anthropic talks to the Claude Messages API.
type Anthropic struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ Provider = (*Anthropic)(nil)

// NewAnthropic creates a Messages API client. baseURL may be empty.
func NewAnthropic(apiKey, baseURL string, client *http.Client) *Anthropic {
	if baseURL == "" {
		baseURL = anthropicURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Anthropic{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Complete makes a single non-streaming request.
func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := a.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Wrap(apperr.ProviderUnavailable, "reading response", err)
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", apperr.Wrap(apperr.ProviderUnavailable, "decoding response", err)
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Stream makes a streaming request and relays text deltas from the
// server-sent event stream.
func (a *Anthropic) Stream(ctx context.Context, req Request, onText func(string) error) error {
	resp, err := a.post(ctx, req, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			done, handleErr := handleEvent(strings.TrimRight(line, "\r\n"), onText)
			if handleErr != nil {
				return handleErr
			}
			if done {
				return nil
			}
		}
		if err == io.EOF {
			return apperr.New(apperr.ProviderUnavailable, "stream ended before the response was complete")
		}
		if err != nil {
			return apperr.Wrap(apperr.ProviderUnavailable, "reading stream", err)
		}
	}
}

// handleEvent processes one SSE line. Only data lines carry payloads;
// the event type is repeated inside the JSON.
func handleEvent(line string, onText func(string) error) (done bool, err error) {
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return false, nil
	}
	data = strings.TrimSpace(data)
	if data == "" {
		return false, nil
	}

	var ev streamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return false, apperr.Wrap(apperr.ProviderUnavailable, "decoding stream event", err)
	}

	switch ev.Type {
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
			return false, onText(ev.Delta.Text)
		}
	case "message_stop":
		return true, nil
	case "error":
		return false, apperr.Wrap(apperr.ProviderUnavailable, "streaming",
			fmt.Errorf("%s: %s", ev.Error.Type, ev.Error.Message))
	}
	return false, nil
}

// post sends a Messages API request and checks the status. The caller
// owns the response body.
func (a *Anthropic) post(ctx context.Context, r Request, stream bool) (*http.Response, error) {
	modelName := r.Model
	if modelName == "" {
		modelName = defaultModel
	}
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	reqBody := apiRequest{
		Model:     modelName,
		MaxTokens: maxTokens,
		Stream:    stream,
		Messages: []apiMessage{{
			Role:    "user",
			Content: []apiContentBlock{{Type: "text", Text: r.Prompt}},
		}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "calling Claude API", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		detail := string(respBody)
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			detail = apiErr.Error.Message
		}
		return nil, statusError("calling Claude API", resp.StatusCode, detail)
	}
	return resp, nil
}

// --- Claude API types ---

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Stream    bool         `json:"stream,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []apiContentBlock `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
