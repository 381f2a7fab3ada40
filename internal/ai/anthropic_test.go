package ai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/nhle/mail-assistant/internal/apperr"
)

const sseBody = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1"}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}

event: ping
data: {"type":"ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":", world"}}

event: message_stop
data: {"type":"message_stop"}

`

func TestAnthropicStream(t *testing.T) {
	var got apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" || r.Header.Get("anthropic-version") != apiVersion {
			t.Errorf("headers = %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseBody)
	}))
	defer srv.Close()

	client := NewAnthropic("sk-test", srv.URL, srv.Client())

	var chunks []string
	err := client.Stream(context.Background(), Request{Prompt: "hi", MaxTokens: 50}, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if strings.Join(chunks, "|") != "Hello|, world" {
		t.Errorf("chunks = %q", chunks)
	}
	if !got.Stream || got.Model != defaultModel || got.MaxTokens != 50 {
		t.Errorf("request = %+v", got)
	}
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant",`+
			`"content":[{"type":"text","text":"pong"}],"stop_reason":"end_turn"}`)
	}))
	defer srv.Close()

	text, err := NewAnthropic("sk-test", srv.URL, srv.Client()).Complete(context.Background(), Request{Prompt: "ping"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "pong" {
		t.Errorf("text = %q", text)
	}
}

func TestAnthropicErrors(t *testing.T) {
	tests := []struct {
		status int
		want   apperr.Kind
	}{
		{http.StatusUnauthorized, apperr.AuthenticationFailed},
		{http.StatusTooManyRequests, apperr.ProviderUnavailable},
		{http.StatusInternalServerError, apperr.ProviderUnavailable},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"x","message":"boom"}}`)
		}))

		_, err := NewAnthropic("sk-test", srv.URL, srv.Client()).Complete(context.Background(), Request{Prompt: "p"})
		if got := apperr.KindOf(err); got != tt.want {
			t.Errorf("status %d: kind = %v, want %v", tt.status, got, tt.want)
		}
		srv.Close()
	}
}

func TestAnthropicStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	err := NewAnthropic("sk-test", srv.URL, srv.Client()).Stream(context.Background(), Request{Prompt: "p"},
		func(string) error { return nil })
	if !apperr.IsKind(err, apperr.ProviderUnavailable) {
		t.Errorf("error = %v, want ProviderUnavailable", err)
	}
}

func TestAnthropicStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "event: content_block_delta\n"+
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`+"\n\n")
	}))
	defer srv.Close()

	var chunks []string
	err := NewAnthropic("sk-test", srv.URL, srv.Client()).Stream(context.Background(), Request{Prompt: "p"},
		func(c string) error {
			chunks = append(chunks, c)
			return nil
		})
	if !apperr.IsKind(err, apperr.ProviderUnavailable) {
		t.Errorf("error = %v, want ProviderUnavailable", err)
	}
	if len(chunks) != 1 {
		t.Errorf("chunks = %q", chunks)
	}
}
