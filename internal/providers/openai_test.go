package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenAI_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Missing or wrong Authorization header")
		}
		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v, want system then user", req.Messages)
		}
		if req.Messages[1].Content != "ctx\n\nprompt" {
			t.Errorf("user content = %q, want context before prompt", req.Messages[1].Content)
		}
		resp := openaiResponse{
			Choices: []openaiChoice{
				{Message: openaiMessage{Role: "assistant", Content: "looks fine"}},
			},
			Usage: openaiUsage{TotalTokens: 50},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	o, err := NewOpenAI("gpt-4o", server.URL+"/v1/", "test-key", time.Second)
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	resp, err := o.Complete(context.Background(), Request{
		System:  "sys",
		Prompt:  "prompt",
		Context: "ctx",
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Text != "looks fine" {
		t.Errorf("Text = %q, want %q", resp.Text, "looks fine")
	}
	if resp.TokensUsed != 50 {
		t.Errorf("TokensUsed = %d, want 50", resp.TokensUsed)
	}
}

func TestOpenAI_NoKeyForLocalServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("no Authorization header expected without a key")
		}
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{Content: "ok"}}}})
	}))
	defer server.Close()

	o, err := NewOpenAI("llama3", server.URL, "", 0)
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	if _, err := o.Complete(context.Background(), Request{Prompt: "x"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestOpenAI_MissingKeyHosted(t *testing.T) {
	_, err := NewOpenAI("gpt-4o", "", "", 0)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestOpenAI_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		header string
		check  func(error) bool
	}{
		{429, "7", func(err error) bool {
			var rl *RateLimitError
			return errors.As(err, &rl) && rl.RetryAfter == 7*time.Second
		}},
		{401, "", IsAuthError},
		{403, "", IsAuthError},
		{502, "", func(err error) bool {
			var te *TransportError
			return errors.As(err, &te) && te.StatusCode == 502
		}},
		{400, "", func(err error) bool { return err != nil && !Retryable(err) && !IsAuthError(err) }},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tt.header != "" {
				w.Header().Set("Retry-After", tt.header)
			}
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"error":"nope"}`))
		}))
		o, _ := NewOpenAI("gpt-4o", server.URL, "k", time.Second)
		_, err := o.Complete(context.Background(), Request{Prompt: "x"})
		if !tt.check(err) {
			t.Errorf("status %d: unexpected error %v", tt.status, err)
		}
		server.Close()
	}
}

func TestOpenAI_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	o, _ := NewOpenAI("gpt-4o", server.URL, "k", time.Second)
	_, err := o.Complete(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestOpenAI_NotJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer server.Close()

	o, _ := NewOpenAI("gpt-4o", server.URL, "k", time.Second)
	_, err := o.Complete(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestOpenAI_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	o, _ := NewOpenAI("gpt-4o", url, "k", time.Second)
	_, err := o.Complete(context.Background(), Request{Prompt: "x"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Errorf("err = %v, want *TransportError", err)
	}
}

func TestChatURL(t *testing.T) {
	if got := chatURL("http://localhost:11434/v1/"); got != "http://localhost:11434/v1/chat/completions" {
		t.Errorf("chatURL = %q", got)
	}
	if got := chatURL("http://x/v1/chat/completions"); got != "http://x/v1/chat/completions" {
		t.Errorf("chatURL should not double the suffix, got %q", got)
	}
}
