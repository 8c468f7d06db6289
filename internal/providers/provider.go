package providers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Request is one completion call.
type Request struct {
	System string
	Prompt string
	// Context is prepended to Prompt in the user turn.
	Context     string
	MaxTokens   int
	Temperature float64
}

// Response is the model's reply.
type Response struct {
	Text       string
	TokensUsed int
}

// Provider is the LLM transport abstraction.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// ModelConfig selects and authenticates a backend.
type ModelConfig struct {
	// Model is "<provider>/<model>" or a bare model name for OpenAI-compatible
	// endpoints.
	Model       string
	ProviderURL string
	APIKey      string
	Timeout     time.Duration
}

const (
	defaultMaxTokens = 4096
	defaultTimeout   = 300 * time.Second
)

// ErrMissingAPIKey is returned when a hosted backend has no key configured.
var ErrMissingAPIKey = errors.New("no API key configured")

// ErrMalformedResponse is returned when a reply cannot be decoded.
var ErrMalformedResponse = errors.New("malformed provider response")

// SplitModel separates the provider prefix from the model name. A model with
// no known prefix belongs to the OpenAI-compatible backend.
func SplitModel(model string) (provider, name string) {
	if p, rest, ok := strings.Cut(model, "/"); ok {
		switch p {
		case "openai", "anthropic", "gemini", "google":
			return p, rest
		}
	}
	return "openai", model
}

// New creates the provider for cfg.Model.
func New(ctx context.Context, cfg ModelConfig) (Provider, error) {
	provider, model := SplitModel(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("no model configured")
	}
	switch provider {
	case "anthropic":
		return NewAnthropic(model, cfg.ProviderURL, apiKey(cfg.APIKey, KeyEnv(cfg.Model)...), cfg.Timeout)
	case "gemini", "google":
		return NewGemini(ctx, model, cfg.ProviderURL, apiKey(cfg.APIKey, KeyEnv(cfg.Model)...), cfg.Timeout)
	default:
		return NewOpenAI(model, cfg.ProviderURL, apiKey(cfg.APIKey, KeyEnv(cfg.Model)...), cfg.Timeout)
	}
}

// KeyEnv lists the environment variables the backend for model reads its
// key from, in lookup order.
func KeyEnv(model string) []string {
	switch provider, _ := SplitModel(model); provider {
	case "anthropic":
		return []string{"ANTHROPIC_API_KEY"}
	case "gemini", "google":
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	default:
		return []string{"OPENAI_API_KEY"}
	}
}

// Hosted reports whether cfg talks to a vendor API, which always needs a
// key, rather than a local OpenAI-compatible server.
func Hosted(cfg ModelConfig) bool {
	if cfg.ProviderURL == "" {
		return true
	}
	u, err := url.Parse(cfg.ProviderURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "api.openai.com", "api.anthropic.com", "generativelanguage.googleapis.com":
		return true
	}
	return false
}

// HasKey reports whether a key is configured or present in the backend's
// environment.
func HasKey(cfg ModelConfig) bool {
	return apiKey(cfg.APIKey, KeyEnv(cfg.Model)...) != ""
}

func apiKey(explicit string, envs ...string) string {
	if explicit != "" {
		return explicit
	}
	for _, e := range envs {
		if v := os.Getenv(e); v != "" {
			return v
		}
	}
	return ""
}

// Lazy defers construction until the first Complete call, so that runs
// without AI reviewers never need a key. A construction failure is reported
// by every call; a missing key surfaces as an *AuthError.
func Lazy(cfg ModelConfig) Provider {
	return &lazy{cfg: cfg}
}

type lazy struct {
	cfg  ModelConfig
	once sync.Once
	p    Provider
	err  error
}

func (l *lazy) Name() string {
	provider, _ := SplitModel(l.cfg.Model)
	return provider
}

func (l *lazy) Complete(ctx context.Context, req Request) (Response, error) {
	l.once.Do(func() {
		l.p, l.err = New(ctx, l.cfg)
		if errors.Is(l.err, ErrMissingAPIKey) {
			l.err = &AuthError{Provider: l.Name(), Message: l.err.Error()}
		}
	})
	if l.err != nil {
		return Response{}, l.err
	}
	return l.p.Complete(ctx, req)
}

func userText(req Request) string {
	if req.Context == "" {
		return req.Prompt
	}
	return req.Context + "\n\n" + req.Prompt
}

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

func timeoutOr(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultTimeout
}
