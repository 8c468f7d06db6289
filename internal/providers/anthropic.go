package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
)

// Anthropic implements Provider for Anthropic's messages API.
type Anthropic struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(model, baseURL, apiKey string, timeout time.Duration) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w (set ANTHROPIC_API_KEY)", ErrMissingAPIKey)
	}
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	return &Anthropic{
		apiKey: apiKey,
		model:  model,
		url:    strings.TrimRight(baseURL, "/") + "/messages",
		client: &http.Client{Timeout: timeoutOr(timeout)},
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	body := anthropicRequest{
		Model:     a.model,
		MaxTokens: maxTokens(req),
		System:    req.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: userText(req)},
		},
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}

	var result anthropicResponse
	if err := postJSON(ctx, a.client, a.Name(), a.url, headers, body, &result); err != nil {
		return Response{}, err
	}

	var content strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return Response{
		Text:       content.String(),
		TokensUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
	Usage   anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
