package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIURL = "https://api.openai.com/v1"

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAI creates an OpenAI-compatible provider. The key may be empty for
// local servers that do not check it.
func NewOpenAI(model, baseURL, apiKey string, timeout time.Duration) (*OpenAI, error) {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
		if apiKey == "" {
			return nil, fmt.Errorf("openai: %w (set OPENAI_API_KEY)", ErrMissingAPIKey)
		}
	}
	return &OpenAI{
		apiKey:  apiKey,
		model:   model,
		baseURL: chatURL(baseURL),
		client:  &http.Client{Timeout: timeoutOr(timeout)},
	}, nil
}

func chatURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	var messages []openaiMessage
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: userText(req)})

	body := openaiRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: maxTokens(req),
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}
	var result openaiResponse
	if err := postJSON(ctx, o.client, o.Name(), o.baseURL, headers, body, &result); err != nil {
		return Response{}, err
	}
	if len(result.Choices) == 0 {
		return Response{}, fmt.Errorf("openai: no choices in response: %w", ErrMalformedResponse)
	}
	return Response{
		Text:       result.Choices[0].Message.Content,
		TokensUsed: result.Usage.TotalTokens,
	}, nil
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiUsage struct {
	TotalTokens int `json:"total_tokens"`
}
