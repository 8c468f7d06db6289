package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// Gemini implements Provider on the Google genai SDK.
type Gemini struct {
	model  string
	client *genai.Client
}

// NewGemini creates a Gemini provider. baseURL overrides the API endpoint.
func NewGemini(ctx context.Context, model, baseURL, apiKey string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w (set GEMINI_API_KEY)", ErrMissingAPIKey)
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeoutOr(timeout)},
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{model: model, client: client}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Complete(ctx context.Context, req Request) (Response, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens(req)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	contents := []*genai.Content{genai.NewContentFromText(userText(req), genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return Response{}, g.mapError(ctx, err)
	}
	if len(resp.Candidates) == 0 {
		return Response{}, fmt.Errorf("gemini: no candidates in response: %w", ErrMalformedResponse)
	}
	out := Response{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func (g *Gemini) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var p *genai.APIError
		if !errors.As(err, &p) {
			return &TransportError{Provider: g.Name(), Err: err}
		}
		apiErr = *p
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return &RateLimitError{Provider: g.Name()}
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return &AuthError{Provider: g.Name(), StatusCode: apiErr.Code, Message: apiErr.Message}
	case apiErr.Code >= 500:
		return &TransportError{Provider: g.Name(), StatusCode: apiErr.Code, Err: err}
	default:
		return fmt.Errorf("gemini: API error (status %d): %s", apiErr.Code, apiErr.Message)
	}
}
