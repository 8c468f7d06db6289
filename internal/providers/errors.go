package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// TransportError is a network failure or a 5xx reply.
type TransportError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: server error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError is a rejected or missing credential.
type AuthError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication error: %s", e.Provider, e.Message)
}

// RateLimitError is a 429 reply. RetryAfter is zero when the server gave no
// hint.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return e.Provider + ": rate limited"
}

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// statusError maps an HTTP status onto the typed errors. It returns nil for
// 2xx.
func statusError(provider string, resp *http.Response, body []byte) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthError{Provider: provider, StatusCode: code, Message: truncate(string(body), 512)}
	case code >= 500:
		return &TransportError{Provider: provider, StatusCode: code, Err: errors.New(truncate(string(body), 512))}
	default:
		return fmt.Errorf("%s: API error (status %d): %s", provider, code, truncate(string(body), 512))
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
