package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/patchwise/internal/providers"
	"github.com/dshills/patchwise/internal/toolrun"
)

// ErrorKind classifies a reviewer failure.
type ErrorKind string

const (
	ErrTimeout           ErrorKind = "timeout"
	ErrMissingDependency ErrorKind = "missing-dependency"
	ErrTransport         ErrorKind = "transport-failure"
	ErrMalformedOutput   ErrorKind = "malformed-output"
	ErrAuth              ErrorKind = "auth-failure"
	ErrRateLimit         ErrorKind = "rate-limit"
	ErrInternal          ErrorKind = "internal"
)

// ErrNoFindings is returned by a response parser that recognized nothing.
var ErrNoFindings = errors.New("no findings recognized")

// ReviewerError is a classified reviewer failure. It is recorded in the
// report and never aborts a run.
type ReviewerError struct {
	Reviewer string    `json:"reviewer"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Err      error     `json:"-"`
}

func (e *ReviewerError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Reviewer, e.Kind, e.Message)
}

func (e *ReviewerError) Unwrap() error { return e.Err }

// NewReviewerError builds a ReviewerError whose message is err's text.
func NewReviewerError(reviewer string, kind ErrorKind, err error) *ReviewerError {
	msg := string(kind)
	if err != nil {
		msg = err.Error()
	}
	return &ReviewerError{Reviewer: reviewer, Kind: kind, Message: msg, Err: err}
}

// ConfigurationError is a fatal problem with the requested run.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UnknownReviewerError names a reviewer that is not registered. It matches
// *ConfigurationError under errors.As.
type UnknownReviewerError struct {
	Name string
}

func (e *UnknownReviewerError) Error() string {
	return fmt.Sprintf("unknown reviewer %q", e.Name)
}

func (e *UnknownReviewerError) As(target any) bool {
	if t, ok := target.(**ConfigurationError); ok {
		*t = &ConfigurationError{Reason: e.Error(), Err: e}
		return true
	}
	return false
}

// Classify converts any reviewer failure into a ReviewerError. It returns
// nil for a nil error.
func Classify(reviewer string, err error) *ReviewerError {
	if err == nil {
		return nil
	}
	var re *ReviewerError
	if errors.As(err, &re) {
		out := *re
		if out.Reviewer == "" {
			out.Reviewer = reviewer
		}
		return &out
	}

	var (
		depErr  *toolrun.DependencyError
		rateErr *providers.RateLimitError
		authErr *providers.AuthError
		trErr   *providers.TransportError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewReviewerError(reviewer, ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return &ReviewerError{Reviewer: reviewer, Kind: ErrInternal, Message: "cancelled", Err: err}
	case errors.As(err, &depErr) && depErr.Credential:
		return NewReviewerError(reviewer, ErrAuth, err)
	case errors.Is(err, toolrun.ErrNotFound), errors.As(err, &depErr):
		return NewReviewerError(reviewer, ErrMissingDependency, err)
	case errors.As(err, &rateErr):
		return NewReviewerError(reviewer, ErrRateLimit, err)
	case errors.As(err, &authErr), errors.Is(err, providers.ErrMissingAPIKey):
		return NewReviewerError(reviewer, ErrAuth, err)
	case errors.As(err, &trErr):
		return NewReviewerError(reviewer, ErrTransport, err)
	case errors.Is(err, providers.ErrMalformedResponse), errors.Is(err, ErrNoFindings):
		return NewReviewerError(reviewer, ErrMalformedOutput, err)
	default:
		return NewReviewerError(reviewer, ErrInternal, err)
	}
}
