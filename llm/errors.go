package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

// ErrUnknownModel indicates that a requested model is not registered in the
// catalog and its provider cannot be inferred from the model name.
var ErrUnknownModel = errors.New("unknown model: not registered and provider not inferable")

// ErrNoProviders indicates that no enabled, registered provider was
// available to serve the request.
var ErrNoProviders = errors.New("no provider available")

// ErrManagerClosed indicates that the manager was closed and can no longer
// serve requests.
var ErrManagerClosed = errors.New("manager is closed")

// ErrInvalidRetryPolicy indicates a RetryPolicy that violates its
// constraints (see RetryPolicy.Validate).
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// Attempt records one failed provider attempt during request routing.
type Attempt struct {
	// Provider is the adapter that was tried.
	Provider provider.Type

	// Model is the model the attempt used, which differs from the
	// requested model when the router substituted a fallback provider's
	// own model.
	Model string

	// Err is the classified failure for this attempt.
	Err error
}

// FailoverError reports that a request failed on every candidate provider.
//
// It preserves the full attempt trail so callers can see which providers
// were tried, with which models, and why each failed. errors.Is and
// errors.As traverse all attempt errors, so
//
//	errors.Is(err, provider.ErrRateLimited)
//
// is true when any attempt was rate limited.
type FailoverError struct {
	// Operation is "chat", "complete", or "embed".
	Operation string

	// Model is the model the caller asked for.
	Model string

	// Attempts lists every failed attempt in the order they were made.
	Attempts []Attempt
}

// Error implements the error interface.
func (e *FailoverError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s request for model %q failed after %d attempt", e.Operation, e.Model, len(e.Attempts))
	if len(e.Attempts) != 1 {
		b.WriteString("s")
	}
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s/%s: %v", a.Provider, a.Model, a.Err)
	}
	return b.String()
}

// Unwrap exposes the attempt errors to errors.Is and errors.As.
func (e *FailoverError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
