package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCode classifies provider failures into vendor-independent categories.
type ErrCode string

// Error codes shared by all adapters.
const (
	CodeRateLimited     ErrCode = "rate_limited"
	CodeAuth            ErrCode = "auth"
	CodeQuota           ErrCode = "quota"
	CodeServer          ErrCode = "server"
	CodeNetwork         ErrCode = "network"
	CodeBadRequest      ErrCode = "bad_request"
	CodeContentFiltered ErrCode = "content_filtered"
	CodeUnsupported     ErrCode = "unsupported"
	CodeUnknown         ErrCode = "unknown"
)

// Sentinel errors for errors.Is checks. Adapters return richer *Error
// values; Is matching is by code, so
//
//	errors.Is(err, provider.ErrRateLimited)
//
// is true for any rate-limit failure regardless of vendor.
var (
	ErrRateLimited   = &Error{Code: CodeRateLimited, Message: "rate limit exceeded", Retryable: true}
	ErrAuth          = &Error{Code: CodeAuth, Message: "authentication failed"}
	ErrQuotaExceeded = &Error{Code: CodeQuota, Message: "quota exceeded"}
	ErrUnsupported   = &Error{Code: CodeUnsupported, Message: "operation not supported"}
)

// Error is a classified provider failure.
//
// It distinguishes retryable transient failures (rate limits, server
// hiccups, network problems) from permanent ones (bad credentials,
// exhausted quota, unsupported operations) so the retry and failover
// logic can decide between backing off and moving on.
type Error struct {
	// Provider identifies which adapter produced the failure.
	Provider Type

	// Code is the machine-readable category for programmatic handling.
	Code ErrCode

	// Message is the human-readable description for logging and display.
	Message string

	// Retryable reports whether retrying the same provider with backoff
	// can reasonably succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRetryable reports whether the failure is transient.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// Is matches two *Error values by code, enabling sentinel comparison with
// errors.Is while adapters keep per-failure detail in Message.
func (e *Error) Is(target error) bool {
	var pe *Error
	if !errors.As(target, &pe) {
		return false
	}
	return e.Code == pe.Code
}

// Errorf builds a classified failure with a formatted message. Retryable
// is derived from the code.
func Errorf(p Type, code ErrCode, format string, args ...any) *Error {
	return &Error{
		Provider:  p,
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryableCode(code),
	}
}

// Classify maps an arbitrary vendor error onto a *Error.
//
// Context cancellation passes through untouched so callers can keep using
// errors.Is(err, context.Canceled). A context deadline becomes a retryable
// network failure: the per-attempt timeout elapsed, but the provider may
// well answer a fresh attempt.
//
// Everything else is categorized by inspecting the message for the status
// codes and phrases the vendor SDKs put there. Unrecognized errors come
// back as CodeUnknown, not retryable.
func Classify(p Type, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	// Already classified; stamp the provider if it is missing.
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = p
		}
		return pe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Errorf(p, CodeNetwork, "request timed out: %v", err)
	}

	code := codeForMessage(err.Error())
	return Errorf(p, code, "%v", err)
}

// codeForMessage categorizes a vendor error message by its status codes
// and phrases. Order matters: rate limits and auth failures frequently
// mention "requests" or "key" in ways that would also match later checks.
func codeForMessage(msg string) ErrCode {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "429"),
		strings.Contains(lower, "too many requests"):
		return CodeRateLimited

	case strings.Contains(lower, "invalid api key"),
		strings.Contains(lower, "incorrect api key"),
		strings.Contains(lower, "401"),
		strings.Contains(lower, "403"),
		strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "permission"),
		strings.Contains(lower, "authentication"):
		return CodeAuth

	case strings.Contains(lower, "quota"),
		strings.Contains(lower, "billing"):
		return CodeQuota

	case strings.Contains(lower, "500"),
		strings.Contains(lower, "502"),
		strings.Contains(lower, "503"),
		strings.Contains(lower, "504"),
		strings.Contains(lower, "internal server error"),
		strings.Contains(lower, "bad gateway"),
		strings.Contains(lower, "service unavailable"),
		strings.Contains(lower, "overloaded"),
		strings.Contains(lower, "gateway timeout"):
		return CodeServer

	case strings.Contains(lower, "connection"),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "no such host"):
		return CodeNetwork

	case strings.Contains(lower, "400"),
		strings.Contains(lower, "invalid request"),
		strings.Contains(lower, "invalid_request"):
		return CodeBadRequest

	default:
		return CodeUnknown
	}
}

func retryableCode(code ErrCode) bool {
	switch code {
	case CodeRateLimited, CodeServer, CodeNetwork:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a transient provider failure.
// Non-provider errors are never considered retryable.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
