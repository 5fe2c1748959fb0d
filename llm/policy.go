package llm

import (
	"math/rand"
	"time"

	"github.com/oldnordic/ai-coder-assistant-sub001/llm/provider"
)

// RetryPolicy defines automatic retry behavior for transient provider
// failures.
//
// When a provider call fails, the policy determines whether the failure is
// retryable and how long to wait before the next attempt against the same
// provider. Exponential backoff with jitter avoids synchronized retry
// storms when many requests hit the same rate limit.
//
// Retries apply within a single provider. Moving to a different provider
// after retries are exhausted is the manager's failover behavior, not the
// retry policy's.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of calls per provider, including
	// the initial attempt. Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff. The delay
	// before retry n is min(BaseDelay * 2^n, MaxDelay) + jitter(0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Zero means no cap.
	MaxDelay time.Duration

	// Retryable overrides the retryability decision. If nil, the
	// provider error classification decides (provider.IsRetryable).
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the policy the manager uses when none is
// configured: three attempts per provider with 500ms base backoff capped
// at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Validate checks the policy's constraints:
//   - MaxAttempts must be >= 1
//   - If both MaxDelay and BaseDelay are > 0, MaxDelay must be >= BaseDelay
//     (MaxDelay == 0 means no cap)
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// retryable reports whether err is worth retrying against the same
// provider.
func (rp RetryPolicy) retryable(err error) bool {
	if rp.Retryable != nil {
		return rp.Retryable(err)
	}
	return provider.IsRetryable(err)
}

// computeBackoff calculates the delay before retry attempt n (zero-based)
// as min(base * 2^attempt, maxDelay) + jitter(0, base).
//
// The exponential component doubles the delay with each retry, reducing
// load on a struggling provider. Jitter randomizes timing across
// concurrent requests so their retries do not land in lockstep.
func computeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	// Cap the shift so the exponential term cannot overflow.
	if attempt > 20 {
		attempt = 20
	}
	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	// Note: Using math/rand for jitter timing, not security-sensitive
	jitter := time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security

	return delay + jitter
}
