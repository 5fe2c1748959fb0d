package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestClassify verifies that vendor error messages map onto the right
// category and retryability.
func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      ErrCode
		wantRetryable bool
	}{
		{
			name:          "rate limit by phrase",
			err:           errors.New("Rate limit exceeded, retry after 20s"),
			wantCode:      CodeRateLimited,
			wantRetryable: true,
		},
		{
			name:          "rate limit by status",
			err:           errors.New("unexpected status 429"),
			wantCode:      CodeRateLimited,
			wantRetryable: true,
		},
		{
			name:          "too many requests",
			err:           errors.New("Too Many Requests"),
			wantCode:      CodeRateLimited,
			wantRetryable: true,
		},
		{
			name:          "invalid key",
			err:           errors.New("Incorrect API key provided"),
			wantCode:      CodeAuth,
			wantRetryable: false,
		},
		{
			name:          "unauthorized status",
			err:           errors.New("401 Unauthorized"),
			wantCode:      CodeAuth,
			wantRetryable: false,
		},
		{
			name:          "quota",
			err:           errors.New("You exceeded your current quota, please check your plan and billing details"),
			wantCode:      CodeQuota,
			wantRetryable: false,
		},
		{
			name:          "server error",
			err:           errors.New("502 Bad Gateway"),
			wantCode:      CodeServer,
			wantRetryable: true,
		},
		{
			name:          "overloaded",
			err:           errors.New("overloaded_error: Anthropic's API is temporarily overloaded"),
			wantCode:      CodeServer,
			wantRetryable: true,
		},
		{
			name:          "network",
			err:           errors.New("dial tcp 127.0.0.1:11434: connection refused"),
			wantCode:      CodeNetwork,
			wantRetryable: true,
		},
		{
			name:          "bad request",
			err:           errors.New("invalid_request_error: max_tokens required"),
			wantCode:      CodeBadRequest,
			wantRetryable: false,
		},
		{
			name:          "unknown",
			err:           errors.New("something odd happened"),
			wantCode:      CodeUnknown,
			wantRetryable: false,
		},
		{
			name:          "deadline becomes network",
			err:           context.DeadlineExceeded,
			wantCode:      CodeNetwork,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(TypeOpenAI, tt.err)

			var pe *Error
			if !errors.As(got, &pe) {
				t.Fatalf("Classify returned %T, want *Error", got)
			}
			if pe.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", pe.Code, tt.wantCode)
			}
			if pe.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", pe.Retryable, tt.wantRetryable)
			}
			if pe.Provider != TypeOpenAI {
				t.Errorf("provider = %q, want %q", pe.Provider, TypeOpenAI)
			}
		})
	}
}

func TestClassifyPassthrough(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		if err := Classify(TypeOpenAI, nil); err != nil {
			t.Errorf("Classify(nil) = %v, want nil", err)
		}
	})

	t.Run("context cancellation passes through", func(t *testing.T) {
		err := Classify(TypeGoogle, context.Canceled)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled to pass through, got %v", err)
		}
	})

	t.Run("already classified keeps its code", func(t *testing.T) {
		orig := Errorf(TypeAnthropic, CodeQuota, "monthly budget spent")
		got := Classify(TypeAnthropic, fmt.Errorf("call failed: %w", orig))

		var pe *Error
		if !errors.As(got, &pe) {
			t.Fatalf("got %T, want *Error", got)
		}
		if pe.Code != CodeQuota {
			t.Errorf("code = %q, want %q", pe.Code, CodeQuota)
		}
	})

	t.Run("classified without provider gets one stamped", func(t *testing.T) {
		orig := &Error{Code: CodeServer, Message: "boom", Retryable: true}
		got := Classify(TypeOllama, orig)

		var pe *Error
		if !errors.As(got, &pe) {
			t.Fatalf("got %T, want *Error", got)
		}
		if pe.Provider != TypeOllama {
			t.Errorf("provider = %q, want %q", pe.Provider, TypeOllama)
		}
	})
}

// TestErrorIs verifies sentinel matching works across vendors: any
// rate-limit failure matches ErrRateLimited no matter which adapter
// produced it.
func TestErrorIs(t *testing.T) {
	openaiLimited := Errorf(TypeOpenAI, CodeRateLimited, "429 from openai")
	anthropicLimited := Errorf(TypeAnthropic, CodeRateLimited, "429 from anthropic")
	authErr := Errorf(TypeOpenAI, CodeAuth, "bad key")

	if !errors.Is(openaiLimited, ErrRateLimited) {
		t.Error("openai rate limit should match ErrRateLimited")
	}
	if !errors.Is(anthropicLimited, ErrRateLimited) {
		t.Error("anthropic rate limit should match ErrRateLimited")
	}
	if errors.Is(authErr, ErrRateLimited) {
		t.Error("auth error must not match ErrRateLimited")
	}
	if !errors.Is(authErr, ErrAuth) {
		t.Error("auth error should match ErrAuth")
	}

	wrapped := fmt.Errorf("request failed: %w", openaiLimited)
	if !errors.Is(wrapped, ErrRateLimited) {
		t.Error("wrapped rate limit should still match ErrRateLimited")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Errorf(TypeOpenAI, CodeServer, "503")) {
		t.Error("server errors are retryable")
	}
	if IsRetryable(Errorf(TypeOpenAI, CodeAuth, "401")) {
		t.Error("auth errors are not retryable")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("unclassified errors are not retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestErrorString(t *testing.T) {
	e := Errorf(TypeGoogle, CodeContentFiltered, "blocked by safety filter")
	want := "google: content_filtered: blocked by safety filter"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}
