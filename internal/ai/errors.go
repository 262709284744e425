package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a gateway failure
type Kind string

const (
	// KindUnavailable: no usable backend configured or reachable
	KindUnavailable Kind = "provider_unavailable"
	// KindQuota: rate or quota exceeded; retryable with backoff
	KindQuota Kind = "quota_exceeded"
	// KindInputTooLong: input exceeds model capacity; never retried
	KindInputTooLong Kind = "input_too_long"
	// KindParse: structured response could not be repaired into valid data
	KindParse Kind = "parse_error"
	// KindCancelled: user-initiated cancellation, not an error condition
	KindCancelled Kind = "cancelled"
	// KindOther: anything else
	KindOther Kind = "other"
)

// Error is a normalized gateway failure
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a gateway error of the given kind
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps an underlying error under the given kind
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the classified kind of any error
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return classifyMessage(err.Error())
}

// IsQuota reports whether err is a retryable rate/quota failure
func IsQuota(err error) bool { return KindOf(err) == KindQuota }

// IsInputTooLong reports whether err is a fatal input-capacity failure
func IsInputTooLong(err error) bool { return KindOf(err) == KindInputTooLong }

// IsCancelled reports whether err is a user-initiated cancellation
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

// IsUnavailable reports whether err means no usable backend
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }

// IsParse reports whether err is a structured-response parse failure
func IsParse(err error) bool { return KindOf(err) == KindParse }

// Normalize converts an SDK or transport error into a gateway Error.
// Already-normalized errors pass through unchanged.
func Normalize(err error, providerID string) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	kind := KindOf(err)
	return &Error{Kind: kind, Message: fmt.Sprintf("%s request failed", providerID), Err: err}
}

// classifyMessage pattern-matches an error message into a kind.
// SDKs disagree on error shapes, so message matching is the common path.
func classifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)

	quotaPatterns := []string{
		"rate limit", "rate_limit", "too many requests", "429",
		"quota", "insufficient_quota", "throttle", "throttling",
		"overloaded", "resource exhausted", "resource_exhausted",
	}
	for _, p := range quotaPatterns {
		if strings.Contains(lower, p) {
			return KindQuota
		}
	}

	tooLongPatterns := []string{
		"context_length_exceeded", "context length", "maximum context",
		"too long", "prompt is too long", "token limit", "exceeds the maximum",
		"input is too large",
	}
	for _, p := range tooLongPatterns {
		if strings.Contains(lower, p) {
			return KindInputTooLong
		}
	}

	unavailablePatterns := []string{
		"api key", "apikey", "unauthorized", "401", "forbidden", "403",
		"invalid credentials", "authentication", "connection refused",
		"no such host", "not configured",
	}
	for _, p := range unavailablePatterns {
		if strings.Contains(lower, p) {
			return KindUnavailable
		}
	}

	cancelledPatterns := []string{"context canceled", "context cancelled", "operation was canceled"}
	for _, p := range cancelledPatterns {
		if strings.Contains(lower, p) {
			return KindCancelled
		}
	}

	return KindOther
}
