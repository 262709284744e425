package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOfClassifiesMessages(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"429 Too Many Requests", KindQuota},
		{"rate limit exceeded, slow down", KindQuota},
		{"insufficient_quota: billing hard limit reached", KindQuota},
		{"the model is overloaded, try again later", KindQuota},
		{"prompt is too long: 210000 tokens > 200000 maximum", KindInputTooLong},
		{"context_length_exceeded", KindInputTooLong},
		{"request exceeds the maximum allowed size", KindInputTooLong},
		{"invalid api key provided", KindUnavailable},
		{"401 Unauthorized", KindUnavailable},
		{"dial tcp: connection refused", KindUnavailable},
		{"context canceled", KindCancelled},
		{"something unexpected happened", KindOther},
	}

	for _, tt := range tests {
		got := KindOf(errors.New(tt.msg))
		if got != tt.want {
			t.Errorf("KindOf(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestKindOfContextErrors(t *testing.T) {
	if got := KindOf(context.Canceled); got != KindCancelled {
		t.Errorf("KindOf(context.Canceled) = %s, want %s", got, KindCancelled)
	}
	if got := KindOf(context.DeadlineExceeded); got != KindCancelled {
		t.Errorf("KindOf(context.DeadlineExceeded) = %s, want %s", got, KindCancelled)
	}
}

func TestKindOfTypedError(t *testing.T) {
	err := NewError(KindInputTooLong, "prompt over budget")
	if got := KindOf(err); got != KindInputTooLong {
		t.Errorf("KindOf(typed) = %s, want %s", got, KindInputTooLong)
	}

	// Wrapped typed errors still classify by their kind
	wrapped := fmt.Errorf("chunk 3: %w", err)
	if got := KindOf(wrapped); got != KindInputTooLong {
		t.Errorf("KindOf(wrapped typed) = %s, want %s", got, KindInputTooLong)
	}
}

func TestNormalizePassthrough(t *testing.T) {
	orig := NewError(KindQuota, "quota exceeded")
	got := Normalize(orig, "anthropic")
	if got != orig {
		t.Errorf("Normalize should pass through gateway errors unchanged")
	}
}

func TestNormalizeForeignError(t *testing.T) {
	err := Normalize(errors.New("429 too many requests"), "openai")
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("Normalize did not produce a gateway error: %v", err)
	}
	if ge.Kind != KindQuota {
		t.Errorf("Normalize kind = %s, want %s", ge.Kind, KindQuota)
	}
	if !IsQuota(err) {
		t.Errorf("IsQuota(normalized) = false, want true")
	}
}
