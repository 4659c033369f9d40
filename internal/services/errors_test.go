package services_test

import (
	"errors"
	"strings"
	"testing"

	"distill/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	err := services.Wrap(services.ErrPermanent, "apply", "decode", "bad schema", errors.New("unexpected field"))
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent marker, got %v", err)
	}
	for _, fragment := range []string{"apply", "decode", "bad schema", "unexpected field"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %q", fragment, err.Error())
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "executor", "run", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		permanent bool
		retryable bool
	}{
		{"permanent", services.Wrap(services.ErrPermanent, "apply", "decode", "", nil), true, false},
		{"timeout", services.Wrap(services.ErrTimeout, "executor", "run", "", nil), false, true},
		{"auth", services.Wrap(services.ErrAuthRequired, "executor", "run", "", nil), false, true},
		{"transient", services.Wrap(services.ErrTransient, "executor", "run", "", nil), false, true},
		{"tool", services.Wrap(services.ErrExternalTool, "executor", "run", "", nil), false, true},
		{"nil", nil, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsPermanent(tc.err); got != tc.permanent {
				t.Fatalf("IsPermanent = %v, want %v", got, tc.permanent)
			}
			if got := services.IsRetryable(tc.err); got != tc.retryable {
				t.Fatalf("IsRetryable = %v, want %v", got, tc.retryable)
			}
		})
	}
}
