package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures that resolve themselves on a later run:
	// tool missing, network hiccups, tool-reported errors that are not
	// clearly schema problems. Items stay in their current state.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures that will not change on retry: schema
	// decode failures, unknown analysis types, missing result payloads.
	// Items are marked failed and never retried automatically.
	ErrPermanent = errors.New("permanent failure")
	// ErrAuthRequired is a distinguished transient failure surfaced so the
	// caller can prompt for re-authentication instead of retrying blindly.
	ErrAuthRequired = errors.New("authentication required")
	// ErrConsent is returned when analysis is invoked without the user
	// consent flag. It is a caller precondition failure and is never
	// persisted on queue items.
	ErrConsent = errors.New("analysis consent not granted")
	// ErrPayloadTooLarge is returned before execution when a prepared batch
	// exceeds the byte budget. Callers retry with smaller batches.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrTimeout marks an external tool run that exceeded its wall-clock bound.
	ErrTimeout = errors.New("timeout")
	// ErrExternalTool marks failures reported by or about the external tool.
	ErrExternalTool = errors.New("external tool error")
	// ErrValidation marks structurally invalid tool output.
	ErrValidation = errors.New("validation error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsPermanent reports whether an error should mark its queue item failed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsRetryable reports whether the item should be left for a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrAuthRequired) ||
		errors.Is(err, ErrExternalTool)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
