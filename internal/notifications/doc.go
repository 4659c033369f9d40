// Package notifications publishes daemon lifecycle events to an ntfy topic.
// When no topic is configured every publish is a no-op, so callers never need
// to guard their notification calls.
package notifications
