package queue

import "errors"

// ErrTerminalConflict is returned when a terminal transition contradicts an
// already-recorded terminal state, e.g. failing an item that was applied.
// Repeating the same terminal transition is a no-op, not a conflict.
var ErrTerminalConflict = errors.New("conflicting terminal state")

// ErrNotFound is returned when an operation names a queue item that does not exist.
var ErrNotFound = errors.New("queue item not found")
