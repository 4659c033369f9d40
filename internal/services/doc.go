// Package services holds the cross-cutting error taxonomy and context
// annotations shared by the worker, executor, and persister.
//
// Errors are classified by wrapping one of the exported sentinel errors so
// callers can decide between retry, permanent failure, and user-facing
// surfacing with errors.Is alone.
package services
