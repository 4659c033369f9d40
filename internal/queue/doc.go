// Package queue manages the durable analysis work queue backed by SQLite.
//
// Each item pairs a conversation with one analysis type. Exclusive processing
// is enforced by a persisted claim (holder + timestamp) written with an atomic
// compare-and-set UPDATE, never by in-process locking, so the guarantee
// survives crashes. Terminal states (applied, failed) are immutable and
// mutually exclusive; the item id is the idempotency key for every downstream
// write.
package queue
