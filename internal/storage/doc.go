// Package storage opens the shared SQLite database and applies schema
// migrations. The queue, conversation, and derived-entity stores all operate
// on the single connection pool this package owns; cross-store transactions
// (result application) run through Begin.
package storage
