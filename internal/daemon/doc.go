// Package daemon assembles the long-running analysis service: the shared
// database, the external tool client, the queue worker, and the claim reaper.
// A file lock enforces a single daemon instance per data directory.
package daemon
