// Package payload turns raw conversation data into the minimized, redacted,
// size-bounded request handed to the external analysis tool. Minimization runs
// first so redaction only scans bytes that will actually be sent; the byte
// budget is a hard rejection, never a silent truncation.
package payload
