// Package apply is the only code path allowed to turn worker output into
// persisted state. Each queue item is applied in one transaction: schema
// decode, evidence and taxonomy checks, derived-entity writes, and the
// terminal applied mark either all commit or none do.
package apply
