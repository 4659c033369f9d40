// Package analysis defines the result schemas the external tool must emit,
// one per analysis type, plus the closed workflow taxonomy used to sanitize
// model output before persistence.
package analysis
