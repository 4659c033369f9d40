// Package llmtool runs the external language-model CLI under strict
// sandboxing: consent gating, a capability probe, fixed non-interactive
// arguments, bounded wall-clock time, bounded output, and concurrent pipe
// draining. The tool never touches persistent storage; it receives a prepared
// payload on stdin and returns structured text.
package llmtool
