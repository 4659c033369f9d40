package payload

import (
	"distill/internal/config"
	"distill/internal/queue"
)

// Variant selects how much conversation context a profile keeps. Callers
// start minimized and re-prepare expanded when the first pass is judged
// ambiguous.
type Variant string

const (
	VariantMinimized Variant = "minimized"
	VariantExpanded  Variant = "expanded"
)

// capsFor resolves the message caps for an analysis type and variant. The
// expanded variant doubles both caps, bounded only by the batch byte budget.
func capsFor(cfg *config.Config, kind queue.AnalysisType, variant Variant) config.Caps {
	var caps config.Caps
	switch kind {
	case queue.TypeWorkflow:
		caps = cfg.Payload.Workflow
	case queue.TypeLearning:
		caps = cfg.Payload.Learning
	case queue.TypeSummary:
		caps = cfg.Payload.Summary
	case queue.TypeDedupe:
		caps = cfg.Payload.Dedupe
	}
	if variant == VariantExpanded {
		caps.MaxMessages *= 2
		caps.MessageChars *= 2
	}
	return caps
}
