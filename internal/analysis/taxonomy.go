package analysis

import (
	"sort"
	"strings"
)

// Closed workflow taxonomy. The model may hallucinate categories, so anything
// outside these sets is dropped during sanitation rather than persisted.
var (
	actionSet = map[string]struct{}{
		"create":    {},
		"update":    {},
		"refactor":  {},
		"debug":     {},
		"review":    {},
		"test":      {},
		"deploy":    {},
		"document":  {},
		"configure": {},
		"migrate":   {},
	}

	artifactSet = map[string]struct{}{
		"code":     {},
		"config":   {},
		"docs":     {},
		"tests":    {},
		"schema":   {},
		"pipeline": {},
		"script":   {},
		"infra":    {},
	}

	domainSet = map[string]struct{}{
		"frontend": {},
		"backend":  {},
		"database": {},
		"api":      {},
		"ci":       {},
		"infra":    {},
		"testing":  {},
		"docs":     {},
		"security": {},
		"tooling":  {},
	}
)

// Default artifact per domain, used when the model leaves artifact empty but
// the rest of the result is usable.
var domainArtifacts = map[string]string{
	"database": "schema",
	"ci":       "pipeline",
	"docs":     "docs",
	"testing":  "tests",
	"infra":    "infra",
}

// Actions returns the allowed workflow actions, sorted.
func Actions() []string { return sortedKeys(actionSet) }

// Artifacts returns the allowed workflow artifacts, sorted.
func Artifacts() []string { return sortedKeys(artifactSet) }

// Domains returns the allowed workflow domains, sorted.
func Domains() []string { return sortedKeys(domainSet) }

// Sanitize normalizes a workflow result against the taxonomy. It lowercases
// and trims every field, derives a canonical artifact when the model left the
// field empty, and filters domains down to known values. ok is false when the
// result cannot be made taxonomy-clean; such results are dropped silently.
func Sanitize(result *WorkflowResult) (*WorkflowResult, bool) {
	if result == nil {
		return nil, false
	}
	clean := &WorkflowResult{
		QueueID:    result.QueueID,
		Action:     normalizeTerm(result.Action),
		Artifact:   normalizeTerm(result.Artifact),
		Confidence: result.Confidence,
		Reasoning:  strings.TrimSpace(result.Reasoning),
	}
	if _, ok := actionSet[clean.Action]; !ok {
		return nil, false
	}

	for _, domain := range result.Domains {
		domain = normalizeTerm(domain)
		if _, ok := domainSet[domain]; ok {
			clean.Domains = append(clean.Domains, domain)
		}
	}
	if len(clean.Domains) == 0 {
		return nil, false
	}
	sort.Strings(clean.Domains)
	clean.Domains = dedupeSorted(clean.Domains)

	if clean.Artifact == "" {
		clean.Artifact = canonicalArtifact(clean.Domains)
	}
	if _, ok := artifactSet[clean.Artifact]; !ok {
		return nil, false
	}
	return clean, true
}

// Signature computes the canonical identity of a sanitized workflow: the
// lowercase join of action, artifact, and sorted domains. Two conversations
// exercising the same workflow produce the same signature.
func Signature(result *WorkflowResult) string {
	parts := make([]string, 0, 2+len(result.Domains))
	parts = append(parts, result.Action, result.Artifact)
	parts = append(parts, result.Domains...)
	return strings.ToLower(strings.Join(parts, ":"))
}

// IsExcluded reports whether a sanitized workflow is boilerplate or too weak
// to act on. Excluded candidates are skipped without failing the item.
func IsExcluded(result *WorkflowResult) bool {
	if result.Confidence < 0.5 {
		return true
	}
	if len(result.Reasoning) < 20 {
		return true
	}
	// Reading docs or reviewing code without a narrower domain is what every
	// conversation looks like; a signature for it automates nothing.
	if result.Action == "review" && result.Artifact == "docs" {
		return true
	}
	return false
}

func canonicalArtifact(domains []string) string {
	for _, domain := range domains {
		if artifact, ok := domainArtifacts[domain]; ok {
			return artifact
		}
	}
	return "code"
}

func normalizeTerm(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func dedupeSorted(values []string) []string {
	out := values[:0]
	for i, value := range values {
		if i == 0 || value != values[i-1] {
			out = append(out, value)
		}
	}
	return out
}
