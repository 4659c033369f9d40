package apply

import (
	"regexp"
	"strings"

	"distill/internal/conversations"
)

// Patterns marking a rule as task- or path-specific. Such rules stay
// project-scoped no matter how many projects they were observed in.
var (
	pathPattern = regexp.MustCompile(`(^|\s)[\w.~-]*/[\w./~-]+`)
	urlPattern  = regexp.MustCompile(`\bhttps?://`)
)

var internalToolMarkers = []string{
	"makefile",
	"justfile",
	"monorepo",
	"internal tool",
	"our cli",
	"this repo",
}

// resolveScope decides whether a learning applies to one project or globally.
// Default is project; promotion to global requires a rule free of paths, URLs
// and internal tool names, observed across at least two distinct project
// paths or providers.
func resolveScope(rule string, convs []*conversations.Conversation) string {
	if isRuleSpecific(rule) {
		return "project"
	}

	paths := map[string]struct{}{}
	providers := map[string]struct{}{}
	for _, conv := range convs {
		if conv == nil {
			continue
		}
		if conv.ProjectPath != "" {
			paths[conv.ProjectPath] = struct{}{}
		}
		if conv.Provider != "" {
			providers[conv.Provider] = struct{}{}
		}
	}
	if len(paths) >= 2 || len(providers) >= 2 {
		return "global"
	}
	return "project"
}

func isRuleSpecific(rule string) bool {
	if pathPattern.MatchString(rule) || urlPattern.MatchString(rule) {
		return true
	}
	lowered := strings.ToLower(rule)
	for _, marker := range internalToolMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
