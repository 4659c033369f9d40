package conversations

import "strings"

// Phrases that indicate a conversation is about running the tool or the
// project itself rather than real work worth learning from.
var metaTitleMarkers = []string{
	"retrospective",
	"retro",
	"sprint planning",
	"standup",
	"postmortem",
	"roadmap",
	"distill",
}

var metaContentMarkers = []string{
	"distill daemon",
	"distill queue",
	"analysis queue",
	"this tool",
	"the analyzer",
}

// IsMeta reports whether a conversation looks like project-management or
// retrospective talk about distill itself. Workflow and learning results for
// meta conversations are deliberately skipped (the item is still applied) so
// the tool does not learn from talk about its own operation.
func IsMeta(conv *Conversation, messages []Message) bool {
	if conv != nil {
		title := strings.ToLower(conv.Title)
		for _, marker := range metaTitleMarkers {
			if strings.Contains(title, marker) {
				return true
			}
		}
	}
	if len(messages) == 0 {
		return false
	}
	hits := 0
	for _, msg := range messages {
		content := strings.ToLower(msg.Content)
		for _, marker := range metaContentMarkers {
			if strings.Contains(content, marker) {
				hits++
				break
			}
		}
	}
	// More than half the messages referencing the tool is a strong signal.
	return hits*2 > len(messages)
}
