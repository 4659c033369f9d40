package llmtool

import (
	"encoding/json"
	"fmt"
	"strings"

	"distill/internal/services"
)

// wrapper is the tool's primary output envelope. The model text lives in
// Result; the remaining fields carry tool-level error signaling.
type wrapper struct {
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
	Error   string `json:"error"`
	Type    string `json:"type"`
}

var authPhrases = []string{
	"login",
	"log in",
	"logged out",
	"signed out",
	"sign in",
	"authentication",
	"unauthorized",
	"api key",
	"credential",
	"session expired",
}

// decodeWrapper unwraps the tool's output envelope and returns the model
// text, normalized down to the JSON span the caller asked for.
func decodeWrapper(stdout string) (string, error) {
	var w wrapper
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &w); err != nil {
		return "", services.Wrap(services.ErrValidation, "llmtool", "decode", "invalid tool output wrapper", err)
	}
	if w.IsError {
		message := strings.TrimSpace(w.Error)
		if message == "" {
			message = "tool reported an error without a message"
		}
		if isAuthError(message) {
			return "", services.Wrap(services.ErrAuthRequired, "llmtool", "execute", message, nil)
		}
		return "", services.Wrap(services.ErrExternalTool, "llmtool", "execute", message, nil)
	}
	// Guard against silent output-format drift in tool upgrades.
	if w.Type != "" && w.Type != "result" {
		return "", services.Wrap(services.ErrValidation, "llmtool", "decode",
			fmt.Sprintf("unexpected wrapper type %q", w.Type), nil)
	}
	return extractJSON(w.Result)
}

func isAuthError(message string) bool {
	lowered := strings.ToLower(message)
	for _, phrase := range authPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// extractJSON normalizes model text into a bare JSON document. Models wrap
// JSON in Markdown fences or prose despite instructions, so fences are
// stripped first and otherwise the first balanced {...} or [...] span wins.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrValidation, "llmtool", "decode", "empty result", nil)
	}
	if fenced, ok := stripFences(text); ok {
		text = fenced
	}
	if span, ok := balancedSpan(text); ok {
		return span, nil
	}
	return "", services.Wrap(services.ErrValidation, "llmtool", "decode", "no JSON found in result", nil)
}

// stripFences unwraps a ```...``` block, tolerating a language tag after the
// opening fence.
func stripFences(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
		rest = rest[newline+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedSpan finds the first balanced top-level JSON object or array,
// tracking string literals and escapes so braces inside strings do not count.
func balancedSpan(text string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if text[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
