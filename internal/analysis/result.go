package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"distill/internal/queue"
)

// SchemaVersion tags every request so output format drift is detectable.
const SchemaVersion = "1"

// WorkflowResult is the model's answer for a workflow analysis item.
// Action, artifact, and domains must belong to the closed taxonomy; values
// outside it are dropped during sanitation, never persisted.
type WorkflowResult struct {
	QueueID    string   `json:"queue_id"`
	Action     string   `json:"action"`
	Artifact   string   `json:"artifact"`
	Domains    []string `json:"domains"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Learning is one extracted user-preference rule. Evidence must be a verbatim
// quote traceable to a real message in the conversation.
type Learning struct {
	Type       string  `json:"type"`
	Rule       string  `json:"rule"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
	MessageID  string  `json:"message_id"`
}

// LearningResult is the model's answer for a learning analysis item.
type LearningResult struct {
	QueueID   string     `json:"queue_id"`
	Learnings []Learning `json:"learnings"`
}

// SummaryResult is the model's answer for a summary analysis item.
type SummaryResult struct {
	QueueID          string  `json:"queue_id"`
	SuggestedTitle   string  `json:"suggested_title"`
	SuggestedSummary string  `json:"suggested_summary,omitempty"`
	Confidence       float64 `json:"confidence"`
}

// MergeSuggestion proposes merging a set of learnings into one rule.
type MergeSuggestion struct {
	SourceIDs  []string `json:"source_ids"`
	MergedRule string   `json:"merged_rule"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// DedupeResult is the model's answer for a dedupe analysis item.
type DedupeResult struct {
	QueueID          string            `json:"queue_id"`
	MergeSuggestions []MergeSuggestion `json:"merge_suggestions"`
}

// LearningTypeCorrection marks a learning extracted from an explicit user
// correction. Corrections are always stored fresh; other types merge into an
// existing rule when the normalized text matches.
const LearningTypeCorrection = "correction"

// SplitBatch parses the tool's top-level output, a JSON array with one object
// per input item, and indexes the raw elements by their queue_id tag. Elements
// without a queue_id are rejected: an untagged result cannot be attributed to
// any item and accepting it would risk applying output to the wrong one.
func SplitBatch(raw string) (map[string]json.RawMessage, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return nil, fmt.Errorf("decode result array: %w", err)
	}

	results := make(map[string]json.RawMessage, len(elements))
	for i, element := range elements {
		var tag struct {
			QueueID string `json:"queue_id"`
		}
		if err := json.Unmarshal(element, &tag); err != nil {
			return nil, fmt.Errorf("decode result element %d: %w", i, err)
		}
		if strings.TrimSpace(tag.QueueID) == "" {
			return nil, fmt.Errorf("result element %d missing queue_id", i)
		}
		results[tag.QueueID] = element
	}
	return results, nil
}

// DecodeWorkflow decodes one workflow result element.
func DecodeWorkflow(raw string) (*WorkflowResult, error) {
	var result WorkflowResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode workflow result: %w", err)
	}
	return &result, nil
}

// DecodeLearning decodes one learning result element.
func DecodeLearning(raw string) (*LearningResult, error) {
	var result LearningResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode learning result: %w", err)
	}
	return &result, nil
}

// DecodeSummary decodes one summary result element.
func DecodeSummary(raw string) (*SummaryResult, error) {
	var result SummaryResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode summary result: %w", err)
	}
	if strings.TrimSpace(result.SuggestedTitle) == "" && strings.TrimSpace(result.SuggestedSummary) == "" {
		return nil, fmt.Errorf("summary result carries neither title nor summary")
	}
	return &result, nil
}

// DecodeDedupe decodes one dedupe result element.
func DecodeDedupe(raw string) (*DedupeResult, error) {
	var result DedupeResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode dedupe result: %w", err)
	}
	for i, merge := range result.MergeSuggestions {
		if len(merge.SourceIDs) < 2 {
			return nil, fmt.Errorf("merge suggestion %d needs at least two source ids", i)
		}
		if strings.TrimSpace(merge.MergedRule) == "" {
			return nil, fmt.Errorf("merge suggestion %d missing merged rule", i)
		}
	}
	return &result, nil
}

// Instructions returns the free-text prompt preamble for an analysis type.
// The preamble precedes the payload delimiter on the tool's input stream.
func Instructions(kind queue.AnalysisType) string {
	switch kind {
	case queue.TypeWorkflow:
		return "For each conversation below, identify one automatable workflow the user performed. " +
			"Respond with a JSON array, one object per queueItems entry, each tagged with its queue_id and " +
			"carrying action, artifact, domains, confidence (0-1), and reasoning. " +
			"Use only these values. Actions: " + strings.Join(Actions(), ", ") + ". " +
			"Artifacts: " + strings.Join(Artifacts(), ", ") + ". " +
			"Domains: " + strings.Join(Domains(), ", ") + "."
	case queue.TypeLearning:
		return "For each conversation below, extract durable user preferences and corrections as learnings. " +
			"Respond with a JSON array, one object per queueItems entry, each tagged with its queue_id and " +
			"carrying a learnings array of {type, rule, confidence, evidence, message_id}. " +
			"The evidence field must be a short verbatim quote copied from a message."
	case queue.TypeSummary:
		return "For each conversation below, propose a concise title and optionally a one-paragraph summary. " +
			"Respond with a JSON array, one object per queueItems entry, each tagged with its queue_id and " +
			"carrying suggested_title, suggested_summary, and confidence (0-1)."
	case queue.TypeDedupe:
		return "The conversations below contain stored learnings that may duplicate each other. " +
			"Respond with a JSON array, one object per queueItems entry, each tagged with its queue_id and " +
			"carrying a merge_suggestions array of {source_ids, merged_rule, confidence, reasoning}."
	default:
		return ""
	}
}
