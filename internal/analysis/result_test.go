package analysis

import (
	"strings"
	"testing"

	"distill/internal/queue"
)

func TestSplitBatch(t *testing.T) {
	raw := `[
        {"queue_id": "q1", "suggested_title": "Fix CI", "confidence": 0.8},
        {"queue_id": "q2", "suggested_title": "Refactor cache", "confidence": 0.7}
    ]`

	results, err := SplitBatch(raw)
	if err != nil {
		t.Fatalf("SplitBatch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, id := range []string{"q1", "q2"} {
		if _, ok := results[id]; !ok {
			t.Errorf("missing result for %s", id)
		}
	}
}

func TestSplitBatchRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not an array", `{"queue_id": "q1"}`},
		{"missing queue_id", `[{"suggested_title": "x"}]`},
		{"blank queue_id", `[{"queue_id": "  "}]`},
		{"not json", "the model apologizes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SplitBatch(tt.raw); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecodeLearning(t *testing.T) {
	raw := `{"queue_id":"q1","learnings":[{"type":"correction","rule":"Use tabs instead of spaces","confidence":0.9,"evidence":"please use tabs","message_id":"m1"}]}`
	result, err := DecodeLearning(raw)
	if err != nil {
		t.Fatalf("DecodeLearning failed: %v", err)
	}
	if result.QueueID != "q1" || len(result.Learnings) != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}
	learning := result.Learnings[0]
	if learning.Type != LearningTypeCorrection || learning.MessageID != "m1" {
		t.Fatalf("unexpected learning: %#v", learning)
	}
}

func TestDecodeSummaryRequiresContent(t *testing.T) {
	if _, err := DecodeSummary(`{"queue_id":"q1","confidence":0.9}`); err == nil {
		t.Fatal("expected error for empty summary result")
	}
	result, err := DecodeSummary(`{"queue_id":"q1","suggested_title":"Fix CI","confidence":0.9}`)
	if err != nil {
		t.Fatalf("DecodeSummary failed: %v", err)
	}
	if result.SuggestedTitle != "Fix CI" {
		t.Fatalf("unexpected title %q", result.SuggestedTitle)
	}
}

func TestDecodeDedupe(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid merge",
			raw:  `{"queue_id":"q1","merge_suggestions":[{"source_ids":["l1","l2"],"merged_rule":"Prefer tabs","confidence":0.8,"reasoning":"same rule"}]}`,
		},
		{
			name:    "single source id",
			raw:     `{"queue_id":"q1","merge_suggestions":[{"source_ids":["l1"],"merged_rule":"Prefer tabs","confidence":0.8}]}`,
			wantErr: true,
		},
		{
			name:    "missing merged rule",
			raw:     `{"queue_id":"q1","merge_suggestions":[{"source_ids":["l1","l2"],"merged_rule":"  ","confidence":0.8}]}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDedupe(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeDedupe() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInstructionsCoverEveryType(t *testing.T) {
	for _, kind := range []queue.AnalysisType{queue.TypeWorkflow, queue.TypeLearning, queue.TypeSummary, queue.TypeDedupe} {
		text := Instructions(kind)
		if text == "" {
			t.Errorf("no instructions for %s", kind)
		}
		if !strings.Contains(text, "queue_id") {
			t.Errorf("instructions for %s do not mention queue_id tagging", kind)
		}
	}
}
