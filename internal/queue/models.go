package queue

import (
	"strings"
	"time"
)

// AnalysisType identifies what kind of analysis a queue item requests.
type AnalysisType string

const (
	TypeWorkflow AnalysisType = "workflow"
	TypeLearning AnalysisType = "learning"
	TypeSummary  AnalysisType = "summary"
	TypeDedupe   AnalysisType = "dedupe"
)

var allTypes = []AnalysisType{TypeWorkflow, TypeLearning, TypeSummary, TypeDedupe}

// AllTypes returns the ordered list of known analysis types.
func AllTypes() []AnalysisType {
	cp := make([]AnalysisType, len(allTypes))
	copy(cp, allTypes)
	return cp
}

// ParseAnalysisType converts a string into a known AnalysisType.
func ParseAnalysisType(value string) (AnalysisType, bool) {
	normalized := AnalysisType(strings.ToLower(strings.TrimSpace(value)))
	for _, t := range allTypes {
		if t == normalized {
			return t, true
		}
	}
	return "", false
}

// State describes where an item sits in its lifecycle. Exactly one state
// holds at any time; it is derived from the persisted columns rather than
// stored separately so the two can never disagree.
type State string

const (
	StateReady         State = "ready"
	StateClaimed       State = "claimed"
	StateResultPending State = "result_pending"
	StateApplied       State = "applied"
	StateFailed        State = "failed"
)

// Item represents one unit of analysis work.
type Item struct {
	ID              string
	ConversationID  string
	Type            AnalysisType
	Backend         string
	AnalysisVersion string
	ClaimHolder     string
	ClaimedAt       *time.Time
	ResultPayload   string
	AppliedAt       *time.Time
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// State derives the lifecycle state from the item's columns.
func (i *Item) State() State {
	switch {
	case i.AppliedAt != nil:
		return StateApplied
	case i.FailureReason != "":
		return StateFailed
	case i.ResultPayload != "":
		return StateResultPending
	case i.ClaimHolder != "":
		return StateClaimed
	default:
		return StateReady
	}
}

// Claimed reports whether a lease currently holds the item.
func (i *Item) Claimed() bool {
	return i.ClaimHolder != ""
}

// Terminal reports whether the item reached a final state.
func (i *Item) Terminal() bool {
	return i.AppliedAt != nil || i.FailureReason != ""
}

// Stats aggregates queue counts per lifecycle state.
type Stats struct {
	Total         int
	Ready         int
	Claimed       int
	ResultPending int
	Applied       int
	Failed        int
}
