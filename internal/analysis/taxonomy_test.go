package analysis

import (
	"reflect"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name   string
		input  WorkflowResult
		want   *WorkflowResult
		wantOK bool
	}{
		{
			name: "clean result passes through",
			input: WorkflowResult{
				Action:     "deploy",
				Artifact:   "pipeline",
				Domains:    []string{"ci", "backend"},
				Confidence: 0.9,
				Reasoning:  "user ran the same deploy steps twice",
			},
			want: &WorkflowResult{
				Action:     "deploy",
				Artifact:   "pipeline",
				Domains:    []string{"backend", "ci"},
				Confidence: 0.9,
				Reasoning:  "user ran the same deploy steps twice",
			},
			wantOK: true,
		},
		{
			name: "mixed case and whitespace normalized",
			input: WorkflowResult{
				Action:   " Refactor ",
				Artifact: "CODE",
				Domains:  []string{"Backend", "backend"},
			},
			want: &WorkflowResult{
				Action:   "refactor",
				Artifact: "code",
				Domains:  []string{"backend"},
			},
			wantOK: true,
		},
		{
			name: "hallucinated action dropped",
			input: WorkflowResult{
				Action:   "synergize",
				Artifact: "code",
				Domains:  []string{"backend"},
			},
		},
		{
			name: "unknown domains filtered, none left",
			input: WorkflowResult{
				Action:   "debug",
				Artifact: "code",
				Domains:  []string{"blockchain", "metaverse"},
			},
		},
		{
			name: "empty artifact derived from domain",
			input: WorkflowResult{
				Action:  "migrate",
				Domains: []string{"database"},
			},
			want: &WorkflowResult{
				Action:   "migrate",
				Artifact: "schema",
				Domains:  []string{"database"},
			},
			wantOK: true,
		},
		{
			name: "empty artifact falls back to code",
			input: WorkflowResult{
				Action:  "debug",
				Domains: []string{"backend"},
			},
			want: &WorkflowResult{
				Action:   "debug",
				Artifact: "code",
				Domains:  []string{"backend"},
			},
			wantOK: true,
		},
		{
			name: "hallucinated artifact dropped",
			input: WorkflowResult{
				Action:   "debug",
				Artifact: "mainframe",
				Domains:  []string{"backend"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Sanitize(&tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Sanitize() ok = %v, want %v", ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if got.Action != tt.want.Action || got.Artifact != tt.want.Artifact {
				t.Errorf("Sanitize() = %s/%s, want %s/%s", got.Action, got.Artifact, tt.want.Action, tt.want.Artifact)
			}
			if !reflect.DeepEqual(got.Domains, tt.want.Domains) {
				t.Errorf("Sanitize() domains = %v, want %v", got.Domains, tt.want.Domains)
			}
		})
	}
}

func TestSignature(t *testing.T) {
	result := &WorkflowResult{
		Action:   "deploy",
		Artifact: "pipeline",
		Domains:  []string{"backend", "ci"},
	}
	want := "deploy:pipeline:backend:ci"
	if got := Signature(result); got != want {
		t.Errorf("Signature() = %q, want %q", got, want)
	}
}

func TestIsExcluded(t *testing.T) {
	base := WorkflowResult{
		Action:     "deploy",
		Artifact:   "pipeline",
		Domains:    []string{"ci"},
		Confidence: 0.9,
		Reasoning:  "user repeated the same release checklist in both sessions",
	}

	if IsExcluded(&base) {
		t.Error("strong candidate should not be excluded")
	}

	low := base
	low.Confidence = 0.3
	if !IsExcluded(&low) {
		t.Error("low confidence should be excluded")
	}

	thin := base
	thin.Reasoning = "seems common"
	if !IsExcluded(&thin) {
		t.Error("thin reasoning should be excluded")
	}

	boilerplate := base
	boilerplate.Action = "review"
	boilerplate.Artifact = "docs"
	if !IsExcluded(&boilerplate) {
		t.Error("review/docs boilerplate should be excluded")
	}
}
