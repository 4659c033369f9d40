package main

import (
	"strings"
	"testing"
)

func TestRenderTableAlignment(t *testing.T) {
	out := renderTable(
		[]string{"State", "Count"},
		[][]string{
			{"Ready", "3"},
			{"Failed", "12"},
		},
		1,
	)

	for _, want := range []string{"State", "Count", "Ready", "Failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Right alignment puts the digits against the column's right border.
	if !strings.Contains(out, " 3 │") && !strings.Contains(out, " 3 |") {
		t.Errorf("count column not right-aligned:\n%s", out)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Detail"},
		[][]string{{"q1"}},
	)
	if !strings.Contains(out, "q1") {
		t.Fatalf("row missing:\n%s", out)
	}
	if lines := strings.Split(out, "\n"); len(lines) < 4 {
		t.Fatalf("expected bordered table, got:\n%s", out)
	}
}

func TestRenderTableEmptyHeaders(t *testing.T) {
	if out := renderTable(nil, nil); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestRenderTableIgnoresOutOfRangeAlignment(t *testing.T) {
	out := renderTable(
		[]string{"ID"},
		[][]string{{"q1"}},
		-1, 5,
	)
	if !strings.Contains(out, "q1") {
		t.Fatalf("row missing:\n%s", out)
	}
}
