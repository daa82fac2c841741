package agent

import (
	"testing"
)

func TestExtractDecision_EmbeddedInProse(t *testing.T) {
	input := `The document looks solid overall. Here is my assessment:

{"is_complete": true, "confidence_score": 0.95, "missing_parts": [], "suggested_tools": []}

Let me know if you need anything else.`

	result := ExtractDecision(input, 1)

	if result.Source != SourceParsed {
		t.Fatalf("expected parsed source, got %s (warning: %s)", result.Source, result.Warning)
	}
	d := result.Decision
	if !d.IsComplete {
		t.Error("expected is_complete=true")
	}
	if d.ConfidenceScore != 0.95 {
		t.Errorf("expected confidence 0.95, got %v", d.ConfidenceScore)
	}
	if len(d.MissingParts) != 0 {
		t.Errorf("expected empty missing_parts, got %v", d.MissingParts)
	}
	if len(d.SuggestedTools) != 0 {
		t.Errorf("expected empty suggested_tools, got %v", d.SuggestedTools)
	}
}

func TestExtractDecision_IndependentDefaults(t *testing.T) {
	// Absent fields default independently of the ones present.
	result := ExtractDecision(`{"confidence_score": 0.9}`, 1)

	if result.Source != SourceParsed {
		t.Fatalf("expected parsed source, got %s", result.Source)
	}
	if result.Decision.IsComplete {
		t.Error("absent is_complete should default to false")
	}
	if result.Decision.ConfidenceScore != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", result.Decision.ConfidenceScore)
	}
	if result.Decision.MissingParts == nil || len(result.Decision.MissingParts) != 0 {
		t.Errorf("absent missing_parts should default to empty, got %v", result.Decision.MissingParts)
	}
}

func TestExtractDecision_HeuristicFallback(t *testing.T) {
	input := "I could not produce a structured answer this time."

	early := ExtractDecision(input, 2)
	if early.Source != SourceHeuristic {
		t.Fatalf("expected heuristic source, got %s", early.Source)
	}
	if early.Decision.IsComplete {
		t.Error("iteration 2 should not be complete under the heuristic")
	}
	if early.Decision.ConfidenceScore != 0.7 {
		t.Errorf("expected confidence 0.7, got %v", early.Decision.ConfidenceScore)
	}

	late := ExtractDecision(input, 3)
	if !late.Decision.IsComplete {
		t.Error("iteration 3 should be complete under the heuristic")
	}
	if late.Decision.ConfidenceScore != 0.7 {
		t.Errorf("expected confidence 0.7, got %v", late.Decision.ConfidenceScore)
	}
}

func TestExtractDecision_UnparseableBlock(t *testing.T) {
	// Trailing comma fails strict parsing.
	input := `{"is_complete": true, "confidence_score": 0.9,}`

	result := ExtractDecision(input, 5)

	if result.Source != SourceUnparseable {
		t.Fatalf("expected unparseable source, got %s", result.Source)
	}
	d := result.Decision
	if d.IsComplete {
		t.Error("unparseable block must resolve to incomplete")
	}
	if d.ConfidenceScore != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", d.ConfidenceScore)
	}
	if len(d.MissingParts) != 1 || d.MissingParts[0] != "unparseable" {
		t.Errorf("expected missing_parts=[unparseable], got %v", d.MissingParts)
	}
	if result.Warning == "" {
		t.Error("expected a warning on the unparseable path")
	}
}

func TestExtractDecision_UnclosedObject(t *testing.T) {
	// An opening brace with no close is not a structured block: the
	// heuristic applies, not the unparseable result.
	input := `analysis: {"is_complete": true, "confidence_score": 0.9`

	early := ExtractDecision(input, 1)
	if early.Source != SourceHeuristic {
		t.Fatalf("expected heuristic source, got %s", early.Source)
	}
	if early.Decision.IsComplete {
		t.Error("iteration 1 should not be complete under the heuristic")
	}
	if early.Decision.ConfidenceScore != 0.7 {
		t.Errorf("expected confidence 0.7, got %v", early.Decision.ConfidenceScore)
	}

	late := ExtractDecision(input, 3)
	if late.Source != SourceHeuristic {
		t.Fatalf("expected heuristic source, got %s", late.Source)
	}
	if !late.Decision.IsComplete {
		t.Error("iteration 3 should be complete under the heuristic")
	}
	if late.Decision.ConfidenceScore != 0.7 {
		t.Errorf("expected confidence 0.7, got %v", late.Decision.ConfidenceScore)
	}
}

func TestExtractDecision_SuggestedTools(t *testing.T) {
	input := `{"is_complete": false, "confidence_score": 0.4, "missing_parts": ["data flow"], "suggested_tools": [{"tool": "read_file", "args": {"path": "main.go"}}]}`

	result := ExtractDecision(input, 1)

	if result.Source != SourceParsed {
		t.Fatalf("expected parsed source, got %s", result.Source)
	}
	tools := result.Decision.SuggestedTools
	if len(tools) != 1 || tools[0].Tool != "read_file" {
		t.Fatalf("expected one read_file tool, got %v", tools)
	}
	if tools[0].Args["path"] != "main.go" {
		t.Errorf("expected path=main.go, got %v", tools[0].Args)
	}
}

func TestFirstBalancedObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{"simple", `before {"a": 1} after`, `{"a": 1}`, true},
		{"nested", `{"a": {"b": 2}} {"c": 3}`, `{"a": {"b": 2}}`, true},
		{"brace in string", `{"a": "}{"} tail`, `{"a": "}{"}`, true},
		{"escaped quote in string", `{"a": "say \"}\""} tail`, `{"a": "say \"}\""}`, true},
		{"none", "no braces here", "", false},
		{"unclosed", `x {"a": 1`, "", false},
		{"unclosed nested", `{"a": {"b": 1}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := firstBalancedObject(tt.input)
			if found != tt.found {
				t.Fatalf("found=%v, want %v", found, tt.found)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
