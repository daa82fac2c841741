package agent

import (
	"encoding/json"
)

// ToolRequest is one structured tool-call descriptor suggested by the
// completeness evaluator.
type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// CompletionDecision is the typed verdict extracted from the evaluator's
// free-text response.
type CompletionDecision struct {
	IsComplete      bool          `json:"is_complete"`
	ConfidenceScore float64       `json:"confidence_score"`
	MissingParts    []string      `json:"missing_parts"`
	SuggestedTools  []ToolRequest `json:"suggested_tools"`
}

// ExtractionSource says which path produced a decision.
type ExtractionSource string

const (
	// SourceParsed means a structured block parsed cleanly
	SourceParsed ExtractionSource = "parsed"
	// SourceHeuristic means no structured block was found
	SourceHeuristic ExtractionSource = "heuristic"
	// SourceUnparseable means a structured block was found but failed to parse
	SourceUnparseable ExtractionSource = "unparseable"
)

// Extraction bundles a decision with how it was obtained. Warning is
// non-empty only on the unparseable path; it is informational and never
// fatal.
type Extraction struct {
	Decision CompletionDecision
	Source   ExtractionSource
	Warning  string
}

// ExtractDecision converts an unstructured model response into a typed
// decision. It never fails: malformed input always resolves to a defined
// low-confidence decision.
//
// Resolution order:
//  1. The first balanced {...} substring is parsed strictly; absent
//     fields get independent defaults (is_complete=false,
//     confidence_score=0.5, empty lists).
//  2. No object at all falls back to a heuristic that favors continued
//     exploration early on: complete only from iteration 3, confidence 0.7.
//  3. An object that fails to parse yields the most conservative result
//     (incomplete, confidence 0.5, missing_parts=["unparseable"]) plus a
//     warning for the caller to log.
func ExtractDecision(text string, iteration int) Extraction {
	obj, found := firstBalancedObject(text)
	if !found {
		return Extraction{
			Decision: CompletionDecision{
				IsComplete:      iteration >= 3,
				ConfidenceScore: 0.7,
				MissingParts:    []string{},
				SuggestedTools:  []ToolRequest{},
			},
			Source: SourceHeuristic,
		}
	}

	// Pointer fields distinguish "absent" from zero values so each field
	// defaults independently.
	var raw struct {
		IsComplete      *bool         `json:"is_complete"`
		ConfidenceScore *float64      `json:"confidence_score"`
		MissingParts    []string      `json:"missing_parts"`
		SuggestedTools  []ToolRequest `json:"suggested_tools"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Extraction{
			Decision: CompletionDecision{
				IsComplete:      false,
				ConfidenceScore: 0.5,
				MissingParts:    []string{"unparseable"},
				SuggestedTools:  []ToolRequest{},
			},
			Source:  SourceUnparseable,
			Warning: "evaluator response contained a structured block that failed to parse: " + err.Error(),
		}
	}

	decision := CompletionDecision{
		IsComplete:      false,
		ConfidenceScore: 0.5,
		MissingParts:    []string{},
		SuggestedTools:  []ToolRequest{},
	}
	if raw.IsComplete != nil {
		decision.IsComplete = *raw.IsComplete
	}
	if raw.ConfidenceScore != nil {
		decision.ConfidenceScore = *raw.ConfidenceScore
	}
	if raw.MissingParts != nil {
		decision.MissingParts = raw.MissingParts
	}
	if raw.SuggestedTools != nil {
		decision.SuggestedTools = raw.SuggestedTools
	}
	return Extraction{Decision: decision, Source: SourceParsed}
}

// firstBalancedObject returns the first substring of text spanning an
// outermost matching brace pair, skipping braces inside JSON string
// literals.
func firstBalancedObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			// Quotes before the first brace are prose, not JSON strings.
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}

	// An opening brace that never closes is not a structured block; the
	// heuristic path handles it.
	return "", false
}
