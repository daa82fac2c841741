// Package agent implements the iterative document-synthesis loop: the
// mutable run state, the bounded control loop that drives it, and the
// resilient extraction of completion decisions from model output.
package agent

import (
	"github.com/RRFRRF/Repo2TutorialAgent/internal/ai"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/explore"
)

// Status identifies where a synthesis run is in its lifecycle.
// Terminal values are StatusCompleted and StatusError.
type Status string

const (
	// StatusInitialized is the starting status before any document exists
	StatusInitialized Status = "initialized"
	// StatusDocGenerated indicates a generation step just produced a document
	StatusDocGenerated Status = "doc_generated"
	// StatusNeedsExploration indicates the evaluator wants more repository context
	StatusNeedsExploration Status = "needs_exploration"
	// StatusCompleted indicates the run finished with a document
	StatusCompleted Status = "completed"
	// StatusError indicates an unrecoverable step failure
	StatusError Status = "error"
)

// CallKind labels a model call in the usage ledger.
type CallKind string

const (
	// CallInitialDoc is the first document generation call
	CallInitialDoc CallKind = "initial_doc"
	// CallUpdateDoc is an incremental document update call
	CallUpdateDoc CallKind = "update_doc"
	// CallCheckCompleteness is a completeness evaluation call
	CallCheckCompleteness CallKind = "check_completeness"
)

// UsageCall is one logged model call in the ledger.
type UsageCall struct {
	Iteration        int      `json:"iteration"`
	Kind             CallKind `json:"type"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
}

// UsageLedger accumulates per-call token counts for a single run.
// It is append-only: totals always equal the field-wise sum of Calls.
// The ledger is owned by the control loop goroutine and is not safe for
// concurrent mutation.
type UsageLedger struct {
	TotalPromptTokens     int         `json:"total_prompt_tokens"`
	TotalCompletionTokens int         `json:"total_completion_tokens"`
	TotalTokens           int         `json:"total_tokens"`
	Calls                 []UsageCall `json:"calls"`
}

// Record logs one model call and folds its counts into the totals.
func (l *UsageLedger) Record(iteration int, kind CallKind, usage ai.TokenUsage) {
	l.TotalPromptTokens += usage.PromptTokens
	l.TotalCompletionTokens += usage.CompletionTokens
	l.TotalTokens += usage.TotalTokens
	l.Calls = append(l.Calls, UsageCall{
		Iteration:        iteration,
		Kind:             kind,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	})
}

// CallCount returns the number of logged calls.
func (l *UsageLedger) CallCount() int { return len(l.Calls) }

// ExplorationRecord captures one completed exploration step for the
// progress feed.
type ExplorationRecord struct {
	Iteration int                `json:"iteration"`
	Action    string             `json:"action"`
	Findings  string             `json:"findings"`
	ToolCalls []explore.ToolCall `json:"tool_calls"`
}

// State is the full mutable record of one document-synthesis run. It is
// single-owner: only the control loop goroutine mutates it, and steps run
// strictly in sequence. Events carry copied snapshots, never the live
// struct.
type State struct {
	// RepoPath is the repository under synthesis, fixed at creation.
	RepoPath string

	// HighLevelInfo is the input seed for the first generation step.
	// Immutable once the init step has populated it.
	HighLevelInfo string

	// CurrentDocument is the latest synthesized document, empty until
	// the first generation step.
	CurrentDocument string

	// DocumentVersions is the append-only history, one entry per
	// successful generation step. Never truncated.
	DocumentVersions []string

	// IterationCount is the number of completed generate cycles.
	IterationCount int

	// MaxIterations is the hard iteration ceiling, fixed at creation.
	MaxIterations int

	// IsComplete is sticky: once true it is never reset within a run.
	IsComplete bool

	// ConfidenceScore is the most recent completeness estimate in [0, 1].
	ConfidenceScore float64

	// MissingParts names the gaps found by the latest evaluation. It is
	// replaced wholesale each evaluation, not accumulated.
	MissingParts []string

	// PendingExploration is the serialized tool request produced by the
	// evaluator, consumed (reset to empty) by the exploration step.
	PendingExploration string

	// ToolFindings holds the latest exploration findings, consumed
	// (reset to empty) by the next generation step.
	ToolFindings string

	// ExplorationHistory records every completed exploration step.
	ExplorationHistory []ExplorationRecord

	// Status routes the control loop.
	Status Status

	// ErrMessage carries the failure text when Status is StatusError.
	ErrMessage string

	// Usage is the run's token ledger.
	Usage UsageLedger
}

// NewState creates the initial state for a run. maxIterations must be
// positive; the control loop validates it before running.
func NewState(repoPath string, maxIterations int) *State {
	return &State{
		RepoPath:      repoPath,
		MaxIterations: maxIterations,
		Status:        StatusInitialized,
	}
}

// Terminal reports whether the state has reached a terminal status.
func (s *State) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}
