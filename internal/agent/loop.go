package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/ai"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/explore"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/stream"
)

// Node names on the progress feed.
const (
	nodeInit     = "init"
	nodeGenerate = "generate_doc"
	nodeCheck    = "check_completeness"
	nodeExplore  = "execute_tools"
	nodeSave     = "save_output"
)

// Saver persists the result of a completed run. Savers run in order
// during the save step; a failing saver fails the step.
type Saver interface {
	Save(ctx context.Context, taskID string, st *State) error
}

// Config tunes one control loop.
type Config struct {
	// ConfidenceThreshold is the confidence at which the loop accepts
	// completion even without the evaluator's explicit flag.
	ConfidenceThreshold float64

	// PreviewChars bounds the document preview on the complete event.
	// Zero means the default of 2000.
	PreviewChars int
}

// Loop drives one State through the synthesis state machine, bounded by
// the state's iteration ceiling, emitting progress events at every
// transition. It is effectively single-writer: no two steps run
// concurrently on the same state, and no other goroutine touches the
// state while Run is in flight.
type Loop struct {
	taskID   string
	model    ai.Client
	explorer explore.Explorer
	bus      *stream.Bus
	savers   []Saver
	cfg      Config
	logger   *slog.Logger
}

// NewLoop builds a loop. model, explorer, and bus are required; savers
// may be empty when the caller handles persistence itself.
func NewLoop(taskID string, model ai.Client, explorer explore.Explorer, bus *stream.Bus, cfg Config, savers []Saver, logger *slog.Logger) *Loop {
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = 2000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		taskID:   taskID,
		model:    model,
		explorer: explorer,
		bus:      bus,
		savers:   savers,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes the state machine to a terminal state:
//
//	initialized → doc_generated → {completed | needs_exploration}
//	needs_exploration → doc_generated (explore, then generate)
//	completed → save → done
//
// Any step failure is unrecoverable: the state moves to error, an error
// event is emitted, and Run returns. The caller is responsible for the
// trailing end event (see stream.Session.Go).
func (l *Loop) Run(ctx context.Context, st *State) error {
	if st.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", st.MaxIterations)
	}

	l.bus.Emit(stream.KindStart, stream.StartPayload{RepoPath: st.RepoPath})

	if err := l.step(ctx, st, nodeInit, l.stepInit); err != nil {
		return err
	}

	for {
		if err := l.step(ctx, st, nodeGenerate, l.stepGenerate); err != nil {
			return err
		}
		if err := l.step(ctx, st, nodeCheck, l.stepEvaluate); err != nil {
			return err
		}
		if st.Status != StatusNeedsExploration {
			break
		}
		if err := l.step(ctx, st, nodeExplore, l.stepExplore); err != nil {
			return err
		}
	}

	if st.Status != StatusCompleted {
		// The complete event must never follow a non-completed status; any
		// terminal state that is not completed surfaces as failed instead.
		l.bus.Emit(stream.KindFailed, stream.FailedPayload{Error: st.ErrMessage})
		return nil
	}

	if err := l.step(ctx, st, nodeSave, l.stepSave); err != nil {
		return err
	}

	l.bus.Emit(stream.KindComplete, stream.CompletePayload{
		IterationCount:  st.IterationCount,
		ConfidenceScore: st.ConfidenceScore,
		DocumentLength:  len(st.CurrentDocument),
		DocumentPreview: truncate(st.CurrentDocument, l.cfg.PreviewChars),
	})
	return nil
}

// step wraps one state transition with its node_start/node_complete
// events and the error-to-terminal conversion.
func (l *Loop) step(ctx context.Context, st *State, node string, fn func(context.Context, *State) error) error {
	l.bus.Emit(stream.KindNodeStart, stream.NodeStartPayload{
		Node:      node,
		Iteration: st.IterationCount,
	})

	if err := fn(ctx, st); err != nil {
		st.Status = StatusError
		st.ErrMessage = err.Error()
		l.logger.Error("step failed", "task", l.taskID, "node", node, "error", err)
		l.bus.Emit(stream.KindError, stream.ErrorPayload{Node: node, Message: err.Error()})
		return fmt.Errorf("%s: %w", node, err)
	}

	l.bus.Emit(stream.KindNodeComplete, stream.NodeCompletePayload{
		Node:           node,
		Iteration:      st.IterationCount,
		Status:         string(st.Status),
		Confidence:     st.ConfidenceScore,
		DocumentLength: len(st.CurrentDocument),
		IsComplete:     st.IsComplete,
		MissingParts:   slices.Clone(st.MissingParts),
	})

	if node == nodeExplore && len(st.ExplorationHistory) > 0 {
		latest := st.ExplorationHistory[len(st.ExplorationHistory)-1]
		l.bus.Emit(stream.KindExploration, stream.ExplorationPayload{
			Iteration: latest.Iteration,
			Action:    latest.Action,
			Findings:  latest.Findings,
			ToolCalls: slices.Clone(latest.ToolCalls),
		})
	}
	return nil
}

// stepInit seeds HighLevelInfo from a repository overview when the caller
// supplied none.
func (l *Loop) stepInit(ctx context.Context, st *State) error {
	if st.HighLevelInfo != "" {
		return nil
	}
	overview, err := l.explorer.Overview(ctx)
	if err != nil {
		return fmt.Errorf("building repository overview: %w", err)
	}
	st.HighLevelInfo = overview
	return nil
}

// stepGenerate produces or updates the document. The first pass generates
// from the seed; later passes fold in the latest exploration findings and
// known gaps.
func (l *Loop) stepGenerate(ctx context.Context, st *State) error {
	var messages []ai.Message
	var kind CallKind
	if st.IterationCount == 0 {
		messages = initialDocMessages(st.HighLevelInfo)
		kind = CallInitialDoc
	} else {
		messages = updateDocMessages(st.CurrentDocument, st.ToolFindings, st.MissingParts)
		kind = CallUpdateDoc
	}

	content, usage, err := l.model.Invoke(ctx, messages)
	if err != nil {
		return fmt.Errorf("document generation call: %w", err)
	}

	st.Usage.Record(st.IterationCount+1, kind, usage)
	st.CurrentDocument = content
	st.DocumentVersions = append(st.DocumentVersions, content)
	st.IterationCount++
	st.ToolFindings = ""
	st.PendingExploration = ""
	st.Status = StatusDocGenerated

	l.logger.Info("document generated",
		"task", l.taskID,
		"iteration", st.IterationCount,
		"length", len(content),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens)
	return nil
}

// stepEvaluate decides whether to stop or keep exploring. The iteration
// ceiling is checked before the evaluator is consulted: a broken or
// perpetually unsatisfied evaluator must never produce an unbounded loop.
func (l *Loop) stepEvaluate(ctx context.Context, st *State) error {
	if st.IterationCount >= st.MaxIterations {
		l.logger.Info("iteration ceiling reached, forcing completion",
			"task", l.taskID, "iterations", st.IterationCount)
		st.IsComplete = true
		st.Status = StatusCompleted
		return nil
	}

	messages := checkCompletenessMessages(st.CurrentDocument, st.HighLevelInfo, st.IterationCount, st.MaxIterations)
	content, usage, err := l.model.Invoke(ctx, messages)
	if err != nil {
		return fmt.Errorf("completeness evaluation call: %w", err)
	}
	st.Usage.Record(st.IterationCount, CallCheckCompleteness, usage)

	extraction := ExtractDecision(content, st.IterationCount)
	if extraction.Warning != "" {
		l.logger.Warn(extraction.Warning, "task", l.taskID, "iteration", st.IterationCount)
	}
	decision := extraction.Decision

	// The evaluator's flag is trusted even when missing_parts is
	// non-empty; the contradiction is only logged.
	if decision.IsComplete && len(decision.MissingParts) > 0 {
		l.logger.Warn("evaluator reported complete with non-empty missing parts",
			"task", l.taskID, "missing_parts", decision.MissingParts)
	}

	st.ConfidenceScore = decision.ConfidenceScore
	st.MissingParts = decision.MissingParts

	if decision.IsComplete || decision.ConfidenceScore >= l.cfg.ConfidenceThreshold {
		st.IsComplete = true
		st.Status = StatusCompleted
		l.logger.Info("document judged complete",
			"task", l.taskID, "confidence", decision.ConfidenceScore, "source", extraction.Source)
		return nil
	}

	request, err := json.Marshal(decision.SuggestedTools)
	if err != nil {
		return fmt.Errorf("serializing exploration request: %w", err)
	}
	st.PendingExploration = string(request)
	st.Status = StatusNeedsExploration
	l.logger.Info("document needs exploration",
		"task", l.taskID,
		"confidence", decision.ConfidenceScore,
		"missing_parts", decision.MissingParts)
	return nil
}

// stepExplore consumes the pending request, executes the suggested tools,
// and stores the findings for the next generation step.
func (l *Loop) stepExplore(ctx context.Context, st *State) error {
	request := st.PendingExploration
	st.PendingExploration = ""

	result, err := l.explorer.Execute(ctx, request)
	if err != nil {
		return fmt.Errorf("tool execution: %w", err)
	}

	st.ToolFindings = result.Findings
	st.ExplorationHistory = append(st.ExplorationHistory, ExplorationRecord{
		Iteration: st.IterationCount,
		Action:    nodeExplore,
		Findings:  result.Findings,
		ToolCalls: result.ToolCalls,
	})
	return nil
}

// stepSave runs the configured savers against the completed state.
func (l *Loop) stepSave(ctx context.Context, st *State) error {
	for _, saver := range l.savers {
		if err := saver.Save(ctx, l.taskID, st); err != nil {
			return fmt.Errorf("saving output: %w", err)
		}
	}
	return nil
}

// truncate bounds s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
