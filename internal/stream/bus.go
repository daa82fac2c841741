// Package stream carries one session's progress events from the worker
// goroutine to a single remote observer, in exact emission order.
package stream

import (
	"sync"
	"time"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/explore"
)

// EventKind identifies a progress event on the feed.
type EventKind string

const (
	// KindStart opens a session's feed
	KindStart EventKind = "start"
	// KindNodeStart precedes each control-loop step
	KindNodeStart EventKind = "node_start"
	// KindNodeComplete follows each successful step
	KindNodeComplete EventKind = "node_complete"
	// KindExploration reports the latest exploration outcome
	KindExploration EventKind = "exploration"
	// KindComplete reports a successful terminal state
	KindComplete EventKind = "complete"
	// KindFailed reports a non-exception terminal failure
	KindFailed EventKind = "failed"
	// KindError reports a step exception
	KindError EventKind = "error"
	// KindEnd is the sole termination signal; always the last event
	KindEnd EventKind = "end"
	// KindHeartbeat is synthesized by the consumer during idle waits and
	// never enters the bus queue
	KindHeartbeat EventKind = "heartbeat"
)

// Payload types, one per event kind. Payloads are normalized to these
// fixed shapes at the emission boundary; consumers never see loop state.

// StartPayload opens the feed.
type StartPayload struct {
	RepoPath string `json:"repo_path"`
}

// NodeStartPayload precedes a step.
type NodeStartPayload struct {
	Node      string `json:"node"`
	Iteration int    `json:"iteration"`
}

// NodeCompletePayload follows a successful step.
type NodeCompletePayload struct {
	Node           string   `json:"node"`
	Iteration      int      `json:"iteration"`
	Status         string   `json:"status"`
	Confidence     float64  `json:"confidence"`
	DocumentLength int      `json:"document_length"`
	IsComplete     bool     `json:"is_complete"`
	MissingParts   []string `json:"missing_parts"`
}

// ExplorationPayload carries the latest exploration history entry.
type ExplorationPayload struct {
	Iteration int                `json:"iteration"`
	Action    string             `json:"action"`
	Findings  string             `json:"findings"`
	ToolCalls []explore.ToolCall `json:"tool_calls"`
}

// CompletePayload reports the final outcome of a successful run.
type CompletePayload struct {
	IterationCount  int     `json:"iteration_count"`
	ConfidenceScore float64 `json:"confidence_score"`
	DocumentLength  int     `json:"document_length"`
	DocumentPreview string  `json:"document_preview"`
}

// FailedPayload reports a terminal failure that was not an exception.
type FailedPayload struct {
	Error string `json:"error"`
}

// ErrorPayload reports a step exception.
type ErrorPayload struct {
	Node    string `json:"node,omitempty"`
	Message string `json:"message"`
}

// EndPayload is intentionally empty.
type EndPayload struct{}

// Event is one record on the feed.
type Event struct {
	Kind      EventKind `json:"event"`
	Payload   any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus is an ordered single-producer/single-consumer event channel with an
// unbounded buffer. Emit never blocks the producer: the control loop must
// not lose correctness to reporting backpressure, so the reporting side
// absorbs the growth instead. Next blocks the consumer up to a timeout so
// it can inject liveness heartbeats during producer silence.
type Bus struct {
	mu    sync.Mutex
	queue []Event
	// notify holds at most one pending wakeup for the single consumer.
	notify chan struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{notify: make(chan struct{}, 1)}
}

// Emit appends an event to the queue. It never blocks.
func (b *Bus) Emit(kind EventKind, payload any) {
	b.mu.Lock()
	b.queue = append(b.queue, Event{Kind: kind, Payload: payload, Timestamp: time.Now()})
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Next returns the next event in emission order, blocking up to timeout.
// The second return is false on timeout; the caller should emit a
// heartbeat and call Next again. Timeout never terminates a session.
func (b *Bus) Next(timeout time.Duration) (Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return ev, true
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
			// Drain and re-check; the single pending wakeup may cover
			// several queued events.
		case <-timer.C:
			return Event{}, false
		}
	}
}

// Len reports the number of queued, undrained events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
