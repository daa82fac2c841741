// Package web exposes task creation and the live progress feed over
// HTTP. Each task runs on its own worker goroutine; each feed reader
// drains that task's bus as Server-Sent Events.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/stream"
)

// Runner executes one synthesis run, emitting progress into the bus. The
// web layer owns session bookkeeping; the runner owns everything else.
type Runner interface {
	Run(ctx context.Context, taskID, repoPath string, bus *stream.Bus) error
}

// Server handles task creation and streaming.
type Server struct {
	store     *stream.Store
	runner    Runner
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewServer wires the handlers. heartbeat bounds how long a stream reader
// waits for an event before sending a synthetic keepalive.
func NewServer(store *stream.Store, runner Runner, heartbeat time.Duration, logger *slog.Logger) *Server {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, runner: runner, heartbeat: heartbeat, logger: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("GET /api/stream/{taskID}", s.handleStream)
	mux.HandleFunc("GET /api/tasks/{taskID}", s.handleTaskStatus)
	return mux
}

type runRequest struct {
	RepoPath string `json:"repo_path"`
}

type runResponse struct {
	TaskID string `json:"task_id"`
}

// handleRun validates the repository path, registers a session, and
// starts the worker. The response is synchronous; the run is not.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RepoPath == "" {
		writeError(w, http.StatusBadRequest, "repo_path is required")
		return
	}

	info, err := os.Stat(req.RepoPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("path does not exist: %s", req.RepoPath))
		return
	}
	if !info.IsDir() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("path is not a directory: %s", req.RepoPath))
		return
	}

	session := s.store.Create(req.RepoPath)
	s.logger.Info("task created", "task", session.TaskID, "repo", req.RepoPath)

	// The worker outlives this request, so it runs under its own context.
	// There is no client-initiated abort; the loop's iteration ceiling is
	// the termination control.
	session.Go(func(bus *stream.Bus) error {
		return s.runner.Run(context.Background(), session.TaskID, session.RepoPath, bus)
	})

	writeJSON(w, http.StatusOK, runResponse{TaskID: session.TaskID})
}

// handleStream serves one session's ordered event feed as SSE. The end
// event is the sole termination signal; silence produces heartbeats, not
// disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")
	session, ok := s.store.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	bus := session.Bus()
	for {
		ev, ok := bus.Next(s.heartbeat)
		if !ok {
			// Idle gap: keep the connection alive and wait again.
			if err := writeSSE(w, stream.KindHeartbeat, struct{}{}); err != nil {
				return
			}
			flusher.Flush()
			if r.Context().Err() != nil {
				return
			}
			continue
		}

		if err := writeSSE(w, ev.Kind, ev.Payload); err != nil {
			// The reader is gone; the worker keeps running and the queue
			// absorbs the remaining events.
			s.logger.Info("stream reader disconnected", "task", taskID)
			return
		}
		flusher.Flush()

		if ev.Kind == stream.KindEnd {
			return
		}
	}
}

type taskStatusResponse struct {
	TaskID    string    `json:"task_id"`
	RepoPath  string    `json:"repo_path"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Error     string    `json:"error,omitempty"`
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := s.store.Get(r.PathValue("taskID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	status, errMsg := session.Status()
	writeJSON(w, http.StatusOK, taskStatusResponse{
		TaskID:    session.TaskID,
		RepoPath:  session.RepoPath,
		Status:    string(status),
		CreatedAt: session.CreatedAt,
		Error:     errMsg,
	})
}

func writeSSE(w http.ResponseWriter, kind stream.EventKind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
