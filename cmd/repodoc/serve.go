package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/agent"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/ai"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/storage"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/stream"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve task creation and live progress streaming over HTTP",
	Long: `Start the HTTP server.

POST /api/run          {"repo_path": "..."} -> {"task_id": "..."}
GET  /api/stream/{id}  Server-Sent Events progress feed
GET  /api/tasks/{id}   session status

Each task runs on its own worker; the stream carries its events in exact
emission order, with heartbeats during idle gaps and a final 'end' event.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	model, err := ai.NewAnthropicClient(ai.AnthropicConfig{
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		MaxTokens:         cfg.LLM.MaxTokens,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}, logger)
	if err != nil {
		return err
	}

	savers := []agent.Saver{&agent.FileSaver{Dir: cfg.Output.Dir}}
	if cfg.Archive.Enabled {
		archive, err := storage.Open(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer archive.Close()
		savers = append(savers, archive)
	}

	heartbeat, err := cfg.HeartbeatInterval()
	if err != nil {
		return err
	}
	retention, err := cfg.RetentionWindow()
	if err != nil {
		return err
	}

	store := stream.NewStore(retention)
	runner := &web.AgentRunner{
		Model:         model,
		MaxIterations: cfg.Agent.MaxIterations,
		LoopConfig:    agent.Config{ConfidenceThreshold: cfg.Agent.ConfidenceThreshold},
		Savers:        savers,
		Logger:        logger,
	}

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: web.NewServer(store, runner, heartbeat, logger).Handler(),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
