package web

import (
	"context"
	"log/slog"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/agent"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/ai"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/explore"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/stream"
)

// AgentRunner is the production Runner: fresh state and explorer per
// task, shared model client and savers across tasks.
type AgentRunner struct {
	Model         ai.Client
	MaxIterations int
	LoopConfig    agent.Config
	Savers        []agent.Saver
	Logger        *slog.Logger
}

// Run implements Runner.
func (a *AgentRunner) Run(ctx context.Context, taskID, repoPath string, bus *stream.Bus) error {
	st := agent.NewState(repoPath, a.MaxIterations)
	explorer := explore.NewRepoExplorer(repoPath, a.Logger)
	loop := agent.NewLoop(taskID, a.Model, explorer, bus, a.LoopConfig, a.Savers, a.Logger)
	return loop.Run(ctx, st)
}
