package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/agent"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/ai"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	archive, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func completedState(repoPath string) *agent.State {
	st := agent.NewState(repoPath, 5)
	st.CurrentDocument = "# Requirements\n\nThe document body."
	st.IterationCount = 3
	st.ConfidenceScore = 0.91
	st.IsComplete = true
	st.Status = agent.StatusCompleted
	st.Usage.Record(1, agent.CallInitialDoc, ai.TokenUsage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140})
	st.Usage.Record(1, agent.CallCheckCompleteness, ai.TokenUsage{PromptTokens: 60, CompletionTokens: 10, TotalTokens: 70})
	return st
}

func TestArchiveSaveAndGet(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	st := completedState("/tmp/demo")
	require.NoError(t, archive.Save(ctx, "task-a", st))

	rec, err := archive.GetRun(ctx, "task-a")
	require.NoError(t, err)
	assert.Equal(t, "task-a", rec.TaskID)
	assert.Equal(t, "/tmp/demo", rec.RepoPath)
	assert.Equal(t, string(agent.StatusCompleted), rec.Status)
	assert.Equal(t, 3, rec.Iterations)
	assert.Equal(t, 0.91, rec.Confidence)
	assert.Equal(t, 160, rec.PromptTokens)
	assert.Equal(t, 50, rec.CompletionTokens)
	assert.Equal(t, 210, rec.TotalTokens)
	assert.Equal(t, st.CurrentDocument, rec.Document)
	assert.False(t, rec.FinishedAt.IsZero())
}

func TestArchiveSaveIsIdempotentPerTask(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	st := completedState("/tmp/demo")
	require.NoError(t, archive.Save(ctx, "task-a", st))

	st.IterationCount = 5
	st.CurrentDocument = "revised"
	require.NoError(t, archive.Save(ctx, "task-a", st))

	rec, err := archive.GetRun(ctx, "task-a")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Iterations)
	assert.Equal(t, "revised", rec.Document)

	runs, err := archive.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestArchiveGetRunNotFound(t *testing.T) {
	archive := openTestArchive(t)

	_, err := archive.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveListRuns(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	for _, id := range []string{"task-1", "task-2", "task-3"} {
		require.NoError(t, archive.Save(ctx, id, completedState("/tmp/"+id)))
	}

	runs, err := archive.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	// Listings omit the document body.
	for _, run := range runs {
		assert.Empty(t, run.Document)
		assert.NotEmpty(t, run.TaskID)
	}
}

func TestArchiveSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")
	ctx := context.Background()

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "task-a", completedState("/tmp/demo")))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	rec, err := second.GetRun(ctx, "task-a")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/demo", rec.RepoPath)
}
