package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/ai"
)

func TestUsageLedgerTotalsMatchCalls(t *testing.T) {
	var ledger UsageLedger

	calls := []ai.TokenUsage{
		{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		{}, // zero-usage call still gets logged
		{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
		{PromptTokens: 2000, CompletionTokens: 900, TotalTokens: 2900},
	}
	for i, usage := range calls {
		kind := CallUpdateDoc
		if i == 0 {
			kind = CallInitialDoc
		}
		ledger.Record(i+1, kind, usage)

		// The invariant holds at every point, not just at the end.
		var prompt, completion, total int
		for _, c := range ledger.Calls {
			prompt += c.PromptTokens
			completion += c.CompletionTokens
			total += c.TotalTokens
		}
		assert.Equal(t, prompt, ledger.TotalPromptTokens)
		assert.Equal(t, completion, ledger.TotalCompletionTokens)
		assert.Equal(t, total, ledger.TotalTokens)
	}

	require.Equal(t, len(calls), ledger.CallCount())
	assert.Equal(t, 2107, ledger.TotalPromptTokens)
	assert.Equal(t, 953, ledger.TotalCompletionTokens)
	assert.Equal(t, 3060, ledger.TotalTokens)
}

func TestNewState(t *testing.T) {
	st := NewState("/tmp/repo", 5)

	assert.Equal(t, StatusInitialized, st.Status)
	assert.Equal(t, 5, st.MaxIterations)
	assert.Equal(t, "/tmp/repo", st.RepoPath)
	assert.False(t, st.Terminal())
	assert.Empty(t, st.DocumentVersions)

	st.Status = StatusCompleted
	assert.True(t, st.Terminal())
	st.Status = StatusError
	assert.True(t, st.Terminal())
}
