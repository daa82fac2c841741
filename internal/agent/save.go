package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/mermaid"
)

// FileSaver writes the finished document and a usage report into a
// directory, one pair of files per task.
type FileSaver struct {
	Dir string
}

// Save implements Saver. The document gets its Mermaid blocks repaired
// before writing; the usage report is the full ledger as JSON.
func (f *FileSaver) Save(ctx context.Context, taskID string, st *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	base := filepath.Base(st.RepoPath)
	docPath := filepath.Join(f.Dir, fmt.Sprintf("%s-%s.md", base, taskID))
	document := mermaid.Fix(st.CurrentDocument)
	if err := os.WriteFile(docPath, []byte(document), 0644); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}

	report := struct {
		TaskID     string      `json:"task_id"`
		RepoPath   string      `json:"repo_path"`
		Iterations int         `json:"iterations"`
		Confidence float64     `json:"confidence_score"`
		Usage      UsageLedger `json:"llm_usage"`
	}{
		TaskID:     taskID,
		RepoPath:   st.RepoPath,
		Iterations: st.IterationCount,
		Confidence: st.ConfidenceScore,
		Usage:      st.Usage,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding usage report: %w", err)
	}
	reportPath := filepath.Join(f.Dir, fmt.Sprintf("%s-%s-usage.json", base, taskID))
	if err := os.WriteFile(reportPath, data, 0644); err != nil {
		return fmt.Errorf("writing usage report: %w", err)
	}
	return nil
}
