package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "repodoc",
	Short: "Turn a repository into a requirements and design document",
	Long: `repodoc runs an iterative, LLM-assisted synthesis loop over a source
repository, refining a requirements/design document round by round until
the evaluator is satisfied or the iteration ceiling is hit.

Use 'repodoc run <path>' for a one-shot synthesis, or 'repodoc serve' to
expose task creation and live progress streaming over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
}

// loadConfig returns the file-backed config when --config is set, the
// defaults otherwise.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
