package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/agent"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/ai"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/storage"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/stream"
	"github.com/RRFRRF/Repo2TutorialAgent/internal/web"
)

var runCmd = &cobra.Command{
	Use:   "run <repo-path>",
	Short: "Run one synthesis end to end, printing progress to the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	repoPath := args[0]
	info, err := os.Stat(repoPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", repoPath)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", repoPath)
	}

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

	runner := &web.AgentRunner{
		Model:         model,
		MaxIterations: cfg.Agent.MaxIterations,
		LoopConfig:    agent.Config{ConfidenceThreshold: cfg.Agent.ConfidenceThreshold},
		Savers:        savers,
		Logger:        logger,
	}

	store := stream.NewStore(0)
	session := store.Create(repoPath)
	session.Go(func(bus *stream.Bus) error {
		return runner.Run(cmd.Context(), session.TaskID, repoPath, bus)
	})

	// Drain the feed in this goroutine, exactly as a remote observer
	// would, until the end event.
	for {
		ev, ok := session.Bus().Next(30 * time.Second)
		if !ok {
			fmt.Println(color.HiBlackString("... still working"))
			continue
		}
		printEvent(ev)
		if ev.Kind == stream.KindEnd {
			break
		}
	}

	status, errMsg := session.Status()
	if status == stream.SessionFailed {
		return fmt.Errorf("synthesis failed: %s", errMsg)
	}
	color.Green("Done. Output written to %s", cfg.Output.Dir)
	return nil
}

func printEvent(ev stream.Event) {
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Kind {
	case stream.KindStart:
		color.Cyan("[%s] start %s", ts, describe(ev.Payload))
	case stream.KindNodeStart:
		fmt.Printf("[%s] %s %s\n", ts, color.HiBlackString("node_start"), describe(ev.Payload))
	case stream.KindNodeComplete:
		fmt.Printf("[%s] node_complete %s\n", ts, describe(ev.Payload))
	case stream.KindExploration:
		color.Yellow("[%s] exploration %s", ts, describe(ev.Payload))
	case stream.KindComplete:
		color.Green("[%s] complete %s", ts, describe(ev.Payload))
	case stream.KindFailed:
		color.Red("[%s] failed %s", ts, describe(ev.Payload))
	case stream.KindError:
		color.Red("[%s] error %s", ts, describe(ev.Payload))
	case stream.KindEnd:
		color.Cyan("[%s] end", ts)
	default:
		fmt.Printf("[%s] %s %s\n", ts, ev.Kind, describe(ev.Payload))
	}
}

func describe(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	if len(data) > 200 {
		data = append(data[:200], []byte("...")...)
	}
	return string(data)
}
