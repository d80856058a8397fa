package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/autoserve/autoserve/internal/config"
	"github.com/autoserve/autoserve/internal/event"
	"github.com/autoserve/autoserve/internal/orchestrator"
	"github.com/autoserve/autoserve/internal/runstate"
)

var runTasksFile string

var runCmd = &cobra.Command{
	Use:   "run [task-type...]",
	Short: "Execute a maintenance run",
	Long: `Launch the maintenance worker for the given tasks and follow the run
until it finishes. Tasks are given as positional task types, or as a JSON
task queue file via --tasks.

Press Ctrl-C once to request a graceful stop; twice to abandon the run.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runTasksFile, "tasks", "t", "", "JSON task queue file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	specs, err := resolveTasks(args)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return fmt.Errorf("no tasks given: pass task types or --tasks <file>")
	}

	live, logger, err := loadSettings()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Keep preference toggles live for the duration of the run.
	watcher, err := config.NewWatcher(live, config.ConfigDir(), logger)
	if err == nil {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watching disabled", "error", err)
		}
		defer watcher.Close()
	} else {
		logger.Warn("config watching disabled", "error", err)
	}

	orch := orchestrator.New(live, logger, event.NewBus())
	defer orch.Close()

	unsubscribe := orch.Subscribe(printTransitions())
	defer unsubscribe()

	runID, err := orch.StartRun(ctx, specs, nil)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	fmt.Printf("Run %s started (%d tasks)\n\n", runID, len(specs))

	// First interrupt asks the worker to stop; a second one abandons it.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nStop requested, waiting for the worker to wind down...")
		if err := orch.Stop(); err != nil {
			logger.Warn("stop request failed", "error", err)
		}
		<-sigCh
		cancel()
	}()

	orch.Wait()

	final := orch.Store().Snapshot()
	metrics := orch.Store().Metrics()
	fmt.Printf("\nRun %s: %s (%d/%d tasks completed, %d failed)\n",
		final.RunID, final.OverallStatus, metrics.Completed, metrics.Total, metrics.Failed)

	if final.OverallStatus != runstate.StatusCompleted {
		return fmt.Errorf("run finished with status %q", final.OverallStatus)
	}
	return nil
}

// resolveTasks builds the task list from positional types or the --tasks
// file. The file uses the worker's own queue format: {"tasks": [...]}.
func resolveTasks(args []string) ([]runstate.TaskSpec, error) {
	if runTasksFile == "" {
		specs := make([]runstate.TaskSpec, len(args))
		for i, arg := range args {
			specs[i] = runstate.TaskSpec{Type: arg}
		}
		return specs, nil
	}
	if len(args) > 0 {
		return nil, fmt.Errorf("give task types or --tasks, not both")
	}

	data, err := os.ReadFile(runTasksFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read task queue file: %w", err)
	}
	var queue struct {
		Tasks []runstate.TaskSpec `json:"tasks"`
	}
	if err := json.Unmarshal(data, &queue); err != nil {
		return nil, fmt.Errorf("invalid task queue file %s: %w", runTasksFile, err)
	}
	return queue.Tasks, nil
}

// printTransitions returns a store subscriber that prints task status
// changes as they happen. It keeps the last printed status per task so
// duplicate snapshots stay quiet.
func printTransitions() runstate.Subscriber {
	last := make(map[int]runstate.TaskStatus)
	return func(st runstate.RunState) {
		for i, task := range st.Tasks {
			if last[i] == task.Status {
				continue
			}
			last[i] = task.Status
			label := task.Label
			if label == "" {
				label = task.Type
			}
			switch task.Status {
			case runstate.TaskRunning:
				fmt.Printf("  [%d/%d] %s...\n", i+1, len(st.Tasks), label)
			case runstate.TaskSuccess:
				fmt.Printf("  [%d/%d] %s: ok\n", i+1, len(st.Tasks), label)
			case runstate.TaskError:
				fmt.Printf("  [%d/%d] %s: FAILED\n", i+1, len(st.Tasks), label)
			case runstate.TaskWarning:
				fmt.Printf("  [%d/%d] %s: warning\n", i+1, len(st.Tasks), label)
			case runstate.TaskSkipped:
				fmt.Printf("  [%d/%d] %s: skipped\n", i+1, len(st.Tasks), label)
			}
		}
	}
}
