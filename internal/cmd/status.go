package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/autoserve/autoserve/internal/runstate"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted run state",
	Long: `Display the last persisted run, restored the same way the application
would restore it on launch. Stale or corrupted records are discarded.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	live, logger, err := loadSettings()
	if err != nil {
		return err
	}
	defer logger.Close()

	statePath := filepath.Join(live.Get().DataDir(), "runstate.json")
	store := runstate.New(statePath, logger)
	defer store.Close()

	if !store.RestoreFromSession() {
		fmt.Println("No active run")
		return nil
	}

	st := store.Snapshot()
	metrics := store.Metrics()

	fmt.Printf("Run: %s\n", st.RunID)
	fmt.Printf("Status: %s\n", st.OverallStatus)
	if st.StartTime != nil {
		fmt.Printf("Started: %s\n", st.StartTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Progress: %d/%d tasks (%.0f%%), %d failed\n\n",
		metrics.Completed, metrics.Total, metrics.PercentComplete, metrics.Failed)

	for i, task := range st.Tasks {
		label := task.Label
		if label == "" {
			label = task.Type
		}
		fmt.Printf("[%d] %s (%s)\n", i+1, label, task.Status)
		if task.StartTime != nil && task.EndTime != nil {
			fmt.Printf("    Took: %s\n", task.EndTime.Sub(*task.StartTime).Round(time.Millisecond))
		}
	}

	return nil
}
