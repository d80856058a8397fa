package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/autoserve/autoserve/internal/config"
	"github.com/autoserve/autoserve/internal/event"
	"github.com/autoserve/autoserve/internal/runstate"
)

// writeStubWorker writes an executable script that plays the part of the
// maintenance worker, emitting the given protocol lines on stdout.
func writeStubWorker(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	script := "#!/bin/sh\n"
	for _, l := range lines {
		script += "echo '" + l + "'\n"
	}
	path := filepath.Join(dir, "stub_worker.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write stub worker: %v", err)
	}
	return path
}

func testSettings(t *testing.T, binary string) *config.Live {
	t.Helper()
	cfg := config.Default()
	cfg.Runner.Binary = binary
	cfg.Runner.PollIntervalMs = 50
	cfg.Runner.PersistDebounceMs = 10
	cfg.Logging.Enabled = false
	cfg.Paths.DataDir = t.TempDir()
	return config.NewLive(cfg)
}

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub worker needs a POSIX shell")
	}
}

func TestOrchestrator_SuccessfulRun(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	stub := writeStubWorker(t, dir,
		"TASK_START:0:sfc_scan",
		"TASK_OK:0:sfc_scan",
		"TASK_START:1:disk_cleanup",
		"TASK_SKIP:1:disk_cleanup - nothing to clean",
		`PROGRESS_JSON_FINAL:{"overall_status":"success","completed":2,"total":2,"results":[{"task_type":"sfc_scan","status":"success"},{"task_type":"disk_cleanup","status":"skipped"}]}`,
	)

	settings := testSettings(t, stub)
	orch := New(settings, nil, event.NewBus())
	defer orch.Close()

	runID, err := orch.StartRun(context.Background(), []runstate.TaskSpec{
		{Type: "sfc_scan"},
		{Type: "disk_cleanup"},
	}, nil)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	orch.Wait()

	st := orch.Store().Snapshot()
	if st.RunID != runID {
		t.Errorf("RunID = %q, want %q", st.RunID, runID)
	}
	if st.OverallStatus != runstate.StatusCompleted {
		t.Errorf("Overall status = %q, want completed", st.OverallStatus)
	}
	if st.Tasks[0].Status != runstate.TaskSuccess {
		t.Errorf("Task 0 status = %q, want success", st.Tasks[0].Status)
	}
	if st.Tasks[1].Status != runstate.TaskSkipped {
		t.Errorf("Task 1 status = %q, want skip", st.Tasks[1].Status)
	}

	// The completion trigger fired and persisted its marker.
	marker := filepath.Join(settings.Get().DataDir(), ".notified-"+runID)
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("Completion marker missing: %v", err)
	}
}

func TestOrchestrator_WorkerDiesWithoutTerminalStatus(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	stub := writeStubWorker(t, dir,
		"TASK_START:0:sfc_scan",
		"Scanning system files...",
	)

	orch := New(testSettings(t, stub), nil, event.NewBus())
	defer orch.Close()

	if _, err := orch.StartRun(context.Background(), []runstate.TaskSpec{{Type: "sfc_scan"}}, nil); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	orch.Wait()

	if got := orch.Store().Snapshot().OverallStatus; got != runstate.StatusError {
		t.Errorf("Overall status = %q, want error after an abandoned run", got)
	}
}

func TestOrchestrator_LaunchFailure(t *testing.T) {
	orch := New(testSettings(t, "/nonexistent/worker-binary"), nil, event.NewBus())
	defer orch.Close()

	_, err := orch.StartRun(context.Background(), []runstate.TaskSpec{{Type: "sfc_scan"}}, nil)
	if err == nil {
		t.Fatal("StartRun should fail when the worker cannot launch")
	}
	if got := orch.Store().Snapshot().OverallStatus; got != runstate.StatusError {
		t.Errorf("Overall status = %q, want error after launch failure", got)
	}
}

func TestOrchestrator_ControlWithoutActiveRun(t *testing.T) {
	orch := New(testSettings(t, "service_runner"), nil, event.NewBus())
	defer orch.Close()

	if err := orch.Stop(); err != nil {
		t.Errorf("Stop with no run should be a no-op, got %v", err)
	}
	if err := orch.Pause(); err != nil {
		t.Errorf("Pause with no run should be a no-op, got %v", err)
	}
}

func TestOrchestrator_Dismiss(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	stub := writeStubWorker(t, dir,
		"TASK_START:0:sfc_scan",
		"TASK_OK:0:sfc_scan",
		`PROGRESS_JSON_FINAL:{"overall_status":"success","results":[{"task_type":"sfc_scan","status":"success"}]}`,
	)

	settings := testSettings(t, stub)
	orch := New(settings, nil, event.NewBus())
	defer orch.Close()

	runID, err := orch.StartRun(context.Background(), []runstate.TaskSpec{{Type: "sfc_scan"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	orch.Wait()

	orch.Dismiss()

	st := orch.Store().Snapshot()
	if st.OverallStatus != runstate.StatusIdle {
		t.Errorf("Status after dismiss = %q, want idle", st.OverallStatus)
	}
	if _, err := os.Stat(filepath.Join(settings.Get().DataDir(), "runstate.json")); !os.IsNotExist(err) {
		t.Error("Dismiss should clear the persisted record")
	}
	if _, err := os.Stat(filepath.Join(settings.Get().DataDir(), ".notified-"+runID)); !os.IsNotExist(err) {
		t.Error("Dismiss should re-arm the completion trigger")
	}
}

func TestOrchestrator_SubscriberSeesLifecycle(t *testing.T) {
	requirePOSIX(t)

	dir := t.TempDir()
	stub := writeStubWorker(t, dir,
		"TASK_START:0:sfc_scan",
		"TASK_OK:0:sfc_scan",
		`PROGRESS_JSON_FINAL:{"overall_status":"success","results":[{"task_type":"sfc_scan","status":"success"}]}`,
	)

	orch := New(testSettings(t, stub), nil, event.NewBus())
	defer orch.Close()

	statuses := make(chan runstate.OverallStatus, 64)
	unsub := orch.Subscribe(func(st runstate.RunState) {
		select {
		case statuses <- st.OverallStatus:
		default:
		}
	})
	defer unsub()

	if _, err := orch.StartRun(context.Background(), []runstate.TaskSpec{{Type: "sfc_scan"}}, nil); err != nil {
		t.Fatal(err)
	}
	orch.Wait()

	sawRunning, sawCompleted := false, false
	deadline := time.After(time.Second)
	for !sawCompleted {
		select {
		case s := <-statuses:
			switch s {
			case runstate.StatusRunning:
				sawRunning = true
			case runstate.StatusCompleted:
				sawCompleted = true
			}
		case <-deadline:
			t.Fatal("Never observed a completed snapshot")
		}
	}
	if !sawRunning {
		t.Error("Subscriber should have observed the running status")
	}
}
