package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/autoserve/autoserve/internal/runstate"
)

func newTestParser(t *testing.T) (*Parser, *runstate.Store, *bytes.Buffer) {
	t.Helper()
	store := runstate.New("", nil)
	store.InitRun([]runstate.TaskSpec{
		{Type: "sfc_scan"},
		{Type: "disk_cleanup"},
		{Type: "ping_test"},
	}, nil)

	var sink bytes.Buffer
	return NewParser(store, nil, &sink), store, &sink
}

func TestParser_TaskLifecycle(t *testing.T) {
	parser, store, _ := newTestParser(t)

	parser.Process("TASK_START:0:sfc_scan")
	if got := store.Snapshot().Tasks[0].Status; got != runstate.TaskRunning {
		t.Errorf("Task 0 status = %q, want running", got)
	}

	parser.Process("TASK_OK:0:sfc_scan")
	parser.Process("TASK_FAIL:1:disk_cleanup - access denied")
	parser.Process("TASK_SKIP:2:ping_test - no handler")

	st := store.Snapshot()
	want := []runstate.TaskStatus{runstate.TaskSuccess, runstate.TaskError, runstate.TaskSkipped}
	for i, w := range want {
		if st.Tasks[i].Status != w {
			t.Errorf("Task %d status = %q, want %q", i, st.Tasks[i].Status, w)
		}
	}
}

func TestParser_DuplicateDelivery(t *testing.T) {
	// The same lines arrive over the pipe and the log tail; the second pass
	// must not change anything.
	parser, store, _ := newTestParser(t)

	lines := []string{
		"TASK_START:0:sfc_scan",
		"TASK_OK:0:sfc_scan",
		"TASK_START:1:disk_cleanup",
		"TASK_FAIL:1:disk_cleanup - access denied",
	}
	for _, l := range lines {
		parser.Process(l)
	}
	first := store.Snapshot()

	for _, l := range lines {
		parser.Process(l)
	}
	second := store.Snapshot()

	for i := range first.Tasks {
		if first.Tasks[i].Status != second.Tasks[i].Status {
			t.Errorf("Task %d status changed on replay: %q -> %q",
				i, first.Tasks[i].Status, second.Tasks[i].Status)
		}
		if second.Tasks[i].EndTime != nil && first.Tasks[i].EndTime != nil &&
			!second.Tasks[i].EndTime.Equal(*first.Tasks[i].EndTime) {
			t.Errorf("Task %d end time changed on replay", i)
		}
	}
}

func TestParser_ProgressMergesStatuses(t *testing.T) {
	parser, store, _ := newTestParser(t)

	parser.Process(`PROGRESS_JSON:{"completed":2,"total":3,"results":[` +
		`{"task_type":"sfc_scan","status":"success"},` +
		`{"task_type":"disk_cleanup","status":"warning"},` +
		`{"task_type":"ping_test","status":"running"}]}`)

	st := store.Snapshot()
	if st.Tasks[0].Status != runstate.TaskSuccess {
		t.Errorf("Task 0 status = %q, want success", st.Tasks[0].Status)
	}
	if st.Tasks[1].Status != runstate.TaskWarning {
		t.Errorf("Task 1 status = %q, want warning", st.Tasks[1].Status)
	}
	if st.Tasks[2].Status != runstate.TaskRunning {
		t.Errorf("Task 2 status = %q, want running", st.Tasks[2].Status)
	}
	// Non-final progress never finishes the run.
	if st.OverallStatus != runstate.StatusRunning {
		t.Errorf("Overall status = %q, want running", st.OverallStatus)
	}
}

func TestParser_ProgressUnknownStatusSkipped(t *testing.T) {
	parser, store, _ := newTestParser(t)

	parser.Process(`PROGRESS_JSON:{"results":[{"task_type":"sfc_scan","status":"exploded"}]}`)

	if got := store.Snapshot().Tasks[0].Status; got != runstate.TaskPending {
		t.Errorf("Task 0 status = %q, want pending after unknown status", got)
	}
}

func TestParser_ProgressWorkerVocabulary(t *testing.T) {
	// The worker says "failure" and "skipped"; the run state says "error"
	// and "skip".
	parser, store, _ := newTestParser(t)

	parser.Process(`PROGRESS_JSON:{"results":[` +
		`{"task_type":"sfc_scan","status":"failure"},` +
		`{"task_type":"disk_cleanup","status":"skipped"}]}`)

	st := store.Snapshot()
	if st.Tasks[0].Status != runstate.TaskError {
		t.Errorf("Task 0 status = %q, want error", st.Tasks[0].Status)
	}
	if st.Tasks[1].Status != runstate.TaskSkipped {
		t.Errorf("Task 1 status = %q, want skip", st.Tasks[1].Status)
	}
}

func TestParser_FinalProgressCompletesRun(t *testing.T) {
	tests := []struct {
		name          string
		overallStatus string
		want          runstate.OverallStatus
	}{
		{"success", "success", runstate.StatusCompleted},
		{"completed with errors", "completed_with_errors", runstate.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, store, _ := newTestParser(t)

			parser.Process(`PROGRESS_JSON_FINAL:{"overall_status":"` + tt.overallStatus + `","results":[` +
				`{"task_type":"sfc_scan","status":"success"},` +
				`{"task_type":"disk_cleanup","status":"success"},` +
				`{"task_type":"ping_test","status":"success"}]}`)

			if got := store.Snapshot().OverallStatus; got != tt.want {
				t.Errorf("Overall status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParser_ControlAcknowledgments(t *testing.T) {
	parser, store, _ := newTestParser(t)

	parser.Process("RUN_PAUSED:between tasks")
	if got := store.Snapshot().OverallStatus; got != runstate.StatusPaused {
		t.Errorf("Overall status = %q, want paused", got)
	}

	parser.Process("RUN_RESUMED:")
	if got := store.Snapshot().OverallStatus; got != runstate.StatusRunning {
		t.Errorf("Overall status = %q, want running", got)
	}

	parser.Process("RUN_STOPPED:user request")
	if got := store.Snapshot().OverallStatus; got != runstate.StatusStopped {
		t.Errorf("Overall status = %q, want stopped", got)
	}
}

func TestParser_MalformedLinesDoNotDisturbState(t *testing.T) {
	parser, store, _ := newTestParser(t)

	parser.Process("TASK_START:0:sfc_scan")
	before := store.Snapshot()

	parser.Process(`PROGRESS_JSON:{"completed": 1,`)
	parser.Process("TASK_OK:notanumber:sfc_scan")

	after := store.Snapshot()
	if after.Tasks[0].Status != before.Tasks[0].Status {
		t.Errorf("Malformed lines changed task status to %q", after.Tasks[0].Status)
	}
	if after.OverallStatus != before.OverallStatus {
		t.Errorf("Malformed lines changed overall status to %q", after.OverallStatus)
	}
}

func TestParser_PlainTextGoesToSink(t *testing.T) {
	parser, store, sink := newTestParser(t)

	parser.Process("Scanning system files...")
	parser.Process("TASK_START:0:sfc_scan")
	parser.Process("67% complete")

	out := sink.String()
	if !strings.Contains(out, "Scanning system files...") || !strings.Contains(out, "67% complete") {
		t.Errorf("Sink missing plain lines: %q", out)
	}
	if strings.Contains(out, "TASK_START") {
		t.Errorf("Marker lines should not reach the sink: %q", out)
	}
	if got := store.Snapshot().Tasks[0].Status; got != runstate.TaskRunning {
		t.Errorf("Task 0 status = %q, want running", got)
	}
}
