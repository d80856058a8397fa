package protocol

import "testing"

func TestParse_TaskMarkers(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		kind     Kind
		index    int
		taskType string
		reason   string
	}{
		{"task start", "TASK_START:0:sfc_scan", KindTaskStart, 0, "sfc_scan", ""},
		{"task ok", "TASK_OK:2:disk_cleanup", KindTaskOK, 2, "disk_cleanup", ""},
		{"task fail with reason", "TASK_FAIL:1:ping_test - network unreachable", KindTaskFail, 1, "ping_test", "network unreachable"},
		{"task skip with reason", "TASK_SKIP:3:defrag - SSD detected", KindTaskSkip, 3, "defrag", "SSD detected"},
		{"task fail without reason", "TASK_FAIL:1:ping_test", KindTaskFail, 1, "ping_test", ""},
		{"reason containing dashes", "TASK_FAIL:0:smart_check - disk 0 - bad sectors", KindTaskFail, 0, "smart_check", "disk 0 - bad sectors"},
		{"trailing carriage return", "TASK_OK:0:sfc_scan\r", KindTaskOK, 0, "sfc_scan", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := Parse(tt.line)
			if line.Kind != tt.kind {
				t.Fatalf("Kind = %d, want %d", line.Kind, tt.kind)
			}
			if line.Index != tt.index {
				t.Errorf("Index = %d, want %d", line.Index, tt.index)
			}
			if line.TaskType != tt.taskType {
				t.Errorf("TaskType = %q, want %q", line.TaskType, tt.taskType)
			}
			if line.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", line.Reason, tt.reason)
			}
		})
	}
}

func TestParse_MalformedTaskMarkers(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"non-numeric index", "TASK_START:abc:sfc_scan"},
		{"missing type separator", "TASK_OK:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := Parse(tt.line)
			if line.Kind != KindIgnored {
				t.Errorf("Kind = %d, want KindIgnored", line.Kind)
			}
			if line.Raw == "" {
				t.Error("Ignored lines should keep the raw text")
			}
		})
	}
}

func TestParse_ControlMarkers(t *testing.T) {
	tests := []struct {
		line   string
		kind   Kind
		reason string
	}{
		{"RUN_STOPPED:user request", KindRunStopped, "user request"},
		{"RUN_PAUSED:", KindRunPaused, ""},
		{"RUN_RESUMED: operator", KindRunResumed, "operator"},
	}

	for _, tt := range tests {
		line := Parse(tt.line)
		if line.Kind != tt.kind {
			t.Errorf("Parse(%q).Kind = %d, want %d", tt.line, line.Kind, tt.kind)
		}
		if line.Reason != tt.reason {
			t.Errorf("Parse(%q).Reason = %q, want %q", tt.line, line.Reason, tt.reason)
		}
	}
}

func TestParse_Progress(t *testing.T) {
	line := Parse(`PROGRESS_JSON:{"type":"progress","completed":1,"total":3,"results":[{"task_type":"sfc_scan","status":"success"}]}`)

	if line.Kind != KindProgress {
		t.Fatalf("Kind = %d, want KindProgress", line.Kind)
	}
	if line.Progress == nil {
		t.Fatal("Progress payload should be decoded")
	}
	if line.Progress.Completed != 1 || line.Progress.Total != 3 {
		t.Errorf("Progress counts = %d/%d, want 1/3", line.Progress.Completed, line.Progress.Total)
	}
	entries := line.Progress.Entries()
	if len(entries) != 1 || entries[0].Status != "success" {
		t.Errorf("Entries = %+v", entries)
	}
}

func TestParse_ProgressFinalBeforeProgress(t *testing.T) {
	// PROGRESS_JSON_FINAL extends the PROGRESS_JSON prefix; the longer marker
	// must win.
	line := Parse(`PROGRESS_JSON_FINAL:{"overall_status":"success","completed":3,"total":3}`)

	if line.Kind != KindProgressFinal {
		t.Fatalf("Kind = %d, want KindProgressFinal", line.Kind)
	}
	if line.Progress.OverallStatus != "success" {
		t.Errorf("OverallStatus = %q, want success", line.Progress.OverallStatus)
	}
}

func TestParse_ProgressBadJSON(t *testing.T) {
	line := Parse(`PROGRESS_JSON:{"completed": 1,`)

	if line.Kind != KindIgnored {
		t.Errorf("Kind = %d, want KindIgnored for undecodable payload", line.Kind)
	}
	if line.Progress != nil {
		t.Error("Ignored line should carry no payload")
	}
}

func TestParse_LegacyTasksStatusPreferred(t *testing.T) {
	line := Parse(`PROGRESS_JSON:{"tasks_status":[{"task_type":"a","status":"failure"}],"results":[{"task_type":"a","status":"success"}]}`)

	entries := line.Progress.Entries()
	if len(entries) != 1 || entries[0].Status != "failure" {
		t.Errorf("tasks_status should take precedence, got %+v", entries)
	}
}

func TestParse_PlainText(t *testing.T) {
	tests := []string{
		"Scanning system files...",
		"",
		"  TASK_START:0:indented markers are text",
		"NOTASK_OK:0:x",
	}

	for _, raw := range tests {
		line := Parse(raw)
		if line.Kind != KindText {
			t.Errorf("Parse(%q).Kind = %d, want KindText", raw, line.Kind)
		}
	}
}
