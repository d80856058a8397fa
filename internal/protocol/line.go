// Package protocol parses the line-oriented status protocol emitted by the
// maintenance worker and applies it to the run state store.
//
// The worker writes newline-delimited UTF-8 text to stdout/stderr and to a
// live log file. Status lines carry markers (TASK_START, TASK_OK, TASK_FAIL,
// TASK_SKIP, PROGRESS_JSON, PROGRESS_JSON_FINAL, RUN_STOPPED, RUN_PAUSED,
// RUN_RESUMED); everything else is plain log text.
package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind discriminates the parsed line union.
type Kind int

// Line kinds, one per marker plus Text for plain output and Ignored for
// lines whose marker matched but whose payload did not decode.
const (
	KindText Kind = iota
	KindTaskStart
	KindTaskOK
	KindTaskFail
	KindTaskSkip
	KindProgress
	KindProgressFinal
	KindRunStopped
	KindRunPaused
	KindRunResumed
	KindIgnored
)

// Line is the tagged result of parsing one protocol line. Which fields are
// meaningful depends on Kind: task markers set Index/TaskType (and Reason
// for fail/skip), control markers set Reason, progress markers set
// Progress, and Text/Ignored carry only Raw.
type Line struct {
	Kind     Kind
	Raw      string
	Index    int
	TaskType string
	Reason   string
	Progress *ProgressPayload
}

// ProgressPayload is the JSON body of PROGRESS_JSON and PROGRESS_JSON_FINAL
// lines, as emitted by the worker.
type ProgressPayload struct {
	Type          string       `json:"type"`
	Completed     int          `json:"completed"`
	Total         int          `json:"total"`
	OverallStatus string       `json:"overall_status"`
	Results       []TaskResult `json:"results"`
	// TasksStatus is the field name used by older worker builds; when
	// present it takes precedence over Results.
	TasksStatus []TaskResult `json:"tasks_status"`
}

// TaskResult is one per-task entry inside a progress payload.
type TaskResult struct {
	TaskType string          `json:"task_type"`
	Status   string          `json:"status"`
	Summary  json.RawMessage `json:"summary,omitempty"`
}

// Entries returns the per-task status array of the payload, preferring the
// legacy tasks_status field when both are present.
func (p *ProgressPayload) Entries() []TaskResult {
	if len(p.TasksStatus) > 0 {
		return p.TasksStatus
	}
	return p.Results
}

// taskMarkers maps task marker names to line kinds. Matching is attempted
// in fixed priority order: task markers, control markers, progress markers,
// then plain text.
var taskMarkers = []struct {
	prefix string
	kind   Kind
}{
	{"TASK_START:", KindTaskStart},
	{"TASK_OK:", KindTaskOK},
	{"TASK_FAIL:", KindTaskFail},
	{"TASK_SKIP:", KindTaskSkip},
}

var controlMarkers = []struct {
	prefix string
	kind   Kind
}{
	{"RUN_STOPPED:", KindRunStopped},
	{"RUN_PAUSED:", KindRunPaused},
	{"RUN_RESUMED:", KindRunResumed},
}

// Parse classifies a single line. It never fails: anything that does not
// match a marker is Text, and a marker whose payload cannot be decoded is
// Ignored with the raw line preserved.
func Parse(raw string) Line {
	line := strings.TrimRight(raw, "\r\n")

	for _, m := range taskMarkers {
		if rest, ok := strings.CutPrefix(line, m.prefix); ok {
			return parseTaskMarker(m.kind, line, rest)
		}
	}

	for _, m := range controlMarkers {
		if rest, ok := strings.CutPrefix(line, m.prefix); ok {
			return Line{Kind: m.kind, Raw: line, Reason: strings.TrimSpace(rest)}
		}
	}

	// PROGRESS_JSON_FINAL must be checked before PROGRESS_JSON: the final
	// marker is a prefix-extension of the incremental one.
	if rest, ok := strings.CutPrefix(line, "PROGRESS_JSON_FINAL:"); ok {
		return parseProgressMarker(KindProgressFinal, line, rest)
	}
	if rest, ok := strings.CutPrefix(line, "PROGRESS_JSON:"); ok {
		return parseProgressMarker(KindProgress, line, rest)
	}

	return Line{Kind: KindText, Raw: line}
}

// parseTaskMarker decodes "<idx>:<type>[ - <reason>]" after a task marker.
func parseTaskMarker(kind Kind, raw, rest string) Line {
	idxStr, tail, ok := strings.Cut(rest, ":")
	if !ok {
		return Line{Kind: KindIgnored, Raw: raw}
	}
	index, err := strconv.Atoi(strings.TrimSpace(idxStr))
	if err != nil {
		return Line{Kind: KindIgnored, Raw: raw}
	}

	taskType := tail
	reason := ""
	if t, r, found := strings.Cut(tail, " - "); found {
		taskType = t
		reason = strings.TrimSpace(r)
	}

	return Line{
		Kind:     kind,
		Raw:      raw,
		Index:    index,
		TaskType: strings.TrimSpace(taskType),
		Reason:   reason,
	}
}

// parseProgressMarker decodes the JSON payload after a progress marker.
// Decode failures produce an Ignored line; the stream continues.
func parseProgressMarker(kind Kind, raw, rest string) Line {
	var payload ProgressPayload
	if err := json.Unmarshal([]byte(rest), &payload); err != nil {
		return Line{Kind: KindIgnored, Raw: raw}
	}
	return Line{Kind: kind, Raw: raw, Progress: &payload}
}
