package runstate

import "time"

// Metrics is a derived view of run progress, computed on demand from the
// task list. Completed counts every terminal task; a warning task counts as
// completed but not failed.
type Metrics struct {
	Total           int       `json:"total"`
	Completed       int       `json:"completed"`
	Successful      int       `json:"successful"`
	Failed          int       `json:"failed"`
	Remaining       int       `json:"remaining"`
	PercentComplete float64   `json:"percent_complete"`
	ElapsedMs       int64     `json:"elapsed_ms"`
	CurrentTask     *TaskInfo `json:"current_task,omitempty"`
}

// Metrics computes progress metrics for the current state.
func (s *Store) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return computeMetrics(s.state, s.now())
}

func computeMetrics(st RunState, now time.Time) Metrics {
	m := Metrics{Total: len(st.Tasks)}

	for _, task := range st.Tasks {
		if task.Status.Terminal() {
			m.Completed++
		}
		switch task.Status {
		case TaskSuccess:
			m.Successful++
		case TaskError:
			m.Failed++
		}
	}
	m.Remaining = m.Total - m.Completed

	if m.Total > 0 {
		m.PercentComplete = float64(m.Completed) / float64(m.Total) * 100
	}

	if st.StartTime != nil {
		end := now
		if st.EndTime != nil {
			end = *st.EndTime
		}
		m.ElapsedMs = end.Sub(*st.StartTime).Milliseconds()
	}

	if st.CurrentTaskIndex >= 0 && st.CurrentTaskIndex < len(st.Tasks) {
		task := st.Tasks[st.CurrentTaskIndex]
		task.StartTime = cloneTime(task.StartTime)
		task.EndTime = cloneTime(task.EndTime)
		m.CurrentTask = &task
	}

	return m
}
