package domain

import "time"

// Job statuses. Transitions are strictly forward-only:
// pending -> running -> completed|failed.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job tracks one asynchronous multi-step operation. Jobs live in memory for
// the process lifetime only; history does not survive a restart.
type Job struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Progress  []string          `json:"progress"`
	Percent   float64           `json:"percent"`
	Result    any               `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// JobEvent is published to observers on every progress append and every
// terminal transition.
type JobEvent struct {
	JobID    string  `json:"jobId"`
	Type     string  `json:"type"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
	Result   any     `json:"result,omitempty"`
	Error    string  `json:"error,omitempty"`
}
