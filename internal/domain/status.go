package domain

import "time"

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// JobStatus is the side-channel progress record of an export job. It only
// exists for messages that carry a job id.
type JobStatus struct {
	JobID      string    `json:"job_id"`
	ExportType string    `json:"export_type"`
	Status     string    `json:"status"`
	Artifact   string    `json:"artifact,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal reports whether no further transition is expected
func (s *JobStatus) Terminal() bool {
	return s.Status == JobStatusCompleted || s.Status == JobStatusFailed
}
