package constants

// JobStatus is the canonical status for async parse jobs.
type JobStatus string

// Stable values (stored as-is in the job store).
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed" // terminal
	JobStatusFailed     JobStatus = "failed"    // terminal
)

// Terminal reports whether a status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValidStatus returns true if s is a known JobStatus value.
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}
