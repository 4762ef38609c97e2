// Package jobs persists async parse jobs and runs the worker pool that
// drains them. A job moves queued -> processing -> completed or failed;
// terminal states are final and repeat transitions are no-ops.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jobstack/resume-parser/constants"
)

// Job is one async parse request and its outcome.
type Job struct {
	ID          uuid.UUID           `json:"jobId"`
	OwnerID     string              `json:"ownerId,omitempty"`
	Filename    string              `json:"filename"`
	Kind        constants.Kind      `json:"kind"`
	Status      constants.JobStatus `json:"status"`
	Fresh       bool                `json:"fresh,omitempty"`
	Payload     []byte              `json:"-"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
	SubmittedAt time.Time           `json:"submittedAt"`
	StartedAt   *time.Time          `json:"startedAt,omitempty"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// NewJob builds a queued job for the given upload.
func NewJob(ownerID, filename string, kind constants.Kind, payload []byte, fresh bool) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Filename:    filename,
		Kind:        kind,
		Status:      constants.JobStatusQueued,
		Fresh:       fresh,
		Payload:     payload,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}
