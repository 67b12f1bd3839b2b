package domain

import "time"

// JobStatus enumerates reference-job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// ReferenceJob is one queued multi-view generation run for a character.
// At most one job per character may be queued or running at a time; the
// repository enforces this and reports ErrRunInProgress on violation.
type ReferenceJob struct {
	ID           string
	CharacterID  string
	Views        []ViewKind
	UserInput    string
	SampleKeys   []string
	Status       JobStatus
	ProgressJSON []byte
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StageResult reports one completed stage back to progress observers.
type StageResult struct {
	View ViewKind `json:"view"`
	URL  string   `json:"url"`
}

// Progress is the serialized per-stage progress stored on the job row.
type Progress struct {
	Stage     int           `json:"stage"`
	Total     int           `json:"total"`
	Message   string        `json:"message"`
	Completed []StageResult `json:"completed,omitempty"`
}
