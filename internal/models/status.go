package models

import "time"

type Step string

const (
	StepQueued     Step = "queued"
	StepExtracting Step = "extracting"
	StepBuilding   Step = "building"
	StepComparing  Step = "comparing"
	StepCompleted  Step = "completed"
	StepFailed     Step = "failed"
)

func (s Step) Valid() bool {
	switch s {
	case StepQueued, StepExtracting, StepBuilding, StepComparing, StepCompleted, StepFailed:
		return true
	}
	return false
}

// PipelineStatus is the last known step of an attachment's plagiarism check.
type PipelineStatus struct {
	AttachmentID int64     `json:"attachment_id"`
	SubmissionID int64     `json:"submission_id"`
	Step         Step      `json:"step"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
