package models

import (
	"time"
)

// AttachmentLinkedEvent is published once an attachment has been linked to a submission.
type AttachmentLinkedEvent struct {
	EventID      string `json:"event_id,omitempty"`
	SubmissionID int64  `json:"submission_id"`
	AttachmentID int64  `json:"attachment_id"`
	Timestamp    int64  `json:"timestamp"`
}

// SubmissionDeletedEvent may carry the artifact handles because the submission rows
// can already be gone by the time it is consumed.
type SubmissionDeletedEvent struct {
	EventID      string            `json:"event_id,omitempty"`
	SubmissionID int64             `json:"submission_id"`
	Handles      []ArtifactHandles `json:"handles,omitempty"`
	Timestamp    int64             `json:"timestamp"`
}

type PlagiarismCompletedEvent struct {
	EventID      string    `json:"event_id"`
	SubmissionID int64     `json:"submission_id"`
	AttachmentID int64     `json:"attachment_id"`
	Compared     int       `json:"compared"`
	RecordIDs    []int64   `json:"record_ids"`
	DurationMs   int64     `json:"duration_ms"`
	CompletedAt  time.Time `json:"completed_at"`
}

type PlagiarismFailedEvent struct {
	EventID      string    `json:"event_id"`
	SubmissionID int64     `json:"submission_id"`
	AttachmentID int64     `json:"attachment_id"`
	Error        string    `json:"error"`
	FailedAt     time.Time `json:"failed_at"`
}
