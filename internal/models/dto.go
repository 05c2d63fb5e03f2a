package models

import "time"

// Data Transfer Objects

type PlagiarismListResponse struct {
	Plagiarism []PlagiarismRecord `json:"plagiarism"`
}

type TriggerAnalysisRequest struct {
	SubmissionID int64 `json:"submission_id" validate:"required,gt=0"`
	AttachmentID int64 `json:"attachment_id" validate:"required,gt=0"`
}

type TriggerAnalysisResponse struct {
	Status       string             `json:"status"`
	EventID      string             `json:"event_id,omitempty"`
	SubmissionID int64              `json:"submission_id"`
	AttachmentID int64              `json:"attachment_id"`
	Outcome      *ComparisonOutcome `json:"outcome,omitempty"`
}

type CleanupResponse struct {
	SubmissionID int64 `json:"submission_id"`
	Attachments  int   `json:"attachments"`
	Deleted      int   `json:"deleted"`
}

type HealthCheckResponse struct {
	Status        string    `json:"status"`
	Database      bool      `json:"database"`
	Broker        bool      `json:"broker"`
	ActiveWorkers int       `json:"active_workers"`
	QueueLength   int       `json:"queue_length"`
	Uptime        string    `json:"uptime"`
	Timestamp     time.Time `json:"timestamp"`
}
