package models

import (
	"time"
)

// PlagiarismInfo records how well the agent submission's model predicts the target's text.
type PlagiarismInfo struct {
	ID                    int64     `json:"id" db:"id"`
	SubmissionAgentID     int64     `json:"submission_agent" db:"submission_agent_id"`
	SubmissionTargetID    int64     `json:"submission_target" db:"submission_target_id"`
	PercentagePlagiarized float64   `json:"percentage_plagiarized" db:"percentage_plagiarized"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}

type SubmissionSummary struct {
	ID             int64     `json:"id"`
	CreatedBy      int64     `json:"created_by"`
	Answer         string    `json:"answer"`
	Grade          int       `json:"grade"`
	Remarks        string    `json:"remarks"`
	Modified       bool      `json:"modified"`
	Graded         bool      `json:"graded"`
	HasAttachments bool      `json:"attachments"`
	CreatedAt      time.Time `json:"created_date"`
}

func NewSubmissionSummary(s Submission) SubmissionSummary {
	return SubmissionSummary{
		ID:             s.ID,
		CreatedBy:      s.CreatedBy,
		Answer:         s.Answer,
		Grade:          s.Grade,
		Remarks:        s.Remarks,
		Modified:       s.Modified,
		Graded:         s.Graded,
		HasAttachments: s.HasAttachments,
		CreatedAt:      s.CreatedAt,
	}
}

// PlagiarismRecord is a PlagiarismInfo row with both submissions expanded.
type PlagiarismRecord struct {
	ID                    int64             `json:"id"`
	SubmissionAgent       SubmissionSummary `json:"submission_agent"`
	SubmissionTarget      SubmissionSummary `json:"submission_target"`
	PercentagePlagiarized float64           `json:"percentage_plagiarized"`
}

// ComparisonOutcome summarises one orchestrator run.
type ComparisonOutcome struct {
	SubmissionID int64            `json:"submission_id"`
	AttachmentID int64            `json:"attachment_id"`
	ClassworkID  int64            `json:"classwork_id"`
	Candidates   int              `json:"candidates"`
	Compared     int              `json:"compared"`
	Skipped      int              `json:"skipped"`
	Stopped      bool             `json:"stopped"`
	Records      []PlagiarismInfo `json:"records"`
	Handles      ArtifactHandles  `json:"handles"`
	DurationMs   int64            `json:"duration_ms"`
}
