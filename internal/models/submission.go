package models

import (
	"time"
)

type Submission struct {
	ID             int64     `json:"id" db:"id"`
	CreatedBy      int64     `json:"created_by" db:"created_by"`
	Answer         string    `json:"answer" db:"answer"`
	Grade          int       `json:"grade" db:"grade"`
	Remarks        string    `json:"remarks" db:"remarks"`
	Modified       bool      `json:"modified" db:"modified"`
	Graded         bool      `json:"graded" db:"graded"`
	HasAttachments bool      `json:"attachments" db:"attachments"`
	CreatedAt      time.Time `json:"created_date" db:"created_date"`
	ModifiedAt     time.Time `json:"modified_date" db:"modified_date"`
}

type Attachment struct {
	ID              int64     `json:"id" db:"id"`
	Path            string    `json:"attachment" db:"attachment"`
	MimeType        string    `json:"mime_type,omitempty" db:"mime_type"`
	TokenizedHandle *string   `json:"-" db:"tokenized_dump"`
	ModelHandle     *string   `json:"-" db:"model_dump"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// HasArtifacts reports whether both derived artifacts were stored for the attachment.
func (a *Attachment) HasArtifacts() bool {
	return a != nil &&
		a.TokenizedHandle != nil && *a.TokenizedHandle != "" &&
		a.ModelHandle != nil && *a.ModelHandle != ""
}

// PriorSubmission is a submission already linked to the same classwork, together with
// its first attachment if it has one.
type PriorSubmission struct {
	LinkID     int64       `json:"link_id"`
	Submission Submission  `json:"submission"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// ArtifactHandles are the storage handles of one attachment's model and corpus.
type ArtifactHandles struct {
	AttachmentID    int64  `json:"attachment_id"`
	TokenizedHandle string `json:"tokenized_handle"`
	ModelHandle     string `json:"model_handle"`
}
