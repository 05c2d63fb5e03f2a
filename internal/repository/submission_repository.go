package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scholarr/plagiarism-service/internal/models"
)

type SubmissionRepository interface {
	GetClassworkID(ctx context.Context, submissionID int64) (int64, error)
	GetPriorSubmissions(ctx context.Context, classworkID, excludeSubmissionID int64, limit int) ([]models.PriorSubmission, error)
	GetAttachment(ctx context.Context, submissionID, attachmentID int64) (*models.Attachment, error)
	SetAttachmentArtifacts(ctx context.Context, attachmentID int64, tokenizedHandle, modelHandle string) error
	GetSubmissionArtifacts(ctx context.Context, submissionID int64) ([]models.ArtifactHandles, error)
	ClearAttachmentArtifacts(ctx context.Context, attachmentID int64) error
}

type submissionRepository struct {
	*PostgresRepository
}

func NewSubmissionRepository(db *sql.DB, logger zerolog.Logger) SubmissionRepository {
	return &submissionRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *submissionRepository) GetClassworkID(ctx context.Context, submissionID int64) (int64, error) {
	query := `
		SELECT classwork_id
		FROM classwork_submissions
		WHERE submission_id = $1
		ORDER BY id
		LIMIT 1
	`

	var classworkID int64
	err := r.db.QueryRowContext(ctx, query, submissionID).Scan(&classworkID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("classwork for submission %d: %w", submissionID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get classwork: %w", err)
	}

	return classworkID, nil
}

// GetPriorSubmissions returns up to limit submissions of the classwork in link order,
// each with its first attachment.
func (r *submissionRepository) GetPriorSubmissions(ctx context.Context, classworkID, excludeSubmissionID int64, limit int) ([]models.PriorSubmission, error) {
	query := `
		SELECT
			cs.id,
			s.id,
			s.created_by,
			s.answer,
			s.grade,
			s.remarks,
			s.modified,
			s.graded,
			s.attachments,
			s.created_date,
			s.modified_date,
			a.id,
			a.attachment,
			a.mime_type,
			a.tokenized_dump,
			a.model_dump,
			a.created_at
		FROM classwork_submissions cs
		JOIN submissions s ON s.id = cs.submission_id
		LEFT JOIN LATERAL (
			SELECT at.id, at.attachment, at.mime_type, at.tokenized_dump, at.model_dump, at.created_at
			FROM submission_attachments sa
			JOIN attachments at ON at.id = sa.attachment_id
			WHERE sa.submission_id = s.id
			ORDER BY sa.id
			LIMIT 1
		) a ON TRUE
		WHERE cs.classwork_id = $1
			AND cs.submission_id <> $2
		ORDER BY cs.id
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, classworkID, excludeSubmissionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prior submissions: %w", err)
	}
	defer rows.Close()

	var priors []models.PriorSubmission
	for rows.Next() {
		var (
			prior        models.PriorSubmission
			attachmentID sql.NullInt64
			path         sql.NullString
			mimeType     sql.NullString
			tokenized    sql.NullString
			model        sql.NullString
			createdAt    sql.NullTime
		)

		err := rows.Scan(
			&prior.LinkID,
			&prior.Submission.ID,
			&prior.Submission.CreatedBy,
			&prior.Submission.Answer,
			&prior.Submission.Grade,
			&prior.Submission.Remarks,
			&prior.Submission.Modified,
			&prior.Submission.Graded,
			&prior.Submission.HasAttachments,
			&prior.Submission.CreatedAt,
			&prior.Submission.ModifiedAt,
			&attachmentID,
			&path,
			&mimeType,
			&tokenized,
			&model,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prior submission: %w", err)
		}

		if attachmentID.Valid {
			prior.Attachment = &models.Attachment{
				ID:              attachmentID.Int64,
				Path:            path.String,
				MimeType:        mimeType.String,
				TokenizedHandle: nullableString(tokenized),
				ModelHandle:     nullableString(model),
				CreatedAt:       createdAt.Time,
			}
		}

		priors = append(priors, prior)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prior submissions: %w", err)
	}

	return priors, nil
}

func (r *submissionRepository) GetAttachment(ctx context.Context, submissionID, attachmentID int64) (*models.Attachment, error) {
	query := `
		SELECT a.id, a.attachment, a.mime_type, a.tokenized_dump, a.model_dump, a.created_at
		FROM attachments a
		JOIN submission_attachments sa ON sa.attachment_id = a.id
		WHERE a.id = $1 AND sa.submission_id = $2
		LIMIT 1
	`

	var (
		attachment models.Attachment
		mimeType   sql.NullString
		tokenized  sql.NullString
		model      sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, attachmentID, submissionID).Scan(
		&attachment.ID,
		&attachment.Path,
		&mimeType,
		&tokenized,
		&model,
		&attachment.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attachment %d of submission %d: %w", attachmentID, submissionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	attachment.MimeType = mimeType.String
	attachment.TokenizedHandle = nullableString(tokenized)
	attachment.ModelHandle = nullableString(model)

	return &attachment, nil
}

// SetAttachmentArtifacts stores both handles in one statement.
func (r *submissionRepository) SetAttachmentArtifacts(ctx context.Context, attachmentID int64, tokenizedHandle, modelHandle string) error {
	query := `
		UPDATE attachments
		SET tokenized_dump = $2, model_dump = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, attachmentID, tokenizedHandle, modelHandle)
	if err != nil {
		return fmt.Errorf("failed to set attachment artifacts: %w", err)
	}

	return expectAffected(result, fmt.Sprintf("attachment %d", attachmentID))
}

func (r *submissionRepository) GetSubmissionArtifacts(ctx context.Context, submissionID int64) ([]models.ArtifactHandles, error) {
	query := `
		SELECT a.id, a.tokenized_dump, a.model_dump
		FROM attachments a
		JOIN submission_attachments sa ON sa.attachment_id = a.id
		WHERE sa.submission_id = $1
			AND (a.tokenized_dump IS NOT NULL OR a.model_dump IS NOT NULL)
		ORDER BY sa.id
	`

	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submission artifacts: %w", err)
	}
	defer rows.Close()

	var handles []models.ArtifactHandles
	for rows.Next() {
		var (
			h         models.ArtifactHandles
			tokenized sql.NullString
			model     sql.NullString
		)
		if err := rows.Scan(&h.AttachmentID, &tokenized, &model); err != nil {
			return nil, fmt.Errorf("failed to scan artifact handles: %w", err)
		}
		h.TokenizedHandle = tokenized.String
		h.ModelHandle = model.String
		handles = append(handles, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artifact handles: %w", err)
	}

	return handles, nil
}

func (r *submissionRepository) ClearAttachmentArtifacts(ctx context.Context, attachmentID int64) error {
	query := `
		UPDATE attachments
		SET tokenized_dump = NULL, model_dump = NULL
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, attachmentID)
	if err != nil {
		return fmt.Errorf("failed to clear attachment artifacts: %w", err)
	}

	return expectAffected(result, fmt.Sprintf("attachment %d", attachmentID))
}

func expectAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
