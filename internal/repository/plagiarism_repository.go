package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scholarr/plagiarism-service/internal/models"
)

type PlagiarismRepository interface {
	Create(ctx context.Context, info *models.PlagiarismInfo) error
	ListBySubmission(ctx context.Context, submissionID int64) ([]models.PlagiarismRecord, error)
	Ping(ctx context.Context) error
}

type plagiarismRepository struct {
	*PostgresRepository
}

func NewPlagiarismRepository(db *sql.DB, logger zerolog.Logger) PlagiarismRepository {
	return &plagiarismRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *plagiarismRepository) Create(ctx context.Context, info *models.PlagiarismInfo) error {
	query := `
		INSERT INTO plagiarism_info (submission_agent_id, submission_target_id, percentage_plagiarized)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		info.SubmissionAgentID,
		info.SubmissionTargetID,
		info.PercentagePlagiarized,
	).Scan(&info.ID, &info.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plagiarism info: %w", err)
	}

	r.logger.Debug().
		Int64("id", info.ID).
		Int64("agent", info.SubmissionAgentID).
		Int64("target", info.SubmissionTargetID).
		Float64("percentage", info.PercentagePlagiarized).
		Msg("Plagiarism info created")

	return nil
}

// ListBySubmission returns records where the submission is the agent or the target.
func (r *plagiarismRepository) ListBySubmission(ctx context.Context, submissionID int64) ([]models.PlagiarismRecord, error) {
	query := `
		SELECT
			p.id,
			p.percentage_plagiarized,
			ag.id, ag.created_by, ag.answer, ag.grade, ag.remarks, ag.modified, ag.graded, ag.attachments, ag.created_date,
			tg.id, tg.created_by, tg.answer, tg.grade, tg.remarks, tg.modified, tg.graded, tg.attachments, tg.created_date
		FROM plagiarism_info p
		JOIN submissions ag ON ag.id = p.submission_agent_id
		JOIN submissions tg ON tg.id = p.submission_target_id
		WHERE p.submission_agent_id = $1 OR p.submission_target_id = $1
		ORDER BY p.id
	`

	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plagiarism info: %w", err)
	}
	defer rows.Close()

	records := []models.PlagiarismRecord{}
	for rows.Next() {
		var (
			rec models.PlagiarismRecord
			ag  = &rec.SubmissionAgent
			tg  = &rec.SubmissionTarget
		)
		err := rows.Scan(
			&rec.ID,
			&rec.PercentagePlagiarized,
			&ag.ID, &ag.CreatedBy, &ag.Answer, &ag.Grade, &ag.Remarks, &ag.Modified, &ag.Graded, &ag.HasAttachments, &ag.CreatedAt,
			&tg.ID, &tg.CreatedBy, &tg.Answer, &tg.Grade, &tg.Remarks, &tg.Modified, &tg.Graded, &tg.HasAttachments, &tg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plagiarism info: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plagiarism info: %w", err)
	}

	return records, nil
}
