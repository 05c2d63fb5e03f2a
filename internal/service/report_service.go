package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scholarr/plagiarism-service/internal/models"
	"github.com/scholarr/plagiarism-service/internal/repository"
)

var ErrStatusUnavailable = errors.New("pipeline status tracking is disabled")

type ReportService interface {
	ListBySubmission(ctx context.Context, submissionID int64) (*models.PlagiarismListResponse, error)
	GetStatus(ctx context.Context, attachmentID int64) (*models.PipelineStatus, error)
	Ping(ctx context.Context) error
}

type reportService struct {
	plagiarismRepo repository.PlagiarismRepository
	statusRepo     repository.StatusRepository
	logger         zerolog.Logger
}

// NewReportService builds the read side. statusRepo may be nil when status tracking is off.
func NewReportService(plagiarismRepo repository.PlagiarismRepository, statusRepo repository.StatusRepository, logger zerolog.Logger) ReportService {
	return &reportService{
		plagiarismRepo: plagiarismRepo,
		statusRepo:     statusRepo,
		logger:         logger,
	}
}

func (s *reportService) ListBySubmission(ctx context.Context, submissionID int64) (*models.PlagiarismListResponse, error) {
	records, err := s.plagiarismRepo.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plagiarism records: %w", err)
	}
	if records == nil {
		records = []models.PlagiarismRecord{}
	}

	return &models.PlagiarismListResponse{Plagiarism: records}, nil
}

func (s *reportService) GetStatus(ctx context.Context, attachmentID int64) (*models.PipelineStatus, error) {
	if s.statusRepo == nil {
		return nil, ErrStatusUnavailable
	}

	return s.statusRepo.GetStatus(ctx, attachmentID)
}

func (s *reportService) Ping(ctx context.Context) error {
	return s.plagiarismRepo.Ping(ctx)
}
