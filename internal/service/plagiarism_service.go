package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholarr/plagiarism-service/internal/metrics"
	"github.com/scholarr/plagiarism-service/internal/models"
	"github.com/scholarr/plagiarism-service/internal/repository"
	"github.com/scholarr/plagiarism-service/internal/service/ngram"
	"github.com/scholarr/plagiarism-service/internal/service/storage"
	"github.com/scholarr/plagiarism-service/internal/service/textproc"
)

var ErrNoClasswork = errors.New("submission is not linked to a classwork")

// What to do with a prior submission that has no stored artifacts.
const (
	MissingArtifactsStop = "stop"
	MissingArtifactsSkip = "skip"
)

type PlagiarismService interface {
	ProcessAttachment(ctx context.Context, submissionID, attachmentID int64) (*models.ComparisonOutcome, error)
	HandleAttachmentLinked(ctx context.Context, event models.AttachmentLinkedEvent) (*models.ComparisonOutcome, error)
	EnqueueAttachment(ctx context.Context, submissionID, attachmentID int64) (string, error)
	CleanupSubmission(ctx context.Context, submissionID int64, known []models.ArtifactHandles) (*models.CleanupResponse, error)
}

// ArtifactStore persists fitted models and padded corpora.
type ArtifactStore interface {
	SaveModel(ctx context.Context, model *ngram.Model) (string, error)
	SaveCorpus(ctx context.Context, corpus ngram.Corpus) (string, error)
	LoadModel(ctx context.Context, handle string) (*ngram.Model, error)
	LoadCorpus(ctx context.Context, handle string) (ngram.Corpus, error)
	Delete(ctx context.Context, handle string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// StatusTracker records pipeline progress. Tracking failures never fail a run.
type StatusTracker interface {
	SetStatus(ctx context.Context, status models.PipelineStatus) error
}

type PlagiarismConfig struct {
	NgramOrder       int
	MaxComparisons   int
	MissingArtifacts string
	Timeout          time.Duration
}

type EventsConfig struct {
	Exchange            string
	AttachmentLinkedKey string
	CompletedKey        string
	FailedKey           string
}

type plagiarismService struct {
	submissionRepo repository.SubmissionRepository
	plagiarismRepo repository.PlagiarismRepository
	extractor      textproc.Extractor
	store          ArtifactStore
	publisher      EventPublisher
	status         StatusTracker
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	config         PlagiarismConfig
	events         EventsConfig
	classworkLocks *keyedMutex
}

func NewPlagiarismService(
	submissionRepo repository.SubmissionRepository,
	plagiarismRepo repository.PlagiarismRepository,
	extractor textproc.Extractor,
	store ArtifactStore,
	publisher EventPublisher,
	status StatusTracker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config PlagiarismConfig,
	events EventsConfig,
) PlagiarismService {
	if config.NgramOrder < 1 {
		config.NgramOrder = ngram.DefaultOrder
	}
	if config.MissingArtifacts == "" {
		config.MissingArtifacts = MissingArtifactsStop
	}

	return &plagiarismService{
		submissionRepo: submissionRepo,
		plagiarismRepo: plagiarismRepo,
		extractor:      extractor,
		store:          store,
		publisher:      publisher,
		status:         status,
		metrics:        m,
		logger:         logger,
		config:         config,
		events:         events,
		classworkLocks: newKeyedMutex(),
	}
}

// ProcessAttachment builds the attachment's model and corpus, stores both handles and
// scores the model against the corpora of up to MaxComparisons earlier submissions of
// the same classwork. Any failure aborts the run; nothing is retried.
func (s *plagiarismService) ProcessAttachment(ctx context.Context, submissionID, attachmentID int64) (*models.ComparisonOutcome, error) {
	startTime := time.Now()

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	outcome, err := s.process(ctx, submissionID, attachmentID)
	duration := time.Since(startTime)

	if err != nil {
		s.track(ctx, submissionID, attachmentID, models.StepFailed, err)
		s.metrics.ObservePipeline("failed", duration)
		s.logger.Error().Err(err).
			Int64("submission_id", submissionID).
			Int64("attachment_id", attachmentID).
			Dur("duration", duration).
			Msg("Plagiarism check failed")
		return outcome, err
	}

	outcome.DurationMs = duration.Milliseconds()
	s.track(ctx, submissionID, attachmentID, models.StepCompleted, nil)
	s.metrics.ObservePipeline("completed", duration)

	s.logger.Info().
		Int64("submission_id", submissionID).
		Int64("attachment_id", attachmentID).
		Int64("classwork_id", outcome.ClassworkID).
		Int("candidates", outcome.Candidates).
		Int("compared", outcome.Compared).
		Int("skipped", outcome.Skipped).
		Bool("stopped", outcome.Stopped).
		Dur("duration", duration).
		Msg("Plagiarism check completed")

	return outcome, nil
}

func (s *plagiarismService) process(ctx context.Context, submissionID, attachmentID int64) (*models.ComparisonOutcome, error) {
	outcome := &models.ComparisonOutcome{
		SubmissionID: submissionID,
		AttachmentID: attachmentID,
		Records:      []models.PlagiarismInfo{},
	}

	classworkID, err := s.submissionRepo.GetClassworkID(ctx, submissionID)
	if errors.Is(err, repository.ErrNotFound) {
		return outcome, fmt.Errorf("%w: submission %d", ErrNoClasswork, submissionID)
	}
	if err != nil {
		return outcome, err
	}
	outcome.ClassworkID = classworkID

	unlock := s.classworkLocks.Lock(classworkID)
	defer unlock()

	attachment, err := s.submissionRepo.GetAttachment(ctx, submissionID, attachmentID)
	if err != nil {
		return outcome, err
	}

	var priors []models.PriorSubmission
	if s.config.MaxComparisons > 0 {
		priors, err = s.submissionRepo.GetPriorSubmissions(ctx, classworkID, submissionID, s.config.MaxComparisons)
		if err != nil {
			return outcome, err
		}
	}
	outcome.Candidates = len(priors)

	s.track(ctx, submissionID, attachmentID, models.StepExtracting, nil)
	raw, err := s.extractor.Extract(ctx, attachment.Path, attachment.MimeType)
	if err != nil {
		return outcome, err
	}

	s.track(ctx, submissionID, attachmentID, models.StepBuilding, nil)
	corpus, model, err := ngram.Build(textproc.Normalize(raw), s.config.NgramOrder)
	if err != nil {
		return outcome, fmt.Errorf("failed to build model for attachment %d: %w", attachmentID, err)
	}

	s.logger.Debug().
		Int64("attachment_id", attachmentID).
		Int("tokens", len(corpus.Tokens)).
		Int("vocabulary", model.VocabularySize()).
		Msg("Language model built")

	handles, err := s.persistArtifacts(ctx, attachment, corpus, model)
	if err != nil {
		return outcome, err
	}
	outcome.Handles = handles

	s.track(ctx, submissionID, attachmentID, models.StepComparing, nil)
	for _, prior := range priors {
		if !prior.Attachment.HasArtifacts() {
			if s.config.MissingArtifacts == MissingArtifactsStop {
				s.metrics.ObserveComparison("stopped")
				s.logger.Debug().
					Int64("submission_id", submissionID).
					Int64("target_id", prior.Submission.ID).
					Msg("Prior submission has no artifacts, stopping")
				outcome.Stopped = true
				break
			}
			s.metrics.ObserveComparison("skipped")
			outcome.Skipped++
			continue
		}

		target, err := s.store.LoadCorpus(ctx, *prior.Attachment.TokenizedHandle)
		if err != nil {
			return outcome, fmt.Errorf("failed to load corpus of submission %d: %w", prior.Submission.ID, err)
		}

		percentage, err := ngram.Score(model, target)
		if err != nil {
			return outcome, fmt.Errorf("failed to score submission %d: %w", prior.Submission.ID, err)
		}

		info := models.PlagiarismInfo{
			SubmissionAgentID:     submissionID,
			SubmissionTargetID:    prior.Submission.ID,
			PercentagePlagiarized: percentage,
		}
		if err := s.plagiarismRepo.Create(ctx, &info); err != nil {
			return outcome, err
		}

		s.metrics.ObserveComparison("scored")
		s.metrics.ObserveScore(percentage)
		outcome.Compared++
		outcome.Records = append(outcome.Records, info)
	}

	return outcome, nil
}

// persistArtifacts stores corpus and model and records both handles in one update.
// On any failure the freshly written artifacts are removed and no handle is recorded.
func (s *plagiarismService) persistArtifacts(ctx context.Context, attachment *models.Attachment, corpus ngram.Corpus, model *ngram.Model) (models.ArtifactHandles, error) {
	handles := models.ArtifactHandles{AttachmentID: attachment.ID}

	tokenized, err := s.store.SaveCorpus(ctx, corpus)
	if err != nil {
		return handles, err
	}

	modelHandle, err := s.store.SaveModel(ctx, model)
	if err != nil {
		s.discard(ctx, tokenized)
		return handles, err
	}

	if err := s.submissionRepo.SetAttachmentArtifacts(ctx, attachment.ID, tokenized, modelHandle); err != nil {
		s.discard(ctx, tokenized, modelHandle)
		return handles, err
	}

	// A re-processed attachment leaves its previous artifacts behind.
	if attachment.HasArtifacts() {
		s.discard(ctx, *attachment.TokenizedHandle, *attachment.ModelHandle)
	}

	handles.TokenizedHandle = tokenized
	handles.ModelHandle = modelHandle
	return handles, nil
}

func (s *plagiarismService) discard(ctx context.Context, handles ...string) int {
	deleted := 0
	for _, h := range handles {
		if h == "" {
			continue
		}
		if err := s.store.Delete(ctx, h); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("handle", h).Msg("Failed to delete artifact")
			continue
		}
		s.metrics.ArtifactDeleted()
		deleted++
	}
	return deleted
}

func (s *plagiarismService) HandleAttachmentLinked(ctx context.Context, event models.AttachmentLinkedEvent) (*models.ComparisonOutcome, error) {
	outcome, err := s.ProcessAttachment(ctx, event.SubmissionID, event.AttachmentID)
	if err != nil {
		s.publish(ctx, s.events.FailedKey, models.PlagiarismFailedEvent{
			EventID:      uuid.New().String(),
			SubmissionID: event.SubmissionID,
			AttachmentID: event.AttachmentID,
			Error:        err.Error(),
			FailedAt:     time.Now(),
		})
		return outcome, err
	}

	recordIDs := make([]int64, 0, len(outcome.Records))
	for _, r := range outcome.Records {
		recordIDs = append(recordIDs, r.ID)
	}

	s.publish(ctx, s.events.CompletedKey, models.PlagiarismCompletedEvent{
		EventID:      uuid.New().String(),
		SubmissionID: event.SubmissionID,
		AttachmentID: event.AttachmentID,
		Compared:     outcome.Compared,
		RecordIDs:    recordIDs,
		DurationMs:   outcome.DurationMs,
		CompletedAt:  time.Now(),
	})

	return outcome, nil
}

func (s *plagiarismService) EnqueueAttachment(ctx context.Context, submissionID, attachmentID int64) (string, error) {
	if s.publisher == nil {
		return "", errors.New("event publisher is not configured")
	}

	event := models.AttachmentLinkedEvent{
		EventID:      uuid.New().String(),
		SubmissionID: submissionID,
		AttachmentID: attachmentID,
		Timestamp:    time.Now().Unix(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attachment linked event: %w", err)
	}

	if err := s.publisher.Publish(ctx, s.events.Exchange, s.events.AttachmentLinkedKey, body); err != nil {
		return "", fmt.Errorf("failed to publish attachment linked event: %w", err)
	}

	s.track(ctx, submissionID, attachmentID, models.StepQueued, nil)

	s.logger.Info().
		Str("event_id", event.EventID).
		Int64("submission_id", submissionID).
		Int64("attachment_id", attachmentID).
		Msg("Attachment queued for plagiarism check")

	return event.EventID, nil
}

// CleanupSubmission deletes the stored artifacts of a submission's attachments and clears
// their handles. Plagiarism records are left alone.
func (s *plagiarismService) CleanupSubmission(ctx context.Context, submissionID int64, known []models.ArtifactHandles) (*models.CleanupResponse, error) {
	handles := known
	if len(handles) == 0 {
		var err error
		handles, err = s.submissionRepo.GetSubmissionArtifacts(ctx, submissionID)
		if err != nil {
			return nil, err
		}
	}

	resp := &models.CleanupResponse{SubmissionID: submissionID, Attachments: len(handles)}

	var errs []error
	for _, h := range handles {
		resp.Deleted += s.discard(ctx, h.TokenizedHandle, h.ModelHandle)

		err := s.submissionRepo.ClearAttachmentArtifacts(ctx, h.AttachmentID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			errs = append(errs, err)
		}
	}

	s.logger.Info().
		Int64("submission_id", submissionID).
		Int("attachments", resp.Attachments).
		Int("deleted", resp.Deleted).
		Msg("Submission artifacts cleaned up")

	return resp, errors.Join(errs...)
}

func (s *plagiarismService) publish(ctx context.Context, routingKey string, event interface{}) {
	if s.publisher == nil || routingKey == "" {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Str("routing_key", routingKey).Msg("Failed to marshal event")
		return
	}

	if err := s.publisher.Publish(ctx, s.events.Exchange, routingKey, body); err != nil {
		s.logger.Error().Err(err).Str("routing_key", routingKey).Msg("Failed to publish event")
	}
}

func (s *plagiarismService) track(ctx context.Context, submissionID, attachmentID int64, step models.Step, cause error) {
	if s.status == nil {
		return
	}

	status := models.PipelineStatus{
		AttachmentID: attachmentID,
		SubmissionID: submissionID,
		Step:         step,
		UpdatedAt:    time.Now().UTC(),
	}
	if cause != nil {
		status.Error = cause.Error()
	}

	// The run's own context may already be expired when recording a failure.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.status.SetStatus(ctx, status); err != nil {
		s.logger.Warn().Err(err).
			Int64("attachment_id", attachmentID).
			Str("step", string(step)).
			Msg("Failed to record pipeline status")
	}
}
