package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/scholarr/plagiarism-service/internal/models"
	"github.com/scholarr/plagiarism-service/internal/repository"
	"github.com/scholarr/plagiarism-service/internal/service/storage"
)

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	classworks  map[int64]int64
	attachments map[int64]*models.Attachment
	links       map[int64]int64 // attachment -> submission
	priors      []models.PriorSubmission
	setErr      error

	priorLimit  int
	setCalls    int
	clearCalls  []int64
	lastExclude int64
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		classworks:  make(map[int64]int64),
		attachments: make(map[int64]*models.Attachment),
		links:       make(map[int64]int64),
	}
}

func (r *fakeSubmissionRepo) GetClassworkID(_ context.Context, submissionID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.classworks[submissionID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

func (r *fakeSubmissionRepo) GetPriorSubmissions(_ context.Context, _ int64, exclude int64, limit int) ([]models.PriorSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.priorLimit = limit
	r.lastExclude = exclude

	var out []models.PriorSubmission
	for _, p := range r.priors {
		if p.Submission.ID == exclude {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeSubmissionRepo) GetAttachment(_ context.Context, submissionID, attachmentID int64) (*models.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attachments[attachmentID]
	if !ok || r.links[attachmentID] != submissionID {
		return nil, fmt.Errorf("attachment %d: %w", attachmentID, repository.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r *fakeSubmissionRepo) SetAttachmentArtifacts(_ context.Context, attachmentID int64, tokenized, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setCalls++
	if r.setErr != nil {
		return r.setErr
	}
	a, ok := r.attachments[attachmentID]
	if !ok {
		return repository.ErrNotFound
	}
	a.TokenizedHandle = &tokenized
	a.ModelHandle = &model
	return nil
}

func (r *fakeSubmissionRepo) GetSubmissionArtifacts(_ context.Context, submissionID int64) ([]models.ArtifactHandles, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ArtifactHandles
	for id, a := range r.attachments {
		if r.links[id] != submissionID || !a.HasArtifacts() {
			continue
		}
		out = append(out, models.ArtifactHandles{AttachmentID: id, TokenizedHandle: *a.TokenizedHandle, ModelHandle: *a.ModelHandle})
	}
	return out, nil
}

func (r *fakeSubmissionRepo) ClearAttachmentArtifacts(_ context.Context, attachmentID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearCalls = append(r.clearCalls, attachmentID)
	a, ok := r.attachments[attachmentID]
	if !ok {
		return repository.ErrNotFound
	}
	a.TokenizedHandle = nil
	a.ModelHandle = nil
	return nil
}

func (r *fakeSubmissionRepo) attachment(id int64) *models.Attachment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attachments[id]
}

type fakePlagiarismRepo struct {
	mu      sync.Mutex
	records []models.PlagiarismInfo
	err     error
}

func (r *fakePlagiarismRepo) Create(_ context.Context, info *models.PlagiarismInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	info.ID = int64(len(r.records) + 1)
	r.records = append(r.records, *info)
	return nil
}

func (r *fakePlagiarismRepo) ListBySubmission(_ context.Context, submissionID int64) ([]models.PlagiarismRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []models.PlagiarismRecord
	for _, info := range r.records {
		if info.SubmissionAgentID != submissionID && info.SubmissionTargetID != submissionID {
			continue
		}
		out = append(out, models.PlagiarismRecord{
			ID:                    info.ID,
			SubmissionAgent:       models.SubmissionSummary{ID: info.SubmissionAgentID},
			SubmissionTarget:      models.SubmissionSummary{ID: info.SubmissionTargetID},
			PercentagePlagiarized: info.PercentagePlagiarized,
		})
	}
	return out, nil
}

func (r *fakePlagiarismRepo) Ping(context.Context) error { return r.err }

type fakeExtractor struct {
	texts map[string]string
	err   error
}

func (e *fakeExtractor) Extract(_ context.Context, path, _ string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	text, ok := e.texts[path]
	if !ok {
		return "", errors.New("no such file: " + path)
	}
	return text, nil
}

// flakyStore fails the n-th Put (1-based) and passes everything else through.
type flakyStore struct {
	storage.ArtifactStore
	failOn int
	puts   int
}

func (s *flakyStore) Put(ctx context.Context, data []byte) (string, error) {
	s.puts++
	if s.puts == s.failOn {
		return "", errors.New("disk full")
	}
	return s.ArtifactStore.Put(ctx, data)
}

type published struct {
	exchange, routingKey string
	body                 []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

type fakeStatus struct {
	mu    sync.Mutex
	steps map[int64][]models.Step
	last  map[int64]models.PipelineStatus
	err   error
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{
		steps: make(map[int64][]models.Step),
		last:  make(map[int64]models.PipelineStatus),
	}
}

func (s *fakeStatus) SetStatus(_ context.Context, status models.PipelineStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.steps[status.AttachmentID] = append(s.steps[status.AttachmentID], status.Step)
	s.last[status.AttachmentID] = status
	return nil
}

func (s *fakeStatus) GetStatus(_ context.Context, attachmentID int64) (*models.PipelineStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.last[attachmentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &status, nil
}
