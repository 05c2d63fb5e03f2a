package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarr/plagiarism-service/internal/metrics"
	"github.com/scholarr/plagiarism-service/internal/models"
	"github.com/scholarr/plagiarism-service/internal/worker/queue"
)

const (
	linkedKey  = "attachment.linked"
	deletedKey = "submission.deleted"
)

type fakeService struct {
	mu        sync.Mutex
	linked    []models.AttachmentLinkedEvent
	cleaned   []int64
	handles   [][]models.ArtifactHandles
	linkErr   error
	block     chan struct{}
	processed chan struct{}
}

func (f *fakeService) ProcessAttachment(ctx context.Context, submissionID, attachmentID int64) (*models.ComparisonOutcome, error) {
	return f.HandleAttachmentLinked(ctx, models.AttachmentLinkedEvent{SubmissionID: submissionID, AttachmentID: attachmentID})
}

func (f *fakeService) HandleAttachmentLinked(ctx context.Context, event models.AttachmentLinkedEvent) (*models.ComparisonOutcome, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.linked = append(f.linked, event)
	f.mu.Unlock()

	if f.processed != nil {
		f.processed <- struct{}{}
	}
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	return &models.ComparisonOutcome{SubmissionID: event.SubmissionID, AttachmentID: event.AttachmentID}, nil
}

func (f *fakeService) EnqueueAttachment(ctx context.Context, submissionID, attachmentID int64) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeService) CleanupSubmission(ctx context.Context, submissionID int64, known []models.ArtifactHandles) (*models.CleanupResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, submissionID)
	f.handles = append(f.handles, known)
	return &models.CleanupResponse{SubmissionID: submissionID, Attachments: len(known)}, nil
}

type fakeConsumer struct {
	msgs   chan queue.RabbitMQMessage
	closed bool
}

func (c *fakeConsumer) Consume(ctx context.Context) (<-chan queue.RabbitMQMessage, error) {
	return c.msgs, nil
}

func (c *fakeConsumer) GetQueueLength() (int, error) { return len(c.msgs), nil }

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

type settlement struct {
	acked   bool
	requeue bool
}

func message(key string, body interface{}) (queue.RabbitMQMessage, chan settlement) {
	raw, ok := body.([]byte)
	if !ok {
		raw, _ = json.Marshal(body)
	}

	settled := make(chan settlement, 1)
	return queue.RabbitMQMessage{
		Body:       raw,
		RoutingKey: key,
		MessageID:  "msg-1",
		Timestamp:  time.Now(),
		Ack: func(bool) error {
			settled <- settlement{acked: true}
			return nil
		},
		Nack: func(_ bool, requeue bool) error {
			settled <- settlement{requeue: requeue}
			return nil
		},
	}, settled
}

func newTestWorker(svc *fakeService, consumer *fakeConsumer) *plagiarismWorker {
	logger := zerolog.Nop()
	pool := NewWorkerPool(2, metrics.New(), logger)
	return NewPlagiarismWorker(pool, consumer, svc, metrics.New(), RoutingKeys{
		AttachmentLinked:  linkedKey,
		SubmissionDeleted: deletedKey,
	}, logger).(*plagiarismWorker)
}

func TestHandleRoutesAttachmentLinked(t *testing.T) {
	svc := &fakeService{}
	w := newTestWorker(svc, &fakeConsumer{})

	msg, settled := message(linkedKey, models.AttachmentLinkedEvent{SubmissionID: 3, AttachmentID: 9})
	w.handle(context.Background(), msg)

	assert.Equal(t, settlement{acked: true}, <-settled)
	require.Len(t, svc.linked, 1)
	assert.Equal(t, int64(3), svc.linked[0].SubmissionID)
	assert.Equal(t, int64(9), svc.linked[0].AttachmentID)
	assert.Equal(t, 1, w.GetStats().TotalProcessed)
}

func TestHandleRoutesSubmissionDeleted(t *testing.T) {
	svc := &fakeService{}
	w := newTestWorker(svc, &fakeConsumer{})

	tok, mdl := "a.sav", "b.sav"
	msg, settled := message(deletedKey, models.SubmissionDeletedEvent{
		SubmissionID: 4,
		Handles:      []models.ArtifactHandles{{AttachmentID: 1, TokenizedHandle: tok, ModelHandle: mdl}},
	})
	w.handle(context.Background(), msg)

	assert.Equal(t, settlement{acked: true}, <-settled)
	assert.Equal(t, []int64{4}, svc.cleaned)
	require.Len(t, svc.handles[0], 1)
	assert.Equal(t, tok, svc.handles[0][0].TokenizedHandle)
}

func TestHandleAcksRejectedMessages(t *testing.T) {
	tests := []struct {
		name string
		key  string
		body interface{}
	}{
		{name: "malformed body", key: linkedKey, body: []byte("{not json")},
		{name: "missing submission", key: linkedKey, body: models.AttachmentLinkedEvent{AttachmentID: 1}},
		{name: "missing attachment", key: linkedKey, body: models.AttachmentLinkedEvent{SubmissionID: 1}},
		{name: "missing deleted submission", key: deletedKey, body: models.SubmissionDeletedEvent{}},
		{name: "unknown routing key", key: "work.created", body: models.AttachmentLinkedEvent{SubmissionID: 1, AttachmentID: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			w := newTestWorker(svc, &fakeConsumer{})

			msg, settled := message(tt.key, tt.body)
			err := w.processMessage(context.Background(), msg)
			require.Error(t, err)
			assert.True(t, isPermanentError(err))

			w.handle(context.Background(), msg)
			assert.Equal(t, settlement{acked: true}, <-settled)
			assert.Empty(t, svc.linked)
			assert.Equal(t, 1, w.GetStats().FailedJobs)
		})
	}
}

func TestHandleDoesNotRetryPipelineFailures(t *testing.T) {
	svc := &fakeService{linkErr: errors.New("pandoc exploded")}
	w := newTestWorker(svc, &fakeConsumer{})

	msg, settled := message(linkedKey, models.AttachmentLinkedEvent{SubmissionID: 1, AttachmentID: 2})
	w.handle(context.Background(), msg)

	assert.Equal(t, settlement{acked: true}, <-settled)
	assert.Equal(t, 1, w.GetStats().FailedJobs)
}

func TestHandleRequeuesOnShutdown(t *testing.T) {
	svc := &fakeService{block: make(chan struct{})}
	w := newTestWorker(svc, &fakeConsumer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg, settled := message(linkedKey, models.AttachmentLinkedEvent{SubmissionID: 1, AttachmentID: 2})
	w.handle(ctx, msg)

	assert.Equal(t, settlement{requeue: true}, <-settled)
	stats := w.GetStats()
	assert.Equal(t, 1, stats.Requeued)
	assert.Zero(t, stats.FailedJobs)
}

func TestWorkerConsumesUntilStopped(t *testing.T) {
	svc := &fakeService{processed: make(chan struct{}, 2)}
	consumer := &fakeConsumer{msgs: make(chan queue.RabbitMQMessage)}
	w := newTestWorker(svc, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	first, firstSettled := message(linkedKey, models.AttachmentLinkedEvent{SubmissionID: 1, AttachmentID: 1})
	second, secondSettled := message(linkedKey, models.AttachmentLinkedEvent{SubmissionID: 2, AttachmentID: 2})
	consumer.msgs <- first
	consumer.msgs <- second

	for _, ch := range []chan settlement{firstSettled, secondSettled} {
		select {
		case s := <-ch:
			assert.True(t, s.acked)
		case <-time.After(2 * time.Second):
			t.Fatal("message was not settled")
		}
	}

	cancel()
	require.NoError(t, w.Stop())
	assert.True(t, consumer.closed)
	assert.Len(t, svc.linked, 2)
}
