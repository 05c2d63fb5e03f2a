package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarr/plagiarism-service/internal/metrics"
	"github.com/scholarr/plagiarism-service/internal/models"
	"github.com/scholarr/plagiarism-service/internal/service"
	"github.com/scholarr/plagiarism-service/internal/worker/queue"
)

type PlagiarismWorker interface {
	Start(ctx context.Context) error
	Stop() error
	GetStats() WorkerStats
}

type WorkerStats struct {
	ActiveWorkers  int `json:"active_workers"`
	ProcessedToday int `json:"processed_today"`
	TotalProcessed int `json:"total_processed"`
	FailedJobs     int `json:"failed_jobs"`
	Requeued       int `json:"requeued"`
	QueueLength    int `json:"queue_length"`
}

type RoutingKeys struct {
	AttachmentLinked  string
	SubmissionDeleted string
}

type plagiarismWorker struct {
	workerPool        *WorkerPool
	queueConsumer     queue.RabbitMQConsumer
	plagiarismService service.PlagiarismService
	metrics           *metrics.Metrics
	keys              RoutingKeys
	logger            zerolog.Logger
	stats             WorkerStats
	statsMutex        sync.RWMutex
	startTime         time.Time
}

func NewPlagiarismWorker(
	workerPool *WorkerPool,
	queueConsumer queue.RabbitMQConsumer,
	plagiarismService service.PlagiarismService,
	m *metrics.Metrics,
	keys RoutingKeys,
	logger zerolog.Logger,
) PlagiarismWorker {
	return &plagiarismWorker{
		workerPool:        workerPool,
		queueConsumer:     queueConsumer,
		plagiarismService: plagiarismService,
		metrics:           m,
		keys:              keys,
		logger:            logger,
		startTime:         time.Now(),
	}
}

func (w *plagiarismWorker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting plagiarism worker...")

	if err := w.workerPool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	msgs, err := w.queueConsumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go w.processMessages(ctx, msgs)

	w.logger.Info().Msg("Plagiarism worker started successfully")
	return nil
}

func (w *plagiarismWorker) Stop() error {
	w.logger.Info().Msg("Stopping plagiarism worker...")

	if err := w.queueConsumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	if err := w.workerPool.Stop(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to stop worker pool")
	}

	w.statsMutex.RLock()
	w.logger.Info().
		Int("total_processed", w.stats.TotalProcessed).
		Int("failed_jobs", w.stats.FailedJobs).
		Dur("uptime", time.Since(w.startTime)).
		Msg("Plagiarism worker stopped")
	w.statsMutex.RUnlock()

	return nil
}

func (w *plagiarismWorker) processMessages(ctx context.Context, msgs <-chan queue.RabbitMQMessage) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping message processing")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Message channel closed")
				return
			}

			err := w.workerPool.Submit(func() { w.handle(ctx, msg) })
			if err != nil {
				w.logger.Warn().Err(err).Str("message_id", msg.MessageID).Msg("Returning message to queue")
				if nackErr := msg.Nack(false, true); nackErr != nil {
					w.logger.Error().Err(nackErr).Msg("Failed to nack message")
				}
			}
		}
	}
}

// handle settles a delivery. Pipeline failures are acknowledged and never retried;
// only messages interrupted by shutdown go back to the queue.
func (w *plagiarismWorker) handle(ctx context.Context, msg queue.RabbitMQMessage) {
	err := w.processMessage(ctx, msg)
	if err == nil {
		w.metrics.ObserveEvent(msg.RoutingKey, "processed")
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}

		w.statsMutex.Lock()
		w.stats.TotalProcessed++
		if time.Since(msg.Timestamp).Hours() < 24 {
			w.stats.ProcessedToday++
		}
		w.statsMutex.Unlock()
		return
	}

	w.logger.Error().
		Err(err).
		Str("message_id", msg.MessageID).
		Str("routing_key", msg.RoutingKey).
		Msg("Failed to process message")

	if !isPermanentError(err) && ctx.Err() != nil {
		w.metrics.ObserveEvent(msg.RoutingKey, "requeued")
		if nackErr := msg.Nack(false, true); nackErr != nil {
			w.logger.Error().Err(nackErr).Msg("Failed to nack message")
		}

		w.statsMutex.Lock()
		w.stats.Requeued++
		w.statsMutex.Unlock()
		return
	}

	w.metrics.ObserveEvent(msg.RoutingKey, "failed")
	if ackErr := msg.Ack(false); ackErr != nil {
		w.logger.Error().Err(ackErr).Msg("Failed to ack message")
	}

	w.statsMutex.Lock()
	w.stats.FailedJobs++
	w.statsMutex.Unlock()
}

func (w *plagiarismWorker) processMessage(ctx context.Context, msg queue.RabbitMQMessage) error {
	switch msg.RoutingKey {
	case w.keys.AttachmentLinked:
		var event models.AttachmentLinkedEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			return permanent(fmt.Errorf("failed to unmarshal attachment linked event: %w", err))
		}
		if event.SubmissionID <= 0 {
			return permanent(errors.New("empty submission_id"))
		}
		if event.AttachmentID <= 0 {
			return permanent(errors.New("empty attachment_id"))
		}

		w.logger.Info().
			Str("event_id", event.EventID).
			Int64("submission_id", event.SubmissionID).
			Int64("attachment_id", event.AttachmentID).
			Msg("Processing attachment")

		_, err := w.plagiarismService.HandleAttachmentLinked(ctx, event)
		return err

	case w.keys.SubmissionDeleted:
		var event models.SubmissionDeletedEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			return permanent(fmt.Errorf("failed to unmarshal submission deleted event: %w", err))
		}
		if event.SubmissionID <= 0 {
			return permanent(errors.New("empty submission_id"))
		}

		_, err := w.plagiarismService.CleanupSubmission(ctx, event.SubmissionID, event.Handles)
		return err

	default:
		return permanent(fmt.Errorf("unexpected routing key %q", msg.RoutingKey))
	}
}

func (w *plagiarismWorker) GetStats() WorkerStats {
	queueLength, err := w.queueConsumer.GetQueueLength()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to get queue length")
	}

	w.statsMutex.Lock()
	defer w.statsMutex.Unlock()

	if err == nil {
		w.stats.QueueLength = queueLength
	}
	w.stats.ActiveWorkers = w.workerPool.GetActiveWorkers()

	return w.stats
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanentError(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
