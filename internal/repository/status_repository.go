package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scholarr/plagiarism-service/internal/models"
)

const statusKeyPrefix = "plagiarism_status:"

type StatusRepository interface {
	SetStatus(ctx context.Context, status models.PipelineStatus) error
	GetStatus(ctx context.Context, attachmentID int64) (*models.PipelineStatus, error)
}

type redisStatusRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewStatusRepository(client *redis.Client, ttl time.Duration, logger zerolog.Logger) StatusRepository {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	return &redisStatusRepository{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func statusKey(attachmentID int64) string {
	return statusKeyPrefix + strconv.FormatInt(attachmentID, 10)
}

func (r *redisStatusRepository) SetStatus(ctx context.Context, status models.PipelineStatus) error {
	if !status.Step.Valid() {
		return fmt.Errorf("unknown step: %s", status.Step)
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline status: %w", err)
	}

	key := statusKey(status.AttachmentID)
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to update status in Redis: %w", err)
	}

	r.logger.Trace().
		Str("step", string(status.Step)).
		Str("redis_key", key).
		Msg("Pipeline status updated")

	return nil
}

func (r *redisStatusRepository) GetStatus(ctx context.Context, attachmentID int64) (*models.PipelineStatus, error) {
	payload, err := r.client.Get(ctx, statusKey(attachmentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status from Redis: %w", err)
	}

	var status models.PipelineStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline status: %w", err)
	}

	return &status, nil
}
