package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarr/plagiarism-service/internal/models"
)

func newStatusRepo(t *testing.T) (StatusRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStatusRepository(client, time.Hour, zerolog.Nop()), mr
}

func TestStatusRepositoryRoundTrip(t *testing.T) {
	repo, mr := newStatusRepo(t)
	ctx := context.Background()

	_, err := repo.GetStatus(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.SetStatus(ctx, models.PipelineStatus{AttachmentID: 42, SubmissionID: 7, Step: models.StepExtracting}))
	require.NoError(t, repo.SetStatus(ctx, models.PipelineStatus{AttachmentID: 42, SubmissionID: 7, Step: models.StepFailed, Error: "pandoc missing"}))

	status, err := repo.GetStatus(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StepFailed, status.Step)
	assert.Equal(t, int64(7), status.SubmissionID)
	assert.Equal(t, "pandoc missing", status.Error)
	assert.False(t, status.UpdatedAt.IsZero())

	assert.True(t, mr.Exists("plagiarism_status:42"))
	assert.Equal(t, time.Hour, mr.TTL("plagiarism_status:42"))

	mr.FastForward(2 * time.Hour)
	_, err = repo.GetStatus(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusRepositoryRejectsUnknownStep(t *testing.T) {
	repo, mr := newStatusRepo(t)

	err := repo.SetStatus(context.Background(), models.PipelineStatus{AttachmentID: 1, Step: "dreaming"})
	require.Error(t, err)
	assert.False(t, mr.Exists("plagiarism_status:1"))
}

func TestStatusRepositoryCorruptPayload(t *testing.T) {
	repo, mr := newStatusRepo(t)
	require.NoError(t, mr.Set("plagiarism_status:5", "not json"))

	_, err := repo.GetStatus(context.Background(), 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
