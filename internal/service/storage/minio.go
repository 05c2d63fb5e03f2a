package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type MinIOConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Region         string
	Prefix         string
	Extension      string
	UseSSL         bool
	ConnectTimeout time.Duration
}

// MinIOStore keeps artifacts as objects named <prefix><15 letters><ext>. The handle is
// the object key.
type MinIOStore struct {
	client *minio.Client
	config MinIOConfig
	logger zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

func NewMinIOStore(config MinIOConfig, logger zerolog.Logger) (*MinIOStore, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &MinIOStore{
		client: client,
		config: config,
		logger: logger,
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// MinIO may come up after us; the bucket is ensured again on first use.
	if err := store.ensureBucket(ctx); err != nil {
		logger.Error().Err(err).
			Str("endpoint", config.Endpoint).
			Str("bucket", config.Bucket).
			Msg("MinIO not ready during startup")
	} else {
		logger.Info().
			Str("endpoint", config.Endpoint).
			Str("bucket", config.Bucket).
			Bool("ssl", config.UseSSL).
			Msg("Connected to MinIO")
	}

	return store, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.bucketEnsured {
		return nil
	}

	backoff := 500 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("minio not ready: %w", err)
		}

		exists, err := s.client.BucketExists(ctx, s.config.Bucket)
		if err != nil {
			time.Sleep(backoff)
			continue
		}

		if !exists {
			if err := s.client.MakeBucket(ctx, s.config.Bucket, minio.MakeBucketOptions{Region: s.config.Region}); err != nil {
				time.Sleep(backoff)
				continue
			}
			s.logger.Info().Str("bucket", s.config.Bucket).Msg("Created new bucket")
		}

		s.bucketEnsured = true
		return nil
	}
}

func (s *MinIOStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	name, err := randomName()
	if err != nil {
		return "", err
	}
	key := s.config.Prefix + name + s.config.Extension

	info, err := s.client.PutObject(ctx, s.config.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/bson",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}

	s.logger.Debug().
		Str("bucket", s.config.Bucket).
		Str("handle", key).
		Str("etag", info.ETag).
		Int("size", len(data)).
		Msg("Artifact uploaded to MinIO")

	return key, nil
}

func (s *MinIOStore) Get(ctx context.Context, handle string) ([]byte, error) {
	if !strings.HasPrefix(handle, s.config.Prefix) || handle == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.config.Bucket, handle, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(err, handle)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.translate(err, handle)
	}
	return data, nil
}

func (s *MinIOStore) Delete(ctx context.Context, handle string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.config.Bucket, handle, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	s.logger.Debug().
		Str("bucket", s.config.Bucket).
		Str("handle", handle).
		Msg("Artifact deleted from MinIO")

	return nil
}

func (s *MinIOStore) translate(err error, handle string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return fmt.Errorf("failed to download artifact: %w", err)
}
