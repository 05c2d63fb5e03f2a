package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileStore writes each artifact to <dir>/<15 random lowercase letters><ext>.
// The handle is that path.
type FileStore struct {
	dir    string
	ext    string
	logger zerolog.Logger
}

func NewFileStore(dir, ext string, logger zerolog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	return &FileStore{
		dir:    filepath.Clean(dir),
		ext:    ext,
		logger: logger,
	}, nil
}

func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		name, err := randomName()
		if err != nil {
			return "", err
		}
		path := filepath.Join(s.dir, name+s.ext)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create artifact file: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write artifact: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("failed to close artifact: %w", err)
		}

		s.logger.Debug().
			Str("handle", path).
			Int("size", len(data)).
			Msg("Artifact written")

		return path, nil
	}
}

func (s *FileStore) Get(_ context.Context, handle string) ([]byte, error) {
	path, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// Delete removes the artifact. Deleting a missing artifact is not an error.
func (s *FileStore) Delete(_ context.Context, handle string) error {
	path, err := s.resolve(handle)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	s.logger.Debug().Str("handle", handle).Msg("Artifact deleted")
	return nil
}

// resolve accepts only handles that point directly into the store directory.
func (s *FileStore) resolve(handle string) (string, error) {
	if handle == "" {
		return "", fmt.Errorf("%w: empty handle", ErrNotFound)
	}

	path := filepath.Clean(handle)
	if filepath.Dir(path) != s.dir {
		return "", fmt.Errorf("%w: handle %q is outside %s", ErrNotFound, handle, s.dir)
	}
	return path, nil
}
