package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotFound = errors.New("artifact not found")
	ErrCorrupt  = errors.New("artifact is corrupt")
)

// ArtifactStore keeps opaque artifact blobs under handles it chooses itself.
type ArtifactStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
}

const nameLength = 15

// randomName returns nameLength random lowercase ASCII letters.
func randomName() (string, error) {
	buf := make([]byte, nameLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate artifact name: %w", err)
	}
	for i, b := range buf {
		buf[i] = 'a' + b%26
	}
	return string(buf), nil
}

// MemoryStore is an in-process ArtifactStore.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	// FailPut makes the next Put calls fail while positive.
	FailPut int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPut > 0 {
		s.FailPut--
		return "", errors.New("memory store: put failed")
	}

	for {
		name, err := randomName()
		if err != nil {
			return "", err
		}
		handle := "mem://" + name
		if _, exists := s.objects[handle]; exists {
			continue
		}
		s.objects[handle] = append([]byte(nil), data...)
		return handle, nil
	}
}

func (s *MemoryStore) Get(_ context.Context, handle string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, handle)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
