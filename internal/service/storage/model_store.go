package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/scholarr/plagiarism-service/internal/service/ngram"
)

const (
	kindModel  = "ngram_model"
	kindCorpus = "ngram_corpus"

	envelopeVersion = 1
)

type envelope struct {
	Kind    string          `bson:"kind"`
	Version int             `bson:"version"`
	Model   *ngram.Snapshot `bson:"model,omitempty"`
	Corpus  *corpusDocument `bson:"corpus,omitempty"`
}

type corpusDocument struct {
	Order  int      `bson:"order"`
	Tokens []string `bson:"tokens"`
}

// ModelStore persists fitted models and padded token sequences as BSON artifacts.
type ModelStore struct {
	store ArtifactStore
}

func NewModelStore(store ArtifactStore) *ModelStore {
	return &ModelStore{store: store}
}

func (s *ModelStore) SaveModel(ctx context.Context, model *ngram.Model) (string, error) {
	snap := model.Snapshot()
	return s.save(ctx, envelope{Kind: kindModel, Version: envelopeVersion, Model: &snap})
}

func (s *ModelStore) SaveCorpus(ctx context.Context, corpus ngram.Corpus) (string, error) {
	return s.save(ctx, envelope{
		Kind:    kindCorpus,
		Version: envelopeVersion,
		Corpus:  &corpusDocument{Order: corpus.Order, Tokens: corpus.Tokens},
	})
}

func (s *ModelStore) LoadModel(ctx context.Context, handle string) (*ngram.Model, error) {
	env, err := s.load(ctx, handle, kindModel)
	if err != nil {
		return nil, err
	}
	if env.Model == nil {
		return nil, fmt.Errorf("%w: %s has no model", ErrCorrupt, handle)
	}

	model, err := ngram.FromSnapshot(*env.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, handle, err)
	}
	return model, nil
}

func (s *ModelStore) LoadCorpus(ctx context.Context, handle string) (ngram.Corpus, error) {
	env, err := s.load(ctx, handle, kindCorpus)
	if err != nil {
		return ngram.Corpus{}, err
	}
	if env.Corpus == nil || env.Corpus.Order < 1 {
		return ngram.Corpus{}, fmt.Errorf("%w: %s has no corpus", ErrCorrupt, handle)
	}
	return ngram.Corpus{Order: env.Corpus.Order, Tokens: env.Corpus.Tokens}, nil
}

func (s *ModelStore) Delete(ctx context.Context, handle string) error {
	return s.store.Delete(ctx, handle)
}

func (s *ModelStore) save(ctx context.Context, env envelope) (string, error) {
	data, err := bson.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", env.Kind, err)
	}

	handle, err := s.store.Put(ctx, data)
	if err != nil {
		return "", fmt.Errorf("failed to store %s: %w", env.Kind, err)
	}
	return handle, nil
}

func (s *ModelStore) load(ctx context.Context, handle, kind string) (*envelope, error) {
	data, err := s.store.Get(ctx, handle)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := bson.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, handle, err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, handle, env.Version)
	}
	if env.Kind != kind {
		return nil, fmt.Errorf("%w: %s holds %q, want %q", ErrCorrupt, handle, env.Kind, kind)
	}
	return &env, nil
}
