package storage

import (
	"context"
	"testing"

	"github.com/scholarr/plagiarism-service/internal/service/ngram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewModelStore(NewMemoryStore())

	corpus, model, err := ngram.Build("the cat sat on the mat the cat slept", 4)
	require.NoError(t, err)

	modelHandle, err := store.SaveModel(ctx, model)
	require.NoError(t, err)
	corpusHandle, err := store.SaveCorpus(ctx, corpus)
	require.NoError(t, err)
	assert.NotEqual(t, modelHandle, corpusHandle)

	loadedModel, err := store.LoadModel(ctx, modelHandle)
	require.NoError(t, err)
	loadedCorpus, err := store.LoadCorpus(ctx, corpusHandle)
	require.NoError(t, err)

	assert.Equal(t, corpus, loadedCorpus)
	assert.Equal(t, model.Snapshot(), loadedModel.Snapshot())

	want, err := ngram.Score(model, corpus)
	require.NoError(t, err)
	got, err := ngram.Score(loadedModel, loadedCorpus)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestModelStoreRejectsWrongKind(t *testing.T) {
	ctx := context.Background()
	store := NewModelStore(NewMemoryStore())

	corpus, model, err := ngram.Build("a b c", 2)
	require.NoError(t, err)

	modelHandle, err := store.SaveModel(ctx, model)
	require.NoError(t, err)
	corpusHandle, err := store.SaveCorpus(ctx, corpus)
	require.NoError(t, err)

	_, err = store.LoadCorpus(ctx, modelHandle)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = store.LoadModel(ctx, corpusHandle)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestModelStoreCorruptAndMissing(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	store := NewModelStore(mem)

	garbage, err := mem.Put(ctx, []byte("definitely not bson"))
	require.NoError(t, err)

	_, err = store.LoadModel(ctx, garbage)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = store.LoadCorpus(ctx, "mem://missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModelStoreDelete(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	store := NewModelStore(mem)

	corpus, _, err := ngram.Build("a b c", 2)
	require.NoError(t, err)

	handle, err := store.SaveCorpus(ctx, corpus)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, handle))

	_, err = store.LoadCorpus(ctx, handle)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, mem.Len())
}
