package ngram

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleText = "the cat sat on the mat the cat slept"

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"the", "cat", "sat", "on", "the", "mat"}, Tokenize("the cat sat on the mat"))
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   "))
}

func TestPadLeft(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		order  int
		want   []string
	}{
		{name: "order one adds nothing", tokens: []string{"a"}, order: 1, want: []string{"a"}},
		{name: "order three", tokens: []string{"a", "b"}, order: 3, want: []string{StartSymbol, StartSymbol, "a", "b"}},
		{name: "empty tokens", tokens: nil, order: 2, want: []string{StartSymbol}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PadLeft(tt.tokens, tt.order))
		})
	}
}

func TestEverygrams(t *testing.T) {
	grams := Everygrams([]string{"a", "b", "c"}, 2)
	assert.Equal(t, [][]string{
		{"a"}, {"a", "b"},
		{"b"}, {"b", "c"},
		{"c"},
	}, grams)

	// L tokens, max length n (L >= n): sum over k of L-k+1.
	seq := make([]string, 20)
	for i := range seq {
		seq[i] = "w"
	}
	assert.Len(t, Everygrams(seq, 10), 20*10-(9*10)/2)
	assert.Nil(t, Everygrams(nil, 3))
}

func TestWittenBellScores(t *testing.T) {
	corpus, model, err := Build("a b a", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{StartSymbol, "a", "b", "a"}, corpus.Tokens)
	assert.Equal(t, 3, model.VocabularySize())

	tests := []struct {
		name    string
		word    string
		context []string
		want    float64
	}{
		{name: "unigram start", word: StartSymbol, want: 0.25},
		{name: "unigram a", word: "a", want: 0.5},
		{name: "a after start", word: "a", context: []string{StartSymbol}, want: 0.75},
		{name: "b after a", word: "b", context: []string{"a"}, want: 0.625},
		{name: "a after b", word: "a", context: []string{"b"}, want: 0.75},
		{name: "unknown word", word: "zzz", context: []string{"a"}, want: 0},
		{name: "unknown context falls back to unigram", word: "a", context: []string{"zzz"}, want: 0.5},
		{name: "word never seen after context", word: "b", context: []string{"b"}, want: 0.125},
		{name: "context longer than order", word: "b", context: []string{"zzz", "a"}, want: 0.625},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, model.Score(tt.word, tt.context), 1e-9)
		})
	}
}

func TestScoreSelf(t *testing.T) {
	corpus, model, err := Build("a b a", 2)
	require.NoError(t, err)

	score, err := Score(model, corpus)
	require.NoError(t, err)
	assert.InDelta(t, 2.125/3*100, score, 1e-9)
}

func TestScoreExampleText(t *testing.T) {
	corpus, model, err := Build(exampleText, DefaultOrder)
	require.NoError(t, err)
	assert.Len(t, corpus.Tokens, 9+DefaultOrder-1)

	self, err := Score(model, corpus)
	require.NoError(t, err)
	assert.Greater(t, self, 50.0)
	assert.Less(t, self, 100.0)

	rng := rand.New(rand.NewSource(7))
	random := make([]string, 9)
	for i := range random {
		word := make([]byte, 8)
		for j := range word {
			word[j] = byte('a' + rng.Intn(26))
		}
		random[i] = string(word)
	}
	other, err := Score(model, Corpus{Order: DefaultOrder, Tokens: PadLeft(random, DefaultOrder)})
	require.NoError(t, err)
	assert.Greater(t, self, other)
}

func TestScoreAcrossDocuments(t *testing.T) {
	_, agent, err := Build(exampleText, 3)
	require.NoError(t, err)
	target, _, err := Build("the cat sat quietly", 3)
	require.NoError(t, err)

	score, err := Score(agent, target)
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestBuildErrors(t *testing.T) {
	_, _, err := Build("", DefaultOrder)
	assert.ErrorIs(t, err, ErrEmptyText)

	_, _, err = Build("   ", DefaultOrder)
	assert.ErrorIs(t, err, ErrEmptyText)

	_, _, err = Build("text", 0)
	assert.ErrorIs(t, err, ErrOrderMismatch)
}

func TestScoreErrors(t *testing.T) {
	_, model, err := Build(exampleText, 3)
	require.NoError(t, err)

	_, err = Score(model, Corpus{Order: 3, Tokens: []string{"the", "cat"}})
	assert.ErrorIs(t, err, ErrSequenceTooShort)

	_, err = Score(model, Corpus{Order: 4, Tokens: PadLeft([]string{"the"}, 4)})
	assert.ErrorIs(t, err, ErrOrderMismatch)
}

func TestBuildDeterministic(t *testing.T) {
	c1, m1, err := Build(exampleText, DefaultOrder)
	require.NoError(t, err)
	c2, m2, err := Build(exampleText, DefaultOrder)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Equal(t, m1.Snapshot(), m2.Snapshot())
}

func TestSnapshotRoundTrip(t *testing.T) {
	corpus, model, err := Build(exampleText, 4)
	require.NoError(t, err)

	restored, err := FromSnapshot(model.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, model.Order(), restored.Order())

	want, err := Score(model, corpus)
	require.NoError(t, err)
	got, err := Score(restored, corpus)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)
}

func TestFromSnapshotRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{name: "unknown version", snap: Snapshot{Version: 99, Order: 2}},
		{name: "zero order", snap: Snapshot{Version: SnapshotVersion, Order: 0}},
		{name: "context too long", snap: Snapshot{Version: SnapshotVersion, Order: 2, Counts: []CountEntry{
			{Context: []string{"a", "b"}, Word: "c", Count: 1},
		}}},
		{name: "non-positive count", snap: Snapshot{Version: SnapshotVersion, Order: 2, Counts: []CountEntry{
			{Word: "a", Count: 0},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSnapshot(tt.snap)
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}
