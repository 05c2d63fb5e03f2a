package ngram

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEmptyText        = errors.New("no tokens to build a model from")
	ErrSequenceTooShort = errors.New("token sequence shorter than model order")
	ErrOrderMismatch    = errors.New("n-gram order mismatch")
	ErrInvalidSnapshot  = errors.New("invalid model snapshot")
)

const contextSep = "\x1f"

// Corpus is a left-padded token sequence together with the order it was padded for.
type Corpus struct {
	Order  int
	Tokens []string
}

type freqDist struct {
	counts map[string]int
	total  int
}

func (d *freqDist) add(word string, n int) {
	d.counts[word] += n
	d.total += n
}

func (d *freqDist) freq(word string) float64 {
	if d.total == 0 {
		return 0
	}
	return float64(d.counts[word]) / float64(d.total)
}

// Model is a Witten-Bell interpolated n-gram language model. Its vocabulary is the
// text it was fit on; every other word is looked up as UnknownSymbol.
type Model struct {
	order int
	vocab map[string]int
	// counts[k] maps a joined k-word context to the distribution of the word after it.
	counts []map[string]*freqDist
}

func NewModel(order int) *Model {
	if order < 1 {
		order = 1
	}

	counts := make([]map[string]*freqDist, order)
	for i := range counts {
		counts[i] = make(map[string]*freqDist)
	}

	return &Model{
		order:  order,
		vocab:  make(map[string]int),
		counts: counts,
	}
}

func (m *Model) Order() int { return m.order }

func (m *Model) VocabularySize() int { return len(m.vocab) }

// Fit counts ngrams of length 1..order. vocabularyText defines the known words.
func (m *Model) Fit(ngrams [][]string, vocabularyText []string) {
	for _, w := range vocabularyText {
		m.vocab[w]++
	}

	for _, gram := range ngrams {
		if len(gram) == 0 || len(gram) > m.order {
			continue
		}
		gram = m.lookupAll(gram)
		ctx, word := gram[:len(gram)-1], gram[len(gram)-1]
		m.dist(ctx, true).add(word, 1)
	}
}

// Score returns P(word | context) with Witten-Bell interpolation down to unigrams.
// A context longer than order-1 words contributes nothing at the surplus levels.
func (m *Model) Score(word string, context []string) float64 {
	word = m.lookup(word)
	context = m.lookupAll(context)

	score := m.dist(nil, false).freq(word)
	for k := 1; k <= len(context); k++ {
		d := m.dist(context[len(context)-k:], false)
		if d == nil || d.total == 0 {
			continue
		}
		gamma := m.gamma(d)
		alpha := (1 - gamma) * d.freq(word)
		score = alpha + gamma*score
	}
	return score
}

func (m *Model) gamma(d *freqDist) float64 {
	types := float64(len(d.counts))
	return types / (types + float64(d.total))
}

func (m *Model) dist(ctx []string, create bool) *freqDist {
	if len(ctx) >= m.order {
		return nil
	}

	key := strings.Join(ctx, contextSep)
	d, ok := m.counts[len(ctx)][key]
	if !ok {
		if !create {
			if len(ctx) == 0 {
				return &freqDist{counts: map[string]int{}}
			}
			return nil
		}
		d = &freqDist{counts: make(map[string]int)}
		m.counts[len(ctx)][key] = d
	}
	return d
}

func (m *Model) lookup(word string) string {
	if _, ok := m.vocab[word]; ok {
		return word
	}
	return UnknownSymbol
}

func (m *Model) lookupAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = m.lookup(w)
	}
	return out
}

// Build tokenizes normalized text, pads it and fits a model of the given order on the
// document's everygrams.
func Build(text string, order int) (Corpus, *Model, error) {
	if order < 1 {
		return Corpus{}, nil, fmt.Errorf("%w: order %d", ErrOrderMismatch, order)
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return Corpus{}, nil, ErrEmptyText
	}

	padded := PadLeft(tokens, order)
	model := NewModel(order)
	model.Fit(Everygrams(padded, order), padded)

	return Corpus{Order: order, Tokens: padded}, model, nil
}

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

type Snapshot struct {
	Version    int          `bson:"version" json:"version"`
	Order      int          `bson:"order" json:"order"`
	Vocabulary []VocabEntry `bson:"vocabulary" json:"vocabulary"`
	Counts     []CountEntry `bson:"counts" json:"counts"`
}

type VocabEntry struct {
	Word  string `bson:"w" json:"w"`
	Count int    `bson:"n" json:"n"`
}

type CountEntry struct {
	Context []string `bson:"c" json:"c"`
	Word    string   `bson:"w" json:"w"`
	Count   int      `bson:"n" json:"n"`
}

// Snapshot returns a deterministic, order-independent dump of the fitted counts.
func (m *Model) Snapshot() Snapshot {
	s := Snapshot{
		Version:    SnapshotVersion,
		Order:      m.order,
		Vocabulary: make([]VocabEntry, 0, len(m.vocab)),
	}

	for w, n := range m.vocab {
		s.Vocabulary = append(s.Vocabulary, VocabEntry{Word: w, Count: n})
	}
	sort.Slice(s.Vocabulary, func(i, j int) bool { return s.Vocabulary[i].Word < s.Vocabulary[j].Word })

	for k, level := range m.counts {
		keys := make([]string, 0, len(level))
		for key := range level {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			var ctx []string
			if k > 0 {
				ctx = strings.Split(key, contextSep)
			}

			d := level[key]
			words := make([]string, 0, len(d.counts))
			for w := range d.counts {
				words = append(words, w)
			}
			sort.Strings(words)

			for _, w := range words {
				s.Counts = append(s.Counts, CountEntry{Context: ctx, Word: w, Count: d.counts[w]})
			}
		}
	}

	return s
}

func FromSnapshot(s Snapshot) (*Model, error) {
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidSnapshot, s.Version)
	}
	if s.Order < 1 {
		return nil, fmt.Errorf("%w: order %d", ErrInvalidSnapshot, s.Order)
	}

	m := NewModel(s.Order)
	for _, v := range s.Vocabulary {
		m.vocab[v.Word] = v.Count
	}
	for _, c := range s.Counts {
		if len(c.Context) >= s.Order || c.Count <= 0 {
			return nil, fmt.Errorf("%w: bad count entry for %q", ErrInvalidSnapshot, c.Word)
		}
		m.dist(c.Context, true).add(c.Word, c.Count)
	}
	return m, nil
}
