package ngram

import "fmt"

// Score measures how well model predicts corpus: the mean of P(token | previous
// order-1 tokens) over every position that has a full context, as a percentage.
func Score(model *Model, corpus Corpus) (float64, error) {
	n := model.Order()
	if corpus.Order != 0 && corpus.Order != n {
		return 0, fmt.Errorf("%w: model order %d, corpus order %d", ErrOrderMismatch, n, corpus.Order)
	}

	seq := corpus.Tokens
	if len(seq) < n {
		return 0, fmt.Errorf("%w: %d tokens, order %d", ErrSequenceTooShort, len(seq), n)
	}

	var sum float64
	for i := n - 1; i < len(seq); i++ {
		sum += model.Score(seq[i], seq[i-n+1:i])
	}
	positions := len(seq) - n + 1

	return sum / float64(positions) * 100, nil
}
