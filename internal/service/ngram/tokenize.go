package ngram

import (
	"github.com/jdkato/prose/tokenize"
)

const (
	// DefaultOrder is the n-gram order used for every submission model.
	DefaultOrder = 10

	StartSymbol   = "<s>"
	UnknownSymbol = "<UNK>"
)

var wordTokenizer = tokenize.NewTreebankWordTokenizer()

// Tokenize splits normalized text into Penn Treebank word tokens.
func Tokenize(text string) []string {
	return wordTokenizer.Tokenize(text)
}

// PadLeft prefixes tokens with order-1 start symbols so that the first real token
// has a full order-1 context window.
func PadLeft(tokens []string, order int) []string {
	pad := order - 1
	if pad < 0 {
		pad = 0
	}

	padded := make([]string, 0, pad+len(tokens))
	for i := 0; i < pad; i++ {
		padded = append(padded, StartSymbol)
	}
	return append(padded, tokens...)
}

// Everygrams returns every n-gram of length 1..maxLen over seq, grouped by start
// position and then by length.
func Everygrams(seq []string, maxLen int) [][]string {
	if maxLen <= 0 || len(seq) == 0 {
		return nil
	}

	grams := make([][]string, 0, len(seq)*maxLen)
	for start := range seq {
		for n := 1; n <= maxLen && start+n <= len(seq); n++ {
			grams = append(grams, seq[start:start+n])
		}
	}
	return grams
}
