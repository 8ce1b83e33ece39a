// Package text turns labeled review files into encoded datasets: it reads
// records, tokenizes review text, maps words to vocabulary indices and
// pads every review to a fixed width.
package text

import (
	"strings"

	"github.com/jdkato/prose/tokenize"
)

// Tokenizer splits text into word tokens.
type Tokenizer interface {
	Tokenize(text string) []string
}

// TreebankTokenizer splits text into sentences with the punkt model, then
// each sentence into words with the Penn Treebank rules.
type TreebankTokenizer struct{}

// Tokenize returns the words of text.
func (TreebankTokenizer) Tokenize(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return tokenize.TextToWords(text)
}

// WhitespaceTokenizer splits on runs of white space.
type WhitespaceTokenizer struct{}

// Tokenize returns the words of text.
func (WhitespaceTokenizer) Tokenize(text string) []string {
	return strings.Fields(text)
}

// NewTokenizer returns the tokenizer registered under name: "treebank"
// (also the default for an empty name) or "whitespace".
func NewTokenizer(name string) (Tokenizer, bool) {
	switch name {
	case "", "treebank":
		return TreebankTokenizer{}, true
	case "whitespace":
		return WhitespaceTokenizer{}, true
	}
	return nil, false
}
