package text

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Reserved vocabulary entries.
const (
	PadToken = "<PAD>"
	UnkToken = "<UNK>"
	PadIndex = 0
	UnkIndex = 1
)

// Vocabulary maps words to dense integer indices.
type Vocabulary struct {
	wordToIdx map[string]int
	idxToWord []string
}

// NewVocabulary returns a vocabulary holding only the reserved tokens.
func NewVocabulary() *Vocabulary {
	v := &Vocabulary{wordToIdx: make(map[string]int)}
	v.Add(PadToken)
	v.Add(UnkToken)
	return v
}

// Add returns the index of word, assigning the next free index if needed.
func (v *Vocabulary) Add(word string) int {
	if idx, ok := v.wordToIdx[word]; ok {
		return idx
	}
	idx := len(v.idxToWord)
	v.wordToIdx[word] = idx
	v.idxToWord = append(v.idxToWord, word)
	return idx
}

// Lookup returns the index of word and whether it is known.
func (v *Vocabulary) Lookup(word string) (int, bool) {
	idx, ok := v.wordToIdx[word]
	return idx, ok
}

// Index returns the index of word, the index of UnkToken for unknown
// words, or -1 when the vocabulary has no UnkToken.
func (v *Vocabulary) Index(word string) int {
	if idx, ok := v.wordToIdx[word]; ok {
		return idx
	}
	if idx, ok := v.wordToIdx[UnkToken]; ok {
		return idx
	}
	return -1
}

// Word returns the word at idx, or UnkToken when out of range.
func (v *Vocabulary) Word(idx int) string {
	if idx < 0 || idx >= len(v.idxToWord) {
		return UnkToken
	}
	return v.idxToWord[idx]
}

// Len returns the vocabulary size.
func (v *Vocabulary) Len() int {
	return len(v.idxToWord)
}

// AddRecords adds every token of every record text in r, in order of
// first appearance.
func (v *Vocabulary) AddRecords(r io.Reader, tok Tokenizer) error {
	return ReadRecords(r, v.recordAdder(tok))
}

func (v *Vocabulary) recordAdder(tok Tokenizer) func(Record) error {
	return func(rec Record) error {
		for _, w := range tok.Tokenize(rec.Text) {
			v.Add(w)
		}
		return nil
	}
}

// BuildVocabulary reads the given data files in order and collects their
// words. Empty paths are skipped.
func BuildVocabulary(tok Tokenizer, paths ...string) (*Vocabulary, error) {
	v := NewVocabulary()
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := ReadFile(path, v.recordAdder(tok)); err != nil {
			return nil, errors.Wrap(err, "build vocabulary")
		}
	}
	return v, nil
}

// Encode writes the word-to-index table with gob.
func (v *Vocabulary) Encode(w io.Writer) error {
	return errors.Wrap(gob.NewEncoder(w).Encode(v.wordToIdx), "encode vocabulary")
}

// DecodeVocabulary reads a table written by Encode. The table must map
// PadToken to PadIndex and its indices must be exactly 0..n-1.
func DecodeVocabulary(r io.Reader) (*Vocabulary, error) {
	var table map[string]int
	if err := gob.NewDecoder(r).Decode(&table); err != nil {
		return nil, errors.Wrap(err, "decode vocabulary")
	}
	if idx, ok := table[PadToken]; !ok || idx != PadIndex {
		return nil, errors.Errorf("vocabulary: %s must map to %d", PadToken, PadIndex)
	}

	words := make([]string, len(table))
	filled := make([]bool, len(table))
	for w, idx := range table {
		if idx < 0 || idx >= len(table) || filled[idx] {
			return nil, errors.Errorf("vocabulary: index %d for %q is not dense", idx, w)
		}
		words[idx] = w
		filled[idx] = true
	}
	return &Vocabulary{wordToIdx: table, idxToWord: words}, nil
}

// Save writes the vocabulary to path.
func (v *Vocabulary) Save(path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".vocab-*")
	if err != nil {
		return errors.Wrap(err, "create vocabulary file")
	}
	defer os.Remove(f.Name())

	if err := v.Encode(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close vocabulary file")
	}
	return errors.Wrap(os.Rename(f.Name(), path), "save vocabulary")
}

// LoadVocabulary reads a vocabulary saved by Save.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open vocabulary")
	}
	defer f.Close()

	v, err := DecodeVocabulary(f)
	return v, errors.Wrap(err, path)
}
