package text

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/FlavioCFOliveira/reviewgru/internal/data"
)

// EncodeOptions configures dataset encoding.
type EncodeOptions struct {
	Vocab         *Vocabulary
	Tokenizer     Tokenizer
	PaddingIdx    int
	SeqLength     int
	NumClasses    int // labels must be below this; 0 disables the check
	ProgressEvery int // log every n records; 0 disables
	Logger        *logrus.Logger
}

// EncodeSentence maps words to indices, truncating to seqLen or padding
// with pad on the right.
func EncodeSentence(words []string, vocab *Vocabulary, pad, seqLen int) ([]int, error) {
	encoded := make([]int, seqLen)
	for i := range encoded {
		if i >= len(words) {
			encoded[i] = pad
			continue
		}
		idx := vocab.Index(words[i])
		if idx < 0 {
			return nil, errors.Errorf("word %q is not in the vocabulary", words[i])
		}
		encoded[i] = idx
	}
	return encoded, nil
}

// Encode reads labeled records from r. Records without tokens are skipped;
// their label is never parsed.
func Encode(r io.Reader, opts EncodeOptions) (*data.Dataset, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := opts.logger()

	var reviews [][]int
	var labels, lengths []int
	count := 0
	err := ReadRecords(r, func(rec Record) error {
		count++
		words := opts.Tokenizer.Tokenize(rec.Text)
		if len(words) == 0 {
			return nil
		}

		label, err := rec.Label()
		if err != nil {
			return err
		}
		if opts.NumClasses > 0 && label >= opts.NumClasses {
			return errors.Errorf("line %d: label %d outside [0, %d)", rec.Line, label, opts.NumClasses)
		}
		encoded, err := EncodeSentence(words, opts.Vocab, opts.PaddingIdx, opts.SeqLength)
		if err != nil {
			return errors.Wrapf(err, "line %d", rec.Line)
		}

		reviews = append(reviews, encoded)
		labels = append(labels, label)
		lengths = append(lengths, min(len(words), opts.SeqLength))

		if opts.ProgressEvery > 0 && count%opts.ProgressEvery == 0 {
			log.WithField("records", count).Info("encoding reviews")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if labels == nil {
		labels = []int{}
	}
	return data.NewDataset(reviews, labels, lengths)
}

// EncodeFile encodes the data file at path.
func EncodeFile(path string, opts EncodeOptions) (*data.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open data file")
	}
	defer f.Close()

	ds, err := Encode(f, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", path)
	}
	opts.logger().WithFields(logrus.Fields{
		"file":    path,
		"reviews": ds.Len(),
	}).Info("encoded data file")
	return ds, nil
}

// EncodeTexts encodes unlabeled review texts for inference. Texts without
// tokens cannot be classified and are reported as an error.
func EncodeTexts(texts []string, opts EncodeOptions) (*data.Dataset, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	reviews := make([][]int, len(texts))
	lengths := make([]int, len(texts))
	for i, t := range texts {
		words := opts.Tokenizer.Tokenize(t)
		if len(words) == 0 {
			return nil, errors.Errorf("text %d has no tokens", i)
		}
		encoded, err := EncodeSentence(words, opts.Vocab, opts.PaddingIdx, opts.SeqLength)
		if err != nil {
			return nil, errors.Wrapf(err, "text %d", i)
		}
		reviews[i] = encoded
		lengths[i] = min(len(words), opts.SeqLength)
	}
	return data.NewUnlabeled(reviews, lengths)
}

func (o EncodeOptions) validate() error {
	switch {
	case o.Vocab == nil:
		return errors.New("encode: vocabulary is required")
	case o.Tokenizer == nil:
		return errors.New("encode: tokenizer is required")
	case o.SeqLength <= 0:
		return errors.Errorf("encode: sequence length %d must be positive", o.SeqLength)
	}
	return nil
}

func (o EncodeOptions) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}
