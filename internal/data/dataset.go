// Package data holds encoded reviews and serves them in batches.
package data

import (
	"github.com/pkg/errors"
)

// Dataset wraps encoded reviews, their labels and their true lengths.
// Every review is padded or truncated to the same width; Lengths[i] counts
// the tokens of review i before padding.
type Dataset struct {
	Reviews [][]int
	Labels  []int // nil for an unlabeled dataset
	Lengths []int
}

// Example is one row of a Dataset.
type Example struct {
	Review []int
	Label  int
	Length int
}

// NewDataset validates and wraps labeled reviews.
func NewDataset(reviews [][]int, labels, lengths []int) (*Dataset, error) {
	if len(labels) != len(reviews) {
		return nil, errors.Errorf("data: %d reviews but %d labels", len(reviews), len(labels))
	}
	if labels == nil {
		labels = []int{}
	}
	return newDataset(reviews, labels, lengths)
}

// NewUnlabeled validates and wraps reviews without labels, for inference.
func NewUnlabeled(reviews [][]int, lengths []int) (*Dataset, error) {
	return newDataset(reviews, nil, lengths)
}

func newDataset(reviews [][]int, labels, lengths []int) (*Dataset, error) {
	if len(lengths) != len(reviews) {
		return nil, errors.Errorf("data: %d reviews but %d lengths", len(reviews), len(lengths))
	}
	width := -1
	for i, r := range reviews {
		if width < 0 {
			width = len(r)
		} else if len(r) != width {
			return nil, errors.Errorf("data: review %d has width %d, expected %d", i, len(r), width)
		}
		if lengths[i] <= 0 || lengths[i] > len(r) {
			return nil, errors.Errorf("data: review %d has length %d outside [1, %d]", i, lengths[i], len(r))
		}
	}
	return &Dataset{Reviews: reviews, Labels: labels, Lengths: lengths}, nil
}

// Len returns the number of reviews.
func (d *Dataset) Len() int {
	return len(d.Reviews)
}

// Labeled reports whether the dataset carries labels.
func (d *Dataset) Labeled() bool {
	return d.Labels != nil
}

// Width returns the padded sequence length, or 0 for an empty dataset.
func (d *Dataset) Width() int {
	if len(d.Reviews) == 0 {
		return 0
	}
	return len(d.Reviews[0])
}

// At returns example i. Label is -1 for unlabeled datasets.
func (d *Dataset) At(i int) Example {
	label := -1
	if d.Labeled() {
		label = d.Labels[i]
	}
	return Example{Review: d.Reviews[i], Label: label, Length: d.Lengths[i]}
}

// Batch gathers the examples at the given dataset positions.
func (d *Dataset) Batch(indices []int) *Batch {
	b := &Batch{
		Reviews: make([][]int, len(indices)),
		Lengths: make([]int, len(indices)),
		Index:   append([]int(nil), indices...),
	}
	if d.Labeled() {
		b.Labels = make([]int, len(indices))
	}
	for i, idx := range indices {
		b.Reviews[i] = d.Reviews[idx]
		b.Lengths[i] = d.Lengths[idx]
		if b.Labels != nil {
			b.Labels[i] = d.Labels[idx]
		}
	}
	return b
}
