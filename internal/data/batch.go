package data

import (
	"golang.org/x/exp/rand"

	"github.com/FlavioCFOliveira/reviewgru/internal/seq"
)

// Batch is a slice of a Dataset. Reviews share storage with the dataset.
type Batch struct {
	Reviews [][]int
	Labels  []int // nil when the dataset is unlabeled
	Lengths []int
	Index   []int // dataset position of each row
}

// Size returns the number of rows.
func (b *Batch) Size() int {
	return len(b.Reviews)
}

// SortByLength reorders the rows by descending length, the order the
// packed recurrent layer requires. Ties keep their relative order.
func (b *Batch) SortByLength() {
	order := seq.SortByLength(b.Lengths)

	reviews := make([][]int, len(order))
	lengths := make([]int, len(order))
	index := make([]int, len(order))
	var labels []int
	if b.Labels != nil {
		labels = make([]int, len(order))
	}
	for i, o := range order {
		reviews[i] = b.Reviews[o]
		lengths[i] = b.Lengths[o]
		index[i] = b.Index[o]
		if labels != nil {
			labels[i] = b.Labels[o]
		}
	}
	b.Reviews, b.Lengths, b.Index, b.Labels = reviews, lengths, index, labels
}

// Loader serves a dataset in batches of a fixed size; the last batch may
// be shorter. A shuffling loader draws a fresh permutation every epoch.
type Loader struct {
	ds        *Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader creates a loader. seed only matters when shuffle is set.
func NewLoader(ds *Dataset, batchSize int, shuffle bool, seed uint64) *Loader {
	if batchSize <= 0 {
		panic("data: batch size must be positive")
	}
	return &Loader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// NumBatches returns the number of batches per epoch.
func (l *Loader) NumBatches() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// Batches returns one epoch of batches.
func (l *Loader) Batches() []*Batch {
	n := l.ds.Len()
	var order []int
	if l.shuffle {
		order = l.rng.Perm(n)
	} else {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}

	batches := make([]*Batch, 0, l.NumBatches())
	for start := 0; start < n; start += l.batchSize {
		end := min(start+l.batchSize, n)
		batches = append(batches, l.ds.Batch(order[start:end]))
	}
	return batches
}
