// Package seq packs variable-length sequences into a time-major layout so a
// recurrent layer only visits the valid steps of each sequence.
//
// Sequences are ordered by descending length. At step t the active
// sequences are always the first BatchSizes[t] of the batch, so the packed
// rows of step t are a contiguous block starting at Offsets[t].
package seq

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Packed describes the layout of a packed batch.
type Packed struct {
	Lengths    []int // per sequence, non-increasing
	BatchSizes []int // active sequences per time step
	Offsets    []int // first packed row of each time step
	Rows       int   // total valid steps in the batch
}

// NewPacked builds the packed layout for lengths sorted in descending order.
func NewPacked(lengths []int) (*Packed, error) {
	if len(lengths) == 0 {
		return nil, errors.New("seq: empty batch")
	}
	for i, l := range lengths {
		if l <= 0 {
			return nil, errors.Errorf("seq: sequence %d has non-positive length %d", i, l)
		}
		if i > 0 && l > lengths[i-1] {
			return nil, errors.Errorf("seq: lengths must be sorted in descending order (index %d: %d > %d)", i, l, lengths[i-1])
		}
	}

	steps := lengths[0]
	p := &Packed{
		Lengths:    append([]int(nil), lengths...),
		BatchSizes: make([]int, steps),
		Offsets:    make([]int, steps),
	}

	active := len(lengths)
	for t := 0; t < steps; t++ {
		for active > 0 && lengths[active-1] <= t {
			active--
		}
		p.BatchSizes[t] = active
		p.Offsets[t] = p.Rows
		p.Rows += active
	}
	return p, nil
}

// BatchSize returns the number of sequences.
func (p *Packed) BatchSize() int {
	return len(p.Lengths)
}

// Steps returns the length of the longest sequence.
func (p *Packed) Steps() int {
	return len(p.BatchSizes)
}

// Index returns the packed row of sequence i at step t, or -1 when t is
// past the end of that sequence.
func (p *Packed) Index(t, i int) int {
	if t < 0 || t >= p.Steps() || i >= p.BatchSizes[t] {
		return -1
	}
	return p.Offsets[t] + i
}

// PackIndices flattens the valid prefix of each padded row in packed order.
func (p *Packed) PackIndices(padded [][]int) ([]int, error) {
	if len(padded) != p.BatchSize() {
		return nil, errors.Errorf("seq: got %d rows, layout has %d", len(padded), p.BatchSize())
	}
	for i, row := range padded {
		if len(row) < p.Lengths[i] {
			return nil, errors.Errorf("seq: row %d has %d tokens, length says %d", i, len(row), p.Lengths[i])
		}
	}

	packed := make([]int, 0, p.Rows)
	for t, b := range p.BatchSizes {
		for i := 0; i < b; i++ {
			packed = append(packed, padded[i][t])
		}
	}
	return packed, nil
}

// GatherLast returns a [batch, cols] matrix holding, for every sequence,
// the packed row of its last valid step.
func (p *Packed) GatherLast(data *mat.Dense) *mat.Dense {
	p.checkRows(data)
	_, cols := data.Dims()
	out := mat.NewDense(p.BatchSize(), cols, nil)
	for i, l := range p.Lengths {
		copy(out.RawRowView(i), data.RawRowView(p.Offsets[l-1]+i))
	}
	return out
}

// ScatterLast is the adjoint of GatherLast: it places each row of grad at
// the last valid step of its sequence and leaves every other row zero.
func (p *Packed) ScatterLast(grad *mat.Dense) *mat.Dense {
	rows, cols := grad.Dims()
	if rows != p.BatchSize() {
		panic("seq: ScatterLast gradient rows do not match batch size")
	}
	out := mat.NewDense(p.Rows, cols, nil)
	for i, l := range p.Lengths {
		copy(out.RawRowView(p.Offsets[l-1]+i), grad.RawRowView(i))
	}
	return out
}

// Unpack restores a batch-first padded layout: one [width, cols] matrix per
// sequence with zero rows after its length. width must cover the longest
// sequence.
func (p *Packed) Unpack(data *mat.Dense, width int) []*mat.Dense {
	p.checkRows(data)
	if width < p.Steps() {
		panic("seq: Unpack width shorter than longest sequence")
	}
	_, cols := data.Dims()
	out := make([]*mat.Dense, p.BatchSize())
	for i := range out {
		out[i] = mat.NewDense(width, cols, nil)
	}
	for t, b := range p.BatchSizes {
		for i := 0; i < b; i++ {
			copy(out[i].RawRowView(t), data.RawRowView(p.Offsets[t]+i))
		}
	}
	return out
}

func (p *Packed) checkRows(data *mat.Dense) {
	rows, _ := data.Dims()
	if rows != p.Rows {
		panic("seq: data rows do not match packed layout")
	}
}

// SortByLength returns the permutation that orders lengths descending.
// Ties keep their original relative order.
func SortByLength(lengths []int) []int {
	order := make([]int, len(lengths))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lengths[order[a]] > lengths[order[b]]
	})
	return order
}
