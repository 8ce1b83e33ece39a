// Package layer provides neural network layer implementations.
package layer

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Embedding implements an embedding layer for categorical inputs.
// Maps integer indices to dense embedding vectors.
type Embedding struct {
	numEmbeddings int
	embeddingDim  int
	paddingIdx    int

	// Learnable parameters: weight matrix [numEmbeddings, embeddingDim]
	weights *Param

	// Saved indices for backward pass
	savedIndices []int

	training bool
}

// NewEmbedding creates a new embedding layer.
// numEmbeddings: size of the dictionary of embeddings
// embeddingDim: size of each embedding vector
// paddingIdx: row that stays zero and never receives gradient (-1 for none)
func NewEmbedding(name string, numEmbeddings, embeddingDim, paddingIdx int, rng *RNG) *Embedding {
	e := &Embedding{
		numEmbeddings: numEmbeddings,
		embeddingDim:  embeddingDim,
		paddingIdx:    paddingIdx,
		weights:       newParam(name+".weight", numEmbeddings, embeddingDim),
		training:      true,
	}

	weights := e.weights.Value.RawMatrix().Data
	for i := range weights {
		weights[i] = rng.Normal()
	}
	if e.hasPadding() {
		row := e.weights.Value.RawRowView(paddingIdx)
		for i := range row {
			row[i] = 0
		}
	}
	return e
}

func (e *Embedding) hasPadding() bool {
	return e.paddingIdx >= 0 && e.paddingIdx < e.numEmbeddings
}

// Forward looks up one row per index.
// Returns: embedded vectors of shape [len(indices), embeddingDim]
func (e *Embedding) Forward(indices []int) *mat.Dense {
	output := mat.NewDense(len(indices), e.embeddingDim, nil)
	for b, idx := range indices {
		// Out-of-range indices read the padding row
		if idx < 0 || idx >= e.numEmbeddings {
			if !e.hasPadding() {
				continue
			}
			idx = e.paddingIdx
		}
		copy(output.RawRowView(b), e.weights.Value.RawRowView(idx))
	}

	if e.training {
		e.savedIndices = append(e.savedIndices[:0], indices...)
	}
	return output
}

// Backward accumulates gradients into the rows that were looked up.
// In embedding layers, gradients are sparse - only the used embeddings get updates.
func (e *Embedding) Backward(grad *mat.Dense) {
	rows, _ := grad.Dims()
	if rows != len(e.savedIndices) {
		panic("Embedding: gradient rows do not match saved indices")
	}

	for b, idx := range e.savedIndices {
		if idx < 0 || idx >= e.numEmbeddings || idx == e.paddingIdx {
			continue
		}
		floats.Add(e.weights.Grad.RawRowView(idx), grad.RawRowView(b))
	}
}

// Params returns layer parameters (weights).
func (e *Embedding) Params() []*Param {
	return []*Param{e.weights}
}

// ClearGradients zeroes out the accumulated gradients.
func (e *Embedding) ClearGradients() {
	e.weights.Grad.Zero()
}

// SetTraining sets whether indices are kept for Backward.
func (e *Embedding) SetTraining(training bool) {
	e.training = training
	if !training {
		e.savedIndices = e.savedIndices[:0]
	}
}

// InSize returns the number of embeddings (vocab size).
func (e *Embedding) InSize() int {
	return e.numEmbeddings
}

// OutSize returns the embedding dimension.
func (e *Embedding) OutSize() int {
	return e.embeddingDim
}

// PaddingIdx returns the padding row index.
func (e *Embedding) PaddingIdx() int {
	return e.paddingIdx
}
