// Package net provides the review encoder network, its training loop,
// inference and checkpointing.
package net

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/reviewgru/internal/activations"
	"github.com/FlavioCFOliveira/reviewgru/internal/data"
	"github.com/FlavioCFOliveira/reviewgru/internal/layer"
	"github.com/FlavioCFOliveira/reviewgru/internal/seq"
)

// EncoderConfig describes the network architecture.
type EncoderConfig struct {
	VocabSize    int
	EncodingSize int
	HiddenSize   int
	OutputSize   int
	Layers       int
	PaddingIdx   int
	Activation   string // output activation name, empty means Sigmoid
	Seed         uint64 // weight initialisation
}

const defaultActivation = "Sigmoid"

// Validate checks the architecture is buildable.
func (c EncoderConfig) Validate() error {
	if c.VocabSize <= 0 || c.EncodingSize <= 0 || c.HiddenSize <= 0 || c.OutputSize <= 0 || c.Layers <= 0 {
		return errors.Errorf("encoder: all sizes must be positive: %+v", c)
	}
	if c.PaddingIdx < 0 || c.PaddingIdx >= c.VocabSize {
		return errors.Errorf("encoder: padding index %d outside vocabulary of %d", c.PaddingIdx, c.VocabSize)
	}
	if _, ok := activations.Parse(c.outputActivation()); !ok {
		return errors.Errorf("encoder: unknown output activation %q", c.Activation)
	}
	return nil
}

func (c EncoderConfig) outputActivation() string {
	if c.Activation == "" {
		return defaultActivation
	}
	return c.Activation
}

// Encoder classifies a batch of reviews:
//
//	embedding -> linear -> stacked GRU over packed sequences
//	-> last valid hidden state -> linear -> output activation (sigmoid)
type Encoder struct {
	cfg EncoderConfig

	embedding *layer.Embedding
	e2i       *layer.Dense
	gru       *layer.GRU
	out       *layer.Dense
	layers    []layer.Layer

	// Layout of the last forward pass, needed for Backward
	packed *seq.Packed

	training bool
}

// NewEncoder builds an encoder with freshly initialised weights.
func NewEncoder(cfg EncoderConfig) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := layer.NewRNG(cfg.Seed)
	cfg.Activation = cfg.outputActivation()
	act, _ := activations.Parse(cfg.Activation)

	e := &Encoder{
		cfg:       cfg,
		embedding: layer.NewEmbedding("embedding", cfg.VocabSize, cfg.EncodingSize, cfg.PaddingIdx, rng),
		e2i:       layer.NewDense("e2i", cfg.EncodingSize, cfg.HiddenSize, activations.Linear{}, rng),
		gru:       layer.NewGRU("gru", cfg.HiddenSize, cfg.HiddenSize, cfg.Layers, rng),
		out:       layer.NewDense("out", cfg.HiddenSize, cfg.OutputSize, act, rng),
		training:  true,
	}
	e.layers = []layer.Layer{e.embedding, e.e2i, e.gru, e.out}
	return e, nil
}

// Forward returns one row of activated class scores per batch row. The batch
// must already be sorted by descending length.
func (e *Encoder) Forward(b *data.Batch) (*mat.Dense, error) {
	p, err := seq.NewPacked(b.Lengths)
	if err != nil {
		return nil, errors.Wrap(err, "pack batch")
	}
	tokens, err := p.PackIndices(b.Reviews)
	if err != nil {
		return nil, errors.Wrap(err, "pack batch")
	}

	x := e.embedding.Forward(tokens)
	x = e.e2i.Forward(x)
	x = e.gru.Forward(p, x)
	last := p.GatherLast(x)

	if e.training {
		e.packed = p
	}
	return e.out.Forward(last), nil
}

// Backward accumulates parameter gradients for dL/d(output) of the last
// Forward.
func (e *Encoder) Backward(grad *mat.Dense) {
	if e.packed == nil {
		panic("Encoder: Backward called without a training forward pass")
	}
	g := e.out.Backward(grad)
	g = e.packed.ScatterLast(g)
	g = e.gru.Backward(g)
	g = e.e2i.Backward(g)
	e.embedding.Backward(g)
}

// Params returns every learnable parameter in a stable order.
func (e *Encoder) Params() []*layer.Param {
	var params []*layer.Param
	for _, l := range e.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// ClearGradients zeroes every gradient accumulator.
func (e *Encoder) ClearGradients() {
	for _, l := range e.layers {
		l.ClearGradients()
	}
}

// SetTraining switches between training and no-gradient inference.
func (e *Encoder) SetTraining(training bool) {
	e.training = training
	if !training {
		e.packed = nil
	}
	for _, l := range e.layers {
		l.SetTraining(training)
	}
}

// Training reports the current mode.
func (e *Encoder) Training() bool {
	return e.training
}

// Config returns the architecture.
func (e *Encoder) Config() EncoderConfig {
	return e.cfg
}

// OutputActivation returns the activation applied to the class scores.
func (e *Encoder) OutputActivation() activations.Activation {
	return e.out.Activation()
}

// NumParams returns the total number of learnable scalars.
func (e *Encoder) NumParams() int {
	total := 0
	for _, p := range e.Params() {
		r, c := p.Value.Dims()
		total += r * c
	}
	return total
}

// Summary describes every parameter tensor and the total size.
func (e *Encoder) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "embedding(%d -> %d, padding_idx=%d) -> e2i(%d -> %d) -> gru(%d -> %d, layers=%d) -> out(%d -> %d, %s)\n",
		e.embedding.InSize(), e.embedding.OutSize(), e.embedding.PaddingIdx(),
		e.e2i.InSize(), e.e2i.OutSize(),
		e.gru.InSize(), e.gru.OutSize(), e.gru.NumLayers(),
		e.out.InSize(), e.out.OutSize(), activations.Name(e.out.Activation()))
	fmt.Fprintf(&sb, "%-22s %-12s\n", "Param", "Shape")
	for _, p := range e.Params() {
		r, c := p.Value.Dims()
		fmt.Fprintf(&sb, "%-22s (%d, %d)\n", p.Name, r, c)
	}
	fmt.Fprintf(&sb, "Total params: %d", e.NumParams())
	return sb.String()
}
