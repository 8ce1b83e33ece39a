// Package layer provides neural network layer implementations.
package layer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/reviewgru/internal/activations"
	"github.com/FlavioCFOliveira/reviewgru/internal/seq"
)

// GRU implements a multi-layer Gated Recurrent Unit over packed sequences.
//
// Gate layout follows the usual (r, z, n) stacking:
//
//	r = σ(W_ir x + b_ir + W_hr h + b_hr)
//	z = σ(W_iz x + b_iz + W_hz h + b_hz)
//	n = tanh(W_in x + b_in + r ⊙ (W_hn h + b_hn))
//	h' = (1 - z) ⊙ n + z ⊙ h
//
// The hidden state starts at zero for every Forward call.
type GRU struct {
	inSize     int
	hiddenSize int
	cells      []*gruCell

	// Layout of the last forward pass, needed for Backward
	packed *seq.Packed
	hidden []*mat.Dense

	training bool
}

// gruCell is one layer of the stack.
type gruCell struct {
	inSize int
	hidden int

	weightIH *Param // [3*hidden, inSize]
	weightHH *Param // [3*hidden, hidden]
	biasIH   *Param // [1, 3*hidden]
	biasHH   *Param // [1, 3*hidden]

	// Saved states for BPTT
	input *mat.Dense
	steps []gruStep
}

// gruStep holds the activations of one time step, one row per active sequence.
type gruStep struct {
	hPrev *mat.Dense
	r     *mat.Dense
	z     *mat.Dense
	n     *mat.Dense
	hn    *mat.Dense // W_hn h + b_hn, before the reset gate is applied
}

// NewGRU creates a GRU with numLayers stacked layers. Parameters are named
// name.weight_ih_l{k}, name.weight_hh_l{k}, name.bias_ih_l{k}, name.bias_hh_l{k}.
func NewGRU(name string, inSize, hiddenSize, numLayers int, rng *RNG) *GRU {
	g := &GRU{
		inSize:     inSize,
		hiddenSize: hiddenSize,
		cells:      make([]*gruCell, numLayers),
		training:   true,
	}

	bound := 1 / math.Sqrt(float64(hiddenSize))
	for k := range g.cells {
		in := inSize
		if k > 0 {
			in = hiddenSize
		}
		c := &gruCell{
			inSize:   in,
			hidden:   hiddenSize,
			weightIH: newParam(fmt.Sprintf("%s.weight_ih_l%d", name, k), 3*hiddenSize, in),
			weightHH: newParam(fmt.Sprintf("%s.weight_hh_l%d", name, k), 3*hiddenSize, hiddenSize),
			biasIH:   newParam(fmt.Sprintf("%s.bias_ih_l%d", name, k), 1, 3*hiddenSize),
			biasHH:   newParam(fmt.Sprintf("%s.bias_hh_l%d", name, k), 1, 3*hiddenSize),
		}
		for _, p := range c.params() {
			rng.fillUniform(p.Value.RawMatrix().Data, bound)
		}
		g.cells[k] = c
	}
	return g
}

// Forward runs every layer over the packed input x of shape [p.Rows, inSize].
// Returns the packed outputs of the top layer, shape [p.Rows, hiddenSize].
func (g *GRU) Forward(p *seq.Packed, x *mat.Dense) *mat.Dense {
	if _, cols := x.Dims(); cols != g.inSize {
		panic("GRU: input width does not match layer input size")
	}

	g.packed = p
	g.hidden = g.hidden[:0]
	curr := x
	for _, c := range g.cells {
		var h *mat.Dense
		curr, h = c.forward(p, curr, g.training)
		g.hidden = append(g.hidden, h)
	}
	return curr
}

// Backward propagates dL/d(output) through time and through every layer,
// accumulating parameter gradients. Returns dL/dx in packed layout.
func (g *GRU) Backward(grad *mat.Dense) *mat.Dense {
	if g.packed == nil || g.cells[0].input == nil {
		panic("GRU: Backward called without a training forward pass")
	}
	curr := grad
	for k := len(g.cells) - 1; k >= 0; k-- {
		curr = g.cells[k].backward(g.packed, curr)
	}
	return curr
}

func (c *gruCell) forward(p *seq.Packed, x *mat.Dense, training bool) (*mat.Dense, *mat.Dense) {
	H := c.hidden
	sigmoid := activations.SigmoidFn

	// Input contribution for every packed row at once
	gi := mat.NewDense(p.Rows, 3*H, nil)
	gi.Mul(x, c.weightIH.Value.T())
	addRowVector(gi, c.biasIH.Value.RawRowView(0))

	h := mat.NewDense(p.BatchSize(), H, nil)
	out := mat.NewDense(p.Rows, H, nil)

	var steps []gruStep
	if training {
		steps = make([]gruStep, p.Steps())
	}

	for t, b := range p.BatchSizes {
		off := p.Offsets[t]

		hPrev := mat.DenseCopyOf(h.Slice(0, b, 0, H))
		gh := mat.NewDense(b, 3*H, nil)
		gh.Mul(hPrev, c.weightHH.Value.T())
		addRowVector(gh, c.biasHH.Value.RawRowView(0))

		st := gruStep{
			hPrev: hPrev,
			r:     mat.NewDense(b, H, nil),
			z:     mat.NewDense(b, H, nil),
			n:     mat.NewDense(b, H, nil),
			hn:    mat.NewDense(b, H, nil),
		}

		for i := 0; i < b; i++ {
			giRow := gi.RawRowView(off + i)
			ghRow := gh.RawRowView(i)
			hp := hPrev.RawRowView(i)
			r, z, n, hn := st.r.RawRowView(i), st.z.RawRowView(i), st.n.RawRowView(i), st.hn.RawRowView(i)
			hRow := h.RawRowView(i)
			outRow := out.RawRowView(off + i)

			for j := 0; j < H; j++ {
				r[j] = sigmoid(giRow[j] + ghRow[j])
				z[j] = sigmoid(giRow[H+j] + ghRow[H+j])
				hn[j] = ghRow[2*H+j]
				n[j] = math.Tanh(giRow[2*H+j] + r[j]*hn[j])
				hRow[j] = (1-z[j])*n[j] + z[j]*hp[j]
				outRow[j] = hRow[j]
			}
		}

		if training {
			steps[t] = st
		}
	}

	if training {
		c.input = x
		c.steps = steps
	} else {
		c.input = nil
		c.steps = nil
	}
	return out, h
}

func (c *gruCell) backward(p *seq.Packed, dOut *mat.Dense) *mat.Dense {
	H := c.hidden

	// dL/dh carried from step t+1 back to step t
	dh := mat.NewDense(p.BatchSize(), H, nil)
	// Gate pre-activation gradients on the input side, packed
	dgi := mat.NewDense(p.Rows, 3*H, nil)

	for t := p.Steps() - 1; t >= 0; t-- {
		b := p.BatchSizes[t]
		off := p.Offsets[t]
		st := c.steps[t]

		dgh := mat.NewDense(b, 3*H, nil)
		dhPrev := mat.NewDense(b, H, nil)

		for i := 0; i < b; i++ {
			dhRow := dh.RawRowView(i)
			doRow := dOut.RawRowView(off + i)
			r, z, n, hn := st.r.RawRowView(i), st.z.RawRowView(i), st.n.RawRowView(i), st.hn.RawRowView(i)
			hp := st.hPrev.RawRowView(i)
			dgiRow := dgi.RawRowView(off + i)
			dghRow := dgh.RawRowView(i)
			dhpRow := dhPrev.RawRowView(i)

			for j := 0; j < H; j++ {
				grad := dhRow[j] + doRow[j]

				dn := grad * (1 - z[j])
				dz := grad * (hp[j] - n[j])
				dnPre := dn * (1 - n[j]*n[j])
				dzPre := dz * z[j] * (1 - z[j])
				drPre := dnPre * hn[j] * r[j] * (1 - r[j])

				dgiRow[j] = drPre
				dgiRow[H+j] = dzPre
				dgiRow[2*H+j] = dnPre

				dghRow[j] = drPre
				dghRow[H+j] = dzPre
				dghRow[2*H+j] = dnPre * r[j]

				dhpRow[j] = grad * z[j]
			}
		}

		var gradW mat.Dense
		gradW.Mul(dgh.T(), st.hPrev)
		c.weightHH.Grad.Add(c.weightHH.Grad, &gradW)
		addColumnSums(c.biasHH.Grad.RawRowView(0), dgh)

		var viaWeights mat.Dense
		viaWeights.Mul(dgh, c.weightHH.Value)
		dhPrev.Add(dhPrev, &viaWeights)

		dh.Slice(0, b, 0, H).(*mat.Dense).Copy(dhPrev)
	}

	var gradW mat.Dense
	gradW.Mul(dgi.T(), c.input)
	c.weightIH.Grad.Add(c.weightIH.Grad, &gradW)
	addColumnSums(c.biasIH.Grad.RawRowView(0), dgi)

	dx := mat.NewDense(p.Rows, c.inSize, nil)
	dx.Mul(dgi, c.weightIH.Value)
	return dx
}

func (c *gruCell) params() []*Param {
	return []*Param{c.weightIH, c.weightHH, c.biasIH, c.biasHH}
}

// Params returns all GRU parameters, layer by layer.
func (g *GRU) Params() []*Param {
	var params []*Param
	for _, c := range g.cells {
		params = append(params, c.params()...)
	}
	return params
}

// ClearGradients zeroes out the accumulated gradients.
func (g *GRU) ClearGradients() {
	for _, p := range g.Params() {
		p.Grad.Zero()
	}
}

// SetTraining sets whether per-step activations are kept for Backward.
func (g *GRU) SetTraining(training bool) {
	g.training = training
	if !training {
		for _, c := range g.cells {
			c.input = nil
			c.steps = nil
		}
	}
}

// Hidden returns the final hidden state of every layer from the last
// Forward, each of shape [batch, hiddenSize].
func (g *GRU) Hidden() []*mat.Dense {
	return g.hidden
}

// InSize returns the input size of the GRU.
func (g *GRU) InSize() int {
	return g.inSize
}

// OutSize returns the output size (hidden state) of the GRU.
func (g *GRU) OutSize() int {
	return g.hiddenSize
}

// NumLayers returns the depth of the stack.
func (g *GRU) NumLayers() int {
	return len(g.cells)
}
