// Package layer provides neural network layer implementations.
package layer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/reviewgru/internal/activations"
)

// Param is a learnable matrix together with its gradient accumulator.
// Vectors are stored as 1×n matrices.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// Layer is a neural network layer.
type Layer interface {
	Params() []*Param
	ClearGradients()
	SetTraining(training bool)
}

// Dense is a fully connected layer: y = act(x Wᵀ + b), one sample per row.
type Dense struct {
	// Shape: [out, in], same orientation as the usual state dict layout.
	weights *Param
	biases  *Param
	act     activations.Activation
	inSize  int
	outSize int

	// Saved for backward
	inputBuf  *mat.Dense
	preActBuf *mat.Dense

	training bool
}

// NewDense creates a dense layer named name (parameters become name.weight
// and name.bias) initialised uniformly in ±1/sqrt(in).
func NewDense(name string, in, out int, act activations.Activation, rng *RNG) *Dense {
	if act == nil {
		act = activations.Linear{}
	}
	d := &Dense{
		weights:  newParam(name+".weight", out, in),
		biases:   newParam(name+".bias", 1, out),
		act:      act,
		inSize:   in,
		outSize:  out,
		training: true,
	}

	bound := 1 / math.Sqrt(float64(in))
	rng.fillUniform(d.weights.Value.RawMatrix().Data, bound)
	rng.fillUniform(d.biases.Value.RawMatrix().Data, bound)
	return d
}

// Forward computes the layer output for a batch x of shape [rows, in].
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	if cols != d.inSize {
		panic("Dense: input width does not match layer input size")
	}

	preAct := mat.NewDense(rows, d.outSize, nil)
	preAct.Mul(x, d.weights.Value.T())
	addRowVector(preAct, d.biases.Value.RawRowView(0))

	output := mat.NewDense(rows, d.outSize, nil)
	act := d.act
	output.Apply(func(_, _ int, v float64) float64 {
		return act.Activate(v)
	}, preAct)

	if d.training {
		d.inputBuf = x
		d.preActBuf = preAct
	}
	return output
}

// Backward accumulates weight and bias gradients and returns dL/dx.
func (d *Dense) Backward(grad *mat.Dense) *mat.Dense {
	if d.inputBuf == nil {
		panic("Dense: Backward called without a training forward pass")
	}

	// dz = dL/dy * act'(z)
	rows, _ := grad.Dims()
	dz := mat.NewDense(rows, d.outSize, nil)
	act := d.act
	preAct := d.preActBuf
	dz.Apply(func(i, j int, v float64) float64 {
		return v * act.Derivative(preAct.At(i, j))
	}, grad)

	var gradW mat.Dense
	gradW.Mul(dz.T(), d.inputBuf)
	d.weights.Grad.Add(d.weights.Grad, &gradW)
	addColumnSums(d.biases.Grad.RawRowView(0), dz)

	gradIn := mat.NewDense(rows, d.inSize, nil)
	gradIn.Mul(dz, d.weights.Value)
	return gradIn
}

// Params returns the weight and bias parameters.
func (d *Dense) Params() []*Param {
	return []*Param{d.weights, d.biases}
}

// ClearGradients zeroes out the accumulated gradients.
func (d *Dense) ClearGradients() {
	d.weights.Grad.Zero()
	d.biases.Grad.Zero()
}

// SetTraining sets whether inputs are kept for Backward.
func (d *Dense) SetTraining(training bool) {
	d.training = training
	if !training {
		d.inputBuf = nil
		d.preActBuf = nil
	}
}

// InSize returns the input size of the layer.
func (d *Dense) InSize() int {
	return d.inSize
}

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int {
	return d.outSize
}

// Activation returns the activation function used by this layer.
func (d *Dense) Activation() activations.Activation {
	return d.act
}

// addRowVector adds v to every row of m.
func addRowVector(m *mat.Dense, v []float64) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(m.RawRowView(i), v)
	}
}

// addColumnSums adds the column sums of m into dst.
func addColumnSums(dst []float64, m *mat.Dense) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		floats.Add(dst, m.RawRowView(i))
	}
}
