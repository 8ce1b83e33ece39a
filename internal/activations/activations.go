// Package activations provides activation functions optimized for performance.
package activations

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x)
	Derivative(x float64) float64
}

// Linear is the identity activation.
type Linear struct{}

// Activate returns x unchanged.
func (l Linear) Activate(x float64) float64 { return x }

// Derivative is always 1.
func (l Linear) Derivative(x float64) float64 { return 1 }

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Sigmoid activation function.
type Sigmoid struct{}

// Activate computes sigmoid(x)
func (s Sigmoid) Activate(x float64) float64 {
	return SigmoidFn(x)
}

// Derivative computes sigmoid(x) * (1 - sigmoid(x))
func (s Sigmoid) Derivative(x float64) float64 {
	sigma := SigmoidFn(x)
	return sigma * (1 - sigma)
}

// SigmoidFn is the logistic function, split on sign so large |x| never overflows.
func SigmoidFn(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Tanh activation function.
type Tanh struct{}

// Activate computes tanh(x)
func (t Tanh) Activate(x float64) float64 {
	return math.Tanh(x)
}

// Derivative computes 1 - tanh(x)^2
func (t Tanh) Derivative(x float64) float64 {
	tanhX := math.Tanh(x)
	return 1 - tanhX*tanhX
}

// Softmax writes softmax(x) into dst and returns it.
// dst may alias x.
func Softmax(dst, x []float64) []float64 {
	lse := floats.LogSumExp(x)
	for i, v := range x {
		dst[i] = math.Exp(v - lse)
	}
	return dst
}

// LogSoftmax writes log(softmax(x)) into dst and returns it.
func LogSoftmax(dst, x []float64) []float64 {
	lse := floats.LogSumExp(x)
	for i, v := range x {
		dst[i] = v - lse
	}
	return dst
}

// Name returns the serialized name of an activation.
func Name(act Activation) string {
	switch act.(type) {
	case ReLU:
		return "ReLU"
	case Sigmoid:
		return "Sigmoid"
	case Tanh:
		return "Tanh"
	default:
		return "Linear"
	}
}

// Parse returns the activation for a name produced by Name.
func Parse(name string) (Activation, bool) {
	switch name {
	case "Linear":
		return Linear{}, true
	case "ReLU":
		return ReLU{}, true
	case "Sigmoid":
		return Sigmoid{}, true
	case "Tanh":
		return Tanh{}, true
	}
	return nil, false
}
