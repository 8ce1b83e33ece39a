// Package opt provides optimization algorithms.
package opt

import "math"

// Optimizer updates network parameters based on gradients.
type Optimizer interface {
	// StepInPlace updates params in-place from gradients. key names the
	// parameter so stateful optimizers can keep per-parameter moments.
	StepInPlace(key string, params, gradients []float64)

	// LR returns the current learning rate.
	LR() float64

	// SetLR changes the learning rate used by later steps.
	SetLR(lr float64)
}

// SGD (Stochastic Gradient Descent) optimizer.
type SGD struct {
	LearningRate float64
}

// StepInPlace updates params in-place: params = params - lr * gradients
func (s *SGD) StepInPlace(_ string, params, gradients []float64) {
	for i := range params {
		params[i] -= s.LearningRate * gradients[i]
	}
}

func (s *SGD) LR() float64      { return s.LearningRate }
func (s *SGD) SetLR(lr float64) { s.LearningRate = lr }

// Adam optimizer with bias-corrected first and second moment estimates.
type Adam struct {
	LearningRate float64
	Beta1        float64 // Exponential decay rate for first moment
	Beta2        float64 // Exponential decay rate for second moment
	Epsilon      float64 // Small constant for numerical stability

	state map[string]*adamState
}

type adamState struct {
	m    []float64
	v    []float64
	step int
}

// NewAdam creates a new Adam optimizer with default values.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		state:        make(map[string]*adamState),
	}
}

// StepInPlace updates params in-place using Adam.
func (a *Adam) StepInPlace(key string, params, gradients []float64) {
	if a.state == nil {
		a.state = make(map[string]*adamState)
	}
	st, ok := a.state[key]
	if !ok || len(st.m) != len(params) {
		st = &adamState{
			m: make([]float64, len(params)),
			v: make([]float64, len(params)),
		}
		a.state[key] = st
	}
	st.step++

	b1, b2 := a.Beta1, a.Beta2
	correction1 := 1 - math.Pow(b1, float64(st.step))
	correction2 := 1 - math.Pow(b2, float64(st.step))
	stepSize := a.LearningRate / correction1
	sqrtCorrection2 := math.Sqrt(correction2)

	for i, g := range gradients {
		st.m[i] = b1*st.m[i] + (1-b1)*g
		st.v[i] = b2*st.v[i] + (1-b2)*g*g
		denom := math.Sqrt(st.v[i])/sqrtCorrection2 + a.Epsilon
		params[i] -= stepSize * st.m[i] / denom
	}
}

func (a *Adam) LR() float64      { return a.LearningRate }
func (a *Adam) SetLR(lr float64) { a.LearningRate = lr }

// Steps returns how many updates the named parameter has received.
func (a *Adam) Steps(key string) int {
	if st, ok := a.state[key]; ok {
		return st.step
	}
	return 0
}
