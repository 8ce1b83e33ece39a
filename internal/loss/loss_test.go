// Package loss provides comprehensive unit tests for loss functions.
package loss

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// TestCrossEntropyForward tests the loss value against a hand computation.
func TestCrossEntropyForward(t *testing.T) {
	yPred := mat.NewDense(2, 2, []float64{
		0.2, 0.9,
		0.7, 0.1,
	})
	labels := []int{1, 1}

	got := CrossEntropy{}.Forward(yPred, labels)

	l0 := -math.Log(math.Exp(0.9) / (math.Exp(0.2) + math.Exp(0.9)))
	l1 := -math.Log(math.Exp(0.1) / (math.Exp(0.7) + math.Exp(0.1)))
	want := (l0 + l1) / 2
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Forward = %v, want %v", got, want)
	}
}

// TestCrossEntropyBackward checks the gradient numerically.
func TestCrossEntropyBackward(t *testing.T) {
	ce := CrossEntropy{}
	yPred := mat.NewDense(3, 2, []float64{
		0.3, 0.8,
		0.5, 0.5,
		0.9, 0.05,
	})
	labels := []int{0, 1, 0}
	grad := ce.Backward(yPred, labels)

	const h = 1e-6
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			orig := yPred.At(i, j)
			yPred.Set(i, j, orig+h)
			plus := ce.Forward(yPred, labels)
			yPred.Set(i, j, orig-h)
			minus := ce.Forward(yPred, labels)
			yPred.Set(i, j, orig)

			numeric := (plus - minus) / (2 * h)
			if math.Abs(numeric-grad.At(i, j)) > 1e-8 {
				t.Errorf("grad[%d,%d] = %v, numeric %v", i, j, grad.At(i, j), numeric)
			}
		}
	}
}

func TestCrossEntropyPanicsOnBadLabel(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range label")
		}
	}()
	CrossEntropy{}.Forward(mat.NewDense(1, 2, []float64{0.1, 0.2}), []int{2})
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		truth, pred []int
		expected    float64
	}{
		{[]int{1, 0, 1, 1}, []int{1, 0, 0, 1}, 0.75},
		{[]int{0}, []int{0}, 1},
		{[]int{0, 1}, []int{1, 0}, 0},
	}
	for _, tt := range tests {
		if got := Accuracy(tt.truth, tt.pred); got != tt.expected {
			t.Errorf("Accuracy(%v, %v) = %v, want %v", tt.truth, tt.pred, got, tt.expected)
		}
	}
	if !math.IsNaN(Accuracy(nil, nil)) {
		t.Error("Accuracy of empty input should be NaN")
	}
}
