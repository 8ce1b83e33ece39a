// Package loss provides classification loss functions over batches.
package loss

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/reviewgru/internal/activations"
)

// Loss is a loss function with derivative.
// yPred holds one row of class scores per sample; labels holds class indices.
type Loss interface {
	// Forward computes the mean loss over the batch.
	Forward(yPred *mat.Dense, labels []int) float64

	// Backward computes the gradient of the mean loss w.r.t. yPred.
	Backward(yPred *mat.Dense, labels []int) *mat.Dense
}

// CrossEntropy is softmax cross entropy over raw scores:
// mean_i(-log softmax(yPred_i)[label_i]).
type CrossEntropy struct{}

// Forward computes the mean negative log likelihood.
func (c CrossEntropy) Forward(yPred *mat.Dense, labels []int) float64 {
	rows, cols := checkShapes("CrossEntropy", yPred, labels)

	var sum float64
	logProbs := make([]float64, cols)
	for i := 0; i < rows; i++ {
		activations.LogSoftmax(logProbs, yPred.RawRowView(i))
		sum -= logProbs[labels[i]]
	}
	return sum / float64(rows)
}

// Backward computes (softmax(yPred) - onehot(labels)) / batch.
func (c CrossEntropy) Backward(yPred *mat.Dense, labels []int) *mat.Dense {
	rows, cols := checkShapes("CrossEntropy", yPred, labels)

	grad := mat.NewDense(rows, cols, nil)
	scale := 1 / float64(rows)
	for i := 0; i < rows; i++ {
		g := activations.Softmax(grad.RawRowView(i), yPred.RawRowView(i))
		g[labels[i]] -= 1
		floats.Scale(scale, g)
	}
	return grad
}

func checkShapes(name string, yPred *mat.Dense, labels []int) (int, int) {
	rows, cols := yPred.Dims()
	if rows != len(labels) {
		panic(name + ": prediction rows and labels must have same length")
	}
	for _, l := range labels {
		if l < 0 || l >= cols {
			panic(name + ": label out of range")
		}
	}
	return rows, cols
}

// Accuracy returns the fraction of positions where pred equals truth.
func Accuracy(truth, pred []int) float64 {
	if len(truth) != len(pred) {
		panic("Accuracy: truth and predictions must have same length")
	}
	if len(truth) == 0 {
		return math.NaN()
	}
	correct := 0
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}
