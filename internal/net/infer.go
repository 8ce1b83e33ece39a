package net

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/FlavioCFOliveira/reviewgru/internal/activations"
	"github.com/FlavioCFOliveira/reviewgru/internal/data"
	"github.com/FlavioCFOliveira/reviewgru/internal/loss"
)

// Evaluation is the result of running the encoder over a labeled dataset.
// Truth and Predicted are in dataset order.
type Evaluation struct {
	Accuracy  float64 // mean of per-batch accuracies
	Overall   float64 // fraction of all reviews classified correctly
	Truth     []int
	Predicted []int
}

// PredictBatch sorts b by length, runs the encoder and returns the
// predicted class of every row in the sorted order.
func PredictBatch(e *Encoder, b *data.Batch) ([]int, error) {
	b.SortByLength()
	out, err := e.Forward(b)
	if err != nil {
		return nil, err
	}
	return argmaxRows(out), nil
}

func argmaxRows(scores *mat.Dense) []int {
	rows, cols := scores.Dims()
	labels := make([]int, rows)
	probs := make([]float64, cols)
	for i := range labels {
		labels[i] = floats.MaxIdx(activations.Softmax(probs, scores.RawRowView(i)))
	}
	return labels
}

// Evaluate classifies ds in order without keeping gradient state.
func Evaluate(e *Encoder, ds *data.Dataset, batchSize int) (*Evaluation, error) {
	if !ds.Labeled() {
		return nil, errors.New("evaluate: dataset has no labels")
	}
	if ds.Len() == 0 {
		return nil, errors.New("evaluate: dataset is empty")
	}

	ev := &Evaluation{
		Truth:     append([]int(nil), ds.Labels...),
		Predicted: make([]int, ds.Len()),
	}
	var batchAccuracy []float64
	err := inferBatches(e, ds, batchSize, func(b *data.Batch, labels []int) {
		batchAccuracy = append(batchAccuracy, loss.Accuracy(b.Labels, labels))
		for i, idx := range b.Index {
			ev.Predicted[idx] = labels[i]
		}
	})
	if err != nil {
		return nil, err
	}

	ev.Accuracy = stat.Mean(batchAccuracy, nil)
	ev.Overall = loss.Accuracy(ev.Truth, ev.Predicted)
	return ev, nil
}

// Predict classifies every review of ds and returns labels in dataset order.
func Predict(e *Encoder, ds *data.Dataset, batchSize int) ([]int, error) {
	predicted := make([]int, ds.Len())
	err := inferBatches(e, ds, batchSize, func(b *data.Batch, labels []int) {
		for i, idx := range b.Index {
			predicted[idx] = labels[i]
		}
	})
	return predicted, err
}

func inferBatches(e *Encoder, ds *data.Dataset, batchSize int, fn func(*data.Batch, []int)) error {
	if batchSize <= 0 {
		return errors.Errorf("batch size %d must be positive", batchSize)
	}
	if e.Training() {
		e.SetTraining(false)
		defer e.SetTraining(true)
	}

	for _, b := range data.NewLoader(ds, batchSize, false, 0).Batches() {
		labels, err := PredictBatch(e, b)
		if err != nil {
			return err
		}
		fn(b, labels)
	}
	return nil
}
