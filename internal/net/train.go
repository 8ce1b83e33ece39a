package net

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/FlavioCFOliveira/reviewgru/internal/data"
	"github.com/FlavioCFOliveira/reviewgru/internal/layer"
	"github.com/FlavioCFOliveira/reviewgru/internal/loss"
	"github.com/FlavioCFOliveira/reviewgru/internal/opt"
)

// TrainConfig holds the loop parameters.
type TrainConfig struct {
	BatchSize int
	Epochs    int
	Seed      uint64 // batch shuffling
}

func (c TrainConfig) validate() error {
	if c.BatchSize <= 0 {
		return errors.Errorf("batch size %d must be positive", c.BatchSize)
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epochs %d must be positive", c.Epochs)
	}
	return nil
}

// EpochMetrics summarises one epoch.
type EpochMetrics struct {
	Epoch    int
	Loss     float64 // loss of the last batch
	MeanLoss float64
	Accuracy float64 // mean per-batch validation accuracy
	Batches  int
	LR       float64
	Duration time.Duration
}

// History is the outcome of Fit.
type History struct {
	RunID        string
	Epochs       []EpochMetrics
	BestEpoch    int
	BestAccuracy float64
	Stopped      bool // ended by a Stopper callback
}

// Trainer runs mini-batch training of an Encoder.
type Trainer struct {
	encoder   *Encoder
	loss      loss.Loss
	optimizer opt.Optimizer
	cfg       TrainConfig
	logger    *logrus.Logger
	callbacks []Callback
	runID     string
}

// NewTrainer creates a trainer minimising cross entropy with optimizer.
// A nil logger uses the logrus standard logger.
func NewTrainer(e *Encoder, optimizer opt.Optimizer, cfg TrainConfig, logger *logrus.Logger, callbacks ...Callback) *Trainer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Trainer{
		encoder:   e,
		loss:      loss.CrossEntropy{},
		optimizer: optimizer,
		cfg:       cfg,
		logger:    logger,
		callbacks: callbacks,
		runID:     uuid.NewString(),
	}
}

func (t *Trainer) RunID() string          { return t.runID }
func (t *Trainer) Encoder() *Encoder      { return t.encoder }
func (t *Trainer) Logger() *logrus.Logger { return t.logger }

// TrainBatch performs one optimisation step on b and returns its loss.
// b is sorted by length in place.
func (t *Trainer) TrainBatch(b *data.Batch) (float64, error) {
	if b.Labels == nil {
		return 0, errors.New("train batch has no labels")
	}
	b.SortByLength()

	out, err := t.encoder.Forward(b)
	if err != nil {
		return 0, err
	}
	l := t.loss.Forward(out, b.Labels)

	t.encoder.ClearGradients()
	t.encoder.Backward(t.loss.Backward(out, b.Labels))
	for _, p := range t.encoder.Params() {
		t.optimizer.StepInPlace(p.Name, p.Value.RawMatrix().Data, p.Grad.RawMatrix().Data)
	}
	return l, nil
}

// Fit trains on train for the configured number of epochs, validating on
// validate after each one. ctx is checked between batches.
func (t *Trainer) Fit(ctx context.Context, train, validate *data.Dataset) (history *History, err error) {
	if err := t.cfg.validate(); err != nil {
		return nil, err
	}
	if train.Len() == 0 || !train.Labeled() {
		return nil, errors.New("training set is empty or unlabeled")
	}
	if validate.Len() == 0 || !validate.Labeled() {
		return nil, errors.New("validation set is empty or unlabeled")
	}

	t.logger.WithFields(logrus.Fields{
		"run_id":   t.runID,
		"device":   layer.GetDefaultDevice().Describe(),
		"train":    train.Len(),
		"validate": validate.Len(),
		"params":   t.encoder.NumParams(),
	}).Info("training started")
	t.logger.Debug(t.encoder.Summary())

	for _, cb := range t.callbacks {
		if err := cb.OnTrainBegin(t); err != nil {
			return nil, err
		}
	}
	defer func() {
		for _, cb := range t.callbacks {
			if cbErr := cb.OnTrainEnd(t); cbErr != nil && err == nil {
				err = cbErr
			}
		}
	}()

	history = &History{RunID: t.runID, BestEpoch: -1}
	loader := data.NewLoader(train, t.cfg.BatchSize, true, t.cfg.Seed)

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		for _, cb := range t.callbacks {
			cb.OnEpochBegin(epoch, t)
		}

		start := time.Now()
		t.encoder.SetTraining(true)
		batches := loader.Batches()
		losses := make([]float64, 0, len(batches))
		for i, b := range batches {
			if err := ctx.Err(); err != nil {
				return history, errors.Wrapf(err, "epoch %d batch %d", epoch, i)
			}
			l, err := t.TrainBatch(b)
			if err != nil {
				return history, errors.Wrapf(err, "epoch %d batch %d", epoch, i)
			}
			losses = append(losses, l)
			for _, cb := range t.callbacks {
				cb.OnBatchEnd(i, l, t)
			}
		}

		ev, err := Evaluate(t.encoder, validate, t.cfg.BatchSize)
		if err != nil {
			return history, errors.Wrap(err, "validation")
		}
		m := EpochMetrics{
			Epoch:    epoch,
			Loss:     losses[len(losses)-1],
			MeanLoss: stat.Mean(losses, nil),
			Accuracy: ev.Accuracy,
			Batches:  len(batches),
			LR:       t.optimizer.LR(),
			Duration: time.Since(start),
		}
		history.Epochs = append(history.Epochs, m)
		if history.BestEpoch < 0 || m.Accuracy > history.BestAccuracy {
			history.BestEpoch = epoch
			history.BestAccuracy = m.Accuracy
		}

		for _, cb := range t.callbacks {
			if err := cb.OnEpochEnd(epoch, m, t); err != nil {
				return history, err
			}
		}
		if t.shouldStop() {
			history.Stopped = true
			break
		}
	}
	return history, nil
}

func (t *Trainer) shouldStop() bool {
	for _, cb := range t.callbacks {
		if s, ok := cb.(Stopper); ok && s.ShouldStop() {
			return true
		}
	}
	return false
}
