package net

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/FlavioCFOliveira/reviewgru/internal/opt"
)

// Callback defines the interface for training callbacks.
type Callback interface {
	OnTrainBegin(t *Trainer) error
	OnTrainEnd(t *Trainer) error
	OnEpochBegin(epoch int, t *Trainer)
	OnEpochEnd(epoch int, m EpochMetrics, t *Trainer) error
	OnBatchEnd(batch int, loss float64, t *Trainer) // batch is the 0-based index within the epoch
}

// Stopper is implemented by callbacks that can end training early.
type Stopper interface {
	ShouldStop() bool
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (c BaseCallback) OnTrainBegin(t *Trainer) error                          { return nil }
func (c BaseCallback) OnTrainEnd(t *Trainer) error                            { return nil }
func (c BaseCallback) OnEpochBegin(epoch int, t *Trainer)                     {}
func (c BaseCallback) OnEpochEnd(epoch int, m EpochMetrics, t *Trainer) error { return nil }
func (c BaseCallback) OnBatchEnd(batch int, loss float64, t *Trainer)         {}

// Logger logs training progress: the loss every Interval batches and a
// summary after every epoch.
type Logger struct {
	BaseCallback
	Interval int

	epoch int
}

func NewLogger(interval int) *Logger {
	return &Logger{Interval: interval}
}

func (c *Logger) OnEpochBegin(epoch int, t *Trainer) {
	c.epoch = epoch
}

// OnBatchEnd logs the Interval-th, 2*Interval-th, ... batch of the epoch,
// numbered from 1.
func (c *Logger) OnBatchEnd(batch int, loss float64, t *Trainer) {
	if n := batch + 1; c.Interval > 0 && n%c.Interval == 0 {
		t.Logger().WithFields(logrus.Fields{
			"epoch": c.epoch,
			"batch": n,
			"loss":  loss,
		}).Info("training")
	}
}

func (c *Logger) OnEpochEnd(epoch int, m EpochMetrics, t *Trainer) error {
	t.Logger().WithFields(logrus.Fields{
		"epoch":     epoch,
		"loss":      m.Loss,
		"mean_loss": m.MeanLoss,
		"batches":   m.Batches,
		"duration":  m.Duration.Round(1e6).String(),
	}).Info("training complete for epoch")
	t.Logger().WithFields(logrus.Fields{
		"epoch":    epoch,
		"accuracy": m.Accuracy,
	}).Info("validation")
	return nil
}

// ModelCheckpoint saves the model whenever validation accuracy beats the
// best seen so far.
type ModelCheckpoint struct {
	BaseCallback
	Filename string

	bestAccuracy float64
}

func NewModelCheckpoint(filename string) *ModelCheckpoint {
	return &ModelCheckpoint{Filename: filename}
}

func (c *ModelCheckpoint) OnEpochEnd(epoch int, m EpochMetrics, t *Trainer) error {
	if !(m.Accuracy > c.bestAccuracy) {
		return nil
	}
	c.bestAccuracy = m.Accuracy

	meta := CheckpointMeta{RunID: t.RunID(), Epoch: epoch, Accuracy: m.Accuracy}
	if err := SaveCheckpoint(c.Filename, t.Encoder(), meta); err != nil {
		return errors.Wrap(err, "checkpoint")
	}
	t.Logger().WithFields(logrus.Fields{
		"epoch":    epoch,
		"accuracy": m.Accuracy,
		"file":     c.Filename,
	}).Info("checkpoint saved")
	return nil
}

// BestAccuracy returns the accuracy of the last saved checkpoint.
func (c *ModelCheckpoint) BestAccuracy() float64 {
	return c.bestAccuracy
}

// EarlyStopping stops training when validation accuracy has not improved
// by more than MinDelta for Patience epochs.
type EarlyStopping struct {
	BaseCallback
	Patience int
	MinDelta float64

	bestAccuracy float64
	numBadEpochs int
	Stopped      bool
}

func NewEarlyStopping(patience int, minDelta float64) *EarlyStopping {
	return &EarlyStopping{
		Patience:     patience,
		MinDelta:     minDelta,
		bestAccuracy: math.Inf(-1),
	}
}

func (c *EarlyStopping) OnEpochEnd(epoch int, m EpochMetrics, t *Trainer) error {
	if m.Accuracy > c.bestAccuracy+c.MinDelta {
		c.bestAccuracy = m.Accuracy
		c.numBadEpochs = 0
	} else {
		c.numBadEpochs++
	}

	if c.Patience > 0 && c.numBadEpochs >= c.Patience {
		t.Logger().WithFields(logrus.Fields{
			"epoch":    epoch,
			"accuracy": m.Accuracy,
			"patience": c.Patience,
		}).Warn("early stopping")
		c.Stopped = true
	}
	return nil
}

func (c *EarlyStopping) ShouldStop() bool {
	return c.Stopped
}

// SchedulerCallback is a callback that wraps a learning rate scheduler.
type SchedulerCallback struct {
	BaseCallback
	scheduler opt.Scheduler
}

func NewSchedulerCallback(scheduler opt.Scheduler) *SchedulerCallback {
	return &SchedulerCallback{scheduler: scheduler}
}

func (c *SchedulerCallback) OnEpochEnd(epoch int, m EpochMetrics, t *Trainer) error {
	c.scheduler.Step()
	return nil
}
