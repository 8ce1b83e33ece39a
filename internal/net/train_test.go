package net

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/FlavioCFOliveira/reviewgru/internal/data"
	"github.com/FlavioCFOliveira/reviewgru/internal/opt"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// toyDataset labels a review 1 when it contains token 2 and 0 when it
// contains token 3; tokens 4 and 5 are filler.
func toyDataset(t *testing.T) *data.Dataset {
	t.Helper()
	reviews := [][]int{
		{2, 4, 5, 4}, {3, 4, 5, 4},
		{4, 2, 0, 0}, {4, 3, 0, 0},
		{2, 0, 0, 0}, {3, 0, 0, 0},
		{5, 4, 2, 0}, {5, 4, 3, 0},
		{2, 5, 0, 0}, {3, 5, 0, 0},
		{4, 4, 4, 2}, {4, 4, 4, 3},
		{5, 2, 4, 0}, {5, 3, 4, 0},
		{2, 2, 0, 0}, {3, 3, 0, 0},
	}
	lengths := []int{4, 4, 2, 2, 1, 1, 3, 3, 2, 2, 4, 4, 3, 3, 2, 2}
	labels := make([]int, len(reviews))
	for i := range labels {
		if i%2 == 0 {
			labels[i] = 1
		}
	}
	ds, err := data.NewDataset(reviews, labels, lengths)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func toyEncoder(t *testing.T) *Encoder {
	t.Helper()
	e, err := NewEncoder(EncoderConfig{
		VocabSize:    6,
		EncodingSize: 4,
		HiddenSize:   8,
		OutputSize:   2,
		Layers:       1,
		PaddingIdx:   0,
		Seed:         3,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestTrainBatchUpdatesParameters(t *testing.T) {
	e := toyEncoder(t)
	adam := opt.NewAdam(0.01)
	tr := NewTrainer(e, adam, TrainConfig{BatchSize: 4, Epochs: 1}, quietLogger())

	before := append([]float64(nil), e.Params()[len(e.Params())-2].Value.RawMatrix().Data...)
	ds := toyDataset(t)
	b := ds.Batch([]int{4, 0, 2, 6})

	l, err := tr.TrainBatch(b)
	if err != nil {
		t.Fatalf("TrainBatch: %v", err)
	}
	if math.IsNaN(l) || l <= 0 {
		t.Errorf("loss = %v", l)
	}
	for i := 1; i < b.Size(); i++ {
		if b.Lengths[i] > b.Lengths[i-1] {
			t.Errorf("batch not sorted: %v", b.Lengths)
		}
	}

	after := e.Params()[len(e.Params())-2].Value.RawMatrix().Data
	changed := false
	for i := range before {
		if before[i] != after[i] {
			changed = true
		}
	}
	if !changed {
		t.Error("output weights unchanged after a training step")
	}
	if adam.Steps("out.weight") != 1 {
		t.Errorf("Adam steps = %d, want 1", adam.Steps("out.weight"))
	}
}

func TestTrainBatchRequiresLabels(t *testing.T) {
	tr := NewTrainer(toyEncoder(t), opt.NewAdam(0.01), TrainConfig{BatchSize: 4, Epochs: 1}, quietLogger())
	b := tinyBatch()
	b.Labels = nil
	if _, err := tr.TrainBatch(b); err == nil {
		t.Error("expected error for an unlabeled batch")
	}
}

func TestFitLearnsToyProblem(t *testing.T) {
	dir := t.TempDir()
	checkpoint := filepath.Join(dir, "best.gob")
	metrics := filepath.Join(dir, "metrics.csv")

	e := toyEncoder(t)
	ds := toyDataset(t)
	saver := NewModelCheckpoint(checkpoint)
	tr := NewTrainer(e, opt.NewAdam(0.05), TrainConfig{BatchSize: 4, Epochs: 40, Seed: 11}, quietLogger(),
		NewLogger(2), saver, NewCSVLogger(metrics, false))

	history, err := tr.Fit(context.Background(), ds, ds)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(history.Epochs) != 40 {
		t.Fatalf("got %d epochs, want 40", len(history.Epochs))
	}
	if history.RunID != tr.RunID() || history.RunID == "" {
		t.Errorf("run id = %q", history.RunID)
	}

	first, last := history.Epochs[0], history.Epochs[len(history.Epochs)-1]
	if last.MeanLoss >= first.MeanLoss {
		t.Errorf("mean loss did not decrease: %v -> %v", first.MeanLoss, last.MeanLoss)
	}
	if history.BestAccuracy < 0.75 {
		t.Errorf("best accuracy = %v, want >= 0.75", history.BestAccuracy)
	}
	if last.Batches != 4 {
		t.Errorf("batches per epoch = %d, want 4", last.Batches)
	}

	// The checkpoint holds the best epoch's model.
	loaded, meta, err := LoadCheckpoint(checkpoint)
	if err != nil {
		t.Fatalf("checkpoint not written: %v", err)
	}
	if meta.Accuracy != saver.BestAccuracy() || meta.RunID != tr.RunID() {
		t.Errorf("checkpoint meta = %+v, best %v", meta, saver.BestAccuracy())
	}
	ev, err := Evaluate(loaded, ds, 4)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ev.Accuracy-meta.Accuracy) > 1e-12 {
		t.Errorf("reloaded accuracy %v, saved %v", ev.Accuracy, meta.Accuracy)
	}

	f, err := os.Open(metrics)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 41 || rows[0][1] != "epoch" {
		t.Errorf("metrics csv has %d rows, header %v", len(rows), rows[0])
	}
}

func TestFitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ds := toyDataset(t)
	tr := NewTrainer(toyEncoder(t), opt.NewAdam(0.01), TrainConfig{BatchSize: 4, Epochs: 2}, quietLogger())
	history, err := tr.Fit(ctx, ds, ds)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(history.Epochs) != 0 {
		t.Errorf("completed %d epochs after cancellation", len(history.Epochs))
	}
}

func TestFitRejectsBadInput(t *testing.T) {
	ds := toyDataset(t)
	empty, err := data.NewDataset(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	unlabeled, err := data.NewUnlabeled(ds.Reviews, ds.Lengths)
	if err != nil {
		t.Fatal(err)
	}

	tr := NewTrainer(toyEncoder(t), opt.NewAdam(0.01), TrainConfig{BatchSize: 4, Epochs: 1}, quietLogger())
	if _, err := tr.Fit(context.Background(), empty, ds); err == nil {
		t.Error("expected error for an empty training set")
	}
	if _, err := tr.Fit(context.Background(), ds, unlabeled); err == nil {
		t.Error("expected error for an unlabeled validation set")
	}

	bad := NewTrainer(toyEncoder(t), opt.NewAdam(0.01), TrainConfig{BatchSize: 0, Epochs: 1}, quietLogger())
	if _, err := bad.Fit(context.Background(), ds, ds); err == nil {
		t.Error("expected error for a zero batch size")
	}
}

type stopAfter struct {
	BaseCallback
	epochs int
	seen   int
}

func (s *stopAfter) OnEpochEnd(epoch int, m EpochMetrics, t *Trainer) error {
	s.seen++
	return nil
}

func (s *stopAfter) ShouldStop() bool { return s.seen >= s.epochs }

func TestFitStopsOnStopper(t *testing.T) {
	ds := toyDataset(t)
	tr := NewTrainer(toyEncoder(t), opt.NewAdam(0.01), TrainConfig{BatchSize: 8, Epochs: 10}, quietLogger(), &stopAfter{epochs: 2})
	history, err := tr.Fit(context.Background(), ds, ds)
	if err != nil {
		t.Fatal(err)
	}
	if !history.Stopped || len(history.Epochs) != 2 {
		t.Errorf("stopped = %v after %d epochs, want true after 2", history.Stopped, len(history.Epochs))
	}
}

func TestEarlyStopping(t *testing.T) {
	tr := NewTrainer(toyEncoder(t), opt.NewAdam(0.01), TrainConfig{BatchSize: 4, Epochs: 1}, quietLogger())
	es := NewEarlyStopping(2, 0.01)

	accuracies := []float64{0.5, 0.6, 0.605, 0.608, 0.7}
	stopAt := -1
	for epoch, acc := range accuracies {
		if err := es.OnEpochEnd(epoch, EpochMetrics{Accuracy: acc}, tr); err != nil {
			t.Fatal(err)
		}
		if es.ShouldStop() {
			stopAt = epoch
			break
		}
	}
	// 0.605 and 0.608 are within MinDelta of 0.6
	if stopAt != 3 {
		t.Errorf("stopped at epoch %d, want 3", stopAt)
	}
}

func TestSchedulerCallbackDecaysLearningRate(t *testing.T) {
	ds := toyDataset(t)
	adam := opt.NewAdam(0.01)
	tr := NewTrainer(toyEncoder(t), adam, TrainConfig{BatchSize: 8, Epochs: 3}, quietLogger(),
		NewSchedulerCallback(opt.NewStepLR(adam, 1, 0.5)))
	history, err := tr.Fit(context.Background(), ds, ds)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.01, 0.005, 0.0025}
	for i, m := range history.Epochs {
		if math.Abs(m.LR-want[i]) > 1e-12 {
			t.Errorf("epoch %d lr = %v, want %v", i, m.LR, want[i])
		}
	}
	if math.Abs(adam.LR()-0.00125) > 1e-12 {
		t.Errorf("final lr = %v, want 0.00125", adam.LR())
	}
}

func TestLoggerBatchCadence(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	ds := toyDataset(t)
	tr := NewTrainer(toyEncoder(t), opt.NewAdam(0.01), TrainConfig{BatchSize: 1, Epochs: 1, Seed: 1}, logger, NewLogger(3))
	if _, err := tr.Fit(context.Background(), ds, ds); err != nil {
		t.Fatal(err)
	}

	var logged []int
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry struct {
			Msg   string  `json:"msg"`
			Batch float64 `json:"batch"`
		}
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if entry.Msg == "training" {
			logged = append(logged, int(entry.Batch))
		}
	}

	// 16 batches of one review: every third batch, counted from 1
	want := []int{3, 6, 9, 12, 15}
	if len(logged) != len(want) {
		t.Fatalf("logged batches %v, want %v", logged, want)
	}
	for i := range want {
		if logged[i] != want[i] {
			t.Errorf("logged batches %v, want %v", logged, want)
			break
		}
	}
}
