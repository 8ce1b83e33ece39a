package classifier

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/FlavioCFOliveira/reviewgru/internal/net"
)

var (
	positive = []string{"great film", "i loved it", "great acting , loved the story", "wonderful and great"}
	negative = []string{"awful film", "i hated it", "awful acting , hated the story", "boring and awful"}
)

func writeData(t *testing.T, path string) {
	t.Helper()
	var sb strings.Builder
	for i := range positive {
		sb.WriteString("1," + positive[i] + "\n")
		sb.WriteString("0," + negative[i] + "\n")
	}
	// Records without tokens are skipped
	sb.WriteString("1, \n")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.TrainFile = filepath.Join(dir, "train.csv")
	cfg.ValidateFile = filepath.Join(dir, "test.csv")
	cfg.VocabFile = filepath.Join(dir, "word2index")
	cfg.CheckpointFile = filepath.Join(dir, "model.gob")
	cfg.MetricsFile = filepath.Join(dir, "metrics.csv")
	cfg.ExportFile = filepath.Join(dir, "model.gguf")
	cfg.Tokenizer = "whitespace"
	cfg.SeqLength = 6
	cfg.EncodingSize = 4
	cfg.HiddenSize = 6
	cfg.Layers = 1
	cfg.BatchSize = 4
	cfg.Epochs = 3
	cfg.LearningRate = 0.01
	cfg.LRStepSize = 1
	cfg.LRGamma = 0.9
	cfg.Seed = 5

	writeData(t, cfg.DataPath(cfg.TrainFile))
	writeData(t, cfg.DataPath(cfg.ValidateFile))
	return cfg
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestPipeline(t *testing.T) {
	cfg := testConfig(t)
	logger := quietLogger()

	vocab, err := BuildVocabulary(cfg, logger)
	if err != nil {
		t.Fatalf("BuildVocabulary: %v", err)
	}
	if _, ok := vocab.Lookup("great"); !ok {
		t.Error("vocabulary is missing 'great'")
	}

	train, validate, err := LoadDatasets(cfg, vocab, logger)
	if err != nil {
		t.Fatalf("LoadDatasets: %v", err)
	}
	if train.Len() != 8 || validate.Len() != 8 {
		t.Errorf("got %d/%d reviews, want 8/8", train.Len(), validate.Len())
	}

	history, err := Train(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(history.Epochs) != cfg.Epochs {
		t.Errorf("trained %d epochs, want %d", len(history.Epochs), cfg.Epochs)
	}
	for _, f := range []string{cfg.CheckpointFile, cfg.MetricsFile, cfg.ExportFile} {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("%s not written: %v", f, err)
		}
	}

	ev, err := Evaluate(cfg, cfg.ValidateFile, logger)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(ev.Predicted) != 8 {
		t.Errorf("got %d predictions, want 8", len(ev.Predicted))
	}
	if ev.Accuracy != history.BestAccuracy {
		t.Errorf("saved model accuracy %v, best during training %v", ev.Accuracy, history.BestAccuracy)
	}

	labels, err := PredictTexts(cfg, []string{"great film", "some unseen words"})
	if err != nil {
		t.Fatalf("PredictTexts: %v", err)
	}
	if len(labels) != 2 {
		t.Errorf("got %d labels, want 2", len(labels))
	}
	if _, err := PredictTexts(cfg, []string{"   "}); err == nil {
		t.Error("expected error for a text without tokens")
	}
}

func TestLoadModelRejectsForeignVocabulary(t *testing.T) {
	cfg := testConfig(t)
	logger := quietLogger()
	if _, err := BuildVocabulary(cfg, logger); err != nil {
		t.Fatal(err)
	}
	if _, err := Train(context.Background(), cfg, logger); err != nil {
		t.Fatal(err)
	}

	// Grow the vocabulary after training
	writeData(t, cfg.DataPath(cfg.ValidateFile))
	f, err := os.OpenFile(cfg.DataPath(cfg.ValidateFile), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("1,brand new words\n")
	f.Close()
	if _, err := BuildVocabulary(cfg, logger); err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := LoadModel(cfg); err == nil {
		t.Error("expected vocabulary size mismatch error")
	}
}

func TestUnknownTokenizer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tokenizer = "bogus"
	if _, err := BuildVocabulary(cfg, quietLogger()); err == nil {
		t.Error("expected error for an unknown tokenizer")
	}
}

func TestPaddingMustBeVocabularyPad(t *testing.T) {
	cfg := testConfig(t)
	logger := quietLogger()
	vocab, err := BuildVocabulary(cfg, logger)
	if err != nil {
		t.Fatal(err)
	}

	cfg.PaddingIdx = 5
	if _, _, err := LoadDatasets(cfg, vocab, logger); err == nil {
		t.Error("LoadDatasets accepted a padding index that is a real word")
	}
	if _, err := NewEncoder(cfg, vocab.Len()); err == nil {
		t.Error("NewEncoder accepted a padding index that is a real word")
	}
}

func TestExportSkipsCheckpointOfAnotherRun(t *testing.T) {
	cfg := testConfig(t)
	encoder, err := NewEncoder(cfg, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := net.SaveCheckpoint(cfg.CheckpointFile, encoder, CheckpointMeta{RunID: "earlier-run", Accuracy: 0.9}); err != nil {
		t.Fatal(err)
	}

	exported, err := exportCheckpoint(cfg, "current-run")
	if err != nil {
		t.Fatal(err)
	}
	if exported {
		t.Error("exported a checkpoint written by another run")
	}
	if _, err := os.Stat(cfg.ExportFile); !os.IsNotExist(err) {
		t.Errorf("export file exists after a skipped export: %v", err)
	}

	exported, err = exportCheckpoint(cfg, "earlier-run")
	if err != nil || !exported {
		t.Fatalf("exportCheckpoint for the owning run = %v, %v", exported, err)
	}
	if _, err := os.Stat(cfg.ExportFile); err != nil {
		t.Errorf("export file not written: %v", err)
	}
}

func TestOutputActivationIsCheckpointed(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputActivation = "Tanh"
	encoder, err := NewEncoder(cfg, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := net.SaveCheckpoint(cfg.CheckpointFile, encoder, CheckpointMeta{RunID: "run"}); err != nil {
		t.Fatal(err)
	}
	loaded, meta, err := net.LoadCheckpoint(cfg.CheckpointFile)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Config.Activation != "Tanh" || loaded.Config().Activation != "Tanh" {
		t.Errorf("activation = %q / %q, want Tanh", meta.Config.Activation, loaded.Config().Activation)
	}

	cfg.OutputActivation = "Softplus"
	if _, err := NewEncoder(cfg, 10); err == nil {
		t.Error("expected error for an unknown output activation")
	}
}
