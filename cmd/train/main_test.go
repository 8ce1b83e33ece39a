package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/FlavioCFOliveira/reviewgru/classifier"
)

func smallConfig(t *testing.T) classifier.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := classifier.DefaultConfig()
	cfg.TrainFile = filepath.Join(dir, "train.csv")
	cfg.ValidateFile = filepath.Join(dir, "test.csv")
	cfg.VocabFile = filepath.Join(dir, "word2index")
	cfg.CheckpointFile = filepath.Join(dir, "model.gob")
	cfg.Tokenizer = "whitespace"
	cfg.SeqLength = 4
	cfg.EncodingSize = 3
	cfg.HiddenSize = 4
	cfg.Layers = 1
	cfg.BatchSize = 2
	cfg.Epochs = 2
	cfg.Seed = 1

	data := "1,good film\n0,bad film\n1,really good\n0,really bad\n"
	for _, f := range []string{cfg.TrainFile, cfg.ValidateFile} {
		if err := os.WriteFile(cfg.DataPath(f), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return cfg
}

func TestRunInterruptedIsNotAnError(t *testing.T) {
	cfg := smallConfig(t)
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	if _, err := classifier.BuildVocabulary(cfg, logger); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, cfg, logger); err != nil {
		t.Fatalf("run after interrupt = %v, want nil", err)
	}
	if !strings.Contains(buf.String(), "training interrupted") {
		t.Errorf("no interrupt line in log:\n%s", buf.String())
	}
}

func TestRunReportsFailures(t *testing.T) {
	cfg := smallConfig(t)
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	// No vocabulary has been built
	if err := run(context.Background(), cfg, logger); err == nil {
		t.Error("expected error for a missing vocabulary")
	}
}

func TestRunTrains(t *testing.T) {
	cfg := smallConfig(t)
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	if _, err := classifier.BuildVocabulary(cfg, logger); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	if err := run(context.Background(), cfg, logger); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "msg=done") {
		t.Errorf("no completion line in log:\n%s", buf.String())
	}
}
