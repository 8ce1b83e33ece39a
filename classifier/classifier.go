// Package classifier wires vocabulary building, dataset encoding, training
// and evaluation of the review encoder into whole pipelines.
package classifier

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/FlavioCFOliveira/reviewgru/internal/config"
	"github.com/FlavioCFOliveira/reviewgru/internal/data"
	"github.com/FlavioCFOliveira/reviewgru/internal/net"
	"github.com/FlavioCFOliveira/reviewgru/internal/opt"
	"github.com/FlavioCFOliveira/reviewgru/internal/text"
)

// Re-export common types for easier access
type (
	Config         = config.Config
	Dataset        = data.Dataset
	Vocabulary     = text.Vocabulary
	Encoder        = net.Encoder
	EncoderConfig  = net.EncoderConfig
	CheckpointMeta = net.CheckpointMeta
	History        = net.History
	EpochMetrics   = net.EpochMetrics
	Evaluation     = net.Evaluation
	Callback       = net.Callback
)

// DefaultConfig returns the reference training configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a JSON configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

func orStandard(logger *logrus.Logger) *logrus.Logger {
	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}

func tokenizer(cfg Config) (text.Tokenizer, error) {
	tok, ok := text.NewTokenizer(cfg.Tokenizer)
	if !ok {
		return nil, errors.Errorf("unknown tokenizer %q", cfg.Tokenizer)
	}
	return tok, nil
}

// checkPadding rejects padding indices other than the vocabulary's <PAD>
// row, which would pad reviews with a real word and freeze its embedding.
func checkPadding(cfg Config) error {
	if cfg.PaddingIdx != text.PadIndex {
		return errors.Errorf("padding_idx %d must be the vocabulary's %s index %d", cfg.PaddingIdx, text.PadToken, text.PadIndex)
	}
	return nil
}

func encodeOptions(cfg Config, vocab *Vocabulary, logger *logrus.Logger) (text.EncodeOptions, error) {
	if err := checkPadding(cfg); err != nil {
		return text.EncodeOptions{}, err
	}
	tok, err := tokenizer(cfg)
	if err != nil {
		return text.EncodeOptions{}, err
	}
	return text.EncodeOptions{
		Vocab:         vocab,
		Tokenizer:     tok,
		PaddingIdx:    cfg.PaddingIdx,
		SeqLength:     cfg.SeqLength,
		NumClasses:    cfg.OutputSize,
		ProgressEvery: cfg.ProgressEvery,
		Logger:        orStandard(logger),
	}, nil
}

// BuildVocabulary collects the words of the train, validation and test
// files and saves the vocabulary to cfg.VocabFile.
func BuildVocabulary(cfg Config, logger *logrus.Logger) (*Vocabulary, error) {
	logger = orStandard(logger)
	tok, err := tokenizer(cfg)
	if err != nil {
		return nil, err
	}

	vocab, err := text.BuildVocabulary(tok,
		cfg.DataPath(cfg.TrainFile),
		cfg.DataPath(cfg.ValidateFile),
		cfg.DataPath(cfg.TestFile),
	)
	if err != nil {
		return nil, err
	}
	if err := vocab.Save(cfg.VocabFile); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"words": vocab.Len(),
		"file":  cfg.VocabFile,
	}).Info("vocabulary saved")
	return vocab, nil
}

// LoadDatasets encodes the training and validation files.
func LoadDatasets(cfg Config, vocab *Vocabulary, logger *logrus.Logger) (train, validate *Dataset, err error) {
	opts, err := encodeOptions(cfg, vocab, logger)
	if err != nil {
		return nil, nil, err
	}
	if train, err = text.EncodeFile(cfg.DataPath(cfg.TrainFile), opts); err != nil {
		return nil, nil, err
	}
	if validate, err = text.EncodeFile(cfg.DataPath(cfg.ValidateFile), opts); err != nil {
		return nil, nil, err
	}
	return train, validate, nil
}

func seed(cfg Config) uint64 {
	if cfg.Seed != 0 {
		return cfg.Seed
	}
	return uint64(time.Now().UnixNano())
}

// NewEncoder builds an untrained encoder for a vocabulary of vocabSize words.
func NewEncoder(cfg Config, vocabSize int) (*Encoder, error) {
	if err := checkPadding(cfg); err != nil {
		return nil, err
	}
	return net.NewEncoder(EncoderConfig{
		VocabSize:    vocabSize,
		EncodingSize: cfg.EncodingSize,
		HiddenSize:   cfg.HiddenSize,
		OutputSize:   cfg.OutputSize,
		Layers:       cfg.Layers,
		PaddingIdx:   cfg.PaddingIdx,
		Activation:   cfg.OutputActivation,
		Seed:         seed(cfg),
	})
}

// TrainDatasets trains a fresh encoder on already encoded data. The best
// model by validation accuracy is saved to cfg.CheckpointFile and, when
// cfg.ExportFile is set, exported to GGUF once training ends.
func TrainDatasets(ctx context.Context, cfg Config, vocabSize int, train, validate *Dataset, logger *logrus.Logger, extra ...Callback) (*History, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = orStandard(logger)

	encoder, err := NewEncoder(cfg, vocabSize)
	if err != nil {
		return nil, err
	}

	adam := opt.NewAdam(cfg.LearningRate)
	callbacks := []Callback{
		net.NewLogger(cfg.LogEvery),
		net.NewModelCheckpoint(cfg.CheckpointFile),
	}
	if cfg.MetricsFile != "" {
		callbacks = append(callbacks, net.NewCSVLogger(cfg.MetricsFile, false))
	}
	if cfg.LRStepSize > 0 {
		callbacks = append(callbacks, net.NewSchedulerCallback(opt.NewStepLR(adam, cfg.LRStepSize, cfg.LRGamma)))
	}
	if cfg.Patience > 0 {
		callbacks = append(callbacks, net.NewEarlyStopping(cfg.Patience, 0))
	}
	callbacks = append(callbacks, extra...)

	trainer := net.NewTrainer(encoder, adam, net.TrainConfig{
		BatchSize: cfg.BatchSize,
		Epochs:    cfg.Epochs,
		Seed:      seed(cfg),
	}, logger, callbacks...)

	history, err := trainer.Fit(ctx, train, validate)
	if err != nil {
		return history, err
	}
	logger.WithFields(logrus.Fields{
		"run_id":   history.RunID,
		"epoch":    history.BestEpoch,
		"accuracy": history.BestAccuracy,
	}).Info("training finished")

	if cfg.ExportFile != "" {
		exported := false
		if history.BestAccuracy > 0 {
			if exported, err = exportCheckpoint(cfg, history.RunID); err != nil {
				return history, err
			}
		}
		if exported {
			logger.WithField("file", cfg.ExportFile).Info("model exported")
		} else {
			logger.WithField("checkpoint", cfg.CheckpointFile).Warn("no checkpoint saved by this run, export skipped")
		}
	}
	return history, nil
}

// Train runs the full pipeline: load the vocabulary, encode the data files
// and train.
func Train(ctx context.Context, cfg Config, logger *logrus.Logger) (*History, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	vocab, err := text.LoadVocabulary(cfg.VocabFile)
	if err != nil {
		return nil, err
	}
	train, validate, err := LoadDatasets(cfg, vocab, logger)
	if err != nil {
		return nil, err
	}
	return TrainDatasets(ctx, cfg, vocab.Len(), train, validate, logger)
}

// LoadModel reads the saved checkpoint and vocabulary and checks that they
// belong together.
func LoadModel(cfg Config) (*Encoder, *Vocabulary, CheckpointMeta, error) {
	encoder, meta, err := net.LoadCheckpoint(cfg.CheckpointFile)
	if err != nil {
		return nil, nil, meta, err
	}
	vocab, err := text.LoadVocabulary(cfg.VocabFile)
	if err != nil {
		return nil, nil, meta, err
	}
	if got := encoder.Config().VocabSize; got != vocab.Len() {
		return nil, nil, meta, errors.Errorf("checkpoint expects %d words, vocabulary has %d", got, vocab.Len())
	}
	encoder.SetTraining(false)
	return encoder, vocab, meta, nil
}

// Evaluate classifies every review of the data file name (the filtered
// suffix is appended) with the saved model.
func Evaluate(cfg Config, name string, logger *logrus.Logger) (*Evaluation, error) {
	logger = orStandard(logger)
	encoder, vocab, meta, err := LoadModel(cfg)
	if err != nil {
		return nil, err
	}
	opts, err := encodeOptions(cfg, vocab, logger)
	if err != nil {
		return nil, err
	}
	ds, err := text.EncodeFile(cfg.DataPath(name), opts)
	if err != nil {
		return nil, err
	}

	ev, err := net.Evaluate(encoder, ds, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"run_id":   meta.RunID,
		"reviews":  ds.Len(),
		"accuracy": ev.Accuracy,
		"overall":  ev.Overall,
	}).Info("evaluation")
	return ev, nil
}

// PredictTexts classifies raw review texts with the saved model.
func PredictTexts(cfg Config, texts []string) ([]int, error) {
	encoder, vocab, _, err := LoadModel(cfg)
	if err != nil {
		return nil, err
	}
	opts, err := encodeOptions(cfg, vocab, nil)
	if err != nil {
		return nil, err
	}
	ds, err := text.EncodeTexts(texts, opts)
	if err != nil {
		return nil, err
	}
	return net.Predict(encoder, ds, cfg.BatchSize)
}

// Export writes the saved checkpoint to cfg.ExportFile in GGUF format.
func Export(cfg Config) error {
	_, err := exportCheckpoint(cfg, "")
	return err
}

// exportCheckpoint exports cfg.CheckpointFile when it was saved by runID,
// or by any run when runID is empty. It reports whether a file was written.
func exportCheckpoint(cfg Config, runID string) (bool, error) {
	if cfg.ExportFile == "" {
		return false, errors.New("export_file is not set")
	}
	encoder, meta, err := net.LoadCheckpoint(cfg.CheckpointFile)
	if err != nil {
		return false, err
	}
	if runID != "" && meta.RunID != runID {
		return false, nil
	}
	typ := net.GGMLTypeF32
	if cfg.ExportF16 {
		typ = net.GGMLTypeF16
	}
	if err := encoder.SaveGGUF(cfg.ExportFile, typ); err != nil {
		return false, err
	}
	return true, nil
}
