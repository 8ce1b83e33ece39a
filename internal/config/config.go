// Package config holds the training configuration. Every value has a
// default matching the reference training run; a JSON file may override
// any subset of fields.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config is the full set of knobs for vocabulary building, encoding,
// training and evaluation.
type Config struct {
	// Data files
	TrainFile      string `json:"train_file"`
	ValidateFile   string `json:"validate_file"`
	TestFile       string `json:"test_file"`       // optional, only used for the vocabulary
	FilteredSuffix string `json:"filtered_suffix"` // appended to every data file name
	VocabFile      string `json:"vocab_file"`
	CheckpointFile string `json:"checkpoint_file"`
	MetricsFile    string `json:"metrics_file"` // per-epoch CSV log, empty disables
	ExportFile     string `json:"export_file"`  // GGUF export of the best model, empty disables
	ExportF16      bool   `json:"export_f16"`
	Tokenizer      string `json:"tokenizer"` // "treebank" or "whitespace"

	// Network architecture
	SeqLength    int `json:"seq_length"`
	EncodingSize int `json:"encoding_size"`
	HiddenSize   int `json:"hidden_size"`
	OutputSize   int `json:"output_size"`
	Layers       int `json:"layers"`
	PaddingIdx   int `json:"padding_idx"`

	OutputActivation string `json:"output_activation"` // Sigmoid, Tanh, ReLU or Linear

	// Training parameters
	BatchSize     int     `json:"batch_size"`
	Epochs        int     `json:"epochs"`
	LearningRate  float64 `json:"learning_rate"`
	LogEvery      int     `json:"log_every"`      // batches between loss lines
	ProgressEvery int     `json:"progress_every"` // records between encoding progress lines
	Patience      int     `json:"patience"`       // early stopping, 0 disables
	LRStepSize    int     `json:"lr_step_size"`   // epochs between decays, 0 disables
	LRGamma       float64 `json:"lr_gamma"`
	Seed          uint64  `json:"seed"` // 0 derives a seed from the clock
}

// Default returns the configuration of the reference training run.
func Default() Config {
	return Config{
		TrainFile:      "../Data/train_s.csv",
		ValidateFile:   "../Data/test_s.csv",
		FilteredSuffix: "_filtered",
		VocabFile:      "word2index",
		CheckpointFile: "encoder_model_2.gob",
		Tokenizer:      "treebank",

		SeqLength:    100,
		EncodingSize: 50,
		HiddenSize:   250,
		OutputSize:   2,
		Layers:       2,
		PaddingIdx:   0,

		OutputActivation: "Sigmoid",

		BatchSize:     256,
		Epochs:        15,
		LearningRate:  0.001,
		LogEvery:      100,
		ProgressEvery: 100000,
		LRGamma:       1,
	}
}

// Load overlays the JSON file at path onto the defaults and validates the
// result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations training cannot run with.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"seq_length", c.SeqLength},
		{"encoding_size", c.EncodingSize},
		{"hidden_size", c.HiddenSize},
		{"layers", c.Layers},
		{"batch_size", c.BatchSize},
		{"epochs", c.Epochs},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return errors.Errorf("config: %s must be positive, got %d", p.name, p.value)
		}
	}
	if c.OutputSize != 2 {
		return errors.Errorf("config: output_size must be 2 for a binary classifier, got %d", c.OutputSize)
	}
	if c.PaddingIdx < 0 {
		return errors.Errorf("config: padding_idx must not be negative, got %d", c.PaddingIdx)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return errors.Errorf("config: learning_rate must be in (0, 1], got %g", c.LearningRate)
	}
	if c.LRStepSize < 0 || c.LRGamma <= 0 {
		return errors.Errorf("config: invalid learning rate decay (step %d, gamma %g)", c.LRStepSize, c.LRGamma)
	}
	if c.Patience < 0 || c.LogEvery < 0 || c.ProgressEvery < 0 {
		return errors.New("config: patience, log_every and progress_every must not be negative")
	}
	if c.TrainFile == "" || c.ValidateFile == "" {
		return errors.New("config: train_file and validate_file are required")
	}
	return nil
}

// DataPath returns the on-disk name of a data file.
func (c Config) DataPath(name string) string {
	if name == "" {
		return ""
	}
	return name + c.FilteredSuffix
}
