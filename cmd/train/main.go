// Package main trains the review classifier and keeps the checkpoint with
// the best validation accuracy.
// Execute com: go run cmd/train/main.go -config config.json
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/FlavioCFOliveira/reviewgru/classifier"
)

func main() {
	configPath := flag.String("config", "", "JSON configuration file (defaults when empty)")
	flag.Parse()

	cfg := classifier.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = classifier.LoadConfig(*configPath); err != nil {
			logrus.WithError(err).Fatal("load config")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logrus.StandardLogger()); err != nil {
		logrus.WithError(err).Fatal("training failed")
	}
}

// run trains with cfg. An interrupted run is not a failure: the best
// checkpoint so far stays on disk.
func run(ctx context.Context, cfg classifier.Config, logger *logrus.Logger) error {
	history, err := classifier.Train(ctx, cfg, logger)
	if errors.Is(err, context.Canceled) {
		fields := logrus.Fields{"checkpoint": cfg.CheckpointFile}
		if history != nil {
			fields["run_id"] = history.RunID
			fields["epochs"] = len(history.Epochs)
			fields["accuracy"] = history.BestAccuracy
		}
		logger.WithFields(fields).Info("training interrupted")
		return nil
	}
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"run_id":     history.RunID,
		"best_epoch": history.BestEpoch,
		"accuracy":   history.BestAccuracy,
		"checkpoint": cfg.CheckpointFile,
	}).Info("done")
	return nil
}
