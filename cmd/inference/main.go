// Package main evaluates a saved checkpoint on a labeled data file.
// Execute com: go run cmd/inference/main.go -config config.json
package main

import (
	"flag"
	"fmt"

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

	// The test file is optional; fall back to the validation split.
	name := cfg.TestFile
	if name == "" {
		name = cfg.ValidateFile
	}

	ev, err := classifier.Evaluate(cfg, name, logrus.StandardLogger())
	if err != nil {
		logrus.WithError(err).Fatal("evaluation failed")
	}

	var confusion [2][2]int
	for i, truth := range ev.Truth {
		confusion[truth][ev.Predicted[i]]++
	}
	fmt.Printf("Accuracy: %.4f (overall %.4f)\n", ev.Accuracy, ev.Overall)
	fmt.Println("Confusion matrix (rows: truth, cols: predicted)")
	fmt.Printf("  %6d %6d\n", confusion[0][0], confusion[0][1])
	fmt.Printf("  %6d %6d\n", confusion[1][0], confusion[1][1])
}
