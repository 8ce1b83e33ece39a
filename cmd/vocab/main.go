// Package main builds the word-to-index vocabulary from the data files.
// Execute com: go run cmd/vocab/main.go -config config.json
package main

import (
	"flag"

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

	if _, err := classifier.BuildVocabulary(cfg, logrus.StandardLogger()); err != nil {
		logrus.WithError(err).Fatal("build vocabulary")
	}
}
