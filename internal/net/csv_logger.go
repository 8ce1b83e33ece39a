package net

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// CSVLogger logs training progress to a CSV file.
type CSVLogger struct {
	BaseCallback
	Filename string
	Append   bool

	file   *os.File
	writer *csv.Writer
	start  time.Time
}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
	}
}

func (c *CSVLogger) OnTrainBegin(t *Trainer) error {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		return errors.Wrap(err, "CSVLogger: open")
	}
	c.file = file
	c.writer = csv.NewWriter(file)
	c.start = time.Now()

	// Write header if not appending or if file is empty
	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		c.writer.Write([]string{"run_id", "epoch", "loss", "mean_loss", "accuracy", "lr", "time_seconds"})
		c.writer.Flush()
	}
	return errors.Wrap(c.writer.Error(), "CSVLogger: write header")
}

func (c *CSVLogger) OnEpochEnd(epoch int, m EpochMetrics, t *Trainer) error {
	if c.writer == nil {
		return nil
	}

	elapsed := time.Since(c.start).Seconds()
	record := []string{
		t.RunID(),
		strconv.Itoa(epoch),
		fmt.Sprintf("%.6f", m.Loss),
		fmt.Sprintf("%.6f", m.MeanLoss),
		fmt.Sprintf("%.6f", m.Accuracy),
		strconv.FormatFloat(m.LR, 'g', -1, 64),
		fmt.Sprintf("%.2f", elapsed),
	}

	if err := c.writer.Write(record); err != nil {
		return errors.Wrap(err, "CSVLogger: write record")
	}
	c.writer.Flush()
	return errors.Wrap(c.writer.Error(), "CSVLogger: flush")
}

func (c *CSVLogger) OnTrainEnd(t *Trainer) error {
	if c.file == nil {
		return nil
	}
	c.writer.Flush()
	err := c.file.Close()
	c.file = nil
	c.writer = nil
	return errors.Wrap(err, "CSVLogger: close")
}
