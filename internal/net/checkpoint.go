package net

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const checkpointVersion = 1

// CheckpointMeta is written ahead of the parameters.
type CheckpointMeta struct {
	Version  int
	RunID    string
	Epoch    int
	Accuracy float64
	SavedAt  time.Time
	Config   EncoderConfig
}

// tensor is the on-disk form of one parameter.
type tensor struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// Encode writes meta followed by every parameter using gob encoding.
func (e *Encoder) Encode(w io.Writer, meta CheckpointMeta) error {
	encoder := gob.NewEncoder(w)

	meta.Version = checkpointVersion
	meta.Config = e.cfg
	if err := encoder.Encode(meta); err != nil {
		return errors.Wrap(err, "encode checkpoint header")
	}

	params := e.Params()
	if err := encoder.Encode(int32(len(params))); err != nil {
		return errors.Wrap(err, "encode parameter count")
	}
	for _, p := range params {
		r, c := p.Value.Dims()
		t := tensor{Name: p.Name, Rows: r, Cols: c, Data: p.Value.RawMatrix().Data}
		if err := encoder.Encode(t); err != nil {
			return errors.Wrapf(err, "encode %s", p.Name)
		}
	}
	return nil
}

// DecodeEncoder rebuilds an encoder from a stream written by Encode.
func DecodeEncoder(r io.Reader) (*Encoder, CheckpointMeta, error) {
	decoder := gob.NewDecoder(r)

	var meta CheckpointMeta
	if err := decoder.Decode(&meta); err != nil {
		return nil, meta, errors.Wrap(err, "read checkpoint header")
	}
	if meta.Version != checkpointVersion {
		return nil, meta, errors.Errorf("unsupported checkpoint version %d", meta.Version)
	}

	e, err := NewEncoder(meta.Config)
	if err != nil {
		return nil, meta, errors.Wrap(err, "rebuild encoder")
	}

	var count int32
	if err := decoder.Decode(&count); err != nil {
		return nil, meta, errors.Wrap(err, "read parameter count")
	}
	params := e.Params()
	if int(count) != len(params) {
		return nil, meta, errors.Errorf("checkpoint has %d parameters, network has %d", count, len(params))
	}

	for _, p := range params {
		var t tensor
		if err := decoder.Decode(&t); err != nil {
			return nil, meta, errors.Wrapf(err, "read %s", p.Name)
		}
		r, c := p.Value.Dims()
		if t.Name != p.Name || t.Rows != r || t.Cols != c || len(t.Data) != r*c {
			return nil, meta, errors.Errorf("parameter %s (%dx%d) does not match %s (%dx%d)", t.Name, t.Rows, t.Cols, p.Name, r, c)
		}
		copy(p.Value.RawMatrix().Data, t.Data)
	}
	return e, meta, nil
}

// SaveCheckpoint writes the encoder to filename, replacing it atomically.
func SaveCheckpoint(filename string, e *Encoder, meta CheckpointMeta) error {
	file, err := os.CreateTemp(filepath.Dir(filename), ".checkpoint-*")
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer os.Remove(file.Name())

	if meta.SavedAt.IsZero() {
		meta.SavedAt = time.Now()
	}
	if err := e.Encode(file, meta); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, "close checkpoint")
	}
	return errors.Wrap(os.Rename(file.Name(), filename), "save checkpoint")
}

// LoadCheckpoint reads an encoder saved by SaveCheckpoint.
func LoadCheckpoint(filename string) (*Encoder, CheckpointMeta, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, CheckpointMeta{}, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	e, meta, err := DecodeEncoder(file)
	if err != nil {
		return nil, meta, errors.Wrap(err, filename)
	}
	return e, meta, nil
}
