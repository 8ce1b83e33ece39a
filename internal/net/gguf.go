package net

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// GGUF Constants
const (
	GGUFMagic   = 0x46554747 // "GGUF" in little-endian
	GGUFVersion = 3

	ggufArchitecture = "reviewgru"
)

// GGUF Value Types
type GGUFType uint32

const (
	GGUFTypeUint8   GGUFType = 0
	GGUFTypeInt8    GGUFType = 1
	GGUFTypeUint16  GGUFType = 2
	GGUFTypeInt16   GGUFType = 3
	GGUFTypeUint32  GGUFType = 4
	GGUFTypeInt32   GGUFType = 5
	GGUFTypeFloat32 GGUFType = 6
	GGUFTypeBool    GGUFType = 7
	GGUFTypeString  GGUFType = 8
	GGUFTypeArray   GGUFType = 9
	GGUFTypeUint64  GGUFType = 10
	GGUFTypeInt64   GGUFType = 11
	GGUFTypeFloat64 GGUFType = 12
)

// GGML Tensor Types. Only F32 and F16 can be exported.
type GGMLType uint32

const (
	GGMLTypeF32 GGMLType = 0
	GGMLTypeF16 GGMLType = 1
)

func (t GGMLType) size() uint64 {
	if t == GGMLTypeF16 {
		return 2
	}
	return 4
}

// GGUFWriter helps writing GGUF files. It tracks the number of bytes
// written so sections can be aligned.
type GGUFWriter struct {
	w         io.Writer
	alignment uint64
	n         uint64
}

func NewGGUFWriter(w io.Writer) *GGUFWriter {
	return &GGUFWriter{
		w:         w,
		alignment: 32, // Default alignment
	}
}

func (gw *GGUFWriter) write(v any) error {
	if err := binary.Write(gw.w, binary.LittleEndian, v); err != nil {
		return err
	}
	gw.n += uint64(binary.Size(v))
	return nil
}

func (gw *GGUFWriter) WriteHeader(kvCount, tensorCount uint64) error {
	if err := gw.write(uint32(GGUFMagic)); err != nil {
		return err
	}
	if err := gw.write(uint32(GGUFVersion)); err != nil {
		return err
	}
	if err := gw.write(tensorCount); err != nil {
		return err
	}
	return gw.write(kvCount)
}

func (gw *GGUFWriter) WriteString(s string) error {
	if err := gw.write(uint64(len(s))); err != nil {
		return err
	}
	n, err := io.WriteString(gw.w, s)
	gw.n += uint64(n)
	return err
}

func (gw *GGUFWriter) WriteKV(key string, valType GGUFType, value any) error {
	if err := gw.WriteString(key); err != nil {
		return err
	}
	if err := gw.write(uint32(valType)); err != nil {
		return err
	}

	switch valType {
	case GGUFTypeUint32:
		return gw.write(value.(uint32))
	case GGUFTypeInt32:
		return gw.write(value.(int32))
	case GGUFTypeFloat32:
		return gw.write(value.(float32))
	case GGUFTypeUint64:
		return gw.write(value.(uint64))
	case GGUFTypeFloat64:
		return gw.write(value.(float64))
	case GGUFTypeBool:
		var b uint8
		if value.(bool) {
			b = 1
		}
		return gw.write(b)
	case GGUFTypeString:
		return gw.WriteString(value.(string))
	default:
		return errors.Errorf("unsupported GGUF type: %v", valType)
	}
}

func (gw *GGUFWriter) WriteTensorInfo(name string, shape []uint64, ggmlType GGMLType, offset uint64) error {
	if err := gw.WriteString(name); err != nil {
		return err
	}
	rank := uint32(len(shape))
	if err := gw.write(rank); err != nil {
		return err
	}
	// GGUF dimensions are in reverse order (last dimension first)
	for i := int(rank) - 1; i >= 0; i-- {
		if err := gw.write(shape[i]); err != nil {
			return err
		}
	}
	if err := gw.write(uint32(ggmlType)); err != nil {
		return err
	}
	return gw.write(offset)
}

// Pad writes zero bytes up to the next multiple of the alignment.
func (gw *GGUFWriter) Pad() error {
	rem := gw.n % gw.alignment
	if rem == 0 {
		return nil
	}
	n, err := gw.w.Write(make([]byte, gw.alignment-rem))
	gw.n += uint64(n)
	return err
}

// WriteTensorData writes values in the given tensor type.
func (gw *GGUFWriter) WriteTensorData(values []float64, ggmlType GGMLType) error {
	switch ggmlType {
	case GGMLTypeF32:
		buf := make([]float32, len(values))
		for i, v := range values {
			buf[i] = float32(v)
		}
		return gw.write(buf)
	case GGMLTypeF16:
		buf := make([]uint16, len(values))
		for i, v := range values {
			buf[i] = Float32ToFloat16(float32(v))
		}
		return gw.write(buf)
	default:
		return errors.Errorf("unsupported tensor type: %d", ggmlType)
	}
}

// SaveGGUF exports the encoder weights and architecture to a GGUF file.
func (e *Encoder) SaveGGUF(filename string, ggmlType GGMLType) error {
	if ggmlType != GGMLTypeF32 && ggmlType != GGMLTypeF16 {
		return errors.Errorf("unsupported tensor type: %d", ggmlType)
	}
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	bw := bufio.NewWriter(file)
	if err := e.writeGGUF(NewGGUFWriter(bw), ggmlType); err != nil {
		file.Close()
		return errors.Wrap(err, "write gguf")
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return errors.Wrap(err, "write gguf")
	}
	return errors.Wrap(file.Close(), "close gguf")
}

func (e *Encoder) writeGGUF(gw *GGUFWriter, ggmlType GGMLType) error {
	arch := func(key string) string { return ggufArchitecture + "." + key }
	kvs := []struct {
		key   string
		typ   GGUFType
		value any
	}{
		{"general.architecture", GGUFTypeString, ggufArchitecture},
		{"general.alignment", GGUFTypeUint32, uint32(gw.alignment)},
		{"general.file_type", GGUFTypeUint32, uint32(ggmlType)},
		{arch("vocab_size"), GGUFTypeUint32, uint32(e.cfg.VocabSize)},
		{arch("embedding_length"), GGUFTypeUint32, uint32(e.cfg.EncodingSize)},
		{arch("hidden_size"), GGUFTypeUint32, uint32(e.cfg.HiddenSize)},
		{arch("output_size"), GGUFTypeUint32, uint32(e.cfg.OutputSize)},
		{arch("block_count"), GGUFTypeUint32, uint32(e.cfg.Layers)},
		{arch("padding_idx"), GGUFTypeUint32, uint32(e.cfg.PaddingIdx)},
	}

	params := e.Params()
	if err := gw.WriteHeader(uint64(len(kvs)), uint64(len(params))); err != nil {
		return err
	}
	for _, kv := range kvs {
		if err := gw.WriteKV(kv.key, kv.typ, kv.value); err != nil {
			return errors.Wrap(err, kv.key)
		}
	}

	var offset uint64
	for _, p := range params {
		r, c := p.Value.Dims()
		if err := gw.WriteTensorInfo(p.Name, []uint64{uint64(r), uint64(c)}, ggmlType, offset); err != nil {
			return errors.Wrap(err, p.Name)
		}
		size := uint64(r*c) * ggmlType.size()
		offset += (size + gw.alignment - 1) / gw.alignment * gw.alignment
	}

	for _, p := range params {
		if err := gw.Pad(); err != nil {
			return err
		}
		if err := gw.WriteTensorData(p.Value.RawMatrix().Data, ggmlType); err != nil {
			return errors.Wrap(err, p.Name)
		}
	}
	return nil
}

// Float32ToFloat16 converts a float32 to float16 (represented as uint16)
func Float32ToFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	s := uint16((bits >> 16) & 0x8000)
	e := int16((bits >> 23) & 0xFF)
	m := bits & 0x7FFFFF

	if e == 0 {
		// Zero or denormal
		return s
	} else if e == 0xFF {
		// Inf or NaN
		if m == 0 {
			return s | 0x7C00
		}
		return s | 0x7C00 | uint16(m>>13) | 1
	}

	e -= 127 - 15
	if e >= 31 {
		// Overflow to Inf
		return s | 0x7C00
	} else if e <= 0 {
		// Underflow to denormal or zero
		if e < -10 {
			return s
		}
		m |= 0x800000
		m >>= uint32(1 - e)
		return s | uint16(m>>13)
	}

	return s | uint16(e<<10) | uint16(m>>13)
}
