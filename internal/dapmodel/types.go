package dapmodel

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Payload is implemented by every concrete Variable and is the half of
// the Variable contract the Codec drives directly: it knows how to
// write and read its own typed value in the cache's binary payload
// format (host endianness, length-prefixed variable-size types).
type Payload interface {
	WritePayload(w io.Writer) error
	ReadPayload(r io.Reader) error
}

// enc is the host-endian byte order the payload section is written in.
// Cache entries are not expected to move between hosts of different
// endianness, so paying for a fixed byte order buys nothing here.
var enc = binary.NativeEndian

// Int32 is a scalar 32-bit signed integer variable.
type Int32 struct {
	baseVar
	Value int32
}

// NewInt32 creates a named Int32 variable, not yet marked to send.
func NewInt32(name string, value int32) *Int32 {
	return &Int32{baseVar: baseVar{name: name, kind: KindInt32}, Value: value}
}

func (v *Int32) WritePayload(w io.Writer) error {
	return binary.Write(w, enc, v.Value)
}

func (v *Int32) ReadPayload(r io.Reader) error {
	return binary.Read(r, enc, &v.Value)
}

// Float64 is a scalar double-precision variable.
type Float64 struct {
	baseVar
	Value float64
}

// NewFloat64 creates a named Float64 variable, not yet marked to send.
func NewFloat64(name string, value float64) *Float64 {
	return &Float64{baseVar: baseVar{name: name, kind: KindFloat64}, Value: value}
}

func (v *Float64) WritePayload(w io.Writer) error {
	return binary.Write(w, enc, math.Float64bits(v.Value))
}

func (v *Float64) ReadPayload(r io.Reader) error {
	var bits uint64
	if err := binary.Read(r, enc, &bits); err != nil {
		return err
	}
	v.Value = math.Float64frombits(bits)
	return nil
}

// Str is a length-prefixed UTF-8 string variable.
type Str struct {
	baseVar
	Value string
}

// NewStr creates a named Str variable, not yet marked to send.
func NewStr(name, value string) *Str {
	return &Str{baseVar: baseVar{name: name, kind: KindString}, Value: value}
}

func (v *Str) WritePayload(w io.Writer) error {
	b := []byte(v.Value)
	if err := binary.Write(w, enc, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func (v *Str) ReadPayload(r io.Reader) error {
	var n uint32
	if err := binary.Read(r, enc, &n); err != nil {
		return err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	v.Value = string(buf)
	return nil
}

// Array is a fixed-width array of float64 values, length-prefixed.
type Array struct {
	baseVar
	Values []float64
}

// NewArray creates a named Array variable, not yet marked to send.
func NewArray(name string, values []float64) *Array {
	return &Array{baseVar: baseVar{name: name, kind: KindArray}, Values: values}
}

func (v *Array) WritePayload(w io.Writer) error {
	if err := binary.Write(w, enc, uint32(len(v.Values))); err != nil {
		return err
	}
	for _, f := range v.Values {
		if err := binary.Write(w, enc, math.Float64bits(f)); err != nil {
			return err
		}
	}
	return nil
}

func (v *Array) ReadPayload(r io.Reader) error {
	var n uint32
	if err := binary.Read(r, enc, &n); err != nil {
		return err
	}
	values := make([]float64, n)
	for i := range values {
		var bits uint64
		if err := binary.Read(r, enc, &bits); err != nil {
			return err
		}
		values[i] = math.Float64frombits(bits)
	}
	v.Values = values
	return nil
}

// Sequence is a streaming row sequence: a variable whose values arrive
// as rows, each a fixed tuple of float64 columns. The on-disk payload
// is row-count-prefixed. Deserialization fills Rows and advances
// cursor as a side effect; ResetCursor must be called before the
// caller re-serializes a rehydrated Sequence, or it will appear to
// have already been fully consumed.
type Sequence struct {
	baseVar
	Columns []string
	Rows    [][]float64
	cursor  int
}

// NewSequence creates a named streaming Sequence variable over the
// given columns, initially empty.
func NewSequence(name string, columns []string) *Sequence {
	return &Sequence{baseVar: baseVar{name: name, kind: KindSequence}, Columns: columns}
}

// AppendRow adds one row to the in-memory buffer. Used by the
// Evaluator when it produces sequence results, and by tests.
func (v *Sequence) AppendRow(row []float64) error {
	if len(row) != len(v.Columns) {
		return fmt.Errorf("dapmodel: sequence %q expects %d columns, got %d", v.name, len(v.Columns), len(row))
	}
	v.Rows = append(v.Rows, row)
	return nil
}

// ResetCursor zeroes the row cursor so a subsequent WritePayload call
// serializes the sequence from row 0.
func (v *Sequence) ResetCursor() { v.cursor = 0 }

// CursorPos exposes the current cursor for tests.
func (v *Sequence) CursorPos() int { return v.cursor }

// WritePayload writes every row from the current cursor onward,
// mimicking a live source draining as it streams, then advances the
// cursor to the end. On a freshly built Sequence (cursor 0) this
// writes every buffered row.
func (v *Sequence) WritePayload(w io.Writer) error {
	remaining := v.Rows[v.cursor:]
	if err := binary.Write(w, enc, uint32(len(remaining))); err != nil {
		return err
	}
	for _, row := range remaining {
		for _, f := range row {
			if err := binary.Write(w, enc, math.Float64bits(f)); err != nil {
				return err
			}
		}
	}
	v.cursor = len(v.Rows)
	return nil
}

// ReadPayload fills Rows from the payload and advances the cursor as a
// side effect of deserializing, mirroring how a live source's cursor
// would sit at end-of-stream once fully consumed — callers must call
// ResetCursor before serializing the result onward.
func (v *Sequence) ReadPayload(r io.Reader) error {
	var rowCount uint32
	if err := binary.Read(r, enc, &rowCount); err != nil {
		return err
	}
	rows := make([][]float64, rowCount)
	for i := range rows {
		row := make([]float64, len(v.Columns))
		for c := range row {
			var bits uint64
			if err := binary.Read(r, enc, &bits); err != nil {
				return err
			}
			row[c] = math.Float64frombits(bits)
		}
		rows[i] = row
	}
	v.Rows = rows
	v.cursor = len(rows)
	return nil
}

var (
	_ Variable = (*Int32)(nil)
	_ Payload  = (*Int32)(nil)
	_ Variable = (*Float64)(nil)
	_ Payload  = (*Float64)(nil)
	_ Variable = (*Str)(nil)
	_ Payload  = (*Str)(nil)
	_ Variable = (*Array)(nil)
	_ Payload  = (*Array)(nil)
	_ Variable = (*Sequence)(nil)
	_ Payload  = (*Sequence)(nil)
)
