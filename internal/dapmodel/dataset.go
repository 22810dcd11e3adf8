// Package dapmodel is the concrete stand-in for the otherwise-opaque
// Dataset abstraction the cache serializes and rehydrates: a small
// ordered tree of typed variables, close in shape to libdap's DDS but
// stripped of everything the cache does not need to know about.
package dapmodel

import "fmt"

// Kind identifies the on-disk encoding of a Variable's payload.
type Kind string

const (
	KindInt32    Kind = "int32"
	KindFloat64  Kind = "float64"
	KindString   Kind = "string"
	KindArray    Kind = "array"
	KindSequence Kind = "sequence"
)

// Variable is one node of a Dataset: a named, typed value with the two
// flags the DAP2 data model attaches to every variable — whether it
// has been read (deserialized) and whether it is marked to be sent
// (serialized) in a given response.
type Variable interface {
	Name() string
	Kind() Kind
	Send() bool
	SetSend(bool)
	Read() bool
	SetRead(bool)
}

// Dataset is an ordered collection of Variables plus the dataset
// identifier used as the left-hand side of a ResourceId.
type Dataset struct {
	id   string
	vars []Variable
}

// New creates an empty Dataset identified by id (typically a filename
// or catalog path).
func New(id string) *Dataset {
	return &Dataset{id: id}
}

// Name returns the dataset identifier.
func (d *Dataset) Name() string { return d.id }

// SetName overwrites the dataset identifier. Used by ResponseCache on
// a cache hit: the file on disk may have been produced under a
// different (but ResourceId-equal) path than the caller's current one.
func (d *Dataset) SetName(id string) { d.id = id }

// Variables returns the variables in declaration order. The returned
// slice must not be mutated by callers; use AddVariable to extend it.
func (d *Dataset) Variables() []Variable { return d.vars }

// AddVariable appends a variable, preserving declaration order.
func (d *Dataset) AddVariable(v Variable) { d.vars = append(d.vars, v) }

// Variable looks up a variable by name.
func (d *Dataset) Variable(name string) (Variable, bool) {
	for _, v := range d.vars {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

// SendList returns the variables currently marked to be sent, in
// declaration order. This is exactly the subset the Codec writes to
// the data section.
func (d *Dataset) SendList() []Variable {
	var out []Variable
	for _, v := range d.vars {
		if v.Send() {
			out = append(out, v)
		}
	}
	return out
}

// MarkAllReadAndSent sets Read=true and Send=true on every variable.
// Called after deserializing a cache entry, whose payload section
// already contains a fully materialized value for each variable it
// declared.
func (d *Dataset) MarkAllReadAndSent() {
	for _, v := range d.vars {
		v.SetRead(true)
		v.SetSend(true)
	}
}

// ResetSequenceCursors recursively resets the row cursor of every
// streaming Sequence variable in the dataset to zero. Deserialization
// advances a sequence's cursor as a side effect; a caller that goes on
// to serialize the rehydrated dataset must start from row 0.
func (d *Dataset) ResetSequenceCursors() {
	for _, v := range d.vars {
		if seq, ok := v.(*Sequence); ok {
			seq.ResetCursor()
		}
	}
}

// baseVar carries the Name/Kind/Read/Send bookkeeping shared by every
// concrete variable type.
type baseVar struct {
	name string
	kind Kind
	send bool
	read bool
}

func (b *baseVar) Name() string    { return b.name }
func (b *baseVar) Kind() Kind      { return b.kind }
func (b *baseVar) Send() bool      { return b.send }
func (b *baseVar) SetSend(v bool)  { b.send = v }
func (b *baseVar) Read() bool      { return b.read }
func (b *baseVar) SetRead(v bool)  { b.read = v }

func (b *baseVar) String() string {
	return fmt.Sprintf("%s(%s send=%t read=%t)", b.name, b.kind, b.send, b.read)
}
