package dapmodel

import "fmt"

// CacheAwareFactory constructs empty Variables from a parsed schema
// description on the Codec's read path. Most kinds use their plain
// constructor; Sequence must use the row-buffer-backed type here
// rather than whatever live-query-backed Sequence implementation the
// original Evaluator would have produced, because the on-disk form is
// self-contained and replay must not attempt to re-open the original
// data source.
type CacheAwareFactory struct{}

// NewVariable builds an empty (unpopulated) Variable of the given kind
// and name. For KindSequence, columns must be provided; for other
// kinds columns is ignored.
func (CacheAwareFactory) NewVariable(kind Kind, name string, columns []string) (Variable, error) {
	switch kind {
	case KindInt32:
		return NewInt32(name, 0), nil
	case KindFloat64:
		return NewFloat64(name, 0), nil
	case KindString:
		return NewStr(name, ""), nil
	case KindArray:
		return NewArray(name, nil), nil
	case KindSequence:
		return NewSequence(name, columns), nil
	default:
		return nil, fmt.Errorf("dapmodel: unknown variable kind %q", kind)
	}
}
