// Package constraint implements a minimal DAP-style constraint
// expression evaluator: a projection list of variable names plus
// zero or more function-call clauses, applied against a Dataset.
// Grounded on the parse_constraint / eval_function_clauses call shape
// of the original evaluator; the grammar itself is a deliberately
// small subset since constraint parsing detail is out of scope here.
package constraint

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arturkryukov/dapfncache/internal/dapmodel"
)

// Evaluator parses a constraint expression against a Dataset and
// produces the Dataset that should be cached and returned.
type Evaluator interface {
	Parse(expr string, ds *dapmodel.Dataset) error
	EvalFunctions(ds *dapmodel.Dataset) (*dapmodel.Dataset, error)
}

// clause is one comma-separated element of a parsed constraint: either
// a bare variable name (a projection) or a function call.
type clause struct {
	varName  string
	funcName string
	funcArgs []string
}

// BuiltinEvaluator implements Evaluator with a fixed function table:
// identity projection, mean(<var>), and bbox(<var>, minLon, minLat,
// maxLon, maxLat).
type BuiltinEvaluator struct {
	clauses []clause
}

// NewBuiltinEvaluator returns a ready-to-use BuiltinEvaluator.
func NewBuiltinEvaluator() *BuiltinEvaluator {
	return &BuiltinEvaluator{}
}

// Parse splits expr on top-level commas (commas inside a function
// call's parentheses separate its arguments) into projection and
// function clauses. An empty expr means "project everything", matching
// an unconstrained request.
func (e *BuiltinEvaluator) Parse(expr string, ds *dapmodel.Dataset) error {
	e.clauses = nil

	expr = strings.TrimSpace(expr)
	if expr == "" {
		for _, v := range ds.Variables() {
			e.clauses = append(e.clauses, clause{varName: v.Name()})
		}
		return nil
	}

	var parts []string
	depth, start := 0, 0
	for i, r := range expr {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, expr[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, expr[start:])

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if open := strings.Index(part, "("); open >= 0 {
			if !strings.HasSuffix(part, ")") {
				return fmt.Errorf("constraint: malformed function call %q", part)
			}
			name := part[:open]
			argStr := part[open+1 : len(part)-1]
			var args []string
			if strings.TrimSpace(argStr) != "" {
				for _, a := range strings.Split(argStr, ",") {
					args = append(args, strings.TrimSpace(a))
				}
			}
			if _, ok := functionTable[name]; !ok {
				return fmt.Errorf("constraint: unknown function %q", name)
			}
			e.clauses = append(e.clauses, clause{funcName: name, funcArgs: args})
			continue
		}

		if _, ok := ds.Variable(part); !ok {
			return fmt.Errorf("constraint: unknown variable %q", part)
		}
		e.clauses = append(e.clauses, clause{varName: part})
	}

	return nil
}

// EvalFunctions builds the result Dataset: projected variables are
// marked to send as-is, function clauses invoke their handler and add
// a new variable holding the result, also marked to send. Every other
// variable on ds is left with Send=false.
func (e *BuiltinEvaluator) EvalFunctions(ds *dapmodel.Dataset) (*dapmodel.Dataset, error) {
	result := dapmodel.New(ds.Name())

	for _, v := range ds.Variables() {
		v.SetSend(false)
		result.AddVariable(v)
	}

	for _, c := range e.clauses {
		if c.varName != "" {
			v, ok := result.Variable(c.varName)
			if !ok {
				return nil, fmt.Errorf("constraint: variable %q vanished during evaluation", c.varName)
			}
			v.SetSend(true)
			continue
		}

		fn := functionTable[c.funcName]
		out, err := fn(ds, c.funcArgs)
		if err != nil {
			return nil, fmt.Errorf("constraint: %s(%s): %w", c.funcName, strings.Join(c.funcArgs, ","), err)
		}
		out.SetSend(true)
		result.AddVariable(out)
	}

	return result, nil
}

type functionHandler func(ds *dapmodel.Dataset, args []string) (dapmodel.Variable, error)

var functionTable = map[string]functionHandler{
	"mean": evalMean,
	"bbox": evalBBox,
}

// evalMean computes the mean of every value in a Float64, Array, or
// the first numeric column of a Sequence variable, named "<var>_mean".
func evalMean(ds *dapmodel.Dataset, args []string) (dapmodel.Variable, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expects exactly one argument")
	}
	v, ok := ds.Variable(args[0])
	if !ok {
		return nil, fmt.Errorf("unknown variable %q", args[0])
	}

	var sum float64
	var count int

	switch t := v.(type) {
	case *dapmodel.Float64:
		sum, count = t.Value, 1
	case *dapmodel.Array:
		for _, f := range t.Values {
			sum += f
			count++
		}
	case *dapmodel.Sequence:
		for _, row := range t.Rows {
			if len(row) == 0 {
				continue
			}
			sum += row[0]
			count++
		}
	default:
		return nil, fmt.Errorf("variable %q is not numeric", args[0])
	}

	if count == 0 {
		return nil, fmt.Errorf("variable %q has no values to average", args[0])
	}

	return dapmodel.NewFloat64(args[0]+"_mean", sum/float64(count)), nil
}

// evalBBox filters a Sequence variable's rows to those whose first two
// columns fall within [minLon,maxLon] x [minLat,maxLat], returning a
// new Sequence named "<var>_bbox" over the same columns.
func evalBBox(ds *dapmodel.Dataset, args []string) (dapmodel.Variable, error) {
	if len(args) != 5 {
		return nil, fmt.Errorf("expects varName, minLon, minLat, maxLon, maxLat")
	}
	v, ok := ds.Variable(args[0])
	if !ok {
		return nil, fmt.Errorf("unknown variable %q", args[0])
	}
	seq, ok := v.(*dapmodel.Sequence)
	if !ok {
		return nil, fmt.Errorf("variable %q is not a sequence", args[0])
	}
	if len(seq.Columns) < 2 {
		return nil, fmt.Errorf("variable %q needs at least 2 columns for a bounding box", args[0])
	}

	bounds := make([]float64, 4)
	for i, s := range args[1:] {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("bound %q is not a number", s)
		}
		bounds[i] = f
	}
	minLon, minLat, maxLon, maxLat := bounds[0], bounds[1], bounds[2], bounds[3]

	out := dapmodel.NewSequence(args[0]+"_bbox", seq.Columns)
	for _, row := range seq.Rows {
		lon, lat := row[0], row[1]
		if lon >= minLon && lon <= maxLon && lat >= minLat && lat <= maxLat {
			if err := out.AppendRow(row); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}
