// Package adapters declares the narrow contracts between the expression
// graph core and its outer collaborators: a lexer/parser producing located
// tokens, and sibling model-family files (.voc control files, .vpd
// objective files, .vop files naming the model, control and objective
// files) that reference one another by relative path. None of those formats are implemented here; only the
// shapes the core needs to accept their output are.
package adapters

import (
	"path/filepath"

	"github.com/spf13/cast"

	"sdograph/internal/graph"
	"sdograph/internal/location"
)

// ModelSource is the contract a not-yet-specified lexer/parser satisfies to
// feed an ExpressionGraph.Builder: a stream of located symbol definitions.
// A concrete implementation (outside this module's scope) walks an .mdl
// file's grammar and calls Builder methods directly; this interface exists
// so the core can be tested against a fake without depending on any real
// grammar.
type ModelSource interface {
	// Load populates b with every definition in the source, returning any
	// I/O or syntax error that prevented a complete parse. Semantic errors
	// (undefined symbols, etc.) are left to the analyzer and are not
	// returned here.
	Load(b *graph.Builder) error
}

// CoerceLiteral converts an untyped literal token v — whatever shape a
// not-yet-specified lexer hands the builder (string, int, float64, ...) —
// into the float64 a CONSTANT node needs. Returns an error rather than
// panicking on a token that cannot be coerced, so a caller can turn it into
// a diagnostic instead of crashing the parse.
func CoerceLiteral(v interface{}) (float64, error) {
	return cast.ToFloat64E(v)
}

// Direction is the sense of an optimization Objective.
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

func (d Direction) String() string {
	if d == Maximize {
		return "MAXIMIZE"
	}
	return "MINIMIZE"
}

// SummandKind distinguishes how a Summand's weight and graph node combine
// into the objective's scalar value, mirroring the corresponding original
// Objective payoff calculation.
type SummandKind int

const (
	// SummandIntegral weights the time-integral of the node's value over
	// the simulation horizon.
	SummandIntegral SummandKind = iota
	// SummandFinalValue weights only the node's value at FINAL TIME.
	SummandFinalValue
)

// Summand is one weighted term of an Objective.
type Summand struct {
	Node   *graph.Node
	Weight float64
	Kind   SummandKind
}

// Objective is a weighted sum of Summands, with a Direction to optimize:
// the optimization payoff a .vpd file describes, reduced to its
// graph-facing shape.
//
//	obj := adapters.Objective{
//	    Direction: adapters.Minimize,
//	    Summands: []adapters.Summand{
//	        {Node: costNode, Weight: 1, Kind: adapters.SummandIntegral},
//	        {Node: finalInventory, Weight: 0.1, Kind: adapters.SummandFinalValue},
//	    },
//	}
type Objective struct {
	Direction Direction
	Summands  []Summand
}

// VopRef is a reference to an external optimization-control file, resolved
// relative to the referencing model's own directory rather than the
// process's current working directory — the same resolution rule the
// original VopFile.hpp documents for locating companion files.
type VopRef struct {
	Path string
	Loc  location.FileLocation
}

// ResolveAgainst returns the absolute (or dir-relative) path VopRef.Path
// names, resolved against dir (typically the directory containing the
// model file that referenced it). A pure function: it performs no I/O and
// does not check the resolved path exists.
func (v VopRef) ResolveAgainst(dir string) string {
	if filepath.IsAbs(v.Path) {
		return v.Path
	}
	return filepath.Join(dir, v.Path)
}
