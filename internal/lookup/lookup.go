// Package lookup implements lookup tables: a finite sequence of (x, y)
// breakpoints with piecewise-linear evaluation, clamped at the endpoints,
// plus the structural hash/equality the graph builder needs to hash-cons
// LOOKUP_TABLE nodes.
//
// Breakpoints are accepted as text (the only form a not-yet-specified
// lexer would hand the builder) and parsed with
// github.com/shopspring/decimal so a literal like "0.1" round-trips
// exactly before being reduced to the float64 the rest of the graph
// operates on; decimal.Decimal is also used to format a breakpoint back
// into a diagnostic message without reintroducing binary-float noise.
package lookup

import (
	"fmt"

	"github.com/mitchellh/hashstructure"
	"github.com/shopspring/decimal"
)

// Table is a finite piecewise-linear function, strictly increasing in X
// (assumed by this layer, not enforced).
type Table struct {
	X []float64
	Y []float64
}

// New builds a Table from equal-length X/Y slices. It does not validate
// strict increase in X; callers (the parser façade) are responsible for
// producing breakpoints in the documented order.
func New(x, y []float64) (*Table, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("lookup: mismatched breakpoint lengths: %d x values, %d y values", len(x), len(y))
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("lookup: table must have at least one breakpoint")
	}
	return &Table{X: append([]float64(nil), x...), Y: append([]float64(nil), y...)}, nil
}

// NewFromText parses breakpoint text pairs (e.g. as read by a lexer that
// hands the builder raw tokens) through decimal.Decimal before reducing to
// float64, so "0.1" and "1.0" parse exactly rather than through strconv's
// usual binary rounding.
func NewFromText(xs, ys []string) (*Table, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("lookup: mismatched breakpoint lengths: %d x values, %d y values", len(xs), len(ys))
	}
	x := make([]float64, len(xs))
	y := make([]float64, len(ys))
	for i := range xs {
		dx, err := decimal.NewFromString(xs[i])
		if err != nil {
			return nil, fmt.Errorf("lookup: breakpoint %d: invalid x %q: %w", i, xs[i], err)
		}
		dy, err := decimal.NewFromString(ys[i])
		if err != nil {
			return nil, fmt.Errorf("lookup: breakpoint %d: invalid y %q: %w", i, ys[i], err)
		}
		x[i], _ = dx.Float64()
		y[i], _ = dy.Float64()
	}
	return New(x, y)
}

// Eval returns L(v): y[0] if v <= x[0], y[n-1] if v >= x[n-1], otherwise
// linear interpolation between the bracketing breakpoints.
func (t *Table) Eval(v float64) float64 {
	n := len(t.X)
	if v <= t.X[0] {
		return t.Y[0]
	}
	if v >= t.X[n-1] {
		return t.Y[n-1]
	}
	// Linear scan: model lookup tables are small (tens of breakpoints),
	// so a binary search buys nothing but complexity here.
	for i := 1; i < n; i++ {
		if v <= t.X[i] {
			x0, x1 := t.X[i-1], t.X[i]
			y0, y1 := t.Y[i-1], t.Y[i]
			frac := (v - x0) / (x1 - x0)
			return y0 + frac*(y1-y0)
		}
	}
	return t.Y[n-1]
}

// Equal reports structural equality: pointwise-equal (x,y) sequences.
func (t *Table) Equal(other *Table) bool {
	if other == nil || len(t.X) != len(other.X) {
		return false
	}
	for i := range t.X {
		if t.X[i] != other.X[i] || t.Y[i] != other.Y[i] {
			return false
		}
	}
	return true
}

// Hash derives a structural hash from both sequences via hashstructure, the
// same library the graph package uses to hash ordered (non-commutative,
// non-comparison, non-unary) operator nodes.
func (t *Table) Hash() uint64 {
	h, err := hashstructure.Hash(struct {
		X []float64
		Y []float64
	}{t.X, t.Y}, nil)
	if err != nil {
		// hashstructure only fails on unsupported field kinds; []float64
		// is always supported, so this is unreachable in practice.
		return 0
	}
	return h
}

// TableBuilder accumulates breakpoints one at a time, the shape a streaming
// parser hands them to the graph builder's create_lookup_table() entry
// point, before reducing them to an immutable Table.
type TableBuilder struct {
	x, y []float64
}

// NewTableBuilder returns an empty TableBuilder.
func NewTableBuilder() *TableBuilder {
	return &TableBuilder{}
}

// Add appends one breakpoint.
func (b *TableBuilder) Add(x, y float64) {
	b.x = append(b.x, x)
	b.y = append(b.y, y)
}

// Build finalizes the accumulated breakpoints into a Table.
func (b *TableBuilder) Build() (*Table, error) {
	return New(b.x, b.y)
}

// FormatBreakpoint renders X[i] through decimal for diagnostic messages:
// the shortest digits that read back to the same float64, always in
// positional notation (never the exponent form %v uses for very large or
// very small values).
func (t *Table) FormatBreakpoint(i int) string {
	return decimal.NewFromFloat(t.X[i]).String()
}
