package graph

import (
	"math"

	"github.com/mitchellh/hashstructure"

	"sdograph/internal/lookup"
)

// comparisonPairTag groups G/LE and L/GE into the two inverse-comparison
// equivalence classes: G(a,b) is the same predicate as LE(b,a), and
// L(a,b) the same as GE(b,a). Each pair shares one hash tag so either
// member of a pair lands in the same bucket before structuralEq
// discriminates further.
var comparisonPairTag = map[Op]uint64{
	OpG: 0x6770, OpLe: 0x6770,
	OpL: 0x6c67, OpGe: 0x6c67,
}

// structuralHash computes a hash-cons bucket key for n. It must agree with
// structuralEq: structuralEq(a, b) implies structuralHash(a) == structuralHash(b).
// The converse need not hold; bucket collisions are resolved by structuralEq.
func structuralHash(op Op, c1, c2, c3 *Node, value float64, hasValue bool, table *lookup.Table) uint64 {
	switch op {
	case OpRandomUniform:
		// Every RANDOM_UNIFORM call site is its own draw; never hash-cons it
		// with another.
		return nextUniqueHash()

	case OpNil, OpControl:
		return nextUniqueHash()

	case OpConstant:
		if hasValue {
			return hashFloat(op, value)
		}
		return nextUniqueHash()

	case OpTime:
		return hashFloat(op, 0)

	case OpLookupTable:
		if table != nil {
			return uint64(op)<<56 ^ table.Hash()
		}
		return nextUniqueHash()
	}

	if symmetricOps[op] {
		a, b := idOf(c1), idOf(c2)
		if a > b {
			a, b = b, a
		}
		return uint64(op)<<48 ^ a<<16 ^ b
	}

	if tag, ok := comparisonPairTag[op]; ok {
		a, b := idOf(c1), idOf(c2)
		// Canonicalize onto the strict member's orientation so G(a,b) and
		// LE(b,a) land in the same bucket: LE(x,y) ≡ G(y,x), GE(x,y) ≡ L(y,x).
		if op == OpLe || op == OpGe {
			a, b = b, a
		}
		return tag<<48 ^ a<<16 ^ b
	}

	if unaryOps[op] {
		return uint64(op)<<48 ^ idOf(c1)
	}

	h, err := hashstructure.Hash(struct {
		Op         Op
		C1, C2, C3 int64
	}{op, int64(idOf(c1)), int64(idOf(c2)), int64(idOf(c3))}, nil)
	if err != nil {
		return nextUniqueHash()
	}
	return h
}

// structuralEq reports whether a candidate node shape duplicates an
// existing node. It is a pure function of content: policy decisions about
// whether to even perform the hash-cons lookup (e.g.
// Builder.uniqueConstants) live in Builder.Const, not here.
func structuralEq(op Op, c1, c2, c3 *Node, value float64, hasValue bool, table *lookup.Table, existing *Node) bool {
	if existing.Op != op {
		return false
	}

	switch op {
	case OpRandomUniform, OpNil, OpControl:
		// Identity only: two distinct RANDOM_UNIFORM/NIL/CONTROL nodes are
		// never structurally equal to each other, even with equal contents.
		return false

	case OpConstant:
		return hasValue && existing.HasValue && existing.Value == value

	case OpTime:
		return true

	case OpLookupTable:
		return table != nil && existing.Table != nil && table.Equal(existing.Table)
	}

	if symmetricOps[op] {
		return (existing.Child1 == c1 && existing.Child2 == c2) ||
			(existing.Child1 == c2 && existing.Child2 == c1)
	}

	switch op {
	case OpG:
		// G(a,b) ≡ LE(b,a)
		if existing.Op == OpG {
			return existing.Child1 == c1 && existing.Child2 == c2
		}
	case OpLe:
		if existing.Op == OpLe {
			return existing.Child1 == c1 && existing.Child2 == c2
		}
	case OpL:
		if existing.Op == OpL {
			return existing.Child1 == c1 && existing.Child2 == c2
		}
	case OpGe:
		if existing.Op == OpGe {
			return existing.Child1 == c1 && existing.Child2 == c2
		}
	}

	if unaryOps[op] {
		return existing.Child1 == c1
	}

	return existing.Child1 == c1 && existing.Child2 == c2 && existing.Child3 == c3
}

// crossEquivalent reports whether a candidate (op, c1, c2) is the inverse
// form of an existing comparison node: G(a,b) against LE(b,a), or
// L(a,b) against GE(b,a). Called by Builder before falling back to a fresh
// node when the bucket holds the inverse operator.
func crossEquivalent(op Op, c1, c2 *Node, existing *Node) bool {
	switch {
	case op == OpG && existing.Op == OpLe:
		return existing.Child1 == c2 && existing.Child2 == c1
	case op == OpLe && existing.Op == OpG:
		return existing.Child1 == c2 && existing.Child2 == c1
	case op == OpL && existing.Op == OpGe:
		return existing.Child1 == c2 && existing.Child2 == c1
	case op == OpGe && existing.Op == OpL:
		return existing.Child1 == c2 && existing.Child2 == c1
	}
	return false
}

func idOf(n *Node) uint64 {
	if n == nil {
		return 0
	}
	return uint64(n.id)
}

func hashFloat(op Op, v float64) uint64 {
	bits := math.Float64bits(v)
	return uint64(op)<<56 ^ bits
}

var uniqueHashCounter uint64

// nextUniqueHash hands out a bucket key that no other node will ever
// collide into, used for nodes that must never hash-cons with anything
// else (NIL, CONTROL, RANDOM_UNIFORM, and unshareable lookup tables).
func nextUniqueHash() uint64 {
	uniqueHashCounter++
	return math.MaxUint64 - uniqueHashCounter
}
