package graph

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"sdograph/internal/diagnostics"
	"sdograph/internal/location"
	"sdograph/internal/lookup"
	"sdograph/internal/sdolog"
	"sdograph/internal/symbol"
)

// slotRef is one back-edge into a NIL stub: the child slot (1, 2, or 3) of
// a specific node that currently points at the stub. Builder.SubstituteTmp
// walks a stub's slotRefs to rewrite every one of them in place once the
// symbol it stands for is finally defined, so no raw pointer to the stub
// escapes the graph after substitution.
type slotRef struct {
	node *Node
	slot int
}

func (r slotRef) set(n *Node) {
	switch r.slot {
	case 1:
		r.node.Child1 = n
	case 2:
		r.node.Child2 = n
	case 3:
		r.node.Child3 = n
	}
}

// Builder is the hash-consed, forward-reference-tolerant expression DAG
// builder, with an attached symbol table and diagnostics bag. Not safe for
// concurrent use from multiple goroutines; one Builder serves one
// single-threaded parse.
type Builder struct {
	log     *logrus.Logger
	diags   *diagnostics.Bag
	metrics *metrics

	nextID int64

	buckets map[uint64][]*Node

	symbols     map[symbol.Symbol]*Node
	symbolOrder []symbol.Symbol
	symbolOf    map[*Node]symbol.Symbol
	definedAt   map[symbol.Symbol][]location.FileLocation
	tempUsages  map[*Node][]slotRef

	comments map[*Node][]string

	uniqueConstants bool
	timeNode        *Node

	sourceFiles []string
}

type metrics struct {
	nodesBuilt   prometheus.Counter
	hashConsHits prometheus.Counter
	nilStubs     prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		nodesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sdograph_builder_nodes_built_total",
			Help: "Total number of distinct nodes allocated by the builder.",
		}),
		hashConsHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sdograph_builder_hash_cons_hits_total",
			Help: "Total number of builder calls that reused an existing node instead of allocating.",
		}),
		nilStubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sdograph_builder_nil_stubs",
			Help: "Current number of unresolved forward-reference stub nodes.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.nodesBuilt, m.hashConsHits, m.nilStubs)
	}
	return m
}

// NewBuilder returns an empty Builder. log may be nil (diagnostics are then
// accumulated silently); reg may be nil (metrics are then computed but
// never exposed). The global default Prometheus registry is never touched.
func NewBuilder(log *logrus.Logger, reg prometheus.Registerer) *Builder {
	return &Builder{
		log:        sdolog.Or(log),
		diags:      diagnostics.New(log),
		metrics:    newMetrics(reg),
		buckets:    make(map[uint64][]*Node),
		symbols:    make(map[symbol.Symbol]*Node),
		symbolOf:   make(map[*Node]symbol.Symbol),
		definedAt:  make(map[symbol.Symbol][]location.FileLocation),
		tempUsages: make(map[*Node][]slotRef),
		comments:   make(map[*Node][]string),
	}
}

// Diagnostics returns the bag this builder reports into. The same bag is
// later handed to the analyzer so build-time and analysis-time diagnostics
// share one run ID.
func (b *Builder) Diagnostics() *diagnostics.Bag { return b.diags }

// UseUniqueConstants toggles the policy of never hash-consing CONSTANT
// nodes: every call to Const then allocates a fresh node even if an
// equal-valued one exists.
// structuralEq itself never changes: two CONSTANT nodes with equal values
// remain "structurally equal" by the pure definition even with this flag
// set, since it is Const (not structuralEq) that decides whether to look
// them up at all.
func (b *Builder) UseUniqueConstants(unique bool) { b.uniqueConstants = unique }

// SourceFiles returns the names of model files folded into this graph, so
// a driver can track which files contributed which symbols. Order of
// first registration is preserved; duplicates are ignored.
func (b *Builder) SourceFiles() []string { return append([]string(nil), b.sourceFiles...) }

// AddSourceFile registers file as contributing to this graph.
func (b *Builder) AddSourceFile(file string) {
	for _, f := range b.sourceFiles {
		if f == file {
			return
		}
	}
	b.sourceFiles = append(b.sourceFiles, file)
}

func (b *Builder) alloc(op Op) *Node {
	b.nextID++
	b.metrics.nodesBuilt.Inc()
	// Nodes are born unclassified; the analyzer assigns Type/Init/Level.
	// CONSTANT and LOOKUP_TABLE leaves are the exception and are
	// pre-classified by their constructors below.
	return &Node{id: b.nextID, Op: op, Type: UnknownType, Init: UnknownInit}
}

// consLookup hash-conses a candidate shape against the builder's buckets,
// returning the existing node if one structurally equals the candidate
// (including cross-equivalent G/LE and L/GE comparison pairs), or nil if no
// match was found (the caller is then responsible for allocating and
// registering the new node with register).
func (b *Builder) consLookup(op Op, c1, c2, c3 *Node, value float64, hasValue bool, table *lookup.Table) *Node {
	h := structuralHash(op, c1, c2, c3, value, hasValue, table)
	for _, existing := range b.buckets[h] {
		if structuralEq(op, c1, c2, c3, value, hasValue, table, existing) {
			b.metrics.hashConsHits.Inc()
			return existing
		}
		if crossEquivalent(op, c1, c2, existing) {
			b.metrics.hashConsHits.Inc()
			return existing
		}
	}
	return nil
}

func (b *Builder) register(n *Node, c1, c2, c3 *Node, value float64, hasValue bool, table *lookup.Table) {
	h := structuralHash(n.Op, c1, c2, c3, value, hasValue, table)
	b.buckets[h] = append(b.buckets[h], n)
}

// Node builds a node for op over the given children, returning an existing
// structurally-equal node instead when one is already in the graph.
// The first three children are stored whatever op's arity, and any beyond
// the third are ignored; callers pass exactly as many as the operator's
// arity.
func (b *Builder) Node(op Op, children ...*Node) *Node {
	return b.NodeAt(location.FileLocation{}, op, children...)
}

// NodeAt is Node, additionally recording loc as a usage location on the
// resulting node (new or reused).
func (b *Builder) NodeAt(loc location.FileLocation, op Op, children ...*Node) *Node {
	var c1, c2, c3 *Node
	if len(children) > 0 {
		c1 = children[0]
	}
	if len(children) > 1 {
		c2 = children[1]
	}
	if len(children) > 2 {
		c3 = children[2]
	}

	if n := b.consLookup(op, c1, c2, c3, 0, false, nil); n != nil {
		b.attachUsage(n, loc)
		return n
	}

	n := b.alloc(op)
	n.Child1, n.Child2, n.Child3 = c1, c2, c3
	// Children that are still forward-reference stubs get a back-edge so
	// the slot is rewritten in place when the symbol is finally defined.
	for slot, c := range []*Node{c1, c2, c3} {
		if c != nil && c.Op == OpNil {
			b.tempUsages[c] = append(b.tempUsages[c], slotRef{node: n, slot: slot + 1})
		}
	}
	b.register(n, c1, c2, c3, 0, false, nil)
	b.attachUsage(n, loc)
	return n
}

func (b *Builder) attachUsage(n *Node, loc location.FileLocation) {
	if loc.File != "" {
		n.Usages = append(n.Usages, loc)
	}
}

// Const builds (or, per UseUniqueConstants, always allocates) a CONSTANT
// node with value v.
func (b *Builder) Const(v float64) *Node {
	return b.ConstAt(location.FileLocation{}, v)
}

// ConstAt is Const, additionally recording loc as a usage location.
func (b *Builder) ConstAt(loc location.FileLocation, v float64) *Node {
	if !b.uniqueConstants {
		if n := b.consLookup(OpConstant, nil, nil, nil, v, true, nil); n != nil {
			b.attachUsage(n, loc)
			return n
		}
	}
	n := b.alloc(OpConstant)
	n.Value = v
	n.HasValue = true
	n.Type = ConstantNode
	n.Init = ConstantInit
	n.Level = 0
	if !b.uniqueConstants {
		b.register(n, nil, nil, nil, v, true, nil)
	}
	b.attachUsage(n, loc)
	return n
}

// TimeNode returns the graph's single TIME node, allocating it on first
// call. Every later call returns the same pointer: TIME has no children to
// distinguish one occurrence from another, so it is a singleton by
// construction rather than by hash-cons lookup.
func (b *Builder) TimeNode() *Node {
	if b.timeNode == nil {
		b.timeNode = b.alloc(OpTime)
	}
	return b.timeNode
}

// Lookup builds (or reuses) a LOOKUP_TABLE node wrapping table.
func (b *Builder) Lookup(table *lookup.Table) *Node {
	if n := b.consLookup(OpLookupTable, nil, nil, nil, 0, false, table); n != nil {
		return n
	}
	n := b.alloc(OpLookupTable)
	n.Table = table
	n.Type = ConstantNode
	n.Init = ConstantInit
	n.Level = 0
	b.register(n, nil, nil, nil, 0, false, table)
	return n
}

// CreateLookupTable returns a fresh lookup.TableBuilder for a caller (the
// parser façade) streaming breakpoints one at a time before calling Lookup
// on the finished table.
func (b *Builder) CreateLookupTable() *lookup.TableBuilder {
	return lookup.NewTableBuilder()
}

// CreateTmpNode allocates an unbound NIL stub not tied to any symbol, for
// callers that need a forward-reference placeholder outside the symbol
// table (e.g. a sub-model output wired in after the fact). Use
// SubstituteTmp to resolve it once the real node is known.
func (b *Builder) CreateTmpNode() *Node {
	n := b.alloc(OpNil)
	if b.metrics.nilStubs != nil {
		b.metrics.nilStubs.Inc()
	}
	return n
}

// SubstituteTmp rewrites every recorded back-edge into tmp so it instead
// points at repl, then merges tmp's own back-edge bookkeeping into repl's
// (so that if repl is itself later substituted, tmp's inherited slots are
// rewritten too). tmp must have been obtained from CreateTmpNode or
// NodeFor; calling this twice on the same tmp is a programming error.
func (b *Builder) SubstituteTmp(tmp, repl *Node) {
	refs := b.tempUsages[tmp]
	delete(b.tempUsages, tmp)
	if b.metrics.nilStubs != nil {
		b.metrics.nilStubs.Dec()
	}
	for _, r := range refs {
		r.set(repl)
	}
	if repl.Op == OpNil {
		b.tempUsages[repl] = append(b.tempUsages[repl], refs...)
	}
}

// NodeFor returns the node currently bound to sym, creating and binding an
// unresolved NIL stub on first reference, so a symbol can be referenced
// before its defining equation has been parsed. Once AddSymbol substitutes
// the stub, every child slot that held it is rewritten in place via the
// recorded slotRefs, and sym is bound to the new node; direct holders of
// the stub pointer itself (rather than a child slot of another node) still
// hold the stub and must re-resolve through NodeFor.
func (b *Builder) NodeFor(sym symbol.Symbol) *Node {
	if n, ok := b.symbols[sym]; ok {
		return n
	}
	n := b.alloc(OpNil)
	if b.metrics.nilStubs != nil {
		b.metrics.nilStubs.Inc()
	}
	b.symbols[sym] = n
	b.symbolOrder = append(b.symbolOrder, sym)
	b.symbolOf[n] = sym
	return n
}

// RecordUsage attaches a usage-site slot of parent (1, 2, or 3, whichever
// child points at referenced) so that if referenced is later substituted
// via SubstituteTmp/AddSymbol, parent's slot is rewritten too. Node and
// NodeAt record this automatically for their own children; RecordUsage is
// for callers that wire a stub into a child slot by hand.
func (b *Builder) RecordUsage(referenced, parent *Node, slot int) {
	if referenced.Op != OpNil {
		return
	}
	b.tempUsages[referenced] = append(b.tempUsages[referenced], slotRef{node: parent, slot: slot})
}

// AddSymbol binds sym to node, recording locs as sym's definition sites.
// If sym already had a NIL stub (from an earlier NodeFor forward
// reference), every back-edge into that stub is rewritten to node via
// SubstituteTmp, and the stub's own inherited back-edges (if it was itself
// substituted into the slot of another still-unresolved stub) are merged
// forward. A second AddSymbol call for an already-concretely-defined
// symbol is ignored: first definition wins.
func (b *Builder) AddSymbol(sym symbol.Symbol, node *Node, locs ...location.FileLocation) {
	existing, ok := b.symbols[sym]
	if ok && existing.Op != OpNil {
		// Already concretely defined: first definition wins.
		b.definedAt[sym] = append(b.definedAt[sym], locs...)
		return
	}
	if ok {
		// Migrate: every symbol sharing the stub moves to node, the stub's
		// accumulated usages move with it (merging two NIL groups when node
		// is itself a stub), and every child slot holding the stub is
		// rewritten in place.
		for _, other := range b.symbolOrder {
			if b.symbols[other] == existing {
				b.symbols[other] = node
			}
		}
		delete(b.symbolOf, existing)
		node.Usages = append(node.Usages, existing.Usages...)
		b.SubstituteTmp(existing, node)
	}
	if _, seen := b.symbols[sym]; !seen {
		b.symbolOrder = append(b.symbolOrder, sym)
	}
	b.symbols[sym] = node
	b.symbolOf[node] = sym
	b.definedAt[sym] = append(b.definedAt[sym], locs...)
}

// AllSymbols returns every symbol ever referenced or defined in this
// graph, in first-reference order, so work-list seeding and diagnostic
// emission stay deterministic run to run.
func (b *Builder) AllSymbols() []symbol.Symbol {
	return append([]symbol.Symbol(nil), b.symbolOrder...)
}

// IntegSymbols returns every symbol currently bound to an INTEG node, in
// first-reference order (one seeding tier of the analyzer's work list: a
// state variable's rate expression must be reachable even when nothing
// else in the model refers to the state by name).
func (b *Builder) IntegSymbols() []symbol.Symbol {
	var out []symbol.Symbol
	for _, sym := range b.symbolOrder {
		if b.symbols[sym].Op == OpInteg {
			out = append(out, sym)
		}
	}
	return out
}

// SymbolOf returns a symbol bound to node, if any. When several symbols
// alias the same node, the one recorded most recently by AddSymbol is
// returned; GetSymbols lists them all.
func (b *Builder) SymbolOf(node *Node) (symbol.Symbol, bool) {
	sym, ok := b.symbolOf[node]
	return sym, ok
}

// LookupSymbolByName resolves name through the process-wide symbol intern
// table and returns its bound node, if any symbol of that name has been
// referenced or defined in this graph.
func (b *Builder) LookupSymbolByName(name string) (*Node, bool) {
	sym := symbol.Intern(name)
	n, ok := b.symbols[sym]
	return n, ok
}

// GetSymbols returns every symbol currently bound to node, in no particular
// order. Most nodes have zero or one; a node can have more than one when
// two symbols are defined as aliases of the same expression.
func (b *Builder) GetSymbols(node *Node) []symbol.Symbol {
	var out []symbol.Symbol
	for _, sym := range b.symbolOrder {
		if b.symbols[sym] == node {
			out = append(out, sym)
		}
	}
	return out
}

// UnresolvedSymbols returns every symbol still bound to a NIL stub, i.e.
// referenced but never defined, in first-reference order.
func (b *Builder) UnresolvedSymbols() []symbol.Symbol {
	var out []symbol.Symbol
	for _, sym := range b.symbolOrder {
		if b.symbols[sym].Op == OpNil {
			out = append(out, sym)
		}
	}
	return out
}

// AddComments attaches free-form comment text to node, in source order.
func (b *Builder) AddComments(node *Node, text ...string) {
	b.comments[node] = append(b.comments[node], text...)
}

// GetComments returns the comment text attached to node.
func (b *Builder) GetComments(node *Node) []string {
	return b.comments[node]
}

// String renders a node for debugging: its operator and, for CONSTANT and
// LOOKUP_TABLE, its distinguishing content.
func (n *Node) String() string {
	switch n.Op {
	case OpConstant:
		return fmt.Sprintf("CONSTANT(%g)", n.Value)
	case OpLookupTable:
		return "LOOKUP_TABLE"
	default:
		return n.Op.String()
	}
}
