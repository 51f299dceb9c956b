// Package analyzer implements the semantic analysis pass over an
// expression graph: a non-recursive, work-list-based single pass that
// assigns Type, Init, and Level to every reachable node, folds constant
// subtrees, and reports diagnostics for ill-formed models. It never
// mutates graph shape, only the classification fields on each graph.Node.
package analyzer

import (
	"math/rand"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"sdograph/internal/diagnostics"
	"sdograph/internal/graph"
	"sdograph/internal/location"
	"sdograph/internal/sdolog"
)

// Analyzer holds the configuration and metrics needed to run Analyze. It is
// stateless between calls; each Analyze call seeds and drains its own
// work-list.
type Analyzer struct {
	log     *logrus.Logger
	tracer  opentracing.Tracer
	metrics *metrics
	rng     *rand.Rand
}

type metrics struct {
	nodesVisited prometheus.Counter
	runs         prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		nodesVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sdograph_analyzer_nodes_visited_total",
			Help: "Total number of node classification steps performed.",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sdograph_analyzer_runs_total",
			Help: "Total number of Analyze calls.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.nodesVisited, m.runs)
	}
	return m
}

// Option configures a new Analyzer.
type Option func(*Analyzer)

// WithLogger attaches a structured logger; nil falls back to sdolog.Discard.
func WithLogger(log *logrus.Logger) Option { return func(a *Analyzer) { a.log = sdolog.Or(log) } }

// WithTracer attaches an opentracing.Tracer around each Analyze call.
// Defaults to opentracing.NoopTracer if never set.
func WithTracer(t opentracing.Tracer) Option { return func(a *Analyzer) { a.tracer = t } }

// WithMetrics registers the analyzer's counters against reg. Pass nil to
// leave metrics uncollected (never registers against the global default
// registry).
func WithMetrics(reg prometheus.Registerer) Option {
	return func(a *Analyzer) { a.metrics = newMetrics(reg) }
}

// WithRand supplies the *rand.Rand backing the RANDOM_UNIFORM draws taken
// during constant folding. Defaults to a deterministically-seeded
// generator so repeated Analyze calls over the same graph are reproducible
// unless a caller injects their own source.
func WithRand(r *rand.Rand) Option { return func(a *Analyzer) { a.rng = r } }

// New builds an Analyzer with the given options.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		log:     sdolog.Discard,
		tracer:  opentracing.NoopTracer{},
		metrics: newMetrics(nil),
		rng:     rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// timeSymbols are the three model settings other classifications depend on
// (PULSE folding samples at INITIAL TIME + TIME STEP/2, TIME's folded
// value is INITIAL TIME). They are seeded at the top of the work list so
// they resolve before any dependent.
var timeSymbols = [...]string{"INITIAL TIME", "FINAL TIME", "TIME STEP"}

// pass is the per-run state of one Analyze call: the work-list (a slice
// used as a stack, top at the end) plus the builder it annotates.
type pass struct {
	a *Analyzer
	b *graph.Builder
	// list's back is the top of the stack; pushFront therefore defers a
	// node until everything currently pending has been classified.
	list []*graph.Node
}

func (p *pass) pushBack(n *graph.Node) {
	if n != nil {
		p.list = append(p.list, n)
	}
}

func (p *pass) pushFront(n *graph.Node) {
	if n != nil {
		p.list = append([]*graph.Node{n}, p.list...)
	}
}

// Analyze runs the classification pass over b's graph. Seeding order: every
// INTEG-bound symbol to the back, every other bound symbol (except the
// time triplet) to the front, then INITIAL TIME, FINAL TIME, TIME STEP and
// the TIME node to the back — the back is the top of the stack, so the
// time triplet resolves first and state variables resolve before the bulk
// of the model.
//
// Diagnostics accumulate in b.Diagnostics(); every node is still
// classified with a safe default when its operator's contract is violated,
// so one bad definition does not hide errors in later ones. When the
// work-list drains, any accumulated error promotes to a single fatal
// error carrying the full report.
func (a *Analyzer) Analyze(b *graph.Builder) error {
	span := a.tracer.StartSpan("analyzer.Analyze")
	defer span.Finish()
	a.metrics.runs.Inc()

	p := &pass{a: a, b: b}

	triplet := map[string]bool{}
	for _, name := range timeSymbols {
		triplet[name] = true
	}

	for _, sym := range b.AllSymbols() {
		if n, ok := b.LookupSymbolByName(sym.String()); ok && n.Op == graph.OpInteg {
			p.pushBack(n)
		}
	}
	for _, sym := range b.AllSymbols() {
		if triplet[sym.String()] {
			continue
		}
		if n, ok := b.LookupSymbolByName(sym.String()); ok && n.Op != graph.OpInteg {
			p.pushFront(n)
		}
	}
	for _, name := range timeSymbols {
		if n, ok := b.LookupSymbolByName(name); ok {
			p.pushBack(n)
		}
	}
	p.pushBack(b.TimeNode())

	for len(p.list) > 0 {
		n := p.list[len(p.list)-1]
		if n.Type != graph.UnknownType {
			p.list = p.list[:len(p.list)-1]
			continue
		}
		a.metrics.nodesVisited.Inc()
		p.classify(n)
	}

	for _, name := range timeSymbols {
		n, ok := b.LookupSymbolByName(name)
		if !ok || n.Type != graph.ConstantNode {
			b.Diagnostics().Errorf(diagnostics.KindNonConstantTimeField, nil, name)
		}
	}

	return b.Diagnostics().Fatal()
}

// ready pushes every still-unknown node among deps onto the stack and
// reports whether all deps are already classified. The caller's node stays
// on the stack below the pushed children and is re-inspected once they
// resolve; invariant 3 (no non-INTEG cycles) guarantees this terminates.
func (p *pass) ready(deps ...*graph.Node) bool {
	ok := true
	for _, d := range deps {
		if d != nil && d.Type == graph.UnknownType {
			p.pushBack(d)
			ok = false
		}
	}
	return ok
}

// symbolValue reads the folded value of a named model setting, available
// once the symbol's node has been classified (or immediately for a plain
// constant definition).
func (p *pass) symbolValue(name string) (float64, bool) {
	n, ok := p.b.LookupSymbolByName(name)
	if !ok || !n.HasValue {
		return 0, false
	}
	return n.Value, true
}

// foldable reports whether a classified node's value is defined per the
// data model: type CONSTANT, or type STATIC with constant init — and all
// operand values are available to compute it from.
func foldable(n *graph.Node, deps ...*graph.Node) bool {
	if n.Type == graph.DynamicNode || n.Type == graph.UnknownType {
		return false
	}
	if n.Init != graph.ConstantInit {
		return false
	}
	for _, d := range deps {
		if d == nil || !d.HasValue {
			return false
		}
	}
	return true
}

func (p *pass) classify(n *graph.Node) {
	b := p.b
	diags := b.Diagnostics()

	switch n.Op {
	case graph.OpConstant, graph.OpLookupTable:
		// Pre-classified at construction; only reachable here if a caller
		// built a Node by hand.
		n.Type = graph.ConstantNode
		n.Init = graph.ConstantInit
		n.Level = 0

	case graph.OpNil:
		name := "(unnamed)"
		if sym, ok := b.SymbolOf(n); ok {
			name = sym.String()
		}
		diags.Errorf(diagnostics.KindUndefinedSymbol, locsOf(n), name)
		// Safe default so dependents can still be analyzed and reported.
		n.Type = graph.ConstantNode
		n.Init = graph.ConstantInit
		n.Level = 0
		n.Value = 0
		n.HasValue = true

	case graph.OpTime:
		initial, ok := b.LookupSymbolByName("INITIAL TIME")
		if ok && !p.ready(initial) {
			return
		}
		n.Type = graph.StaticNode
		n.Init = graph.ConstantInit
		n.Level = 1
		if ok && initial.HasValue {
			n.Value = initial.Value
			n.HasValue = true
		}

	case graph.OpControl:
		n.Type = graph.DynamicNode
		n.Init = graph.ControledInit
		n.Level = 0

	case graph.OpApplyLookup:
		table, arg := n.Child1, n.Child2
		if !p.ready(table, arg) {
			return
		}
		if table.Op != graph.OpLookupTable {
			diags.Errorf(diagnostics.KindLookupOnNonTable, locsOf(n))
			n.Type = graph.ConstantNode
			n.Init = graph.ConstantInit
			n.Level = arg.Level + 1
			n.Value = 0
			n.HasValue = true
			return
		}
		n.Type = arg.Type
		n.Init = arg.Init
		n.Level = arg.Level + 1
		if foldable(n, arg) {
			n.Value = table.Table.Eval(arg.Value)
			n.HasValue = true
		}

	case graph.OpInteg:
		// INTEG terminates as soon as its initial condition is known; the
		// rate is deferred to the front of the work list, which is what
		// breaks cycles through state variables.
		init := n.Child2
		if !p.ready(init) {
			return
		}
		n.Type = graph.DynamicNode
		n.Init = init.Init
		n.Level = init.Level + 1
		if init.Init == graph.ConstantInit && init.HasValue {
			n.Value = init.Value
			n.HasValue = true
		}
		p.pushFront(n.Child1)

	case graph.OpInitial:
		x := n.Child1
		if !p.ready(x) {
			return
		}
		n.Level = x.Level
		if x.Init == graph.ConstantInit && x.HasValue {
			n.Type = graph.ConstantNode
			n.Init = graph.ConstantInit
			n.Value = x.Value
			n.HasValue = true
		} else {
			n.Type = graph.DynamicNode
			n.Init = graph.ControledInit
		}

	case graph.OpActiveInitial:
		active, init := n.Child1, n.Child2
		if !p.ready(active, init) {
			return
		}
		combined := active.Type.Lub(init.Type)
		if combined == graph.ConstantNode {
			diags.Errorf(diagnostics.KindActiveInitialConstant, locsOf(n))
			n.Type = graph.ConstantNode
			n.Init = graph.ConstantInit
			n.Level = maxLevel(active, init) + 1
			if active.HasValue {
				n.Value = active.Value
				n.HasValue = true
			}
			return
		}
		n.Type = combined
		n.Init = init.Init
		n.Level = maxLevel2(active.Level+1, init.Level)

	case graph.OpDelayFixed:
		input, delay, init := n.Child1, n.Child2, n.Child3
		if !p.ready(input, delay, init) {
			return
		}
		if input.Type == graph.ConstantNode {
			diags.Warnf(diagnostics.KindDelayConstantInput, locsOf(n))
		}
		if delay.Type != graph.ConstantNode {
			diags.Warnf(diagnostics.KindDelayNonConstantDelay, locsOf(n))
		}
		n.Type = input.Type.Lub(delay.Type).Lub(graph.StaticNode)
		n.Init = init.Init
		n.Level = maxLevel2(maxLevel(input, delay, init), 1) + 1
		if init.Init == graph.ConstantInit && init.HasValue {
			n.Value = init.Value
			n.HasValue = true
		}

	case graph.OpPulse:
		start, width := n.Child1, n.Child2
		if !p.ready(start, width) {
			return
		}
		n.Type = graph.StaticNode.Lub(start.Type).Lub(width.Type)
		n.Init = start.Init.Lub(width.Init)
		n.Level = maxLevel(start, width) + 1
		if n.Type == graph.DynamicNode {
			diags.Errorf(diagnostics.KindNonConstantArgument, locsOf(n), n.Op.String())
			return
		}
		if foldable(n, start, width) {
			if t, ok := p.sampleTime(); ok {
				n.Value = boolValue(t > start.Value && t < start.Value+width.Value)
				n.HasValue = true
			}
		}

	case graph.OpPulseTrain:
		pulse, tbetween, end := n.Child1, n.Child2, n.Child3
		if !p.ready(pulse, tbetween, end) {
			return
		}
		n.Type = graph.StaticNode.Lub(pulse.Type).Lub(tbetween.Type).Lub(end.Type)
		n.Init = pulse.Init.Lub(tbetween.Init).Lub(end.Init)
		n.Level = maxLevel(pulse, tbetween, end) + 1
		if pulse.Op != graph.OpPulse || n.Type == graph.DynamicNode {
			diags.Errorf(diagnostics.KindNonConstantArgument, locsOf(n), n.Op.String())
			return
		}
		start, width := pulse.Child1, pulse.Child2
		if foldable(n, start, width, tbetween, end) {
			t, ok := p.sampleTime()
			if !ok {
				return
			}
			if tbetween.Value < width.Value {
				// Pulses overlap: the train is solid on (start, end).
				n.Value = boolValue(t > start.Value && t < end.Value)
			} else {
				n.Value = boolValue(t > start.Value && t < start.Value+width.Value)
			}
			n.HasValue = true
		}

	case graph.OpStep:
		height, steptime := n.Child1, n.Child2
		if !p.ready(height, steptime) {
			return
		}
		n.Type = graph.StaticNode.Lub(height.Type).Lub(steptime.Type)
		n.Init = height.Init.Lub(steptime.Init)
		n.Level = maxLevel(height, steptime) + 1
		if steptime.Type != graph.ConstantNode {
			diags.Errorf(diagnostics.KindNonConstantArgument, locsOf(n), n.Op.String())
			return
		}
		if foldable(n, height, steptime) {
			initial, ok := p.symbolValue("INITIAL TIME")
			if !ok {
				return
			}
			if steptime.Value <= initial {
				diags.Warnf(diagnostics.KindStepAtOrBeforeInitial, locsOf(n))
				n.Value = height.Value
			} else {
				n.Value = 0
			}
			n.HasValue = true
		}

	case graph.OpRamp:
		slope, start, end := n.Child1, n.Child2, n.Child3
		if !p.ready(slope, start, end) {
			return
		}
		n.Type = graph.StaticNode.Lub(slope.Type).Lub(start.Type).Lub(end.Type)
		n.Init = slope.Init.Lub(start.Init).Lub(end.Init)
		n.Level = maxLevel(slope, start, end) + 1
		if n.Type == graph.DynamicNode {
			diags.Errorf(diagnostics.KindNonConstantArgument, locsOf(n), n.Op.String())
			return
		}
		if foldable(n, slope, start, end) {
			// A ramp's folded value is its value at INITIAL TIME: zero. The
			// dynamic shape belongs to the evaluator.
			n.Value = 0
			n.HasValue = true
		}

	case graph.OpRandomUniform:
		lo, hi := n.Child1, n.Child2
		if !p.ready(lo, hi) {
			return
		}
		n.Type = graph.StaticNode.Lub(lo.Type).Lub(hi.Type)
		n.Init = lo.Init.Lub(hi.Init)
		n.Level = maxLevel(lo, hi) + 1
		if n.Type == graph.DynamicNode {
			diags.Errorf(diagnostics.KindNonConstantArgument, locsOf(n), n.Op.String())
			return
		}
		if foldable(n, lo, hi) {
			n.Value = lo.Value + p.a.rng.Float64()*(hi.Value-lo.Value)
			n.HasValue = true
		}

	default:
		// Pure unary/binary operators and IF: LUB the children's classes
		// and fold through the shared arithmetic table when every operand's
		// value is defined.
		children := n.Children()
		if !p.ready(children...) {
			return
		}
		t := graph.ConstantNode
		i := graph.ConstantInit
		for _, c := range children {
			t = t.Lub(c.Type)
			i = i.Lub(c.Init)
		}
		n.Type = t
		n.Init = i
		n.Level = maxLevel(children...) + 1
		if foldable(n, children...) {
			args := make([]float64, len(children))
			for k, c := range children {
				args[k] = c.Value
			}
			if v, ok := graph.FoldPure(n.Op, args); ok {
				n.Value = v
				n.HasValue = true
			}
		}
	}
}

// sampleTime is the point the PULSE family's folded value is sampled at:
// INITIAL TIME plus half a TIME STEP, so a pulse opening exactly at the
// initial instant is already seen as active on the first step.
func (p *pass) sampleTime() (float64, bool) {
	initial, ok := p.symbolValue("INITIAL TIME")
	if !ok {
		return 0, false
	}
	step, ok := p.symbolValue("TIME STEP")
	if !ok {
		return 0, false
	}
	return initial + 0.5*step, true
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func maxLevel(nodes ...*graph.Node) int {
	m := 0
	for _, n := range nodes {
		if n != nil && n.Level > m {
			m = n.Level
		}
	}
	return m
}

func maxLevel2(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func locsOf(n *graph.Node) []location.FileLocation {
	return n.Usages
}
