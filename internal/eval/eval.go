// Package eval implements the static evaluator: a non-recursive,
// three-stack evaluation of an analyzed graph.Node at a given simulation
// time, used by a host simulation loop advancing TIME.
package eval

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"

	"sdograph/internal/graph"
)

// State carries everything the evaluator needs about "now": the current
// simulation time, the step size in effect, and whether this evaluation is
// happening at INITIAL TIME (which switches ACTIVE_INITIAL and INTEG
// nodes onto their initial-condition branch).
type State struct {
	Time        float64
	TimeStep    float64
	InitialTime float64
	Initial     bool

	// IntegValues holds the current numeric value of each INTEG node's
	// state, keyed by node identity. A host simulation loop owns this map
	// across steps; Evaluate only reads it.
	IntegValues map[*graph.Node]float64

	// DelayState holds the past input/time samples for each
	// DELAY_FIXED node, keyed by node identity, also owned by the host loop.
	DelayState map[*graph.Node]*DelayBuffer
}

// DelayBuffer is a minimal time-stamped, append-only sample buffer backing
// DELAY_FIXED.
type DelayBuffer struct {
	Times  []float64
	Values []float64
}

// Sample returns the buffered value closest to (but not after) t-delay,
// falling back to the initial value if the buffer does not yet reach that
// far back.
func (d *DelayBuffer) Sample(t, delay, initial float64) float64 {
	target := t - delay
	best := initial
	for i, ts := range d.Times {
		if ts <= target {
			best = d.Values[i]
		} else {
			break
		}
	}
	return best
}

// Push appends one sample.
func (d *DelayBuffer) Push(t, v float64) {
	d.Times = append(d.Times, t)
	d.Values = append(d.Values, v)
}

// Evaluator runs Evaluate calls against analyzed graphs.
type Evaluator struct {
	tracer  opentracing.Tracer
	metrics *metrics
	rng     *rand.Rand
}

type metrics struct {
	evaluations prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sdograph_eval_evaluations_total",
			Help: "Total number of Evaluate calls.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.evaluations)
	}
	return m
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTracer attaches an opentracing.Tracer around each Evaluate call.
func WithTracer(t opentracing.Tracer) Option { return func(e *Evaluator) { e.tracer = t } }

// WithMetrics registers the evaluator's counters against reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Evaluator) { e.metrics = newMetrics(reg) }
}

// WithRand supplies the entropy source RANDOM_UNIFORM draws from.
// Defaults to a fixed-seed rand.Rand when unset; callers that want
// non-repeating draws across runs inject their own source.
func WithRand(r *rand.Rand) Option { return func(e *Evaluator) { e.rng = r } }

// New builds an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		tracer:  opentracing.NoopTracer{},
		metrics: newMetrics(nil),
		rng:     rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// frame is one entry of the evaluator's node stack: a node plus how many of
// its children have already had their values pushed.
type frame struct {
	node       *graph.Node
	childIndex int
}

// Evaluate computes n's numeric value at st, using a work-list of three
// parallel stacks (node stack, value stack, frame-base stack) rather than
// recursion: deep expression trees (a long INTEG rate chain) must not
// blow the Go call stack.
func (e *Evaluator) Evaluate(n *graph.Node, st *State) (float64, error) {
	span := e.tracer.StartSpan("eval.Evaluate")
	defer span.Finish()
	e.metrics.evaluations.Inc()

	var nodeStack []frame
	var valueStack []float64
	var frameBase []int // index into valueStack marking where each frame's children values begin

	nodeStack = append(nodeStack, frame{node: n})
	frameBase = append(frameBase, 0)

	for len(nodeStack) > 0 {
		top := &nodeStack[len(nodeStack)-1]
		children := evalChildren(top.node)

		if top.childIndex < len(children) {
			child := children[top.childIndex]
			top.childIndex++
			nodeStack = append(nodeStack, frame{node: child})
			frameBase = append(frameBase, len(valueStack))
			continue
		}

		base := frameBase[len(frameBase)-1]
		args := append([]float64(nil), valueStack[base:]...)
		valueStack = valueStack[:base]
		frameBase = frameBase[:len(frameBase)-1]

		v, err := e.evalLeafOrCombine(top.node, st, args)
		if err != nil {
			return 0, err
		}
		valueStack = append(valueStack, v)
		nodeStack = nodeStack[:len(nodeStack)-1]
	}

	if len(valueStack) != 1 {
		return 0, fmt.Errorf("eval: internal stack imbalance, want 1 value got %d", len(valueStack))
	}
	return valueStack[0], nil
}

// evalLeafOrCombine computes one node's value given its already-evaluated
// children's values (args, in child order). Runtime-variant operators
// (TIME, PULSE family, RANDOM_UNIFORM, INTEG, DELAY_FIXED) consult st
// directly instead of only args, since their value depends on simulation
// time rather than purely on their syntactic children.
func (e *Evaluator) evalLeafOrCombine(n *graph.Node, st *State, args []float64) (float64, error) {
	switch n.Op {
	case graph.OpConstant:
		return n.Value, nil

	case graph.OpTime:
		return st.Time, nil

	case graph.OpControl:
		return 0, fmt.Errorf("eval: CONTROL node has no runtime value")

	case graph.OpLookupTable:
		return 0, fmt.Errorf("eval: LOOKUP_TABLE node has no scalar value; use APPLY_LOOKUP")

	case graph.OpApplyLookup:
		return n.Child1.Table.Eval(args[0]), nil

	case graph.OpInteg:
		// args holds only the initial value; see evalChildren.
		if st.Initial {
			return args[0], nil
		}
		if v, ok := st.IntegValues[n]; ok {
			return v, nil
		}
		return args[0], nil

	case graph.OpInitial:
		// The analyzer already froze the initial value onto the node; the
		// child is only re-evaluated when analysis could not fold it.
		if n.HasValue {
			return n.Value, nil
		}
		return args[0], nil

	case graph.OpActiveInitial:
		if st.Initial {
			return args[1], nil
		}
		return args[0], nil

	case graph.OpDelayFixed:
		buf := st.DelayState[n]
		if buf == nil {
			return args[2], nil
		}
		return buf.Sample(st.Time, args[1], args[2]), nil

	case graph.OpPulse:
		return pulse(st.Time, args[0], args[1], st.TimeStep), nil

	case graph.OpPulseTrain:
		return pulseTrain(st.Time, args[0], args[1], args[2], args[3], st.TimeStep), nil

	case graph.OpStep:
		height, stepTime := args[0], args[1]
		if st.Time+st.TimeStep/2 >= stepTime {
			return height, nil
		}
		return 0, nil

	case graph.OpRamp:
		slope, start, end := args[0], args[1], args[2]
		t := st.Time
		if t < start {
			return 0, nil
		}
		if end > start && t > end {
			t = end
		}
		return slope * (t - start), nil

	case graph.OpRandomUniform:
		lo, hi := args[0], args[1]
		return lo + e.rng.Float64()*(hi-lo), nil
	}

	// Pure unary/binary operators and IF share the analyzer's constant
	// folding truth table, so a folded value and an evaluated one can never
	// disagree.
	if v, ok := graph.FoldPure(n.Op, args); ok {
		return v, nil
	}
	return 0, fmt.Errorf("eval: unhandled operator %s", n.Op)
}

// evalChildren returns the children of n that the stack walk should
// recurse into. APPLY_LOOKUP's first child is a LOOKUP_TABLE node, which
// has no scalar runtime value of its own, so only its second child (the
// argument) is pushed; evalLeafOrCombine reaches the table itself via
// n.Child1 directly.
func evalChildren(n *graph.Node) []*graph.Node {
	switch {
	case n.Op == graph.OpApplyLookup:
		return []*graph.Node{n.Child2}
	case n.Op == graph.OpInteg:
		// Only the initial value is needed; the state's current value comes
		// from st.IntegValues. Walking the rate would loop forever through
		// any state whose rate refers back to itself.
		return []*graph.Node{n.Child2}
	case n.Op == graph.OpPulseTrain:
		// The first operand is a nested PULSE node; the train needs that
		// pulse's start and width, not its own 0/1 sample.
		return []*graph.Node{n.Child1.Child1, n.Child1.Child2, n.Child2, n.Child3}
	case n.Op == graph.OpInitial && n.HasValue:
		// Frozen at analysis time; nothing to re-evaluate.
		return nil
	}
	return n.Children()
}

// pulse is PULSE(start, width): one at every time whose sample point
// t + dt/2 falls strictly inside (start, start+width), zero elsewhere. A
// width narrower than one step is widened to the step so the pulse cannot
// fall between samples.
func pulse(t, start, width, dt float64) float64 {
	if width < dt {
		width = dt
	}
	tp := t + dt/2
	if tp > start && tp < start+width {
		return 1
	}
	return 0
}

// pulseTrain is PULSE_TRAIN(start, width, period, end): repeating pulses of
// the given width and period between start and end. When end > start the
// train is zero at every time past end, in every branch, so a pulse still
// open at end is cut off there.
func pulseTrain(t, start, width, period, end, dt float64) float64 {
	if t+dt/2 < start {
		return 0
	}
	if end > start && t > end {
		return 0
	}
	if period <= 0 {
		return pulse(t, start, width, dt)
	}
	if width < dt {
		width = dt
	}
	phase := math.Mod(t-start, period)
	if phase < 0 {
		phase += period
	}
	if phase+dt/2 < width {
		return 1
	}
	return 0
}
