package eval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sdograph/internal/analyzer"
	"sdograph/internal/graph"
	"sdograph/internal/lookup"
	"sdograph/internal/symbol"
)

func TestEvaluateArithmetic(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	x := b.Const(3)
	y := b.Const(4)
	sum := b.Node(graph.OpPlus, x, y)

	e := New()
	v, err := e.Evaluate(sum, &State{})
	require.NoError(t, err)
	require.Equal(t, 7.0, v)
}

func TestEvaluateApplyLookup(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	tbl, err := lookup.New([]float64{0, 1, 2}, []float64{0, 10, 20})
	require.NoError(t, err)
	tableNode := b.Lookup(tbl)
	arg := b.Const(1.5)
	n := b.Node(graph.OpApplyLookup, tableNode, arg)

	e := New()
	v, err := e.Evaluate(n, &State{})
	require.NoError(t, err)
	require.Equal(t, 15.0, v)
}

func TestEvaluateIntegUsesInitialAtStart(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	rate := b.Const(2)
	initVal := b.Const(5)
	integNode := b.Node(graph.OpInteg, rate, initVal)

	e := New()
	v, err := e.Evaluate(integNode, &State{Initial: true})
	require.NoError(t, err)
	require.Equal(t, 5.0, v)
}

func TestEvaluateIntegReadsHostState(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	rate := b.Const(2)
	initVal := b.Const(5)
	integNode := b.Node(graph.OpInteg, rate, initVal)

	st := &State{IntegValues: map[*graph.Node]float64{integNode: 11}}
	e := New()
	v, err := e.Evaluate(integNode, st)
	require.NoError(t, err)
	require.Equal(t, 11.0, v)
}

func TestEvaluateInitialFoldsChildValue(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	c := b.Const(9)
	init := b.Node(graph.OpInitial, c)

	e := New()
	v, err := e.Evaluate(init, &State{})
	require.NoError(t, err)
	require.Equal(t, 9.0, v)
}

func TestEvaluateStepFunction(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	height := b.Const(5)
	stepTime := b.Const(2)
	n := b.Node(graph.OpStep, height, stepTime)

	e := New()
	before, err := e.Evaluate(n, &State{Time: 1, TimeStep: 0.25})
	require.NoError(t, err)
	require.Equal(t, 0.0, before)

	after, err := e.Evaluate(n, &State{Time: 3, TimeStep: 0.25})
	require.NoError(t, err)
	require.Equal(t, 5.0, after)
}

func TestPulseExactness(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	n := b.Node(graph.OpPulse, b.Const(2), b.Const(3))

	e := New()
	cases := []struct {
		time float64
		want float64
	}{
		{1.0, 0},  // sample 1.25, before the pulse opens
		{1.75, 0}, // sample 2.0, exactly on the open boundary: still off
		{2.25, 1}, // sample 2.5, inside (2, 5)
		{4.5, 1},  // sample 4.75, still inside
		{5.0, 0},  // sample 5.25, past the pulse
	}
	for _, c := range cases {
		v, err := e.Evaluate(n, &State{Time: c.time, TimeStep: 0.5})
		require.NoError(t, err)
		require.Equal(t, c.want, v, "PULSE(2,3) at t=%g", c.time)
	}
}

func TestPulseTrainRepeats(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	p := b.Node(graph.OpPulse, b.Const(1), b.Const(0.5))
	train := b.Node(graph.OpPulseTrain, p, b.Const(2), b.Const(10))

	e := New()
	cases := []struct {
		time float64
		want float64
	}{
		{0, 0},  // before the first pulse
		{1, 1},  // first pulse
		{2, 0},  // between pulses
		{3, 1},  // one period later
		{11, 0}, // past end
	}
	for _, c := range cases {
		v, err := e.Evaluate(train, &State{Time: c.time, TimeStep: 0.5})
		require.NoError(t, err)
		require.Equal(t, c.want, v, "PULSE_TRAIN at t=%g", c.time)
	}
}

func TestEvaluateAgreesWithFoldedValue(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	b.AddSymbol(symbol.Intern("INITIAL TIME"), b.Const(0))
	b.AddSymbol(symbol.Intern("FINAL TIME"), b.Const(1))
	b.AddSymbol(symbol.Intern("TIME STEP"), b.Const(0.1))

	expr := b.Node(graph.OpMax,
		b.Node(graph.OpMult, b.Const(3), b.Const(4)),
		b.Node(graph.OpPlus, b.Const(5), b.Const(6)))
	b.AddSymbol(symbol.Intern("m"), expr)

	require.NoError(t, analyzer.New().Analyze(b))
	require.True(t, expr.HasValue)

	e := New()
	for _, tm := range []float64{0, 0.5, 7} {
		v, err := e.Evaluate(expr, &State{Time: tm, TimeStep: 0.1})
		require.NoError(t, err)
		require.Equal(t, expr.Value, v, "folded value and evaluation must agree at t=%g", tm)
	}
}

func TestEvaluateDeepExpressionWithoutRecursion(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	b.UseUniqueConstants(true)
	n := b.Const(0)
	for i := 0; i < 20000; i++ {
		n = b.Node(graph.OpPlus, n, b.Const(1))
	}

	e := New()
	v, err := e.Evaluate(n, &State{})
	require.NoError(t, err)
	require.Equal(t, 20000.0, v)
}

func TestEvaluateComparisonsReturnBooleanFloats(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	n := b.Node(graph.OpG, b.Const(5), b.Const(3))

	e := New()
	v, err := e.Evaluate(n, &State{})
	require.NoError(t, err)
	require.Equal(t, 1.0, v)
}
