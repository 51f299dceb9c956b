package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sdograph/internal/diagnostics"
	"sdograph/internal/graph"
	"sdograph/internal/location"
	"sdograph/internal/symbol"
)

// withTimeTriplet defines the three settings every analyzable model needs.
func withTimeTriplet(b *graph.Builder, initial, final, step float64) {
	b.AddSymbol(symbol.Intern("INITIAL TIME"), b.Const(initial))
	b.AddSymbol(symbol.Intern("FINAL TIME"), b.Const(final))
	b.AddSymbol(symbol.Intern("TIME STEP"), b.Const(step))
}

func hasKind(b *graph.Builder, kind interface{ Is(error) bool }) bool {
	for _, d := range b.Diagnostics().Errors() {
		if kind.Is(d.Err) {
			return true
		}
	}
	return false
}

func TestClassifiesScalarODE(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)

	// x = INTEG(-x, 1)
	x := symbol.Intern("x")
	xStub := b.NodeFor(x)
	rate := b.Node(graph.OpUMinus, xStub)
	integNode := b.Node(graph.OpInteg, rate, b.Const(1))
	b.AddSymbol(x, integNode)

	require.NoError(t, New().Analyze(b))

	require.Equal(t, graph.DynamicNode, integNode.Type)
	require.Equal(t, graph.ConstantInit, integNode.Init)
	require.True(t, integNode.HasValue)
	require.Equal(t, 1.0, integNode.Value)
	require.Equal(t, 1, integNode.Level)

	require.Equal(t, graph.DynamicNode, rate.Type, "rate -x depends on the state")
}

func TestConstantFolding(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)

	// v = (2+3)*4 - 6/3
	sum := b.Node(graph.OpPlus, b.Const(2), b.Const(3))
	prod := b.Node(graph.OpMult, sum, b.Const(4))
	quot := b.Node(graph.OpDiv, b.Const(6), b.Const(3))
	v := b.Node(graph.OpMinus, prod, quot)
	b.AddSymbol(symbol.Intern("v"), v)

	require.NoError(t, New().Analyze(b))
	require.Equal(t, graph.ConstantNode, v.Type)
	require.Equal(t, graph.ConstantInit, v.Init)
	require.True(t, v.HasValue)
	require.Equal(t, 18.0, v.Value)
}

func TestTotalClassification(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)

	cond := b.Node(graph.OpG, b.TimeNode(), b.Const(5))
	choice := b.Node(graph.OpIf, cond, b.Const(1), b.Const(2))
	b.AddSymbol(symbol.Intern("choice"), choice)

	require.NoError(t, New().Analyze(b))

	seen := map[*graph.Node]bool{}
	var walk func(n *graph.Node)
	walk = func(n *graph.Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		require.NotEqual(t, graph.UnknownType, n.Type, "node %s left unclassified", n)
		for _, c := range n.Children() {
			walk(c)
		}
	}
	for _, sym := range b.AllSymbols() {
		n, _ := b.LookupSymbolByName(sym.String())
		walk(n)
	}
}

func TestForwardReferenceResolvesBeforeAnalysis(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)

	// y = x + 1 parsed before x = 2.
	x := symbol.Intern("x")
	xStub := b.NodeFor(x)
	y := b.Node(graph.OpPlus, xStub, b.Const(1))
	b.AddSymbol(symbol.Intern("y"), y)
	b.AddSymbol(x, b.Const(2))

	require.NoError(t, New().Analyze(b))
	require.True(t, y.HasValue)
	require.Equal(t, 3.0, y.Value)
	require.Empty(t, b.UnresolvedSymbols())
}

func TestUndefinedSymbolReported(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)

	z := symbol.Intern("z")
	loc := location.In("model.mdl", location.Span(4, 1, 4, 2))
	stub := b.NodeFor(z)
	stub.Usages = append(stub.Usages, loc)
	twice := b.Node(graph.OpMult, stub, b.Const(2))
	b.AddSymbol(symbol.Intern("w"), twice)

	require.Error(t, New().Analyze(b))

	found := false
	for _, d := range b.Diagnostics().Errors() {
		if diagnostics.KindUndefinedSymbol.Is(d.Err) {
			found = true
			require.Contains(t, d.Message(), `"z"`)
			require.Equal(t, []location.FileLocation{loc}, d.Locations)
		}
	}
	require.True(t, found, "expected an undefined-symbol diagnostic for z")

	// Analysis continues with a safe default so dependents still classify.
	require.Equal(t, graph.ConstantNode, stub.Type)
	require.Equal(t, 0.0, stub.Value)
	require.Equal(t, 0.0, twice.Value)
}

func TestTimeTripletGate(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	b.AddSymbol(symbol.Intern("INITIAL TIME"), b.Const(0))
	b.AddSymbol(symbol.Intern("FINAL TIME"), b.Const(1))
	// TIME STEP depends on a control: not a constant.
	b.AddSymbol(symbol.Intern("TIME STEP"), b.Node(graph.OpControl))

	require.Error(t, New().Analyze(b))
	require.True(t, hasKind(b, diagnostics.KindNonConstantTimeField))
}

func TestTimeNodeFoldsToInitialTime(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 3, 10, 0.5)
	b.AddSymbol(symbol.Intern("now"), b.TimeNode())

	require.NoError(t, New().Analyze(b))

	tn := b.TimeNode()
	require.Equal(t, graph.StaticNode, tn.Type)
	require.Equal(t, graph.ConstantInit, tn.Init)
	require.Equal(t, 1, tn.Level)
	require.Equal(t, 3.0, tn.Value)
}

func TestInitialFoldsWithoutOffset(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)
	init := b.Node(graph.OpInitial, b.Const(5))
	b.AddSymbol(symbol.Intern("frozen"), init)

	require.NoError(t, New().Analyze(b))
	require.Equal(t, graph.ConstantNode, init.Type)
	require.Equal(t, 5.0, init.Value)
}

func TestPulseFoldsAtSamplePoint(t *testing.T) {
	b := graph.NewBuilder(nil, nil)

	// t+ = 0 + 0.5*1 = 0.5, inside (0.2, 1.2): folds to 1.
	withTimeTriplet(b, 0, 10, 1)
	on := b.Node(graph.OpPulse, b.Const(0.2), b.Const(1))
	b.AddSymbol(symbol.Intern("on"), on)
	// (2, 5) does not contain 0.5: folds to 0.
	off := b.Node(graph.OpPulse, b.Const(2), b.Const(3))
	b.AddSymbol(symbol.Intern("off"), off)

	require.NoError(t, New().Analyze(b))
	require.Equal(t, graph.StaticNode, on.Type)
	require.Equal(t, 1.0, on.Value)
	require.Equal(t, 0.0, off.Value)
}

func TestPulseWithDynamicArgumentReportsError(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)
	p := b.Node(graph.OpPulse, b.Node(graph.OpControl), b.Const(1))
	b.AddSymbol(symbol.Intern("p"), p)

	require.Error(t, New().Analyze(b))
	require.True(t, hasKind(b, diagnostics.KindNonConstantArgument))
}

func TestStepAtOrBeforeInitialTimeWarnsAndFolds(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 5, 10, 0.5)
	early := b.Node(graph.OpStep, b.Const(7), b.Const(2))
	b.AddSymbol(symbol.Intern("early"), early)
	late := b.Node(graph.OpStep, b.Const(7), b.Const(8))
	b.AddSymbol(symbol.Intern("late"), late)

	require.NoError(t, New().Analyze(b))
	require.True(t, b.Diagnostics().HasWarnings())
	require.Equal(t, 7.0, early.Value, "step already past: folds to its height")
	require.Equal(t, 0.0, late.Value, "step still ahead: initial value is zero")
}

func TestDelayFixedWarningsAndFold(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 10, 0.5)

	// Constant input: warn, suggest STEP.
	d := b.Node(graph.OpDelayFixed, b.Const(4), b.Const(1), b.Const(2))
	b.AddSymbol(symbol.Intern("d"), d)

	require.NoError(t, New().Analyze(b))
	require.True(t, b.Diagnostics().HasWarnings())
	require.Equal(t, 2.0, d.Value, "DELAY_FIXED folds to its initial value")
	require.Equal(t, graph.ConstantInit, d.Init)
}

func TestApplyLookupFoldsThroughTable(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)

	tb := b.CreateLookupTable()
	tb.Add(0, 0)
	tb.Add(1, 10)
	tb.Add(2, 15)
	tbl, err := tb.Build()
	require.NoError(t, err)

	applied := b.Node(graph.OpApplyLookup, b.Lookup(tbl), b.Const(1.5))
	b.AddSymbol(symbol.Intern("interp"), applied)

	require.NoError(t, New().Analyze(b))
	require.Equal(t, 12.5, applied.Value)
}

func TestApplyLookupOnNonTableReportsError(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)
	n := b.Node(graph.OpApplyLookup, b.Const(1), b.Const(2))
	b.AddSymbol(symbol.Intern("bad"), n)

	require.Error(t, New().Analyze(b))
	require.True(t, hasKind(b, diagnostics.KindLookupOnNonTable))
}

func TestActiveInitialWithConstantActiveReportsError(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)
	n := b.Node(graph.OpActiveInitial, b.Const(3), b.Const(1))
	b.AddSymbol(symbol.Intern("ai"), n)

	require.Error(t, New().Analyze(b))
	require.True(t, hasKind(b, diagnostics.KindActiveInitialConstant))
}

func TestRandomUniformFoldsToSampleInRange(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)
	r := b.Node(graph.OpRandomUniform, b.Const(2), b.Const(3))
	b.AddSymbol(symbol.Intern("noise"), r)

	require.NoError(t, New().Analyze(b))
	require.True(t, r.HasValue)
	require.GreaterOrEqual(t, r.Value, 2.0)
	require.LessOrEqual(t, r.Value, 3.0)
}

func TestCommonSubexpressionSharedAcrossDefinitions(t *testing.T) {
	b := graph.NewBuilder(nil, nil)
	withTimeTriplet(b, 0, 1, 0.1)

	p := b.Const(2)
	q := b.Const(3)
	r := b.Const(4)
	a1 := b.Node(graph.OpMult, b.Node(graph.OpPlus, p, q), r)
	a2 := b.Node(graph.OpMult, r, b.Node(graph.OpPlus, q, p))
	b.AddSymbol(symbol.Intern("a"), a1)
	b.AddSymbol(symbol.Intern("b"), a2)

	require.Same(t, a1, a2, "a = (p+q)*r and b = r*(q+p) must share one node")

	require.NoError(t, New().Analyze(b))
	require.Equal(t, 20.0, a1.Value)
}
