package diagnostics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sdograph/internal/location"
)

func TestHasErrorsAndWarnings(t *testing.T) {
	b := New(nil)
	require.False(t, b.HasErrors())
	require.False(t, b.HasWarnings())

	b.Warnf(KindDelayConstantInput, nil)
	require.False(t, b.HasErrors())
	require.True(t, b.HasWarnings())

	b.Errorf(KindUndefinedSymbol, nil, "z")
	require.True(t, b.HasErrors())
}

func TestReportFormat(t *testing.T) {
	b := New(nil)
	loc := []location.FileLocation{location.In("a.mdl", location.Span(2, 1, 2, 5))}
	b.Errorf(KindUndefinedSymbol, loc, "z")

	report := b.ReportString(true, true)
	require.True(t, strings.HasPrefix(report, "error: use of undefined symbol \"z\""))
	require.Contains(t, report, "at a.mdl:2.1-2.5")
}

func TestFatalNilWithoutErrors(t *testing.T) {
	b := New(nil)
	b.Warnf(KindDelayConstantInput, nil)
	require.Nil(t, b.Fatal())
}

func TestFatalAggregatesErrors(t *testing.T) {
	b := New(nil)
	b.Errorf(KindUndefinedSymbol, nil, "x")
	b.Errorf(KindUndefinedSymbol, nil, "y")

	err := b.Fatal()
	require.Error(t, err)
	fe, ok := err.(*FatalError)
	require.True(t, ok)
	require.Contains(t, fe.Report, "\"x\"")
	require.Contains(t, fe.Report, "\"y\"")
}

func TestKindIsMatching(t *testing.T) {
	b := New(nil)
	b.Errorf(KindUndefinedSymbol, nil, "z")
	require.True(t, KindUndefinedSymbol.Is(b.Errors()[0].Err))
	require.False(t, KindLookupOnNonTable.Is(b.Errors()[0].Err))
}
