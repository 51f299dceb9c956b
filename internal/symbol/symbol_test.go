package symbol

import (
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternIdentity(t *testing.T) {
	a := Intern("INITIAL TIME")
	b := Intern("INITIAL TIME")
	require.Equal(t, a, b)
	require.Equal(t, a.Hash(), b.Hash())
}

func TestInternDistinct(t *testing.T) {
	a := Intern("x")
	b := Intern("y")
	require.NotEqual(t, a, b)
}

func TestHashAgreesWithString(t *testing.T) {
	a := Intern("rate")
	b := Intern("rate")
	require.Equal(t, a.String(), b.String())
	require.Equal(t, a.Hash(), b.Hash())

	h := fnv.New64a()
	_, _ = h.Write([]byte("rate"))
	require.Equal(t, h.Sum64(), a.Hash(), "Symbol hash must equal the FNV-64a hash of its text")
}
