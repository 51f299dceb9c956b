package adapters

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVopRefResolvesRelativeToModelDir(t *testing.T) {
	ref := VopRef{Path: "controls.vop"}
	require.Equal(t, "models/controls.vop", ref.ResolveAgainst("models"))
}

func TestVopRefLeavesAbsolutePathAlone(t *testing.T) {
	ref := VopRef{Path: "/etc/controls.vop"}
	require.Equal(t, "/etc/controls.vop", ref.ResolveAgainst("models"))
}

func TestDirectionString(t *testing.T) {
	require.Equal(t, "MINIMIZE", Minimize.String())
	require.Equal(t, "MAXIMIZE", Maximize.String())
}

func TestCoerceLiteralAcceptsMixedTokenTypes(t *testing.T) {
	v, err := CoerceLiteral("3.5")
	require.NoError(t, err)
	require.Equal(t, 3.5, v)

	v, err = CoerceLiteral(42)
	require.NoError(t, err)
	require.Equal(t, 42.0, v)
}

func TestCoerceLiteralRejectsUnconvertible(t *testing.T) {
	_, err := CoerceLiteral(struct{}{})
	require.Error(t, err)
}
