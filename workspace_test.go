package tdcore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeGroupEmpty(t *testing.T) {
	g, err := canonicalizeGroup("")
	require.NoError(t, err)
	require.Equal(t, "", g)
}

func TestCanonicalizeGroupDot(t *testing.T) {
	g, err := canonicalizeGroup(".")
	require.NoError(t, err)
	require.Equal(t, "", g)
}

func TestCanonicalizeGroupTilde(t *testing.T) {
	g, err := canonicalizeGroup("~/sensors")
	require.NoError(t, err)
	require.Equal(t, "sensors", g)
}

func TestCanonicalizeGroupNested(t *testing.T) {
	g, err := canonicalizeGroup("./sensors/../sensors/raw")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("sensors", "raw"), g)
}

func TestCanonicalizeGroupEscapeRejected(t *testing.T) {
	_, err := canonicalizeGroup("../outside")
	require.Error(t, err)
	require.True(t, IsKind(err, ErrInvalidArgument))
}

func TestArrayPathRequiresName(t *testing.T) {
	_, err := ArrayPath("/workspace", "sensors", "")
	require.Error(t, err)
	require.True(t, IsKind(err, ErrInvalidArgument))
}

func TestArrayPathJoinsGroupAndName(t *testing.T) {
	p, err := ArrayPath("/workspace", "sensors/raw", "temps")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/workspace", "sensors", "raw", "temps"), p)
}

func TestArrayPathPropagatesEscapeError(t *testing.T) {
	_, err := ArrayPath("/workspace", "../escape", "temps")
	require.Error(t, err)
	require.True(t, IsKind(err, ErrInvalidArgument))
}
