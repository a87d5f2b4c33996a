package gc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/summitto/upsi/internal/gc"
)

func TestEqualityCircuitDetectsMatch(t *testing.T) {
	g := gc.NewGarbler()
	c := g.Garble(8)

	a := uint64(200)
	b := uint64(200)

	garblerLabels := c.GarblerLabels(a)
	evalLabels := make([]gc.Label, c.BitWidth)
	bBits := gc.BitsFromUint64(b, c.BitWidth)
	for i, bit := range bBits {
		zero, one := c.EvaluatorWirePair(i)
		if bit == 1 {
			evalLabels[i] = one
		} else {
			evalLabels[i] = zero
		}
	}

	out, err := gc.Evaluate(c, garblerLabels, evalLabels)
	require.NoError(t, err)
	require.True(t, c.Decodes(out))
}

func TestEqualityCircuitDetectsMismatch(t *testing.T) {
	g := gc.NewGarbler()
	c := g.Garble(8)

	a := uint64(5)
	b := uint64(9)

	garblerLabels := c.GarblerLabels(a)
	evalLabels := make([]gc.Label, c.BitWidth)
	bBits := gc.BitsFromUint64(b, c.BitWidth)
	for i, bit := range bBits {
		zero, one := c.EvaluatorWirePair(i)
		if bit == 1 {
			evalLabels[i] = one
		} else {
			evalLabels[i] = zero
		}
	}

	out, err := gc.Evaluate(c, garblerLabels, evalLabels)
	require.NoError(t, err)
	require.False(t, c.Decodes(out))
}
