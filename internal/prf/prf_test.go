package prf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/summitto/upsi/internal/prf"
)

func TestSameKeySameSequence(t *testing.T) {
	var key [prf.KeySize]byte
	for i := range key {
		key[i] = byte(i)
	}
	a := prf.NewStream(key)
	b := prf.NewStream(key)

	for i := 0; i < 8; i++ {
		require.Equal(t, a.Next(), b.Next(), "hash %d must match across independently constructed streams", i)
	}
}

func TestDifferentCountersDiffer(t *testing.T) {
	var key [prf.KeySize]byte
	s := prf.NewStream(key)
	h1 := s.Next()
	h2 := s.Next()
	require.NotEqual(t, h1, h2)
}

func TestElementHashDeterministic(t *testing.T) {
	var key [prf.KeySize]byte
	s1 := prf.NewStream(key)
	s2 := prf.NewStream(key)
	require.Equal(t, s1.ElementHash([]byte("100")), s2.ElementHash([]byte("100")))
	require.NotEqual(t, s1.ElementHash([]byte("100")), s1.ElementHash([]byte("200")))
}
