package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/summitto/upsi/internal/errs"
)

func TestIsMatchesKind(t *testing.T) {
	err := errs.New(errs.Invariant, "stash overflow")
	require.True(t, errs.Is(err, errs.Invariant))
	require.False(t, errs.Is(err, errs.Crypto))
	require.Equal(t, errs.Invariant, errs.KindOf(err))
}

func TestWrapPreservesUnderlying(t *testing.T) {
	base := errors.New("connection reset")
	err := errs.Wrap(errs.Transport, base)
	require.True(t, errs.Is(err, errs.Transport))
	require.ErrorIs(t, err, base)
}

func TestWrapNilIsNil(t *testing.T) {
	require.Nil(t, errs.Wrap(errs.Internal, nil))
}
