package paillier_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/summitto/upsi/internal/paillier"
)

// modulus bits kept small for test speed; production configs use 1536+ per
// original_source/upsi/params.h defaults, see config.Default().
const testBits = 256

func TestThresholdEncryptDecryptRoundTrip(t *testing.T) {
	pub, share0, share1, err := paillier.GenerateThresholdKeys(testBits)
	require.NoError(t, err)

	m := big.NewInt(42)
	ct, err := paillier.Encrypt(pub, m)
	require.NoError(t, err)

	partial := paillier.PartialDecrypt(pub, share0, ct)
	recovered := paillier.Decrypt(pub, share1, partial, ct)
	require.Equal(t, 0, m.Cmp(recovered))
}

func TestAddIsHomomorphic(t *testing.T) {
	pub, share0, share1, err := paillier.GenerateThresholdKeys(testBits)
	require.NoError(t, err)

	a := big.NewInt(11)
	b := big.NewInt(31)
	ctA, err := paillier.Encrypt(pub, a)
	require.NoError(t, err)
	ctB, err := paillier.Encrypt(pub, b)
	require.NoError(t, err)

	sum := paillier.Add(pub, ctA, ctB)
	partial := paillier.PartialDecrypt(pub, share0, sum)
	recovered := paillier.Decrypt(pub, share1, partial, sum)
	require.Equal(t, int64(42), recovered.Int64())
}

func TestShiftUnshiftNegativeRoundTrip(t *testing.T) {
	pub, _, _, err := paillier.GenerateThresholdKeys(testBits)
	require.NoError(t, err)

	v := big.NewInt(-5)
	shifted := paillier.ShiftNegative(pub, v)
	require.Equal(t, 1, shifted.Sign())

	unshifted := paillier.UnshiftSigned(pub, shifted)
	require.Equal(t, 0, v.Cmp(unshifted))
}

func TestReRandChangesCiphertextNotPlaintext(t *testing.T) {
	pub, share0, share1, err := paillier.GenerateThresholdKeys(testBits)
	require.NoError(t, err)

	m := big.NewInt(7)
	ct, err := paillier.Encrypt(pub, m)
	require.NoError(t, err)
	reCt, err := paillier.ReRand(pub, ct)
	require.NoError(t, err)
	require.NotEqual(t, ct.C.String(), reCt.C.String())

	partial := paillier.PartialDecrypt(pub, share0, reCt)
	recovered := paillier.Decrypt(pub, share1, partial, reCt)
	require.Equal(t, int64(7), recovered.Int64())
}
