// Package paillier wraps the teacher's roasbeef/go-go-gadget-paillier
// cryptosystem and layers a 2-of-2 threshold decryption scheme over it
// (spec.md §4.1, grounded on original_source/upsi/crypto/threshold_paillier.h).
package paillier

import (
	"crypto/rand"
	"math/big"

	gadget "github.com/roasbeef/go-go-gadget-paillier"

	"github.com/summitto/upsi/internal/errs"
)

// PublicKey is the joint Paillier public key both parties encrypt under.
type PublicKey struct {
	Pub      *gadget.PublicKey
	NSquared *big.Int
}

// NewPublicKey wraps a gadget public key, precomputing N^2.
func NewPublicKey(pub *gadget.PublicKey) *PublicKey {
	nSquared := new(big.Int).Mul(pub.N, pub.N)
	return &PublicKey{Pub: pub, NSquared: nSquared}
}

// KeyShare is one party's additive share d_i of the Paillier private
// exponent; threshold decryption combines both shares' partial decryptions.
type KeyShare struct {
	D *big.Int // this party's share of the decryption exponent
}

// GenerateThresholdKeys produces a joint public key and two additive shares
// of the private exponent, mirroring
// original_source/upsi/crypto/threshold_paillier.h::GenerateThresholdPaillierKeys.
func GenerateThresholdKeys(bits int) (*PublicKey, KeyShare, KeyShare, error) {
	priv, err := gadget.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, KeyShare{}, KeyShare{}, errs.Wrap(errs.Crypto, err)
	}
	pub := NewPublicKey(&priv.PublicKey)

	// lambda = (p-1)(q-1); d = lambda * (lambda^-1 mod N) is ≡ 0 mod lambda
	// and ≡ 1 mod N, so c^d mod N^2 = 1 + m*N. d is split additively mod
	// N*lambda, a multiple of the order of every ciphertext.
	lambda := new(big.Int).Mul(
		new(big.Int).Sub(priv.P, big.NewInt(1)),
		new(big.Int).Sub(priv.Q, big.NewInt(1)),
	)
	lambdaInv := new(big.Int).ModInverse(lambda, pub.Pub.N)
	if lambdaInv == nil {
		return nil, KeyShare{}, KeyShare{}, errs.New(errs.Crypto, "paillier: lambda not invertible mod N")
	}
	d := new(big.Int).Mul(lambda, lambdaInv)
	nLambda := new(big.Int).Mul(pub.Pub.N, lambda)

	d0, err := rand.Int(rand.Reader, nLambda)
	if err != nil {
		return nil, KeyShare{}, KeyShare{}, errs.Wrap(errs.Crypto, err)
	}
	d1 := new(big.Int).Sub(d, d0)
	d1.Mod(d1, nLambda)

	return pub, KeyShare{D: d0}, KeyShare{D: d1}, nil
}

// Ciphertext is a Paillier ciphertext: a single big-integer mod N^2.
type Ciphertext struct {
	C *big.Int
}

// Encrypt encrypts a plaintext in [0, N) under pub.
func Encrypt(pub *PublicKey, m *big.Int) (Ciphertext, error) {
	b, err := gadget.Encrypt(pub.Pub, m.Bytes())
	if err != nil {
		return Ciphertext{}, errs.Wrap(errs.Crypto, err)
	}
	return Ciphertext{C: new(big.Int).SetBytes(b)}, nil
}

// Add homomorphically adds two ciphertexts' plaintexts.
func Add(pub *PublicKey, a, b Ciphertext) Ciphertext {
	c := new(big.Int).Mul(a.C, b.C)
	c.Mod(c, pub.NSquared)
	return Ciphertext{C: c}
}

// Multiply scales a ciphertext's plaintext by a public scalar k.
func Multiply(pub *PublicKey, ct Ciphertext, k *big.Int) Ciphertext {
	c := new(big.Int).Exp(ct.C, k, pub.NSquared)
	return Ciphertext{C: c}
}

// ReRand rerandomizes ct to an independent encryption of the same plaintext.
func ReRand(pub *PublicKey, ct Ciphertext) (Ciphertext, error) {
	r, err := rand.Int(rand.Reader, pub.Pub.N)
	if err != nil {
		return Ciphertext{}, errs.Wrap(errs.Crypto, err)
	}
	if r.Sign() == 0 {
		r.SetInt64(1)
	}
	rn := new(big.Int).Exp(r, pub.Pub.N, pub.NSquared)
	c := new(big.Int).Mul(ct.C, rn)
	c.Mod(c, pub.NSquared)
	return Ciphertext{C: c}, nil
}

// PartialDecrypt consumes one party's key share: c^(d_i) mod N^2.
func PartialDecrypt(pub *PublicKey, share KeyShare, ct Ciphertext) Ciphertext {
	c := new(big.Int).Exp(ct.C, share.D, pub.NSquared)
	return Ciphertext{C: c}
}

// Decrypt combines the other party's key share with an already partially
// decrypted ciphertext to recover the plaintext, following the L-function
// convention of Paillier decryption: L(u) = (u-1)/N.
func Decrypt(pub *PublicKey, share KeyShare, partial Ciphertext, ct Ciphertext) *big.Int {
	mine := PartialDecrypt(pub, share, ct)
	combined := new(big.Int).Mul(mine.C, partial.C)
	combined.Mod(combined, pub.NSquared)

	l := new(big.Int).Sub(combined, big.NewInt(1))
	l.Div(l, pub.Pub.N)
	return l.Mod(l, pub.Pub.N)
}

// Bytes gives the big-endian unpadded wire form of a ciphertext (spec.md §6).
func (c Ciphertext) Bytes() []byte { return c.C.Bytes() }

// CiphertextFromBytes parses a big-endian unpadded Paillier ciphertext.
func CiphertextFromBytes(b []byte) Ciphertext {
	return Ciphertext{C: new(big.Int).SetBytes(b)}
}

// ShiftNegative encodes a possibly-negative payload value into Paillier's
// plaintext space as N - |v| for v < 0, per the canonical deletion sign
// convention (spec.md §9, original_source/upsi/deletion-psi/party_zero.cc).
func ShiftNegative(pub *PublicKey, v *big.Int) *big.Int {
	if v.Sign() >= 0 {
		return new(big.Int).Set(v)
	}
	abs := new(big.Int).Abs(v)
	return new(big.Int).Sub(pub.Pub.N, abs)
}

// UnshiftSigned interprets a decrypted plaintext as signed, treating values
// in the upper half of [0, N) as negative (N - value), mirroring the modular
// wraparound handling in original_source/upsi/deletion-psi/party_zero.cc's
// SecondPhase (`if decrypted_x >= mod { decrypted_x -= mod }`).
func UnshiftSigned(pub *PublicKey, v *big.Int) *big.Int {
	half := new(big.Int).Rsh(pub.Pub.N, 1)
	if v.Cmp(half) > 0 {
		return new(big.Int).Sub(v, pub.Pub.N)
	}
	return new(big.Int).Set(v)
}
