// Package ecc is the thin, uniform crypto-primitives adapter for the
// elliptic-curve half of the stack (spec.md §4.1): a fixed prime-order group
// (ristretto255, via the teacher's bwesterb/go-ristretto dependency) and a
// rerandomizable, multiplicatively-homomorphic ElGamal scheme with a 2-of-2
// threshold decryption key.
package ecc

import (
	"crypto/rand"
	"math/big"

	"github.com/bwesterb/go-ristretto"

	"github.com/summitto/upsi/internal/errs"
)

// MaxBSGSDefault is used when a party does not otherwise configure MAX_SUM.
const MaxBSGSDefault = 1 << 20

// Scalar and Point are exported aliases so callers outside this package never
// import go-ristretto directly — every curve operation goes through ecc.
type Scalar = ristretto.Scalar
type Point = ristretto.Point

// PrivateKeyShare is one party's share x_i of the joint ElGamal secret key;
// the joint public key is g^(x0+x1).
type PrivateKeyShare struct {
	X Scalar
}

// PublicKeyShare is g^(x_i), exchanged during key setup.
type PublicKeyShare struct {
	Y Point
}

// JointPublicKey is the combined public key both parties encrypt under.
type JointPublicKey struct {
	Y Point
}

// Ciphertext is a standard exponential ElGamal pair (g^r, Y^r * M), written
// additively since ristretto's group law is point addition.
type Ciphertext struct {
	C1 Point
	C2 Point
}

// Generator returns the fixed base point of the group.
func Generator() Point {
	var g Point
	g.SetBase()
	return g
}

// Identity returns the group identity (point at infinity), usable as the
// plaintext of an Enc(0) ciphertext when a party has nothing to aggregate.
func Identity() Point {
	var p Point
	p.SetZero()
	return p
}

// GenerateKeyShare draws a fresh random scalar share and its public component.
func GenerateKeyShare() (PrivateKeyShare, PublicKeyShare) {
	var x Scalar
	x.Rand()
	var y Point
	y.ScalarMultBase(&x)
	return PrivateKeyShare{X: x}, PublicKeyShare{Y: y}
}

// CombinePublicKeys forms the shared public key Y0 + Y1 from both parties'
// shares (original_source/upsi/party_zero_impl.cc::ClientExchange).
func CombinePublicKeys(a, b PublicKeyShare) JointPublicKey {
	var y Point
	y.Add(&a.Y, &b.Y)
	return JointPublicKey{Y: y}
}

// HashToPoint maps arbitrary element bytes to a uniform curve point, used to
// embed a Element as an ElGamal plaintext for zero-detection style equality.
func HashToPoint(element []byte) Point {
	var p Point
	p.DeriveDalek(element)
	return p
}

// ScalarFromBytes decodes a little-endian scalar, reducing mod group order.
func ScalarFromBytes(b []byte) Scalar {
	var s Scalar
	var buf [64]byte
	copy(buf[:], b)
	s.SetReduced(&buf)
	return s
}

// randomScalar draws r uniformly from the scalar field.
func randomScalar() Scalar {
	var r Scalar
	r.Rand()
	return r
}

// Encrypt produces a fresh ElGamal ciphertext of plaintext point m under pub.
func Encrypt(pub JointPublicKey, m Point) Ciphertext {
	r := randomScalar()
	var c1, c2, yr Point
	c1.ScalarMultBase(&r)
	yr.ScalarMult(&pub.Y, &r)
	c2.Add(&yr, &m)
	return Ciphertext{C1: c1, C2: c2}
}

// Invert negates the plaintext of ct: Invert(Enc(m)) = Enc(-m).
func Invert(ct Ciphertext) Ciphertext {
	var c1, c2 Point
	c1.Neg(&ct.C1)
	c2.Neg(&ct.C2)
	return Ciphertext{C1: c1, C2: c2}
}

// Mul homomorphically adds two plaintexts: Mul(Enc(a), Enc(b)) = Enc(a+b).
func Mul(a, b Ciphertext) Ciphertext {
	var c1, c2 Point
	c1.Add(&a.C1, &b.C1)
	c2.Add(&a.C2, &b.C2)
	return Ciphertext{C1: c1, C2: c2}
}

// Exp scales the plaintext by a public scalar: Exp(Enc(m), k) = Enc(k*m), and
// additionally rerandomizes — this is the "mask with alpha" step of §4.4 that
// both zeroes a true zero-match and uniformly randomizes anything else.
func Exp(ct Ciphertext, k Scalar) Ciphertext {
	var c1, c2 Point
	c1.ScalarMult(&ct.C1, &k)
	c2.ScalarMult(&ct.C2, &k)
	return Ciphertext{C1: c1, C2: c2}
}

// ReRandomize replaces ct with a fresh encryption of the same plaintext,
// blinding the randomness used at Encrypt time.
func ReRandomize(pub JointPublicKey, ct Ciphertext) Ciphertext {
	r := randomScalar()
	var c1, c2, yr Point
	c1.ScalarMultBase(&r)
	c1.Add(&c1, &ct.C1)
	yr.ScalarMult(&pub.Y, &r)
	c2.Add(&yr, &ct.C2)
	return Ciphertext{C1: c1, C2: c2}
}

// PartialCiphertext is the result of consuming one share of the joint key:
// the C1 component raised to that share's secret, the C2 left untouched.
type PartialCiphertext struct {
	D  Point // share_x * C1
	C2 Point
}

// PartialDecrypt consumes one party's key share, producing the D-component
// the other party needs to finish the decryption.
func PartialDecrypt(share PrivateKeyShare, ct Ciphertext) PartialCiphertext {
	var d Point
	d.ScalarMult(&ct.C1, &share.X)
	return PartialCiphertext{D: d, C2: ct.C2}
}

// Decrypt combines the other party's key share with an already-partially-
// decrypted ciphertext to recover the plaintext point M = C2 - (D0 + D1).
func Decrypt(share PrivateKeyShare, partial PartialCiphertext, ct Ciphertext) Point {
	var d1, sum, m Point
	d1.ScalarMult(&ct.C1, &share.X)
	sum.Add(&partial.D, &d1)
	m.Sub(&partial.C2, &sum)
	return m
}

// IsIdentity reports whether p is the group identity (point at infinity),
// the "intersection hit" signal of §4.4.
func IsIdentity(p Point) bool {
	var zero Point
	zero.SetZero()
	return p.Equals(&zero)
}

// DecryptExp recovers a small non-negative integer plaintext m from g^m via
// baby-step/giant-step, bounded by maxSum (MAX_SUM). Returns a Crypto error
// if no such m ≤ maxSum exists.
func DecryptExp(m Point, maxSum int64) (int64, error) {
	if maxSum <= 0 {
		maxSum = MaxBSGSDefault
	}
	step := int64(1)
	for step*step < maxSum {
		step++
	}

	// baby steps: table of g^j for j in [0, step)
	table := make(map[string]int64, step)
	var acc Point
	acc.SetZero()
	g := Generator()
	for j := int64(0); j < step; j++ {
		table[pointKey(acc)] = j
		acc.Add(&acc, &g)
	}

	// giant steps: m - j = i*step  =>  m = i*step + j
	var giantStep Point
	var stepScalar Scalar
	stepScalar.SetBigInt(big.NewInt(step))
	giantStep.ScalarMultBase(&stepScalar)
	var negGiant Point
	negGiant.Neg(&giantStep)

	var cur Point
	cur = m
	for i := int64(0); i*step <= maxSum; i++ {
		if j, ok := table[pointKey(cur)]; ok {
			candidate := i*step + j
			if candidate <= maxSum {
				return candidate, nil
			}
		}
		cur.Add(&cur, &negGiant)
	}
	return 0, errs.New(errs.Crypto, "DecryptExp: BSGS failed to recover sum within MAX_SUM")
}

func pointKey(p Point) string {
	b := p.Bytes()
	return string(b)
}

// Bytes and SetBytes give the wire-form for a ciphertext: two compressed EC
// points, per spec.md §6 "Ciphertext wire forms".
func (c Ciphertext) Bytes() []byte {
	out := make([]byte, 0, 64)
	out = append(out, c.C1.Bytes()...)
	out = append(out, c.C2.Bytes()...)
	return out
}

// CiphertextFromBytes parses the 64-byte compressed wire form of a Ciphertext.
func CiphertextFromBytes(b []byte) (Ciphertext, error) {
	if len(b) != 64 {
		return Ciphertext{}, errs.Newf(errs.InvalidArgument, "ecc: ciphertext must be 64 bytes, got %d", len(b))
	}
	var c1, c2 Point
	var buf1, buf2 [32]byte
	copy(buf1[:], b[:32])
	copy(buf2[:], b[32:])
	if _, ok := c1.SetBytes(&buf1); !ok {
		return Ciphertext{}, errs.New(errs.Crypto, "ecc: invalid C1 encoding")
	}
	if _, ok := c2.SetBytes(&buf2); !ok {
		return Ciphertext{}, errs.New(errs.Crypto, "ecc: invalid C2 encoding")
	}
	return Ciphertext{C1: c1, C2: c2}, nil
}

// RandomScalarFromReader draws a uniform scalar from 64 bytes of crypto/rand
// output, returning a Crypto error if that read fails.
func RandomScalarFromReader() (Scalar, error) {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return Scalar{}, errs.Wrap(errs.Crypto, err)
	}
	var s Scalar
	s.SetReduced(&buf)
	return s, nil
}
