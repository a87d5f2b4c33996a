// Package ot implements 1-of-2 oblivious transfer over 128-bit blocks
// (spec.md §4.1, §4.6), used by the deletion-capable variant to transfer a
// Paillier-encrypted additive share selected by a garbled-circuit equality
// bit without revealing the selector to the sender.
//
// The base OT is the "simplest OT" construction (Chou-Orlandi), built on the
// same ristretto255 group already wired for ElGamal in internal/ecc, since
// the teacher's own OT (ote/manager.go) is a cgo binding to a native
// softspoken library and no pack repo ships a pure-Go OT primitive
// (see DESIGN.md).
package ot

import (
	"golang.org/x/crypto/hkdf"

	"github.com/summitto/upsi/internal/ecc"
	"github.com/summitto/upsi/internal/errs"

	"crypto/sha256"
	"io"
)

// Block is the fixed-width OT payload, sized to carry a Paillier ciphertext
// chunk or share (spec.md §4.1 "1-of-2 OT over 128-bit blocks").
type Block [16]byte

// SenderState holds the sender's half of one OT instance between the two
// message round-trips.
type SenderState struct {
	y ecc.Scalar
	S ecc.Point
}

// NewSender draws the sender's ephemeral key and returns the public value S
// to send to the receiver as the first OT message.
func NewSender() (*SenderState, ecc.Point) {
	var y ecc.Scalar
	y.Rand()
	var s ecc.Point
	s.ScalarMultBase(&y)
	return &SenderState{y: y, S: s}, s
}

// ReceiverState holds the receiver's half of one OT instance between the two
// message round-trips.
type ReceiverState struct {
	x     ecc.Scalar
	Choice byte
}

// Choose draws the receiver's ephemeral key and blinds its selection bit
// against the sender's public value S, returning T to send back to the
// sender as the second OT message.
func Choose(s ecc.Point, choice byte) (*ReceiverState, ecc.Point) {
	var x ecc.Scalar
	x.Rand()
	var gx, t ecc.Point
	gx.ScalarMultBase(&x)
	if choice == 0 {
		t = gx
	} else {
		t.Add(&s, &gx)
	}
	return &ReceiverState{x: x, Choice: choice}, t
}

func deriveKey(p ecc.Point, label byte) Block {
	b := p.Bytes()
	b = append(b, label)
	r := hkdf.New(sha256.New, b, nil, []byte("upsi-ot-block"))
	var out Block
	if _, err := io.ReadFull(r, out[:]); err != nil {
		panic("ot: hkdf read failed: " + err.Error())
	}
	return out
}

func xorBlock(a, b Block) Block {
	var out Block
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// Send computes the sender's two ciphertexts given the receiver's T value
// and the two candidate messages, to be returned as the OT response.
func (st *SenderState) Send(t ecc.Point, m0, m1 Block) (c0, c1 Block) {
	var k0Point, k1Point, diff ecc.Point
	k0Point.ScalarMult(&t, &st.y)

	diff.Sub(&t, &st.S)
	k1Point.ScalarMult(&diff, &st.y)

	k0 := deriveKey(k0Point, 0)
	k1 := deriveKey(k1Point, 1)
	return xorBlock(k0, m0), xorBlock(k1, m1)
}

// Receive decrypts the chosen ciphertext using the receiver's ephemeral key.
func (rs *ReceiverState) Receive(s ecc.Point, c0, c1 Block) (Block, error) {
	var sx ecc.Point
	sx.ScalarMult(&s, &rs.x)
	k := deriveKey(sx, rs.Choice)
	if rs.Choice == 0 {
		return xorBlock(k, c0), nil
	}
	if rs.Choice == 1 {
		return xorBlock(k, c1), nil
	}
	return Block{}, errs.New(errs.InvalidArgument, "ot: choice bit must be 0 or 1")
}
