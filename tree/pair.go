// Plaintext/encrypted tree pair (spec.md §4.3), grounded on
// original_source/upsi/party_zero_impl.cc::ClientPreProcessing/ClientExchange.
package tree

import (
	"crypto/rand"
	"math/big"

	"github.com/summitto/upsi/internal/ecc"
	"github.com/summitto/upsi/internal/errs"
	"github.com/summitto/upsi/internal/paillier"
	"github.com/summitto/upsi/internal/prf"
)

// ElementKind tags what an EncryptedContent actually carries, the "small
// closed enumeration of bucket content kinds" from spec.md §9.
type ElementKind int

const (
	// KindElGamalOnly carries no payload (PSI/CA).
	KindElGamalOnly ElementKind = iota
	// KindElGamalElGamal carries an ElGamal payload alongside (SUM).
	KindElGamalElGamal
	// KindElGamalPaillier carries a Paillier payload under ElGamal element (SS).
	KindElGamalPaillier
	// KindPaillierOnly is the deletion variant's element+payload encoding.
	KindPaillierOnly
)

// EncryptedContent is the opaque per-entry payload stored in an encrypted
// tree mirror: an ElGamal element ciphertext plus, depending on Kind, an
// ElGamal or Paillier payload ciphertext (or a Paillier-only pair).
type EncryptedContent struct {
	Kind ElementKind

	ElementCT ecc.Ciphertext // valid for KindElGamalOnly/ElGamalElGamal/ElGamalPaillier

	ElGamalPayload  ecc.Ciphertext      // valid for KindElGamalElGamal
	PaillierPayload paillier.Ciphertext // valid for KindElGamalPaillier/PaillierOnly

	PaillierElement paillier.Ciphertext // valid for KindPaillierOnly
}

// PlaintextContent is the owner-side plaintext entry: the element's raw
// bytes plus an integer payload (unused for PSI/CA, the SUM value, the SS
// value, or the signed addition/deletion value for the deletion variant).
type PlaintextContent struct {
	Element []byte
	Payload int64
}

// Pair is one party's view of the protocol state: its own plaintext tree and
// its peer's encrypted mirror, synchronized via a shared hash stream.
type Pair struct {
	My    *Tree
	Other *Tree

	Stream *prf.Stream
}

// NewPair constructs an empty tree pair with the given bucket parameters.
func NewPair(nodeSize, stashSize int, stream *prf.Stream) *Pair {
	return &Pair{My: New(nodeSize, stashSize), Other: New(nodeSize, stashSize), Stream: stream}
}

// padElementPrefix marks bytes reserved for pad elements, disjoint from the
// real element domain (spec.md §4.4 "Pad elements ... disjoint from the
// element domain"). Real elements are expected never to use this prefix.
var padElementPrefix = []byte{0xFF, 0xFF, 0xFF, 0xFF}

func randomPadElement() []byte {
	buf := make([]byte, 28)
	if _, err := rand.Read(buf); err != nil {
		panic("tree: failed to draw pad element randomness: " + err.Error())
	}
	return append(append([]byte{}, padElementPrefix...), buf...)
}

// IsPadElement reports whether element bytes were drawn from the padding
// domain rather than the real element domain.
func IsPadElement(element []byte) bool {
	if len(element) < len(padElementPrefix) {
		return false
	}
	for i, b := range padElementPrefix {
		if element[i] != b {
			return false
		}
	}
	return true
}

// Update inserts a plaintext batch into My, then encrypts the changed
// buckets under pub (and, for the Paillier-payload kinds, paillierPub) for
// transmission as a TreeUpdates delta, padding every changed bucket's unused
// slots with encryptions of a random pad element so the peer only learns an
// upper bound on occupancy (spec.md §4.3). paillierPub may be nil for kinds
// that carry no Paillier payload.
func (p *Pair) Update(batch []PlaintextContent, pub ecc.JointPublicKey, paillierPub *paillier.PublicKey, kind ElementKind) (changedIdx []int, hashes [][prf.HashSize]byte, updates map[int][]Entry, err error) {
	contents := make([]any, len(batch))
	for i, c := range batch {
		contents[i] = c
	}
	changedIdx, hashes, err = p.My.Insert(contents, p.Stream)
	if err != nil {
		return nil, nil, nil, err
	}

	updates = make(map[int][]Entry, len(changedIdx))
	for _, idx := range changedIdx {
		bucket := p.My.Buckets[idx]
		cap := p.My.capacity(idx)
		encrypted := make([]Entry, 0, cap)
		for _, e := range bucket {
			pc := e.Content.(PlaintextContent)
			ec, encErr := encryptContent(pub, paillierPub, pc, kind)
			if encErr != nil {
				return nil, nil, nil, encErr
			}
			encrypted = append(encrypted, Entry{Hash: e.Hash, Content: ec})
		}
		for len(encrypted) < cap {
			padHash := p.Stream.Next()
			pc := PlaintextContent{Element: randomPadElement()}
			ec, encErr := encryptContent(pub, paillierPub, pc, kind)
			if encErr != nil {
				return nil, nil, nil, encErr
			}
			encrypted = append(encrypted, Entry{Hash: padHash, Content: ec})
		}
		updates[idx] = encrypted
	}
	return changedIdx, hashes, updates, nil
}

func encryptContent(pub ecc.JointPublicKey, paillierPub *paillier.PublicKey, pc PlaintextContent, kind ElementKind) (EncryptedContent, error) {
	elementPoint := ecc.HashToPoint(pc.Element)
	ec := EncryptedContent{Kind: kind, ElementCT: ecc.Encrypt(pub, elementPoint)}
	switch kind {
	case KindElGamalElGamal:
		if pc.Payload < 0 {
			return EncryptedContent{}, errs.New(errs.InvalidArgument, "tree: negative payload under ElGamal-only encoding")
		}
		var payloadPoint ecc.Point
		scalar := ecc.ScalarFromBytes(int64Bytes(pc.Payload))
		payloadPoint.ScalarMultBase(&scalar)
		ec.ElGamalPayload = ecc.Encrypt(pub, payloadPoint)
	case KindElGamalPaillier:
		if paillierPub == nil {
			return EncryptedContent{}, errs.New(errs.Internal, "tree: KindElGamalPaillier requires a Paillier public key")
		}
		ct, encErr := paillier.Encrypt(paillierPub, big.NewInt(pc.Payload))
		if encErr != nil {
			return EncryptedContent{}, encErr
		}
		ec.PaillierPayload = ct
	}
	return ec, nil
}

func int64Bytes(v int64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

// ApplyDelta applies a peer-sent TreeUpdates delta to Other, keeping both
// trees at the same depth (spec.md §4.3 "receiver applies replace_nodes").
func (p *Pair) ApplyDelta(hashes [][prf.HashSize]byte, buckets map[int][]Entry) error {
	return p.Other.ReplaceNodes(hashes, buckets, len(hashes))
}
