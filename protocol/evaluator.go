// Package protocol implements the per-functionality day state machines
// (spec.md §4.5) driving the candidate evaluator (§4.4) over the bucketed
// oblivious tree pair, grounded on
// original_source/upsi/party_zero_impl.cc/party_one_impl.cc.
package protocol

import (
	"crypto/rand"
	"sort"

	"github.com/summitto/upsi/internal/ecc"
	"github.com/summitto/upsi/internal/errs"
	"github.com/summitto/upsi/internal/paillier"
	"github.com/summitto/upsi/tree"
	"github.com/summitto/upsi/wire"
)

// Candidate is a transient per-message homomorphic-difference ciphertext,
// carrying no identity beyond its position in the randomized outgoing
// sequence (spec.md §3 "Candidate").
type Candidate struct {
	CT ecc.Ciphertext

	HasPayload bool
	Payload    ecc.Ciphertext // valid only when the functionality couples an ElGamal payload (PSI/SUM)

	HasPaillierPayload bool
	PaillierPayload     paillier.Ciphertext // valid only for SS
}

// BuildCandidates implements spec.md §4.4 steps 1-4: for each new element,
// fetch its probe path in the peer's mirrored tree, homomorphically subtract
// the encrypted element from every ciphertext on the path, rerandomize, and
// attach whatever payload this functionality carries.
func BuildCandidates(pub ecc.JointPublicKey, paillierPub *paillier.PublicKey, other *tree.Tree, elements [][]byte, elementHash func([]byte) [32]byte, fn Functionality) ([]Candidate, error) {
	var out []Candidate
	for _, elem := range elements {
		h := elementHash(elem)
		path := other.Path(h)
		xPoint := ecc.HashToPoint(elem)
		X := ecc.Encrypt(pub, xPoint)
		negX := ecc.Invert(X)
		for _, entry := range path {
			ec, ok := entry.Content.(tree.EncryptedContent)
			if !ok {
				return nil, errs.New(errs.Internal, "protocol: probe path entry is not encrypted content")
			}
			c := ecc.Mul(ec.ElementCT, negX)
			c = ecc.ReRandomize(pub, c)
			cand := Candidate{CT: c}

			switch fn {
			case PSI:
				cand.Payload = ecc.ReRandomize(pub, X)
				cand.HasPayload = true
			case SUM:
				if ec.Kind == tree.KindElGamalElGamal {
					cand.Payload = ecc.ReRandomize(pub, ec.ElGamalPayload)
					cand.HasPayload = true
				}
			case SS:
				if ec.Kind == tree.KindElGamalPaillier {
					rerand, err := paillier.ReRand(paillierPub, ec.PaillierPayload)
					if err != nil {
						return nil, err
					}
					cand.PaillierPayload = rerand
					cand.HasPaillierPayload = true
				}
			}
			out = append(out, cand)
		}
	}
	return out, nil
}

// ShuffleAndMask implements spec.md §4.4 steps 5-7: combine two candidate
// lists (the responder's own plus the initiator's received ones), shuffle
// with a CSPRNG permutation, mask each element ciphertext with an
// independent scalar exponent, and partially decrypt with share. Only PSI's
// coupled payload is partially decrypted here too, since PSI finishes the
// payload recovery in MessageII; SUM's payload is forwarded for homomorphic
// accumulation and SS's Paillier payload is forwarded for the III round, so
// neither is touched by the ElGamal key share.
func ShuffleAndMask(share ecc.PrivateKeyShare, candidates []Candidate, fn Functionality) ([]wire.MaskedCandidate, error) {
	perm, err := cryptoPermutation(len(candidates))
	if err != nil {
		return nil, err
	}
	shuffled := make([]Candidate, len(candidates))
	for i, p := range perm {
		shuffled[i] = candidates[p]
	}

	out := make([]wire.MaskedCandidate, len(shuffled))
	for i, c := range shuffled {
		var alpha ecc.Scalar
		alpha.Rand()
		masked := ecc.Exp(c.CT, alpha)
		partial := ecc.PartialDecrypt(share, masked)

		mc := wire.MaskedCandidate{CT: masked, D: partial.D}
		if c.HasPayload {
			mc.HasPayload = true
			mc.PayloadCT = c.Payload
			if fn == PSI {
				payloadPartial := ecc.PartialDecrypt(share, c.Payload)
				mc.PayloadD = payloadPartial.D
			}
		}
		if c.HasPaillierPayload {
			mc.HasPaillierPayload = true
			mc.PaillierPayloadCT = c.PaillierPayload
		}
		out[i] = mc
	}
	return out, nil
}

func cryptoPermutation(n int) ([]int, error) {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		jBig, err := randUint64(uint64(i) + 1)
		if err != nil {
			return nil, err
		}
		j := int(jBig)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm, nil
}

func randUint64(bound uint64) (uint64, error) {
	if bound == 0 {
		return 0, nil
	}
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, errs.Wrap(errs.Crypto, err)
		}
		v := uint64(0)
		for _, b := range buf {
			v = v<<8 | uint64(b)
		}
		limit := (^uint64(0) / bound) * bound
		if v < limit {
			return v % bound, nil
		}
	}
}

// DecryptHits implements the initiator's side of spec.md §4.4 step "Side A
// decrypts": the responder's masked candidates, each carrying the D-component
// the responder already produced via PartialDecrypt, are finished with the
// initiator's own key share; any that decode to the group identity are
// intersection hits.
func DecryptHits(share ecc.PrivateKeyShare, masked []wire.MaskedCandidate) []bool {
	hits := make([]bool, len(masked))
	for i, m := range masked {
		point := ecc.Decrypt(share, ecc.PartialCiphertext{D: m.D, C2: m.CT.C2}, m.CT)
		hits[i] = ecc.IsIdentity(point)
	}
	return hits
}

// CandidatesToWire converts local (unmasked, pre-shuffle) candidates into
// their MessageI wire form.
func CandidatesToWire(cands []Candidate) []wire.EncryptedElement {
	out := make([]wire.EncryptedElement, len(cands))
	for i, c := range cands {
		kind := tree.KindElGamalOnly
		ec := tree.EncryptedContent{Kind: kind, ElementCT: c.CT}
		switch {
		case c.HasPayload:
			kind = tree.KindElGamalElGamal
			ec.Kind = kind
			ec.ElGamalPayload = c.Payload
		case c.HasPaillierPayload:
			kind = tree.KindElGamalPaillier
			ec.Kind = kind
			ec.PaillierPayload = c.PaillierPayload
		}
		out[i] = wire.EncryptedElement{Kind: kind, EC: ec}
	}
	return out
}

// sortedBucketIndices is a small helper kept for callers building
// deterministic TreeUpdates wire messages from a map of changed buckets.
func sortedBucketIndices(m map[int][]tree.Entry) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
