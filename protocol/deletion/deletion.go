// Package deletion implements the deletion-capable UPSI variant (spec.md
// §4.6): a Paillier-only tree, a garbled-circuit equality branch resolved
// through 1-of-2 OT, and a final homomorphic combine round. Grounded on
// original_source/upsi/deletion-psi/party_zero.cc (Run/SecondPhase).
package deletion

import (
	"math/big"

	"github.com/summitto/upsi/internal/gc"
	"github.com/summitto/upsi/internal/ot"
	"github.com/summitto/upsi/internal/paillier"
	"github.com/summitto/upsi/internal/prf"
	"github.com/summitto/upsi/tree"
)

// EqualityBitWidth is the fixed input width for the GC equality predicate
// (spec.md §4.1 "64-bit (or element-width) inputs").
const EqualityBitWidth = 64

// Party drives the deletion-capable protocol for one side. Unlike the
// additive-only protocol package, the tree pair here carries Paillier-only
// content, and intersection output is a running scalar plus a set of string
// tokens on whichever party holds the output (spec.md §4.5).
type Party struct {
	PaillierPub   *paillier.PublicKey
	PaillierShare paillier.KeyShare

	Pair *tree.Pair

	RunningResult int64 // cardinality or sum, depending on configuration
	Intersection  map[string]bool
}

// NewParty constructs a deletion-variant party.
func NewParty(pub *paillier.PublicKey, share paillier.KeyShare, nodeSize, stashSize int, stream *prf.Stream) *Party {
	return &Party{
		PaillierPub:   pub,
		PaillierShare: share,
		Pair:          tree.NewPair(nodeSize, stashSize, stream),
		Intersection:  map[string]bool{},
	}
}

// LoadData splits a day's batch into an addition sub-batch (payload ≥ 0) and
// a deletion sub-batch (payload < 0), per the canonical sign convention
// (spec.md §9, original_source/upsi/deletion-psi/party_zero.cc::LoadData).
func LoadData(batch []tree.PlaintextContent) (additions, deletions []tree.PlaintextContent) {
	for _, c := range batch {
		if c.Payload >= 0 {
			additions = append(additions, c)
		} else {
			deletions = append(deletions, c)
		}
	}
	return additions, deletions
}

// RunDay executes one day's exchange: deletion sub-batch first, then
// addition sub-batch, matching PartyZero::Run's documented ordering
// (spec.md §5 "I_del → II_del → I_add → II_add").
//
// exchange performs one half-day's worth of tree update + GC/OT equality
// resolution against the peer, returning this party's accumulated signed
// result contribution for that half.
func (p *Party) RunDay(batch []tree.PlaintextContent, exchange func(sub []tree.PlaintextContent) (int64, error)) error {
	additions, deletions := LoadData(batch)

	delResult, err := exchange(deletions)
	if err != nil {
		return err
	}
	addResult, err := exchange(additions)
	if err != nil {
		return err
	}

	p.RunningResult += delResult + addResult
	return nil
}

// EqualityAndTransfer prepares the garbler's (sender's) side of the GC
// equality test on a 64-bit blinded candidate value and of the 1-of-2 OT that
// follows it: it returns the garbler's input labels for myBlindedValue and
// the OT messages m0 and m1, taken from Paillier encryptions of β and
// β+payload. It does not evaluate the circuit or run the OT.
func EqualityAndTransfer(garbler *gc.Garbler, circuit *gc.EqualityCircuit, myBlindedValue uint64, beta *big.Int, payload *big.Int, pub *paillier.PublicKey) ([]gc.Label, []ot.Block, []ot.Block, error) {
	garblerLabels := circuit.GarblerLabels(myBlindedValue)

	betaCT, err := paillier.Encrypt(pub, beta)
	if err != nil {
		return nil, nil, nil, err
	}
	betaPlusPayload := new(big.Int).Add(beta, payload)
	betaPlusPayload.Mod(betaPlusPayload, pub.Pub.N)
	betaPayloadCT, err := paillier.Encrypt(pub, betaPlusPayload)
	if err != nil {
		return nil, nil, nil, err
	}

	m0 := blockFromCiphertext(betaCT)
	m1 := blockFromCiphertext(betaPayloadCT)

	return garblerLabels, []ot.Block{m0}, []ot.Block{m1}, nil
}

func blockFromCiphertext(ct paillier.Ciphertext) ot.Block {
	var b ot.Block
	raw := ct.Bytes()
	if len(raw) > len(b) {
		raw = raw[len(raw)-len(b):]
	}
	copy(b[len(b)-len(raw):], raw)
	return b
}

// CombineRound implements the final homomorphic aggregation of §4.5: both
// parties exchange Enc(ans_0) and Enc(ans_1) of their per-day scalar
// results, add them homomorphically, and each partially decrypts
// (original_source/upsi/deletion-psi/party_zero.cc::SecondPhase).
func (p *Party) CombineRound(myAns *big.Int, peerCT paillier.Ciphertext) (paillier.Ciphertext, error) {
	myCT, err := paillier.Encrypt(p.PaillierPub, myAns)
	if err != nil {
		return paillier.Ciphertext{}, err
	}
	combined := paillier.Add(p.PaillierPub, myCT, peerCT)
	return combined, nil
}

// FinishCombine consumes the peer's partial decryption of the combined
// ciphertext from CombineRound to recover the final signed scalar, applying
// the modular-wraparound convention of
// original_source/upsi/deletion-psi/party_zero.cc::SecondPhase.
func (p *Party) FinishCombine(combined paillier.Ciphertext, peerPartial paillier.Ciphertext) int64 {
	plain := paillier.Decrypt(p.PaillierPub, p.PaillierShare, peerPartial, combined)
	signed := paillier.UnshiftSigned(p.PaillierPub, plain)
	if !signed.IsInt64() {
		panic("deletion: combined result overflows int64")
	}
	return signed.Int64()
}
