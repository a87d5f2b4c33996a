package protocol

import (
	"encoding/binary"
	"math/big"

	"github.com/summitto/upsi/internal/ecc"
	"github.com/summitto/upsi/internal/errs"
	"github.com/summitto/upsi/internal/paillier"
	"github.com/summitto/upsi/internal/prf"
	"github.com/summitto/upsi/tree"
	"github.com/summitto/upsi/wire"
)

// Functionality selects which of the four day flows a Party runs
// (spec.md §4.5), replacing the original's per-functionality class
// hierarchy with a single value parameterized by this tag (spec.md §9
// "Class-hierarchy flattening").
type Functionality int

const (
	PSI Functionality = iota
	CA
	SUM
	SS
)

// State is one of the five day-message states (spec.md §4.5).
type State int

const (
	WaitI State = iota
	WaitII
	WaitIII
	WaitIV
	DayDone
)

// Role distinguishes the message-schedule initiator (sends MessageI first)
// from the responder (replies with MessageII).
type Role int

const (
	Initiator Role = iota
	Responder
)

// Party is the single value-typed protocol driver for all four
// functionalities (spec.md §9). Per-functionality behavior lives in the
// message-building/handling methods below, selected at construction by Func.
type Party struct {
	Func  Functionality
	Role  Role
	State State
	Day   int

	Pub      ecc.JointPublicKey
	KeyShare ecc.PrivateKeyShare

	PaillierPub   *paillier.PublicKey
	PaillierShare paillier.KeyShare

	Pair *tree.Pair

	MaxSum int64

	// elementLookup maps a hash-to-point encoding (by its compressed bytes)
	// back to the plaintext element, populated whenever this party sends a
	// MessageI candidate, so that a later PSI payload decryption can be
	// resolved back to the element it corresponds to.
	elementLookup map[string][]byte

	// sumCT accumulates this day's SUM hit payloads homomorphically
	// (ecc.Mul), un-partial-decrypted, until BuildMessageIIISum sends it on.
	sumCT *ecc.Ciphertext
	// outgoingSumCT is the ciphertext actually sent in MessageIIISum, kept so
	// HandleMessageIV can finish the decryption without the caller having to
	// thread it back in by hand.
	outgoingSumCT ecc.Ciphertext

	// hitPaillierPayloads accumulates this day's SS hit Paillier payloads in
	// the order MessageII delivered them, consumed by BuildMessageIIISS.
	hitPaillierPayloads []paillier.Ciphertext

	// Cumulative outputs.
	Intersection map[string]bool
	Cardinality  int
	Sum          int64
	SharesMine   map[string]*big.Int // SS: this party's additive share per hit
}

// NewParty constructs a fresh party for one functionality.
func NewParty(fn Functionality, role Role, pub ecc.JointPublicKey, keyShare ecc.PrivateKeyShare, pPub *paillier.PublicKey, pShare paillier.KeyShare, nodeSize, stashSize int, stream *prf.Stream, maxSum int64) *Party {
	return &Party{
		Func:          fn,
		Role:          role,
		State:         WaitI,
		Pub:           pub,
		KeyShare:      keyShare,
		PaillierPub:   pPub,
		PaillierShare: pShare,
		Pair:          tree.NewPair(nodeSize, stashSize, stream),
		MaxSum:        maxSum,
		elementLookup: map[string][]byte{},
		Intersection:  map[string]bool{},
		SharesMine:    map[string]*big.Int{},
	}
}

func elementHashOf(stream *prf.Stream) func([]byte) [prf.HashSize]byte {
	return func(e []byte) [prf.HashSize]byte { return stream.ElementHash(e) }
}

func kindForFunc(fn Functionality) tree.ElementKind {
	switch fn {
	case SUM:
		return tree.KindElGamalElGamal
	case SS:
		return tree.KindElGamalPaillier
	default:
		return tree.KindElGamalOnly
	}
}

// BuildMessageI performs this day's insert-then-probe (spec.md §9 Open
// Question, resolved per §4.5: all four functionalities insert before they
// probe) and assembles the outgoing MessageI.
func (p *Party) BuildMessageI(batch []tree.PlaintextContent) (wire.MessageI, error) {
	if p.State != WaitI {
		return wire.MessageI{}, errs.New(errs.InvalidArgument, "protocol: BuildMessageI called out of sequence")
	}
	kind := kindForFunc(p.Func)
	_, hashes, updates, err := p.Pair.Update(batch, p.Pub, p.PaillierPub, kind)
	if err != nil {
		return wire.MessageI{}, err
	}

	elements := make([][]byte, len(batch))
	for i, c := range batch {
		elements[i] = c.Element
	}
	cands, err := BuildCandidates(p.Pub, p.PaillierPub, p.Pair.Other, elements, elementHashOf(p.Pair.Stream), p.Func)
	if err != nil {
		return wire.MessageI{}, err
	}
	for _, e := range elements {
		xPoint := ecc.HashToPoint(e)
		p.elementLookup[string(xPoint.Bytes())] = e
	}

	msg := wire.MessageI{
		Updates:    toWireUpdates(updates),
		Candidates: CandidatesToWire(cands),
		Hashes:     wire.HashList(hashes),
	}
	p.State = WaitII
	return msg, nil
}

func toWireUpdates(updates map[int][]tree.Entry) wire.TreeUpdates {
	idx := sortedBucketIndices(updates)
	u := wire.TreeUpdates{Indices: idx, Buckets: make([]wire.Bucket, len(idx))}
	for i, bi := range idx {
		entries := updates[bi]
		bucket := make(wire.Bucket, len(entries))
		for j, e := range entries {
			ec := e.Content.(tree.EncryptedContent)
			bucket[j] = wire.EncryptedElement{Kind: ec.Kind, EC: ec}
		}
		u.Buckets[i] = bucket
	}
	return u
}

func fromWireUpdates(u wire.TreeUpdates) map[int][]tree.Entry {
	out := make(map[int][]tree.Entry, len(u.Indices))
	for i, bi := range u.Indices {
		bucket := u.Buckets[i]
		entries := make([]tree.Entry, len(bucket))
		for j, el := range bucket {
			entries[j] = tree.Entry{Content: el.EC}
		}
		out[bi] = entries
	}
	return out
}

// HandleMessageI is the responder's side: apply the peer's delta (which must
// happen before candidates are interpreted, spec.md §5 ordering guarantee),
// then run this party's own insert-then-probe, combine candidate lists,
// shuffle, mask, and partially decrypt, producing MessageII.
func (p *Party) HandleMessageI(msg wire.MessageI, batch []tree.PlaintextContent) (wire.MessageII, error) {
	if p.State != WaitI {
		return wire.MessageII{}, errs.New(errs.InvalidArgument, "protocol: HandleMessageI called out of sequence")
	}
	if err := p.Pair.ApplyDelta(toHashArray(msg.Hashes), fromWireUpdates(msg.Updates)); err != nil {
		return wire.MessageII{}, err
	}

	kind := kindForFunc(p.Func)
	_, hashes, updates, err := p.Pair.Update(batch, p.Pub, p.PaillierPub, kind)
	if err != nil {
		return wire.MessageII{}, err
	}

	elements := make([][]byte, len(batch))
	for i, c := range batch {
		elements[i] = c.Element
	}
	ownCands, err := BuildCandidates(p.Pub, p.PaillierPub, p.Pair.Other, elements, elementHashOf(p.Pair.Stream), p.Func)
	if err != nil {
		return wire.MessageII{}, err
	}
	for _, e := range elements {
		xPoint := ecc.HashToPoint(e)
		p.elementLookup[string(xPoint.Bytes())] = e
	}

	peerCands, err := wireToCandidates(msg.Candidates)
	if err != nil {
		return wire.MessageII{}, err
	}

	all := append(append([]Candidate{}, peerCands...), ownCands...)
	masked, err := ShuffleAndMask(p.KeyShare, all, p.Func)
	if err != nil {
		return wire.MessageII{}, err
	}

	msgII := wire.MessageII{Updates: toWireUpdates(updates), Candidates: masked}
	switch p.Func {
	case PSI, CA:
		p.State = DayDone
	default:
		p.State = WaitIII
	}
	return msgII, nil
}

func toHashArray(h wire.HashList) [][prf.HashSize]byte { return [][prf.HashSize]byte(h) }

func wireToCandidates(els []wire.EncryptedElement) ([]Candidate, error) {
	out := make([]Candidate, len(els))
	for i, el := range els {
		c := Candidate{CT: el.EC.ElementCT}
		switch el.Kind {
		case tree.KindElGamalElGamal:
			c.Payload = el.EC.ElGamalPayload
			c.HasPayload = true
		case tree.KindElGamalPaillier:
			c.PaillierPayload = el.EC.PaillierPayload
			c.HasPaillierPayload = true
		}
		out[i] = c
	}
	return out, nil
}

// HandleMessageII is the initiator's side: decrypt the responder's shuffled
// candidates, determine intersection hits, update this day's running output,
// and, for SUM/SS, continue to MessageIII; for PSI/CA the day completes here.
func (p *Party) HandleMessageII(msg wire.MessageII) error {
	if p.State != WaitII {
		return errs.New(errs.InvalidArgument, "protocol: HandleMessageII called out of sequence")
	}
	if err := p.Pair.ApplyDelta(nil, fromWireUpdates(msg.Updates)); err != nil {
		return err
	}

	hits := DecryptHits(p.KeyShare, msg.Candidates)
	for i, cand := range msg.Candidates {
		if !hits[i] {
			continue
		}
		p.Cardinality++

		if cand.HasPayload {
			switch p.Func {
			case PSI:
				point := ecc.Decrypt(p.KeyShare, ecc.PartialCiphertext{D: cand.PayloadD, C2: cand.PayloadCT.C2}, cand.PayloadCT)
				if elem, ok := p.elementLookup[string(point.Bytes())]; ok {
					p.Intersection[string(elem)] = true
				}
			case SUM:
				if p.sumCT == nil {
					ct := cand.PayloadCT
					p.sumCT = &ct
				} else {
					sum := ecc.Mul(*p.sumCT, cand.PayloadCT)
					p.sumCT = &sum
				}
			}
		}
		if cand.HasPaillierPayload && p.Func == SS {
			p.hitPaillierPayloads = append(p.hitPaillierPayloads, cand.PaillierPayloadCT)
		}
	}

	switch p.Func {
	case PSI, CA:
		p.State = DayDone
	default:
		p.State = WaitIII
	}
	return nil
}

// BuildMessageIIISum implements SUM's third message: the initiator sends on
// the homomorphic sum of its hit payloads this day (or Enc(0) if there were
// none) for the responder's partial decrypt.
func (p *Party) BuildMessageIIISum() (wire.MessageIIISum, error) {
	if p.Func != SUM || p.State != WaitIII {
		return wire.MessageIIISum{}, errs.New(errs.InvalidArgument, "protocol: BuildMessageIIISum called out of sequence")
	}
	sum := ecc.Encrypt(p.Pub, ecc.Identity())
	if p.sumCT != nil {
		sum = *p.sumCT
	}
	p.outgoingSumCT = sum
	p.State = WaitIV
	return wire.MessageIIISum{Sum: sum}, nil
}

// HandleMessageIIISum is the responder's side: partially decrypt the
// intersection-sum ciphertext and return it as MessageIV, completing the
// responder's part of this day's schedule.
func (p *Party) HandleMessageIIISum(msg wire.MessageIIISum) (wire.MessageIV, error) {
	if p.Func != SUM || p.State != WaitIII {
		return wire.MessageIV{}, errs.New(errs.InvalidArgument, "protocol: HandleMessageIIISum called out of sequence")
	}
	partial := ecc.PartialDecrypt(p.KeyShare, msg.Sum)
	p.State = DayDone
	return wire.MessageIV{Sum: ecc.Ciphertext{C1: partial.D, C2: partial.C2}}, nil
}

// HandleMessageIV completes SUM: the initiator finishes the decryption of
// the ciphertext it sent in BuildMessageIIISum and recovers the integer sum
// via BSGS, then marks the day done.
func (p *Party) HandleMessageIV(msg wire.MessageIV) error {
	if p.Func != SUM || p.State != WaitIV {
		return errs.New(errs.InvalidArgument, "protocol: HandleMessageIV called out of sequence")
	}
	partial := ecc.PartialCiphertext{D: msg.Sum.C1, C2: msg.Sum.C2}
	m := ecc.Decrypt(p.KeyShare, partial, p.outgoingSumCT)
	v, err := ecc.DecryptExp(m, p.MaxSum)
	if err != nil {
		return err
	}
	p.Sum += v
	p.sumCT = nil
	p.State = DayDone
	return nil
}

// BuildMessageIIISS implements SS's third message: for each hit the
// initiator collected in HandleMessageII, it samples a random share s,
// keeps -s mod N as its own share (keyed by the same positional identifier
// HandleMessageIIISS will use), and sends Paillier Enc(payload + s) together
// with its partial decryption.
func (p *Party) BuildMessageIIISS(randomShare func() *big.Int) (wire.MessageIIISS, error) {
	if p.Func != SS || p.State != WaitIII {
		return wire.MessageIIISS{}, errs.New(errs.InvalidArgument, "protocol: BuildMessageIIISS called out of sequence")
	}
	var out []paillier.Ciphertext
	for i, ct := range p.hitPaillierPayloads {
		s := randomShare()
		negS := new(big.Int).Neg(s)
		negS.Mod(negS, p.PaillierPub.Pub.N)
		id := itoaInt(i)
		p.SharesMine[id] = negS

		sCT, err := paillier.Encrypt(p.PaillierPub, s)
		if err != nil {
			return wire.MessageIIISS{}, err
		}
		blinded := paillier.Add(p.PaillierPub, ct, sCT)
		partial := paillier.PartialDecrypt(p.PaillierPub, p.PaillierShare, blinded)
		out = append(out, blinded, partial)
	}
	p.hitPaillierPayloads = nil
	p.State = DayDone
	return wire.MessageIIISS{Payloads: out}, nil
}

// HandleMessageIIISS is the responder's side: complete each decryption to
// obtain its own additive share of the matched payload, keyed by the same
// positional identifier BuildMessageIIISS used.
func (p *Party) HandleMessageIIISS(msg wire.MessageIIISS) error {
	if p.Func != SS || p.State != WaitIII {
		return errs.New(errs.InvalidArgument, "protocol: HandleMessageIIISS called out of sequence")
	}
	for i := 0; i+1 < len(msg.Payloads); i += 2 {
		blinded := msg.Payloads[i]
		partial := msg.Payloads[i+1]
		share := paillier.Decrypt(p.PaillierPub, p.PaillierShare, partial, blinded)
		id := itoaInt(i / 2)
		p.SharesMine[id] = share
	}
	p.State = DayDone
	return nil
}

func itoaInt(v int) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return string(b[:])
}

// AdvanceDay resets the state machine for the next day once DayDone is
// reached (spec.md §4.5 "on DAY_DONE the day counter advances").
func (p *Party) AdvanceDay() error {
	if p.State != DayDone {
		return errs.New(errs.InvalidArgument, "protocol: AdvanceDay called before day finished")
	}
	p.Day++
	p.State = WaitI
	p.sumCT = nil
	p.hitPaillierPayloads = nil
	return nil
}
