// Package wire implements the length-delimited binary wire messages of
// spec.md §6: MessageI..MessageIV, the EncryptedElement tagged union,
// Bucket, and HashList. Encoding follows the teacher's own hand-rolled
// binary-cursor style (session.go's manual offset parsing) rather than a
// schema compiler, since the teacher never uses protobuf/gRPC for in-session
// message bodies (only the outer HTTP layer) — see DESIGN.md.
package wire

import (
	"encoding/binary"

	"github.com/summitto/upsi/internal/ecc"
	"github.com/summitto/upsi/internal/errs"
	"github.com/summitto/upsi/internal/paillier"
	"github.com/summitto/upsi/internal/prf"
	"github.com/summitto/upsi/tree"
)

// EncryptedElement is the tagged union of spec.md §6: no_payload,
// elgamal_element_plus_elgamal_payload, elgamal_element_plus_paillier_payload,
// paillier_only.
type EncryptedElement struct {
	Kind tree.ElementKind
	EC   tree.EncryptedContent
}

func (e EncryptedElement) encode() []byte {
	out := []byte{byte(e.Kind)}
	if e.Kind == tree.KindPaillierOnly {
		out = append(out, lenPrefixed(e.EC.PaillierElement.Bytes())...)
		return append(out, lenPrefixed(e.EC.PaillierPayload.Bytes())...)
	}
	out = append(out, lenPrefixed(e.EC.ElementCT.Bytes())...)
	switch e.Kind {
	case tree.KindElGamalElGamal:
		out = append(out, lenPrefixed(e.EC.ElGamalPayload.Bytes())...)
	case tree.KindElGamalPaillier:
		out = append(out, lenPrefixed(e.EC.PaillierPayload.Bytes())...)
	}
	return out
}

func decodeElement(b []byte) (EncryptedElement, int, error) {
	if len(b) < 1 {
		return EncryptedElement{}, 0, errs.New(errs.InvalidArgument, "wire: truncated EncryptedElement tag")
	}
	kind := tree.ElementKind(b[0])
	off := 1
	ctBytes, n, err := readLenPrefixed(b[off:])
	if err != nil {
		return EncryptedElement{}, 0, err
	}
	off += n
	ec := tree.EncryptedContent{Kind: kind}
	switch kind {
	case tree.KindElGamalOnly:
		ct, cerr := ecc.CiphertextFromBytes(ctBytes)
		if cerr != nil {
			return EncryptedElement{}, 0, cerr
		}
		ec.ElementCT = ct
	case tree.KindElGamalElGamal:
		ct, cerr := ecc.CiphertextFromBytes(ctBytes)
		if cerr != nil {
			return EncryptedElement{}, 0, cerr
		}
		ec.ElementCT = ct
		pBytes, n2, perr := readLenPrefixed(b[off:])
		if perr != nil {
			return EncryptedElement{}, 0, perr
		}
		off += n2
		payloadCT, cerr2 := ecc.CiphertextFromBytes(pBytes)
		if cerr2 != nil {
			return EncryptedElement{}, 0, cerr2
		}
		ec.ElGamalPayload = payloadCT
	case tree.KindElGamalPaillier:
		ct, cerr := ecc.CiphertextFromBytes(ctBytes)
		if cerr != nil {
			return EncryptedElement{}, 0, cerr
		}
		ec.ElementCT = ct
		pBytes, n2, perr := readLenPrefixed(b[off:])
		if perr != nil {
			return EncryptedElement{}, 0, perr
		}
		off += n2
		ec.PaillierPayload = paillier.CiphertextFromBytes(pBytes)
	case tree.KindPaillierOnly:
		ec.PaillierElement = paillier.CiphertextFromBytes(ctBytes)
		pBytes, n2, perr := readLenPrefixed(b[off:])
		if perr != nil {
			return EncryptedElement{}, 0, perr
		}
		off += n2
		ec.PaillierPayload = paillier.CiphertextFromBytes(pBytes)
	default:
		return EncryptedElement{}, 0, errs.Newf(errs.InvalidArgument, "wire: unknown EncryptedElement kind %d", kind)
	}
	return EncryptedElement{Kind: kind, EC: ec}, off, nil
}

// MaskedCandidate is the responder's shuffled, masked, and partially
// decrypted candidate (spec.md §4.4 steps 5-7): the alpha-masked element
// ciphertext together with the responder's partial-decryption D-component,
// and, when a payload is attached, the (possibly also partially decrypted)
// payload ciphertext. For PSI the payload is partially decrypted here too
// (PayloadD is valid) so the initiator can recover the plaintext element
// immediately in MessageII; for SUM the payload ciphertext is forwarded
// undecrypted so the initiator can homomorphically accumulate hits before
// the III/IV round; for SS the Paillier payload is likewise forwarded
// undecrypted for the III blinded-share round.
type MaskedCandidate struct {
	CT Ecc
	D  EccPoint

	HasPayload bool
	PayloadCT  Ecc
	PayloadD   EccPoint

	HasPaillierPayload bool
	PaillierPayloadCT  paillier.Ciphertext
}

// Ecc and EccPoint are local aliases kept distinct from the ecc package's own
// exported names so this file reads unambiguously; both are defined in terms
// of the ecc package's real types.
type Ecc = ecc.Ciphertext
type EccPoint = ecc.Point

func (m MaskedCandidate) encode() []byte {
	out := append([]byte{}, m.CT.Bytes()...)
	out = append(out, m.D.Bytes()...)
	if m.HasPayload {
		out = append(out, 1)
		out = append(out, m.PayloadCT.Bytes()...)
		out = append(out, m.PayloadD.Bytes()...)
	} else {
		out = append(out, 0)
	}
	if m.HasPaillierPayload {
		out = append(out, 1)
		out = append(out, lenPrefixed(m.PaillierPayloadCT.Bytes())...)
	} else {
		out = append(out, 0)
	}
	return out
}

func decodeMaskedCandidate(b []byte) (MaskedCandidate, int, error) {
	if len(b) < 64+32+1 {
		return MaskedCandidate{}, 0, errs.New(errs.InvalidArgument, "wire: truncated MaskedCandidate")
	}
	ct, err := ecc.CiphertextFromBytes(b[:64])
	if err != nil {
		return MaskedCandidate{}, 0, err
	}
	d, err := decodePoint(b[64:96])
	if err != nil {
		return MaskedCandidate{}, 0, err
	}
	off := 96
	mc := MaskedCandidate{CT: ct, D: d}

	flag := b[off]
	off++
	if flag == 1 {
		if len(b[off:]) < 96 {
			return MaskedCandidate{}, 0, errs.New(errs.InvalidArgument, "wire: truncated MaskedCandidate payload")
		}
		pct, perr := ecc.CiphertextFromBytes(b[off : off+64])
		if perr != nil {
			return MaskedCandidate{}, 0, perr
		}
		off += 64
		pd, perr2 := decodePoint(b[off : off+32])
		if perr2 != nil {
			return MaskedCandidate{}, 0, perr2
		}
		off += 32
		mc.HasPayload = true
		mc.PayloadCT = pct
		mc.PayloadD = pd
	}

	if len(b[off:]) < 1 {
		return MaskedCandidate{}, 0, errs.New(errs.InvalidArgument, "wire: truncated MaskedCandidate Paillier flag")
	}
	pflag := b[off]
	off++
	if pflag == 1 {
		pBytes, n, perr := readLenPrefixed(b[off:])
		if perr != nil {
			return MaskedCandidate{}, 0, perr
		}
		off += n
		mc.HasPaillierPayload = true
		mc.PaillierPayloadCT = paillier.CiphertextFromBytes(pBytes)
	}

	return mc, off, nil
}

func decodePoint(b []byte) (ecc.Point, error) {
	var pt ecc.Point
	var buf [32]byte
	if len(b) != 32 {
		return pt, errs.Newf(errs.InvalidArgument, "wire: point must be 32 bytes, got %d", len(b))
	}
	copy(buf[:], b)
	if _, ok := pt.SetBytes(&buf); !ok {
		return pt, errs.New(errs.Crypto, "wire: invalid point encoding")
	}
	return pt, nil
}

// Bucket is repeated EncryptedElement with an implicit capacity (spec.md §6).
type Bucket []EncryptedElement

// HashList is a sequence of 32-byte binary hashes, one per element the
// sender inserted. Only MessageI carries one; MessageII has no HashList.
type HashList [][prf.HashSize]byte

// TreeUpdates is repeated Bucket, keyed by the bucket index they replace.
type TreeUpdates struct {
	Indices []int
	Buckets []Bucket
}

func lenPrefixed(b []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	return append(lenBuf[:], b...)
}

func readLenPrefixed(b []byte) ([]byte, int, error) {
	if len(b) < 4 {
		return nil, 0, errs.New(errs.InvalidArgument, "wire: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(b)
	if uint32(len(b)) < 4+n {
		return nil, 0, errs.New(errs.InvalidArgument, "wire: truncated length-prefixed field")
	}
	return b[4 : 4+n], int(4 + n), nil
}

func encodeTreeUpdates(u TreeUpdates) []byte {
	var out []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(u.Indices)))
	out = append(out, countBuf[:]...)
	for i, idx := range u.Indices {
		var idxBuf [4]byte
		binary.BigEndian.PutUint32(idxBuf[:], uint32(idx))
		out = append(out, idxBuf[:]...)

		bucket := u.Buckets[i]
		var bcBuf [4]byte
		binary.BigEndian.PutUint32(bcBuf[:], uint32(len(bucket)))
		out = append(out, bcBuf[:]...)
		for _, el := range bucket {
			out = append(out, lenPrefixed(el.encode())...)
		}
	}
	return out
}

func decodeTreeUpdates(b []byte) (TreeUpdates, int, error) {
	if len(b) < 4 {
		return TreeUpdates{}, 0, errs.New(errs.InvalidArgument, "wire: truncated TreeUpdates count")
	}
	count := int(binary.BigEndian.Uint32(b))
	off := 4
	u := TreeUpdates{}
	for i := 0; i < count; i++ {
		if len(b[off:]) < 8 {
			return TreeUpdates{}, 0, errs.New(errs.InvalidArgument, "wire: truncated TreeUpdates entry")
		}
		idx := int(binary.BigEndian.Uint32(b[off:]))
		off += 4
		bucketCount := int(binary.BigEndian.Uint32(b[off:]))
		off += 4
		bucket := make(Bucket, 0, bucketCount)
		for j := 0; j < bucketCount; j++ {
			elBytes, n, err := readLenPrefixed(b[off:])
			if err != nil {
				return TreeUpdates{}, 0, err
			}
			off += n
			el, _, err := decodeElement(elBytes)
			if err != nil {
				return TreeUpdates{}, 0, err
			}
			bucket = append(bucket, el)
		}
		u.Indices = append(u.Indices, idx)
		u.Buckets = append(u.Buckets, bucket)
	}
	return u, off, nil
}

func encodeHashList(h HashList) []byte {
	var out []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(h)))
	out = append(out, countBuf[:]...)
	for _, hash := range h {
		out = append(out, hash[:]...)
	}
	return out
}

func decodeHashList(b []byte) (HashList, int, error) {
	if len(b) < 4 {
		return nil, 0, errs.New(errs.InvalidArgument, "wire: truncated HashList count")
	}
	count := int(binary.BigEndian.Uint32(b))
	off := 4
	out := make(HashList, 0, count)
	for i := 0; i < count; i++ {
		if len(b[off:]) < prf.HashSize {
			return nil, 0, errs.New(errs.InvalidArgument, "wire: truncated HashList entry")
		}
		var h [prf.HashSize]byte
		copy(h[:], b[off:off+prf.HashSize])
		out = append(out, h)
		off += prf.HashSize
	}
	return out, off, nil
}

// MessageI is the client-to-server (or first-mover) message of a day:
// tree updates plus candidate ciphertexts and the hashes used for this
// insertion (spec.md §6).
type MessageI struct {
	Updates    TreeUpdates
	Candidates []EncryptedElement
	Hashes     HashList
}

// Encode serializes a MessageI to its length-delimited binary wire form.
func (m MessageI) Encode() []byte {
	var out []byte
	out = append(out, lenPrefixed(encodeTreeUpdates(m.Updates))...)
	var cnt [4]byte
	binary.BigEndian.PutUint32(cnt[:], uint32(len(m.Candidates)))
	out = append(out, cnt[:]...)
	for _, c := range m.Candidates {
		out = append(out, lenPrefixed(c.encode())...)
	}
	out = append(out, lenPrefixed(encodeHashList(m.Hashes))...)
	return out
}

// DecodeMessageI parses a MessageI from its binary wire form.
func DecodeMessageI(b []byte) (MessageI, error) {
	off := 0
	uBytes, n, err := readLenPrefixed(b[off:])
	if err != nil {
		return MessageI{}, err
	}
	off += n
	updates, _, err := decodeTreeUpdates(uBytes)
	if err != nil {
		return MessageI{}, err
	}

	if len(b[off:]) < 4 {
		return MessageI{}, errs.New(errs.InvalidArgument, "wire: truncated MessageI candidate count")
	}
	cnt := int(binary.BigEndian.Uint32(b[off:]))
	off += 4
	candidates := make([]EncryptedElement, 0, cnt)
	for i := 0; i < cnt; i++ {
		elBytes, n2, err := readLenPrefixed(b[off:])
		if err != nil {
			return MessageI{}, err
		}
		off += n2
		el, _, err := decodeElement(elBytes)
		if err != nil {
			return MessageI{}, err
		}
		candidates = append(candidates, el)
	}

	hBytes, n3, err := readLenPrefixed(b[off:])
	if err != nil {
		return MessageI{}, err
	}
	off += n3
	hashes, _, err := decodeHashList(hBytes)
	if err != nil {
		return MessageI{}, err
	}

	return MessageI{Updates: updates, Candidates: candidates, Hashes: hashes}, nil
}

// MessageII is the responder's message: its own updates and the
// shuffled/masked/partially-decrypted candidates (spec.md §6).
type MessageII struct {
	Updates    TreeUpdates
	Candidates []MaskedCandidate
}

// Encode serializes a MessageII.
func (m MessageII) Encode() []byte {
	var out []byte
	out = append(out, lenPrefixed(encodeTreeUpdates(m.Updates))...)
	var cnt [4]byte
	binary.BigEndian.PutUint32(cnt[:], uint32(len(m.Candidates)))
	out = append(out, cnt[:]...)
	for _, c := range m.Candidates {
		out = append(out, lenPrefixed(c.encode())...)
	}
	return out
}

// DecodeMessageII parses a MessageII.
func DecodeMessageII(b []byte) (MessageII, error) {
	off := 0
	uBytes, n, err := readLenPrefixed(b[off:])
	if err != nil {
		return MessageII{}, err
	}
	off += n
	updates, _, err := decodeTreeUpdates(uBytes)
	if err != nil {
		return MessageII{}, err
	}

	if len(b[off:]) < 4 {
		return MessageII{}, errs.New(errs.InvalidArgument, "wire: truncated MessageII candidate count")
	}
	cnt := int(binary.BigEndian.Uint32(b[off:]))
	off += 4
	candidates := make([]MaskedCandidate, 0, cnt)
	for i := 0; i < cnt; i++ {
		mcBytes, n2, err := readLenPrefixed(b[off:])
		if err != nil {
			return MessageII{}, err
		}
		off += n2
		mc, _, err := decodeMaskedCandidate(mcBytes)
		if err != nil {
			return MessageII{}, err
		}
		candidates = append(candidates, mc)
	}
	return MessageII{Updates: updates, Candidates: candidates}, nil
}

// MessageIIISum carries the intersection-sum ciphertext (spec.md §6).
type MessageIIISum struct{ Sum ecc.Ciphertext }

// Encode serializes a MessageIIISum.
func (m MessageIIISum) Encode() []byte { return m.Sum.Bytes() }

// DecodeMessageIIISum parses a MessageIIISum.
func DecodeMessageIIISum(b []byte) (MessageIIISum, error) {
	ct, err := ecc.CiphertextFromBytes(b)
	return MessageIIISum{Sum: ct}, err
}

// MessageIIISS carries, per hit, a blinded Paillier ciphertext and the
// sender's partial decryption (even/odd indices per spec.md §6).
type MessageIIISS struct{ Payloads []paillier.Ciphertext }

// Encode serializes a MessageIIISS.
func (m MessageIIISS) Encode() []byte {
	var out []byte
	var cnt [4]byte
	binary.BigEndian.PutUint32(cnt[:], uint32(len(m.Payloads)))
	out = append(out, cnt[:]...)
	for _, p := range m.Payloads {
		out = append(out, lenPrefixed(p.Bytes())...)
	}
	return out
}

// DecodeMessageIIISS parses a MessageIIISS.
func DecodeMessageIIISS(b []byte) (MessageIIISS, error) {
	if len(b) < 4 {
		return MessageIIISS{}, errs.New(errs.InvalidArgument, "wire: truncated MessageIIISS count")
	}
	cnt := int(binary.BigEndian.Uint32(b))
	off := 4
	out := make([]paillier.Ciphertext, 0, cnt)
	for i := 0; i < cnt; i++ {
		pBytes, n, err := readLenPrefixed(b[off:])
		if err != nil {
			return MessageIIISS{}, err
		}
		off += n
		out = append(out, paillier.CiphertextFromBytes(pBytes))
	}
	return MessageIIISS{Payloads: out}, nil
}

// MessageIV carries the peer's final partial decryption of MessageIII's sum
// (spec.md §6).
type MessageIV struct{ Sum ecc.Ciphertext }

// Encode serializes a MessageIV.
func (m MessageIV) Encode() []byte { return m.Sum.Bytes() }

// DecodeMessageIV parses a MessageIV.
func DecodeMessageIV(b []byte) (MessageIV, error) {
	ct, err := ecc.CiphertextFromBytes(b)
	return MessageIV{Sum: ct}, err
}
