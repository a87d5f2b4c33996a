package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/summitto/upsi/internal/ecc"
	"github.com/summitto/upsi/tree"
	"github.com/summitto/upsi/wire"
)

func sampleCiphertext() ecc.Ciphertext {
	share0, pub0 := ecc.GenerateKeyShare()
	_, pub1 := ecc.GenerateKeyShare()
	joint := ecc.CombinePublicKeys(pub0, pub1)
	_ = share0
	return ecc.Encrypt(joint, ecc.HashToPoint([]byte("e")))
}

func TestMessageIRoundTrip(t *testing.T) {
	ct := sampleCiphertext()
	el := wire.EncryptedElement{Kind: tree.KindElGamalOnly, EC: tree.EncryptedContent{Kind: tree.KindElGamalOnly, ElementCT: ct}}

	msg := wire.MessageI{
		Updates:    wire.TreeUpdates{Indices: []int{0, 1}, Buckets: []wire.Bucket{{el}, {el, el}}},
		Candidates: []wire.EncryptedElement{el},
		Hashes:     wire.HashList{{1, 2, 3}},
	}

	encoded := msg.Encode()
	decoded, err := wire.DecodeMessageI(encoded)
	require.NoError(t, err)

	require.Equal(t, msg.Updates.Indices, decoded.Updates.Indices)
	require.Len(t, decoded.Updates.Buckets, 2)
	require.Len(t, decoded.Candidates, 1)
	require.Equal(t, msg.Hashes, decoded.Hashes)
	require.Equal(t, ct.C1.Bytes(), decoded.Candidates[0].EC.ElementCT.C1.Bytes())
}

func TestMessageIIRoundTrip(t *testing.T) {
	ct := sampleCiphertext()
	el := wire.EncryptedElement{Kind: tree.KindElGamalOnly, EC: tree.EncryptedContent{Kind: tree.KindElGamalOnly, ElementCT: ct}}
	plain := sampleCiphertext()
	payload := sampleCiphertext()
	mc1 := wire.MaskedCandidate{CT: plain, D: plain.C1}
	mc2 := wire.MaskedCandidate{CT: plain, D: plain.C1, HasPayload: true, PayloadCT: payload, PayloadD: payload.C1}
	msg := wire.MessageII{
		Updates:    wire.TreeUpdates{Indices: []int{3}, Buckets: []wire.Bucket{{el}}},
		Candidates: []wire.MaskedCandidate{mc1, mc2},
	}
	decoded, err := wire.DecodeMessageII(msg.Encode())
	require.NoError(t, err)
	require.Len(t, decoded.Candidates, 2)
	require.Equal(t, msg.Updates.Indices, decoded.Updates.Indices)
	require.False(t, decoded.Candidates[0].HasPayload)
	require.True(t, decoded.Candidates[1].HasPayload)
	require.Equal(t, payload.C1.Bytes(), decoded.Candidates[1].PayloadCT.C1.Bytes())
	require.Equal(t, payload.C1.Bytes(), decoded.Candidates[1].PayloadD.Bytes())
}

func TestMessageIIISumRoundTrip(t *testing.T) {
	ct := sampleCiphertext()
	msg := wire.MessageIIISum{Sum: ct}
	decoded, err := wire.DecodeMessageIIISum(msg.Encode())
	require.NoError(t, err)
	require.Equal(t, ct.C1.Bytes(), decoded.Sum.C1.Bytes())
	require.Equal(t, ct.C2.Bytes(), decoded.Sum.C2.Bytes())
}
