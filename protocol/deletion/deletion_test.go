package deletion_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summitto/upsi/internal/gc"
	"github.com/summitto/upsi/internal/paillier"
	"github.com/summitto/upsi/internal/prf"
	"github.com/summitto/upsi/protocol/deletion"
	"github.com/summitto/upsi/tree"
)

const testPaillierBits = 256
const testNodeSize = 4
const testStashSize = 4

func newDeletionKeys(t *testing.T) (*paillier.PublicKey, paillier.KeyShare, paillier.KeyShare) {
	t.Helper()
	pub, shareA, shareB, err := paillier.GenerateThresholdKeys(testPaillierBits)
	require.NoError(t, err)
	return pub, shareA, shareB
}

func newDeletionPair(t *testing.T) (*deletion.Party, *deletion.Party) {
	t.Helper()
	pub, shareA, shareB := newDeletionKeys(t)

	var streamKey [prf.KeySize]byte
	for i := range streamKey {
		streamKey[i] = byte(i + 7)
	}

	a := deletion.NewParty(pub, shareA, testNodeSize, testStashSize, prf.NewStream(streamKey))
	b := deletion.NewParty(pub, shareB, testNodeSize, testStashSize, prf.NewStream(streamKey))
	return a, b
}

func TestLoadDataSplitsAdditionsAndDeletions(t *testing.T) {
	batch := []tree.PlaintextContent{
		{Element: []byte("e1"), Payload: 5},
		{Element: []byte("e2"), Payload: -3},
		{Element: []byte("e3"), Payload: 0},
		{Element: []byte("e4"), Payload: -1},
	}

	additions, deletions := deletion.LoadData(batch)

	require.Len(t, additions, 2)
	require.Len(t, deletions, 2)
	require.Equal(t, "e1", string(additions[0].Element))
	require.Equal(t, "e3", string(additions[1].Element))
	require.Equal(t, "e2", string(deletions[0].Element))
	require.Equal(t, "e4", string(deletions[1].Element))
}

// TestCombineRoundRoundTrip drives the §4.5 final homomorphic combine between
// two parties holding additive Paillier key shares, confirming
// FinishCombine recovers myAns+peerAns exactly for both positive and
// negative contributions.
func TestCombineRoundRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name        string
		aAns, bAns  int64
		wantResult  int64
	}{
		{"both positive", 5, 2, 7},
		{"deletion cancels addition", 3, -3, 0},
		{"net negative", 1, -4, -3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a, b := newDeletionPair(t)

			aShifted := paillier.ShiftNegative(a.PaillierPub, big.NewInt(tc.aAns))
			bShifted := paillier.ShiftNegative(b.PaillierPub, big.NewInt(tc.bAns))

			aCT, err := paillier.Encrypt(a.PaillierPub, aShifted)
			require.NoError(t, err)
			bCT, err := paillier.Encrypt(b.PaillierPub, bShifted)
			require.NoError(t, err)

			combinedAtA, err := a.CombineRound(aShifted, bCT)
			require.NoError(t, err)
			combinedAtB, err := b.CombineRound(bShifted, aCT)
			require.NoError(t, err)

			// Both parties' combined ciphertexts encrypt the same sum, so each
			// party finishes its own combine with the other party's partial
			// decryption of it.
			bPartial := paillier.PartialDecrypt(b.PaillierPub, b.PaillierShare, combinedAtA)
			result := a.FinishCombine(combinedAtA, bPartial)
			require.Equal(t, tc.wantResult, result)

			aPartial := paillier.PartialDecrypt(a.PaillierPub, a.PaillierShare, combinedAtB)
			result2 := b.FinishCombine(combinedAtB, aPartial)
			require.Equal(t, tc.wantResult, result2)
		})
	}
}

// TestRunDayDeletionCancelsAddition drives RunDay with a stub exchange that
// reports a fixed signed contribution per sub-batch, confirming a same-day
// deletion of everything just added nets to zero running result (spec.md
// §4.6 deletion/addition ordering).
func TestRunDayDeletionCancelsAddition(t *testing.T) {
	a, _ := newDeletionPair(t)

	var exchangedSubBatches [][]tree.PlaintextContent
	exchange := func(sub []tree.PlaintextContent) (int64, error) {
		exchangedSubBatches = append(exchangedSubBatches, sub)
		var sum int64
		for _, c := range sub {
			sum += c.Payload
		}
		return sum, nil
	}

	batch := []tree.PlaintextContent{
		{Element: []byte("x"), Payload: 4},
		{Element: []byte("x"), Payload: -4},
	}

	require.NoError(t, a.RunDay(batch, exchange))
	require.Equal(t, int64(0), a.RunningResult)

	// RunDay must exchange the deletion sub-batch before the addition
	// sub-batch (PartyZero::Run's documented I_del -> II_del -> I_add -> II_add
	// ordering).
	require.Len(t, exchangedSubBatches, 2)
	require.Len(t, exchangedSubBatches[0], 1)
	require.Equal(t, int64(-4), exchangedSubBatches[0][0].Payload)
	require.Len(t, exchangedSubBatches[1], 1)
	require.Equal(t, int64(4), exchangedSubBatches[1][0].Payload)
}

func TestRunDayAccumulatesAcrossDays(t *testing.T) {
	a, _ := newDeletionPair(t)
	exchange := func(sub []tree.PlaintextContent) (int64, error) {
		var sum int64
		for _, c := range sub {
			sum += c.Payload
		}
		return sum, nil
	}

	require.NoError(t, a.RunDay([]tree.PlaintextContent{{Element: []byte("a"), Payload: 2}}, exchange))
	require.Equal(t, int64(2), a.RunningResult)

	require.NoError(t, a.RunDay([]tree.PlaintextContent{{Element: []byte("b"), Payload: 5}, {Element: []byte("a"), Payload: -2}}, exchange))
	require.Equal(t, int64(5), a.RunningResult)
}

func TestRunDayPropagatesExchangeError(t *testing.T) {
	a, _ := newDeletionPair(t)
	boom := assert.AnError
	exchange := func(sub []tree.PlaintextContent) (int64, error) { return 0, boom }

	err := a.RunDay([]tree.PlaintextContent{{Element: []byte("x"), Payload: 1}}, exchange)
	require.ErrorIs(t, err, boom)
}

// TestEqualityAndTransferProducesDistinctBlocksPerPayload exercises the
// garbled-circuit-plus-OT-message construction directly: the two candidate
// OT messages must differ whenever the payload is nonzero, since one carries
// Enc(beta) and the other Enc(beta+payload).
func TestEqualityAndTransferProducesDistinctBlocksPerPayload(t *testing.T) {
	pub, _, _, err := paillier.GenerateThresholdKeys(testPaillierBits)
	require.NoError(t, err)

	garbler := gc.NewGarbler()
	circuit := garbler.Garble(deletion.EqualityBitWidth)

	beta := big.NewInt(42)
	payload := big.NewInt(7)

	labels, m0, m1, err := deletion.EqualityAndTransfer(garbler, circuit, 12345, beta, payload, pub)
	require.NoError(t, err)
	require.Len(t, labels, deletion.EqualityBitWidth)
	require.Len(t, m0, 1)
	require.Len(t, m1, 1)
	require.NotEqual(t, m0[0], m1[0])
}
