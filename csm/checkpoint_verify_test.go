package csm

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcrollup/node/params"
	"github.com/btcrollup/node/primitives"
)

func signCheckpoint(t *testing.T, priv *btcec.PrivateKey, ckpt *primitives.SignedCheckpoint) {
	t.Helper()
	digest := checkpointSigningHash(ckpt)
	sig, err := schnorr.Sign(priv, digest[:])
	require.NoError(t, err)
	ckpt.Signature = sig.Serialize()
}

func TestVerifyCheckpointAcceptsFirstCheckpoint(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubkey := priv.PubKey().SerializeCompressed()[1:]

	p := &params.RollupParams{
		GenesisL1Height: 100,
		CredRule:        params.CredRule{Kind: params.CredSchnorrKey, Pubkey: pubkey},
		ProofPublishMode: params.ProofPublishMode{Kind: params.ProofStrict},
	}
	ckpt := &primitives.SignedCheckpoint{
		BatchInfo: primitives.BatchInfo{
			Epoch:   0,
			L1Range: primitives.L1Range{Start: primitives.L1BlockCommitment{Height: 100}},
		},
		ProofBytes: []byte{0xAA},
	}
	signCheckpoint(t, priv, ckpt)

	assert.NoError(t, verifyCheckpoint(p, ckpt, nil, 0))
}

func TestVerifyCheckpointRejectsBadSignature(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubkey := priv.PubKey().SerializeCompressed()[1:]
	p := &params.RollupParams{
		GenesisL1Height: 100,
		CredRule:        params.CredRule{Kind: params.CredSchnorrKey, Pubkey: pubkey},
	}
	ckpt := &primitives.SignedCheckpoint{
		BatchInfo:  primitives.BatchInfo{L1Range: primitives.L1Range{Start: primitives.L1BlockCommitment{Height: 100}}},
		ProofBytes: []byte{0xAA},
	}
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signCheckpoint(t, other, ckpt)

	err = verifyCheckpoint(p, ckpt, nil, 0)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyCheckpointRejectsNonZeroFirstEpoch(t *testing.T) {
	p := &params.RollupParams{GenesisL1Height: 100}
	ckpt := &primitives.SignedCheckpoint{
		BatchInfo:  primitives.BatchInfo{Epoch: 1, L1Range: primitives.L1Range{Start: primitives.L1BlockCommitment{Height: 100}}},
		ProofBytes: []byte{0xAA},
	}
	assert.ErrorIs(t, verifyCheckpoint(p, ckpt, nil, 0), ErrEpochNotContiguous)
}

func TestVerifyCheckpointRejectsL1RangeGapAtGenesis(t *testing.T) {
	p := &params.RollupParams{GenesisL1Height: 100}
	ckpt := &primitives.SignedCheckpoint{
		BatchInfo:  primitives.BatchInfo{L1Range: primitives.L1Range{Start: primitives.L1BlockCommitment{Height: 101}}},
		ProofBytes: []byte{0xAA},
	}
	assert.ErrorIs(t, verifyCheckpoint(p, ckpt, nil, 0), ErrL1RangeGap)
}

func TestVerifyCheckpointChainsAgainstPrior(t *testing.T) {
	p := &params.RollupParams{GenesisL1Height: 100}
	var root [32]byte
	root[0] = 5
	prior := &primitives.L1Checkpoint{
		BatchInfo:       primitives.BatchInfo{Epoch: 0, L1Range: primitives.L1Range{End: primitives.L1BlockCommitment{Height: 105}}},
		BatchTransition: primitives.BatchTransition{NewStateRoot: root},
	}

	good := &primitives.SignedCheckpoint{
		BatchInfo:       primitives.BatchInfo{Epoch: 1, L1Range: primitives.L1Range{Start: primitives.L1BlockCommitment{Height: 106}}},
		BatchTransition: primitives.BatchTransition{PrevStateRoot: root},
		ProofBytes:      []byte{0xAA},
	}
	assert.NoError(t, verifyCheckpoint(p, good, prior, 0))

	badEpoch := *good
	badEpoch.BatchInfo.Epoch = 5
	assert.ErrorIs(t, verifyCheckpoint(p, &badEpoch, prior, 0), ErrEpochNotContiguous)

	badGap := *good
	badGap.BatchInfo.L1Range.Start.Height = 200
	assert.ErrorIs(t, verifyCheckpoint(p, &badGap, prior, 0), ErrL1RangeGap)

	badTransition := *good
	badTransition.BatchTransition.PrevStateRoot = [32]byte{0xFF}
	assert.ErrorIs(t, verifyCheckpoint(p, &badTransition, prior, 0), ErrBadTransition)
}

func TestVerifyCheckpointProofMissingStrictRejects(t *testing.T) {
	p := &params.RollupParams{GenesisL1Height: 100, ProofPublishMode: params.ProofPublishMode{Kind: params.ProofStrict}}
	ckpt := &primitives.SignedCheckpoint{BatchInfo: primitives.BatchInfo{L1Range: primitives.L1Range{Start: primitives.L1BlockCommitment{Height: 100}}}}
	assert.ErrorIs(t, verifyCheckpoint(p, ckpt, nil, 0), ErrProofMissing)
}

func TestVerifyCheckpointProofMissingTimeoutAcceptsAfterElapsed(t *testing.T) {
	p := &params.RollupParams{
		GenesisL1Height:  100,
		ProofPublishMode: params.ProofPublishMode{Kind: params.ProofTimeout, TimeoutMillis: 1000},
	}
	ckpt := &primitives.SignedCheckpoint{BatchInfo: primitives.BatchInfo{L1Range: primitives.L1Range{Start: primitives.L1BlockCommitment{Height: 100}}}}

	assert.ErrorIs(t, verifyCheckpoint(p, ckpt, nil, 500), ErrProofMissing)
	assert.NoError(t, verifyCheckpoint(p, ckpt, nil, 1000))
}
