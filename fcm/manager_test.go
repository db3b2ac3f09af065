package fcm

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcrollup/node/chaintsn"
	"github.com/btcrollup/node/engine"
	"github.com/btcrollup/node/params"
	"github.com/btcrollup/node/primitives"
	"github.com/btcrollup/node/storage"
	"github.com/btcrollup/node/storage/memstore"
)

func testParams() *params.RollupParams {
	return &params.RollupParams{
		RollupName:         "test",
		EpochSlots:         100,
		L1ReorgSafeDepth:   2,
		MaxDepositsInBlock: 8,
		CredRule:           params.CredRule{Kind: params.CredUnchecked},
	}
}

// harness wires a Manager over fresh memstores and a mock engine, rooted
// at a synthetic genesis block whose chainstate is the zero value.
type harness struct {
	l2    *memstore.L2Store
	chain *memstore.ChainstateStore
	ckpt  *memstore.CheckpointStore
	eng   *engine.Mock
	p     *params.RollupParams
	mgr   *Manager

	genesisBlkid primitives.L2BlockId
}

func newHarness(t *testing.T, p *params.RollupParams) *harness {
	t.Helper()
	l2 := memstore.NewL2Store()
	chain := memstore.NewChainstateStore()
	ckpt := memstore.NewCheckpointStore()
	eng := engine.NewMock()

	genesisState := &primitives.Chainstate{}
	root := genesisState.ComputeStateRoot()
	header := primitives.L2BlockHeader{Slot: 0, StateRoot: root}
	blkid := header.Hash()

	require.NoError(t, chain.PutWriteBatch(0, storage.WriteBatchEntry{Chainstate: genesisState, Blkid: blkid}))
	require.NoError(t, l2.PutBlock(blkid, primitives.L2BlockBundle{Header: primitives.SignedL2BlockHeader{Header: header}}))
	require.NoError(t, l2.SetStatus(blkid, storage.StatusValid))

	genesis := primitives.L2BlockCommitment{Slot: 0, Blkid: blkid}
	mgr := NewManager(genesis, genesisState, l2, chain, ckpt, eng, p)

	return &harness{l2: l2, chain: chain, ckpt: ckpt, eng: eng, p: p, mgr: mgr, genesisBlkid: blkid}
}

// extend builds a block extending parent with an empty body, stores it
// in the L2 store, and returns its blkid.
func (h *harness) extend(t *testing.T, parentBlkid primitives.L2BlockId, parentState *primitives.Chainstate, slot uint64) primitives.L2BlockId {
	t.Helper()
	cache := chaintsn.NewStateCache(parentBlkid, parentState)
	header := primitives.L2BlockHeader{Slot: slot, Parent: parentBlkid}
	require.NoError(t, chaintsn.ProcessBlock(cache, primitives.L2BlockId{}, header, primitives.L2BlockBody{}, h.p))
	next := cache.Finalize()
	header.StateRoot = next.ComputeStateRoot()
	blkid := header.Hash()
	require.NoError(t, h.l2.PutBlock(blkid, primitives.L2BlockBundle{Header: primitives.SignedL2BlockHeader{Header: header}}))
	return blkid
}

func TestProcessNewBlockExtendsTip(t *testing.T) {
	p := testParams()
	h := newHarness(t, p)
	blk1 := h.extend(t, h.genesisBlkid, &primitives.Chainstate{}, 1)

	require.NoError(t, h.mgr.ProcessNewBlock(context.Background(), blk1))

	assert.Equal(t, primitives.L2BlockCommitment{Slot: 1, Blkid: blk1}, h.mgr.BestTip())
	status, err := h.l2.GetStatus(blk1)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusValid, status)
	assert.Equal(t, blk1, h.eng.Safe)
}

func TestProcessNewBlockRejectsUnknownBlock(t *testing.T) {
	p := testParams()
	h := newHarness(t, p)
	err := h.mgr.ProcessNewBlock(context.Background(), primitives.L2BlockId{0xFF})
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestProcessNewBlockMarksEngineRejectedInvalid(t *testing.T) {
	p := testParams()
	h := newHarness(t, p)
	blk1 := h.extend(t, h.genesisBlkid, &primitives.Chainstate{}, 1)
	h.eng.Invalidated[blk1] = true

	require.NoError(t, h.mgr.ProcessNewBlock(context.Background(), blk1))

	status, err := h.l2.GetStatus(blk1)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusInvalid, status)
	assert.Equal(t, primitives.L2BlockCommitment{Slot: 0, Blkid: h.genesisBlkid}, h.mgr.BestTip(), "tip does not move past a block the engine rejects")
}

func TestProcessNewBlockRejectsBadCredential(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubkey := priv.PubKey().SerializeCompressed()[1:]

	p := testParams()
	p.CredRule = params.CredRule{Kind: params.CredSchnorrKey, Pubkey: pubkey}
	h := newHarness(t, p)
	blk1 := h.extend(t, h.genesisBlkid, &primitives.Chainstate{}, 1)
	// header carries no signature at all: verification must fail closed.

	err = h.mgr.ProcessNewBlock(context.Background(), blk1)
	assert.ErrorIs(t, err, ErrBadCredential)
}

func TestProcessNewBlockAcceptsValidCredential(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubkey := priv.PubKey().SerializeCompressed()[1:]

	p := testParams()
	p.CredRule = params.CredRule{Kind: params.CredSchnorrKey, Pubkey: pubkey}
	h := newHarness(t, p)

	cache := chaintsn.NewStateCache(h.genesisBlkid, &primitives.Chainstate{})
	header := primitives.L2BlockHeader{Slot: 1, Parent: h.genesisBlkid}
	require.NoError(t, chaintsn.ProcessBlock(cache, primitives.L2BlockId{}, header, primitives.L2BlockBody{}, p))
	header.StateRoot = cache.Finalize().ComputeStateRoot()
	digest := headerSigningHash(header)
	sig, err := schnorr.Sign(priv, digest[:])
	require.NoError(t, err)
	blkid := header.Hash()
	require.NoError(t, h.l2.PutBlock(blkid, primitives.L2BlockBundle{
		Header: primitives.SignedL2BlockHeader{Header: header, Signature: sig.Serialize()},
	}))

	require.NoError(t, h.mgr.ProcessNewBlock(context.Background(), blkid))
	assert.Equal(t, primitives.L2BlockCommitment{Slot: 1, Blkid: blkid}, h.mgr.BestTip())
}

func TestProcessNewBlockReorgsToLongerBranch(t *testing.T) {
	p := testParams()
	h := newHarness(t, p)

	a1 := h.extend(t, h.genesisBlkid, &primitives.Chainstate{}, 1)
	require.NoError(t, h.mgr.ProcessNewBlock(context.Background(), a1))
	assert.Equal(t, uint64(1), h.mgr.BestTip().Slot)

	// b1 differs from a1 only in its timestamp, so it is a distinct block
	// competing for the same slot.
	b1Header := primitives.L2BlockHeader{Slot: 1, Parent: h.genesisBlkid, Timestamp: 1}
	b1Cache := chaintsn.NewStateCache(h.genesisBlkid, &primitives.Chainstate{})
	require.NoError(t, chaintsn.ProcessBlock(b1Cache, primitives.L2BlockId{}, b1Header, primitives.L2BlockBody{}, p))
	b1Header.StateRoot = b1Cache.Finalize().ComputeStateRoot()
	b1 := b1Header.Hash()
	require.NoError(t, h.l2.PutBlock(b1, primitives.L2BlockBundle{Header: primitives.SignedL2BlockHeader{Header: b1Header}}))
	require.NotEqual(t, a1, b1)
	require.NoError(t, h.mgr.ProcessNewBlock(context.Background(), b1))
	assert.Equal(t, a1, h.mgr.BestTip().Blkid, "equal-slot competitor does not move the sticky tip")

	b2 := h.extend(t, b1, &primitives.Chainstate{}, 2)
	require.NoError(t, h.mgr.ProcessNewBlock(context.Background(), b2))

	assert.Equal(t, primitives.L2BlockCommitment{Slot: 2, Blkid: b2}, h.mgr.BestTip(), "strictly longer branch wins and triggers a reorg")
	status, err := h.l2.GetStatus(b2)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusValid, status)
}

func TestOnClientStateDrainsFinalization(t *testing.T) {
	p := testParams()
	p.EpochSlots = 2
	h := newHarness(t, p)

	blk1 := h.extend(t, h.genesisBlkid, &primitives.Chainstate{}, 1)
	require.NoError(t, h.mgr.ProcessNewBlock(context.Background(), blk1))

	st1, _, err := h.chain.GetToplevel(1)
	require.NoError(t, err)
	require.True(t, st1.IsEpochFinishing(), "slot 1 with epoch_slots=2 closes epoch 0")

	cs := &primitives.ClientState{DeclaredFinalEpoch: &primitives.EpochCommitment{Epoch: 0, LastSlot: 1, LastBlkid: blk1}}
	require.NoError(t, h.mgr.OnClientState(context.Background(), cs))

	assert.Equal(t, blk1, h.eng.Finalized)
}

func TestOnClientStateRejectsStaleEpoch(t *testing.T) {
	p := testParams()
	h := newHarness(t, p)
	cs := &primitives.ClientState{DeclaredFinalEpoch: &primitives.EpochCommitment{Epoch: 0}}
	require.NoError(t, h.mgr.OnClientState(context.Background(), cs))

	err := h.mgr.OnClientState(context.Background(), cs)
	assert.ErrorIs(t, err, ErrStaleFinalization)
}
