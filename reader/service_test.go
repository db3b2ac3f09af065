package reader

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcrollup/node/params"
	"github.com/btcrollup/node/primitives"
)

// fakeL1Client is an in-memory L1Client backed by a mutable chain of
// (height -> blkid) plus block bodies, so tests can mutate the tip to
// simulate a reorg between polls.
type fakeL1Client struct {
	heights map[uint64]primitives.L1BlockId
	blocks  map[primitives.L1BlockId]*wire.MsgBlock
	tip     uint64
}

func newFakeL1Client() *fakeL1Client {
	return &fakeL1Client{
		heights: make(map[uint64]primitives.L1BlockId),
		blocks:  make(map[primitives.L1BlockId]*wire.MsgBlock),
	}
}

func (c *fakeL1Client) setBlock(height uint64, tag byte) primitives.L1BlockId {
	var id primitives.L1BlockId
	id[0] = tag
	id[1] = byte(height)
	c.heights[height] = id
	c.blocks[id] = wire.NewMsgBlock(&wire.BlockHeader{})
	if height > c.tip {
		c.tip = height
	}
	return id
}

func (c *fakeL1Client) GetBestBlockHeight(ctx context.Context) (uint64, error) {
	return c.tip, nil
}

func (c *fakeL1Client) GetBlockHash(ctx context.Context, height uint64) (primitives.L1BlockId, error) {
	id, ok := c.heights[height]
	if !ok {
		return primitives.L1BlockId{}, assertMissingHeight
	}
	return id, nil
}

func (c *fakeL1Client) GetBlock(ctx context.Context, blkid primitives.L1BlockId) (*wire.MsgBlock, error) {
	b, ok := c.blocks[blkid]
	if !ok {
		return nil, assertMissingBlock
	}
	return b, nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const (
	assertMissingHeight = sentinelErr("fake: no block at height")
	assertMissingBlock  = sentinelErr("fake: no block for id")
)

// fakeSink records every manifest and event handed to it, in order.
type fakeSink struct {
	manifests []primitives.L1BlockManifest
	events    []primitives.SyncEvent
}

func (s *fakeSink) PutManifest(m primitives.L1BlockManifest) error {
	s.manifests = append(s.manifests, m)
	return nil
}

func (s *fakeSink) EmitEvent(ctx context.Context, ev primitives.SyncEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func testReaderParams() *params.RollupParams {
	return &params.RollupParams{RollupName: "strata", HorizonL1Height: 100, L1ReorgSafeDepth: 2}
}

func TestPollOnceForwardFillsFromHorizon(t *testing.T) {
	p := testReaderParams()
	client := newFakeL1Client()
	client.setBlock(100, 1)
	client.setBlock(101, 2)
	client.setBlock(102, 3)
	sink := &fakeSink{}
	svc := NewService(client, sink, p)

	require.NoError(t, svc.pollOnce(context.Background()))

	require.Len(t, sink.events, 3)
	for i, ev := range sink.events {
		assert.Equal(t, primitives.EventL1Block, ev.Kind)
		assert.Equal(t, uint64(100+i), ev.Block.Height)
	}
	assert.Len(t, sink.manifests, 3)
	assert.Len(t, svc.window, 3)
}

func TestPollOnceFastPathSkipsUnchangedTip(t *testing.T) {
	p := testReaderParams()
	client := newFakeL1Client()
	client.setBlock(100, 1)
	sink := &fakeSink{}
	svc := NewService(client, sink, p)

	require.NoError(t, svc.pollOnce(context.Background()))
	require.Len(t, sink.events, 1)

	require.NoError(t, svc.pollOnce(context.Background()))
	assert.Len(t, sink.events, 1, "a second poll with no new tip emits nothing further")
}

func TestPollOnceDetectsReorgAndEmitsRevert(t *testing.T) {
	p := testReaderParams()
	client := newFakeL1Client()
	client.setBlock(100, 1)
	client.setBlock(101, 2)
	client.setBlock(102, 3)
	sink := &fakeSink{}
	svc := NewService(client, sink, p)
	require.NoError(t, svc.pollOnce(context.Background()))
	require.Len(t, sink.events, 3)

	// Reorg at height 101: replace 101 and 102 with new blocks.
	client.setBlock(101, 0xB2)
	client.setBlock(102, 0xB3)

	require.NoError(t, svc.pollOnce(context.Background()))

	var revertEv *primitives.SyncEvent
	for i := range sink.events {
		if sink.events[i].Kind == primitives.EventL1Revert {
			revertEv = &sink.events[i]
			break
		}
	}
	require.NotNil(t, revertEv, "a reorg must emit an L1Revert event")
	assert.Equal(t, uint64(100), revertEv.Block.Height, "pivot is the last unchanged height")

	var newBlockHeights []uint64
	for _, ev := range sink.events {
		if ev.Kind == primitives.EventL1Block {
			newBlockHeights = append(newBlockHeights, ev.Block.Height)
		}
	}
	assert.Equal(t, []uint64{100, 101, 102, 101, 102}, newBlockHeights)
}

func (c *fakeL1Client) setBlockWithTx(height uint64, tag byte, tx *wire.MsgTx) primitives.L1BlockId {
	id := c.setBlock(height, tag)
	b := c.blocks[id]
	b.Transactions = append(b.Transactions, tx)
	return id
}

func TestPollOnceAdvancesEpochFromObservedCheckpoint(t *testing.T) {
	p := testReaderParams()
	client := newFakeL1Client()
	client.setBlock(100, 1)

	var payload []byte
	payload = append(payload, encU64(3)...)
	payload = append(payload, encL1Commitment(primitives.L1BlockCommitment{Height: 10})...)
	payload = append(payload, encL1Commitment(primitives.L1BlockCommitment{Height: 20})...)
	payload = append(payload, encL2Commitment(primitives.L2BlockCommitment{Slot: 100})...)
	payload = append(payload, encL2Commitment(primitives.L2BlockCommitment{Slot: 200})...)
	payload = append(payload, make([]byte, 32)...)
	payload = append(payload, make([]byte, 32)...)
	payload = append(payload, encBytes(nil)...)
	payload = append(payload, encBytes(nil)...)
	payload = append(payload, encBytes(nil)...)
	push := buildWitnessPush(p.RollupName, tagCheckpoint, payload)
	client.setBlockWithTx(101, 2, txWithWitness(push))
	client.setBlock(102, 3)

	sink := &fakeSink{}
	svc := NewService(client, sink, p)

	require.NoError(t, svc.pollOnce(context.Background()))

	require.Len(t, sink.manifests, 3)
	assert.Equal(t, uint64(0), sink.manifests[0].Epoch, "height 100 is tagged under the reader's starting epoch")
	assert.Equal(t, uint64(0), sink.manifests[1].Epoch, "the block carrying the checkpoint is itself still tagged under the prior epoch")
	assert.Equal(t, uint64(4), sink.manifests[2].Epoch, "height 102 is tagged under epoch+1 once the checkpoint for epoch 3 is observed")
}

func TestPollOnceReturnsErrNoPivotWhenWindowExhausted(t *testing.T) {
	p := testReaderParams()
	client := newFakeL1Client()
	client.setBlock(100, 1)
	client.setBlock(101, 2)
	sink := &fakeSink{}
	svc := NewService(client, sink, p)
	svc.WindowSize = 1
	require.NoError(t, svc.pollOnce(context.Background()))
	require.Len(t, svc.window, 1, "window is capped to WindowSize")

	client.setBlock(101, 0xFF)

	err := svc.pollOnce(context.Background())
	assert.ErrorIs(t, err, ErrNoPivot)
}
