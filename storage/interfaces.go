// Package storage defines the contracts the CSM and FCM use to persist
// and retrieve chainstate history, checkpoints, and L1/L2 block records.
// It carries no algorithmic logic of its own beyond atomicity and
// lookup semantics; concrete implementations live in memstore (in-memory,
// used by tests) and boltstore (bbolt-backed).
package storage

import (
	"errors"

	"github.com/btcrollup/node/primitives"
)

// ErrNotBootstrapped is returned by GetLastWriteIdx when no write batch
// has ever been recorded.
var ErrNotBootstrapped = errors.New("storage: chainstate store not bootstrapped")

// ErrNotFound is returned when a requested key has no record.
var ErrNotFound = errors.New("storage: not found")

// WriteBatchEntry is one chainstate store record: the resulting toplevel
// chainstate and the blkid of the block that produced it. The write batch
// itself is not kept.
type WriteBatchEntry struct {
	Chainstate *primitives.Chainstate
	Blkid      primitives.L2BlockId
}

// ChainstateStore persists a slot-indexed history of toplevel chainstates
// and the blkids that produced them, per SPEC_FULL.md 4.1; the write
// batches themselves are not persisted.
type ChainstateStore interface {
	PutWriteBatch(slot uint64, entry WriteBatchEntry) error
	GetToplevel(slot uint64) (*primitives.Chainstate, primitives.L2BlockId, error)
	GetLastWriteIdx() (uint64, error)
	RollbackWritesTo(slot uint64) error
	PurgeBefore(slot uint64) error
}

// CheckpointStore persists one entry per declared epoch plus epoch
// summaries, per SPEC_FULL.md 4.2.
type CheckpointStore interface {
	Get(epoch uint64) (*primitives.CheckpointEntry, error)
	Put(epoch uint64, entry *primitives.CheckpointEntry) error
	GetLastIdx() (uint64, error)
	InsertEpochSummary(summary primitives.EpochSummary) error
	GetEpochSummary(epoch uint64) (*primitives.EpochSummary, error)
}

// L1Store persists L1 block manifests by height and blkid.
type L1Store interface {
	PutManifest(m primitives.L1BlockManifest) error
	GetManifest(height uint64) (*primitives.L1BlockManifest, error)
	GetManifestByBlkid(blkid primitives.L1BlockId) (*primitives.L1BlockManifest, error)
}

// BlockStatus tags the FCM's validity verdict for an L2 block.
type BlockStatus int

const (
	StatusUnchecked BlockStatus = iota
	StatusValid
	StatusInvalid
)

// L2Store persists L2 block bundles, the blocks seen at a given height,
// and their validity status.
type L2Store interface {
	PutBlock(blkid primitives.L2BlockId, bundle primitives.L2BlockBundle) error
	GetBlock(blkid primitives.L2BlockId) (*primitives.L2BlockBundle, error)
	GetBlocksAtHeight(slot uint64) ([]primitives.L2BlockId, error)
	SetStatus(blkid primitives.L2BlockId, status BlockStatus) error
	GetStatus(blkid primitives.L2BlockId) (BlockStatus, error)
}

// ClientStateStore persists the append-only sequence of client state
// writes and actions the CSM produces, one entry per processed sync
// event, per the `ClientStateWrites`/`ClientStateActions` layout of
// SPEC_FULL.md 6.
type ClientStateStore interface {
	PutUpdate(idx uint64, state *primitives.ClientState, actions []primitives.SyncAction) error
	GetState(idx uint64) (*primitives.ClientState, error)
	GetActions(idx uint64) ([]primitives.SyncAction, error)
	GetLastIdx() (uint64, error)
}

// EventContext is the CSM's only coupling to physical storage: it loads
// L1 manifests, L2 bundles, and toplevel chainstates by id or index. Test
// code implements it directly over an in-memory chain segment.
type EventContext interface {
	GetL1Manifest(height uint64) (*primitives.L1BlockManifest, error)
	GetL2Bundle(blkid primitives.L2BlockId) (*primitives.L2BlockBundle, error)
	GetToplevelChainstate(slot uint64) (*primitives.Chainstate, error)
}
