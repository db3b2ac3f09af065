package fcm

import (
	"github.com/btcrollup/node/chaintsn"
	"github.com/btcrollup/node/forkchoice"
	"github.com/btcrollup/node/primitives"
	"github.com/btcrollup/node/storage"
)

// pendingWrite is one block's would-be storage write, accumulated in
// memory while a tip update is being validated.
type pendingWrite struct {
	slot  uint64
	entry storage.WriteBatchEntry
}

// applyTipUpdate applies update to the in-memory chainstate, per
// SPEC_FULL.md 4.8.1. The whole update is atomic with respect to m's
// in-memory tip: every block's STF runs against an in-memory cache
// first, and storage writes are only persisted once every block in the
// update has succeeded. A StaterootMismatch or InvalidStateTsn aborts
// the entire batch before any chainstate write is persisted; epoch
// summaries of blocks replayed before the failing one have already been
// inserted into the checkpoint store.
func (m *Manager) applyTipUpdate(update *forkchoice.TipUpdate) (*primitives.Chainstate, error) {
	switch update.Kind {
	case forkchoice.ExtendTip:
		return m.applyChain(update.Old, []primitives.L2BlockId{update.New}, nil)

	case forkchoice.LongExtend:
		chain := append(append([]primitives.L2BlockId(nil), update.Mid...), update.New)
		return m.applyChain(update.Old, chain, nil)

	case forkchoice.Revert:
		return m.revertTo(update.New)

	case forkchoice.Reorg:
		pivotState, pivotSlot, err := m.loadAndRollbackTo(update.Pivot)
		if err != nil {
			return nil, err
		}
		return m.applyChain(update.Pivot, update.Up, &rollbackPoint{state: pivotState, slot: pivotSlot})

	default:
		return nil, errUnknownTipUpdateKind
	}
}

// rollbackPoint carries the chainstate already loaded for the pivot of a
// reorg, so applyChain doesn't need to reload it from storage.
type rollbackPoint struct {
	state *primitives.Chainstate
	slot  uint64
}

// applyChain runs the STF for each block in chain (parent of the first
// being startBlkid), accumulating writes in memory, and only commits
// them to storage once every block has succeeded.
func (m *Manager) applyChain(startBlkid primitives.L2BlockId, chain []primitives.L2BlockId, rb *rollbackPoint) (*primitives.Chainstate, error) {
	var parentState *primitives.Chainstate
	if rb != nil {
		parentState = rb.state
	} else {
		parentState = m.curChainstate
	}

	parentTip := startBlkid
	var writes []pendingWrite
	cur := parentState

	for _, blkid := range chain {
		bundle, err := m.l2.GetBlock(blkid)
		if err != nil {
			return nil, err
		}
		slot := bundle.Header.Header.Slot

		cache := chaintsn.NewStateCache(parentTip, cur)
		if err := chaintsn.ProcessBlock(cache, blkid, bundle.Header.Header, bundle.Body, m.params); err != nil {
			return nil, err
		}
		next := cache.Finalize()

		gotRoot := next.ComputeStateRoot()
		if gotRoot != bundle.Header.Header.StateRoot {
			return nil, ErrStaterootMismatch
		}

		if next.IsEpochFinishing() {
			summary := primitives.EpochSummary{
				Epoch:          next.PrevEpoch.Epoch,
				Terminal:       primitives.L2BlockCommitment{Slot: slot, Blkid: blkid},
				PrevTerminal:   cur.PrevEpoch.ToBlockCommitment(),
				NewL1Block:     next.L1View.SafeBlock,
				EpochFinalRoot: gotRoot,
			}
			if err := m.ckpt.InsertEpochSummary(summary); err != nil {
				return nil, err
			}
		}

		writes = append(writes, pendingWrite{slot: slot, entry: storage.WriteBatchEntry{Chainstate: next, Blkid: blkid}})
		cur = next
		parentTip = blkid
	}

	if rb != nil {
		if err := m.chain.RollbackWritesTo(rb.slot); err != nil {
			return nil, err
		}
	}
	for _, w := range writes {
		if err := m.chain.PutWriteBatch(w.slot, w.entry); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// revertTo handles a pure Revert: load the chainstate at the ancestor's
// slot and roll storage writes back to it.
func (m *Manager) revertTo(newTip primitives.L2BlockId) (*primitives.Chainstate, error) {
	state, slot, err := m.loadAndRollbackTo(newTip)
	if err != nil {
		return nil, err
	}
	if err := m.chain.RollbackWritesTo(slot); err != nil {
		return nil, err
	}
	return state, nil
}

// loadAndRollbackTo loads the cached chainstate at blkid's slot without
// mutating storage; callers decide when to actually roll storage back
// (Revert rolls back right after loading; Reorg rolls back only once the
// replayed `up` chain has fully succeeded, just before its writes are
// persisted).
func (m *Manager) loadAndRollbackTo(blkid primitives.L2BlockId) (*primitives.Chainstate, uint64, error) {
	slot, ok := m.tree.GetSlot(blkid)
	if !ok {
		return nil, 0, forkchoice.ErrUnknownBlock
	}
	state, storedBlkid, err := m.chain.GetToplevel(slot)
	if err != nil {
		return nil, 0, err
	}
	if storedBlkid != blkid {
		return nil, 0, ErrStaterootMismatch
	}
	return state, slot, nil
}
