package fcm

import (
	"context"

	"github.com/btcrollup/node/primitives"
)

// drainPendingFinalizations implements SPEC_FULL.md 4.8.2: find the
// latest pending entry whose epoch is <= the chainstate's current
// prev_epoch (i.e. already locally executed), finalize it in the
// unfinalized tree, tell the engine, and drop the drained prefix. If no
// pending entry qualifies yet, it is a no-op — we simply haven't
// executed that far locally.
func (m *Manager) drainPendingFinalizations(ctx context.Context) {
	if len(m.pendingFinalization) == 0 || m.curChainstate == nil {
		return
	}
	prevEpoch := m.curChainstate.PrevEpoch.Epoch

	drainIdx := -1
	for i, e := range m.pendingFinalization {
		if e.Epoch <= prevEpoch {
			drainIdx = i
		}
	}
	if drainIdx < 0 {
		return
	}
	entry := m.pendingFinalization[drainIdx]

	if err := m.eng.UpdateFinalizedBlock(ctx, entry.LastBlkid); err != nil {
		log.WithError(err).Warn("engine update_finalized_block failed")
	}
	if _, err := m.tree.UpdateFinalizedEpoch(entry.LastBlkid); err != nil {
		log.WithError(err).WithField("epoch", entry.Epoch).Warn("tree finalization failed")
		return
	}

	ep := entry
	m.declaredFinalEpoch = &ep
	m.pendingFinalization = append([]primitives.EpochCommitment(nil), m.pendingFinalization[drainIdx+1:]...)
	log.WithField("epoch", entry.Epoch).Info("advanced declared finalized epoch")
}
