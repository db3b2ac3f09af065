// Package fcm implements the Fork Choice Manager: it validates incoming
// L2 blocks, maintains the unfinalized block tree, selects the
// canonical tip, applies reorgs by replaying the chainstate STF, and
// drains finalization signals from the CSM against an execution engine,
// per SPEC_FULL.md 4.8.
package fcm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/btcrollup/node/chaintsn"
	"github.com/btcrollup/node/engine"
	"github.com/btcrollup/node/forkchoice"
	"github.com/btcrollup/node/params"
	"github.com/btcrollup/node/primitives"
	"github.com/btcrollup/node/storage"
)

var log = logrus.WithField("prefix", "fcm")

// defaultMaxTipSearchDepth bounds ComputeTipUpdate's ancestor walk, per
// SPEC_FULL.md 4.8 step 8.
const defaultMaxTipSearchDepth = 100

// ChainSyncStatusUpdate is published whenever the canonical tip changes;
// a read-only snapshot, matching the teacher's status-channel pattern.
type ChainSyncStatusUpdate struct {
	Tip            primitives.L2BlockCommitment
	FinalizedEpoch *primitives.EpochCommitment
}

// Manager holds all in-memory FCM state: the unfinalized tree, the
// current best tip and its cached chainstate, and the FIFO of epochs
// awaiting local execution before they can be finalized.
type Manager struct {
	mu sync.Mutex

	l2     storage.L2Store
	chain  storage.ChainstateStore
	ckpt   storage.CheckpointStore
	eng    engine.Ctl
	params *params.RollupParams

	tree *forkchoice.Tree

	bestTip       primitives.L2BlockCommitment
	curChainstate *primitives.Chainstate

	declaredFinalEpoch  *primitives.EpochCommitment
	pendingFinalization []primitives.EpochCommitment

	maxTipSearchDepth int

	statusCh chan ChainSyncStatusUpdate
}

// NewManager constructs a Manager rooted at the genesis L2 block, whose
// chainstate must already be recorded at slot 0 in chain.
func NewManager(
	genesis primitives.L2BlockCommitment,
	genesisChainstate *primitives.Chainstate,
	l2 storage.L2Store,
	chain storage.ChainstateStore,
	ckpt storage.CheckpointStore,
	eng engine.Ctl,
	p *params.RollupParams,
) *Manager {
	return &Manager{
		l2:                l2,
		chain:             chain,
		ckpt:              ckpt,
		eng:               eng,
		params:            p,
		tree:              forkchoice.NewTree(genesis.Blkid, genesis.Slot),
		bestTip:           genesis,
		curChainstate:     genesisChainstate,
		maxTipSearchDepth: defaultMaxTipSearchDepth,
		statusCh:          make(chan ChainSyncStatusUpdate, 16),
	}
}

// StatusUpdates returns the channel ChainSyncStatusUpdate values are
// published on after every successful tip change. Callers that don't
// want updates may simply never read it; sends are non-blocking and
// drop the oldest entry under backpressure.
func (m *Manager) StatusUpdates() <-chan ChainSyncStatusUpdate {
	return m.statusCh
}

// BestTip returns the current canonical tip.
func (m *Manager) BestTip() primitives.L2BlockCommitment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bestTip
}

// ProcessNewBlock runs the full validate/insert/choose-tip/apply
// pipeline for one incoming block, per SPEC_FULL.md 4.8 steps 1-10.
func (m *Manager) ProcessNewBlock(ctx context.Context, blkid primitives.L2BlockId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bundle, err := m.l2.GetBlock(blkid)
	if err != nil {
		return errors.Wrap(ErrBlockNotFound, err.Error())
	}

	if err := verifyCredential(m.params, bundle.Header); err != nil {
		return err
	}

	status, err := m.l2.GetStatus(blkid)
	if err != nil && err != storage.ErrNotFound {
		return err
	}
	if status == storage.StatusInvalid {
		return ErrBlockMarkedInvalid
	}

	if err := chaintsn.ValidateBlockSegments(bundle.Body, m.params); err != nil {
		_ = m.l2.SetStatus(blkid, storage.StatusInvalid)
		log.WithField("blkid", blkid.String()).WithError(err).Warn("structural validation failed")
		return nil
	}

	if bundle.Header.Header.Slot != 0 {
		execStatus, err := m.eng.SubmitPayload(ctx, blkid, bundle.Accessory)
		if err != nil {
			return errors.Wrap(ErrEngineConnection, err.Error())
		}
		if execStatus == engine.StatusInvalid {
			_ = m.l2.SetStatus(blkid, storage.StatusInvalid)
			log.WithField("blkid", blkid.String()).Warn("engine rejected payload")
			return nil
		}
	}

	if _, err := m.tree.Attach(blkid, bundle.Header.Header.Parent, bundle.Header.Header.Slot); err != nil {
		return err
	}

	candidate := forkchoice.ChooseBestTip(m.tree, m.bestTip)
	if candidate == m.bestTip {
		return nil
	}

	update, err := forkchoice.ComputeTipUpdate(m.bestTip.Blkid, candidate.Blkid, m.maxTipSearchDepth, m.tree)
	if err != nil {
		return err
	}
	if update == nil {
		log.WithField("candidate", candidate.Blkid.String()).Warn("no common ancestor within search depth; not switching tip")
		return nil
	}

	newState, err := m.applyTipUpdate(update)
	if err != nil {
		if _, ok := err.(*chaintsn.InvalidStateTsnError); ok {
			_ = m.l2.SetStatus(blkid, storage.StatusInvalid)
			log.WithField("blkid", blkid.String()).WithError(err).Warn("state transition invalid, marking block invalid")
			return nil
		}
		return err
	}

	_ = m.l2.SetStatus(blkid, storage.StatusValid)
	m.bestTip = candidate
	m.curChainstate = newState

	if err := m.eng.UpdateSafeBlock(ctx, candidate.Blkid); err != nil {
		log.WithError(err).Warn("engine update_safe_block failed")
	}
	m.publishStatus()
	m.drainPendingFinalizations(ctx)
	return nil
}

// OnClientState reacts to a new ClientState published by the CSM: if it
// names a declared finalized epoch, queue it (rejecting stale or
// non-monotonic entries) and attempt to drain.
func (m *Manager) OnClientState(ctx context.Context, cs *primitives.ClientState) error {
	if cs.DeclaredFinalEpoch == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	newest := m.declaredFinalEpoch
	if n := len(m.pendingFinalization); n > 0 {
		e := m.pendingFinalization[n-1]
		newest = &e
	}
	if newest != nil && cs.DeclaredFinalEpoch.Epoch <= newest.Epoch {
		return ErrStaleFinalization
	}
	m.pendingFinalization = append(m.pendingFinalization, *cs.DeclaredFinalEpoch)
	m.drainPendingFinalizations(ctx)
	return nil
}

func (m *Manager) publishStatus() {
	var fe *primitives.EpochCommitment
	if m.declaredFinalEpoch != nil {
		e := *m.declaredFinalEpoch
		fe = &e
	}
	update := ChainSyncStatusUpdate{Tip: m.bestTip, FinalizedEpoch: fe}
	select {
	case m.statusCh <- update:
	default:
		select {
		case <-m.statusCh:
		default:
		}
		select {
		case m.statusCh <- update:
		default:
		}
	}
}

