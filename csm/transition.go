package csm

import (
	"crypto/sha256"

	"github.com/btcrollup/node/params"
	"github.com/btcrollup/node/primitives"
)

// NowMillisSinceInclusionFn reports, for the L1 height currently being
// processed, how many milliseconds have elapsed since that height's
// inclusion. It lets the Timeout proof-publish mode be driven by either
// wall time (production) or a fake clock (tests).
type NowMillisSinceInclusionFn func(l1Height uint64) uint64

// ProcessEvent applies a single sync event to state, returning the
// mutated state and the actions produced. state is mutated in place and
// also returned for convenience; callers must persist both atomically
// before considering the event processed (SPEC_FULL.md 5).
func ProcessEvent(
	state *primitives.ClientState,
	event primitives.SyncEvent,
	ctx EventContext,
	p *params.RollupParams,
) (*primitives.ClientState, []primitives.SyncAction, error) {
	return ProcessEventWithClock(state, event, ctx, p, func(uint64) uint64 { return 0 })
}

// ProcessEventWithClock is ProcessEvent with an explicit elapsed-time
// source for proof-timeout evaluation.
func ProcessEventWithClock(
	state *primitives.ClientState,
	event primitives.SyncEvent,
	ctx EventContext,
	p *params.RollupParams,
	nowFn NowMillisSinceInclusionFn,
) (*primitives.ClientState, []primitives.SyncAction, error) {
	mut := primitives.NewStateMut(state)

	switch event.Kind {
	case primitives.EventL1Block:
		if err := handleL1Block(mut, event.Block, ctx, p, nowFn); err != nil {
			return nil, nil, err
		}
	case primitives.EventL1Revert:
		handleL1Revert(mut, event.Block)
	}

	s, actions := mut.Finish()
	return s, actions, nil
}

func handleL1Block(
	mut *primitives.StateMut,
	block primitives.L1BlockCommitment,
	ctx EventContext,
	p *params.RollupParams,
	nowFn NowMillisSinceInclusionFn,
) error {
	s := mut.State()
	height, blkid := block.Height, block.Blkid

	switch {
	case height < p.GenesisL1Height:
		log.WithField("height", height).Warn("ignoring pre-genesis l1 block")
		return nil

	case height == p.GenesisL1Height:
		mut.RecordInternalState(height, primitives.InternalState{Blkid: blkid})
		manifest, err := ctx.GetL1Manifest(height)
		if err != nil {
			return err
		}
		genesisBlkid := deriveGenesisBlkid(manifest, p)
		s.ChainActive = true
		s.Sync = &primitives.SyncState{
			GenesisBlkid:   genesisBlkid,
			Tip:            primitives.L2BlockCommitment{Slot: 0, Blkid: genesisBlkid},
			FinalizedBlkid: genesisBlkid,
		}
		mut.PushAction(primitives.NewL2GenesisAction(genesisBlkid))
		return nil

	case height == s.NextExpL1Block():
		prevSt, hadPrev := s.GetInternalState(height - 1)
		var lastCkpt *primitives.L1Checkpoint
		if hadPrev {
			lastCkpt = prevSt.LastCheckpoint
		}

		manifest, err := ctx.GetL1Manifest(height)
		if err != nil {
			return err
		}

		for _, tx := range manifest.Txs {
			for _, op := range tx.ProtocolOps {
				if op.Kind != primitives.OpCheckpoint || op.Checkpoint == nil {
					continue
				}
				ckpt := op.Checkpoint
				if err := verifyCheckpoint(p, ckpt, lastCkpt, nowFn(height)); err != nil {
					log.WithError(err).Warn("checkpoint verification failed, dropping")
					continue
				}
				ref := primitives.CheckpointL1Ref{Block: block}
				lastCkpt = &primitives.L1Checkpoint{
					BatchInfo:       ckpt.BatchInfo,
					BatchTransition: ckpt.BatchTransition,
					L1Ref:           ref,
				}
				mut.PushAction(primitives.NewUpdateCheckpointInclusionAction(ckpt, ref))
			}
		}

		mut.RecordInternalState(height, primitives.InternalState{Blkid: blkid, LastCheckpoint: lastCkpt})
		maybeDeclareFinalized(mut, p)
		return nil

	case height < s.NextExpL1Block():
		if existing, ok := s.GetInternalState(height); ok && existing.Blkid == blkid {
			log.WithField("height", height).Warn("duplicate l1 block, ignoring")
			return nil
		}
		return ErrCompetingBlock

	default:
		return ErrOutOfOrderL1Block
	}
}

func handleL1Revert(mut *primitives.StateMut, revertTo primitives.L1BlockCommitment) {
	s := mut.State()
	for h := range s.InternalStates {
		if h > revertTo.Height {
			delete(s.InternalStates, h)
		}
	}
}

// maybeDeclareFinalized recomputes the apparent finalized epoch as the
// checkpoint pointer held at height == tip - l1_reorg_safe_depth, and
// advances the declared epoch if it's strictly newer.
func maybeDeclareFinalized(mut *primitives.StateMut, p *params.RollupParams) {
	s := mut.State()
	tip := s.NextExpL1Block() - 1
	if tip < p.L1ReorgSafeDepth {
		return
	}
	apparentHeight := tip - p.L1ReorgSafeDepth
	st, ok := s.GetInternalState(apparentHeight)
	if !ok || st.LastCheckpoint == nil {
		return
	}
	apparent := st.LastCheckpoint.BatchInfo.GetEpochCommitment()
	if s.DeclaredFinalEpoch == nil || apparent.Epoch > s.DeclaredFinalEpoch.Epoch {
		ep := apparent
		s.DeclaredFinalEpoch = &ep
		mut.PushAction(primitives.NewFinalizeEpochAction(ep))
	}
}

// deriveGenesisBlkid computes a deterministic L2 genesis block id from the
// triggering L1 manifest and the rollup parameters, so every node that
// observes the same L1 block at the genesis height derives the same
// genesis blkid without needing to exchange it out of band.
func deriveGenesisBlkid(manifest *primitives.L1BlockManifest, p *params.RollupParams) primitives.L2BlockId {
	h := sha256.New()
	_, _ = h.Write([]byte("strata/l2genesis/v1"))
	_, _ = h.Write([]byte(p.RollupName))
	_, _ = h.Write(manifest.HeaderBytes)
	_, _ = h.Write(manifest.Blkid[:])
	var id primitives.L2BlockId
	copy(id[:], h.Sum(nil))
	return id
}
