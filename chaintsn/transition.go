package chaintsn

import (
	"github.com/btcrollup/node/params"
	"github.com/btcrollup/node/primitives"
)

// ProcessBlock applies header/body to cache in place, per SPEC_FULL.md
// 4.7: validates the parent link, folds in newly confirmed L1 manifests,
// applies the exec update (consuming pending deposits in order), and
// advances the epoch pointer when this block closes one out. Callers
// call cache.Finalize() afterward to obtain the resulting chainstate,
// and separately compare its ComputeStateRoot() against
// header.StateRoot (SPEC_FULL.md 4.8.1) — ProcessBlock itself does not
// perform that comparison.
func ProcessBlock(
	cache *StateCache,
	blkid primitives.L2BlockId,
	header primitives.L2BlockHeader,
	body primitives.L2BlockBody,
	p *params.RollupParams,
) error {
	if header.Parent != cache.parentTip {
		return invalidTsn(ErrParentMismatch.Error())
	}

	if err := applyL1Segment(cache.cur, body.L1Segment, p); err != nil {
		return invalidTsn(err.Error())
	}
	if err := applyExecUpdate(cache.cur, body.ExecUpdate, p); err != nil {
		return invalidTsn(err.Error())
	}
	applyEpochTransition(cache.cur, blkid, header, p)
	return nil
}

// ValidateBlockSegments performs the FCM's structural check: the L1
// segment's manifests have consecutive heights (each one higher than the
// one before it by exactly 1) and the exec update
// does not claim more deposits than the configured per-block maximum.
// It does not require chainstate context, unlike the full ProcessBlock
// checks, so the FCM can run it before loading the parent chainstate.
func ValidateBlockSegments(body primitives.L2BlockBody, p *params.RollupParams) error {
	manifests := body.L1Segment.NewManifests
	for i := 1; i < len(manifests); i++ {
		if manifests[i].Height != manifests[i-1].Height+1 {
			return invalidTsn("l1 segment manifests are not contiguous")
		}
	}
	if uint32(body.ExecUpdate.DepositCount) > p.MaxDepositsInBlock {
		return invalidTsn("exec update deposit count exceeds max_deposits_in_block")
	}
	return nil
}

// applyL1Segment folds newly confirmed L1 manifests into the chainstate's
// L1 view: each must strictly extend the view (no gaps), and manifests
// cross the reorg-safe-depth maturity horizon into buried status (the
// point at which their Deposit operations become spendable) in the order
// they arrive.
func applyL1Segment(cs *primitives.Chainstate, seg primitives.L1Segment, p *params.RollupParams) error {
	for _, m := range seg.NewManifests {
		expected := expectedNextL1Height(cs)
		if m.Height != expected {
			return ErrL1SegmentGap
		}
		cs.L1View.MaturationQueue = append(cs.L1View.MaturationQueue, primitives.L1MaturingEntry{Manifest: m})
	}

	for uint64(len(cs.L1View.MaturationQueue)) > p.L1ReorgSafeDepth {
		matured := cs.L1View.MaturationQueue[0]
		cs.L1View.MaturationQueue = cs.L1View.MaturationQueue[1:]
		cs.L1View.SafeBlock = matured.Manifest.ToCommitment()
		cs.L1View.BuriedHeight = matured.Manifest.Height

		for _, tx := range matured.Manifest.Txs {
			for _, op := range tx.ProtocolOps {
				if op.Kind != primitives.OpDeposit || op.Deposit == nil {
					continue
				}
				cs.Deposits = append(cs.Deposits, primitives.DepositEntry{
					Index:   op.Deposit.Index,
					Amount:  op.Deposit.Amount,
					Address: op.Deposit.DestAddr,
				})
			}
		}
	}
	return nil
}

func expectedNextL1Height(cs *primitives.Chainstate) uint64 {
	if n := len(cs.L1View.MaturationQueue); n > 0 {
		return cs.L1View.MaturationQueue[n-1].Manifest.Height + 1
	}
	return cs.L1View.BuriedHeight + 1
}

// applyExecUpdate treats the execution update as authoritative for the
// execution layer and marks the deposits it claims to have consumed as
// spent, in FIFO order over the chainstate's pending-deposits queue.
func applyExecUpdate(cs *primitives.Chainstate, update primitives.ExecUpdate, p *params.RollupParams) error {
	if uint32(update.DepositCount) > p.MaxDepositsInBlock {
		return ErrTooManyDeposits
	}
	remaining := update.DepositCount
	for i := range cs.Deposits {
		if remaining == 0 {
			break
		}
		if cs.Deposits[i].Spent {
			continue
		}
		cs.Deposits[i].Spent = true
		remaining--
	}
	if remaining > 0 {
		return ErrInsufficientDeposits
	}
	cs.ExecState = append([]byte(nil), update.UpdateBytes...)
	return nil
}

// applyEpochTransition closes out the current epoch when header.Slot is
// the last slot of cur_epoch (slots are dense, epoch_slots per epoch,
// epoch 0 starting at slot 0), and opens the next epoch for the
// following block.
func applyEpochTransition(cs *primitives.Chainstate, blkid primitives.L2BlockId, header primitives.L2BlockHeader, p *params.RollupParams) {
	isTerminal := (header.Slot+1)%p.EpochSlots == 0
	cs.SetEpochFinishing(isTerminal)
	if !isTerminal {
		return
	}
	terminal := primitives.EpochCommitment{Epoch: cs.CurEpoch.Epoch, LastSlot: header.Slot, LastBlkid: blkid}
	cs.PrevEpoch = terminal
	cs.CurEpoch = primitives.EpochCommitment{Epoch: cs.CurEpoch.Epoch + 1}
}
