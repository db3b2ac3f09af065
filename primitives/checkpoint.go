package primitives

// L1Range is an inclusive [Start, End] span of L1 blocks a checkpoint's
// batch covers.
type L1Range struct {
	Start L1BlockCommitment
	End   L1BlockCommitment
}

// L2Range is an inclusive [Start, End] span of L2 blocks a checkpoint's
// batch covers.
type L2Range struct {
	Start L2BlockCommitment
	End   L2BlockCommitment
}

// BatchInfo describes the epoch and L1/L2 ranges a checkpoint attests to.
type BatchInfo struct {
	Epoch   uint64
	L1Range L1Range
	L2Range L2Range
}

// GetEpochCommitment derives the epoch commitment this batch's checkpoint
// attests to: the batch's terminal L2 block at the batch's epoch index.
func (b BatchInfo) GetEpochCommitment() EpochCommitment {
	return EpochCommitment{
		Epoch:     b.Epoch,
		LastSlot:  b.L2Range.End.Slot,
		LastBlkid: b.L2Range.End.Blkid,
	}
}

// BatchTransition is the chainstate state-root transition a checkpoint's
// proof attests to.
type BatchTransition struct {
	PrevStateRoot [32]byte
	NewStateRoot  [32]byte
}

// Sidecar carries data published alongside a checkpoint but not committed
// to by its proof, e.g. the chainstate snapshot used to bootstrap
// followers.
type Sidecar struct {
	ChainstateBytes []byte
}

// SignedCheckpoint is a checkpoint as published on L1: the attested batch
// plus a zk proof (or an empty ProofBytes before the proof has landed) and
// a sequencer signature.
type SignedCheckpoint struct {
	BatchInfo       BatchInfo
	BatchTransition BatchTransition
	Sidecar         Sidecar
	ProofBytes      []byte
	Signature       []byte
}

// HasProof reports whether this checkpoint carries a populated proof.
func (c SignedCheckpoint) HasProof() bool {
	return len(c.ProofBytes) > 0
}

// CheckpointL1Ref locates the L1 transaction a checkpoint was published in.
type CheckpointL1Ref struct {
	Block L1BlockCommitment
	Txid  [32]byte
	Wtxid [32]byte
}

// ConfirmationStatusKind tags the lifecycle state of a checkpoint as
// tracked by the checkpoint store.
type ConfirmationStatusKind int

const (
	ConfPending ConfirmationStatusKind = iota
	ConfConfirmed
	ConfFinalized
)

// ConfirmationStatus is the checkpoint store's view of where a checkpoint
// sits in L1 confirmation/finalization. Ref is populated for Confirmed and
// Finalized.
type ConfirmationStatus struct {
	Kind ConfirmationStatusKind
	Ref  *CheckpointL1Ref
}

// ProvingStatusKind tags whether a checkpoint's proof has landed.
type ProvingStatusKind int

const (
	ProvingPending ProvingStatusKind = iota
	ProvingReady
)

// L1Checkpoint is the bookkeeping record the CSM keeps in a client-state
// internal-state snapshot for the most recently observed checkpoint as of
// that L1 height: the batch metadata plus where it was published.
type L1Checkpoint struct {
	BatchInfo       BatchInfo
	BatchTransition BatchTransition
	L1Ref           CheckpointL1Ref
}

// CheckpointEntry is the checkpoint store's persisted record for a single
// epoch's checkpoint.
type CheckpointEntry struct {
	Checkpoint         SignedCheckpoint
	ConfirmationStatus ConfirmationStatus
	ProvingStatus      ProvingStatusKind
}

// EpochSummary is recorded by the FCM in the checkpoint store when a
// block's state transition finishes an epoch: the terminal block of the
// epoch just closed, the prior epoch's terminal block, the L1 block
// observed as of closing, and the resulting state root.
type EpochSummary struct {
	Epoch          uint64
	Terminal       L2BlockCommitment
	PrevTerminal   L2BlockCommitment
	NewL1Block     L1BlockCommitment
	EpochFinalRoot [32]byte
}
