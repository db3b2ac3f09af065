package primitives

// SyncActionKind tags the variant carried by a SyncAction.
type SyncActionKind int

const (
	ActionL2Genesis SyncActionKind = iota
	ActionFinalizeEpoch
	ActionUpdateCheckpointInclusion
)

// SyncAction is a side effect the CSM asks its caller to perform after
// processing a sync event: trigger L2 genesis, mark an epoch finalized, or
// record a newly observed checkpoint's L1 inclusion. Exactly one payload
// field is populated, matching Kind.
type SyncAction struct {
	Kind SyncActionKind

	L2GenesisBlkid L2BlockId

	FinalizeEpoch EpochCommitment

	Checkpoint  *SignedCheckpoint
	L1Reference CheckpointL1Ref
}

// NewL2GenesisAction builds an ActionL2Genesis action.
func NewL2GenesisAction(blkid L2BlockId) SyncAction {
	return SyncAction{Kind: ActionL2Genesis, L2GenesisBlkid: blkid}
}

// NewFinalizeEpochAction builds an ActionFinalizeEpoch action.
func NewFinalizeEpochAction(epoch EpochCommitment) SyncAction {
	return SyncAction{Kind: ActionFinalizeEpoch, FinalizeEpoch: epoch}
}

// NewUpdateCheckpointInclusionAction builds an
// ActionUpdateCheckpointInclusion action.
func NewUpdateCheckpointInclusionAction(ckpt *SignedCheckpoint, ref CheckpointL1Ref) SyncAction {
	return SyncAction{Kind: ActionUpdateCheckpointInclusion, Checkpoint: ckpt, L1Reference: ref}
}
