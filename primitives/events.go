package primitives

// SyncEventKind tags the variant carried by a SyncEvent.
type SyncEventKind int

const (
	EventL1Block SyncEventKind = iota
	EventL1Revert
)

// SyncEvent is an L1-chain observation fed into the CSM: either a new L1
// block at the next expected height, or a revert back to a prior block
// (inclusive) caused by a reorg.
type SyncEvent struct {
	Kind  SyncEventKind
	Block L1BlockCommitment
}

// NewL1BlockEvent builds an EventL1Block sync event.
func NewL1BlockEvent(c L1BlockCommitment) SyncEvent {
	return SyncEvent{Kind: EventL1Block, Block: c}
}

// NewL1RevertEvent builds an EventL1Revert sync event naming the block to
// revert back to.
func NewL1RevertEvent(c L1BlockCommitment) SyncEvent {
	return SyncEvent{Kind: EventL1Revert, Block: c}
}
