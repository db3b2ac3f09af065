package primitives

import "crypto/sha256"

// L2BlockCommitment pins an L2 block by slot and id.
type L2BlockCommitment struct {
	Slot  uint64
	Blkid L2BlockId
}

// EpochCommitment identifies an epoch by index together with its terminal
// (last) block. An epoch is uniquely determined by its terminal block, but
// carrying slot+blkid alongside the index avoids a tree lookup on every
// comparison.
type EpochCommitment struct {
	Epoch     uint64
	LastSlot  uint64
	LastBlkid L2BlockId
}

// ToBlockCommitment returns the terminal block of this epoch as a plain
// L2BlockCommitment.
func (e EpochCommitment) ToBlockCommitment() L2BlockCommitment {
	return L2BlockCommitment{Slot: e.LastSlot, Blkid: e.LastBlkid}
}

// L2BlockHeader is the signable portion of an L2 block header.
type L2BlockHeader struct {
	Slot            uint64
	Epoch           uint64
	Timestamp       uint64
	Parent          L2BlockId
	L1SegmentHash   [32]byte
	ExecSegmentHash [32]byte
	StateRoot       [32]byte
	ProposerPubkey  []byte
}

// SignedL2BlockHeader is a header plus the proposer's signature over its
// hash.
type SignedL2BlockHeader struct {
	Header    L2BlockHeader
	Signature []byte
}

// Hash deterministically hashes the header's fields in a fixed order;
// its output is the block's blkid. Field order is part of the wire
// contract and must never change once a network has launched.
func (h L2BlockHeader) Hash() L2BlockId {
	hasher := sha256.New()
	_, _ = hasher.Write([]byte("strata/l2header/v1"))
	_, _ = hasher.Write(encodeUint64(h.Slot))
	_, _ = hasher.Write(encodeUint64(h.Epoch))
	_, _ = hasher.Write(encodeUint64(h.Timestamp))
	_, _ = hasher.Write(h.Parent[:])
	_, _ = hasher.Write(h.L1SegmentHash[:])
	_, _ = hasher.Write(h.ExecSegmentHash[:])
	_, _ = hasher.Write(h.StateRoot[:])
	_, _ = hasher.Write(h.ProposerPubkey)
	var out L2BlockId
	copy(out[:], hasher.Sum(nil))
	return out
}

// L1Segment lists the L1 block manifests newly confirmed as of this L2
// block, in increasing height order.
type L1Segment struct {
	NewManifests []L1BlockManifest
}

// NewHeight returns the height of the last manifest in the segment, or
// (0, false) if the segment is empty.
func (s L1Segment) NewHeight() (uint64, bool) {
	if len(s.NewManifests) == 0 {
		return 0, false
	}
	return s.NewManifests[len(s.NewManifests)-1].Height, true
}

// NewTipBlkid returns the blkid of the last manifest in the segment, or
// the zero value if the segment is empty.
func (s L1Segment) NewTipBlkid() (L1BlockId, bool) {
	if len(s.NewManifests) == 0 {
		return L1BlockId{}, false
	}
	return s.NewManifests[len(s.NewManifests)-1].Blkid, true
}

// ExecUpdate is the opaque execution-layer state-transition payload
// produced by the execution engine for a single L2 block. The rollup core
// treats its contents as opaque bytes; only the execution engine
// interprets them.
type ExecUpdate struct {
	UpdateBytes  []byte
	NewStateRoot [32]byte
	DepositCount uint64
}

// L2BlockBody carries the L1 segment and execution update for a block.
type L2BlockBody struct {
	L1Segment L1Segment
	ExecUpdate ExecUpdate
}

// L2BlockBundle is a full L2 block as stored by the chainstate store:
// signed header, body, and any accessory data (e.g. raw execution payload)
// needed to re-derive the execution update but not needed for consensus.
type L2BlockBundle struct {
	Header    SignedL2BlockHeader
	Body      L2BlockBody
	Accessory []byte
}

// ToCommitment returns the (slot, blkid) pair for this bundle's header.
func (b L2BlockBundle) ToCommitment(blkid L2BlockId) L2BlockCommitment {
	return L2BlockCommitment{Slot: b.Header.Header.Slot, Blkid: blkid}
}
