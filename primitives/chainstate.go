package primitives

import "crypto/sha256"

// L1MaturingEntry is an L1 block that has been observed but has not yet
// crossed the maturity depth the chainstate requires before treating its
// operations as final.
type L1MaturingEntry struct {
	Manifest L1BlockManifest
}

// L1View is the chainstate's window onto L1: the most recent block it
// considers buried (beyond reorg risk) and the queue of blocks observed
// since then awaiting maturity.
type L1View struct {
	SafeBlock       L1BlockCommitment
	BuriedHeight    uint64
	MaturationQueue []L1MaturingEntry
}

// DepositEntry is the execution-layer-visible record of a single bridge
// deposit slot, tracked in chainstate so the STF can apply credits
// deterministically.
type DepositEntry struct {
	Index   uint64
	Amount  uint64
	Address []byte
	Spent   bool
}

// OperatorEntry is a registered bridge operator's signing key material.
type OperatorEntry struct {
	Index  uint32
	Pubkey []byte
}

// Chainstate is the rollup's full execution-relevant state as of a given
// L2 block: L1 view, deposit/operator tables, and the opaque execution
// layer's own state. It is produced deterministically by chaintsn.ProcessBlock
// from a parent chainstate and a block body.
type Chainstate struct {
	CurEpoch       EpochCommitment
	PrevEpoch      EpochCommitment
	FinalizedEpoch EpochCommitment
	L1View         L1View
	Deposits       []DepositEntry
	Operators      []OperatorEntry
	ExecState      []byte
	epochFinishing bool
}

// IsEpochFinishing reports whether the block that produced this chainstate
// closed out its epoch (i.e. the STF should emit an EpochSummary for it).
func (c *Chainstate) IsEpochFinishing() bool {
	return c.epochFinishing
}

// SetEpochFinishing marks this chainstate as the result of an
// epoch-closing block. Only chaintsn.ProcessBlock should call this.
func (c *Chainstate) SetEpochFinishing(v bool) {
	c.epochFinishing = v
}

// Clone returns a deep copy suitable for speculative mutation by the STF
// or by a revert rollback.
func (c *Chainstate) Clone() *Chainstate {
	n := *c
	n.L1View.MaturationQueue = append([]L1MaturingEntry(nil), c.L1View.MaturationQueue...)
	n.Deposits = append([]DepositEntry(nil), c.Deposits...)
	n.Operators = append([]OperatorEntry(nil), c.Operators...)
	n.ExecState = append([]byte(nil), c.ExecState...)
	return &n
}

// ComputeStateRoot derives the deterministic state root committed to by an
// L2 block header. Fields are hashed in a fixed order with domain
// separation tags so the root depends only on content, never on struct
// layout or map iteration order.
func (c *Chainstate) ComputeStateRoot() [32]byte {
	h := sha256.New()
	writeTagged(h, "strata/chainstate/v1", nil)
	writeTagged(h, "cur_epoch", encodeEpoch(c.CurEpoch))
	writeTagged(h, "prev_epoch", encodeEpoch(c.PrevEpoch))
	writeTagged(h, "finalized_epoch", encodeEpoch(c.FinalizedEpoch))
	writeTagged(h, "l1_safe_block", encodeL1Commitment(c.L1View.SafeBlock))
	writeTagged(h, "l1_buried_height", encodeUint64(c.L1View.BuriedHeight))
	for _, e := range c.L1View.MaturationQueue {
		writeTagged(h, "l1_maturing", e.Manifest.HeaderBytes)
	}
	for _, d := range c.Deposits {
		writeTagged(h, "deposit", encodeDeposit(d))
	}
	for _, o := range c.Operators {
		writeTagged(h, "operator", o.Pubkey)
	}
	writeTagged(h, "exec_state", c.ExecState)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeTagged(h interface{ Write([]byte) (int, error) }, tag string, body []byte) {
	_, _ = h.Write([]byte(tag))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	_, _ = h.Write([]byte{0xff})
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func encodeEpoch(e EpochCommitment) []byte {
	b := encodeUint64(e.Epoch)
	b = append(b, encodeUint64(e.LastSlot)...)
	b = append(b, e.LastBlkid[:]...)
	return b
}

func encodeL1Commitment(c L1BlockCommitment) []byte {
	b := encodeUint64(c.Height)
	return append(b, c.Blkid[:]...)
}

func encodeDeposit(d DepositEntry) []byte {
	b := encodeUint64(d.Index)
	b = append(b, encodeUint64(d.Amount)...)
	b = append(b, d.Address...)
	if d.Spent {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	return b
}
