package primitives

// L1BlockCommitment pins an L1 block by height and id. Height is carried
// alongside the hash everywhere a reference to an L1 block crosses a
// component boundary, so callers never need a side lookup just to order
// two commitments.
type L1BlockCommitment struct {
	Height uint64
	Blkid  L1BlockId
}

// Less orders commitments by height, then by blkid bytes. Used for
// deterministic tie-breaking, never for consensus validity checks.
func (c L1BlockCommitment) Less(o L1BlockCommitment) bool {
	if c.Height != o.Height {
		return c.Height < o.Height
	}
	return lessBytes(c.Blkid[:], o.Blkid[:])
}

func lessBytes(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// TxProof is an inclusion proof of a transaction within an L1 block's
// transaction merkle tree.
type TxProof struct {
	Position uint32
	Cohashes [][32]byte
}

// ProtocolOpKind tags the variant carried by a ProtocolOperation.
type ProtocolOpKind int

const (
	OpUnknown ProtocolOpKind = iota
	OpCheckpoint
	OpDepositRequest
	OpDeposit
	OpDaBlob
)

// ProtocolOperation is a parsed rollup-protocol operation extracted from a
// transaction's witness data by the reader's filter. Exactly one of the
// payload fields is populated, matching Kind.
type ProtocolOperation struct {
	Kind       ProtocolOpKind
	Checkpoint *SignedCheckpoint
	DepositReq *DepositRequest
	Deposit    *Deposit
	DaBlob     []byte
}

// DepositRequest is a user-initiated bridge deposit request observed on L1,
// not yet credited to the execution-layer state.
type DepositRequest struct {
	Index          uint64
	Amount         uint64
	DestAddr       []byte
	DepositOutpoint [36]byte
}

// Deposit is a bridge deposit that has cleared the operator signing flow
// and is eligible to be credited by the execution-layer state transition.
type Deposit struct {
	Index    uint64
	Amount   uint64
	DestAddr []byte
}

// L1Tx is a single transaction of an L1 block relevant to the rollup,
// together with its inclusion proof and any protocol operations it
// carries.
type L1Tx struct {
	Proof       TxProof
	RawTx       []byte
	ProtocolOps []ProtocolOperation
}

// L1BlockManifest is the subset of an L1 block the rollup needs to persist:
// its header bytes (for hashing/verification), the set of relevant
// transactions, and the epoch it was read under.
type L1BlockManifest struct {
	HeaderBytes []byte
	Height      uint64
	Blkid       L1BlockId
	Txs         []L1Tx
	Epoch       uint64
}

// ToCommitment returns the (height, blkid) pair for this manifest.
func (m L1BlockManifest) ToCommitment() L1BlockCommitment {
	return L1BlockCommitment{Height: m.Height, Blkid: m.Blkid}
}
