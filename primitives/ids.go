package primitives

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// L1BlockId is the Bitcoin block hash identifying an L1 block. It reuses
// chainhash.Hash so comparisons, hex encoding and double-SHA256 display
// order match the rest of the btcsuite ecosystem.
type L1BlockId = chainhash.Hash

// L2BlockId is the content hash of an L2 block header.
type L2BlockId [32]byte

// ZeroL2BlockId is the conventional null/placeholder id used before
// genesis and for the parent of the genesis block.
var ZeroL2BlockId L2BlockId

func (id L2BlockId) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero placeholder.
func (id L2BlockId) IsZero() bool {
	return id == ZeroL2BlockId
}

func (id L2BlockId) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *L2BlockId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("l2 block id: %w", err)
	}
	if len(b) != len(id) {
		return fmt.Errorf("l2 block id: want %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return nil
}

// L2BlockIdFromBytes builds an L2BlockId from a 32-byte slice.
func L2BlockIdFromBytes(b []byte) (L2BlockId, error) {
	var id L2BlockId
	if len(b) != len(id) {
		return id, fmt.Errorf("l2 block id: want %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}
