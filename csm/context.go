// Package csm implements the client state machine: a deterministic,
// event-sourced function over L1Block/L1Revert sync events that tracks
// genesis activation, checkpoint acceptance, and declared epoch
// finalization.
package csm

import (
	"github.com/sirupsen/logrus"

	"github.com/btcrollup/node/primitives"
	"github.com/btcrollup/node/storage"
)

var log = logrus.WithField("prefix", "csm")

// EventContext is the storage facade the CSM transition function reads
// through. It is re-exported from storage so callers only need to import
// csm to implement it.
type EventContext = storage.EventContext

// StorageEventContext adapts the L1/L2/chainstate store triple into an
// EventContext.
type StorageEventContext struct {
	L1    storage.L1Store
	L2    storage.L2Store
	Chain storage.ChainstateStore
}

func (c *StorageEventContext) GetL1Manifest(height uint64) (*primitives.L1BlockManifest, error) {
	return c.L1.GetManifest(height)
}

func (c *StorageEventContext) GetL2Bundle(blkid primitives.L2BlockId) (*primitives.L2BlockBundle, error) {
	return c.L2.GetBlock(blkid)
}

func (c *StorageEventContext) GetToplevelChainstate(slot uint64) (*primitives.Chainstate, error) {
	cs, _, err := c.Chain.GetToplevel(slot)
	return cs, err
}
