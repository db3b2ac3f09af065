// Package chaintsn implements the chainstate state-transition function:
// a pure function from a prior Chainstate plus one L2 block's header and
// body to a new Chainstate, per SPEC_FULL.md 4.7. It never touches
// storage; callers in fcm own persistence of the resulting write batch.
package chaintsn

import (
	"github.com/btcrollup/node/primitives"
)

// StateCache wraps a chainstate being mutated by ProcessBlock: a clone of
// the parent state the caller accumulates edits into, plus the parent's
// tip for the header.Parent consistency check. Finalize returns the
// accumulated chainstate; it does not mutate the parent.
type StateCache struct {
	parentTip primitives.L2BlockId
	cur       *primitives.Chainstate
}

// NewStateCache clones parent and ties the cache to parentTip, the L2
// block the parent chainstate was produced by.
func NewStateCache(parentTip primitives.L2BlockId, parent *primitives.Chainstate) *StateCache {
	return &StateCache{parentTip: parentTip, cur: parent.Clone()}
}

// State returns the chainstate being mutated, for inspection or direct
// edits by callers that need to go beyond ProcessBlock (none currently
// do; exposed for tests).
func (c *StateCache) State() *primitives.Chainstate {
	return c.cur
}

// Finalize returns the chainstate accumulated so far. The cache remains
// usable after calling this; it does not reset anything.
func (c *StateCache) Finalize() *primitives.Chainstate {
	return c.cur
}
