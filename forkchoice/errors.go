package forkchoice

import "github.com/pkg/errors"

// ErrAttachMissingParent is returned by Tree.Attach when the block being
// attached names a parent the tree has never seen.
var ErrAttachMissingParent = errors.New("forkchoice: attach: parent not in tree")

// ErrChildBeforeParent is returned by Tree.Attach when the attached
// block's slot does not strictly exceed its parent's slot.
var ErrChildBeforeParent = errors.New("forkchoice: attach: child slot <= parent slot")

// ErrUnknownBlock is returned when an operation names a blkid the tree
// has never seen.
var ErrUnknownBlock = errors.New("forkchoice: unknown block")

// ErrNotDescendant is returned by UpdateFinalizedEpoch when the proposed
// new terminal block does not descend from the current root.
var ErrNotDescendant = errors.New("forkchoice: finalized terminal does not descend from current root")
