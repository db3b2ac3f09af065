package csm

import "github.com/pkg/errors"

// ErrCompetingBlock is returned when an L1Block event names a height that
// already has a recorded internal state with a different blkid — the
// reader and the CSM have diverged on what the canonical L1 chain is.
var ErrCompetingBlock = errors.New("csm: competing block at height")

// ErrOutOfOrderL1Block is returned when an L1Block event names a height
// strictly greater than next_exp_l1_block(), i.e. there is a gap.
var ErrOutOfOrderL1Block = errors.New("csm: out-of-order l1 block")
