package forkchoice

import (
	"github.com/btcrollup/node/primitives"
)

// TipUpdateKind tags the variant carried by a TipUpdate.
type TipUpdateKind int

const (
	// ExtendTip: New's parent is Old; apply New only.
	ExtendTip TipUpdateKind = iota
	// LongExtend: every block in Mid, then New, extends Old in a
	// straight line.
	LongExtend
	// Reorg: the chains from Old and New diverge at Pivot; Down walks
	// from Old toward Pivot (exclusive), Up walks from Pivot
	// (exclusive) toward New.
	Reorg
	// Revert: New is a strict ancestor of Old.
	Revert
)

// TipUpdate is the pure output of ComputeTipUpdate: the sequence of
// blocks to revert and/or apply to move the canonical tip from Old to
// New.
type TipUpdate struct {
	Kind TipUpdateKind

	Old primitives.L2BlockId
	New primitives.L2BlockId

	// Mid is populated for LongExtend: the chain of blocks strictly
	// between Old and New, in application order.
	Mid []primitives.L2BlockId

	// Down, Pivot and Up are populated for Reorg. Down is ordered from
	// Old toward Pivot (exclusive of Pivot); Up is ordered from Pivot
	// (exclusive) toward New.
	Down  []primitives.L2BlockId
	Pivot primitives.L2BlockId
	Up    []primitives.L2BlockId
}

// ancestorChain walks up to maxDepth ancestors from start (inclusive),
// returning the chain from start toward the root, oldest-last. A chain
// of length 1 means start has no recorded parent (it is the root or is
// unknown to the tree), or maxDepth is 0.
func ancestorChain(tree *Tree, start primitives.L2BlockId, maxDepth int) []primitives.L2BlockId {
	chain := []primitives.L2BlockId{start}
	cur := start
	for i := 0; i < maxDepth; i++ {
		parent, ok := tree.GetParent(cur)
		if !ok {
			break
		}
		chain = append(chain, parent)
		cur = parent
	}
	return chain
}

// ComputeTipUpdate computes the TipUpdate needed to move the canonical
// tip from startBlkid to destBlkid, searching at most maxDepth ancestors
// back from each endpoint for a common pivot. It returns (nil, nil) if
// no common ancestor is found within that depth (the caller should treat
// this as "no update possible", not an error).
func ComputeTipUpdate(startBlkid, destBlkid primitives.L2BlockId, maxDepth int, tree *Tree) (*TipUpdate, error) {
	if startBlkid == destBlkid {
		return nil, nil
	}

	startChain := ancestorChain(tree, startBlkid, maxDepth)
	destChain := ancestorChain(tree, destBlkid, maxDepth)

	startIndex := make(map[primitives.L2BlockId]int, len(startChain))
	for i, id := range startChain {
		startIndex[id] = i
	}

	pivotStartIdx := -1
	pivotDestIdx := -1
	for j, id := range destChain {
		if i, ok := startIndex[id]; ok {
			pivotStartIdx = i
			pivotDestIdx = j
			break
		}
	}
	if pivotStartIdx < 0 {
		return nil, nil
	}

	pivot := startChain[pivotStartIdx]
	down := append([]primitives.L2BlockId(nil), startChain[:pivotStartIdx]...)
	up := append([]primitives.L2BlockId(nil), destChain[:pivotDestIdx]...)
	// destChain walks from dest toward the pivot; Up must run pivot ->
	// dest, so reverse it.
	reverse(up)

	switch {
	case len(down) == 0 && len(up) == 0:
		// startBlkid == destBlkid handled above; unreachable, but keep
		// the planner total.
		return nil, nil
	case len(down) == 0 && len(up) == 1:
		return &TipUpdate{Kind: ExtendTip, Old: startBlkid, New: destBlkid}, nil
	case len(down) == 0:
		return &TipUpdate{Kind: LongExtend, Old: startBlkid, New: destBlkid, Mid: up[:len(up)-1]}, nil
	case len(up) == 0:
		return &TipUpdate{Kind: Revert, Old: startBlkid, New: destBlkid}, nil
	default:
		return &TipUpdate{
			Kind:  Reorg,
			Old:   startBlkid,
			New:   destBlkid,
			Down:  down,
			Pivot: pivot,
			Up:    up,
		}, nil
	}
}

func reverse(s []primitives.L2BlockId) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// ChooseBestTip applies the sticky tip-selection rule: stay on
// currentTip unless some other tip's slot is strictly greater than
// currentTip's. When switching, ties among the candidates achieving the
// new maximum slot are broken by the lexicographically smallest blkid.
func ChooseBestTip(tree *Tree, currentTip primitives.L2BlockCommitment) primitives.L2BlockCommitment {
	var maxSlot uint64
	var candidates []primitives.L2BlockId
	sawMax := false
	for _, id := range tree.ChainTipsIter() {
		slot, ok := tree.GetSlot(id)
		if !ok {
			continue
		}
		switch {
		case !sawMax || slot > maxSlot:
			maxSlot = slot
			candidates = []primitives.L2BlockId{id}
			sawMax = true
		case slot == maxSlot:
			candidates = append(candidates, id)
		}
	}
	if !sawMax || maxSlot <= currentTip.Slot {
		return currentTip
	}
	best := candidates[0]
	for _, id := range candidates[1:] {
		if lessL2(id, best) {
			best = id
		}
	}
	return primitives.L2BlockCommitment{Slot: maxSlot, Blkid: best}
}
