// Package forkchoice maintains the in-memory, unfinalized L2 block DAG
// rooted at the last finalized epoch's terminal block, and the pure
// tip-update planner used to transition the canonical tip between two
// blocks in that DAG. It implements SPEC_FULL.md 4.5/4.6.
package forkchoice

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/btcrollup/node/primitives"
)

var log = logrus.WithField("prefix", "forkchoice")

// node is one arena entry in the tree: a block's slot, its parent's id
// (the zero id for the root), and the set of its known children. Nodes
// reference each other strictly by id, never by pointer, so detaching a
// subtree is just a map delete.
type node struct {
	slot     uint64
	parent   primitives.L2BlockId
	hasPar   bool
	children map[primitives.L2BlockId]struct{}
}

// Tree is the unfinalized block tree. The zero value is not usable; use
// NewTree.
type Tree struct {
	mu    sync.RWMutex
	nodes map[primitives.L2BlockId]*node
	tips  map[primitives.L2BlockId]struct{}
	root  primitives.L2BlockId
}

// NewTree returns a tree whose root is the given finalized terminal
// block, itself the sole tip.
func NewTree(rootBlkid primitives.L2BlockId, rootSlot uint64) *Tree {
	t := &Tree{
		nodes: make(map[primitives.L2BlockId]*node),
		tips:  make(map[primitives.L2BlockId]struct{}),
		root:  rootBlkid,
	}
	t.nodes[rootBlkid] = &node{slot: rootSlot, children: make(map[primitives.L2BlockId]struct{})}
	t.tips[rootBlkid] = struct{}{}
	return t
}

// Root returns the tree's current finalized root.
func (t *Tree) Root() primitives.L2BlockId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Contains reports whether blkid is known to the tree.
func (t *Tree) Contains(blkid primitives.L2BlockId) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[blkid]
	return ok
}

// Attach inserts a new block as a child of parent. It returns true iff
// parent was previously a tip, i.e. no fork was created by this attach.
// Attaching an already-known blkid changes nothing and reports whether
// blkid itself is currently a tip.
func (t *Tree) Attach(blkid primitives.L2BlockId, parent primitives.L2BlockId, slot uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[blkid]; exists {
		// Idempotent re-attach of an already-known block.
		_, wasTip := t.tips[blkid]
		return wasTip, nil
	}

	pnode, ok := t.nodes[parent]
	if !ok {
		return false, ErrAttachMissingParent
	}
	if slot <= pnode.slot {
		return false, ErrChildBeforeParent
	}

	pnode.children[blkid] = struct{}{}
	_, wasTip := t.tips[parent]
	delete(t.tips, parent)

	t.nodes[blkid] = &node{slot: slot, parent: parent, hasPar: true, children: make(map[primitives.L2BlockId]struct{})}
	t.tips[blkid] = struct{}{}
	return wasTip, nil
}

// GetParent returns blkid's parent. ok is false for the root or for an
// unknown blkid.
func (t *Tree) GetParent(blkid primitives.L2BlockId) (parent primitives.L2BlockId, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, exists := t.nodes[blkid]
	if !exists || !n.hasPar {
		return primitives.L2BlockId{}, false
	}
	return n.parent, true
}

// GetSlot returns blkid's slot. ok is false for an unknown blkid.
func (t *Tree) GetSlot(blkid primitives.L2BlockId) (slot uint64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, exists := t.nodes[blkid]
	if !exists {
		return 0, false
	}
	return n.slot, true
}

// ChainTipsIter returns every current tip's id, in an arbitrary but
// stable (sorted) order.
func (t *Tree) ChainTipsIter() []primitives.L2BlockId {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]primitives.L2BlockId, 0, len(t.tips))
	for id := range t.tips {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return lessL2(out[i], out[j]) })
	return out
}

// GetAllDescendants returns every node reachable from blkid via children
// edges, blkid itself excluded.
func (t *Tree) GetAllDescendants(blkid primitives.L2BlockId) ([]primitives.L2BlockId, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.nodes[blkid]; !ok {
		return nil, ErrUnknownBlock
	}
	var out []primitives.L2BlockId
	t.collectDescendants(blkid, &out)
	return out, nil
}

func (t *Tree) collectDescendants(blkid primitives.L2BlockId, out *[]primitives.L2BlockId) {
	n := t.nodes[blkid]
	for child := range n.children {
		*out = append(*out, child)
		t.collectDescendants(child, out)
	}
}

// isAncestorLocked reports whether anc is blkid or an ancestor of blkid.
// Caller must hold t.mu.
func (t *Tree) isAncestorLocked(anc, blkid primitives.L2BlockId) bool {
	cur := blkid
	for {
		if cur == anc {
			return true
		}
		n, ok := t.nodes[cur]
		if !ok || !n.hasPar {
			return cur == anc
		}
		cur = n.parent
	}
}

// FinalizeReport is the result of UpdateFinalizedEpoch: the path from the
// old root (exclusive) to the new terminal block (inclusive), and every
// side-branch pruned off that path.
type FinalizeReport struct {
	Finalized []primitives.L2BlockId
	Rejected  []primitives.L2BlockId
}

// UpdateFinalizedEpoch advances the tree's root to newTerminal, which
// must already be present and must descend from the current root. It
// returns the path finalized and the set of blocks rejected (every
// side-branch off that path, plus all of their descendants), and removes
// all rejected nodes plus all non-terminal finalized nodes from the
// tree.
func (t *Tree) UpdateFinalizedEpoch(newTerminal primitives.L2BlockId) (FinalizeReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[newTerminal]; !ok {
		return FinalizeReport{}, ErrUnknownBlock
	}
	if newTerminal == t.root {
		return FinalizeReport{}, nil
	}
	if !t.isAncestorLocked(t.root, newTerminal) {
		return FinalizeReport{}, ErrNotDescendant
	}

	// Walk from newTerminal back to root, building the finalized path
	// (root exclusive, newTerminal inclusive), then reverse it.
	var finalized []primitives.L2BlockId
	onPath := make(map[primitives.L2BlockId]struct{})
	for cur := newTerminal; cur != t.root; {
		finalized = append(finalized, cur)
		onPath[cur] = struct{}{}
		n := t.nodes[cur]
		cur = n.parent
	}
	for i, j := 0, len(finalized)-1; i < j; i, j = i+1, j-1 {
		finalized[i], finalized[j] = finalized[j], finalized[i]
	}

	// Every side-branch: children of the old root or of a non-terminal
	// on-path node that are not themselves on the path, plus all of their
	// descendants. Children of newTerminal stay in the tree.
	var rejected []primitives.L2BlockId
	visit := func(id primitives.L2BlockId) {
		n := t.nodes[id]
		for child := range n.children {
			if _, ok := onPath[child]; ok {
				continue
			}
			rejected = append(rejected, child)
			t.collectDescendants(child, &rejected)
		}
	}
	visit(t.root)
	for _, id := range finalized[:len(finalized)-1] {
		visit(id)
	}

	for _, id := range rejected {
		delete(t.nodes, id)
		delete(t.tips, id)
	}
	// Drop non-terminal finalized nodes; keep newTerminal as the new root.
	for _, id := range finalized[:len(finalized)-1] {
		delete(t.nodes, id)
	}

	root := t.nodes[newTerminal]
	root.parent = primitives.L2BlockId{}
	root.hasPar = false
	t.root = newTerminal
	delete(t.tips, newTerminal)
	if len(root.children) == 0 {
		t.tips[newTerminal] = struct{}{}
	}

	log.WithField("new_root", newTerminal.String()).
		WithField("finalized", len(finalized)).
		WithField("rejected", len(rejected)).
		Info("advanced finalized root")
	return FinalizeReport{Finalized: finalized, Rejected: rejected}, nil
}

// BlockSource loads persisted L2 blocks by height, for LoadUnfinalizedBlocks.
type BlockSource interface {
	GetBlocksAtHeight(slot uint64) ([]primitives.L2BlockId, error)
	GetBlock(blkid primitives.L2BlockId) (*primitives.L2BlockBundle, error)
	GetStatus(blkid primitives.L2BlockId) (int, error)
}

// StatusValid matches storage.StatusValid without importing storage,
// keeping forkchoice free of a storage-package dependency.
const StatusValid = 1

// LoadUnfinalizedBlocks bootstraps the tree by walking forward from
// root.slot+1 and attaching every block marked Valid at each height,
// stopping at the first height with no valid blocks.
func (t *Tree) LoadUnfinalizedBlocks(src BlockSource) error {
	rootSlot, _ := t.GetSlot(t.Root())
	for slot := rootSlot + 1; ; slot++ {
		ids, err := src.GetBlocksAtHeight(slot)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		attachedAny := false
		for _, id := range ids {
			status, err := src.GetStatus(id)
			if err != nil {
				return err
			}
			if status != StatusValid {
				continue
			}
			bundle, err := src.GetBlock(id)
			if err != nil {
				return err
			}
			if _, err := t.Attach(id, bundle.Header.Header.Parent, bundle.Header.Header.Slot); err != nil {
				if err == ErrAttachMissingParent {
					continue
				}
				return err
			}
			attachedAny = true
		}
		if !attachedAny {
			return nil
		}
	}
}

func lessL2(a, b primitives.L2BlockId) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
