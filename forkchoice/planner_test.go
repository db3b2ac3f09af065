package forkchoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcrollup/node/primitives"
)

func buildLinearTree(t *testing.T, n int) (*Tree, []primitives.L2BlockId) {
	t.Helper()
	ids := make([]primitives.L2BlockId, n+1)
	ids[0] = id(0)
	tree := NewTree(ids[0], 0)
	for i := 1; i <= n; i++ {
		ids[i] = id(byte(i))
		_, err := tree.Attach(ids[i], ids[i-1], uint64(i))
		require.NoError(t, err)
	}
	return tree, ids
}

func TestComputeTipUpdateSameBlockIsNone(t *testing.T) {
	tree, ids := buildLinearTree(t, 3)
	update, err := ComputeTipUpdate(ids[2], ids[2], 100, tree)
	require.NoError(t, err)
	assert.Nil(t, update)
}

func TestComputeTipUpdateExtendTip(t *testing.T) {
	tree, ids := buildLinearTree(t, 3)
	update, err := ComputeTipUpdate(ids[1], ids[2], 100, tree)
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.Equal(t, ExtendTip, update.Kind)
	assert.Equal(t, ids[2], update.New)
}

func TestComputeTipUpdateLongExtend(t *testing.T) {
	tree, ids := buildLinearTree(t, 3)
	update, err := ComputeTipUpdate(ids[0], ids[3], 100, tree)
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.Equal(t, LongExtend, update.Kind)
	assert.Equal(t, []primitives.L2BlockId{ids[1], ids[2]}, update.Mid)
	assert.Equal(t, ids[3], update.New)
}

func TestComputeTipUpdateRevert(t *testing.T) {
	tree, ids := buildLinearTree(t, 3)
	update, err := ComputeTipUpdate(ids[3], ids[1], 100, tree)
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.Equal(t, Revert, update.Kind)
	assert.Equal(t, ids[1], update.New)
}

func TestComputeTipUpdateReorgIsSymmetric(t *testing.T) {
	root := id(0)
	tree := NewTree(root, 0)
	// root -> a1 -> a2 -> a3 -> a4   (side A)
	//      -> b1 -> b2 -> b3         (side B)
	a := []primitives.L2BlockId{root}
	cur := root
	for i := 1; i <= 4; i++ {
		n := primitives.L2BlockId{0xA0 + byte(i)}
		_, err := tree.Attach(n, cur, uint64(i))
		require.NoError(t, err)
		a = append(a, n)
		cur = n
	}
	b := []primitives.L2BlockId{root}
	cur = root
	for i := 1; i <= 3; i++ {
		n := primitives.L2BlockId{0xB0 + byte(i)}
		_, err := tree.Attach(n, cur, uint64(i))
		require.NoError(t, err)
		b = append(b, n)
		cur = n
	}

	update, err := ComputeTipUpdate(a[4], b[3], 100, tree)
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.Equal(t, Reorg, update.Kind)
	assert.Equal(t, root, update.Pivot)
	assert.Equal(t, []primitives.L2BlockId{a[4], a[3], a[2], a[1]}, update.Down)
	assert.Equal(t, []primitives.L2BlockId{b[1], b[2], b[3]}, update.Up)

	// Symmetric: down and up share exactly the pivot and no other ids.
	seen := map[primitives.L2BlockId]bool{}
	for _, x := range update.Down {
		seen[x] = true
	}
	for _, x := range update.Up {
		assert.False(t, seen[x], "up/down must not overlap besides the pivot")
	}
}

func TestComputeTipUpdateNoCommonAncestorWithinDepth(t *testing.T) {
	tree, ids := buildLinearTree(t, 10)
	update, err := ComputeTipUpdate(ids[0], ids[10], 2, tree)
	require.NoError(t, err)
	assert.Nil(t, update)
}

func TestChooseBestTipSticky(t *testing.T) {
	root := id(0)
	tree := NewTree(root, 0)
	tipA := primitives.L2BlockId{0x02}
	tipB := primitives.L2BlockId{0x01}
	_, err := tree.Attach(tipA, root, 1)
	require.NoError(t, err)
	_, err = tree.Attach(tipB, root, 1)
	require.NoError(t, err)

	current := primitives.L2BlockCommitment{Slot: 1, Blkid: tipA}
	best := ChooseBestTip(tree, current)
	assert.Equal(t, tipA, best.Blkid, "equal-slot tips must not dislodge the current tip")

	higher := primitives.L2BlockId{0x03}
	_, err = tree.Attach(higher, tipB, 2)
	require.NoError(t, err)
	best = ChooseBestTip(tree, current)
	assert.Equal(t, higher, best.Blkid, "strictly greater slot switches the tip")
}
