package forkchoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcrollup/node/primitives"
)

func id(b byte) primitives.L2BlockId {
	var out primitives.L2BlockId
	out[0] = b
	return out
}

func TestAttach(t *testing.T) {
	root := id(0)
	tree := NewTree(root, 0)

	isNewTip, err := tree.Attach(id(1), root, 1)
	require.NoError(t, err)
	assert.True(t, isNewTip, "attaching the sole child of the root extends it, not a fork")

	isNewTip, err = tree.Attach(id(2), root, 1)
	require.NoError(t, err)
	assert.False(t, isNewTip, "root was no longer a tip once id(1) attached")

	_, err = tree.Attach(id(3), id(99), 2)
	assert.ErrorIs(t, err, ErrAttachMissingParent)

	_, err = tree.Attach(id(4), id(1), 1)
	assert.ErrorIs(t, err, ErrChildBeforeParent)

	tips := tree.ChainTipsIter()
	assert.ElementsMatch(t, []primitives.L2BlockId{id(1), id(2)}, tips)
}

func TestAttachIdempotent(t *testing.T) {
	root := id(0)
	tree := NewTree(root, 0)
	_, err := tree.Attach(id(1), root, 1)
	require.NoError(t, err)
	_, err = tree.Attach(id(2), id(1), 2)
	require.NoError(t, err)

	isNewTip, err := tree.Attach(id(1), root, 1)
	require.NoError(t, err)
	assert.False(t, isNewTip, "id(1) is no longer a tip (id(2) attached under it)")
}

func TestUpdateFinalizedEpoch(t *testing.T) {
	root := id(0)
	tree := NewTree(root, 0)
	// root -> 1 -> 2 -> 3
	//            \-> 4
	_, err := tree.Attach(id(1), root, 1)
	require.NoError(t, err)
	_, err = tree.Attach(id(2), id(1), 2)
	require.NoError(t, err)
	_, err = tree.Attach(id(3), id(2), 3)
	require.NoError(t, err)
	_, err = tree.Attach(id(4), id(1), 2)
	require.NoError(t, err)

	report, err := tree.UpdateFinalizedEpoch(id(2))
	require.NoError(t, err)
	assert.Equal(t, []primitives.L2BlockId{id(1), id(2)}, report.Finalized)
	assert.ElementsMatch(t, []primitives.L2BlockId{id(4)}, report.Rejected)

	assert.Equal(t, id(2), tree.Root())
	assert.False(t, tree.Contains(id(1)), "non-terminal finalized nodes are removed")
	assert.False(t, tree.Contains(id(4)), "rejected side branches are removed")
	assert.True(t, tree.Contains(id(3)), "descendant of the new root survives")

	tips := tree.ChainTipsIter()
	assert.Equal(t, []primitives.L2BlockId{id(3)}, tips)
}

func TestUpdateFinalizedEpochRejectsPrunedBlock(t *testing.T) {
	root := id(0)
	tree := NewTree(root, 0)
	_, err := tree.Attach(id(1), root, 1)
	require.NoError(t, err)
	_, err = tree.Attach(id(2), root, 1)
	require.NoError(t, err)

	report, err := tree.UpdateFinalizedEpoch(id(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []primitives.L2BlockId{id(2)}, report.Rejected)

	// id(2) no longer exists; finalizing "to" it now fails as unknown.
	_, err = tree.UpdateFinalizedEpoch(id(2))
	assert.ErrorIs(t, err, ErrUnknownBlock)
}

func TestGetAllDescendants(t *testing.T) {
	root := id(0)
	tree := NewTree(root, 0)
	_, _ = tree.Attach(id(1), root, 1)
	_, _ = tree.Attach(id(2), id(1), 2)
	_, _ = tree.Attach(id(3), id(1), 2)

	desc, err := tree.GetAllDescendants(id(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []primitives.L2BlockId{id(2), id(3)}, desc)
}
