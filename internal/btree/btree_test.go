package btree_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/btree"
	"github.com/fenndb/fenndb/internal/buffer"
	"github.com/fenndb/fenndb/internal/disk"
	"github.com/fenndb/fenndb/internal/pager"
)

func newTestTree(t *testing.T, keyType common.TypeTag) *btree.BTree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	d, err := disk.Create(path, nil)
	require.NoError(t, err)
	b, err := buffer.New(d, 64, nil)
	require.NoError(t, err)
	p := pager.New(d, b, nil)
	tree, err := btree.Create(p, keyType, nil)
	require.NoError(t, err)
	return tree
}

func TestInsertThenSearchFindsKey(t *testing.T) {
	tree := newTestTree(t, common.TypeInteger)
	rid := common.RID{PageID: 5, SlotNum: 2}
	require.NoError(t, tree.Insert(common.NewInteger(42), rid))

	got, err := tree.Search(common.NewInteger(42))
	require.NoError(t, err)
	assert.Equal(t, rid, got)
}

func TestSearchMissingKeyFails(t *testing.T) {
	tree := newTestTree(t, common.TypeInteger)
	_, err := tree.Search(common.NewInteger(1))
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	tree := newTestTree(t, common.TypeInteger)
	rid := common.RID{PageID: 1, SlotNum: 0}
	require.NoError(t, tree.Insert(common.NewInteger(10), rid))
	err := tree.Insert(common.NewInteger(10), rid)
	assert.ErrorIs(t, err, common.ErrDuplicateKey)
}

func TestInsertManyKeysForcesSplitAndAllRemainFindable(t *testing.T) {
	tree := newTestTree(t, common.TypeInteger)
	const n = 500
	for i := 0; i < n; i++ {
		rid := common.RID{PageID: common.PageID(i + 1), SlotNum: 0}
		require.NoError(t, tree.Insert(common.NewInteger(int32(i)), rid))
	}

	height, err := tree.Height()
	require.NoError(t, err)
	assert.Greater(t, height, 1, "inserting enough keys should have split the root")

	for i := 0; i < n; i++ {
		got, err := tree.Search(common.NewInteger(int32(i)))
		require.NoError(t, err)
		assert.Equal(t, common.PageID(i+1), got.PageID)
	}
}

func TestRangeReturnsKeysInOrderAcrossLeaves(t *testing.T) {
	tree := newTestTree(t, common.TypeInteger)
	const n = 1000
	for i := 0; i < n; i++ {
		rid := common.RID{PageID: common.PageID(i + 1), SlotNum: 0}
		require.NoError(t, tree.Insert(common.NewInteger(int32(i)), rid))
	}

	rids, err := tree.Range(common.NewInteger(100), common.NewInteger(600))
	require.NoError(t, err)
	assert.Len(t, rids, 501)
	for i, r := range rids {
		assert.Equal(t, common.PageID(100+i+1), r.PageID)
	}
}

func TestRangeEntriesReturnsMatchingKeys(t *testing.T) {
	tree := newTestTree(t, common.TypeVarchar)
	words := []string{"banana", "apple", "cherry", "date"}
	for i, w := range words {
		require.NoError(t, tree.Insert(common.NewVarchar(w), common.RID{PageID: common.PageID(i + 1), SlotNum: 0}))
	}

	entries, err := tree.RangeEntries(common.NewVarchar("apple"), common.NewVarchar("cherry"))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		s, err := e.Key.AsVarchar()
		require.NoError(t, err)
		assert.Contains(t, []string{"apple", "banana", "cherry"}, s)
	}
}

func TestRemoveThenSearchFails(t *testing.T) {
	tree := newTestTree(t, common.TypeInteger)
	rid := common.RID{PageID: 9, SlotNum: 1}
	require.NoError(t, tree.Insert(common.NewInteger(3), rid))
	require.NoError(t, tree.Remove(common.NewInteger(3)))

	_, err := tree.Search(common.NewInteger(3))
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestVarcharKeysOrderCorrectly(t *testing.T) {
	tree := newTestTree(t, common.TypeVarchar)
	words := []string{"banana", "apple", "cherry", "date"}
	for i, w := range words {
		require.NoError(t, tree.Insert(common.NewVarchar(w), common.RID{PageID: common.PageID(i + 1), SlotNum: 0}))
	}

	rids, err := tree.Range(common.NewVarchar("apple"), common.NewVarchar("cherry"))
	require.NoError(t, err)
	// apple, banana, cherry sort before date.
	assert.Len(t, rids, 3)
	// In key order: apple (page 2), banana (page 1), cherry (page 3).
	assert.Equal(t, []common.RID{{PageID: 2}, {PageID: 1}, {PageID: 3}}, rids)
}

func TestNodeCountMatchesHeightForFreshTree(t *testing.T) {
	tree := newTestTree(t, common.TypeInteger)
	count, err := tree.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	height, err := tree.Height()
	require.NoError(t, err)
	assert.Equal(t, 1, height)
}
