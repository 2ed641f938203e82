package pager_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/buffer"
	"github.com/fenndb/fenndb/internal/disk"
	"github.com/fenndb/fenndb/internal/pager"
)

func newTestPager(t *testing.T) (*pager.Pager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.db")
	d, err := disk.Create(path, nil)
	require.NoError(t, err)
	b, err := buffer.New(d, 8, nil)
	require.NoError(t, err)
	return pager.New(d, b, nil), path
}

func TestAllocateIsValidAndGettable(t *testing.T) {
	p, _ := newTestPager(t)
	id, err := p.Allocate()
	require.NoError(t, err)
	assert.True(t, p.IsValid(id))

	page, err := p.Get(id)
	require.NoError(t, err)
	require.NoError(t, p.Release(id, false))
	assert.Equal(t, id, page.ID())
}

func TestHeaderPageIsNeverValid(t *testing.T) {
	p, _ := newTestPager(t)
	assert.False(t, p.IsValid(common.HeaderPageID))
	_, err := p.Get(common.HeaderPageID)
	assert.ErrorIs(t, err, common.ErrOutOfRange)
}

func TestUnallocatedPageIsInvalid(t *testing.T) {
	p, _ := newTestPager(t)
	assert.False(t, p.IsValid(common.PageID(42)))
	_, err := p.Get(common.PageID(42))
	assert.ErrorIs(t, err, common.ErrOutOfRange)
}

func TestDeallocateRemovesFromLiveSet(t *testing.T) {
	p, _ := newTestPager(t)
	id, err := p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.Deallocate(id))
	assert.False(t, p.IsValid(id))
}

func TestDeallocateNeverResidentIsTolerant(t *testing.T) {
	p, _ := newTestPager(t)
	err := p.Deallocate(common.PageID(777))
	assert.NoError(t, err)
}

func TestReopenSeedsLiveSetFromExistingPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	d, err := disk.Create(path, nil)
	require.NoError(t, err)
	b, err := buffer.New(d, 8, nil)
	require.NoError(t, err)
	p := pager.New(d, b, nil)

	id, err := p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.FlushAll())
	require.NoError(t, d.Flush())
	require.NoError(t, d.Close())

	d2, err := disk.Open(path, nil)
	require.NoError(t, err)
	b2, err := buffer.New(d2, 8, nil)
	require.NoError(t, err)
	p2 := pager.New(d2, b2, nil)

	assert.True(t, p2.IsValid(id))
}
