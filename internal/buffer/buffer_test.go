package buffer_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/buffer"
	"github.com/fenndb/fenndb/internal/disk"
	"github.com/fenndb/fenndb/internal/page"
)

func newTestDisk(t *testing.T) *disk.Disk {
	t.Helper()
	d, err := disk.Create(filepath.Join(t.TempDir(), "data.db"), nil)
	require.NoError(t, err)
	return d
}

func TestFetchMissReadsThroughAndCounts(t *testing.T) {
	d := newTestDisk(t)
	id, err := d.AllocatePage()
	require.NoError(t, err)

	b, err := buffer.New(d, 4, nil)
	require.NoError(t, err)

	_, err = b.Fetch(id)
	require.NoError(t, err)
	hits, misses := b.Stats()
	assert.Equal(t, uint64(0), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestFetchHitAfterFirstFetch(t *testing.T) {
	d := newTestDisk(t)
	id, err := d.AllocatePage()
	require.NoError(t, err)

	b, err := buffer.New(d, 4, nil)
	require.NoError(t, err)

	_, err = b.Fetch(id)
	require.NoError(t, err)
	require.NoError(t, b.Unpin(id, false))

	_, err = b.Fetch(id)
	require.NoError(t, err)
	hits, misses := b.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestUnpinDirtyThenFlushWritesBack(t *testing.T) {
	d := newTestDisk(t)
	id, err := d.AllocatePage()
	require.NoError(t, err)

	b, err := buffer.New(d, 4, nil)
	require.NoError(t, err)

	p, err := b.Fetch(id)
	require.NoError(t, err)
	_, err = p.InsertRecord([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, b.Unpin(id, true))
	require.NoError(t, b.Flush(id))

	raw, err := d.ReadPage(id)
	require.NoError(t, err)
	reloaded, err := page.Deserialize(raw)
	require.NoError(t, err)
	got, err := reloaded.GetRecord(0)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestEvictionSkipsPinnedFrames(t *testing.T) {
	d := newTestDisk(t)
	var ids []common.PageID
	for i := 0; i < 3; i++ {
		id, err := d.AllocatePage()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	b, err := buffer.New(d, 2, nil)
	require.NoError(t, err)

	// pin the first page and keep it pinned across the whole test.
	_, err = b.Fetch(ids[0])
	require.NoError(t, err)

	_, err = b.Fetch(ids[1])
	require.NoError(t, err)
	require.NoError(t, b.Unpin(ids[1], false))

	// this fetch must evict ids[1] (unpinned), not ids[0] (pinned).
	_, err = b.Fetch(ids[2])
	require.NoError(t, err)

	err = b.Pin(ids[0])
	assert.NoError(t, err, "ids[0] should still be resident")
}

func TestPoolFullWhenAllPinned(t *testing.T) {
	d := newTestDisk(t)
	id0, err := d.AllocatePage()
	require.NoError(t, err)
	id1, err := d.AllocatePage()
	require.NoError(t, err)

	b, err := buffer.New(d, 1, nil)
	require.NoError(t, err)

	_, err = b.Fetch(id0)
	require.NoError(t, err)

	_, err = b.Fetch(id1)
	assert.ErrorIs(t, err, common.ErrPoolFull)
}
