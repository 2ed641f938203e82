package diskfile_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/diskfile"
)

func TestCreateThenWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")

	f, err := diskfile.Create(path, nil)
	require.NoError(t, err)
	defer f.Close()

	stream, err := f.Stream()
	require.NoError(t, err)

	payload := []byte("four-oh-nine-six page of nonsense")
	_, err = stream.WriteAt(payload, 4096)
	require.NoError(t, err)
	require.NoError(t, stream.Sync())

	got := make([]byte, len(payload))
	_, err = stream.ReadAt(got, 4096)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestOpenMissingFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.db")
	_, err := diskfile.Open(path, nil)
	assert.ErrorIs(t, err, common.ErrIO)
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	f, err := diskfile.Create(path, nil)
	require.NoError(t, err)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}

func TestStreamAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	f, err := diskfile.Create(path, nil)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = f.Stream()
	assert.ErrorIs(t, err, common.ErrNotOpen)
}

func TestReopenSeesPriorWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")

	f, err := diskfile.Create(path, nil)
	require.NoError(t, err)
	stream, err := f.Stream()
	require.NoError(t, err)
	_, err = stream.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := diskfile.Open(path, nil)
	require.NoError(t, err)
	defer f2.Close()
	stream2, err := f2.Stream()
	require.NoError(t, err)

	got := make([]byte, 5)
	_, err = stream2.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestInMemoryStreamRoundTrips(t *testing.T) {
	f := diskfile.NewInMemory("mem://test")
	stream, err := f.Stream()
	require.NoError(t, err)

	_, err = stream.WriteAt([]byte("abc"), 10)
	require.NoError(t, err)

	got := make([]byte, 3)
	_, err = stream.ReadAt(got, 10)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
