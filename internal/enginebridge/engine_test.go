package enginebridge_test

import (
	"path/filepath"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/enginebridge"
)

func newTestEngine(t *testing.T) *enginebridge.Engine {
	t.Helper()
	cfg := enginebridge.DefaultConfig(filepath.Join(t.TempDir(), "engine.db"))
	cfg.BufferCapacity = 32
	e, err := enginebridge.New(cfg, nil)
	require.NoError(t, err)
	return e
}

func TestPutThenGetRoundTrips(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	require.NoError(t, e.Put([]byte("hello"), []byte("world")))
	got, err := e.Get([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
}

func TestGetMissingKeyFails(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	_, err := e.Get([]byte("nope"))
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestPutOverwritesExistingKey(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	require.NoError(t, e.Put([]byte("k"), []byte("v1")))
	require.NoError(t, e.Put([]byte("k"), []byte("v2 is longer")))

	got, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v2 is longer", string(got))
	assert.Equal(t, int64(1), e.Stats().NumKeys)
}

func TestDeleteRemovesKey(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Delete([]byte("k")))

	_, err := e.Get([]byte("k"))
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
	assert.Equal(t, int64(0), e.Stats().NumKeys)
}

func TestEmptyKeyRejected(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	assert.ErrorIs(t, e.Put([]byte{}, []byte("v")), common.ErrKeyEmpty)
	_, err := e.Get([]byte{})
	assert.ErrorIs(t, err, common.ErrKeyEmpty)
}

func TestManyKeysSpanMultipleHeapPages(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	const n = 2000
	for i := 0; i < n; i++ {
		key := []byte{byte(i), byte(i >> 8), byte(i >> 16), byte(i >> 24)}
		require.NoError(t, e.Put(key, []byte("some reasonably sized value payload")))
	}
	assert.Equal(t, int64(n), e.Stats().NumKeys)

	for i := 0; i < n; i++ {
		key := []byte{byte(i), byte(i >> 8), byte(i >> 16), byte(i >> 24)}
		got, err := e.Get(key)
		require.NoError(t, err)
		assert.Equal(t, "some reasonably sized value payload", string(got))
	}
}

func TestCompactDoesNotLoseLiveRecords(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("b"), []byte("2")))
	require.NoError(t, e.Delete([]byte("a")))
	require.NoError(t, e.Compact())

	got, err := e.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
}

func TestRangeReturnsKeysInOrder(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	for _, k := range []string{"b", "d", "a", "c", "e"} {
		require.NoError(t, e.Put([]byte(k), []byte("v-"+k)))
	}

	kvs, err := e.Range([]byte("b"), []byte("d"))
	require.NoError(t, err)
	require.Len(t, kvs, 3)
	assert.Equal(t, "b", string(kvs[0].Key))
	assert.Equal(t, "c", string(kvs[1].Key))
	assert.Equal(t, "d", string(kvs[2].Key))
	assert.Equal(t, "v-c", string(kvs[1].Value))
}

func TestRangeSkipsDeletedKeys(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("b"), []byte("2")))
	require.NoError(t, e.Delete([]byte("a")))

	kvs, err := e.Range([]byte("a"), []byte("z"))
	require.NoError(t, err)
	require.Len(t, kvs, 1)
	assert.Equal(t, "b", string(kvs[0].Key))
}

func TestRandomKeyValueFixturesRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	defer e.Close()

	faker := gofakeit.New(42)
	type fixture struct{ key, value string }
	fixtures := make([]fixture, 0, 200)
	seen := make(map[string]bool)

	for len(fixtures) < 200 {
		key := faker.UUID()
		if seen[key] {
			continue
		}
		seen[key] = true
		value := faker.Sentence(12)
		fixtures = append(fixtures, fixture{key: key, value: value})
		require.NoError(t, e.Put([]byte(key), []byte(value)))
	}

	for _, f := range fixtures {
		got, err := e.Get([]byte(f.key))
		require.NoError(t, err)
		assert.Equal(t, f.value, string(got))
	}
	assert.Equal(t, int64(len(fixtures)), e.Stats().NumKeys)
}

func TestCloseThenOperationsFail(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Close())

	err := e.Put([]byte("k"), []byte("v"))
	assert.ErrorIs(t, err, common.ErrClosed)
}
