package common

import "errors"

// Error kinds returned by the storage core (spec §7). Every operation
// returns one of these, wrapped with context via fmt.Errorf("...: %w", ...),
// or a nil error. The one tolerated case is pager.Pager.Deallocate, which
// succeeds for ids outside its live set and for pages not resident in
// the buffer pool.
var (
	ErrIO           = errors.New("io error")
	ErrNotOpen      = errors.New("file is not open")
	ErrOutOfRange   = errors.New("id out of range")
	ErrNotInPool    = errors.New("page not resident in buffer pool")
	ErrPoolFull     = errors.New("buffer pool full: no unpinned frame to evict")
	ErrInvalidRID   = errors.New("invalid record id")
	ErrPageFull     = errors.New("page has no room for record")
	ErrTypeMismatch = errors.New("value type mismatch")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotSupported = errors.New("operation not supported")

	// ErrKeyNotFound, ErrKeyEmpty and ErrClosed round out the
	// common.StorageEngine surface the benchmark harness drives; they are
	// reported by the btree engine adapter. ErrKeyNotFound is also what
	// btree.BTree.Search and btree.BTree.Remove return for an absent key.
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyEmpty    = errors.New("key cannot be empty")
	ErrClosed      = errors.New("storage engine closed")
)
