// Package buffer implements the buffer pool (spec §4.4): a fixed-capacity
// cache of page.Page frames backed by disk.Disk, with pin-counted,
// LRU-ordered eviction and write-back of dirty frames.
package buffer

import (
	"fmt"
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/disk"
	"github.com/fenndb/fenndb/internal/page"
)

// frame is one resident page plus the bookkeeping Disk's raw bytes don't
// carry: how many callers currently hold it pinned, and whether it has
// been modified since it was last written back.
type frame struct {
	page     *page.Page
	pinCount int
	dirty    bool
}

// Buffer is the pool. Capacity bounds how many frames may be resident at
// once; eviction only ever considers unpinned frames, chosen in least-
// recently-used order.
//
// The underlying simplelru.LRU tracks recency for us (capacity set to
// MaxInt so it never evicts on our behalf); Buffer walks Keys() itself
// to find an unpinned victim, since simplelru has no notion of "this
// entry is currently in use and must not be evicted."
type Buffer struct {
	mu       sync.Mutex
	disk     *disk.Disk
	lru      *simplelru.LRU[common.PageID, *frame]
	capacity int
	hits     uint64
	misses   uint64
	log      *zap.Logger
}

// New builds a pool of the given capacity (number of resident frames)
// over d.
func New(d *disk.Disk, capacity int, log *zap.Logger) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: buffer capacity must be positive, got %d", common.ErrPoolFull, capacity)
	}
	if log == nil {
		log = zap.NewNop()
	}
	lru, err := simplelru.NewLRU[common.PageID, *frame](math.MaxInt, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: constructing lru: %v", common.ErrIO, err)
	}
	return &Buffer{disk: d, lru: lru, capacity: capacity, log: log}, nil
}

// Fetch returns the page for id, pinned once on the caller's behalf.
// Callers must Unpin when done. A resident page counts as a hit and
// bumps its recency; a miss reads through to Disk, evicting an unpinned
// victim first if the pool is at capacity.
func (b *Buffer) Fetch(id common.PageID) (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if f, ok := b.lru.Get(id); ok {
		b.hits++
		f.pinCount++
		return f.page, nil
	}
	b.misses++

	if b.lru.Len() >= b.capacity {
		if err := b.evictOneLocked(); err != nil {
			return nil, err
		}
	}

	raw, err := b.disk.ReadPage(id)
	if err != nil {
		return nil, err
	}
	p, err := page.Deserialize(raw)
	if err != nil {
		return nil, err
	}
	if p.ID() != id {
		b.log.Warn("page header mismatch on load, reinitializing",
			zap.Uint32("wantID", uint32(id)), zap.Uint32("gotID", uint32(p.ID())))
		p = page.New(id, page.TypeHeap)
		p.SetDirty(true)
	}

	f := &frame{page: p, pinCount: 1}
	b.lru.Add(id, f)
	return p, nil
}

// evictOneLocked removes the least-recently-used unpinned frame,
// flushing it first if dirty. Fails with ErrPoolFull if every resident
// frame is pinned.
func (b *Buffer) evictOneLocked() error {
	for _, id := range b.lru.Keys() {
		f, ok := b.lru.Peek(id)
		if !ok || f.pinCount > 0 {
			continue
		}
		if f.dirty {
			if err := b.disk.WritePage(id, f.page.Serialize()); err != nil {
				return err
			}
		}
		b.lru.Remove(id)
		return nil
	}
	return common.ErrPoolFull
}

// Pin increments id's pin count. Fails with ErrNotInPool if id isn't
// resident.
func (b *Buffer) Pin(id common.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.lru.Get(id)
	if !ok {
		return fmt.Errorf("%w: page %d", common.ErrNotInPool, id)
	}
	f.pinCount++
	return nil
}

// Unpin decrements id's pin count (floored at 0) and, if markDirty is
// set, marks the frame dirty so a later Flush writes it back.
func (b *Buffer) Unpin(id common.PageID, markDirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.lru.Get(id)
	if !ok {
		return fmt.Errorf("%w: page %d", common.ErrNotInPool, id)
	}
	if f.pinCount > 0 {
		f.pinCount--
	}
	if markDirty {
		f.dirty = true
		f.page.SetDirty(true)
	}
	return nil
}

// Flush writes id back to Disk if dirty, and clears its dirty bit.
func (b *Buffer) Flush(id common.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.lru.Peek(id)
	if !ok {
		return fmt.Errorf("%w: page %d", common.ErrNotInPool, id)
	}
	return b.flushFrameLocked(id, f)
}

// FlushAll writes back every dirty resident frame, combining the
// errors from any frames that fail rather than stopping at the first.
func (b *Buffer) FlushAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for _, id := range b.lru.Keys() {
		f, ok := b.lru.Peek(id)
		if !ok {
			continue
		}
		err = multierr.Append(err, b.flushFrameLocked(id, f))
	}
	return err
}

func (b *Buffer) flushFrameLocked(id common.PageID, f *frame) error {
	if !f.dirty {
		return nil
	}
	if err := b.disk.WritePage(id, f.page.Serialize()); err != nil {
		return err
	}
	f.dirty = false
	f.page.SetDirty(false)
	return nil
}

// Remove evicts id, flushing it first if dirty. Fails with ErrPoolFull
// if it is pinned and with ErrNotInPool if it is absent.
func (b *Buffer) Remove(id common.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.lru.Peek(id)
	if !ok {
		return fmt.Errorf("%w: page %d", common.ErrNotInPool, id)
	}
	if f.pinCount > 0 {
		return fmt.Errorf("%w: page %d is pinned", common.ErrPoolFull, id)
	}
	if err := b.flushFrameLocked(id, f); err != nil {
		return err
	}
	b.lru.Remove(id)
	return nil
}

// HitRate returns the fraction of Fetch calls satisfied without reading
// through to Disk. Returns 0 if Fetch has never been called.
func (b *Buffer) HitRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := b.hits + b.misses
	if total == 0 {
		return 0
	}
	return float64(b.hits) / float64(total)
}

// Stats returns the raw hit/miss counters.
func (b *Buffer) Stats() (hits, misses uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits, b.misses
}
