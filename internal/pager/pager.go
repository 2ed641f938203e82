// Package pager ties disk.Disk and buffer.Buffer together (spec §4.5):
// it is the only component that knows which page ids are actually live,
// so Get/Allocate/Deallocate can reject a stale or bogus id before it
// ever reaches Disk.
package pager

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/buffer"
	"github.com/fenndb/fenndb/internal/disk"
	"github.com/fenndb/fenndb/internal/page"
)

// Pager is the live-set-aware front door to a Disk/Buffer pair. One
// mutex guards the live set and the Allocate/Deallocate hand-off to
// Disk and Buffer (spec §5: coarse locking, not per-page latching);
// Pin, Release, Flush, FlushAll and Get's fetch go straight to Buffer,
// which has its own lock.
type Pager struct {
	mu   sync.Mutex
	disk *disk.Disk
	buf  *buffer.Buffer
	live map[common.PageID]struct{}
	log  *zap.Logger
}

// New builds a Pager over an already-open Disk/Buffer pair, seeding the
// live set from every data page Disk already knows about (pages 1
// through PageCount()-1) so a reopened database doesn't forget which
// pages are allocated.
func New(d *disk.Disk, b *buffer.Buffer, log *zap.Logger) *Pager {
	if log == nil {
		log = zap.NewNop()
	}
	live := make(map[common.PageID]struct{})
	for id := uint32(1); id < d.PageCount(); id++ {
		live[common.PageID(id)] = struct{}{}
	}
	return &Pager{disk: d, buf: b, live: live, log: log}
}

// Allocate grows the underlying file by one page and adds it to the live
// set.
func (p *Pager) Allocate() (common.PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, err := p.disk.AllocatePage()
	if err != nil {
		return common.InvalidPageID, err
	}
	p.live[id] = struct{}{}
	return id, nil
}

// Deallocate evicts id from Buffer if it is resident and removes it from
// the live set. This is tolerant by design: deallocating a page that is
// not in the live set (already removed, or never allocated) logs a
// warning and succeeds rather than erroring, and a page that was never
// brought into Buffer is simply dropped from the live set, since the
// caller's intent — "this page should not be considered live" — is
// already satisfied. Disk's page count is left unchanged.
func (p *Pager) Deallocate(id common.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live[id]; !ok {
		p.log.Warn("deallocating a page that is not resident in the live set",
			zap.Uint32("pageID", uint32(id)))
		return nil
	}
	if err := p.buf.Remove(id); err != nil && !errors.Is(err, common.ErrNotInPool) {
		return err
	}
	delete(p.live, id)
	return nil
}

// IsValid reports whether id is a sentinel-free, in-range, currently
// allocated page.
func (p *Pager) IsValid(id common.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isValidLocked(id)
}

func (p *Pager) isValidLocked(id common.PageID) bool {
	if id == common.InvalidPageID || id == common.HeaderPageID {
		return false
	}
	if uint32(id) >= p.disk.PageCount() {
		return false
	}
	_, ok := p.live[id]
	return ok
}

// Get fetches and pins id's page, rejecting ids outside the live set
// before ever asking Buffer to read through to Disk.
func (p *Pager) Get(id common.PageID) (*page.Page, error) {
	p.mu.Lock()
	valid := p.isValidLocked(id)
	p.mu.Unlock()
	if !valid {
		return nil, fmt.Errorf("%w: page %d is not a live page", common.ErrOutOfRange, id)
	}
	return p.buf.Fetch(id)
}

// Pin increments id's pin count without fetching it.
func (p *Pager) Pin(id common.PageID) error {
	return p.buf.Pin(id)
}

// Release unpins id, marking it dirty if dirty is set.
func (p *Pager) Release(id common.PageID, dirty bool) error {
	return p.buf.Unpin(id, dirty)
}

// Flush writes id back to Disk if dirty.
func (p *Pager) Flush(id common.PageID) error {
	return p.buf.Flush(id)
}

// FlushAll writes back every dirty resident page.
func (p *Pager) FlushAll() error {
	return p.buf.FlushAll()
}

// PageCount reports the total page count, including the header page.
func (p *Pager) PageCount() uint32 {
	return p.disk.PageCount()
}
