// Package page implements the slotted record page format (spec §4.3): a
// fixed-size header, a slot directory growing from the front, and record
// bytes packed in from the back. Page never interprets record contents —
// it stores and returns opaque byte strings addressed by slot number.
package page

import (
	"encoding/binary"
	"fmt"

	"github.com/fenndb/fenndb/common"
)

// Page types, stored in the header so a page can be told apart when read
// back off disk without external bookkeeping.
const (
	TypeInvalid byte = 0
	TypeHeap    byte = 1
	TypeBTree   byte = 2
)

// Header layout: page_id(4) page_type(1) slot_count(2) free_space_offset(2)
// free_space(2) is_dirty(1) next_free_page(4) = 16 bytes.
const (
	headerSize             = 16
	offsetPageID            = 0
	offsetPageType          = 4
	offsetSlotCount         = 5
	offsetFreeSpaceOffset   = 7
	offsetFreeSpace         = 9
	offsetIsDirty           = 11
	offsetNextFreePage      = 12
)

// slotSize is the width of one slot directory entry: offset(2) + size(2).
const slotSize = 4

// tombstoneSize marks a deleted slot; its offset field is left untouched
// so Compactify can still tell an ever-occupied slot from a never-used one
// if that distinction ever matters, but callers must treat size 0 as gone.
const tombstoneSize = 0

// Page is one fixed-size common.PageSize block.
type Page struct {
	data [common.PageSize]byte
}

// New initializes a fresh page of the given type with an empty slot
// directory and a full free region.
func New(id common.PageID, pageType byte) *Page {
	p := &Page{}
	binary.LittleEndian.PutUint32(p.data[offsetPageID:], uint32(id))
	p.data[offsetPageType] = pageType
	binary.LittleEndian.PutUint16(p.data[offsetSlotCount:], 0)
	binary.LittleEndian.PutUint16(p.data[offsetFreeSpaceOffset:], common.PageSize)
	binary.LittleEndian.PutUint16(p.data[offsetFreeSpace:], common.PageSize-headerSize)
	p.data[offsetIsDirty] = 1
	binary.LittleEndian.PutUint32(p.data[offsetNextFreePage:], uint32(common.InvalidPageID))
	return p
}

// Deserialize wraps raw PageSize bytes (as read from Disk) as a Page.
func Deserialize(raw []byte) (*Page, error) {
	if len(raw) != common.PageSize {
		return nil, fmt.Errorf("%w: page payload must be %d bytes, got %d", common.ErrIO, common.PageSize, len(raw))
	}
	p := &Page{}
	copy(p.data[:], raw)
	return p, nil
}

// Serialize returns the raw bytes to hand to Disk.WritePage.
func (p *Page) Serialize() []byte {
	out := make([]byte, common.PageSize)
	copy(out, p.data[:])
	return out
}

// ID returns the page's own id, as stamped at New/Deserialize time.
func (p *Page) ID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(p.data[offsetPageID:]))
}

// Type returns the page type tag.
func (p *Page) Type() byte {
	return p.data[offsetPageType]
}

// SetType retags the page. Buffer's corrupt-header recovery path
// reinitializes a page as TypeHeap before its owner (e.g. a B+ tree) has
// a chance to say what it actually is; SetType lets that owner correct
// the tag once it takes ownership.
func (p *Page) SetType(pageType byte) {
	p.data[offsetPageType] = pageType
	p.SetDirty(true)
}

// SlotCount returns the number of slots in the directory, including
// tombstoned ones.
func (p *Page) SlotCount() uint16 {
	return binary.LittleEndian.Uint16(p.data[offsetSlotCount:])
}

// IsDirty reports the page's dirty bit.
func (p *Page) IsDirty() bool {
	return p.data[offsetIsDirty] != 0
}

// SetDirty sets or clears the dirty bit directly; Buffer uses this once
// it has flushed a page back to Disk.
func (p *Page) SetDirty(dirty bool) {
	if dirty {
		p.data[offsetIsDirty] = 1
	} else {
		p.data[offsetIsDirty] = 0
	}
}

// NextFreePage chains this page onto a free list (unused by the core
// engine today, but present in the header per spec §4.3 so a future free
// list has somewhere to live without a format change).
func (p *Page) NextFreePage() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(p.data[offsetNextFreePage:]))
}

// SetNextFreePage sets the free-list chain pointer.
func (p *Page) SetNextFreePage(id common.PageID) {
	binary.LittleEndian.PutUint32(p.data[offsetNextFreePage:], uint32(id))
	p.SetDirty(true)
}

func (p *Page) freeSpaceOffset() uint16 {
	return binary.LittleEndian.Uint16(p.data[offsetFreeSpaceOffset:])
}

func (p *Page) setFreeSpaceOffset(v uint16) {
	binary.LittleEndian.PutUint16(p.data[offsetFreeSpaceOffset:], v)
}

func (p *Page) freeSpace() uint16 {
	return binary.LittleEndian.Uint16(p.data[offsetFreeSpace:])
}

func (p *Page) setFreeSpace(v uint16) {
	binary.LittleEndian.PutUint16(p.data[offsetFreeSpace:], v)
}

func (p *Page) setSlotCount(v uint16) {
	binary.LittleEndian.PutUint16(p.data[offsetSlotCount:], v)
}

func (p *Page) slotOffset(slot uint16) int {
	return headerSize + int(slot)*slotSize
}

func (p *Page) slotAt(slot uint16) (offset, size uint16) {
	o := p.slotOffset(slot)
	return binary.LittleEndian.Uint16(p.data[o:]), binary.LittleEndian.Uint16(p.data[o+2:])
}

func (p *Page) setSlotAt(slot uint16, offset, size uint16) {
	o := p.slotOffset(slot)
	binary.LittleEndian.PutUint16(p.data[o:], offset)
	binary.LittleEndian.PutUint16(p.data[o+2:], size)
}

// InsertRecord stores data in a new slot, returning the slot number. Fails
// with ErrPageFull if there is not enough contiguous free space for both a
// new directory entry and the record bytes; the caller (Pager/BTree) is
// expected to retry on a different or freshly allocated page.
func (p *Page) InsertRecord(data []byte) (uint16, error) {
	need := len(data) + slotSize
	if need > int(p.freeSpace()) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", common.ErrPageFull, need, p.freeSpace())
	}

	slot := p.SlotCount()
	newRecordOffset := p.freeSpaceOffset() - uint16(len(data))
	copy(p.data[newRecordOffset:], data)
	p.setSlotAt(slot, newRecordOffset, uint16(len(data)))
	p.setSlotCount(slot + 1)
	p.setFreeSpaceOffset(newRecordOffset)
	p.setFreeSpace(p.freeSpace() - uint16(need))
	p.SetDirty(true)
	return slot, nil
}

// GetRecord returns a copy of the record bytes for slot. Fails with
// ErrInvalidRID if the slot is out of range or tombstoned.
func (p *Page) GetRecord(slot uint16) ([]byte, error) {
	if slot >= p.SlotCount() {
		return nil, fmt.Errorf("%w: slot %d out of range (have %d)", common.ErrInvalidRID, slot, p.SlotCount())
	}
	offset, size := p.slotAt(slot)
	if size == tombstoneSize {
		return nil, fmt.Errorf("%w: slot %d has been deleted", common.ErrInvalidRID, slot)
	}
	out := make([]byte, size)
	copy(out, p.data[offset:offset+size])
	return out, nil
}

// DeleteRecord tombstones slot: its directory entry's size becomes 0, but
// the slot index itself is never reused, so any RID pointing at it stays
// a stable (if now-dead) reference rather than silently aliasing a future
// insert.
func (p *Page) DeleteRecord(slot uint16) error {
	if slot >= p.SlotCount() {
		return fmt.Errorf("%w: slot %d out of range (have %d)", common.ErrInvalidRID, slot, p.SlotCount())
	}
	offset, size := p.slotAt(slot)
	if size == tombstoneSize {
		return fmt.Errorf("%w: slot %d already deleted", common.ErrInvalidRID, slot)
	}
	p.setSlotAt(slot, offset, tombstoneSize)
	p.SetDirty(true)
	return nil
}

// UpdateRecord replaces the bytes at slot. If the new payload is no
// larger than the current one it's written in place; otherwise the old
// slot is tombstoned and a fresh record is appended, same as
// DeleteRecord+InsertRecord: the original slot's RID no longer resolves,
// and the returned new slot number is the one the caller must now use.
func (p *Page) UpdateRecord(slot uint16, data []byte) (uint16, error) {
	if slot >= p.SlotCount() {
		return 0, fmt.Errorf("%w: slot %d out of range (have %d)", common.ErrInvalidRID, slot, p.SlotCount())
	}
	offset, size := p.slotAt(slot)
	if size == tombstoneSize {
		return 0, fmt.Errorf("%w: slot %d has been deleted", common.ErrInvalidRID, slot)
	}
	if len(data) <= int(size) {
		copy(p.data[offset:], data)
		p.setSlotAt(slot, offset, uint16(len(data)))
		p.SetDirty(true)
		return slot, nil
	}
	if err := p.DeleteRecord(slot); err != nil {
		return 0, err
	}
	return p.InsertRecord(data)
}

// ReplaceRecord overwrites slot's payload regardless of whether the new
// data is larger or smaller than what's there, without ever reassigning
// the slot index — unlike UpdateRecord, which relocates a growing
// record to a fresh slot. Callers that need a single slot to always
// refer to the same logical entity (a B+ tree node's whole serialized
// body, for instance) use this instead. When the old payload borders the
// free region (as it does right after Compactify) its bytes are reused;
// otherwise they are left in place until the next Compactify reclaims them.
func (p *Page) ReplaceRecord(slot uint16, data []byte) error {
	if slot >= p.SlotCount() {
		return fmt.Errorf("%w: slot %d out of range (have %d)", common.ErrInvalidRID, slot, p.SlotCount())
	}
	oldOffset, oldSize := p.slotAt(slot)
	end := p.freeSpaceOffset()
	available := int(p.freeSpace())
	if oldSize != tombstoneSize && oldOffset == end {
		end = oldOffset + oldSize
		available += int(oldSize)
	}
	if len(data) > available {
		return fmt.Errorf("%w: need %d bytes, have %d", common.ErrPageFull, len(data), available)
	}

	newOffset := end - uint16(len(data))
	copy(p.data[newOffset:], data)
	p.setSlotAt(slot, newOffset, uint16(len(data)))
	p.setFreeSpaceOffset(newOffset)
	p.setFreeSpace(uint16(available - len(data)))
	p.SetDirty(true)
	return nil
}

// Compactify repacks all live records against the end of the page,
// reclaiming space left by tombstones and by UpdateRecord's
// delete-then-append path, without changing any slot's index (so RIDs
// issued before compaction stay valid).
func (p *Page) Compactify() {
	type liveSlot struct {
		slot uint16
		data []byte
	}
	var live []liveSlot
	count := p.SlotCount()
	for s := uint16(0); s < count; s++ {
		_, size := p.slotAt(s)
		if size == tombstoneSize {
			continue
		}
		rec, err := p.GetRecord(s)
		if err != nil {
			continue
		}
		live = append(live, liveSlot{slot: s, data: rec})
	}

	cursor := uint16(common.PageSize)
	for _, l := range live {
		cursor -= uint16(len(l.data))
		copy(p.data[cursor:], l.data)
		p.setSlotAt(l.slot, cursor, uint16(len(l.data)))
	}
	p.setFreeSpaceOffset(cursor)
	used := headerSize + int(count)*slotSize
	p.setFreeSpace(cursor - uint16(used))
	p.SetDirty(true)
}
