// Package btree implements the B+ tree index (spec §4.6/§4.7): typed
// keys over leaf/internal nodes that live one-per-page, leaf chaining for
// range scans, and top-down search with bottom-up split-insert.
package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/page"
)

// entry is one key's payload: a RID in a leaf, a child page id in an
// internal node. Only the field matching the node's isLeaf is meaningful.
type entry struct {
	key   common.Value
	rid   common.RID
	child common.PageID
}

// nodeHeaderSize is the byte width of the body header described below,
// stored as the single record occupying slot 0 of the underlying page.
// Layout: is_leaf(1) key_count(2) next_page_id(4) first_child(4)
// key_type(1) key_size(2) = 14 bytes.
const nodeHeaderSize = 14

// BTreeNode is the in-memory, decoded view of one B+ tree page. Load
// parses the page's slot-0 body into entries; Save re-serializes and
// writes it back, surfacing ErrPageFull from the underlying Page exactly
// as a generic record write would — the node has no separate "order"
// capacity check of its own.
type BTreeNode struct {
	p          *page.Page
	isLeaf     bool
	keyType    common.TypeTag
	nextLeaf   common.PageID // leaf chain pointer; InvalidPageID if none
	firstChild common.PageID // internal only; InvalidPageID for a leaf
	entries    []entry
}

// NewLeaf initializes p as an empty leaf node of the given key type.
func NewLeaf(p *page.Page, keyType common.TypeTag) (*BTreeNode, error) {
	p.SetType(page.TypeBTree)
	n := &BTreeNode{p: p, isLeaf: true, keyType: keyType, nextLeaf: common.InvalidPageID, firstChild: common.InvalidPageID}
	if err := n.Save(); err != nil {
		return nil, err
	}
	return n, nil
}

// NewInternal initializes p as an empty internal node with the given
// sole child (before any key has been promoted into it).
func NewInternal(p *page.Page, keyType common.TypeTag, firstChild common.PageID) (*BTreeNode, error) {
	p.SetType(page.TypeBTree)
	n := &BTreeNode{p: p, isLeaf: false, keyType: keyType, nextLeaf: common.InvalidPageID, firstChild: firstChild}
	if err := n.Save(); err != nil {
		return nil, err
	}
	return n, nil
}

// Load parses the body already stored in p's slot 0.
func Load(p *page.Page) (*BTreeNode, error) {
	raw, err := p.GetRecord(0)
	if err != nil {
		return nil, fmt.Errorf("%w: loading btree node body", err)
	}
	if len(raw) < nodeHeaderSize {
		return nil, fmt.Errorf("%w: truncated btree node header", common.ErrIO)
	}

	n := &BTreeNode{p: p}
	n.isLeaf = raw[0] != 0
	keyCount := int(binary.LittleEndian.Uint16(raw[1:]))
	n.nextLeaf = common.PageID(binary.LittleEndian.Uint32(raw[3:]))
	n.firstChild = common.PageID(binary.LittleEndian.Uint32(raw[7:]))
	n.keyType = common.TypeTag(raw[11])

	cursor := nodeHeaderSize
	n.entries = make([]entry, 0, keyCount)
	for i := 0; i < keyCount; i++ {
		key, consumed, err := decodeKey(n.keyType, raw[cursor:])
		if err != nil {
			return nil, err
		}
		cursor += consumed
		e := entry{key: key}
		if n.isLeaf {
			if len(raw[cursor:]) < 6 {
				return nil, fmt.Errorf("%w: truncated leaf entry", common.ErrIO)
			}
			e.rid = common.RID{
				PageID:  common.PageID(binary.LittleEndian.Uint32(raw[cursor:])),
				SlotNum: binary.LittleEndian.Uint16(raw[cursor+4:]),
			}
			cursor += 6
		} else {
			if len(raw[cursor:]) < 4 {
				return nil, fmt.Errorf("%w: truncated internal entry", common.ErrIO)
			}
			e.child = common.PageID(binary.LittleEndian.Uint32(raw[cursor:]))
			cursor += 4
		}
		n.entries = append(n.entries, e)
	}
	return n, nil
}

// Save serializes the node's current entries and writes them back as the
// page's slot-0 record. Returns ErrPageFull (bubbled up from Page) if the
// serialized body no longer fits, which is the node's definition of
// "full" — the caller must split before retrying.
func (n *BTreeNode) Save() error {
	body, err := n.serialize()
	if err != nil {
		return err
	}
	if n.p.SlotCount() == 0 {
		_, err := n.p.InsertRecord(body)
		return err
	}
	// A node page holds exactly one logical record (its whole body) in
	// slot 0. Compactify first so ReplaceRecord's free-space accounting
	// always reflects the page's true remaining capacity rather than
	// being eaten away by the previous body's now-dead bytes.
	n.p.Compactify()
	return n.p.ReplaceRecord(0, body)
}

func (n *BTreeNode) serialize() ([]byte, error) {
	payloadWidth := 6
	if !n.isLeaf {
		payloadWidth = 4
	}

	size := nodeHeaderSize
	encoded := make([][]byte, len(n.entries))
	for i, e := range n.entries {
		enc, err := encodeKey(e.key)
		if err != nil {
			return nil, err
		}
		encoded[i] = enc
		size += len(enc) + payloadWidth
	}

	buf := make([]byte, size)
	if n.isLeaf {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint16(buf[1:], uint16(len(n.entries)))
	binary.LittleEndian.PutUint32(buf[3:], uint32(n.nextLeaf))
	binary.LittleEndian.PutUint32(buf[7:], uint32(n.firstChild))
	buf[11] = byte(n.keyType)
	binary.LittleEndian.PutUint16(buf[12:], uint16(fixedKeyWidth(n.keyType)))

	cursor := nodeHeaderSize
	for i, e := range n.entries {
		copy(buf[cursor:], encoded[i])
		cursor += len(encoded[i])
		if n.isLeaf {
			binary.LittleEndian.PutUint32(buf[cursor:], uint32(e.rid.PageID))
			binary.LittleEndian.PutUint16(buf[cursor+4:], e.rid.SlotNum)
			cursor += 6
		} else {
			binary.LittleEndian.PutUint32(buf[cursor:], uint32(e.child))
			cursor += 4
		}
	}
	return buf, nil
}

// IsLeaf reports whether this is a leaf node.
func (n *BTreeNode) IsLeaf() bool { return n.isLeaf }

// KeyCount returns the number of keys currently stored.
func (n *BTreeNode) KeyCount() int { return len(n.entries) }

// PageID returns the underlying page's id.
func (n *BTreeNode) PageID() common.PageID { return n.p.ID() }

// NextLeaf returns the leaf chain pointer (leaves only).
func (n *BTreeNode) NextLeaf() common.PageID { return n.nextLeaf }

// SetNextLeaf sets the leaf chain pointer.
func (n *BTreeNode) SetNextLeaf(id common.PageID) { n.nextLeaf = id }

// FirstChild returns the leftmost child pointer (internal nodes only):
// the subtree holding keys less than entries[0].key.
func (n *BTreeNode) FirstChild() common.PageID { return n.firstChild }

// findKeyIndex returns (index, true) if key is present among the node's
// entries, or (insertion point, false) otherwise — the same contract as
// Go's sort.Search, expressed explicitly since callers need to
// distinguish found from not-found.
func (n *BTreeNode) findKeyIndex(key common.Value) (int, bool, error) {
	lo, hi := 0, len(n.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		cmp, err := n.entries[mid].key.Compare(key)
		if err != nil {
			return 0, false, err
		}
		switch {
		case cmp == 0:
			return mid, true, nil
		case cmp < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false, nil
}

// ChildForKey returns the child page id an internal node would descend
// into to find key.
func (n *BTreeNode) ChildForKey(key common.Value) (common.PageID, error) {
	if n.isLeaf {
		return common.InvalidPageID, fmt.Errorf("%w: ChildForKey on a leaf", common.ErrTypeMismatch)
	}
	idx, found, err := n.findKeyIndex(key)
	if err != nil {
		return common.InvalidPageID, err
	}
	if found {
		return n.entries[idx].child, nil
	}
	if idx == 0 {
		return n.firstChild, nil
	}
	return n.entries[idx-1].child, nil
}

// SearchLeaf returns the RID stored for key in a leaf node.
func (n *BTreeNode) SearchLeaf(key common.Value) (common.RID, error) {
	if !n.isLeaf {
		return common.RID{}, fmt.Errorf("%w: SearchLeaf on an internal node", common.ErrTypeMismatch)
	}
	idx, found, err := n.findKeyIndex(key)
	if err != nil {
		return common.RID{}, err
	}
	if !found {
		return common.RID{}, common.ErrKeyNotFound
	}
	return n.entries[idx].rid, nil
}

// InsertLeafEntry adds (key, rid) in sorted order. Fails with
// ErrDuplicateKey if key is already present.
func (n *BTreeNode) InsertLeafEntry(key common.Value, rid common.RID) error {
	idx, found, err := n.findKeyIndex(key)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: key %s", common.ErrDuplicateKey, key)
	}
	n.entries = append(n.entries, entry{})
	copy(n.entries[idx+1:], n.entries[idx:])
	n.entries[idx] = entry{key: key, rid: rid}
	return nil
}

// InsertInternalEntry adds a (separatorKey, child) pair in sorted order.
func (n *BTreeNode) InsertInternalEntry(key common.Value, child common.PageID) error {
	idx, found, err := n.findKeyIndex(key)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: separator key %s", common.ErrDuplicateKey, key)
	}
	n.entries = append(n.entries, entry{})
	copy(n.entries[idx+1:], n.entries[idx:])
	n.entries[idx] = entry{key: key, child: child}
	return nil
}

// RemoveLeafEntry removes the entry for key, if present.
func (n *BTreeNode) RemoveLeafEntry(key common.Value) error {
	idx, found, err := n.findKeyIndex(key)
	if err != nil {
		return err
	}
	if !found {
		return common.ErrKeyNotFound
	}
	n.entries = append(n.entries[:idx], n.entries[idx+1:]...)
	return nil
}

// entryAt exposes entry i for split.go, which needs raw access while
// redistributing a full node's entries across two pages.
func (n *BTreeNode) entryAt(i int) entry { return n.entries[i] }

// allEntries returns the full sorted entry slice (split.go partitions it).
func (n *BTreeNode) allEntries() []entry { return n.entries }

// setEntries replaces the entry slice wholesale.
func (n *BTreeNode) setEntries(es []entry) { n.entries = es }

// firstKey returns the smallest key in the node. Panics if empty — every
// caller only ever uses this on a just-split, guaranteed-nonempty half.
func (n *BTreeNode) firstKey() common.Value {
	return n.entries[0].key
}
