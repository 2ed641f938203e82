package btree

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/pager"
)

// BTree is a single-key-column B+ tree index over a pager.Pager. All
// structural operations (Insert, Remove) hold one mutex for their
// duration — spec §5's coarse-locking model, not per-page latching.
type BTree struct {
	mu      sync.Mutex
	pager   *pager.Pager
	root    common.PageID
	keyType common.TypeTag
	log     *zap.Logger
}

// Create allocates a fresh root leaf page and returns a tree rooted on
// it.
func Create(p *pager.Pager, keyType common.TypeTag, log *zap.Logger) (*BTree, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rootID, err := p.Allocate()
	if err != nil {
		return nil, err
	}
	rootPage, err := p.Get(rootID)
	if err != nil {
		return nil, err
	}
	if _, err := NewLeaf(rootPage, keyType); err != nil {
		return nil, err
	}
	if err := p.Release(rootID, true); err != nil {
		return nil, err
	}
	return &BTree{pager: p, root: rootID, keyType: keyType, log: log}, nil
}

// Open resumes a tree whose root already lives at rootID.
func Open(p *pager.Pager, rootID common.PageID, keyType common.TypeTag, log *zap.Logger) *BTree {
	if log == nil {
		log = zap.NewNop()
	}
	return &BTree{pager: p, root: rootID, keyType: keyType, log: log}
}

// RootPageID returns the tree's current root page (it changes when the
// root splits).
func (t *BTree) RootPageID() common.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// Search returns the RID stored for key, or ErrKeyNotFound.
func (t *BTree) Search(key common.Value) (common.RID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, err := t.loadDescending(key)
	if err != nil {
		return common.RID{}, err
	}
	return node.SearchLeaf(key)
}

// loadDescending walks from the root to the leaf that would hold key,
// pinning and releasing each internal page as it passes through (only
// the final leaf is left for the caller to use).
func (t *BTree) loadDescending(key common.Value) (*BTreeNode, error) {
	id := t.root
	for {
		p, err := t.pager.Get(id)
		if err != nil {
			return nil, err
		}
		node, err := Load(p)
		if err != nil {
			t.pager.Release(id, false)
			return nil, err
		}
		if node.IsLeaf() {
			t.pager.Release(id, false)
			return node, nil
		}
		next, err := node.ChildForKey(key)
		if err != nil {
			t.pager.Release(id, false)
			return nil, err
		}
		t.pager.Release(id, false)
		id = next
	}
}

// Insert adds key -> rid. Fails with ErrDuplicateKey if key is already
// present (this is a unique index). Descends with an explicit path
// stack of page ids so a leaf split can walk back up and insert a
// separator into each ancestor in turn, splitting further ancestors as
// needed, and creating a new root if the split propagates all the way
// up (spec §9's recommended explicit-stack approach, not recursion).
func (t *BTree) Insert(key common.Value, rid common.RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var path []common.PageID
	id := t.root
	for {
		path = append(path, id)
		p, err := t.pager.Get(id)
		if err != nil {
			return err
		}
		node, err := Load(p)
		if err != nil {
			t.pager.Release(id, false)
			return err
		}
		if node.IsLeaf() {
			t.pager.Release(id, false)
			break
		}
		next, err := node.ChildForKey(key)
		if err != nil {
			t.pager.Release(id, false)
			return err
		}
		id = next
	}

	leafID := path[len(path)-1]
	leafPage, err := t.pager.Get(leafID)
	if err != nil {
		return err
	}
	leaf, err := Load(leafPage)
	if err != nil {
		t.pager.Release(leafID, false)
		return err
	}
	if err := leaf.InsertLeafEntry(key, rid); err != nil {
		t.pager.Release(leafID, false)
		return err
	}

	if err := leaf.Save(); err == nil {
		return t.pager.Release(leafID, true)
	} else if !errors.Is(err, common.ErrPageFull) {
		t.pager.Release(leafID, false)
		return err
	}

	newPageID, err := t.pager.Allocate()
	if err != nil {
		t.pager.Release(leafID, false)
		return err
	}
	newPage, err := t.pager.Get(newPageID)
	if err != nil {
		t.pager.Release(leafID, false)
		return err
	}
	result, err := splitLeaf(leaf, newPage)
	if err != nil {
		t.pager.Release(leafID, false)
		t.pager.Release(newPageID, false)
		return err
	}
	if err := t.pager.Release(leafID, true); err != nil {
		return err
	}
	if err := t.pager.Release(newPageID, true); err != nil {
		return err
	}

	return t.propagateSplit(path[:len(path)-1], result)
}

// propagateSplit inserts result's separator into the parent named by the
// last entry of ancestors, splitting that parent too if it overflows,
// and so on up the stack; when the stack is exhausted the root itself
// split, so a brand new root is created above both halves.
func (t *BTree) propagateSplit(ancestors []common.PageID, result *splitResult) error {
	if len(ancestors) == 0 {
		return t.createNewRoot(result)
	}

	parentID := ancestors[len(ancestors)-1]
	parentPage, err := t.pager.Get(parentID)
	if err != nil {
		return err
	}
	parent, err := Load(parentPage)
	if err != nil {
		t.pager.Release(parentID, false)
		return err
	}
	if err := parent.InsertInternalEntry(result.separator, result.newPageID); err != nil {
		t.pager.Release(parentID, false)
		return err
	}

	if err := parent.Save(); err == nil {
		return t.pager.Release(parentID, true)
	} else if !errors.Is(err, common.ErrPageFull) {
		t.pager.Release(parentID, false)
		return err
	}

	newPageID, err := t.pager.Allocate()
	if err != nil {
		t.pager.Release(parentID, false)
		return err
	}
	newPage, err := t.pager.Get(newPageID)
	if err != nil {
		t.pager.Release(parentID, false)
		return err
	}
	nextResult, err := splitInternal(parent, newPage)
	if err != nil {
		t.pager.Release(parentID, false)
		t.pager.Release(newPageID, false)
		return err
	}
	if err := t.pager.Release(parentID, true); err != nil {
		return err
	}
	if err := t.pager.Release(newPageID, true); err != nil {
		return err
	}

	return t.propagateSplit(ancestors[:len(ancestors)-1], nextResult)
}

// createNewRoot builds a fresh internal root over the two halves of a
// just-split former root.
func (t *BTree) createNewRoot(result *splitResult) error {
	newRootID, err := t.pager.Allocate()
	if err != nil {
		return err
	}
	newRootPage, err := t.pager.Get(newRootID)
	if err != nil {
		return err
	}
	root, err := NewInternal(newRootPage, t.keyType, t.root)
	if err != nil {
		t.pager.Release(newRootID, false)
		return err
	}
	if err := root.InsertInternalEntry(result.separator, result.newPageID); err != nil {
		t.pager.Release(newRootID, false)
		return err
	}
	if err := root.Save(); err != nil {
		t.pager.Release(newRootID, false)
		return err
	}
	if err := t.pager.Release(newRootID, true); err != nil {
		return err
	}
	t.root = newRootID
	return nil
}

// Remove deletes key from a leaf. Per spec §9 this is leaf-only: removing
// the last key under a separator does not merge or redistribute sibling
// nodes, so a tree can end up with underfull internal nodes after heavy
// deletion. That rebalancing is explicitly left undone (an accepted, not
// accidental, limitation — see DESIGN.md).
func (t *BTree) Remove(key common.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var path []common.PageID
	id := t.root
	for {
		path = append(path, id)
		p, err := t.pager.Get(id)
		if err != nil {
			return err
		}
		node, err := Load(p)
		if err != nil {
			t.pager.Release(id, false)
			return err
		}
		if node.IsLeaf() {
			t.pager.Release(id, false)
			break
		}
		next, err := node.ChildForKey(key)
		if err != nil {
			t.pager.Release(id, false)
			return err
		}
		id = next
	}

	leafID := path[len(path)-1]
	leafPage, err := t.pager.Get(leafID)
	if err != nil {
		return err
	}
	leaf, err := Load(leafPage)
	if err != nil {
		t.pager.Release(leafID, false)
		return err
	}
	if err := leaf.RemoveLeafEntry(key); err != nil {
		t.pager.Release(leafID, false)
		return err
	}
	if err := leaf.Save(); err != nil {
		t.pager.Release(leafID, false)
		return err
	}
	return t.pager.Release(leafID, true)
}

// Range returns every RID whose key lies in [begin, end], in key order,
// by descending to the leaf that would hold begin and then walking the
// leaf chain until a key exceeds end or the chain runs out.
func (t *BTree) Range(begin, end common.Value) ([]common.RID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []common.RID
	id := t.root
	for {
		p, err := t.pager.Get(id)
		if err != nil {
			return nil, err
		}
		node, err := Load(p)
		if err != nil {
			t.pager.Release(id, false)
			return nil, err
		}
		if node.IsLeaf() {
			t.pager.Release(id, false)
			return t.collectRange(node, begin, end, out)
		}
		next, err := node.ChildForKey(begin)
		if err != nil {
			t.pager.Release(id, false)
			return nil, err
		}
		t.pager.Release(id, false)
		id = next
	}
}

// RangeEntry pairs a key with its RID, returned by RangeEntries for
// callers that need the key alongside the record id (Range alone drops
// it once the leaf scan moves on).
type RangeEntry struct {
	Key common.Value
	RID common.RID
}

// RangeEntries behaves like Range but also returns each matching key,
// for callers (such as the enginebridge adapter) that need to report
// keys back to their own caller rather than just record ids.
func (t *BTree) RangeEntries(begin, end common.Value) ([]RangeEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []RangeEntry
	id := t.root
	for {
		p, err := t.pager.Get(id)
		if err != nil {
			return nil, err
		}
		node, err := Load(p)
		if err != nil {
			t.pager.Release(id, false)
			return nil, err
		}
		if node.IsLeaf() {
			t.pager.Release(id, false)
			return t.collectRangeEntries(node, begin, end, out)
		}
		next, err := node.ChildForKey(begin)
		if err != nil {
			t.pager.Release(id, false)
			return nil, err
		}
		t.pager.Release(id, false)
		id = next
	}
}

func (t *BTree) collectRangeEntries(leaf *BTreeNode, begin, end common.Value, out []RangeEntry) ([]RangeEntry, error) {
	for {
		for _, e := range leaf.allEntries() {
			cmpBegin, err := e.key.Compare(begin)
			if err != nil {
				return nil, err
			}
			if cmpBegin < 0 {
				continue
			}
			cmpEnd, err := e.key.Compare(end)
			if err != nil {
				return nil, err
			}
			if cmpEnd > 0 {
				return out, nil
			}
			out = append(out, RangeEntry{Key: e.key, RID: e.rid})
		}
		nextID := leaf.NextLeaf()
		if nextID == common.InvalidPageID {
			return out, nil
		}
		p, err := t.pager.Get(nextID)
		if err != nil {
			return nil, err
		}
		next, err := Load(p)
		if err != nil {
			t.pager.Release(nextID, false)
			return nil, err
		}
		t.pager.Release(nextID, false)
		leaf = next
	}
}

func (t *BTree) collectRange(leaf *BTreeNode, begin, end common.Value, out []common.RID) ([]common.RID, error) {
	for {
		for _, e := range leaf.allEntries() {
			cmpBegin, err := e.key.Compare(begin)
			if err != nil {
				return nil, err
			}
			if cmpBegin < 0 {
				continue
			}
			cmpEnd, err := e.key.Compare(end)
			if err != nil {
				return nil, err
			}
			if cmpEnd > 0 {
				return out, nil
			}
			out = append(out, e.rid)
		}
		nextID := leaf.NextLeaf()
		if nextID == common.InvalidPageID {
			return out, nil
		}
		p, err := t.pager.Get(nextID)
		if err != nil {
			return nil, err
		}
		next, err := Load(p)
		if err != nil {
			t.pager.Release(nextID, false)
			return nil, err
		}
		t.pager.Release(nextID, false)
		leaf = next
	}
}

// Height reports the number of levels from root to leaf, inclusive
// (a tree with just a root leaf has height 1).
func (t *BTree) Height() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	height := 0
	id := t.root
	for {
		p, err := t.pager.Get(id)
		if err != nil {
			return 0, err
		}
		node, err := Load(p)
		if err != nil {
			t.pager.Release(id, false)
			return 0, err
		}
		height++
		if node.IsLeaf() {
			t.pager.Release(id, false)
			return height, nil
		}
		next := node.FirstChild()
		t.pager.Release(id, false)
		id = next
	}
}

// NodeCount walks the whole tree (breadth-first) and counts pages.
func (t *BTree) NodeCount() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	queue := []common.PageID{t.root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		p, err := t.pager.Get(id)
		if err != nil {
			return 0, err
		}
		node, err := Load(p)
		if err != nil {
			t.pager.Release(id, false)
			return 0, err
		}
		count++
		if !node.IsLeaf() {
			queue = append(queue, node.FirstChild())
			for _, e := range node.allEntries() {
				queue = append(queue, e.child)
			}
		}
		t.pager.Release(id, false)
	}
	return count, nil
}
