package btree

import (
	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/page"
)

// splitResult carries what the caller one level up needs: the key to
// promote into the parent and the id of the newly created right sibling.
type splitResult struct {
	separator common.Value
	newPageID common.PageID
}

// splitLeaf divides n's (already-overflowing) entries evenly between n
// and a freshly allocated right sibling, relinking the leaf chain and
// returning the separator — the right sibling's first key, matching
// classic B+ tree convention (right subtree holds keys >= separator).
func splitLeaf(n *BTreeNode, newPage *page.Page) (*splitResult, error) {
	entries := n.allEntries()
	mid := len(entries) / 2
	left := append([]entry(nil), entries[:mid]...)
	right := append([]entry(nil), entries[mid:]...)

	rightNode, err := NewLeaf(newPage, n.keyType)
	if err != nil {
		return nil, err
	}
	rightNode.setEntries(right)
	rightNode.nextLeaf = n.nextLeaf
	n.nextLeaf = rightNode.PageID()
	n.setEntries(left)

	if err := n.Save(); err != nil {
		return nil, err
	}
	if err := rightNode.Save(); err != nil {
		return nil, err
	}

	return &splitResult{separator: rightNode.firstKey(), newPageID: rightNode.PageID()}, nil
}

// splitInternal divides n's (already-overflowing) entries, promoting the
// middle key to the parent rather than duplicating it into both halves
// (internal separators describe structure, they aren't themselves
// record keys).
func splitInternal(n *BTreeNode, newPage *page.Page) (*splitResult, error) {
	entries := n.allEntries()
	mid := len(entries) / 2
	middle := entries[mid]
	left := append([]entry(nil), entries[:mid]...)
	right := append([]entry(nil), entries[mid+1:]...)

	rightNode, err := NewInternal(newPage, n.keyType, middle.child)
	if err != nil {
		return nil, err
	}
	rightNode.setEntries(right)
	n.setEntries(left)

	if err := n.Save(); err != nil {
		return nil, err
	}
	if err := rightNode.Save(); err != nil {
		return nil, err
	}

	return &splitResult{separator: middle.key, newPageID: rightNode.PageID()}, nil
}
