package common

import (
	"fmt"
	"math"
)

// RID (Record Identifier) pairs a page id with a slot number. It stays
// stable across in-page compaction: a slot whose record has been deleted
// is tombstoned but the slot index persists (spec §3).
type RID struct {
	PageID  PageID
	SlotNum uint16
}

// InvalidRID is distinguishable from any live RID.
func InvalidRID() RID {
	return RID{PageID: InvalidPageID, SlotNum: math.MaxUint16}
}

// IsValid reports whether r could plausibly reference a live record.
func (r RID) IsValid() bool {
	return r.PageID != InvalidPageID
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.SlotNum)
}
