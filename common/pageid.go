package common

import "math"

// PageID identifies a page within a database file. Page 0 is always the
// reserved header page (spec §3).
type PageID uint32

// InvalidPageID is the sentinel for "no page". It is distinguishable from
// any id a Disk will ever hand out since allocation is monotonic from 1.
const InvalidPageID PageID = math.MaxUint32

// HeaderPageID is the reserved page that carries the on-disk page count.
const HeaderPageID PageID = 0

// PageSize is the fixed page size in bytes (spec §3).
const PageSize = 4096
