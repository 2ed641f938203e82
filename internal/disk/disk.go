// Package disk turns a diskfile.Stream into a fixed-size paged address
// space (spec §4.2): page-id-to-byte-offset translation, monotonic
// allocation, and the header page that records how many pages exist.
package disk

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/diskfile"
)

// headerPageCountOffset is where the little-endian u32 page count lives
// within the reserved header page (page 0).
const headerPageCountOffset = 0

// Disk is the paged view of one diskfile.File. All I/O is serialized
// through mu; AllocatePage releases the lock before the (slow) zero-fill
// write so a long allocation never blocks unrelated reads.
type Disk struct {
	mu        sync.Mutex
	file      *diskfile.File
	pageCount uint32 // includes the header page; first data page is 1
	log       *zap.Logger
}

// Create makes a brand-new paged file: a single header page recording a
// page count of 1 (itself).
func Create(path string, log *zap.Logger) (*Disk, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f, err := diskfile.Create(path, log)
	if err != nil {
		return nil, err
	}
	d := &Disk{file: f, pageCount: 1, log: log}
	if err := d.writeHeaderLocked(); err != nil {
		return nil, err
	}
	return d, nil
}

// Open reopens an existing paged file, reading the page count back out of
// the header page.
func Open(path string, log *zap.Logger) (*Disk, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f, err := diskfile.Open(path, log)
	if err != nil {
		return nil, err
	}
	d := &Disk{file: f, log: log}
	stream, err := f.Stream()
	if err != nil {
		return nil, err
	}
	header := make([]byte, common.PageSize)
	if _, err := stream.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header page", common.ErrIO)
	}
	d.pageCount = binary.LittleEndian.Uint32(header[headerPageCountOffset:])
	return d, nil
}

// PageCount reports the total number of pages, including the header page.
func (d *Disk) PageCount() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageCount
}

// ReadPage reads the raw PageSize-byte contents of id. Fails with
// ErrOutOfRange for the header page or any id beyond the current count.
func (d *Disk) ReadPage(id common.PageID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stream, err := d.file.Stream()
	if err != nil {
		return nil, err
	}
	if err := d.checkBoundsLocked(id); err != nil {
		return nil, err
	}
	buf := make([]byte, common.PageSize)
	if _, err := stream.ReadAt(buf, pageOffset(id)); err != nil {
		return nil, fmt.Errorf("%w: reading page %d", common.ErrIO, id)
	}
	return buf, nil
}

// WritePage overwrites the PageSize-byte contents of id. data must be
// exactly common.PageSize bytes.
func (d *Disk) WritePage(id common.PageID, data []byte) error {
	if len(data) != common.PageSize {
		return fmt.Errorf("%w: page payload must be %d bytes, got %d", common.ErrIO, common.PageSize, len(data))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkBoundsLocked(id); err != nil {
		return err
	}
	return d.writePageAt(id, data)
}

// AllocatePage grows the file by one page and returns its id. The page
// count is incremented and persisted to the header while holding mu; the
// zero-fill write of the new page itself happens after mu is released
// (spec §4.2), so a slow allocation never stalls concurrent readers.
func (d *Disk) AllocatePage() (common.PageID, error) {
	d.mu.Lock()
	id := common.PageID(d.pageCount)
	d.pageCount++
	if err := d.writeHeaderLocked(); err != nil {
		d.pageCount--
		d.mu.Unlock()
		return common.InvalidPageID, err
	}
	d.mu.Unlock()

	zero := make([]byte, common.PageSize)
	if err := d.writePageAt(id, zero); err != nil {
		return common.InvalidPageID, err
	}
	return id, nil
}

// Flush syncs the underlying file so all writes so far are durable.
func (d *Disk) Flush() error {
	stream, err := d.file.Stream()
	if err != nil {
		return err
	}
	if err := stream.Sync(); err != nil {
		return fmt.Errorf("%w: flushing", common.ErrIO)
	}
	return nil
}

// Close flushes and releases the underlying file. The flush and the
// close are independent failure points; both are attempted and their
// errors combined rather than the close being skipped on a flush error.
func (d *Disk) Close() error {
	flushErr := d.Flush()
	closeErr := d.file.Close()
	return multierr.Append(flushErr, closeErr)
}

// checkBoundsLocked must be called with mu held.
func (d *Disk) checkBoundsLocked(id common.PageID) error {
	if id == common.HeaderPageID || uint32(id) >= d.pageCount {
		return fmt.Errorf("%w: page %d (have %d pages)", common.ErrOutOfRange, id, d.pageCount)
	}
	return nil
}

func (d *Disk) writePageAt(id common.PageID, data []byte) error {
	stream, err := d.file.Stream()
	if err != nil {
		return err
	}
	if _, err := stream.WriteAt(data, pageOffset(id)); err != nil {
		return fmt.Errorf("%w: writing page %d", common.ErrIO, id)
	}
	return nil
}

// writeHeaderLocked must be called with mu held.
func (d *Disk) writeHeaderLocked() error {
	stream, err := d.file.Stream()
	if err != nil {
		return err
	}
	header := make([]byte, common.PageSize)
	binary.LittleEndian.PutUint32(header[headerPageCountOffset:], d.pageCount)
	if _, err := stream.WriteAt(header, 0); err != nil {
		return fmt.Errorf("%w: writing header page", common.ErrIO)
	}
	return nil
}

func pageOffset(id common.PageID) int64 {
	return int64(id) * int64(common.PageSize)
}
