// Package enginebridge adapts the paged B+ tree storage core (disk,
// buffer, pager, btree) onto common.StorageEngine, the byte-oriented
// interface the generic benchmark harness and demo CLI drive. It is the
// one place that turns []byte keys/values into typed common.Value keys
// and heap-page-resident records.
package enginebridge

import (
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fenndb/fenndb/common"
	"github.com/fenndb/fenndb/internal/btree"
	"github.com/fenndb/fenndb/internal/buffer"
	"github.com/fenndb/fenndb/internal/disk"
	"github.com/fenndb/fenndb/internal/pager"
)

// Config configures a new Engine.
type Config struct {
	Path           string
	BufferCapacity int // resident page frames
}

// DefaultConfig returns sensible defaults for a given database file path.
func DefaultConfig(path string) Config {
	return Config{Path: path, BufferCapacity: 4096}
}

// Engine is a common.StorageEngine backed by the paged B+ tree core.
// Keys are VARCHAR-typed tree keys; values live as opaque records on a
// chain of heap pages, addressed by RID from the index.
type Engine struct {
	mu    sync.Mutex
	disk  *disk.Disk
	buf   *buffer.Buffer
	pager *pager.Pager
	index *btree.BTree
	log   *zap.Logger

	heapPages []common.PageID
	heapTail  common.PageID

	closed bool

	numKeys      atomic.Int64
	writeCount   atomic.Int64
	readCount    atomic.Int64
	compactCount atomic.Int64
	bytesWritten atomic.Int64
	userBytes    atomic.Int64
}

// New creates a brand-new database at cfg.Path.
func New(cfg Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d, err := disk.Create(cfg.Path, log)
	if err != nil {
		return nil, err
	}
	b, err := buffer.New(d, cfg.BufferCapacity, log)
	if err != nil {
		return nil, err
	}
	p := pager.New(d, b, log)
	index, err := btree.Create(p, common.TypeVarchar, log)
	if err != nil {
		return nil, err
	}

	e := &Engine{disk: d, buf: b, pager: p, index: index, log: log}
	if err := e.allocateHeapPage(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) allocateHeapPage() error {
	id, err := e.pager.Allocate()
	if err != nil {
		return err
	}
	// Touch the page once so Buffer's corrupt-header path stamps it as
	// a valid, empty TypeHeap page before anyone reads from it.
	if _, err := e.pager.Get(id); err != nil {
		return err
	}
	if err := e.pager.Release(id, false); err != nil {
		return err
	}
	e.heapPages = append(e.heapPages, id)
	e.heapTail = id
	return nil
}

// Put inserts or overwrites key -> value.
func (e *Engine) Put(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return common.ErrClosed
	}

	k := common.NewVarchar(string(key))
	if existing, err := e.index.Search(k); err == nil {
		if err := e.tombstoneHeapRecord(existing); err != nil {
			return err
		}
		if err := e.index.Remove(k); err != nil {
			return err
		}
		e.numKeys.Add(-1)
	}

	rid, err := e.appendHeapRecord(value)
	if err != nil {
		return err
	}
	if err := e.index.Insert(k, rid); err != nil {
		return err
	}

	e.numKeys.Add(1)
	e.writeCount.Add(1)
	e.bytesWritten.Add(int64(len(value)))
	e.userBytes.Add(int64(len(key) + len(value)))
	return nil
}

// Get returns the value stored for key, or ErrKeyNotFound.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, common.ErrKeyEmpty
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, common.ErrClosed
	}

	rid, err := e.index.Search(common.NewVarchar(string(key)))
	if err != nil {
		return nil, err
	}
	p, err := e.pager.Get(rid.PageID)
	if err != nil {
		return nil, err
	}
	record, err := p.GetRecord(rid.SlotNum)
	if err != nil {
		e.pager.Release(rid.PageID, false)
		return nil, err
	}
	if err := e.pager.Release(rid.PageID, false); err != nil {
		return nil, err
	}
	e.readCount.Add(1)
	return record, nil
}

// KV is one key/value pair returned by Range.
type KV struct {
	Key   []byte
	Value []byte
}

// Range returns every key/value pair with key in [begin, end], in key
// order, by walking the B+ tree's leaf chain and resolving each RID
// against its heap page.
func (e *Engine) Range(begin, end []byte) ([]KV, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, common.ErrClosed
	}

	entries, err := e.index.RangeEntries(common.NewVarchar(string(begin)), common.NewVarchar(string(end)))
	if err != nil {
		return nil, err
	}

	out := make([]KV, 0, len(entries))
	for _, ent := range entries {
		p, err := e.pager.Get(ent.RID.PageID)
		if err != nil {
			return nil, err
		}
		record, err := p.GetRecord(ent.RID.SlotNum)
		if err != nil {
			e.pager.Release(ent.RID.PageID, false)
			return nil, err
		}
		if err := e.pager.Release(ent.RID.PageID, false); err != nil {
			return nil, err
		}
		e.readCount.Add(1)
		keyStr, err := ent.Key.AsVarchar()
		if err != nil {
			return nil, err
		}
		out = append(out, KV{Key: []byte(keyStr), Value: record})
	}
	return out, nil
}

// Delete removes key, if present.
func (e *Engine) Delete(key []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return common.ErrClosed
	}

	k := common.NewVarchar(string(key))
	rid, err := e.index.Search(k)
	if err != nil {
		return err
	}
	if err := e.tombstoneHeapRecord(rid); err != nil {
		return err
	}
	if err := e.index.Remove(k); err != nil {
		return err
	}
	e.numKeys.Add(-1)
	return nil
}

func (e *Engine) tombstoneHeapRecord(rid common.RID) error {
	p, err := e.pager.Get(rid.PageID)
	if err != nil {
		return err
	}
	if err := p.DeleteRecord(rid.SlotNum); err != nil {
		e.pager.Release(rid.PageID, false)
		return err
	}
	return e.pager.Release(rid.PageID, true)
}

// appendHeapRecord writes value to the tail heap page, allocating a new
// one and retrying if it no longer has room.
func (e *Engine) appendHeapRecord(value []byte) (common.RID, error) {
	p, err := e.pager.Get(e.heapTail)
	if err != nil {
		return common.RID{}, err
	}
	slot, err := p.InsertRecord(value)
	if err == nil {
		if relErr := e.pager.Release(e.heapTail, true); relErr != nil {
			return common.RID{}, relErr
		}
		return common.RID{PageID: e.heapTail, SlotNum: slot}, nil
	}
	if err := e.pager.Release(e.heapTail, false); err != nil {
		return common.RID{}, err
	}

	if err := e.allocateHeapPage(); err != nil {
		return common.RID{}, err
	}
	p, err = e.pager.Get(e.heapTail)
	if err != nil {
		return common.RID{}, err
	}
	slot, err = p.InsertRecord(value)
	if err != nil {
		e.pager.Release(e.heapTail, false)
		return common.RID{}, err
	}
	if err := e.pager.Release(e.heapTail, true); err != nil {
		return common.RID{}, err
	}
	return common.RID{PageID: e.heapTail, SlotNum: slot}, nil
}

// Close flushes everything and releases the underlying file. The
// flush and the disk close are independent failure points; both are
// attempted and their errors combined rather than one masking the
// other.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	flushErr := e.pager.FlushAll()
	closeErr := e.disk.Close()
	e.closed = true
	return multierr.Append(flushErr, closeErr)
}

// Sync flushes all dirty pages and fsyncs the underlying file.
func (e *Engine) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return common.ErrClosed
	}
	flushErr := e.pager.FlushAll()
	syncErr := e.disk.Flush()
	return multierr.Append(flushErr, syncErr)
}

// Compact reclaims tombstoned space on every heap page.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return common.ErrClosed
	}
	for _, id := range e.heapPages {
		p, err := e.pager.Get(id)
		if err != nil {
			return err
		}
		p.Compactify()
		if err := e.pager.Release(id, true); err != nil {
			return err
		}
	}
	e.compactCount.Add(1)
	return nil
}

// Stats reports engine statistics for the benchmark harness. WriteAmp
// here is the value bytes appended to heap pages divided by the key and
// value bytes callers passed to Put; page writes to disk are not counted.
// Both counters accumulate over every Put, including overwritten keys.
func (e *Engine) Stats() common.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	totalDisk := int64(e.disk.PageCount()) * common.PageSize
	userBytes := e.userBytes.Load()
	spaceAmp := 1.0
	if userBytes > 0 {
		spaceAmp = float64(totalDisk) / float64(userBytes)
	}
	writeAmp := 1.0
	if userBytes > 0 {
		writeAmp = float64(e.bytesWritten.Load()) / float64(userBytes)
	}

	return common.Stats{
		NumKeys:       e.numKeys.Load(),
		TotalDiskSize: totalDisk,
		WriteCount:    e.writeCount.Load(),
		ReadCount:     e.readCount.Load(),
		CompactCount:  e.compactCount.Load(),
		WriteAmp:      writeAmp,
		SpaceAmp:      spaceAmp,
	}
}
