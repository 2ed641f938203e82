// Package diskfile owns the physical lifecycle of a single database file
// (spec §4.1). It hands Disk a byte-addressable stream; it has no opinion
// about pages, headers, or allocation.
package diskfile

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/ncw/directio"
	"go.uber.org/zap"

	"github.com/fenndb/fenndb/common"
)

// Stream is the byte-level positional access Disk needs: every call
// carries its own offset, so there is no shared cursor to race on (a
// stronger guarantee than spec §4.1 asks for, and one a single os.File
// already gives for free via ReadAt/WriteAt).
type Stream interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
}

// handle is what File actually owns: a Stream plus Close. A real os.File
// satisfies it directly; NewInMemory adapts a memfile.File for tests that
// want byte I/O without touching disk.
type handle interface {
	Stream
	Close() error
}

// File owns one handle for the database's on-disk image.
type File struct {
	mu     sync.Mutex
	path   string
	handle handle
	closed bool
	direct bool
	log    *zap.Logger
}

// Create makes a new file, creating parent directories as needed, and
// leaves it open for read/write. The caller is responsible for writing an
// initial header page (Disk does this).
func Create(path string, log *zap.Logger) (*File, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, common.ErrIO
		}
	}

	handle, direct := openDirect(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, log)
	if handle == nil {
		h, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, common.ErrIO
		}
		handle = h
	}

	return &File{path: path, handle: handle, direct: direct, log: log}, nil
}

// Open opens an existing file for read/write. Fails with NotFound-flavored
// ErrIO if the file is absent.
func Open(path string, log *zap.Logger) (*File, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, common.ErrIO
	}

	handle, direct := openDirect(path, os.O_RDWR, log)
	if handle == nil {
		h, err := os.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			return nil, common.ErrIO
		}
		handle = h
	}

	return &File{path: path, handle: handle, direct: direct, log: log}, nil
}

// openDirect tries directio.OpenFile (page-aligned O_DIRECT I/O) and
// falls back to a plain os.OpenFile when the platform or filesystem
// doesn't support it — most CI tmpfs mounts among them.
func openDirect(path string, flag int, log *zap.Logger) (*os.File, bool) {
	h, err := directio.OpenFile(path, flag, 0o644)
	if err != nil {
		log.Info("direct I/O unavailable, falling back to buffered file access",
			zap.String("path", path), zap.Error(err))
		return nil, false
	}
	return h, true
}

// Close flushes OS buffers and releases the handle. Idempotent.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	if err := f.handle.Sync(); err != nil {
		return common.ErrIO
	}
	if err := f.handle.Close(); err != nil {
		return common.ErrIO
	}
	f.closed = true
	return nil
}

// Stream returns byte-level seekable access for Disk. Fails with
// ErrNotOpen if the file has been closed.
func (f *File) Stream() (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, common.ErrNotOpen
	}
	return f.handle, nil
}

// IsDirectIO reports whether the underlying handle was opened with
// O_DIRECT semantics (page-aligned, uncached).
func (f *File) IsDirectIO() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.direct
}

// Path returns the path the file was created or opened with.
func (f *File) Path() string {
	return f.path
}

// memStream adapts memfile.File (an in-process byte slice with ReadAt,
// WriteAt and Close) onto Stream by adding a no-op Sync — there is no OS
// cache to flush for memory.
type memStream struct {
	*memfile.File
}

func (memStream) Sync() error { return nil }

// NewInMemory builds a File backed entirely by memory (dsnet/golib/memfile)
// instead of a real path. Only this package's tests use it: disk.Create
// and disk.Open take a path, so a Disk always sits on a real file.
func NewInMemory(name string) *File {
	return &File{
		path:   name,
		handle: memStream{memfile.New(nil)},
		direct: false,
		log:    zap.NewNop(),
	}
}
