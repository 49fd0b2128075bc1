package fusefront

import (
	"context"
	"io"
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/drivefs-project/drivefs/internal/engine"
)

// fileHandle wraps an open shadow-cache file descriptor. Reads and writes go
// straight to the descriptor; Flush/Release call back into the engine so
// that a dirty file gets uploaded (spec §4.7's flush/release, Design Note
// (d): writes must actually mutate the shadow file rather than being
// deferred entirely to flush).
type fileHandle struct {
	eng  *engine.Engine
	path string
	f    *os.File
}

var (
	_ fs.FileReader   = (*fileHandle)(nil)
	_ fs.FileWriter   = (*fileHandle)(nil)
	_ fs.FileFlusher  = (*fileHandle)(nil)
	_ fs.FileReleaser = (*fileHandle)(nil)
	_ fs.FileFsyncer  = (*fileHandle)(nil)
)

// Read implements fs.FileReader.
func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.f.ReadAt(dest, off)
	if err != nil && err != io.EOF {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Write implements fs.FileWriter (spec §4.7's write: "write to the shadow
// file; mark the path as dirty").
func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.f.WriteAt(data, off)
	if err != nil {
		return uint32(n), syscall.EIO
	}
	if err := h.eng.MarkDirty(h.path); err != nil {
		return uint32(n), errno(err)
	}
	return uint32(n), 0
}

// Flush implements fs.FileFlusher (spec §4.7's flush: fsync the shadow file,
// then upload if dirty).
func (h *fileHandle) Flush(ctx context.Context) syscall.Errno {
	if err := h.f.Sync(); err != nil {
		return syscall.EIO
	}
	return errno(h.eng.Flush(ctx, h.path))
}

// Fsync implements fs.FileFsyncer, reusing Flush's upload-on-dirty logic.
func (h *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return h.Flush(ctx)
}

// Release implements fs.FileReleaser (spec §4.7's release: flush then
// close).
func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	e := h.Flush(ctx)
	h.f.Close()
	return e
}
