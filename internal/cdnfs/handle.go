package cdnfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"syscall"

	"github.com/spf13/afero"
)

var (
	_ afero.File = (*bufferHandle)(nil)
	_ afero.File = (*dirHandle)(nil)
)

// bufferHandle is a read-only [afero.File] over an in-memory byte
// buffer. Reads never touch the network again once the handle exists.
type bufferHandle struct {
	path string
	info os.FileInfo
	r    *bytes.Reader
}

func newBufferHandle(fspath string, info os.FileInfo, data []byte) *bufferHandle {
	return &bufferHandle{
		path: fspath,
		info: info,
		r:    bytes.NewReader(data),
	}
}

func (h *bufferHandle) Name() string { return h.path }

func (h *bufferHandle) Read(p []byte) (int, error) {
	return h.r.Read(p) //nolint:wrapcheck
}

func (h *bufferHandle) ReadAt(p []byte, off int64) (int, error) {
	return h.r.ReadAt(p, off) //nolint:wrapcheck
}

func (h *bufferHandle) Seek(offset int64, whence int) (int64, error) {
	return h.r.Seek(offset, whence) //nolint:wrapcheck
}

func (h *bufferHandle) Stat() (os.FileInfo, error) { return h.info, nil }

func (h *bufferHandle) Close() error { return nil }
func (h *bufferHandle) Sync() error  { return nil }

func (h *bufferHandle) Readdir(_ int) ([]os.FileInfo, error) {
	return nil, pathErr("readdir", h.path, syscall.ENOTDIR)
}

func (h *bufferHandle) Readdirnames(_ int) ([]string, error) {
	return nil, pathErr("readdir", h.path, syscall.ENOTDIR)
}

func (h *bufferHandle) Write(_ []byte) (int, error) {
	return 0, pathErr("write", h.path, syscall.EPERM)
}

func (h *bufferHandle) WriteAt(_ []byte, _ int64) (int, error) {
	return 0, pathErr("write", h.path, syscall.EPERM)
}

func (h *bufferHandle) WriteString(_ string) (int, error) {
	return 0, pathErr("write", h.path, syscall.EPERM)
}

func (h *bufferHandle) Truncate(_ int64) error {
	return pathErr("truncate", h.path, syscall.EPERM)
}

// dirHandle is a read-only [afero.File] over a directory path. The
// listing is resolved on first use and then iterated from memory.
type dirHandle struct {
	fsys *FS
	path string
	info os.FileInfo

	entries []os.FileInfo
	listed  bool
	off     int
}

func (h *dirHandle) Name() string { return h.path }

func (h *dirHandle) Stat() (os.FileInfo, error) { return h.info, nil }

func (h *dirHandle) Readdir(count int) ([]os.FileInfo, error) {
	if !h.listed {
		entries, err := h.fsys.ReadDirContext(context.Background(), h.path)
		if err != nil {
			return nil, err
		}
		h.entries = entries
		h.listed = true
	}

	if count <= 0 {
		out := h.entries[h.off:]
		h.off = len(h.entries)

		return out, nil
	}

	if h.off >= len(h.entries) {
		return nil, io.EOF
	}

	end := min(h.off+count, len(h.entries))
	out := h.entries[h.off:end]
	h.off = end

	return out, nil
}

func (h *dirHandle) Readdirnames(n int) ([]string, error) {
	infos, err := h.Readdir(n)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}

	return names, nil
}

func (h *dirHandle) Read(_ []byte) (int, error) {
	return 0, pathErr("read", h.path, syscall.EISDIR)
}

func (h *dirHandle) ReadAt(_ []byte, _ int64) (int, error) {
	return 0, pathErr("read", h.path, syscall.EISDIR)
}

func (h *dirHandle) Seek(_ int64, _ int) (int64, error) {
	return 0, pathErr("seek", h.path, syscall.EISDIR)
}

func (h *dirHandle) Close() error { return nil }
func (h *dirHandle) Sync() error  { return nil }

func (h *dirHandle) Write(_ []byte) (int, error) {
	return 0, pathErr("write", h.path, syscall.EPERM)
}

func (h *dirHandle) WriteAt(_ []byte, _ int64) (int, error) {
	return 0, pathErr("write", h.path, syscall.EPERM)
}

func (h *dirHandle) WriteString(_ string) (int, error) {
	return 0, pathErr("write", h.path, syscall.EPERM)
}

func (h *dirHandle) Truncate(_ int64) error {
	return pathErr("truncate", h.path, syscall.EPERM)
}
