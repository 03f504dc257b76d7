package cdnfs

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// The [afero.Fs] surface of the filesystem. Blocking operations run with
// a background context here; context-aware callers (such as the FUSE
// layer) use the *Context methods directly.

// Name returns the name of the filesystem.
func (fsys *FS) Name() string { return "cdnfs" }

// Stat resolves the stat record for one path.
func (fsys *FS) Stat(name string) (os.FileInfo, error) {
	return fsys.StatContext(context.Background(), name)
}

// Open opens one path for reading.
func (fsys *FS) Open(name string) (afero.File, error) {
	return fsys.OpenContext(context.Background(), name)
}

// OpenFile opens one path with the given flags. The filesystem is
// globally read-only; any write intent fails with a permission error.
func (fsys *FS) OpenFile(name string, flag int, _ os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, pathErr("open", name, syscall.EPERM)
	}

	return fsys.Open(name)
}

// Create fails; the filesystem is read-only.
func (fsys *FS) Create(name string) (afero.File, error) {
	return nil, pathErr("create", name, syscall.EPERM)
}

// Mkdir fails; the filesystem is read-only.
func (fsys *FS) Mkdir(name string, _ os.FileMode) error {
	return pathErr("mkdir", name, syscall.EPERM)
}

// MkdirAll fails; the filesystem is read-only.
func (fsys *FS) MkdirAll(name string, _ os.FileMode) error {
	return pathErr("mkdir", name, syscall.EPERM)
}

// Remove fails; the filesystem is read-only.
func (fsys *FS) Remove(name string) error {
	return pathErr("remove", name, syscall.EPERM)
}

// RemoveAll fails; the filesystem is read-only.
func (fsys *FS) RemoveAll(name string) error {
	return pathErr("remove", name, syscall.EPERM)
}

// Rename fails; the filesystem is read-only.
func (fsys *FS) Rename(oldname, _ string) error {
	return pathErr("rename", oldname, syscall.EPERM)
}

// Chmod fails; the filesystem is read-only.
func (fsys *FS) Chmod(name string, _ os.FileMode) error {
	return pathErr("chmod", name, syscall.EPERM)
}

// Chown fails; the filesystem is read-only.
func (fsys *FS) Chown(name string, _, _ int) error {
	return pathErr("chown", name, syscall.EPERM)
}

// Chtimes fails; the filesystem is read-only.
func (fsys *FS) Chtimes(name string, _, _ time.Time) error {
	return pathErr("chtimes", name, syscall.EPERM)
}
