package filesystem

import (
	"errors"
	"os"
	"syscall"

	"bazil.org/fuse"
)

const (
	fileBasePerm = 0o444 // RO
)

// toFuseErr maps a source error onto the closest FUSE errno.
func toFuseErr(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fuse.ToErrno(syscall.ENOENT)

	case errors.Is(err, os.ErrPermission):
		return fuse.ToErrno(syscall.EACCES)

	case errors.Is(err, syscall.ENOTDIR):
		return fuse.ToErrno(syscall.ENOTDIR)

	case errors.Is(err, syscall.EISDIR):
		return fuse.ToErrno(syscall.EISDIR)

	case errors.Is(err, syscall.EAGAIN):
		return fuse.ToErrno(syscall.EAGAIN)

	default:
		return fuse.ToErrno(syscall.EIO)
	}
}
