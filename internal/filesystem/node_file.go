package filesystem

import (
	"context"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

var (
	_ fs.Node            = (*fileNode)(nil)
	_ fs.NodeOpener      = (*fileNode)(nil)
	_ fs.HandleReadAller = (*fileNode)(nil)
)

// fileNode is a file of the CDN-backed filesystem. Contents are served
// fully from memory; the content cache keeps one buffer per path so
// repeated opens within the TTL do not re-enter the source.
type fileNode struct {
	fsys  *FS       // Pointer to our filesystem.
	inode uint64    // Inode within our filesystem.
	path  string    // Path within the source filesystem.
	size  uint64    // Size as known at lookup time.
	mtime time.Time // Modified time as known at lookup time.
}

func (f *fileNode) Attr(_ context.Context, a *fuse.Attr) error {
	a.Mode = fileBasePerm
	a.Inode = f.inode
	a.Size = f.size

	a.Atime = f.mtime
	a.Ctime = f.mtime
	a.Mtime = f.mtime

	return nil
}

func (f *fileNode) Open(_ context.Context, _ *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	resp.Flags |= fuse.OpenKeepCache

	return f, nil
}

func (f *fileNode) ReadAll(ctx context.Context) ([]byte, error) {
	f.fsys.Metrics.TotalReads.Add(1)

	data, err := f.fsys.ccache.File(ctx, f.path)
	if err != nil {
		f.fsys.rbuf.Printf("%q->ReadAll: %v\n", f.path, err)

		return nil, f.fsys.countError(toFuseErr(err))
	}

	f.fsys.Metrics.TotalReadBytes.Add(int64(len(data)))

	return data, nil
}
