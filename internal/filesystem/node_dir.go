package filesystem

import (
	"context"
	"os"
	"path"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

var (
	_ fs.Node               = (*dirNode)(nil)
	_ fs.HandleReadDirAller = (*dirNode)(nil)
	_ fs.NodeStringLookuper = (*dirNode)(nil)
)

// dirNode is a directory of the CDN-backed filesystem. Listing and
// lookups are resolved lazily through the source; what the source has
// already indexed or archived never causes another remote call.
type dirNode struct {
	fsys  *FS    // Pointer to our filesystem.
	inode uint64 // Inode within our filesystem.
	path  string // Path within the source filesystem.
}

func (d *dirNode) Attr(ctx context.Context, a *fuse.Attr) error {
	info, err := d.fsys.src.StatContext(ctx, d.path)
	if err != nil {
		d.fsys.rbuf.Printf("%q->Attr: %v\n", d.path, err)

		return d.fsys.countError(toFuseErr(err))
	}

	a.Mode = info.Mode()
	a.Inode = d.inode
	a.Size = uint64(info.Size())

	a.Atime = info.ModTime()
	a.Ctime = info.ModTime()
	a.Mtime = info.ModTime()

	return nil
}

func (d *dirNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	d.fsys.Metrics.TotalDirLists.Add(1)

	infos, err := d.fsys.src.ReadDirContext(ctx, d.path)
	if err != nil {
		d.fsys.rbuf.Printf("%q->ReadDirAll: %v\n", d.path, err)

		return nil, d.fsys.countError(toFuseErr(err))
	}

	resp := make([]fuse.Dirent, 0, len(infos))
	seen := make(map[string]bool)

	for _, info := range infos {
		name := info.Name()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		detype := fuse.DT_File
		if info.IsDir() {
			detype = fuse.DT_Dir
		}

		resp = append(resp, fuse.Dirent{
			Name:  name,
			Type:  detype,
			Inode: fs.GenerateDynamicInode(d.inode, name),
		})
	}

	return resp, nil
}

func (d *dirNode) Lookup(ctx context.Context, name string) (fs.Node, error) {
	d.fsys.Metrics.TotalLookups.Add(1)

	childPath := path.Join(d.path, name)

	info, err := d.fsys.src.StatContext(ctx, childPath)
	if err != nil {
		if !os.IsNotExist(err) {
			d.fsys.rbuf.Printf("%q->Lookup->%q: %v\n", d.path, name, err)
		}

		return nil, d.fsys.countError(toFuseErr(err))
	}

	inode := fs.GenerateDynamicInode(d.inode, name)

	if info.IsDir() {
		return &dirNode{
			fsys:  d.fsys,
			inode: inode,
			path:  childPath,
		}, nil
	}

	return &fileNode{
		fsys:  d.fsys,
		inode: inode,
		path:  childPath,
		size:  uint64(info.Size()),
		mtime: info.ModTime(),
	}, nil
}
