package cdnfs

import (
	"os"
	"time"
)

const (
	fileBasePerm = 0o444 // RO
	dirBasePerm  = 0o555 // RO

	// dirNominalSize is reported for all directories, real and synthetic.
	// The remote metadata carries no meaningful directory sizes anyway.
	dirNominalSize = 4096
)

const (
	metaTypeFile      = "file"
	metaTypeDirectory = "directory"
)

// remoteMeta is one node of a CDN metadata response. Directory nodes
// recursively describe their children, file nodes carry a size. The tree
// is folded into the metadata index once and then discarded.
type remoteMeta struct {
	Type  string       `json:"type"`
	Path  string       `json:"path"`
	Size  int64        `json:"size,omitempty"`
	Files []remoteMeta `json:"files,omitempty"`
}

// packumentMeta is the registry document for one published package
// version. Only the distribution block is consumed: the tarball location
// and the advertised unpacked size feed the archive-mode policy.
type packumentMeta struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Dist    struct {
		Tarball      string `json:"tarball"`
		UnpackedSize uint64 `json:"unpackedSize,omitempty"`
	} `json:"dist"`
}

var _ os.FileInfo = (*statRecord)(nil)

// statRecord is a cached [os.FileInfo] for one resolved path.
type statRecord struct {
	name  string
	size  int64
	mode  os.FileMode
	mtime time.Time
}

func newFileRecord(name string, size int64, mtime time.Time) statRecord {
	return statRecord{
		name:  name,
		size:  size,
		mode:  fileBasePerm,
		mtime: mtime,
	}
}

func newDirRecord(name string, mtime time.Time) statRecord {
	return statRecord{
		name:  name,
		size:  dirNominalSize,
		mode:  os.ModeDir | dirBasePerm,
		mtime: mtime,
	}
}

func (s statRecord) Name() string       { return s.name }
func (s statRecord) Size() int64        { return s.size }
func (s statRecord) Mode() os.FileMode  { return s.mode }
func (s statRecord) ModTime() time.Time { return s.mtime }
func (s statRecord) IsDir() bool        { return s.mode.IsDir() }
func (s statRecord) Sys() any           { return nil }
