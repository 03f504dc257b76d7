// Package filesystem implements the FUSE filesystem.
//
// It presents any read-only [Source] (in practice the CDN-backed
// filesystem) through the FUSE protocol, with a TTL cache for file
// contents so repeated reads do not re-enter the source.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/desertwitch/pkgfuse/internal/logging"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 60 * time.Second
)

var (
	_ fs.FS               = (*FS)(nil)
	_ fs.FSInodeGenerator = (*FS)(nil)

	errMissingArgument = errors.New("missing argument")
)

// Source is the minimal read-only capability set the FUSE layer serves.
type Source interface {
	StatContext(ctx context.Context, path string) (os.FileInfo, error)
	ReadDirContext(ctx context.Context, path string) ([]os.FileInfo, error)
	ReadFileContext(ctx context.Context, path string) ([]byte, error)
}

// Options contains all settings for the operation of the filesystem.
// All non-atomic fields can no longer be modified at runtime (once mounted).
type Options struct {
	// CacheBypass circumvents the TTL cache for file contents.
	// When enabled at runtime, in-flight entries expire after TTL.
	CacheBypass atomic.Bool

	// CacheSize is the entry capacity of the file content cache.
	CacheSize int

	// CacheTTL is the time-to-live for each cached file content.
	CacheTTL time.Duration
}

// DefaultOptions returns a pointer to [Options] with the default values.
func DefaultOptions() *Options {
	opts := &Options{
		CacheSize: defaultCacheSize,
		CacheTTL:  defaultCacheTTL,
	}
	opts.CacheBypass.Store(false)

	return opts
}

// Metrics contains all metrics which are collected within the filesystem.
type Metrics struct {
	// TotalLookups is the amount of FUSE lookup operations.
	TotalLookups atomic.Int64

	// TotalDirLists is the amount of FUSE directory listings.
	TotalDirLists atomic.Int64

	// TotalReads is the amount of FUSE file content reads.
	TotalReads atomic.Int64

	// TotalReadBytes is the amount of bytes served to the kernel.
	TotalReadBytes atomic.Int64

	// TotalCacheHits is the amount of content cache hits.
	TotalCacheHits atomic.Int64

	// TotalCacheMisses is the amount of content cache misses.
	TotalCacheMisses atomic.Int64

	// TotalErrors is the amount of operations that returned an error.
	TotalErrors atomic.Int64
}

// FS is the FUSE-facing implementation of the filesystem.
type FS struct {
	// MountTime is when the filesystem was created.
	MountTime time.Time

	Options *Options
	Metrics *Metrics

	src    Source
	ccache *contentCache
	rbuf   *logging.RingBuffer
}

// NewFS returns a pointer to a new [FS].
// You must call Cleanup() once all work is complete.
func NewFS(src Source, opts *Options, rbuf *logging.RingBuffer) (*FS, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: need a source filesystem", errMissingArgument)
	}
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need a ring buffer", errMissingArgument)
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	fsys := &FS{
		MountTime: time.Now(),
		Options:   opts,
		Metrics:   &Metrics{},
		src:       src,
		rbuf:      rbuf,
	}
	fsys.ccache = newContentCache(fsys, opts.CacheSize, opts.CacheTTL)

	return fsys, nil
}

// Cleanup does filesystem cleanup and blocks until done.
func (fsys *FS) Cleanup() {
	fsys.ccache.Stop()
}

// Root returns the entry-point [fs.Node] of the filesystem.
func (fsys *FS) Root() (fs.Node, error) {
	return &dirNode{
		fsys:  fsys,
		inode: 1,
		path:  "/",
	}, nil
}

// GenerateInode implements [fs.FSInodeGenerator] to prevent dynamic
// inode generation by the fallback method inside of the FUSE library.
//
// [FS] handles inodes internally, so dynamic inode generation within the
// FUSE library (being the fallback on encountering zero inodes) is a core
// violation of this very design principle. Calls to this method will panic,
// revealing where internal inode handling does not produce the valid inode.
func (fsys *FS) GenerateInode(_ uint64, _ string) uint64 {
	panic("unhandled zero inode triggered an illegal dynamic generation")
}

// countError marks an error in the metrics, passing it back unchanged.
func (fsys *FS) countError(err error) error {
	fsys.Metrics.TotalErrors.Add(1)

	return err
}

// WalkFunc gets called on each visited [fs.Node] as part of a [FS.Walk].
// Do note that as the root directory is synthetic, the [fuse.Dirent] will be nil.
type WalkFunc func(path string, dirent *fuse.Dirent, node fs.Node, attr fuse.Attr) error

// Walk constructs and walks the [FS] in-memory, calling walkFn on each visited [fs.Node].
func (fsys *FS) Walk(ctx context.Context, walkFn WalkFunc) error {
	root, err := fsys.Root()
	if err != nil {
		return fmt.Errorf("failed to get fs root: %w", err)
	}

	return fsys.walkNode(ctx, "/", nil, root, walkFn)
}

// walkNode handles walking of a [fs.Node] within the [FS].
func (fsys *FS) walkNode(ctx context.Context, path string, dirent *fuse.Dirent, node fs.Node, walkFn WalkFunc) error {
	var attr fuse.Attr

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := node.Attr(ctx, &attr); err != nil {
		return fmt.Errorf("attr error at %q: %w", path, err)
	}

	if err := walkFn(path, dirent, node, attr); err != nil {
		return fmt.Errorf("walkfn error at %q: %w", path, err)
	}

	readDirNode, ok := node.(fs.HandleReadDirAller)
	if !ok {
		return nil
	}

	dirents, err := readDirNode.ReadDirAll(ctx)
	if err != nil {
		return fmt.Errorf("readdirall error at %q: %w", path, err)
	}

	lookupNode, ok := node.(fs.NodeStringLookuper)
	if !ok {
		return nil
	}

	for _, de := range dirents {
		childPath := path
		if path != "/" {
			childPath += "/"
		}
		childPath += de.Name

		childNode, err := lookupNode.Lookup(ctx, de.Name)
		if err != nil {
			return fmt.Errorf("lookup error for %q at %q: %w", de.Name, path, err)
		}

		if err := fsys.walkNode(ctx, childPath, &de, childNode, walkFn); err != nil {
			return fmt.Errorf("walkfn error at %q: %w", childPath, err)
		}
	}

	return nil
}
