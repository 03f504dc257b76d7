// Package cdnfs implements the CDN-backed filesystem.
//
// Paths like "/pkg@1.2.3/index.js" are resolved lazily against a remote
// metadata API and cached in a per-path index. When the archive-mode
// policy triggers for a package, its distribution tarball is fetched
// once, unpacked into an in-memory store and served from there for the
// rest of the process lifetime.
package cdnfs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/desertwitch/pkgfuse/internal/logging"
	"github.com/spf13/afero"
)

var (
	_ afero.Fs = (*FS)(nil)

	errMissingArgument = errors.New("missing argument")
)

// Options contains all settings for the operation of the filesystem.
// None of the fields can be modified anymore once the filesystem exists;
// the tarball size threshold has a runtime setter on [FS] instead.
type Options struct {
	// BaseURL is the root of the CDN serving file content and metadata.
	BaseURL string

	// HTTPClient overrides the HTTP client used for all remote calls.
	// When nil, a default client with a request timeout is used.
	HTTPClient *http.Client

	// Archive enables archive mode. When nil, every package is served
	// file-by-file through the metadata index.
	Archive *ArchiveOptions
}

// ArchiveOptions configures when whole packages are fetched as one
// tarball instead of one metadata round-trip per file.
type ArchiveOptions struct {
	// BaseURL is the root of the package registry, queried per
	// name/version for the tarball location and unpacked size.
	BaseURL string

	// SizeThreshold switches a package to archive mode once its
	// registry-reported unpacked size exceeds it. Zero disables the
	// size trigger.
	SizeThreshold uint64

	// Filter switches a package to archive mode whenever it returns
	// true for the package name, regardless of size.
	Filter func(name string) bool
}

// Metrics contains all metrics which are collected within the filesystem.
type Metrics struct {
	// TotalMetaFetches is the amount of metadata descriptor fetches.
	TotalMetaFetches atomic.Int64

	// TotalFileFetches is the amount of raw file content fetches.
	TotalFileFetches atomic.Int64

	// TotalRegistryFetches is the amount of registry document fetches.
	TotalRegistryFetches atomic.Int64

	// TotalTarballFetches is the amount of package tarball fetches.
	TotalTarballFetches atomic.Int64

	// TotalFetchedBytes is the amount of raw file bytes fetched.
	TotalFetchedBytes atomic.Int64

	// TotalExtractCount is the amount of tarball extractions.
	TotalExtractCount atomic.Int64

	// TotalExtractTime is time spent extracting tarballs.
	TotalExtractTime atomic.Int64

	// TotalExtractBytes is the amount of bytes extracted from tarballs.
	TotalExtractBytes atomic.Int64

	// TotalExtractEntries is the amount of extracted archive entries.
	TotalExtractEntries atomic.Int64

	// TotalIndexedPaths is the amount of paths in the metadata index.
	TotalIndexedPaths atomic.Int64

	// TotalArchivedPackages is the amount of packages in archive mode.
	TotalArchivedPackages atomic.Int64
}

// FS is the core implementation of the filesystem.
//
// It satisfies [afero.Fs] with strictly read-only semantics: any
// mutating call fails with a permission error. The metadata index and
// the archive store registry are append-only for the process lifetime.
type FS struct {
	Options *Options
	Metrics *Metrics

	client *lookupClient
	rbuf   *logging.RingBuffer
	birth  time.Time

	mu      sync.RWMutex
	index   map[string]statRecord
	stores  map[string]afero.Fs
	decided map[string]struct{}

	sizeThreshold atomic.Uint64
}

// New returns a pointer to a new [FS].
func New(opts *Options, rbuf *logging.RingBuffer) (*FS, error) {
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need a ring buffer", errMissingArgument)
	}
	if opts == nil || opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: need a CDN base URL", errMissingArgument)
	}
	if opts.Archive != nil && opts.Archive.BaseURL == "" {
		return nil, fmt.Errorf("%w: need a registry base URL for archive mode", errMissingArgument)
	}

	fsys := &FS{
		Options: opts,
		Metrics: &Metrics{},
		rbuf:    rbuf,
		birth:   time.Now(),
		index:   make(map[string]statRecord),
		stores:  make(map[string]afero.Fs),
		decided: make(map[string]struct{}),
	}
	fsys.client = newLookupClient(fsys, opts)
	if opts.Archive != nil {
		fsys.sizeThreshold.Store(opts.Archive.SizeThreshold)
	}

	return fsys, nil
}

// SizeThreshold returns the current archive-mode size threshold.
func (fsys *FS) SizeThreshold() uint64 {
	return fsys.sizeThreshold.Load()
}

// SetSizeThreshold adapts the archive-mode size threshold at runtime.
// It only affects packages whose policy has not been evaluated yet.
func (fsys *FS) SetSizeThreshold(v uint64) {
	fsys.sizeThreshold.Store(v)
}

// StatContext resolves the stat record for one path.
//
// Routing priority: synthetic root, scope directory, archive store,
// metadata index, remote fetch (which folds the response into the index
// and may switch the package to archive mode as a side effect).
func (fsys *FS) StatContext(ctx context.Context, name string) (os.FileInfo, error) {
	fspath := normalizePath(name)

	if fspath == "/" {
		return newDirRecord("/", fsys.birth), nil
	}
	if isScopeDir(fspath) {
		return newDirRecord(path.Base(fspath), fsys.birth), nil
	}

	ref, isPkg := parsePackageRef(fspath)
	if isPkg {
		if store, ok := fsys.store(ref); ok {
			info, err := store.Stat(stripPackage(fspath, ref))
			if err != nil {
				return nil, redirectErr(err, "stat", fspath)
			}

			return info, nil
		}
	}

	if rec, ok := fsys.indexed(fspath); ok {
		return rec, nil
	}

	return fsys.resolveRemote(ctx, fspath, ref, isPkg)
}

// ReadDirContext lists the immediate children of one directory path, in
// the order supplied by the backing store or remote response. There are
// no synthetic "." or ".." entries.
func (fsys *FS) ReadDirContext(ctx context.Context, name string) ([]os.FileInfo, error) {
	fspath := normalizePath(name)

	if fspath == "/" || isScopeDir(fspath) {
		return []os.FileInfo{}, nil
	}

	ref, isPkg := parsePackageRef(fspath)
	if isPkg {
		if store, ok := fsys.store(ref); ok {
			infos, err := afero.ReadDir(store, stripPackage(fspath, ref))
			if err != nil {
				return nil, redirectErr(err, "readdir", fspath)
			}

			return infos, nil
		}
	}

	if rec, ok := fsys.indexed(fspath); ok && !rec.IsDir() {
		return nil, pathErr("readdir", fspath, syscall.ENOTDIR)
	}

	meta, err := fsys.client.fetchMeta(ctx, fspath)
	if err != nil {
		return nil, err
	}
	if meta.Type != metaTypeDirectory {
		return nil, pathErr("readdir", fspath, syscall.ENOTDIR)
	}

	if isPkg {
		if err := fsys.maybeArchive(ctx, ref); err != nil {
			return nil, err
		}
	}

	fsys.foldMeta(fspath, meta)

	infos := make([]os.FileInfo, 0, len(meta.Files))
	for i := range meta.Files {
		child := &meta.Files[i]

		childPath := normalizePath(child.Path)
		if rec, ok := fsys.indexed(childPath); ok {
			infos = append(infos, rec)

			continue
		}

		// Child was not foldable at its own path; still list it.
		if child.Type == metaTypeDirectory {
			infos = append(infos, newDirRecord(path.Base(childPath), fsys.birth))
		} else {
			infos = append(infos, newFileRecord(path.Base(childPath), child.Size, fsys.birth))
		}
	}

	return infos, nil
}

// ReadFileContext reads the full content of one file path, either from
// the package's archive store or with a single raw content fetch.
func (fsys *FS) ReadFileContext(ctx context.Context, name string) ([]byte, error) {
	fspath := normalizePath(name)

	if ref, ok := parsePackageRef(fspath); ok {
		if store, ok := fsys.store(ref); ok {
			data, err := afero.ReadFile(store, stripPackage(fspath, ref))
			if err != nil {
				return nil, redirectErr(err, "read", fspath)
			}

			return data, nil
		}
	}

	return fsys.client.fetchFile(ctx, fspath)
}

// OpenContext opens one path for reading. File handles are backed by an
// in-memory buffer; no further network access happens on their reads.
func (fsys *FS) OpenContext(ctx context.Context, name string) (afero.File, error) {
	fspath := normalizePath(name)

	ref, isPkg := parsePackageRef(fspath)
	if isPkg {
		if store, ok := fsys.store(ref); ok {
			return fsys.openStore(store, ref, fspath)
		}
	}

	info, err := fsys.StatContext(ctx, fspath)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return &dirHandle{fsys: fsys, path: fspath, info: info}, nil
	}

	// The stat may have just switched the package to archive mode;
	// serve from the fresh store instead of fetching one more time.
	if isPkg {
		if store, ok := fsys.store(ref); ok {
			return fsys.openStore(store, ref, fspath)
		}
	}

	data, err := fsys.client.fetchFile(ctx, fspath)
	if err != nil {
		return nil, err
	}

	return newBufferHandle(fspath, info, data), nil
}

func (fsys *FS) openStore(store afero.Fs, ref PackageRef, fspath string) (afero.File, error) {
	f, err := store.Open(stripPackage(fspath, ref))
	if err != nil {
		return nil, redirectErr(err, "open", fspath)
	}

	return f, nil
}

// resolveRemote fetches the metadata descriptor for one path, runs the
// archive-mode policy for the containing package and folds the response
// tree into the metadata index.
func (fsys *FS) resolveRemote(ctx context.Context, fspath string, ref PackageRef, isPkg bool) (os.FileInfo, error) {
	meta, err := fsys.client.fetchMeta(ctx, fspath)
	if err != nil {
		return nil, err
	}

	if isPkg {
		if err := fsys.maybeArchive(ctx, ref); err != nil {
			return nil, err
		}
	}

	return fsys.foldMeta(fspath, meta), nil
}

// maybeArchive runs the archive-mode decision policy for one package.
// The policy is evaluated exactly once per distinct name@version: switch
// to archive mode when the name filter matches, or when a configured
// size threshold is exceeded by the registry-reported unpacked size.
//
// Once registered, the archive store is permanent for that package; a
// failure while building it fails the triggering call and is never
// silently degraded back to file-by-file serving for that attempt.
func (fsys *FS) maybeArchive(ctx context.Context, ref PackageRef) error {
	if fsys.Options.Archive == nil {
		return nil
	}

	key := ref.Versioned()

	fsys.mu.Lock()
	if _, ok := fsys.decided[key]; ok {
		fsys.mu.Unlock()

		return nil
	}
	fsys.decided[key] = struct{}{}
	fsys.mu.Unlock()

	filterHit := fsys.Options.Archive.Filter != nil && fsys.Options.Archive.Filter(ref.Name)
	threshold := fsys.sizeThreshold.Load()

	if !filterHit && threshold == 0 {
		return nil
	}

	pkg, err := fsys.client.fetchPackument(ctx, ref)
	if err != nil {
		return err
	}

	if !filterHit && pkg.Dist.UnpackedSize <= threshold {
		return nil
	}

	body, err := fsys.client.fetchTarball(ctx, pkg.Dist.Tarball)
	if err != nil {
		fsys.rbuf.Printf("%q->Archive: tarball fetch failed: %v\n", key, err)

		return pathErr("stat", "/"+ref.pathSegment(), syscall.EIO)
	}
	defer body.Close()

	store, err := fsys.extractTarball(body)
	if err != nil {
		fsys.rbuf.Printf("%q->Archive: extraction failed: %v\n", key, err)

		return pathErr("stat", "/"+ref.pathSegment(), syscall.EIO)
	}

	fsys.mu.Lock()
	fsys.stores[pkg.Name] = store
	if pkg.Version != "" {
		fsys.stores[pkg.Name+"@"+pkg.Version] = store
	}
	if ref.Version != "" {
		fsys.stores[key] = store
	}
	fsys.mu.Unlock()

	fsys.Metrics.TotalArchivedPackages.Add(1)
	fsys.rbuf.Printf("%q->Archive: now serving from extracted tarball\n", key)

	return nil
}

// foldMeta records every node of a metadata response tree in the index,
// at its own path. Entries already present are never overwritten; a
// re-fetch of the same path is assumed to describe the same resource.
func (fsys *FS) foldMeta(fspath string, meta *remoteMeta) statRecord {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	return fsys.foldNode(fspath, meta)
}

func (fsys *FS) foldNode(fspath string, node *remoteMeta) statRecord {
	fspath = normalizePath(fspath)

	rec, ok := fsys.index[fspath]
	if !ok {
		if node.Type == metaTypeDirectory {
			rec = newDirRecord(path.Base(fspath), fsys.birth)
		} else {
			rec = newFileRecord(path.Base(fspath), node.Size, fsys.birth)
		}
		fsys.index[fspath] = rec
		fsys.Metrics.TotalIndexedPaths.Add(1)
	}

	for i := range node.Files {
		child := &node.Files[i]
		fsys.foldNode(child.Path, child)
	}

	return rec
}

func (fsys *FS) indexed(fspath string) (statRecord, bool) {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	rec, ok := fsys.index[fspath]

	return rec, ok
}

// store returns the archive store serving one package, preferring the
// exact name@version key over the bare name key.
func (fsys *FS) store(ref PackageRef) (afero.Fs, bool) {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	if ref.Version != "" {
		if s, ok := fsys.stores[ref.Versioned()]; ok {
			return s, true
		}
	}
	if s, ok := fsys.stores[ref.Name]; ok {
		return s, true
	}

	return nil, false
}

// redirectErr re-homes a backing-store error onto the caller's path,
// preserving the underlying errno for [errors.Is] checks.
func redirectErr(err error, op, fspath string) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return &os.PathError{Op: op, Path: fspath, Err: pe.Err}
	}

	return err
}
