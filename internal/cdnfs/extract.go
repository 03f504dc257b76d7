package cdnfs

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
)

// extractTarball streams a gzip-compressed tar archive into a fresh
// in-memory filesystem. Entries are processed strictly one at a time, in
// stream order; any stream-level error aborts the whole extraction and
// the partially-built filesystem is discarded by the caller.
//
// Publishing tools universally wrap archive contents in a single
// top-level directory; its name is stripped, not validated.
func (fsys *FS) extractTarball(r io.Reader) (afero.Fs, error) {
	start := time.Now()
	defer func() {
		fsys.Metrics.TotalExtractTime.Add(time.Since(start).Nanoseconds())
		fsys.Metrics.TotalExtractCount.Add(1)
	}()

	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	store := afero.NewMemMapFs()
	tr := tar.NewReader(zr)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry: %w", err)
		}

		name, ok := stripWrapperDir(hdr.Name)
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := mkdirChain(store, name); err != nil {
				return nil, fmt.Errorf("failed to create %q: %w", name, err)
			}

		case tar.TypeReg:
			n, err := writeFileEntry(store, name, tr)
			if err != nil {
				return nil, fmt.Errorf("failed to write %q: %w", name, err)
			}
			fsys.Metrics.TotalExtractBytes.Add(n)
			fsys.Metrics.TotalExtractEntries.Add(1)

		default:
			// Links and special files cannot be represented read-only
			// in the backing store and are skipped.
		}
	}

	return store, nil
}

// stripWrapperDir removes the single top-level wrapper segment from an
// archive entry name. The wrapper directory itself (and malformed bare
// entries) yields no path to extract.
func stripWrapperDir(entryName string) (string, bool) {
	cleaned := strings.TrimPrefix(path.Clean("/"+entryName), "/")

	idx := strings.Index(cleaned, "/")
	if idx < 0 {
		return "", false
	}

	rest := strings.Trim(cleaned[idx+1:], "/")
	if rest == "" {
		return "", false
	}

	return "/" + rest, true
}

// mkdirChain creates a directory and all its ancestors, one segment at a
// time. Already-existing directories are success; permission failures on
// ancestors are expected when entries race each other and are only fatal
// on the final directory of the chain.
func mkdirChain(store afero.Fs, dir string) error {
	segs := strings.Split(strings.Trim(dir, "/"), "/")

	cur := ""
	for i, seg := range segs {
		cur += "/" + seg

		err := store.Mkdir(cur, os.ModeDir|dirBasePerm)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrExist):
		case errors.Is(err, os.ErrPermission) && i < len(segs)-1:
		default:
			return fmt.Errorf("failed to create directory %q: %w", cur, err)
		}
	}

	return nil
}

// writeFileEntry creates one file with its full parent chain, writes the
// buffered entry content and finalizes it before the next entry begins.
func writeFileEntry(store afero.Fs, name string, r io.Reader) (int64, error) {
	if dir := path.Dir(name); dir != "/" {
		if err := mkdirChain(store, dir); err != nil {
			return 0, err
		}
	}

	f, err := store.Create(name)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()

		return n, fmt.Errorf("failed to write content: %w", err)
	}

	if err := f.Close(); err != nil {
		return n, fmt.Errorf("failed to finalize file: %w", err)
	}

	return n, nil
}
