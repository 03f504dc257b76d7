package cdnfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// lookupClient talks to the CDN metadata/content endpoints and, in
// archive mode, to the package registry. It performs no retries and
// caches nothing; both concerns belong to its callers.
type lookupClient struct {
	fsys *FS

	http        *http.Client
	baseURL     string
	registryURL string
}

func newLookupClient(fsys *FS, opts *Options) *lookupClient {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}

	c := &lookupClient{
		fsys:    fsys,
		http:    hc,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
	}
	if opts.Archive != nil {
		c.registryURL = strings.TrimSuffix(opts.Archive.BaseURL, "/")
	}

	return c
}

// fetchMeta fetches the file/directory descriptor for one path. Paths
// without a trailing separator get the metadata query suffix appended, so
// the remote returns a descriptor instead of raw content.
//
// A non-success status means the path does not exist (ENOENT). Transport
// and decode failures are transient (EIO) and must never be cached.
func (c *lookupClient) fetchMeta(ctx context.Context, fspath string) (*remoteMeta, error) {
	url := c.baseURL + fspath
	if !strings.HasSuffix(fspath, "/") {
		url += "/?meta"
	}

	c.fsys.Metrics.TotalMetaFetches.Add(1)

	resp, err := c.get(ctx, url)
	if err != nil {
		c.fsys.rbuf.Printf("%q->Meta: HTTP error: %v\n", fspath, err)

		return nil, pathErr("stat", fspath, syscall.EIO)
	}
	defer resp.Body.Close()

	if !statusOK(resp) {
		return nil, pathErr("stat", fspath, syscall.ENOENT)
	}

	var meta remoteMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		c.fsys.rbuf.Printf("%q->Meta: decode error: %v\n", fspath, err)

		return nil, pathErr("stat", fspath, syscall.EIO)
	}

	return &meta, nil
}

// fetchFile fetches the raw bytes of one file path. A non-success status
// means the path does not exist (ENOENT); transport failures signal a
// retryable condition (EAGAIN) rather than a terminal one.
func (c *lookupClient) fetchFile(ctx context.Context, fspath string) ([]byte, error) {
	c.fsys.Metrics.TotalFileFetches.Add(1)

	resp, err := c.get(ctx, c.baseURL+fspath)
	if err != nil {
		c.fsys.rbuf.Printf("%q->File: HTTP error: %v\n", fspath, err)

		return nil, pathErr("open", fspath, syscall.EAGAIN)
	}
	defer resp.Body.Close()

	if !statusOK(resp) {
		return nil, pathErr("open", fspath, syscall.ENOENT)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.fsys.rbuf.Printf("%q->File: IO error: %v\n", fspath, err)

		return nil, pathErr("open", fspath, syscall.EAGAIN)
	}

	c.fsys.Metrics.TotalFetchedBytes.Add(int64(len(data)))

	return data, nil
}

// fetchPackument fetches the registry document for one package version.
// Requires archive mode to be configured; all failure modes collapse to
// ENOENT, as a package without a readable packument cannot be archived.
func (c *lookupClient) fetchPackument(ctx context.Context, ref PackageRef) (*packumentMeta, error) {
	if c.registryURL == "" {
		return nil, fmt.Errorf("%w: no registry URL configured", errMissingArgument)
	}

	version := ref.Version
	if version == "" {
		version = "latest"
	}
	url := c.registryURL + "/" + ref.Name + "/" + version

	c.fsys.Metrics.TotalRegistryFetches.Add(1)

	resp, err := c.get(ctx, url)
	if err != nil {
		c.fsys.rbuf.Printf("%q->Packument: HTTP error: %v\n", ref.Versioned(), err)

		return nil, pathErr("stat", "/"+ref.pathSegment(), syscall.ENOENT)
	}
	defer resp.Body.Close()

	if !statusOK(resp) {
		return nil, pathErr("stat", "/"+ref.pathSegment(), syscall.ENOENT)
	}

	var pkg packumentMeta
	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		c.fsys.rbuf.Printf("%q->Packument: decode error: %v\n", ref.Versioned(), err)

		return nil, pathErr("stat", "/"+ref.pathSegment(), syscall.ENOENT)
	}

	return &pkg, nil
}

// fetchTarball opens the distribution tarball byte stream for streaming
// into the extractor. The caller owns closing the returned body.
func (c *lookupClient) fetchTarball(ctx context.Context, url string) (io.ReadCloser, error) {
	c.fsys.Metrics.TotalTarballFetches.Add(1)

	resp, err := c.get(ctx, url)
	if err != nil {
		c.fsys.rbuf.Printf("%q->Tarball: HTTP error: %v\n", url, err)

		return nil, fmt.Errorf("failed to fetch tarball: %w", err)
	}

	if !statusOK(resp) {
		resp.Body.Close()

		return nil, fmt.Errorf("%w: tarball status %d", os.ErrNotExist, resp.StatusCode)
	}

	return resp.Body, nil
}

func (c *lookupClient) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}

	return resp, nil
}

func statusOK(resp *http.Response) bool {
	return resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
}

// pathErr wraps an errno into the error shape of the standard filesystem
// layer, so callers can test with [errors.Is] against [os.ErrNotExist],
// [os.ErrPermission] and friends.
func pathErr(op, fspath string, errno syscall.Errno) error {
	return &os.PathError{Op: op, Path: fspath, Err: errno}
}
