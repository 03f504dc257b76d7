package cdnfs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

// Expectation: The metadata query suffix should be appended for paths
// without a trailing separator and the descriptor decoded.
func Test_LookupClient_FetchMeta_Success(t *testing.T) {
	t.Parallel()

	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		_, _ = w.Write([]byte(`{"type":"file","path":"/react@18.2.0/index.js","size":190}`))
	}))
	defer srv.Close()

	fsys := newTestFS(t, &Options{BaseURL: srv.URL})

	meta, err := fsys.client.fetchMeta(context.Background(), "/react@18.2.0/index.js")
	require.NoError(t, err)
	require.Equal(t, "/react@18.2.0/index.js/?meta", gotURL)
	require.Equal(t, metaTypeFile, meta.Type)
	require.Equal(t, int64(190), meta.Size)
	require.Equal(t, int64(1), fsys.Metrics.TotalMetaFetches.Load())
}

// Expectation: A non-success status should map to a not-found error.
func Test_LookupClient_FetchMeta_NotFound_Error(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fsys := newTestFS(t, &Options{BaseURL: srv.URL})

	_, err := fsys.client.fetchMeta(context.Background(), "/no-such-pkg")
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// Expectation: Transport and decode failures should map to an IO error,
// never to a not-found condition.
func Test_LookupClient_FetchMeta_Transient_Error(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	fsys := newTestFS(t, &Options{BaseURL: srv.URL})

	_, err := fsys.client.fetchMeta(context.Background(), "/react")
	require.Error(t, err)
	require.ErrorIs(t, err, syscall.EIO)
	require.NotErrorIs(t, err, os.ErrNotExist)

	down := httptest.NewServer(nil)
	down.Close()

	fsys = newTestFS(t, &Options{BaseURL: down.URL})

	_, err = fsys.client.fetchMeta(context.Background(), "/react")
	require.Error(t, err)
	require.ErrorIs(t, err, syscall.EIO)
	require.NotErrorIs(t, err, os.ErrNotExist)
}

// Expectation: File content should be fetched raw with byte accounting.
func Test_LookupClient_FetchFile_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/react@18.2.0/index.js", r.URL.Path)
		_, _ = w.Write([]byte("module.exports = 1;"))
	}))
	defer srv.Close()

	fsys := newTestFS(t, &Options{BaseURL: srv.URL})

	data, err := fsys.client.fetchFile(context.Background(), "/react@18.2.0/index.js")
	require.NoError(t, err)
	require.Equal(t, "module.exports = 1;", string(data))
	require.Equal(t, int64(1), fsys.Metrics.TotalFileFetches.Load())
	require.Equal(t, int64(len(data)), fsys.Metrics.TotalFetchedBytes.Load())
}

// Expectation: Content transport failures should map to a retryable
// error, a non-success status to a not-found error.
func Test_LookupClient_FetchFile_Error(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fsys := newTestFS(t, &Options{BaseURL: srv.URL})

	_, err := fsys.client.fetchFile(context.Background(), "/gone")
	require.ErrorIs(t, err, os.ErrNotExist)

	down := httptest.NewServer(nil)
	down.Close()

	fsys = newTestFS(t, &Options{BaseURL: down.URL})

	_, err = fsys.client.fetchFile(context.Background(), "/gone")
	require.ErrorIs(t, err, syscall.EAGAIN)
}

// Expectation: Versioned refs should query their exact version, refs
// without one should query the latest published version.
func Test_LookupClient_FetchPackument_Success(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"name":"react","version":"18.2.0",` +
			`"dist":{"tarball":"https://cdn.invalid/react-18.2.0.tgz","unpackedSize":3145728}}`))
	}))
	defer srv.Close()

	fsys := newTestFS(t, &Options{
		BaseURL: "http://cdn.invalid",
		Archive: &ArchiveOptions{BaseURL: srv.URL},
	})

	pkg, err := fsys.client.fetchPackument(context.Background(), PackageRef{Name: "react", Version: "18.2.0"})
	require.NoError(t, err)
	require.Equal(t, "/react/18.2.0", gotPath)
	require.Equal(t, "react", pkg.Name)
	require.Equal(t, uint64(3145728), pkg.Dist.UnpackedSize)

	_, err = fsys.client.fetchPackument(context.Background(), PackageRef{Name: "react"})
	require.NoError(t, err)
	require.Equal(t, "/react/latest", gotPath)

	require.Equal(t, int64(2), fsys.Metrics.TotalRegistryFetches.Load())
}

// Expectation: Without a configured registry no packument can be had.
func Test_LookupClient_FetchPackument_NoRegistry_Error(t *testing.T) {
	t.Parallel()

	fsys := newTestFS(t, nil)

	_, err := fsys.client.fetchPackument(context.Background(), PackageRef{Name: "react", Version: "18.2.0"})
	require.ErrorIs(t, err, errMissingArgument)
}

// Expectation: The tarball stream should be handed over unconsumed.
func Test_LookupClient_FetchTarball_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tarball bytes"))
	}))
	defer srv.Close()

	fsys := newTestFS(t, nil)

	body, err := fsys.client.fetchTarball(context.Background(), srv.URL+"/react-18.2.0.tgz")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "tarball bytes", string(data))
	require.Equal(t, int64(1), fsys.Metrics.TotalTarballFetches.Load())
}

// Expectation: A non-success tarball status should read as not-found.
func Test_LookupClient_FetchTarball_NotFound_Error(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	fsys := newTestFS(t, nil)

	_, err := fsys.client.fetchTarball(context.Background(), srv.URL+"/react-18.2.0.tgz")
	require.ErrorIs(t, err, os.ErrNotExist)
}
