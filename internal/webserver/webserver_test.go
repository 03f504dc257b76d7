package webserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertwitch/pkgfuse/internal/cdnfs"
	"github.com/desertwitch/pkgfuse/internal/filesystem"
	"github.com/desertwitch/pkgfuse/internal/logging"
	"github.com/stretchr/testify/require"
)

func testDashboard(t *testing.T, out io.Writer) *FSDashboard {
	t.Helper()

	rbf := logging.NewRingBuffer(10, out)

	src, err := cdnfs.New(&cdnfs.Options{
		BaseURL: "http://cdn.invalid",
		Archive: &cdnfs.ArchiveOptions{BaseURL: "http://registry.invalid"},
	}, rbf)
	require.NoError(t, err)

	fsys, err := filesystem.NewFS(src, nil, rbf)
	require.NoError(t, err)
	t.Cleanup(fsys.Cleanup)

	dash, err := NewFSDashboard(fsys, src, rbf, "gotests")
	require.NoError(t, err)

	return dash
}

// Expectation: Construction should fail on any missing component.
func Test_NewFSDashboard_MissingArguments_Error(t *testing.T) {
	t.Parallel()

	rbf := logging.NewRingBuffer(10, io.Discard)

	_, err := NewFSDashboard(nil, nil, rbf, "gotests")
	require.ErrorIs(t, err, errInvalidArgument)
}

// Expectation: Serve should return a valid HTTP server pointer.
func Test_Serve_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	srv := dash.Serve("127.0.0.1:0")
	require.NotNil(t, srv)
	require.NotEmpty(t, srv.Addr)

	defer srv.Close()
}

// Expectation: dashboardMux should register all expected routes.
func Test_dashboardMux_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	router := dash.dashboardMux()

	testCases := []struct {
		path   string
		method string
	}{
		{"/", http.MethodGet},
		{"/metrics.json", http.MethodGet},
		{"/gc", http.MethodGet},
		{"/reset", http.MethodGet},
		{"/set/cache-bypass/false", http.MethodGet},
		{"/set/tar-threshold/100MB", http.MethodGet},
	}

	for _, tc := range testCases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		require.NotEqual(t, http.StatusNotFound, w.Code, "Route %s should exist", tc.path)
	}
}

// Expectation: dashboardHandler should render the dashboard with correct data.
func Test_dashboardHandler_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.version = "test-version"
	dash.rbuf.Println("test log entry")

	dash.src.Metrics.TotalMetaFetches.Store(42)
	dash.src.SetSizeThreshold(200_000_000)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	dash.dashboardHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := w.Body.String()
	require.Contains(t, body, "test-version")
	require.Contains(t, body, "test log entry")
	require.Contains(t, body, "191 MiB")
}

// Expectation: metricsHandler should return JSON with current metrics.
func Test_metricsHandler_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.version = "test-metrics-version"
	dash.rbuf.Println("metrics test log entry")

	dash.src.Metrics.TotalMetaFetches.Store(7)
	dash.fsys.Metrics.TotalCacheHits.Store(3)
	dash.fsys.Metrics.TotalCacheMisses.Store(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics.json", nil)
	w := httptest.NewRecorder()

	dash.metricsHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var data fsDashboardData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	require.Equal(t, "test-metrics-version", data.Version)
	require.Equal(t, int64(7), data.TotalMetaFetches)
	require.Equal(t, "75.00%", data.CacheHitRatio)
}

// Expectation: The reset route should zero the operational counters.
func Test_resetMetricsHandler_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.fsys.Metrics.TotalReads.Store(99)
	dash.src.Metrics.TotalMetaFetches.Store(99)

	req := httptest.NewRequest(http.MethodGet, "/reset", nil)
	w := httptest.NewRecorder()

	dash.resetMetricsHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, dash.fsys.Metrics.TotalReads.Load())
	require.Zero(t, dash.src.Metrics.TotalMetaFetches.Load())
}

// Expectation: The cache bypass route should flip the runtime switch and
// reject non-boolean values.
func Test_booleanHandler_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	router := dash.dashboardMux()

	req := httptest.NewRequest(http.MethodGet, "/set/cache-bypass/true", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, dash.fsys.Options.CacheBypass.Load())

	req = httptest.NewRequest(http.MethodGet, "/set/cache-bypass/maybe", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.True(t, dash.fsys.Options.CacheBypass.Load())
}

// Expectation: The threshold route should accept human-readable sizes
// and apply them to the source filesystem at runtime.
func Test_thresholdHandler_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	router := dash.dashboardMux()

	req := httptest.NewRequest(http.MethodGet, "/set/tar-threshold/2MiB", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(2*1024*1024), dash.src.SizeThreshold())

	req = httptest.NewRequest(http.MethodGet, "/set/tar-threshold/banana", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, uint64(2*1024*1024), dash.src.SizeThreshold())
}
