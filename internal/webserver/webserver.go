// Package webserver implements the diagnostics server.
package webserver

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"sync/atomic"
	"text/template"

	"github.com/desertwitch/pkgfuse/internal/cdnfs"
	"github.com/desertwitch/pkgfuse/internal/filesystem"
	"github.com/desertwitch/pkgfuse/internal/logging"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

var (
	//go:embed templates/*.html
	templateFS    embed.FS
	indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

	// errInvalidArgument is for an invalid constructor argument.
	errInvalidArgument = errors.New("invalid argument")
)

// FSDashboard is the implementation of the filesystem dashboard.
type FSDashboard struct {
	version string
	fsys    *filesystem.FS
	src     *cdnfs.FS
	rbuf    *logging.RingBuffer
}

// NewFSDashboard returns a pointer to a new [FSDashboard].
func NewFSDashboard(fsys *filesystem.FS, src *cdnfs.FS, rbuf *logging.RingBuffer, version string) (*FSDashboard, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: need filesystem", errInvalidArgument)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: need source filesystem", errInvalidArgument)
	}
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need ring buffer", errInvalidArgument)
	}

	return &FSDashboard{
		version: version,
		fsys:    fsys,
		src:     src,
		rbuf:    rbuf,
	}, nil
}

// Serve serves the diagnostics dashboard as part of a [http.Server].
func (d *FSDashboard) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: d.dashboardMux()}

	go func() {
		defer func() {
			r := recover()
			if r != nil {
				fmt.Fprintf(os.Stderr, "(webserver) PANIC: %v\n", r)
				debug.PrintStack()
			}
		}()
		d.rbuf.Printf("serving dashboard on %s\n", addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.rbuf.Printf("HTTP error: %v\n", err)
		}
	}()

	return srv
}

func (d *FSDashboard) dashboardMux() *mux.Router {
	mux := mux.NewRouter()

	mux.HandleFunc("/", d.dashboardHandler)
	mux.HandleFunc("/metrics.json", d.metricsHandler)
	mux.HandleFunc("/gc", d.gcHandler)
	mux.HandleFunc("/reset", d.resetMetricsHandler)

	mux.HandleFunc("/set/cache-bypass/{value}",
		d.booleanHandler("Content cache bypass", &d.fsys.Options.CacheBypass))
	mux.HandleFunc("/set/tar-threshold/{value}", d.thresholdHandler)

	return mux
}

type fsDashboardData struct {
	AllocBytes        string   `json:"allocBytes"`
	ArchivedPackages  int64    `json:"archivedPackages"`
	AvgExtractSpeed   string   `json:"avgExtractSpeed"`
	AvgExtractTime    string   `json:"avgExtractTime"`
	CacheBypass       string   `json:"cacheBypass"`
	CacheHitRatio     string   `json:"cacheHitRatio"`
	CacheHits         int64    `json:"cacheHits"`
	CacheMisses       int64    `json:"cacheMisses"`
	CacheSize         int      `json:"cacheSize"`
	CacheTTL          string   `json:"cacheTtl"`
	IndexedPaths      int64    `json:"indexedPaths"`
	Logs              []string `json:"logs"`
	NumGC             uint32   `json:"numGc"`
	RingBufferSize    int      `json:"ringBufferSize"`
	SysBytes          string   `json:"sysBytes"`
	TarSizeThreshold  string   `json:"tarSizeThreshold"`
	TotalAlloc        string   `json:"totalAlloc"`
	TotalDirLists     int64    `json:"totalDirLists"`
	TotalErrors       int64    `json:"totalErrors"`
	TotalExtractBytes string   `json:"totalExtractBytes"`
	TotalExtracts     int64    `json:"totalExtracts"`
	TotalFetchedBytes string   `json:"totalFetchedBytes"`
	TotalFileFetches  int64    `json:"totalFileFetches"`
	TotalLookups      int64    `json:"totalLookups"`
	TotalMetaFetches  int64    `json:"totalMetaFetches"`
	TotalReadBytes    string   `json:"totalReadBytes"`
	TotalReads        int64    `json:"totalReads"`
	TotalRegistry     int64    `json:"totalRegistryFetches"`
	TotalTarballs     int64    `json:"totalTarballFetches"`
	Uptime            string   `json:"uptime"`
	Version           string   `json:"version"`
}

func (d *FSDashboard) collectMetrics() fsDashboardData {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	lines := d.rbuf.Lines()
	slices.Reverse(lines)

	return fsDashboardData{
		AllocBytes:        humanize.IBytes(m.Alloc),
		ArchivedPackages:  d.src.Metrics.TotalArchivedPackages.Load(),
		AvgExtractSpeed:   d.avgExtractSpeed(),
		AvgExtractTime:    d.avgExtractTime(),
		CacheBypass:       enabledOrDisabled(d.fsys.Options.CacheBypass.Load()),
		CacheHitRatio:     d.cacheHitRatio(),
		CacheHits:         d.fsys.Metrics.TotalCacheHits.Load(),
		CacheMisses:       d.fsys.Metrics.TotalCacheMisses.Load(),
		CacheSize:         d.fsys.Options.CacheSize,
		CacheTTL:          d.fsys.Options.CacheTTL.String(),
		IndexedPaths:      d.src.Metrics.TotalIndexedPaths.Load(),
		Logs:              lines,
		NumGC:             m.NumGC,
		RingBufferSize:    d.rbuf.Size(),
		SysBytes:          humanize.IBytes(m.Sys),
		TarSizeThreshold:  d.tarSizeThreshold(),
		TotalAlloc:        humanize.IBytes(m.TotalAlloc),
		TotalDirLists:     d.fsys.Metrics.TotalDirLists.Load(),
		TotalErrors:       d.fsys.Metrics.TotalErrors.Load(),
		TotalExtractBytes: d.totalExtractBytes(),
		TotalExtracts:     d.src.Metrics.TotalExtractCount.Load(),
		TotalFetchedBytes: humanize.IBytes(clampUint(d.src.Metrics.TotalFetchedBytes.Load())),
		TotalFileFetches:  d.src.Metrics.TotalFileFetches.Load(),
		TotalLookups:      d.fsys.Metrics.TotalLookups.Load(),
		TotalMetaFetches:  d.src.Metrics.TotalMetaFetches.Load(),
		TotalReadBytes:    humanize.IBytes(clampUint(d.fsys.Metrics.TotalReadBytes.Load())),
		TotalReads:        d.fsys.Metrics.TotalReads.Load(),
		TotalRegistry:     d.src.Metrics.TotalRegistryFetches.Load(),
		TotalTarballs:     d.src.Metrics.TotalTarballFetches.Load(),
		Uptime:            humanize.Time(d.fsys.MountTime),
		Version:           d.version,
	}
}

func (d *FSDashboard) dashboardHandler(w http.ResponseWriter, _ *http.Request) {
	data := d.collectMetrics()

	if err := indexTemplate.Execute(w, data); err != nil {
		d.rbuf.Printf("HTTP template execution error: %v\n", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *FSDashboard) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	data := d.collectMetrics()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *FSDashboard) gcHandler(w http.ResponseWriter, _ *http.Request) {
	runtime.GC()
	debug.FreeOSMemory()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	d.rbuf.Printf("GC forced via API, current heap: %s.\n", humanize.IBytes(m.Alloc))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "GC forced, current heap: %s.\n", humanize.IBytes(m.Alloc))
}

func (d *FSDashboard) resetMetricsHandler(w http.ResponseWriter, _ *http.Request) {
	d.fsys.Metrics.TotalLookups.Store(0)
	d.fsys.Metrics.TotalDirLists.Store(0)
	d.fsys.Metrics.TotalReads.Store(0)
	d.fsys.Metrics.TotalReadBytes.Store(0)
	d.fsys.Metrics.TotalCacheHits.Store(0)
	d.fsys.Metrics.TotalCacheMisses.Store(0)
	d.fsys.Metrics.TotalErrors.Store(0)

	d.src.Metrics.TotalMetaFetches.Store(0)
	d.src.Metrics.TotalFileFetches.Store(0)
	d.src.Metrics.TotalRegistryFetches.Store(0)
	d.src.Metrics.TotalTarballFetches.Store(0)
	d.src.Metrics.TotalFetchedBytes.Store(0)
	d.src.Metrics.TotalExtractCount.Store(0)
	d.src.Metrics.TotalExtractTime.Store(0)
	d.src.Metrics.TotalExtractBytes.Store(0)
	d.src.Metrics.TotalExtractEntries.Store(0)

	d.rbuf.Println("Metrics reset via API.")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Metrics reset.")
}

func (d *FSDashboard) thresholdHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	val, err := humanize.ParseBytes(vars["value"])
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid string value: %v", err), http.StatusBadRequest)

		return
	}
	d.src.SetSizeThreshold(val)

	d.rbuf.Printf("Tarball size threshold set via API: %s.\n", humanize.IBytes(val))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Tarball size threshold set: %s.\n", humanize.IBytes(val))
}

func (d *FSDashboard) booleanHandler(what string, target *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		val, err := strconv.ParseBool(vars["value"])
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid boolean value: %v", err), http.StatusBadRequest)

			return
		}
		target.Store(val)

		d.rbuf.Printf("%s set via API: %s.\n", what, enabledOrDisabled(val))

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "%s set: %s.\n", what, enabledOrDisabled(val))
	}
}
