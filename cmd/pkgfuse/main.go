/*
pkgfuse is a read-only FUSE filesystem that browses the packages of a
public CDN as regular files and directories. Paths are resolved lazily
against the remote metadata API; when a configured name filter or size
threshold triggers, a whole package tarball is fetched once, unpacked
in memory and served from there. It includes a HTTP webserver for a
diagnostics dashboard and runtime configurables.
*/
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/desertwitch/pkgfuse/internal/cdnfs"
	"github.com/desertwitch/pkgfuse/internal/filesystem"
	"github.com/desertwitch/pkgfuse/internal/logging"
	"github.com/desertwitch/pkgfuse/internal/webserver"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const (
	stackTraceBuffer      = 1 << 24
	defaultRingBufferSize = 200
)

// Version is the program version (filled in from the Makefile).
var Version string

type programOpts struct {
	mountDir         string
	cdnURL           string
	registryURL      string
	tarThreshold     uint64
	tarFilters       []string
	allowOther       bool
	cacheSize        int
	cacheTTL         time.Duration
	ringBufferSize   int
	dashboardAddress string
}

func rootCmd() *cobra.Command {
	var argThreshold string

	opts := programOpts{}

	cmd := &cobra.Command{
		Use:     helpTextUse,
		Short:   helpTextShort,
		Long:    helpTextLong,
		Version: Version,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			opts.mountDir = args[0]

			if argThreshold != "" {
				numThreshold, err := humanize.ParseBytes(argThreshold)
				if err != nil {
					return fmt.Errorf("failed to parse threshold: %w", err)
				}
				opts.tarThreshold = numThreshold
			}

			return run(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.cdnURL, "cdn", "c", "https://unpkg.com", "Base URL of the CDN serving package files and metadata")
	cmd.Flags().StringVarP(&opts.registryURL, "registry", "r", "", "Base URL of the package registry (enables tarball mode when set)")
	cmd.Flags().StringVarP(&argThreshold, "tar-threshold", "t", "", "Unpacked size beyond which a whole package tarball is fetched (e.g. 4MiB)")
	cmd.Flags().StringSliceVarP(&opts.tarFilters, "tar-filter", "f", nil, "Glob pattern of package names always fetched as whole tarballs (repeatable)")
	cmd.Flags().BoolVarP(&opts.allowOther, "allow-other", "a", false, "Allow other users to access the mounted filesystem")
	cmd.Flags().IntVar(&opts.cacheSize, "cache-size", 0, "Entry capacity of the file content cache (0 for default)")
	cmd.Flags().DurationVar(&opts.cacheTTL, "cache-ttl", 0, "Time-to-live of cached file contents (0 for default)")
	cmd.Flags().IntVar(&opts.ringBufferSize, "ring-buffer-size", defaultRingBufferSize, "Size of the event ring-buffer served on the dashboard")
	cmd.Flags().StringVarP(&opts.dashboardAddress, "webaddr", "w", "", "Address to serve the diagnostics dashboard on (e.g. :8000; but disabled when empty)")

	return cmd
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts programOpts) error {
	rbuf := logging.NewRingBuffer(opts.ringBufferSize, os.Stderr)

	srcOpts := &cdnfs.Options{BaseURL: opts.cdnURL}
	if opts.registryURL != "" {
		srcOpts.Archive = &cdnfs.ArchiveOptions{
			BaseURL:       opts.registryURL,
			SizeThreshold: opts.tarThreshold,
			Filter:        filterFunc(opts.tarFilters),
		}
	}

	src, err := cdnfs.New(srcOpts, rbuf)
	if err != nil {
		return fmt.Errorf("fs setup error: %w", err)
	}

	fsOpts := filesystem.DefaultOptions()
	if opts.cacheSize > 0 {
		fsOpts.CacheSize = opts.cacheSize
	}
	if opts.cacheTTL > 0 {
		fsOpts.CacheTTL = opts.cacheTTL
	}

	fsys, err := filesystem.NewFS(src, fsOpts, rbuf)
	if err != nil {
		return fmt.Errorf("fs setup error: %w", err)
	}
	defer fsys.Cleanup()

	mountOpts := []fuse.MountOption{fuse.ReadOnly(), fuse.FSName("pkgfuse"), fuse.Subtype("pkgfuse")}
	if opts.allowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	c, err := fuse.Mount(opts.mountDir, mountOpts...)
	if err != nil {
		return fmt.Errorf("fs mount error: %w", err)
	}
	defer c.Close()
	defer fuse.Unmount(opts.mountDir) //nolint:errcheck

	notifyMountHelper(rbuf)

	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(errChan)
		if err := fs.Serve(c, fsys); err != nil {
			errChan <- fmt.Errorf("fs serve error: %w", err)
		}
	}()

	if opts.dashboardAddress != "" {
		dash, err := webserver.NewFSDashboard(fsys, src, rbuf, Version)
		if err != nil {
			return fmt.Errorf("dashboard setup error: %w", err)
		}
		srv := dash.Serve(opts.dashboardAddress)
		defer srv.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sig {
			rbuf.Println("Signal received, unmounting the filesystem...")

			if err := fuse.Unmount(opts.mountDir); err != nil {
				rbuf.Printf("Unmount error: %v (try again later)\n", err)

				continue
			}

			return
		}
	}()

	sig1 := make(chan os.Signal, 1)
	signal.Notify(sig1, syscall.SIGUSR1)
	go func() {
		for range sig1 {
			rbuf.Println("Signal received, forcing garbage collection...")
			runtime.GC()
			debug.FreeOSMemory()
		}
	}()

	sig2 := make(chan os.Signal, 1)
	signal.Notify(sig2, syscall.SIGUSR2)
	go func() {
		for range sig2 {
			rbuf.Println("Signal received, printing stacktrace (to stderr)...")
			buf := make([]byte, stackTraceBuffer)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()

	wg.Wait()

	return <-errChan
}
