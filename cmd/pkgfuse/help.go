package main

const (
	helpTextUse = "pkgfuse <mount-dir>"

	helpTextShort = "a read-only FUSE filesystem for browsing CDN-served packages"

	helpTextLong = `pkgfuse is a read-only FUSE filesystem that browses the versioned packages
of a public CDN (e.g. /lodash@4.17.21/package.json) as regular files and
directories. Metadata is fetched lazily per path; packages matched by a name
filter or exceeding a size threshold are fetched as one tarball, unpacked in
memory and served without further network round-trips. It includes a HTTP
webserver for a responsive diagnostics dashboard and runtime configurables.

When mounted, the following OS signals are observed at runtime:
- SIGTERM/SIGINT for gracefully unmounting the FS
- SIGUSR1 for forcing a garbage collection run within Go
- SIGUSR2 for printing a stack trace to standard error (stderr)

When enabled, the diagnostics dashboard exposes the following routes:
- "/" for filesystem dashboard and event ring-buffer
- "/gc" for forcing of a garbage collection (within Go)
- "/reset" for resetting the filesystem metrics at runtime
- "/set/cache-bypass/<bool>" for bypassing the file content cache
- "/set/tar-threshold/<string>" for adapting of the tarball size threshold`
)
