package main

const helpTextLong = `%[1]s (%[2]s) - FUSE mount helper

This program is a helper for the mount/fstab mechanism.
It is normally located in /sbin or another directory
searched by mount(8) for filesystem helpers, and is
not intended to be invoked directly by the end users.

The mount source is the base URL of the CDN to serve.

Usage:
  %[1]s source mountpoint [-o key[=value],key[=value],...]

For running the filesystem as another (e.g. unprivileged) user:
  %[1]s source mountpoint -o setuid=USER[,key[=value],...]

Example (fstab entry):
  https://unpkg.com   /mnt/pkgs   pkgfuse   allow_other,webaddr=:8000   0  0

Additional mount options to control mount helper behavior itself:
  setuid=USER (as username or UID; overrides executing user)
  xbin=/full/path/to/pkgfuse/binary (overrides filesystem binary)
  xtim=SECS (numeric and in seconds; overrides filesystem mount timeout)

Filesystem-specific options need to be adapted into this format:
  --webaddr :8000 --allow-other => webaddr=:8000,allow_other

Note that FUSE mount helper events are printed to standard error (stderr).`
