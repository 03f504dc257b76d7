/*
mount.pkgfuse - FUSE mount helper

This program is a helper for the mount/fstab mechanism. It is normally
located in /sbin or another directory searched by mount(8) for
filesystem helpers, and is not intended to be invoked directly by end
users. The mount source is the CDN base URL the filesystem serves.

Usage:

	mount.pkgfuse source mountpoint [-o key[=value],key[=value],...]

Example (fstab entry):

	https://unpkg.com  /mnt/pkgs  pkgfuse  registry=https://registry.npmjs.org,allow_other  0  0

Filesystem-specific flags are adapted into this format:

	--webaddr :8000 --allow-other => webaddr=:8000,allow_other

Mount helper events are logged to standard error (stderr).
*/
//nolint:mnd,err113
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultMountTimeout = 20 * time.Second

// Version is the program version (filled in from the Makefile).
var Version string

// allowedKeys are the mount options forwarded to the daemon as flags.
// Anything else (except helper-control options) is silently dropped,
// as mount(8) passes through generic options the daemon cannot take.
var allowedKeys = map[string]struct{}{
	"registry":         {},
	"tar-threshold":    {},
	"tar-filter":       {},
	"allow-other":      {},
	"cache-size":       {},
	"cache-ttl":        {},
	"ring-buffer-size": {},
	"webaddr":          {},
}

// MountHelper translates a mount(8) invocation into a daemon start.
type MountHelper struct {
	Program    string
	Binary     string
	Source     string
	Mountpoint string
	Options    map[string]string
	Setuid     string
	Timeout    time.Duration
}

func newMountHelper(args []string) (*MountHelper, error) {
	if len(args) < 3 {
		return nil, errors.New("need source and mountpoint arguments")
	}

	mh := &MountHelper{
		Program:    args[0],
		Binary:     "pkgfuse",
		Source:     args[1],
		Mountpoint: args[2],
		Options:    make(map[string]string),
		Timeout:    defaultMountTimeout,
	}

	if mh.Source == "" {
		return nil, errors.New("no source argument was given")
	}
	if mh.Mountpoint == "" {
		return nil, errors.New("no mountpoint argument was given")
	}

	if err := mh.parseOptions(args[3:]); err != nil {
		return nil, fmt.Errorf("failed to parse options: %w", err)
	}

	return mh, nil
}

func (mh *MountHelper) parseOptions(args []string) error {
	for _, arg := range args {
		if arg == "-v" || arg == "-o" {
			continue
		}

		for _, opt := range strings.Split(arg, ",") {
			if opt == "" {
				continue
			}
			opt = strings.ReplaceAll(opt, "_", "-")
			opt = strings.TrimPrefix(opt, "--")

			key, val, _ := strings.Cut(opt, "=")

			switch key {
			case "setuid":
				mh.Setuid = val

			case "xbin":
				if val == "" {
					return errors.New("empty value for option 'xbin'")
				}
				mh.Binary = val

			case "xtim":
				secs, err := strconv.Atoi(val)
				if err != nil || secs < 1 {
					return fmt.Errorf("invalid value for option 'xtim': %q", val)
				}
				mh.Timeout = time.Duration(secs) * time.Second

			default:
				if _, ok := allowedKeys[key]; ok {
					mh.Options[key] = val
				}
			}
		}
	}

	return nil
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, helpTextLong+"\n", filepath.Base(os.Args[0]), Version)
		os.Exit(1)
	}

	helper, err := newMountHelper(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := helper.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
