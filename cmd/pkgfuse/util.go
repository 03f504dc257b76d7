package main

import (
	"os"
	"path"
	"strconv"

	"github.com/desertwitch/pkgfuse/internal/logging"
)

// helperFDEnv carries the pipe file descriptor the mount helper passes
// to signal a completed mount back through.
const helperFDEnv = "PKGFUSE_HELPER_FD"

// filterFunc builds the archive-mode name filter from glob patterns.
// Patterns match the full package name, including any scope prefix.
func filterFunc(patterns []string) func(string) bool {
	if len(patterns) == 0 {
		return nil
	}

	return func(name string) bool {
		for _, pat := range patterns {
			if ok, err := path.Match(pat, name); err == nil && ok {
				return true
			}
		}

		return false
	}
}

// notifyMountHelper signals mount completion to a waiting mount helper,
// when one started us. A single written byte on the inherited pipe is
// the whole protocol; without the environment marker this is a no-op.
func notifyMountHelper(rbuf *logging.RingBuffer) {
	val := os.Getenv(helperFDEnv)
	if val == "" {
		return
	}

	fd, err := strconv.Atoi(val)
	if err != nil || fd < 3 {
		rbuf.Printf("Invalid %s value: %q\n", helperFDEnv, val)

		return
	}

	pipe := os.NewFile(uintptr(fd), "mount-helper-pipe")
	if pipe == nil {
		return
	}
	defer pipe.Close()

	_, _ = pipe.Write([]byte{0})
}
