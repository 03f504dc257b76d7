package main

import (
	"fmt"
	"os/user"
	"strconv"
)

// resolveUser turns a setuid mount-option value into a uid/gid pair.
// Numeric values are resolved against the passwd database first, so a
// numeric spec still picks up the account's primary group; bare IDs
// without a passwd entry fall back to uid = gid.
func resolveUser(spec string) (uint32, uint32, error) {
	u, err := user.LookupId(spec)
	if err != nil {
		u, err = user.Lookup(spec)
	}
	if err != nil {
		if id, convErr := strconv.ParseUint(spec, 10, 32); convErr == nil {
			return uint32(id), uint32(id), nil
		}

		return 0, 0, fmt.Errorf("failed to resolve user %q: %w", spec, err)
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid uid %q: %w", u.Uid, err)
	}

	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid gid %q: %w", u.Gid, err)
	}

	return uint32(uid), uint32(gid), nil
}
