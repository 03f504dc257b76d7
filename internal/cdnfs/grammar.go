package cdnfs

import (
	"path"
	"regexp"
	"strings"
)

// Package name segments follow the registry publishing rules: lowercase
// letters, digits, "-", ".", "_" and "~", with "." and "_" disallowed as
// the first character. Only the leading path segment can name a package,
// optionally prefixed by an "@scope/" segment and suffixed by "@version".
var (
	packageRe = regexp.MustCompile(
		`^/((@[a-z0-9~-][a-z0-9._~-]*/)?[a-z0-9~-][a-z0-9._~-]*)(@([^/]+))?(/.*)?$`)

	scopeRe = regexp.MustCompile(`^@[a-z0-9~-][a-z0-9._~-]*$`)
)

// PackageRef identifies one package as addressed by a filesystem path.
// A zero Version means the path did not pin one (registry "latest" rules
// do not apply here, unpinned packages are still served file-by-file).
type PackageRef struct {
	Name    string // Full package name, including any "@scope/" prefix.
	Version string // Version suffix of the path, without the "@" marker.
}

// String returns the package name, e.g. "@scope/name" or "name".
func (r PackageRef) String() string {
	return r.Name
}

// Versioned returns the "name@version" form, or just the name
// when the originating path did not carry a version suffix.
func (r PackageRef) Versioned() string {
	if r.Version == "" {
		return r.Name
	}

	return r.Name + "@" + r.Version
}

// pathSegment returns the leading path segment the reference was parsed
// from, without the leading separator (e.g. "@scope/name@1.2.3").
func (r PackageRef) pathSegment() string {
	return r.Versioned()
}

// parsePackageRef extracts the package reference from the leading segment
// of a filesystem path. The root path and paths not starting with a
// well-formed package segment yield no match rather than an error.
func parsePackageRef(fspath string) (PackageRef, bool) {
	if fspath == "" || fspath == "/" {
		return PackageRef{}, false
	}

	m := packageRe.FindStringSubmatch(fspath)
	if m == nil {
		return PackageRef{}, false
	}

	return PackageRef{Name: m[1], Version: m[4]}, true
}

// isScopeDir reports whether the last path segment is a bare scope
// directory ("/@scope" or "/anything/@scope"). Such paths are always
// presented as empty directories and never resolve to a package.
func isScopeDir(fspath string) bool {
	if fspath == "" || fspath == "/" {
		return false
	}

	return scopeRe.MatchString(path.Base(fspath))
}

// stripPackage removes the leading package segment from a path, yielding
// the path within that package. The bare package path maps to "/".
func stripPackage(fspath string, ref PackageRef) string {
	rest := strings.TrimPrefix(fspath, "/"+ref.pathSegment())
	if rest == "" {
		return "/"
	}

	return rest
}

// normalizePath brings caller-supplied paths into the canonical form the
// metadata index is keyed by: cleaned, absolute, no trailing separator.
func normalizePath(fspath string) string {
	if fspath == "" {
		return "/"
	}
	if !strings.HasPrefix(fspath, "/") {
		fspath = "/" + fspath
	}

	fspath = path.Clean(fspath)
	if fspath == "." {
		return "/"
	}

	return fspath
}
