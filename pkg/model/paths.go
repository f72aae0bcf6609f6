package model

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/oneconcern/cfs/pkg/cfs/status"
)

const (
	// BlocksDir is the name of the subdirectory of the storage root holding blocks
	BlocksDir = ".BLOCKS"

	maxPathLen = 4096
)

// Path is a validated location of a file index, relative to the storage root.
//
// The zero value is not a valid path.
type Path struct {
	rel string
}

// NewPath validates a root-relative path.
//
// Paths use the forward slash as separator. Absolute paths, paths escaping the root,
// paths pointing to the root itself and paths inside the blocks directory are rejected.
func NewPath(rel string) (Path, error) {
	switch {
	case rel == "":
		return Path{}, status.ErrInvalidPath.Wrapf("empty path")
	case len(rel) > maxPathLen:
		return Path{}, status.ErrInvalidPath.Wrapf("path too long")
	case strings.IndexByte(rel, 0) >= 0:
		return Path{}, status.ErrInvalidPath.Wrapf("path contains a NUL byte")
	case strings.HasPrefix(rel, "/") || filepath.IsAbs(rel):
		return Path{}, status.ErrInvalidPath.Wrapf("path must be relative to the storage root: " + rel)
	}

	cleaned := path.Clean(rel)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return Path{}, status.ErrInvalidPath.Wrapf("path escapes the storage root: " + rel)
	}

	components := strings.Split(cleaned, "/")
	if components[0] == BlocksDir {
		return Path{}, status.ErrInvalidPath.Wrapf("path conflicts with the blocks directory: " + rel)
	}

	return Path{rel: cleaned}, nil
}

// MustNewPath builds a path or panics
func MustNewPath(rel string) Path {
	p, err := NewPath(rel)
	if err != nil {
		panic(err)
	}
	return p
}

// String yields the root-relative path, with forward slashes
func (p Path) String() string {
	return p.rel
}

// IsZero tells if the path has not been initialized
func (p Path) IsZero() bool {
	return p.rel == ""
}

// Local yields the root-relative path with the OS separator
func (p Path) Local() string {
	return filepath.FromSlash(p.rel)
}

// Under composes the full OS path of this file index under some root directory
func (p Path) Under(root string) string {
	return filepath.Join(root, p.Local())
}

// Dir yields the root-relative parent directory, with the OS separator
func (p Path) Dir() string {
	return filepath.Dir(p.Local())
}

// BlockPath yields the path of a block file, relative to the storage root
func BlockPath(d Digest) string {
	return filepath.Join(BlocksDir, d.String())
}
