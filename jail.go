// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Jail bounds every file access made on behalf of a script to one directory.
// The root is canonical (absolute, symlinks resolved) and never changes.
type Jail struct {
	root string
	dir  *os.Root
}

// ResolvedPath is a canonical path known to be inside the Jail that produced it.
// Only Jail.Resolve creates one; the zero value refers to nothing.
type ResolvedPath struct {
	root string
	abs  string
	rel  string
}

// String returns the canonical absolute path.
func (p ResolvedPath) String() string {
	return p.abs
}

// Rel returns the path relative to the jail root, using the OS separator.
func (p ResolvedPath) Rel() string {
	return p.rel
}

// IsZero reports whether p was not produced by a Jail.
func (p ResolvedPath) IsZero() bool {
	return p.abs == ""
}

// NewJail builds a jail from anchor. A directory is used as is; for a file, its
// parent directory becomes the root. Relative anchors are made absolute against
// the working directory first.
func NewJail(anchor string) (*Jail, error) {
	abs, err := filepath.Abs(anchor)
	if err != nil {
		return nil, pathError(ErrInvalidBase, anchor, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, pathError(ErrInvalidBase, anchor, err)
	}
	if !info.IsDir() {
		abs = filepath.Dir(abs)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, pathError(ErrInvalidBase, anchor, err)
	}
	dir, err := os.OpenRoot(root)
	if err != nil {
		return nil, pathError(ErrInvalidBase, anchor, err)
	}
	return &Jail{root: root, dir: dir}, nil
}

// Root returns the canonical jail directory.
func (j *Jail) Root() string {
	return j.root
}

// Resolve maps a script-supplied relative path to a canonical path inside the
// jail. The target must exist. Containment is checked on path components after
// symlinks and dot segments are resolved.
func (j *Jail) Resolve(requested string) (ResolvedPath, error) {
	if isAbsolute(requested) {
		return ResolvedPath{}, pathError(ErrAbsolutePathForbidden, requested, nil)
	}

	joined := filepath.Join(j.root, filepath.FromSlash(requested))
	target, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if !within(j.root, followExisting(joined)) {
			return ResolvedPath{}, pathError(ErrTraversalDetected, requested, nil)
		}
		return ResolvedPath{}, pathError(ErrResourceNotFound, requested, err)
	}
	target, err = filepath.Abs(target)
	if err != nil {
		return ResolvedPath{}, pathError(ErrResourceNotFound, requested, err)
	}
	if !within(j.root, target) {
		return ResolvedPath{}, pathError(ErrTraversalDetected, requested, nil)
	}

	rel, _ := filepath.Rel(j.root, target)
	return ResolvedPath{root: j.root, abs: target, rel: rel}, nil
}

// Open opens a resolved path through the jail's os.Root. The os.Root check
// still applies if the tree changed after resolution.
func (j *Jail) Open(p ResolvedPath) (*os.File, error) {
	if p.IsZero() || p.root != j.root {
		return nil, fmt.Errorf("%w: path %q was not resolved by this jail", ErrJail, p.abs)
	}
	f, err := j.dir.Open(p.rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, pathError(ErrResourceNotFound, p.rel, err)
		}
		return nil, fmt.Errorf("%w: opening %q: %w", ErrJail, p.rel, err)
	}
	return f, nil
}

// ReadFile reads the whole file at p.
func (j *Jail) ReadFile(p ResolvedPath) ([]byte, error) {
	f, err := j.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.rel, err)
	}
	return data, nil
}

// Close releases the handle on the jail directory. Resolve keeps working; Open
// fails afterwards.
func (j *Jail) Close() error {
	return j.dir.Close()
}

// isAbsolute treats rooted and volume-qualified paths as absolute on every platform.
func isAbsolute(p string) bool {
	if filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return true
	}
	return strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`)
}

// maxLinkHops bounds symlink expansion in followExisting.
const maxLinkHops = 255

// followExisting resolves symlinks along the absolute path p for as long as
// its components exist, then appends the missing rest lexically. The result
// says where p would land, so a missing target behind an escaping link is
// still seen as outside the root.
func followExisting(p string) string {
	sep := string(filepath.Separator)
	vol := filepath.VolumeName(p)
	cur := vol + sep
	parts := splitPath(p[len(vol):])
	hops := 0
	for len(parts) > 0 {
		part := parts[0]
		parts = parts[1:]
		switch part {
		case ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}

		next := filepath.Join(cur, part)
		info, err := os.Lstat(next)
		if err != nil {
			return filepath.Join(append([]string{next}, parts...)...)
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}

		hops++
		target, err := os.Readlink(next)
		if err != nil || hops > maxLinkHops {
			return filepath.Join(append([]string{next}, parts...)...)
		}
		if filepath.IsAbs(target) {
			tvol := filepath.VolumeName(target)
			cur = tvol + sep
			target = target[len(tvol):]
		}
		parts = append(splitPath(target), parts...)
	}
	return cur
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool {
		return r == filepath.Separator || r == '/'
	})
}

// within reports whether target is root or a descendant of it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
