// Package security keeps tool requests inside the configured directory.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator confines file access to one directory tree
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator for the given directory. The
// directory does not need to exist yet.
func NewPathValidator(root string) (*PathValidator, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}
	return &PathValidator{root: filepath.Clean(abs)}, nil
}

// Root returns the configured directory
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve turns a request path into an absolute path inside the
// configured directory. Relative paths are taken from the directory.
// Null bytes are dropped.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	path = filepath.Clean(path)

	within, err := v.Contains(path)
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}
	if !within {
		return "", fmt.Errorf("path is outside configured directory: %s", path)
	}
	return path, nil
}

// Contains reports whether an absolute path lies inside the configured
// directory, both as written and after following symlinks.
func (v *PathValidator) Contains(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	abs = filepath.Clean(abs)

	roots := []string{v.root}
	if real, err := filepath.EvalSymlinks(v.root); err == nil && real != v.root {
		roots = append(roots, real)
	}

	if !under(abs, roots) {
		return false, nil
	}
	real := abs
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		real = resolved
	} else if !os.IsNotExist(err) {
		return false, err
	}
	return under(real, roots), nil
}

func under(path string, roots []string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
