// Package pathguard validates that relative paths cannot escape a designated
// root directory. Every filesystem mutation must resolve its target through
// Resolve; callers never construct target paths by string concatenation.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EscapeError reports a path that would resolve outside the root.
type EscapeError struct {
	Root   string
	Path   string
	Reason string
}

func (e *EscapeError) Error() string {
	return fmt.Sprintf("illegal target %q: %s", e.Path, e.Reason)
}

// EnsureRoot resolves root to an absolute path and verifies it exists and is
// a directory.
func EnsureRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("root does not exist: %s", abs)
		}
		return "", fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root is not a directory: %s", abs)
	}
	return abs, nil
}

// Resolve joins rel onto root and returns the absolute target path with any
// symlinks in the target's existing ancestry followed. It fails with
// *EscapeError when rel is absolute, contains a parent-directory segment, or
// resolves outside root after symlink resolution: a symlink planted inside
// the root cannot redirect a target beyond it. The root itself is a legal
// target only for an empty rel.
func Resolve(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	realRoot, err := resolveExisting(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}

	if strings.TrimSpace(rel) == "" {
		return realRoot, nil
	}
	if filepath.IsAbs(rel) {
		return "", &EscapeError{Root: realRoot, Path: rel, Reason: "absolute paths are not allowed"}
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", &EscapeError{Root: realRoot, Path: rel, Reason: "path traversal '..' is not allowed"}
		}
	}

	target, err := resolveExisting(filepath.Clean(filepath.Join(realRoot, rel)))
	if err != nil {
		return "", fmt.Errorf("resolve target: %w", err)
	}
	if target == realRoot {
		return "", &EscapeError{Root: realRoot, Path: rel, Reason: "target resolves to the root itself"}
	}
	if !strings.HasPrefix(target, realRoot+string(os.PathSeparator)) {
		return "", &EscapeError{Root: realRoot, Path: rel, Reason: "target resolves outside the root"}
	}
	return target, nil
}

// resolveExisting follows symlinks through the deepest existing ancestor of
// path and rejoins the not-yet-existing remainder onto the result.
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}
