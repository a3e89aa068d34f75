// Package walker enumerates the regular files below a root directory.
//
// Paths are produced lazily in lexical order (directory entries sorted by
// name, depth first). Symbolic links are neither followed nor yielded, so a
// walk cannot loop and never hands a link to a caller that may delete it.
package walker

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// InvalidRootError reports a root that is missing or not a directory.
type InvalidRootError struct {
	Root string
	Err  error
}

func (e *InvalidRootError) Error() string {
	return fmt.Sprintf("invalid root %q: %v", e.Root, e.Err)
}

func (e *InvalidRootError) Unwrap() error { return e.Err }

// SkipError reports an entry the walk could not read. The walk continues.
type SkipError struct {
	Path string
	Err  error
}

func (e *SkipError) Error() string { return fmt.Sprintf("skip %s: %v", e.Path, e.Err) }

func (e *SkipError) Unwrap() error { return e.Err }

// ErrNotDir is wrapped by InvalidRootError when the root is a file.
var ErrNotDir = errors.New("not a directory")

// ValidateRoot checks that root exists and is a directory.
func ValidateRoot(root string) error {
	if root == "" {
		return &InvalidRootError{Root: root, Err: fs.ErrInvalid}
	}
	st, err := os.Stat(root)
	if err != nil {
		return &InvalidRootError{Root: root, Err: err}
	}
	if !st.IsDir() {
		return &InvalidRootError{Root: root, Err: ErrNotDir}
	}
	return nil
}

// ResolveRoot returns root with a symlinked root directory resolved.
// Other roots are returned unchanged.
func ResolveRoot(root string) (string, error) {
	st, err := os.Lstat(root)
	if err != nil || st.Mode()&fs.ModeSymlink == 0 {
		return root, nil
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", &InvalidRootError{Root: root, Err: err}
	}
	return resolved, nil
}

// Walk returns a sequence of regular file paths under root.
//
// Unreadable entries are reported as ("", *SkipError) and the walk goes on.
// An invalid root is reported once as ("", *InvalidRootError). A root that
// is itself a symlink to a directory is resolved first; links below it are
// ignored. Files listed in exclude are never yielded; they must be spelled
// the way Walk yields paths. Every range over the result performs a fresh
// walk.
func Walk(root string, exclude ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := ValidateRoot(root); err != nil {
			yield("", err)
			return
		}
		start, err := ResolveRoot(root)
		if err != nil {
			yield("", err)
			return
		}
		skip := make(map[string]struct{}, len(exclude))
		for _, p := range exclude {
			skip[filepath.Clean(p)] = struct{}{}
		}

		_ = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield("", &SkipError{Path: p, Err: err}) {
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if _, ok := skip[p]; ok {
				return nil
			}
			if !yield(p, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// Count returns the number of regular files Walk would yield.
// Skipped entries are not counted.
func Count(root string, exclude ...string) (int, error) {
	n := 0
	for _, err := range Walk(root, exclude...) {
		if err != nil {
			var inv *InvalidRootError
			if errors.As(err, &inv) {
				return 0, err
			}
			continue
		}
		n++
	}
	return n, nil
}
