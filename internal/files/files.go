// Package files resolves peer-supplied names inside the shared and download
// folders and writes received files atomically.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrUnsafePath  = errors.New("path escapes its folder")
	ErrIsDirectory = errors.New("target is a directory")
)

// Resolve joins name onto root, refusing absolute paths, any name that
// would climb out of root and names that resolve to root itself.
func Resolve(root, name string) (string, error) {
	if !filepath.IsLocal(name) || filepath.Clean(name) == "." {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(root, name), nil
}

// Open opens name under root for reading. Directories and missing entries
// both report ErrNotFound.
func Open(root, name string) (*os.File, int64, error) {
	path, err := Resolve(root, name)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, name)
	}
	return f, info.Size(), nil
}

// List returns the names of every entry directly under dir, unfiltered.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// AtomicFile collects bytes in a hidden temp file next to its target and
// renames it into place on Commit, so readers never see a partial file and
// concurrent writers to one name resolve to last-writer-wins.
type AtomicFile struct {
	tmp    *os.File
	target string
	done   bool
}

// Create refuses a path that is an existing directory, since the final
// rename could never replace it.
func Create(path string) (*AtomicFile, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".peershare-*.part")
	if err != nil {
		return nil, err
	}
	return &AtomicFile{tmp: tmp, target: path}, nil
}

func (a *AtomicFile) Write(p []byte) (int, error) {
	return a.tmp.Write(p)
}

func (a *AtomicFile) Commit() error {
	if a.done {
		return nil
	}
	a.done = true

	if err := a.tmp.Close(); err != nil {
		_ = os.Remove(a.tmp.Name())
		return err
	}
	if err := os.Chmod(a.tmp.Name(), 0o644); err != nil {
		_ = os.Remove(a.tmp.Name())
		return err
	}
	if err := os.Rename(a.tmp.Name(), a.target); err != nil {
		_ = os.Remove(a.tmp.Name())
		return err
	}
	return nil
}

// Abort discards the temp file. It is a no-op after Commit.
func (a *AtomicFile) Abort() {
	if a.done {
		return
	}
	a.done = true
	_ = a.tmp.Close()
	_ = os.Remove(a.tmp.Name())
}
