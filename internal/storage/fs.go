package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/raido/internal/apperr"
)

const tmpPrefix = ".raido-tmp-"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the working copy
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperr.WrapPath(apperr.ErrIO, "storage: resolve root", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, ioErr("storage: stat root", root, err)
	}
	if !info.IsDir() {
		return nil, apperr.New(apperr.ErrInvalidPath, "storage", "root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// Abs resolves a relative path against the root and rejects
// any result that escapes it (directory traversal).
func (f *FS) Abs(rel string) (string, error) {
	if rel == "" || rel == "." {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		if cleaned == f.root || strings.HasPrefix(cleaned, f.root+string(os.PathSeparator)) {
			return cleaned, nil
		}
		return "", apperr.New(apperr.ErrInvalidPath, "storage", "absolute path outside root: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", apperr.New(apperr.ErrInvalidPath, "storage", "path escapes root: %s", rel)
	}
	return abs, nil
}

// Rel converts an absolute path under the root to a slash-separated relative path.
func (f *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", apperr.New(apperr.ErrInvalidPath, "storage", "path outside root: %s", abs)
	}
	return filepath.ToSlash(rel), nil
}

// List returns the regular files directly inside dir, sorted by path.
// Hidden and temporary files are skipped.
func (f *FS) List(dir string) ([]Entry, error) {
	base, err := f.Abs(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, ioErr("storage: list", dir, err)
	}
	var out []Entry
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, ioErr("storage: list", dir, err)
		}
		rel, err := f.Rel(filepath.Join(base, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Path: rel, Size: info.Size(), ModTime: info.ModTime()})
	}
	return out, nil
}

// Walk returns every regular, non-hidden file under dir. Hidden directories are not descended.
func (f *FS) Walk(dir string) ([]Entry, error) {
	base, err := f.Abs(dir)
	if err != nil {
		return nil, err
	}
	var out []Entry
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p != base && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := f.Rel(p)
		if err != nil {
			return err
		}
		out = append(out, Entry{Path: rel, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, ioErr("storage: walk", dir, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Read returns the raw bytes of a working-copy file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, ioErr("storage: read", path, err)
	}
	return data, nil
}

// Write atomically writes content, creating parent directories.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.Abs(path)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(abs, content, 0o644); err != nil {
		return ioErr("storage: write", path, err)
	}
	return nil
}

// Exists reports whether a regular file exists at path.
func (f *FS) Exists(path string) (bool, error) {
	abs, err := f.Abs(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, ioErr("storage: stat", path, err)
	}
	return info.Mode().IsRegular(), nil
}

// WriteFileAtomic writes content: tmp file → fsync → rename.
func WriteFileAtomic(abs string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	success = true
	return nil
}

func ioErr(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.WrapPath(apperr.ErrNotFound, op, path, err)
	}
	return apperr.WrapPath(apperr.ErrIO, op, path, err)
}
