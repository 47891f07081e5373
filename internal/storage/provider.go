// Package storage provides rooted access to the repository working copy.
package storage

import "time"

// Entry describes a file in the working copy.
type Entry struct {
	Path    string // relative to the root, slash separated
	Size    int64
	ModTime time.Time
}

// Provider is the interface for working-copy file operations.
type Provider interface {
	// Root returns the absolute path of the working copy.
	Root() string
	// Abs resolves a relative path and rejects paths escaping the root.
	Abs(path string) (string, error)
	// List returns the regular files directly inside dir.
	List(dir string) ([]Entry, error)
	// Walk returns every regular file under dir, recursively.
	Walk(dir string) ([]Entry, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
}
