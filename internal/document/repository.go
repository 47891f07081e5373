package document

import (
	"iter"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/changestore"
	"github.com/starford/raido/internal/storage"
)

// Handle locates a document by its slash-separated path relative to the repository root.
type Handle struct {
	path string
}

// Path returns the relative path.
func (h Handle) Path() string { return h.path }

// Name returns the file name.
func (h Handle) Name() string { return path.Base(h.path) }

// ID returns the record id derived from the file name.
func (h Handle) ID() string { return IDFromPath(h.path) }

func (h Handle) String() string { return h.path }

// Versioned is a record with the changes that created and last updated it.
// Updated is nil when the document has a single change.
type Versioned[T any] struct {
	Doc     T
	Created changestore.ChangeInfo
	Updated *changestore.ChangeInfo
}

// Repository reads and writes records in the working copy and commits them
// to the change store.
type Repository struct {
	store  *changestore.Store
	fs     *storage.FS
	logger *slog.Logger
}

// NewRepository wraps an open change store.
func NewRepository(store *changestore.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: store, fs: store.FS(), logger: logger}
}

// Store returns the underlying change store.
func (r *Repository) Store() *changestore.Store { return r.store }

// Resolve computes the handle for a relative path. It never fails; invalid
// paths are rejected when the handle is used.
func (r *Repository) Resolve(rel string) Handle {
	p := path.Clean(filepath.ToSlash(rel))
	return Handle{path: strings.TrimPrefix(p, "./")}
}

// Exists reports whether the document file exists.
func (r *Repository) Exists(h Handle) (bool, error) {
	return r.fs.Exists(h.path)
}

// Write replaces the file at h with the encoded record. With trackAndCommit
// the file is tracked and recorded as "Updated <filename>". A record that
// fails validation is rejected before anything touches the disk. A failed
// commit leaves the file written; recording again recovers.
func (r *Repository) Write(h Handle, rec Record, trackAndCommit bool) error {
	const op = "document: write"
	if v, ok := rec.(Validator); ok {
		if err := v.Validate(); err != nil {
			return apperr.WrapPath(apperr.ErrContract, op, h.path, err)
		}
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := r.fs.Write(h.path, data); err != nil {
		return err
	}
	r.logger.Debug("document: written", "path", h.path, "bytes", len(data))
	if !trackAndCommit {
		return nil
	}

	if err := r.store.Track(h.path); err != nil {
		return &apperr.Error{Kind: apperr.ErrRepo, Op: op, Path: h.path, Err: err}
	}
	hash, err := r.store.Record("Updated " + h.Name())
	if err != nil {
		return &apperr.Error{Kind: apperr.ErrRepo, Op: op, Path: h.path, Err: err}
	}
	if hash.IsZero() {
		r.logger.Debug("document: content unchanged", "path", h.path)
	} else {
		r.logger.Debug("document: committed", "path", h.path, "change", hash.Short())
	}
	return nil
}

// ReadTyped parses the document at h into a T.
func ReadTyped[T any, PT interface {
	*T
	Record
}](r *Repository, h Handle) (PT, error) {
	data, err := r.fs.Read(h.path)
	if err != nil {
		return nil, err
	}
	return Decode[T, PT](data, h.path)
}

// ReadWithHistory reads the document and resolves its first and last changes.
func ReadWithHistory[T any, PT interface {
	*T
	Record
}](r *Repository, h Handle) (*Versioned[PT], error) {
	doc, err := ReadTyped[T, PT](r, h)
	if err != nil {
		return nil, err
	}
	first, last, err := r.store.FirstAndLastChange(h.path)
	if err != nil {
		return nil, err
	}
	created, err := r.store.ChangeInfo(first)
	if err != nil {
		return nil, err
	}
	v := &Versioned[PT]{Doc: doc, Created: created}
	if last != first {
		updated, err := r.store.ChangeInfo(last)
		if err != nil {
			return nil, err
		}
		v.Updated = &updated
	}
	return v, nil
}

// History yields the changes touching the document, most recent first.
func (r *Repository) History(h Handle) iter.Seq2[changestore.ChangeInfo, error] {
	return func(yield func(changestore.ChangeInfo, error) bool) {
		it, err := r.store.ChangesForPath(h.path)
		if err != nil {
			yield(changestore.ChangeInfo{}, err)
			return
		}
		for hash, err := range it.All() {
			if err != nil {
				yield(changestore.ChangeInfo{}, err)
				return
			}
			info, err := r.store.ChangeInfo(hash)
			if !yield(info, err) || err != nil {
				return
			}
		}
	}
}

// List returns handles for the files directly inside dir.
func (r *Repository) List(dir string) ([]Handle, error) {
	entries, err := r.fs.List(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Handle, 0, len(entries))
	for _, e := range entries {
		out = append(out, Handle{path: e.Path})
	}
	return out, nil
}

// Walk returns handles for every file under dir, recursively, sorted by path.
func (r *Repository) Walk(dir string) ([]Handle, error) {
	entries, err := r.fs.Walk(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Handle, 0, len(entries))
	for _, e := range entries {
		out = append(out, Handle{path: e.Path})
	}
	return out, nil
}
