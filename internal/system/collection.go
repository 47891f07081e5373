package system

import (
	"context"
	"errors"
	"path"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/index"
)

// Storable is a record that lives in a document and projects to an index row.
type Storable interface {
	document.Record
	index.Indexable
}

// Collection gives typed access to one record type.
type Collection[T any, PT interface {
	*T
	Storable
}] struct {
	sys *System
}

// Bind registers T's index table and returns its collection.
func Bind[T any, PT interface {
	*T
	Storable
}](ctx context.Context, sys *System) (*Collection[T, PT], error) {
	if err := sys.index.Register(ctx, PT(new(T))); err != nil {
		return nil, err
	}
	return &Collection[T, PT]{sys: sys}, nil
}

// Table returns the index table of the collection.
func (c *Collection[T, PT]) Table() string { return PT(new(T)).IndexTable() }

// Create writes rec as a new document at p, commits it, and indexes the
// committed version. The returned record carries its id.
func (c *Collection[T, PT]) Create(ctx context.Context, p string, rec PT) (PT, error) {
	h := c.sys.repo.Resolve(p)
	exists, err := c.sys.repo.Exists(h)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.AlreadyExists("system: create", h.Path())
	}
	if err := c.sys.repo.Write(h, rec, true); err != nil {
		return nil, err
	}
	c.sys.logger.Debug("system: created", "path", h.Path())
	return c.reindex(ctx, h)
}

// Update rewrites the existing document at p with rec, commits, and reindexes it.
func (c *Collection[T, PT]) Update(ctx context.Context, p string, rec PT) (PT, error) {
	h := c.sys.repo.Resolve(p)
	exists, err := c.sys.repo.Exists(h)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("system: update", h.Path())
	}
	if err := c.sys.repo.Write(h, rec, true); err != nil {
		return nil, err
	}
	c.sys.logger.Debug("system: updated", "path", h.Path())
	return c.reindex(ctx, h)
}

// Read parses the document at p.
func (c *Collection[T, PT]) Read(p string) (PT, error) {
	return document.ReadTyped[T, PT](c.sys.repo, c.sys.repo.Resolve(p))
}

// ReadWithHistory parses the document at p with its created and updated changes.
func (c *Collection[T, PT]) ReadWithHistory(p string) (*document.Versioned[PT], error) {
	return document.ReadWithHistory[T, PT](c.sys.repo, c.sys.repo.Resolve(p))
}

// Reindex re-reads the document at p and overwrites its index row. The change
// store is not consulted.
func (c *Collection[T, PT]) Reindex(ctx context.Context, p string) (PT, error) {
	return c.reindex(ctx, c.sys.repo.Resolve(p))
}

func (c *Collection[T, PT]) reindex(ctx context.Context, h document.Handle) (PT, error) {
	rec, err := document.ReadTyped[T, PT](c.sys.repo, h)
	if err != nil {
		return nil, err
	}
	if err := c.sys.index.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReindexDir reindexes the markdown documents directly inside dir that keep
// accepts, or all of them when keep is nil. Documents that fail to parse are
// skipped and reported in the joined error.
func (c *Collection[T, PT]) ReindexDir(ctx context.Context, dir string, keep func(document.Handle) bool) (int, error) {
	hs, err := c.sys.repo.List(dir)
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, h := range hs {
		if path.Ext(h.Name()) != ".md" || (keep != nil && !keep(h)) {
			continue
		}
		if _, err := c.reindex(ctx, h); err != nil {
			c.sys.logger.Warn("system: reindex failed", "path", h.Path(), "error", err)
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Query returns the indexed records matching every condition.
func (c *Collection[T, PT]) Query(ctx context.Context, conds ...index.Condition) ([]PT, error) {
	return index.Query[T, PT](ctx, c.sys.index, conds...)
}

// QueryRaw returns the indexed records matching a raw SQL predicate.
// Only pass predicates built by trusted code.
func (c *Collection[T, PT]) QueryRaw(ctx context.Context, where string, args ...any) ([]PT, error) {
	return index.QueryRaw[T, PT](ctx, c.sys.index, where, args...)
}

// Delete removes the index row for id. The document is untouched.
func (c *Collection[T, PT]) Delete(ctx context.Context, id string) error {
	return c.sys.index.Delete(ctx, c.Table(), id)
}

// IDs returns every indexed id.
func (c *Collection[T, PT]) IDs(ctx context.Context) (map[string]struct{}, error) {
	return c.sys.index.IDs(ctx, c.Table())
}
