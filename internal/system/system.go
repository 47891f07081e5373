// Package system binds a repository's documents to its secondary index and
// keeps the two in step on create, update and reindex.
package system

import (
	"errors"
	"iter"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/changestore"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/identity"
	"github.com/starford/raido/internal/index"
)

// IndexFile is the index location relative to the repository root.
const IndexFile = ".db.sqlite"

// System is one repository and its index, opened once per process.
type System struct {
	store  *changestore.Store
	repo   *document.Repository
	index  *index.DB
	ident  *identity.Identity
	logger *slog.Logger
}

type options struct {
	identity  *identity.Identity
	logger    *slog.Logger
	indexPath string
	maxConns  int
	clock     func() time.Time
}

// Option configures Initialize.
type Option func(*options)

// WithIdentity injects the signing identity. Without one the system is read-only.
func WithIdentity(id *identity.Identity) Option {
	return func(o *options) { o.identity = id }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIndexPath overrides <root>/.db.sqlite.
func WithIndexPath(p string) Option {
	return func(o *options) { o.indexPath = p }
}

// WithMaxConns bounds the index connection pool.
func WithMaxConns(n int) Option {
	return func(o *options) { o.maxConns = n }
}

// WithClock overrides the timestamp source for recorded changes.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// Init creates a new repository at root and initializes a system on it.
func Init(root string, opts ...Option) (*System, error) {
	o := buildOptions(opts)
	store, err := changestore.Init(root, storeOptions(o)...)
	if err != nil {
		return nil, err
	}
	return initialize(store, o)
}

// Initialize opens the repository at root and its index.
func Initialize(root string, opts ...Option) (*System, error) {
	o := buildOptions(opts)
	store, err := changestore.Open(root, storeOptions(o)...)
	if err != nil {
		return nil, err
	}
	return initialize(store, o)
}

func buildOptions(opts []Option) *options {
	o := &options{logger: slog.Default(), maxConns: index.DefaultMaxConns}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

func storeOptions(o *options) []changestore.Option {
	so := []changestore.Option{changestore.WithLogger(o.logger)}
	if o.identity != nil {
		so = append(so, changestore.WithIdentity(o.identity))
	}
	if o.clock != nil {
		so = append(so, changestore.WithClock(o.clock))
	}
	return so
}

func initialize(store *changestore.Store, o *options) (*System, error) {
	indexPath := o.indexPath
	if indexPath == "" {
		indexPath = filepath.Join(store.Root(), IndexFile)
	}
	db, err := index.Open(indexPath, o.maxConns, o.logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	o.logger.Debug("system: initialized", "root", store.Root(), "index", indexPath)
	return &System{
		store:  store,
		repo:   document.NewRepository(store, o.logger),
		index:  db,
		ident:  o.identity,
		logger: o.logger,
	}, nil
}

// Close releases the index and the change store.
func (s *System) Close() error {
	return errors.Join(s.index.Close(), s.store.Close())
}

// Root returns the absolute repository root.
func (s *System) Root() string { return s.store.Root() }

// Identity returns the injected identity, or nil.
func (s *System) Identity() *identity.Identity { return s.ident }

// Repository returns the document repository.
func (s *System) Repository() *document.Repository { return s.repo }

// Index returns the secondary index.
func (s *System) Index() *index.DB { return s.index }

// NextID returns one more than the largest n among files named
// <prefix>-<n>.<ext> directly inside dir, or 1 when there are none.
// Concurrent callers can receive the same number.
func (s *System) NextID(dir string) (int, error) {
	hs, err := s.repo.List(dir)
	if errors.Is(err, apperr.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, h := range hs {
		stem := document.IDFromPath(h.Path())
		i := strings.LastIndex(stem, "-")
		if i <= 0 || path.Ext(h.Name()) == "" {
			continue
		}
		n, err := strconv.Atoi(stem[i+1:])
		if err != nil || n <= 0 {
			continue
		}
		highest = max(highest, n)
	}
	return highest + 1, nil
}

// ReadDirectory lists the document handles directly inside dir.
func (s *System) ReadDirectory(dir string) ([]document.Handle, error) {
	return s.repo.List(dir)
}

// WalkDirectory lists the document handles under dir, recursively.
func (s *System) WalkDirectory(dir string) ([]document.Handle, error) {
	return s.repo.Walk(dir)
}

// History yields the changes touching the document at p, most recent first.
func (s *System) History(p string) iter.Seq2[changestore.ChangeInfo, error] {
	return s.repo.History(s.repo.Resolve(p))
}
