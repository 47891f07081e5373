// Package changestore is the versioned store behind a repository: a SQLite
// pristine holding the materialized tree and change log per channel, and an
// append-only archive of signed, content-addressed changes.
package changestore

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/identity"
	"github.com/starford/raido/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - initial pristine layout
const currentSchemaVersion = 1

const (
	// DotDir holds the version-control metadata at the repository root.
	DotDir = ".raido"
	// DefaultChannel is the channel created by Init.
	DefaultChannel = "main"

	pristineDir   = "pristine"
	pristineFile  = "db"
	changesDir    = "changes"
	identitiesDir = "identities"
	ignoreFile    = ".ignore"
)

// Store is an open repository.
type Store struct {
	fs       *storage.FS
	rw       *sql.DB
	ro       *sql.DB
	archive  *archive
	resolver *identity.Resolver
	ident    *identity.Identity
	channel  string
	ignore   []string
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIdentity sets the identity that signs recorded changes.
func WithIdentity(id *identity.Identity) Option {
	return func(s *Store) { s.ident = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the timestamp source for change headers.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithChannel selects a channel other than DefaultChannel.
func WithChannel(name string) Option {
	return func(s *Store) { s.channel = name }
}

// Init creates the metadata directory under root and opens the new repository.
func Init(root string, opts ...Option) (*Store, error) {
	const op = "changestore: init"
	dot := filepath.Join(root, DotDir)
	if _, err := os.Stat(dot); err == nil {
		return nil, apperr.WrapPath(apperr.ErrAlreadyExists, op, dot, fs.ErrExist)
	}
	for _, d := range []string{pristineDir, changesDir, identitiesDir} {
		if err := os.MkdirAll(filepath.Join(dot, d), 0o755); err != nil {
			return nil, apperr.WrapPath(apperr.ErrIO, op, dot, err)
		}
	}
	return Open(root, opts...)
}

// FindRoot walks up from dir to the first directory holding DotDir.
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", apperr.WrapPath(apperr.ErrIO, "changestore: find root", dir, err)
	}
	for {
		if info, err := os.Stat(filepath.Join(abs, DotDir)); err == nil && info.IsDir() {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", apperr.NotFound("changestore: find root", dir)
		}
		abs = parent
	}
}

// Open opens the repository rooted at root.
func Open(root string, opts ...Option) (*Store, error) {
	const op = "changestore: open"
	fsys, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	dot := filepath.Join(fsys.Root(), DotDir)
	if info, err := os.Stat(dot); err != nil || !info.IsDir() {
		return nil, apperr.NotFound(op, dot)
	}

	s := &Store{
		fs:      fsys,
		archive: &archive{dir: filepath.Join(dot, changesDir)},
		channel: DefaultChannel,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.resolver = identity.NewResolver(s.ident, filepath.Join(dot, identitiesDir))

	dbPath := filepath.Join(dot, pristineDir, pristineFile)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, apperr.WrapPath(apperr.ErrIO, op, dbPath, err)
	}
	// The writer pool holds a single connection and begins every transaction
	// with BEGIN IMMEDIATE, so writers from any process serialize on the file lock.
	s.rw, err = sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, apperr.WrapPath(apperr.ErrRepo, op, dbPath, err)
	}
	s.rw.SetMaxOpenConns(1)
	s.rw.SetMaxIdleConns(1)
	if err := applySchema(s.rw); err != nil {
		s.rw.Close()
		return nil, apperr.WrapPath(apperr.ErrRepo, op, dbPath, err)
	}
	if _, err := s.rw.Exec(`INSERT OR IGNORE INTO channels (name) VALUES (?)`, s.channel); err != nil {
		s.rw.Close()
		return nil, apperr.WrapPath(apperr.ErrRepo, op, dbPath, err)
	}

	s.ro, err = sql.Open("sqlite3", dbPath+"?_busy_timeout=10000&_query_only=true")
	if err != nil {
		s.rw.Close()
		return nil, apperr.WrapPath(apperr.ErrRepo, op, dbPath, err)
	}

	if err := s.loadIgnore(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases both database handles.
func (s *Store) Close() error {
	return errors.Join(s.ro.Close(), s.rw.Close())
}

// Root returns the absolute repository root.
func (s *Store) Root() string { return s.fs.Root() }

// FS returns the working-copy file system.
func (s *Store) FS() *storage.FS { return s.fs }

// Channel returns the active channel name.
func (s *Store) Channel() string { return s.channel }

// Identity returns the signing identity, or nil.
func (s *Store) Identity() *identity.Identity { return s.ident }

// Resolver returns the author resolver for this repository.
func (s *Store) Resolver() *identity.Resolver { return s.resolver }

// Head returns the channel head and its sequence number.
func (s *Store) Head() (Hash, int64, error) {
	var head string
	var seq int64
	err := s.ro.QueryRow(`SELECT head, seq FROM channels WHERE name = ?`, s.channel).Scan(&head, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, apperr.NotFound("changestore: head", s.channel)
	}
	if err != nil {
		return "", 0, apperr.Wrap(apperr.ErrRepo, "changestore: head", err)
	}
	return Hash(head), seq, nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("pristine schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
