package changestore

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
)

// loadIgnore reads glob patterns from <root>/.ignore, one per line.
func (s *Store) loadIgnore() error {
	data, err := os.ReadFile(filepath.Join(s.Root(), ignoreFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return apperr.WrapPath(apperr.ErrIO, "changestore: read ignore", ignoreFile, err)
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s.ignore = append(s.ignore, strings.TrimSuffix(line, "/"))
	}
	return nil
}

// Ignored reports whether a slash-separated relative path is excluded from
// tracking: metadata, hidden components, and .ignore matches.
func (s *Store) Ignored(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	for _, pat := range s.ignore {
		if ok, _ := path.Match(pat, rel); ok {
			return true
		}
		if ok, _ := path.Match(pat, path.Base(rel)); ok {
			return true
		}
		if strings.HasPrefix(rel, pat+"/") {
			return true
		}
	}
	return false
}

// relPath normalizes p to a slash-separated path relative to the root.
func (s *Store) relPath(op, p string) (string, error) {
	abs, err := s.fs.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := s.fs.Rel(abs)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	if s.Ignored(rel) {
		return "", apperr.New(apperr.ErrInvalidPath, op, "path is ignored: %s", p)
	}
	return rel, nil
}

// Track adds a file, or every file under a directory, to the tracked set.
// Tracking an already tracked path is a no-op.
func (s *Store) Track(p string) error {
	const op = "changestore: track"
	rel, err := s.relPath(op, p)
	if err != nil {
		return err
	}
	abs, _ := s.fs.Abs(rel)
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.WrapPath(apperr.ErrNotFound, op, p, err)
	}
	if err != nil {
		return apperr.WrapPath(apperr.ErrIO, op, p, err)
	}

	paths := []string{rel}
	if info.IsDir() {
		entries, err := s.fs.Walk(rel)
		if err != nil {
			return err
		}
		paths = paths[:0]
		for _, e := range entries {
			if !s.Ignored(e.Path) {
				paths = append(paths, e.Path)
			}
		}
	}

	tx, err := s.rw.Begin()
	if err != nil {
		return apperr.Wrap(apperr.ErrRepo, op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO inodes (inode, path) VALUES (?, ?)`)
	if err != nil {
		return apperr.Wrap(apperr.ErrRepo, op, err)
	}
	defer stmt.Close()
	for _, rp := range paths {
		if _, err := stmt.Exec(uuid.NewString(), rp); err != nil {
			return apperr.WrapPath(apperr.ErrRepo, op, rp, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.ErrRepo, op, err)
	}
	s.logger.Debug("changestore: tracked", "path", rel, "files", len(paths))
	return nil
}

// IsTracked reports whether p has a file identity.
func (s *Store) IsTracked(p string) (bool, error) {
	rel, err := s.relPath("changestore: is tracked", p)
	if err != nil {
		return false, err
	}
	var n int
	if err := s.ro.QueryRow(`SELECT COUNT(*) FROM inodes WHERE path = ?`, rel).Scan(&n); err != nil {
		return false, apperr.Wrap(apperr.ErrRepo, "changestore: is tracked", err)
	}
	return n > 0, nil
}
