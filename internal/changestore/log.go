package changestore

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/starford/raido/internal/apperr"
)

// LogIter walks the changes that touched one file, most recent first.
// It owns the read transaction its cursor lives in; Close releases both.
// An exhausted iterator closes itself.
type LogIter struct {
	tx     *sql.Tx
	rows   *sql.Rows
	cur    Hash
	err    error
	closed bool
}

// Next advances the iterator.
func (it *LogIter) Next() bool {
	if it.closed {
		return false
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			it.err = apperr.Wrap(apperr.ErrRepo, "changestore: log", err)
		}
		it.Close()
		return false
	}
	var h string
	if err := it.rows.Scan(&h); err != nil {
		it.err = apperr.Wrap(apperr.ErrRepo, "changestore: log", err)
		it.Close()
		return false
	}
	it.cur = Hash(h)
	return true
}

// Hash returns the current change hash.
func (it *LogIter) Hash() Hash { return it.cur }

// Err returns the error that stopped iteration, if any.
func (it *LogIter) Err() error { return it.err }

// Close releases the cursor and its transaction. It is safe to call twice.
func (it *LogIter) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return errors.Join(it.rows.Close(), it.tx.Rollback())
}

// All adapts the iterator to a range-over-func sequence. Breaking out of the
// loop closes the iterator.
func (it *LogIter) All() iter.Seq2[Hash, error] {
	return func(yield func(Hash, error) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.cur, nil) {
				return
			}
		}
		if it.err != nil {
			yield("", it.err)
		}
	}
}

// Collect drains the iterator into a slice.
func (it *LogIter) Collect() ([]Hash, error) {
	var out []Hash
	for h, err := range it.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func inodeOf(q rowQuerier, op, rel string) (string, error) {
	var inode string
	err := q.QueryRow(`SELECT inode FROM inodes WHERE path = ?`, rel).Scan(&inode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound(op, rel)
	}
	if err != nil {
		return "", apperr.WrapPath(apperr.ErrRepo, op, rel, err)
	}
	return inode, nil
}

// ChangesForPath returns a fresh iterator over the changes touching the file
// currently at p. The file is followed by identity, not by name.
func (s *Store) ChangesForPath(p string) (*LogIter, error) {
	const op = "changestore: changes for path"
	rel, err := s.relPath(op, p)
	if err != nil {
		return nil, err
	}
	tx, err := s.ro.Begin()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrRepo, op, err)
	}
	inode, err := inodeOf(tx, op, rel)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}
	rows, err := tx.Query(`
		SELECT l.hash FROM log l
		JOIN touched t ON t.hash = l.hash
		WHERE l.channel = ? AND t.inode = ?
		ORDER BY l.seq DESC
	`, s.channel, inode)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, apperr.WrapPath(apperr.ErrRepo, op, rel, err)
	}
	return &LogIter{tx: tx, rows: rows}, nil
}

// FirstAndLastChange returns the oldest and newest change touching p.
// Both are equal when exactly one change exists.
func (s *Store) FirstAndLastChange(p string) (oldest, newest Hash, err error) {
	const op = "changestore: first and last change"
	rel, err := s.relPath(op, p)
	if err != nil {
		return "", "", err
	}
	tx, err := s.ro.Begin()
	if err != nil {
		return "", "", apperr.Wrap(apperr.ErrRepo, op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	inode, err := inodeOf(tx, op, rel)
	if err != nil {
		return "", "", err
	}
	var first, last sql.NullString
	err = tx.QueryRow(`
		SELECT
			(SELECT l.hash FROM log l JOIN touched t ON t.hash = l.hash
			 WHERE l.channel = ? AND t.inode = ? ORDER BY l.seq ASC LIMIT 1),
			(SELECT l.hash FROM log l JOIN touched t ON t.hash = l.hash
			 WHERE l.channel = ? AND t.inode = ? ORDER BY l.seq DESC LIMIT 1)
	`, s.channel, inode, s.channel, inode).Scan(&first, &last)
	if err != nil {
		return "", "", apperr.WrapPath(apperr.ErrRepo, op, rel, err)
	}
	if !first.Valid || !last.Valid {
		return "", "", apperr.NotFound(op, rel)
	}
	return Hash(first.String), Hash(last.String), nil
}

// Change reads a full change from the archive.
func (s *Store) Change(h Hash) (*Change, error) {
	return s.archive.get(h)
}

// Author is a change author resolved to a display identity when possible.
type Author struct {
	Key      string `json:"key"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Resolved bool   `json:"resolved"`
}

func (a Author) String() string {
	if !a.Resolved {
		k := a.Key
		if len(k) > 8 {
			k = k[:8]
		}
		return fmt.Sprintf("unknown author (%s)", k)
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// ChangeInfo is the header of a change with its authors resolved.
type ChangeInfo struct {
	Hash        Hash      `json:"hash"`
	Message     string    `json:"message"`
	Description string    `json:"description,omitempty"`
	Authors     []Author  `json:"authors"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChangeInfo loads the header of h and resolves its authors. Unknown keys
// yield placeholder authors rather than an error.
func (s *Store) ChangeInfo(h Hash) (ChangeInfo, error) {
	c, err := s.archive.get(h)
	if err != nil {
		return ChangeInfo{}, err
	}
	info := ChangeInfo{
		Hash:        h,
		Message:     c.Header.Message,
		Description: c.Header.Description,
		Timestamp:   c.Header.Timestamp,
	}
	for _, ref := range c.Header.Authors {
		a := Author{Key: ref.Key}
		id, err := s.resolver.Resolve(ref.Key)
		switch {
		case err == nil:
			a.Name, a.Email, a.Resolved = id.DisplayName, id.Email, true
		case errors.Is(err, apperr.ErrNotFound):
		default:
			s.logger.Warn("changestore: resolve author", "key", ref.Key, "error", err)
		}
		info.Authors = append(info.Authors, a)
	}
	return info, nil
}
