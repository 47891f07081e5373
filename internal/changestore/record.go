package changestore

import (
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
)

type trackedFile struct {
	inode    string
	path     string
	checksum string // pristine checksum, empty when not yet recorded
	content  string
	recorded bool
}

// Record diffs every tracked file against the channel state and commits the
// result as one signed change. When nothing changed it returns the zero Hash
// and creates no change.
func (s *Store) Record(message string) (Hash, error) {
	const op = "changestore: record"
	if strings.TrimSpace(message) == "" {
		return "", apperr.New(apperr.ErrContract, op, "change message is required")
	}
	if s.ident == nil {
		return "", apperr.New(apperr.ErrNotFound, op, "no signing identity configured")
	}

	tx, err := s.rw.Begin()
	if err != nil {
		return "", apperr.Wrap(apperr.ErrRepo, op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var seq int64
	if err := tx.QueryRow(`SELECT seq FROM channels WHERE name = ?`, s.channel).Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperr.NotFound(op, s.channel)
		}
		return "", apperr.Wrap(apperr.ErrRepo, op, err)
	}

	files, err := s.trackedFiles(tx)
	if err != nil {
		return "", err
	}
	type pending struct {
		hunk    Hunk
		content string
	}
	var changes []pending
	for _, f := range files {
		data, err := s.fs.Read(f.path)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			if f.recorded {
				changes = append(changes, pending{hunk: Hunk{Inode: f.inode, Path: f.path, Op: OpDelete, Delta: diffLines(f.content, "")}})
			}
			continue
		case err != nil:
			return "", err
		}
		sum := checksum.Sum(data)
		if f.recorded && sum == f.checksum {
			continue
		}
		hop := OpEdit
		if !f.recorded {
			hop = OpAdd
		}
		changes = append(changes, pending{
			hunk:    Hunk{Inode: f.inode, Path: f.path, Op: hop, Delta: diffLines(f.content, string(data))},
			content: string(data),
		})
	}
	if len(changes) == 0 {
		s.logger.Debug("changestore: nothing to record", "message", message)
		return "", nil
	}

	c := &Change{
		Header: Header{
			Message:   message,
			Authors:   []AuthorRef{{Key: s.ident.Key()}},
			Timestamp: s.now().UTC(),
		},
		Dependencies: []Hash{},
	}
	deps := map[Hash]struct{}{}
	for _, p := range changes {
		c.Hunks = append(c.Hunks, p.hunk)
		dep, err := lastChangeFor(tx, s.channel, p.hunk.Inode)
		if err != nil {
			return "", err
		}
		if !dep.IsZero() {
			deps[dep] = struct{}{}
		}
	}
	for d := range deps {
		c.Dependencies = append(c.Dependencies, d)
	}
	sort.Slice(c.Dependencies, func(i, j int) bool { return c.Dependencies[i] < c.Dependencies[j] })

	hash, err := c.Hash()
	if err != nil {
		return "", apperr.Wrap(apperr.ErrRepo, op, err)
	}
	if c.Unhashed.Signature, err = s.ident.Sign([]byte(hash)); err != nil {
		return "", err
	}
	if err := s.archive.put(hash, c); err != nil {
		return "", err
	}

	seq++
	if _, err := tx.Exec(`INSERT INTO log (channel, seq, hash) VALUES (?, ?, ?)`, s.channel, seq, string(hash)); err != nil {
		return "", apperr.Wrap(apperr.ErrRepo, op, err)
	}
	for _, p := range changes {
		if _, err := tx.Exec(`INSERT INTO touched (hash, inode) VALUES (?, ?)`, string(hash), p.hunk.Inode); err != nil {
			return "", apperr.Wrap(apperr.ErrRepo, op, err)
		}
		if p.hunk.Op == OpDelete {
			_, err = tx.Exec(`DELETE FROM tree WHERE channel = ? AND inode = ?`, s.channel, p.hunk.Inode)
		} else {
			_, err = tx.Exec(`
				INSERT INTO tree (channel, inode, checksum, content) VALUES (?, ?, ?, ?)
				ON CONFLICT(channel, inode) DO UPDATE SET
					checksum = excluded.checksum,
					content  = excluded.content
			`, s.channel, p.hunk.Inode, checksum.Sum([]byte(p.content)), p.content)
		}
		if err != nil {
			return "", apperr.WrapPath(apperr.ErrRepo, op, p.hunk.Path, err)
		}
	}
	if _, err := tx.Exec(`UPDATE channels SET head = ?, seq = ?, last_modified = ? WHERE name = ?`,
		string(hash), seq, c.Header.Timestamp.Unix(), s.channel); err != nil {
		return "", apperr.Wrap(apperr.ErrRepo, op, err)
	}
	if err := tx.Commit(); err != nil {
		return "", apperr.Wrap(apperr.ErrRepo, op, err)
	}

	if err := s.resolver.Remember(s.ident); err != nil {
		s.logger.Warn("changestore: cache author identity", "error", err)
	}
	s.logger.Debug("changestore: recorded", "hash", hash.Short(), "seq", seq, "hunks", len(c.Hunks), "message", message)
	return hash, nil
}

// trackedFiles loads every tracked file with its pristine state, ordered by path.
func (s *Store) trackedFiles(tx *sql.Tx) ([]trackedFile, error) {
	rows, err := tx.Query(`
		SELECT i.inode, i.path, t.checksum, t.content
		FROM inodes i
		LEFT JOIN tree t ON t.inode = i.inode AND t.channel = ?
		ORDER BY i.path
	`, s.channel)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrRepo, "changestore: tracked files", err)
	}
	defer rows.Close()

	var out []trackedFile
	for rows.Next() {
		var f trackedFile
		var sum, content sql.NullString
		if err := rows.Scan(&f.inode, &f.path, &sum, &content); err != nil {
			return nil, apperr.Wrap(apperr.ErrRepo, "changestore: tracked files", err)
		}
		f.recorded = sum.Valid
		f.checksum = sum.String
		f.content = content.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrRepo, "changestore: tracked files", err)
	}
	return out, nil
}

func lastChangeFor(tx *sql.Tx, channel, inode string) (Hash, error) {
	var h string
	err := tx.QueryRow(`
		SELECT l.hash FROM log l
		JOIN touched t ON t.hash = l.hash
		WHERE l.channel = ? AND t.inode = ?
		ORDER BY l.seq DESC LIMIT 1
	`, channel, inode).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Wrap(apperr.ErrRepo, "changestore: dependencies", err)
	}
	return Hash(h), nil
}
