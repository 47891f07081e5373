package changestore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/storage"
)

const changeExt = ".change"

// archive stores changes as <dir>/<first 2 chars>/<rest>.change.
type archive struct {
	dir string
}

func (a *archive) path(h Hash) string {
	return filepath.Join(a.dir, string(h[:2]), string(h[2:])+changeExt)
}

// put writes c under h. Changes are immutable, so an existing file is kept.
func (a *archive) put(h Hash, c *Change) error {
	const op = "changestore: archive put"
	p := a.path(h)
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return apperr.Wrap(apperr.ErrRepo, op, err)
	}
	if err := storage.WriteFileAtomic(p, data, 0o444); err != nil {
		return apperr.WrapPath(apperr.ErrIO, op, p, err)
	}
	return nil
}

func (a *archive) get(h Hash) (*Change, error) {
	const op = "changestore: archive get"
	if _, err := ParseHash(string(h)); err != nil {
		return nil, apperr.NotFound(op, string(h))
	}
	data, err := os.ReadFile(a.path(h))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound(op, string(h))
	}
	if err != nil {
		return nil, apperr.WrapPath(apperr.ErrIO, op, string(h), err)
	}
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, apperr.WrapPath(apperr.ErrDeserialization, op, string(h), err)
	}
	return &c, nil
}
