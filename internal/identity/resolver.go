package identity

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/storage"
)

// Resolver maps public keys to identities: the current identity first,
// then the repository's cache of previously seen keys.
type Resolver struct {
	current  *Identity
	cacheDir string
}

// NewResolver returns a resolver backed by cacheDir (one JSON file per key).
// current may be nil.
func NewResolver(current *Identity, cacheDir string) *Resolver {
	return &Resolver{current: current, cacheDir: cacheDir}
}

// Current returns the injected identity, or nil.
func (r *Resolver) Current() *Identity { return r.current }

// Resolve returns the identity owning publicKey.
func (r *Resolver) Resolve(publicKey string) (*Identity, error) {
	const op = "identity: resolve"
	if r.current != nil && r.current.Key() == publicKey {
		return r.current.Public(), nil
	}
	if _, err := decodePublic(publicKey); err != nil {
		return nil, apperr.NotFound(op, publicKey)
	}
	raw, err := os.ReadFile(filepath.Join(r.cacheDir, publicKey))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound(op, publicKey)
	}
	if err != nil {
		return nil, apperr.WrapPath(apperr.ErrIO, op, publicKey, err)
	}
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, apperr.WrapPath(apperr.ErrDeserialization, op, publicKey, err)
	}
	if id.Key() != publicKey {
		return nil, apperr.New(apperr.ErrDeserialization, op, "cached identity key mismatch for %s", publicKey)
	}
	return &id, nil
}

// Remember stores the public part of id in the cache. Existing entries are kept.
func (r *Resolver) Remember(id *Identity) error {
	const op = "identity: remember"
	path := filepath.Join(r.cacheDir, id.Key())
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	raw, err := json.MarshalIndent(id.Public(), "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.ErrContract, op, err)
	}
	if err := storage.WriteFileAtomic(path, raw, 0o644); err != nil {
		return apperr.WrapPath(apperr.ErrIO, op, path, err)
	}
	return nil
}
