// Package identity loads the local signing identity and resolves public keys
// found in change headers to display identities.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/pelletier/go-toml/v2"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/storage"
)

const (
	// DefaultName is the identity used when none is configured.
	DefaultName = "default"
	// Algorithm is the only supported signing algorithm.
	Algorithm = "Ed25519"

	identityFile  = "identity.toml"
	secretKeyFile = "secret_key.json"
)

// PublicKey is the serialized form of a verification key.
type PublicKey struct {
	Version   int    `toml:"version" json:"version"`
	Algorithm string `toml:"algorithm" json:"algorithm"`
	Key       string `toml:"key" json:"key"`
}

type secretKey struct {
	Version   int    `json:"version"`
	Algorithm string `json:"algorithm"`
	Key       string `json:"key"`
}

// Identity is a display name and email bound to a key pair.
// The private key is optional; without it the identity can only be displayed.
type Identity struct {
	DisplayName string    `toml:"display_name" json:"display_name"`
	Email       string    `toml:"email" json:"email"`
	PublicKey   PublicKey `toml:"public_key" json:"public_key"`

	secret ed25519.PrivateKey
}

// Validate checks the identity fields and that the public key decodes.
func (id *Identity) Validate() error {
	err := validation.ValidateStruct(id,
		validation.Field(&id.DisplayName, validation.Required),
		validation.Field(&id.Email, validation.Required, is.Email),
	)
	if err != nil {
		return err
	}
	if id.PublicKey.Algorithm != Algorithm {
		return fmt.Errorf("unsupported key algorithm %q", id.PublicKey.Algorithm)
	}
	if _, err := decodePublic(id.PublicKey.Key); err != nil {
		return err
	}
	return nil
}

// Key returns the encoded public key used to reference this identity in change headers.
func (id *Identity) Key() string { return id.PublicKey.Key }

// CanSign reports whether the private key is loaded.
func (id *Identity) CanSign() bool { return len(id.secret) == ed25519.PrivateKeySize }

// Sign signs msg with the private key.
func (id *Identity) Sign(msg []byte) ([]byte, error) {
	if !id.CanSign() {
		return nil, apperr.New(apperr.ErrNotFound, "identity: sign", "no private key loaded for %s", id.Email)
	}
	return ed25519.Sign(id.secret, msg), nil
}

// Public returns a copy without the private key.
func (id *Identity) Public() *Identity {
	return &Identity{DisplayName: id.DisplayName, Email: id.Email, PublicKey: id.PublicKey}
}

// String renders the identity the way authors are displayed.
func (id *Identity) String() string {
	return fmt.Sprintf("%s <%s>", id.DisplayName, id.Email)
}

// Generate creates a new identity with a fresh ed25519 key pair.
func Generate(displayName, email string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	id := &Identity{
		DisplayName: displayName,
		Email:       email,
		PublicKey:   PublicKey{Algorithm: Algorithm, Key: checksum.Encoding.EncodeToString(pub)},
		secret:      priv,
	}
	if err := id.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.ErrContract, "identity: generate", err)
	}
	return id, nil
}

// DefaultDir returns <user config dir>/raido/identities/<name>.
func DefaultDir(name string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", apperr.Wrap(apperr.ErrIO, "identity: config dir", err)
	}
	if name == "" {
		name = DefaultName
	}
	return filepath.Join(base, "raido", "identities", name), nil
}

// LoadCurrent reads the local profile from dir. A missing secret key yields
// a display-only identity.
func LoadCurrent(dir string) (*Identity, error) {
	const op = "identity: load"
	path := filepath.Join(dir, identityFile)
	text, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.WrapPath(apperr.ErrNotFound, op, path, err)
	}
	if err != nil {
		return nil, apperr.WrapPath(apperr.ErrIO, op, path, err)
	}

	var id Identity
	if err := toml.Unmarshal(text, &id); err != nil {
		return nil, apperr.WrapPath(apperr.ErrDeserialization, op, path, err)
	}
	if err := id.Validate(); err != nil {
		return nil, apperr.WrapPath(apperr.ErrDeserialization, op, path, err)
	}

	secretPath := filepath.Join(dir, secretKeyFile)
	raw, err := os.ReadFile(secretPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &id, nil
	case err != nil:
		return nil, apperr.WrapPath(apperr.ErrIO, op, secretPath, err)
	}
	var sk secretKey
	if err := json.Unmarshal(raw, &sk); err != nil {
		return nil, apperr.WrapPath(apperr.ErrDeserialization, op, secretPath, err)
	}
	seed, err := checksum.Encoding.DecodeString(sk.Key)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, apperr.New(apperr.ErrDeserialization, op, "malformed secret key in %s", secretPath)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	if checksum.Encoding.EncodeToString(priv.Public().(ed25519.PublicKey)) != id.PublicKey.Key {
		return nil, apperr.New(apperr.ErrDeserialization, op, "secret key does not match public key in %s", path)
	}
	id.secret = priv
	return &id, nil
}

// Save writes identity.toml and, when present, secret_key.json into dir.
func (id *Identity) Save(dir string) error {
	const op = "identity: save"
	text, err := toml.Marshal(id)
	if err != nil {
		return apperr.Wrap(apperr.ErrContract, op, err)
	}
	if err := storage.WriteFileAtomic(filepath.Join(dir, identityFile), text, 0o644); err != nil {
		return apperr.WrapPath(apperr.ErrIO, op, dir, err)
	}
	if !id.CanSign() {
		return nil
	}
	raw, err := json.MarshalIndent(secretKey{
		Algorithm: Algorithm,
		Key:       checksum.Encoding.EncodeToString(id.secret.Seed()),
	}, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.ErrContract, op, err)
	}
	if err := storage.WriteFileAtomic(filepath.Join(dir, secretKeyFile), raw, 0o600); err != nil {
		return apperr.WrapPath(apperr.ErrIO, op, dir, err)
	}
	return nil
}

// Verify checks sig against msg for the encoded public key.
func Verify(publicKey string, msg, sig []byte) bool {
	pub, err := decodePublic(publicKey)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

func decodePublic(key string) (ed25519.PublicKey, error) {
	raw, err := checksum.Encoding.DecodeString(key)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("malformed public key %q", key)
	}
	return ed25519.PublicKey(raw), nil
}
