package changestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/identity"
)

const hashDomain = "raido/change/v1"

// hashLen is the length of an encoded SHA-256 digest.
const hashLen = 52

// Hash identifies a change by the digest of its hashed part.
// The zero Hash means "no change".
type Hash string

// IsZero reports whether h is the empty hash.
func (h Hash) IsZero() bool { return h == "" }

// Short returns the first 8 characters of the hash.
func (h Hash) Short() string {
	if len(h) < 8 {
		return string(h)
	}
	return string(h[:8])
}

func (h Hash) String() string { return string(h) }

// ParseHash validates an encoded change hash.
func ParseHash(s string) (Hash, error) {
	if len(s) != hashLen {
		return "", apperr.New(apperr.ErrInvalidPath, "changestore: parse hash", "malformed change hash %q", s)
	}
	if _, err := checksum.Encoding.DecodeString(s); err != nil {
		return "", apperr.New(apperr.ErrInvalidPath, "changestore: parse hash", "malformed change hash %q", s)
	}
	return Hash(s), nil
}

// Op is the kind of mutation a hunk applies to one file.
type Op string

const (
	OpAdd    Op = "add"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
)

// AuthorRef references a signing identity by public key.
type AuthorRef struct {
	Key string `json:"key"`
}

// Header is the descriptive part of a change.
type Header struct {
	Message     string      `json:"message"`
	Description string      `json:"description,omitempty"`
	Authors     []AuthorRef `json:"authors"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Hunk is the line delta applied to one file identity.
type Hunk struct {
	Inode string `json:"inode"`
	Path  string `json:"path"`
	Op    Op     `json:"op"`
	Delta string `json:"delta"`
}

// Unhashed holds data excluded from the change hash.
type Unhashed struct {
	Signature []byte `json:"signature"`
}

// Change is an immutable, content-addressed record of one committed mutation.
type Change struct {
	Header       Header   `json:"header"`
	Dependencies []Hash   `json:"dependencies"`
	Hunks        []Hunk   `json:"hunks"`
	Unhashed     Unhashed `json:"unhashed"`
}

type hashedPart struct {
	Header       Header `json:"header"`
	Dependencies []Hash `json:"dependencies"`
	Hunks        []Hunk `json:"hunks"`
}

// Hash computes the content address of the change. The signature is not covered.
func (c *Change) Hash() (Hash, error) {
	data, err := json.Marshal(hashedPart{Header: c.Header, Dependencies: c.Dependencies, Hunks: c.Hunks})
	if err != nil {
		return "", fmt.Errorf("changestore: encode change: %w", err)
	}
	return Hash(checksum.DomainBase32(hashDomain, data)), nil
}

// Verify checks that the change hashes to want and that every author signed that hash.
func (c *Change) Verify(want Hash) error {
	const op = "changestore: verify"
	got, err := c.Hash()
	if err != nil {
		return apperr.Wrap(apperr.ErrRepo, op, err)
	}
	if got != want {
		return apperr.New(apperr.ErrRepo, op, "change hash mismatch: stored %s, computed %s", want.Short(), got.Short())
	}
	if len(c.Header.Authors) == 0 {
		return apperr.New(apperr.ErrRepo, op, "change %s has no authors", want.Short())
	}
	for _, a := range c.Header.Authors {
		if !identity.Verify(a.Key, []byte(want), c.Unhashed.Signature) {
			return apperr.New(apperr.ErrRepo, op, "bad signature on change %s", want.Short())
		}
	}
	return nil
}

// Apply reconstructs the new content of the file from its previous content.
func (h Hunk) Apply(old string) (string, error) {
	if h.Op == OpDelete {
		return "", nil
	}
	dmp := diffmatchpatch.New()
	diffs, err := dmp.DiffFromDelta(old, h.Delta)
	if err != nil {
		return "", apperr.WrapPath(apperr.ErrRepo, "changestore: apply hunk", h.Path, err)
	}
	return dmp.DiffText2(diffs), nil
}

// diffLines returns a line-mode delta turning old into new.
func diffLines(old, new string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(old, new)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	return dmp.DiffToDelta(diffs)
}
