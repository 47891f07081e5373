package identity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/raido/internal/apperr"
)

func TestGenerateSaveLoad(t *testing.T) {
	dir := t.TempDir()
	id, err := Generate("Ada Lovelace", "ada@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := id.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadCurrent(dir)
	if err != nil {
		t.Fatalf("LoadCurrent: %v", err)
	}
	if got.DisplayName != "Ada Lovelace" || got.Email != "ada@example.com" {
		t.Errorf("got %+v", got)
	}
	if got.Key() != id.Key() {
		t.Errorf("key = %s, want %s", got.Key(), id.Key())
	}
	if !got.CanSign() {
		t.Fatal("expected secret key to be loaded")
	}

	sig, err := got.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(id.Key(), []byte("payload"), sig) {
		t.Error("signature did not verify")
	}
	if Verify(id.Key(), []byte("tampered"), sig) {
		t.Error("tampered payload verified")
	}
}

func TestLoadCurrentMissing(t *testing.T) {
	_, err := LoadCurrent(t.TempDir())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadCurrentMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, identityFile), []byte("display_name = [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadCurrent(dir)
	if !errors.Is(err, apperr.ErrDeserialization) {
		t.Fatalf("err = %v, want ErrDeserialization", err)
	}
}

func TestLoadCurrentWithoutSecret(t *testing.T) {
	dir := t.TempDir()
	id, _ := Generate("Grace", "grace@example.com")
	if err := id.Public().Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadCurrent(dir)
	if err != nil {
		t.Fatalf("LoadCurrent: %v", err)
	}
	if got.CanSign() {
		t.Error("display-only identity should not sign")
	}
	if _, err := got.Sign([]byte("x")); err == nil {
		t.Error("expected error signing without a secret key")
	}
}

func TestGenerateRejectsBadEmail(t *testing.T) {
	_, err := Generate("Nobody", "not-an-email")
	if !errors.Is(err, apperr.ErrContract) {
		t.Fatalf("err = %v, want ErrContract", err)
	}
}

func TestResolver(t *testing.T) {
	cache := t.TempDir()
	me, _ := Generate("Me", "me@example.com")
	other, _ := Generate("Other", "other@example.com")

	r := NewResolver(me, cache)
	got, err := r.Resolve(me.Key())
	if err != nil || got.Email != "me@example.com" {
		t.Fatalf("Resolve(current) = %+v, %v", got, err)
	}
	if got.CanSign() {
		t.Error("resolved identity must not carry the secret key")
	}

	if _, err := r.Resolve(other.Key()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown key: err = %v, want ErrNotFound", err)
	}
	if err := r.Remember(other); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	got, err = r.Resolve(other.Key())
	if err != nil || got.DisplayName != "Other" {
		t.Fatalf("Resolve(cached) = %+v, %v", got, err)
	}

	if _, err := r.Resolve("../../etc/passwd"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("malformed key: err = %v, want ErrNotFound", err)
	}
}
