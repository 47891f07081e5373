package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

func (c *testConfig) Validate() error {
	if c.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadKeepsDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("RAIDO_TEST_TOKEN", "s3cret")
	p := writeFile(t, "name: board\ntoken: ${RAIDO_TEST_TOKEN}\n")

	cfg := testConfig{Port: 8080}
	if err := Load(p, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "board" || cfg.Port != 8080 || cfg.Token != "s3cret" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadValidates(t *testing.T) {
	p := writeFile(t, "port: 0\n")
	cfg := testConfig{Port: 8080}
	err := Load(p, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg := testConfig{Port: 9000}
	if err := LoadOptional(missing, &cfg); err != nil {
		t.Fatalf("LoadOptional(missing): %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d, want defaults kept", cfg.Port)
	}

	var bad testConfig
	if err := LoadOptional(missing, &bad); err == nil {
		t.Error("defaults should still be validated")
	}

	p := writeFile(t, "port: 7000\n")
	if err := LoadOptional(p, &cfg); err != nil || cfg.Port != 7000 {
		t.Errorf("LoadOptional(existing) = %v, port %d", err, cfg.Port)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	def := writeFile(t, "port: 1234\n")
	var cfg testConfig
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"), def, &cfg); err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.Port != 1234 {
		t.Errorf("port = %d", cfg.Port)
	}
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"), "", &cfg); err == nil {
		t.Error("expected error without default file")
	}
}
