package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/identity"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/system"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Repo     RepoConfig        `yaml:"repo"`
	Identity IdentityConfig    `yaml:"identity"`
	Auth     AuthConfig        `yaml:"auth"`
	Watch    WatchConfig       `yaml:"watch"`
	Events   EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Repo.Validate(); err != nil {
		return err
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// RepoConfig locates the repository and its index.
type RepoConfig struct {
	// Path is the repository root; the .raido directory is searched upwards from it.
	Path string `yaml:"path"`
	// IndexPath overrides <root>/.db.sqlite.
	IndexPath string `yaml:"index_path"`
	MaxConns  int    `yaml:"max_conns"`
}

// Validate validates the repository configuration.
func (c *RepoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MaxConns, validation.Min(1)),
	)
}

// SystemOptions returns the system options implied by the repository settings.
func (c *RepoConfig) SystemOptions() []system.Option {
	var opts []system.Option
	if c.IndexPath != "" {
		opts = append(opts, system.WithIndexPath(c.IndexPath))
	}
	maxConns := c.MaxConns
	if maxConns == 0 {
		maxConns = index.DefaultMaxConns
	}
	return append(opts, system.WithMaxConns(maxConns))
}

// IdentityConfig selects the identity that signs changes.
type IdentityConfig struct {
	// Name picks a directory under the user config identities directory.
	Name string `yaml:"name"`
	// Dir overrides the identity directory entirely.
	Dir string `yaml:"dir"`
}

// Validate validates the identity configuration.
func (c *IdentityConfig) Validate() error {
	if c.Name == "" {
		c.Name = identity.DefaultName
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required, validation.By(func(any) error {
			if filepath.Base(c.Name) != c.Name {
				return fmt.Errorf("must be a single path element")
			}
			return nil
		})),
	)
}

// Directory returns the identity directory.
func (c *IdentityConfig) Directory() (string, error) {
	if c.Dir != "" {
		return c.Dir, nil
	}
	return identity.DefaultDir(c.Name)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// WatchConfig enables the working-copy watcher in serve mode.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EventsConfig tunes the SSE broker.
type EventsConfig struct {
	BoardThrottle time.Duration `yaml:"board_throttle"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 8080,
			},
		},
		Repo: RepoConfig{
			Path:     ".",
			MaxConns: index.DefaultMaxConns,
		},
		Identity: IdentityConfig{
			Name: identity.DefaultName,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Events: EventsConfig{
			BoardThrottle: 2 * time.Second,
		},
	}
}
