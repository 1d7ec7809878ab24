package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/rulesync/internal/opener"
	"github.com/starford/rulesync/internal/paths"
	"github.com/starford/rulesync/internal/resolver"
	"github.com/starford/rulesync/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Rules  RulesConfig       `yaml:"rules"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Open   OpenConfig        `yaml:"open"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Rules.Validate(); err != nil {
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
	if !c.HTTP.Enabled {
		return nil
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration. The server only runs in watch
// mode and only when Enabled is set.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// RulesConfig locates the shared store and the project rule folders.
type RulesConfig struct {
	SharedDir  string        `yaml:"shared_dir"`
	MarkerPath string        `yaml:"marker_path"`
	WatchRoots []string      `yaml:"watch_roots"`
	WatchGlob  string        `yaml:"watch_glob"`
	Debounce   time.Duration `yaml:"debounce"`
}

// Validate validates the rules configuration.
func (c *RulesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SharedDir, validation.Required),
		validation.Field(&c.MarkerPath, validation.Required, validation.By(relativePath)),
		validation.Field(&c.WatchGlob, validation.By(validGlob)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// Glob returns the watch glob, derived from the marker path when unset.
func (c *RulesConfig) Glob() string {
	if c.WatchGlob != "" {
		return c.WatchGlob
	}
	return watcher.GlobFor(c.MarkerPath)
}

// ResolvedSharedDir returns the absolute shared store directory.
func (c *RulesConfig) ResolvedSharedDir() (string, error) {
	return paths.Resolve(c.SharedDir)
}

// ResolvedWatchRoots returns the absolute watch roots.
func (c *RulesConfig) ResolvedWatchRoots() ([]string, error) {
	out := make([]string, 0, len(c.WatchRoots))
	for _, r := range c.WatchRoots {
		abs, err := paths.Resolve(r)
		if err != nil {
			return nil, fmt.Errorf("watch root %q: %w", r, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

func relativePath(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if filepath.IsAbs(s) {
		return errors.New("must be relative to the project directory")
	}
	return nil
}

func validGlob(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !doublestar.ValidatePattern(s) {
		return errors.New("must be a valid glob pattern")
	}
	return nil
}

// SQLiteConfig holds SQLite catalog configuration. An empty Path disables the catalog.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether the catalog should be opened.
func (c *SQLiteConfig) Enabled() bool {
	return c.Path != ""
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

// OpenConfig configures the external tool launched by the open command.
// "{dir}" in Command is replaced with the rule file's directory.
type OpenConfig struct {
	Command string `yaml:"command"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8484,
			},
		},
		Rules: RulesConfig{
			SharedDir:  paths.DefaultSharedDir,
			MarkerPath: resolver.DefaultMarkerPath,
			WatchRoots: []string{"."},
			Debounce:   watcher.DefaultDebounce,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Open: OpenConfig{
			Command: opener.DefaultCommand,
		},
	}
}
