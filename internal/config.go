package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/collate/internal/merge"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// DefaultDebounce is how long the watcher waits for quiet before rescanning.
const DefaultDebounce = 200 * time.Millisecond

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app" toml:"app"`
	Source SourceConfig      `yaml:"source" toml:"source"`
	Output OutputConfig      `yaml:"output" toml:"output"`
	Merge  MergeConfig       `yaml:"merge" toml:"merge"`
	Auth   AuthConfig        `yaml:"auth" toml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Output.Validate(); err != nil {
		return err
	}
	if err := c.Merge.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	HTTP     HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
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

// SourceConfig describes the directory the server loads at startup.
//
// Root may be empty, in which case the tree starts empty and is populated
// through the API.
type SourceConfig struct {
	Root             string        `yaml:"root" toml:"root"`
	RespectGitignore bool          `yaml:"respect_gitignore" toml:"respect_gitignore"`
	Watch            bool          `yaml:"watch" toml:"watch"`
	Debounce         time.Duration `yaml:"debounce" toml:"debounce"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(10*time.Millisecond), validation.Max(10*time.Second)),
		validation.Field(&c.Watch, validation.When(c.Root == "", validation.Empty.Error("requires source.root"))),
	)
}

// OutputConfig holds where merged files are written.
type OutputConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// Validate validates the output configuration.
func (c *OutputConfig) Validate() error {
	if c.Dir == "" {
		c.Dir = DefaultOutputDir()
	}
	return nil
}

// MergeConfig holds merge coordinator settings.
type MergeConfig struct {
	TeardownTimeout time.Duration `yaml:"teardown_timeout" toml:"teardown_timeout"`
}

// Validate validates the merge configuration.
func (c *MergeConfig) Validate() error {
	if c.TeardownTimeout == 0 {
		c.TeardownTimeout = merge.DefaultTeardownTimeout
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.TeardownTimeout, validation.Min(100*time.Millisecond), validation.Max(10*time.Second)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
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

// BearerToken returns the token to enforce, or "" when auth is disabled.
func (c *AuthConfig) BearerToken() string {
	if !c.AuthEnabled() {
		return ""
	}
	return c.Token
}

// DefaultOutputDir returns the user's Desktop when it exists, then the home
// directory, then the working directory.
func DefaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	desktop := filepath.Join(home, "Desktop")
	if fi, err := os.Stat(desktop); err == nil && fi.IsDir() {
		return desktop
	}
	return home
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Source: SourceConfig{
			RespectGitignore: true,
			Debounce:         DefaultDebounce,
		},
		Output: OutputConfig{
			Dir: DefaultOutputDir(),
		},
		Merge: MergeConfig{
			TeardownTimeout: merge.DefaultTeardownTimeout,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
