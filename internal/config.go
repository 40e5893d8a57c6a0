package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/strata/internal/timeline"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Timeline TimelineConfig    `yaml:"timeline"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Watch    WatchConfig       `yaml:"watch"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Timeline.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
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
	Port int `yaml:"port"`
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

// TimelineConfig holds aggregation settings.
type TimelineConfig struct {
	ExcludedSources    []string      `yaml:"excluded_sources"`
	InitialPageSize    int           `yaml:"initial_page_size"`
	PageSize           int           `yaml:"page_size"`
	RefreshDebounce    time.Duration `yaml:"refresh_debounce"`
	LoadingDelay       time.Duration `yaml:"loading_delay"`
	UnsupportedSchemes []string      `yaml:"unsupported_schemes"`
	FetchRatePerSecond float64       `yaml:"fetch_rate_per_second"`
	FetchBurst         int           `yaml:"fetch_burst"`
}

// Validate validates the timeline configuration.
func (c *TimelineConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.InitialPageSize, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.PageSize, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.RefreshDebounce, validation.Min(time.Duration(0))),
		validation.Field(&c.LoadingDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.FetchRatePerSecond, validation.Min(0.0)),
		validation.Field(&c.FetchBurst, validation.Min(0)),
		validation.Field(&c.ExcludedSources, validation.Each(validation.Required)),
	)
}

// Options converts c into controller options.
func (c *TimelineConfig) Options(logger *slog.Logger) timeline.Options {
	return timeline.Options{
		InitialPageSize:    c.InitialPageSize,
		PageSize:           c.PageSize,
		RefreshDebounce:    c.RefreshDebounce,
		LoadingDelay:       c.LoadingDelay,
		ExcludedSources:    c.ExcludedSources,
		UnsupportedSchemes: c.UnsupportedSchemes,
		Logger:             logger,
	}
}

// WatchConfig holds the file-system events source configuration.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Root     string `yaml:"root"`
	Capacity int    `yaml:"capacity"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Capacity, validation.Min(0)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Timeline: TimelineConfig{
			InitialPageSize: timeline.DefaultInitialPageSize,
			PageSize:        timeline.DefaultPageSize,
			RefreshDebounce: timeline.DefaultRefreshDebounce,
			LoadingDelay:    timeline.DefaultLoadingDelay,
			FetchBurst:      4,
		},
		SQLite: SQLiteConfig{
			Path: "./strata.db",
		},
		Watch: WatchConfig{
			Enabled: true,
			Root:    ".",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
