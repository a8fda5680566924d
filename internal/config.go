package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/attune/internal/reading"
	"github.com/starford/attune/internal/scheduler"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Registry backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Auth      AuthConfig        `yaml:"auth"`
	Registry  RegistryConfig    `yaml:"registry"`
	Reading   ReadingConfig     `yaml:"reading"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
	Watch     WatchConfig       `yaml:"watch"`
	SSE       SSEConfig         `yaml:"sse"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Auth, &c.Registry, &c.Reading, &c.Scheduler, &c.Watch, &c.SSE,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RotationDefaults returns the scheduler config used for fields a start
// request leaves out.
func (c *Config) RotationDefaults() scheduler.Config {
	return scheduler.Config{
		DurationPerTarget: c.Scheduler.DurationPerTarget,
		TransitionPause:   c.Scheduler.TransitionPause,
		LinkReading:       c.Scheduler.LinkReading,
		ContinuousMode:    c.Scheduler.ContinuousMode,
		OnlyActive:        true,
		MinPriority:       c.Scheduler.MinPriority,
		Reading:           c.Reading.Params(),
	}
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

// RegistryConfig selects where targets are persisted.
type RegistryConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	// SeedFile is an optional YAML list of targets registered when the
	// registry is empty.
	SeedFile string `yaml:"seed_file"`
}

// Validate validates the registry configuration.
func (c *RegistryConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendFile
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendFile, BackendSQLite)),
		validation.Field(&c.Path, validation.Required),
	)
}

// ReadingConfig holds reading engine settings and the parameters of
// sessions the scheduler opens.
type ReadingConfig struct {
	HistorySize     int     `yaml:"history_size"`
	BaselineToneArm float64 `yaml:"baseline_tone_arm"`
	Sensitivity     float64 `yaml:"sensitivity"`
}

// Params returns the session parameters.
func (c *ReadingConfig) Params() reading.SessionParams {
	return reading.SessionParams{BaselineToneArm: c.BaselineToneArm, Sensitivity: c.Sensitivity}
}

// Validate validates the reading configuration.
func (c *ReadingConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.HistorySize, validation.Required, validation.Min(1), validation.Max(100000)),
	); err != nil {
		return err
	}
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("reading: %w", err)
	}
	return nil
}

// SchedulerConfig holds the worker heartbeat and rotation defaults.
type SchedulerConfig struct {
	Heartbeat         time.Duration `yaml:"heartbeat"`
	DurationPerTarget time.Duration `yaml:"duration_per_target"`
	TransitionPause   time.Duration `yaml:"transition_pause"`
	ContinuousMode    bool          `yaml:"continuous_mode"`
	LinkReading       bool          `yaml:"link_reading"`
	MinPriority       int           `yaml:"min_priority"`
}

// Validate validates the scheduler configuration.
func (c *SchedulerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Heartbeat, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.DurationPerTarget, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.TransitionPause, validation.Min(time.Duration(0))),
		validation.Field(&c.MinPriority, validation.Min(0), validation.Max(10)),
	)
}

// WatchConfig controls the locator watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
	Resync   time.Duration `yaml:"resync"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.Resync, validation.Min(time.Duration(0))),
	)
}

// SSEConfig controls the event stream.
type SSEConfig struct {
	// Throttle is the minimum gap between progress events of one rotation.
	Throttle time.Duration `yaml:"throttle"`
}

// Validate validates the SSE configuration.
func (c *SSEConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Throttle, validation.Min(time.Duration(0))),
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
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Registry: RegistryConfig{
			Backend: BackendFile,
			Path:    "./data/registry.json",
		},
		Reading: ReadingConfig{
			HistorySize:     reading.DefaultHistorySize,
			BaselineToneArm: 5,
			Sensitivity:     1,
		},
		Scheduler: SchedulerConfig{
			Heartbeat:         scheduler.DefaultHeartbeat,
			DurationPerTarget: 5 * time.Minute,
			TransitionPause:   3 * time.Second,
			LinkReading:       true,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 500 * time.Millisecond,
			Resync:   30 * time.Second,
		},
		SSE: SSEConfig{
			Throttle: 2 * time.Second,
		},
	}
}
