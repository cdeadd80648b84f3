// Package config loads the YAML configuration of a request strategy client.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wireapp/go-request-strategy/pkg/appstatus"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
)

// Defaults.
const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultLogLevel       = "info"
	DefaultPageSize       = 500
)

// ErrInvalid marks validation failures.
var ErrInvalid = errors.New("invalid configuration")

// LoadError describes a failure to load a configuration file.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Backend configures the connection to the backend.
type Backend struct {
	URL            string        `yaml:"url"`
	ClientID       string        `yaml:"client_id"`
	TeamID         string        `yaml:"team_id"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Logging configures operational and event logging.
type Logging struct {
	Level    string `yaml:"level"`
	EventLog string `yaml:"event_log"`
}

// InitialStatus is the application status at startup.
type InitialStatus struct {
	Sync       string `yaml:"sync"`
	Background bool   `yaml:"background"`
}

// NotificationStream configures the notification stream sync.
type NotificationStream struct {
	PageSize int `yaml:"page_size"`
}

// Config is the complete client configuration.
type Config struct {
	Backend            Backend            `yaml:"backend"`
	Logging            Logging            `yaml:"logging"`
	StateFile          string             `yaml:"state_file"`
	InitialStatus      InitialStatus      `yaml:"initial_status"`
	NotificationStream NotificationStream `yaml:"notification_stream"`

	// Strategies overrides built-in strategy configurations by name.
	Strategies strategy.Registry `yaml:"strategies"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Message: "validation failed", Cause: err}
	}
	return cfg, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = DefaultRequestTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.InitialStatus.Sync == "" {
		c.InitialStatus.Sync = "unauthenticated"
	}
	if c.NotificationStream.PageSize == 0 {
		c.NotificationStream.PageSize = DefaultPageSize
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Backend.URL != "" {
		u, err := url.Parse(c.Backend.URL)
		if err != nil {
			return fmt.Errorf("%w: backend url: %v", ErrInvalid, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: backend url must be http or https, got %q", ErrInvalid, c.Backend.URL)
		}
	}
	if c.Backend.RequestTimeout < 0 {
		return fmt.Errorf("%w: request_timeout must not be negative", ErrInvalid)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := appstatus.ParseSyncState(c.InitialStatus.Sync); err != nil {
		return fmt.Errorf("%w: initial_status.sync: %v", ErrInvalid, err)
	}
	if c.NotificationStream.PageSize < 1 || c.NotificationStream.PageSize > 10000 {
		return fmt.Errorf("%w: notification_stream.page_size must be 1-10000, got %d", ErrInvalid, c.NotificationStream.PageSize)
	}
	if err := c.Strategies.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.Logging.Level)
	}
}

// Status returns the initial application status.
func (c *Config) Status() appstatus.Status {
	s, _ := appstatus.ParseSyncState(c.InitialStatus.Sync)
	st := appstatus.Status{SyncState: s}
	if c.InitialStatus.Background {
		st.OperationState = appstatus.OperationStateBackground
	}
	return st
}
