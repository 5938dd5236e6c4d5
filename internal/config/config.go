// Package config holds the daemon settings: built-in defaults, optionally
// overlaid by a YAML file, then by command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/press-logger/internal/broadcast"
	"github.com/sweeney/press-logger/internal/gpio"
	"github.com/sweeney/press-logger/internal/logic"
	"github.com/sweeney/press-logger/internal/queue"
	"github.com/sweeney/press-logger/internal/store"
	"github.com/sweeney/press-logger/internal/timesource"
)

// DefaultPath is where serve looks for a config file when --config is not given.
const DefaultPath = "/etc/press-logger.yaml"

// Config is the full daemon configuration.
type Config struct {
	Chip      string        `yaml:"chip"`
	Pin       int           `yaml:"pin"`
	Debounce  time.Duration `yaml:"debounce"`
	Poll      time.Duration `yaml:"poll"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables

	LogPath          string        `yaml:"log_path"`
	Sync             bool          `yaml:"sync"`
	QueueCapacity    int           `yaml:"queue_capacity"`
	AppendRetries    int           `yaml:"append_retries"`
	AppendRetryDelay time.Duration `yaml:"append_retry_delay"`

	Broker   string `yaml:"broker"` // empty or "off" disables MQTT
	ClientID string `yaml:"client_id"`

	HTTPAddr   string `yaml:"http_addr"` // empty disables HTTP
	MaxPending int    `yaml:"max_pending"`
	Timezone   string `yaml:"timezone"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Chip:             gpio.DefaultChip,
		Pin:              gpio.DefaultPin,
		Debounce:         logic.DefaultDebounce,
		Poll:             50 * time.Millisecond,
		Heartbeat:        15 * time.Minute,
		LogPath:          store.DefaultPath,
		Sync:             true,
		QueueCapacity:    queue.DefaultCapacity,
		AppendRetries:    0,
		AppendRetryDelay: 20 * time.Millisecond,
		Broker:           "off",
		ClientID:         "press-logger",
		HTTPAddr:         ":80",
		MaxPending:       broadcast.DefaultMaxPending,
		Timezone:         "Local",
	}
}

// Load returns Default overlaid with the YAML file at path. Keys absent from
// the file keep their default. A missing file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional is Load, except that a missing file yields Default.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// MQTTEnabled reports whether a broker is configured.
func (c Config) MQTTEnabled() bool {
	return c.Broker != "" && c.Broker != "off"
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	return timesource.LoadLocation(c.Timezone)
}

// Retry returns the append retry policy.
func (c Config) Retry() logic.RetryPolicy {
	return logic.RetryPolicy{Attempts: c.AppendRetries, Delay: c.AppendRetryDelay}
}

// Validate rejects settings the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Chip == "" {
		errs = append(errs, errors.New("chip must be set"))
	}
	if c.Pin < 0 {
		errs = append(errs, fmt.Errorf("pin %d must not be negative", c.Pin))
	}
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce %v must not be negative", c.Debounce))
	}
	if c.Poll <= 0 {
		errs = append(errs, fmt.Errorf("poll %v must be positive", c.Poll))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat %v must not be negative", c.Heartbeat))
	}
	if c.LogPath == "" {
		errs = append(errs, errors.New("log_path must be set"))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue_capacity %d must be at least 1", c.QueueCapacity))
	}
	if c.AppendRetries < 0 {
		errs = append(errs, fmt.Errorf("append_retries %d must not be negative", c.AppendRetries))
	}
	if c.AppendRetryDelay < 0 {
		errs = append(errs, fmt.Errorf("append_retry_delay %v must not be negative", c.AppendRetryDelay))
	}
	if c.MaxPending < 1 {
		errs = append(errs, fmt.Errorf("max_pending %d must be at least 1", c.MaxPending))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	return errors.Join(errs...)
}
