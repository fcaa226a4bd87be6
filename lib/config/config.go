// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development against a test service.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Operation names one class of room service call. Each class has its
// own independent limit.
type Operation string

const (
	Query             Operation = "query"
	Create            Operation = "create"
	Join              Operation = "join"
	QuickJoin         Operation = "quick_join"
	Get               Operation = "get"
	Delete            Operation = "delete"
	UpdateRoom        Operation = "update_room"
	UpdateParticipant Operation = "update_participant"
	RemoveParticipant Operation = "remove_participant"
	KeepAlive         Operation = "keep_alive"
	Subscribe         Operation = "subscribe"
)

// Operations lists every operation class in a stable order.
func Operations() []Operation {
	return []Operation{
		Query, Create, Join, QuickJoin, Get, Delete,
		UpdateRoom, UpdateParticipant, RemoveParticipant, KeepAlive, Subscribe,
	}
}

// Duration is a time.Duration written in YAML as a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"1s\": %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Limit is one operation class's budget: Permits calls per Window,
// with Buffer added to the window to absorb latency.
type Limit struct {
	Permits int      `yaml:"permits"`
	Window  Duration `yaml:"window"`
	Buffer  Duration `yaml:"buffer"`
}

// Config is the master configuration for roomsync.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Limits maps each operation class to its budget. Classes absent
	// from the file keep their defaults.
	Limits map[Operation]Limit `yaml:"limits"`

	// KeepAlive configures the host's keep-alive loop.
	KeepAlive KeepAliveConfig `yaml:"keep_alive"`

	// Room holds defaults for rooms this process creates.
	Room RoomConfig `yaml:"room"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Limits    map[Operation]Limit `yaml:"limits,omitempty"`
	KeepAlive *KeepAliveConfig    `yaml:"keep_alive,omitempty"`
	Room      *RoomConfig         `yaml:"room,omitempty"`
}

// KeepAliveConfig configures the keep-alive loop.
type KeepAliveConfig struct {
	// Interval is the wait between keep-alives. The service expires
	// rooms after 30s without one.
	// Default: 8s
	Interval Duration `yaml:"interval"`
}

// RoomConfig holds defaults applied to newly created rooms.
type RoomConfig struct {
	// Capacity is the default maximum number of participants.
	// Default: 4
	Capacity int `yaml:"capacity"`

	// Private hides new rooms from queries.
	// Default: false
	Private bool `yaml:"private"`
}

// Default returns the default configuration. The limit table matches
// the room service's published rate limits.
func Default() *Config {
	return &Config{
		Environment: Development,
		Limits:      DefaultLimits(),
		KeepAlive: KeepAliveConfig{
			Interval: Duration(8 * time.Second),
		},
		Room: RoomConfig{
			Capacity: 4,
		},
	}
}

// DefaultLimits returns a fresh copy of the service's published
// limits.
func DefaultLimits() map[Operation]Limit {
	limit := func(permits int, window time.Duration) Limit {
		return Limit{Permits: permits, Window: Duration(window)}
	}
	return map[Operation]Limit{
		Query:             limit(1, time.Second),
		Create:            limit(2, 6*time.Second),
		Join:              limit(2, 6*time.Second),
		QuickJoin:         limit(1, 10*time.Second),
		Get:               limit(1, time.Second),
		Delete:            limit(2, time.Second),
		UpdateRoom:        limit(5, 5*time.Second),
		UpdateParticipant: limit(5, 5*time.Second),
		RemoveParticipant: limit(5, time.Second),
		KeepAlive:         limit(5, 30*time.Second),
		Subscribe:         limit(1, time.Second),
	}
}

// Load loads configuration from the ROOMSYNC_CONFIG environment
// variable. If it is not set, Load fails; there is no fallback.
func Load() (*Config, error) {
	configPath := os.Getenv("ROOMSYNC_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("ROOMSYNC_CONFIG environment variable not set; " +
			"set it to the path of your roomsync.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path on top of
// Default, then applies the section for the configured environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// yaml.v3 decodes each map entry into a zero Limit, so decode the
	// file's limits separately and merge them field by field.
	defaults := c.Limits
	c.Limits = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	c.Limits = mergeLimits(defaults, c.Limits)
	return nil
}

func mergeLimits(base, overrides map[Operation]Limit) map[Operation]Limit {
	merged := make(map[Operation]Limit, len(base)+len(overrides))
	for operation, limit := range base {
		merged[operation] = limit
	}
	for operation, limit := range overrides {
		current := merged[operation]
		if limit.Permits != 0 {
			current.Permits = limit.Permits
		}
		if limit.Window != 0 {
			current.Window = limit.Window
		}
		if limit.Buffer != 0 {
			current.Buffer = limit.Buffer
		}
		merged[operation] = current
	}
	return merged
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Limits != nil {
		c.Limits = mergeLimits(c.Limits, overrides.Limits)
	}

	if overrides.KeepAlive != nil && overrides.KeepAlive.Interval != 0 {
		c.KeepAlive.Interval = overrides.KeepAlive.Interval
	}

	if overrides.Room != nil {
		if overrides.Room.Capacity != 0 {
			c.Room.Capacity = overrides.Room.Capacity
		}
		// Private is a bool, so we always apply it from overrides.
		c.Room.Private = overrides.Room.Private
	}
}

// Limit returns the budget for operation. Unknown operations get the
// zero Limit, which Validate rejects.
func (c *Config) Limit(operation Operation) Limit {
	return c.Limits[operation]
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	known := Operations()
	for _, operation := range known {
		limit, ok := c.Limits[operation]
		if !ok {
			errs = append(errs, fmt.Errorf("limits.%s is required", operation))
			continue
		}
		if limit.Permits <= 0 {
			errs = append(errs, fmt.Errorf("limits.%s.permits must be positive", operation))
		}
		if limit.Window <= 0 {
			errs = append(errs, fmt.Errorf("limits.%s.window must be positive", operation))
		}
		if limit.Buffer < 0 {
			errs = append(errs, fmt.Errorf("limits.%s.buffer must not be negative", operation))
		}
	}
	for operation := range c.Limits {
		if !slices.Contains(known, operation) {
			errs = append(errs, fmt.Errorf("limits.%s: unknown operation", operation))
		}
	}

	if c.KeepAlive.Interval <= 0 {
		errs = append(errs, fmt.Errorf("keep_alive.interval must be positive"))
	}

	if c.Room.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("room.capacity must be positive"))
	}

	return errors.Join(errs...)
}
