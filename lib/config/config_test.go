// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/roomsync/lib/testutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}

	if cfg.KeepAlive.Interval.Std() != 8*time.Second {
		t.Errorf("expected keep_alive.interval=8s, got %s", cfg.KeepAlive.Interval)
	}

	if cfg.Room.Capacity != 4 {
		t.Errorf("expected room.capacity=4, got %d", cfg.Room.Capacity)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestDefaultLimits(t *testing.T) {
	tests := []struct {
		operation Operation
		permits   int
		window    time.Duration
	}{
		{Query, 1, time.Second},
		{Create, 2, 6 * time.Second},
		{Join, 2, 6 * time.Second},
		{QuickJoin, 1, 10 * time.Second},
		{Get, 1, time.Second},
		{Delete, 2, time.Second},
		{UpdateRoom, 5, 5 * time.Second},
		{UpdateParticipant, 5, 5 * time.Second},
		{RemoveParticipant, 5, time.Second},
		{KeepAlive, 5, 30 * time.Second},
	}

	cfg := Default()
	for _, tt := range tests {
		limit := cfg.Limit(tt.operation)
		if limit.Permits != tt.permits || limit.Window.Std() != tt.window {
			t.Errorf("%s: got %d per %s, want %d per %s", tt.operation, limit.Permits, limit.Window, tt.permits, tt.window)
		}
	}

	// DefaultLimits hands out a fresh map each time.
	cfg.Limits[Query] = Limit{Permits: 99}
	if Default().Limit(Query).Permits != 1 {
		t.Error("mutating one config's limits leaked into Default")
	}
}

func TestLoad_RequiresRoomsyncConfig(t *testing.T) {
	t.Setenv("ROOMSYNC_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ROOMSYNC_CONFIG not set, got nil")
	}

	expectedMsg := "ROOMSYNC_CONFIG environment variable not set"
	if !strings.HasPrefix(err.Error(), expectedMsg) {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithRoomsyncConfig(t *testing.T) {
	configPath := testutil.WriteFile(t, "roomsync.yaml", `
environment: staging
keep_alive:
  interval: 5s
`)
	t.Setenv("ROOMSYNC_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.KeepAlive.Interval.Std() != 5*time.Second {
		t.Errorf("expected interval=5s, got %s", cfg.KeepAlive.Interval)
	}
}

func TestLoadFile_MergesLimits(t *testing.T) {
	configPath := testutil.WriteFile(t, "roomsync.yaml", `
limits:
  query:
    buffer: 250ms
  update_room:
    permits: 3
    window: 2s
room:
  capacity: 8
  private: true
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	query := cfg.Limit(Query)
	if query.Permits != 1 || query.Window.Std() != time.Second || query.Buffer.Std() != 250*time.Millisecond {
		t.Errorf("query limit = %+v, want defaults with a 250ms buffer", query)
	}

	update := cfg.Limit(UpdateRoom)
	if update.Permits != 3 || update.Window.Std() != 2*time.Second {
		t.Errorf("update_room limit = %+v", update)
	}

	if cfg.Limit(Create).Permits != 2 {
		t.Error("operation absent from the file lost its default")
	}

	if cfg.Room.Capacity != 8 || !cfg.Room.Private {
		t.Errorf("room = %+v", cfg.Room)
	}
}

func TestLoadFile_BadDuration(t *testing.T) {
	configPath := testutil.WriteFile(t, "roomsync.yaml", `
keep_alive:
  interval: eight seconds
`)
	if _, err := LoadFile(configPath); err == nil {
		t.Fatal("expected a parse error for an invalid duration")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/roomsync.yaml"); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := testutil.WriteFile(t, "roomsync.yaml", `
environment: production

keep_alive:
  interval: 8s

room:
  private: true

development:
  keep_alive:
    interval: 1s

production:
  limits:
    join:
      buffer: 500ms
  keep_alive:
    interval: 10s
  room:
    capacity: 16
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.KeepAlive.Interval.Std() != 10*time.Second {
		t.Errorf("expected interval=10s from production override, got %s", cfg.KeepAlive.Interval)
	}

	join := cfg.Limit(Join)
	if join.Permits != 2 || join.Buffer.Std() != 500*time.Millisecond {
		t.Errorf("join limit = %+v, want default permits with a 500ms buffer", join)
	}

	if cfg.Room.Capacity != 16 {
		t.Errorf("expected capacity=16, got %d", cfg.Room.Capacity)
	}

	// Private is a bool and the override section omits it.
	if cfg.Room.Private {
		t.Error("expected private=false from production override")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid environment",
			modify:  func(c *Config) { c.Environment = "invalid" },
			wantErr: "invalid environment",
		},
		{
			name:    "zero permits",
			modify:  func(c *Config) { c.Limits[Join] = Limit{Window: Duration(time.Second)} },
			wantErr: "limits.join.permits",
		},
		{
			name:    "zero window",
			modify:  func(c *Config) { c.Limits[Get] = Limit{Permits: 1} },
			wantErr: "limits.get.window",
		},
		{
			name:    "missing operation",
			modify:  func(c *Config) { delete(c.Limits, KeepAlive) },
			wantErr: "limits.keep_alive is required",
		},
		{
			name:    "unknown operation",
			modify:  func(c *Config) { c.Limits["teleport"] = Limit{Permits: 1, Window: Duration(time.Second)} },
			wantErr: "unknown operation",
		},
		{
			name:    "zero interval",
			modify:  func(c *Config) { c.KeepAlive.Interval = 0 },
			wantErr: "keep_alive.interval",
		},
		{
			name:    "zero capacity",
			modify:  func(c *Config) { c.Room.Capacity = 0 },
			wantErr: "room.capacity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
