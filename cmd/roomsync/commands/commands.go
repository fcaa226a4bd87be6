// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the roomsync command tree.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/roomsync/cmd/roomsync/cli"
	"github.com/bureau-foundation/roomsync/lib/config"
)

// Root returns the command tree. Commands write their results to out.
func Root(out io.Writer) *cli.Command {
	return &cli.Command{
		Name: "roomsync",
		Description: `roomsync: client-side mirrors of rate-limited remote rooms.

Inspect the configured rate limits, replay recorded room updates into a
mirror, or simulate a host and several joiners against an in-process
room service.`,
		Subcommands: []*cli.Command{
			limitsCommand(out),
			replayCommand(out),
			simulateCommand(out),
		},
	}
}

// settingsFlags selects the configuration file.
type settingsFlags struct {
	path string
}

func (s *settingsFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&s.path, "config", "c", "", "roomsync.yaml to load (default $ROOMSYNC_CONFIG, else built-in limits)")
}

// load returns the --config file, the file named by ROOMSYNC_CONFIG,
// or the built-in defaults, in that order of preference.
func (s *settingsFlags) load() (*config.Config, error) {
	var (
		settings *config.Config
		err      error
	)
	switch {
	case s.path != "":
		settings, err = config.LoadFile(s.path)
	case os.Getenv("ROOMSYNC_CONFIG") != "":
		settings, err = config.Load()
	default:
		settings = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}
