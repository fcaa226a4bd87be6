// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/roomsync/cmd/roomsync/cli"
	"github.com/bureau-foundation/roomsync/lib/config"
)

type limitsParams struct {
	cli.OutputFlags
	settings settingsFlags
}

// limitRow is one operation's limit in --json output.
type limitRow struct {
	Operation string  `json:"operation"`
	Permits   int     `json:"permits"`
	Window    string  `json:"window"`
	Buffer    string  `json:"buffer"`
	PerSecond float64 `json:"per_second"`
}

func limitsCommand(out io.Writer) *cli.Command {
	var params limitsParams
	return &cli.Command{
		Name:    "limits",
		Summary: "Show the rate limit for every operation",
		Description: `Show how many calls of each operation may start per window, after
loading the configuration file and applying its environment section.

A limiter admits at most Permits calls, then blocks further calls until
Window plus Buffer has passed since the first call of the burst.`,
		Usage: "roomsync limits [flags]",
		Examples: []cli.Example{
			{Description: "Show the built-in limits", Command: "roomsync limits"},
			{Description: "Show limits from a file as JSON", Command: "roomsync limits --config roomsync.yaml --json"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("limits", pflag.ContinueOnError)
			params.OutputFlags.AddFlags(flagSet)
			params.settings.AddFlags(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: roomsync limits [flags]")
			}
			settings, err := params.settings.load()
			if err != nil {
				return err
			}
			rows := limitRows(settings)
			if done, err := params.EmitJSON(out, rows); done {
				return err
			}

			limits := newTable("Operation", "Permits", "Window", "Buffer", "Calls/s")
			for _, row := range rows {
				limits.Row(row.Operation, strconv.Itoa(row.Permits), row.Window, row.Buffer,
					strconv.FormatFloat(row.PerSecond, 'f', 2, 64))
			}
			title := fmt.Sprintf("Rate limits (%s)", settings.Environment)
			_, err = fmt.Fprintf(out, "%s\n%s\nKeep-alive interval: %s\n",
				titleStyle.Render(title), limits.Render(), settings.KeepAlive.Interval)
			return err
		},
	}
}

func limitRows(settings *config.Config) []limitRow {
	rows := make([]limitRow, 0, len(config.Operations()))
	for _, operation := range config.Operations() {
		limit := settings.Limit(operation)
		period := limit.Window.Std() + limit.Buffer.Std()
		rows = append(rows, limitRow{
			Operation: string(operation),
			Permits:   limit.Permits,
			Window:    limit.Window.String(),
			Buffer:    limit.Buffer.String(),
			PerSecond: float64(limit.Permits) / period.Seconds(),
		})
	}
	return rows
}
