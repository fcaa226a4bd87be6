// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the roomsync CLI.
//
// A [Command] has a name, an optional [pflag.FlagSet] factory, nested
// [Command.Subcommands], and a Run function that receives the
// process context. [Command.Execute] parses flags, routes to
// subcommands, and prints help. Unknown commands and flags get a
// "did you mean" suggestion when an existing name is within edit
// distance 3.
//
// Commands write results to the writer they were constructed with so
// tests can capture them. Help goes to stderr, logs go to stderr
// through [NewCommandLogger], and errors are returned to main.
package cli
