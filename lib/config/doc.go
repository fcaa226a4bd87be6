// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for roomsync.
//
// Configuration is loaded from a single file specified by either the
// ROOMSYNC_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no file discovery. Values absent from the
// file keep the [Default] values, which match the room service's
// published per-operation limits.
//
// The file supports environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Staging and production services tend
// to sit further away, so those sections usually raise the limit
// buffers.
//
// Key exports:
//
//   - [Config] -- limits table, keep-alive interval, room defaults
//   - [Operation] -- the rate-limited operation classes
//   - [Duration] -- a time.Duration that reads "1s" or "250ms" in YAML
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other roomsync packages.
package config
