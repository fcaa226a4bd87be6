// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the helpers shared by roomsync tests.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern for events delivered on another goroutine. Waits on limiter
// cooldowns and keep-alive intervals use a fake clock from lib/clock
// instead.
//
// [WriteFile] drops a fixture (config or replay script) into a test
// temp directory and returns its path.
//
// Helpers fail the test with t.Fatalf instead of returning errors.
package testutil
