// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit bounds how many calls of one operation class start
// per cooldown window.
//
// A [Limiter] holds a budget of permits. Each admitted call takes one.
// When a call finishes and no cooldown is running, the limiter enters
// its cooldown: after Window+Buffer on the injected clock the full
// budget is restored. Callers that find the budget empty block until
// the window resets or their context ends. Exhaustion is never an
// error.
//
// The room service publishes one such budget per operation, so the
// manager keeps one Limiter per operation class.
package ratelimit
