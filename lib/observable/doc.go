// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package observable provides Cell, a single mutable value that
// notifies registered observers when it changes.
//
// A write that leaves the value equal to the current one is a no-op:
// observers are not called. Equality is == for comparable types
// ([New]) or a caller-supplied structural comparison ([NewFunc]) for
// slices, maps, and pointers to payload structs. Identity is never
// used as equality for reference-like payloads.
//
// Observers run synchronously on the goroutine that performed the
// write, after the cell's lock is released, in registration order. An
// observer may read the cell (or write another cell) without
// deadlocking.
package observable
