// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory is an in-process room service. It implements
// [roomservice.Client] for any number of participant identities
// against one shared [Service], with the same authorization,
// visibility, and event rules as the hosted service.
//
// Every mutation computes, for each subscriber, the snapshot that
// subscriber could see before and after the mutation and delivers the
// [roomservice.Diff] between them. Events for one subscription arrive
// in mutation order on that subscription's own goroutine.
//
// Rooms expire when the host stops sending keep-alives: [Service.Sweep]
// deletes every room whose last keep-alive is older than the TTL.
// Tests inject failures with [Service.FailNext].
package memory
