// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manager drives one local participant's membership in a
// remote room.
//
// [Manager] wraps a [roomservice.Client] and a [mirror.Room]. Every
// outbound call goes through the [ratelimit.Limiter] for its operation
// class, so callers never see the service's rate-limit errors; they
// block until the window resets instead. Joining or creating a room
// binds the mirror to it: the mirror is filled from the returned
// snapshot, an event subscription keeps it current, and, while the
// local participant hosts the room, a [KeepAlive] loop stops the
// service from expiring it.
//
// Losing the room (deleted, kicked, or expired) tears the binding
// down: keep-alives stop, the subscription ends, and the mirror is
// reset. Nothing is retried.
package manager
