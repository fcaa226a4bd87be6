// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mirror keeps a local, observable copy of one remote room.
//
// A [Room] is built from two schemas: the room's declared variables
// (type R) and each participant's declared variables (type P). It is
// brought up to date either wholesale from a [roomservice.RoomSnapshot]
// ([Room.CopyFromSnapshot]) or incrementally from the sparse
// [roomservice.ChangeSet] pushed by the service ([Room.ApplyChangeSet]).
// Both are idempotent for the same input and never suspend.
//
// Every field is an observable cell, so writes that do not change a
// value notify nobody. Within one change set observers see room
// fields first, then room variables, then joins, then leaves, then
// per-participant changes.
//
// The local participant is a single object for the life of the Room.
// Whenever the service reports a participant with the local id, that
// object is placed in the list, so references held by UI code stay
// valid across resyncs.
//
// Reconciliation holds the Room's reconcile lock for its whole run, so
// observers must not call CopyFromSnapshot or ApplyChangeSet on the
// same Room. They may read anything.
package mirror
