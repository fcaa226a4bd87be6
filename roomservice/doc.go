// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package roomservice defines the contract between the room mirror and
// a remote room service: the [Client] interface, the full-state
// [RoomSnapshot] returned by calls, the sparse [ChangeSet] pushed to
// subscribers, and the structured [ServiceError].
//
// Custom data on rooms and participants travels as
// [remotevar.DataObject] values keyed by variable key. The wire
// encoding and transport are the implementation's business; the
// in-memory implementation in roomservice/memory serves tests and the
// simulator.
//
// A ChangeSet is sparse. Every scalar field is wrapped in a [Change]
// that says whether the field changed, and only changed keys appear in
// data maps. Joined participants carry their full snapshot and the
// slot they were inserted at; left participants are indices, applied
// in order against the list as it stands after the joins.
package roomservice
