// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomservice

import (
	"maps"
	"time"

	"github.com/bureau-foundation/roomsync/remotevar"
)

// RoomSnapshot is the full state of a room as one caller may see it.
// Data the caller is not allowed to read is absent.
type RoomSnapshot struct {
	ID              string
	Code            string
	Name            string
	HostID          string
	IsPrivate       bool
	IsLocked        bool
	MaxParticipants int
	AvailableSlots  int
	Created         time.Time
	LastUpdated     time.Time
	Data            map[string]remotevar.DataObject
	Participants    []ParticipantSnapshot

	// Version counts the room's mutations. A ChangeSet with the same
	// or a lower Version is already reflected in this snapshot. Zero
	// means the service does not version rooms.
	Version int
}

// ParticipantSnapshot is the full state of one participant.
type ParticipantSnapshot struct {
	ID             string
	ConnectionInfo string
	AllocationID   string
	Joined         time.Time
	LastUpdated    time.Time
	Data           map[string]remotevar.DataObject
}

// Clone returns a deep copy.
func (s *RoomSnapshot) Clone() *RoomSnapshot {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Data = maps.Clone(s.Data)
	clone.Participants = make([]ParticipantSnapshot, len(s.Participants))
	for i, participant := range s.Participants {
		clone.Participants[i] = participant.Clone()
	}
	return &clone
}

// Clone returns a deep copy.
func (p ParticipantSnapshot) Clone() ParticipantSnapshot {
	p.Data = maps.Clone(p.Data)
	return p
}

// RoomSummary is one query result. Only public data is included.
type RoomSummary struct {
	ID              string
	Name            string
	HostID          string
	IsLocked        bool
	MaxParticipants int
	AvailableSlots  int
	LastUpdated     time.Time
	Data            map[string]remotevar.DataObject
}

// Change is one scalar field of a ChangeSet. Value is meaningful only
// when Changed is true.
type Change[T any] struct {
	Changed bool
	Value   T
}

// Set returns a Change carrying value.
func Set[T any](value T) Change[T] {
	return Change[T]{Changed: true, Value: value}
}

// ValueChange is one key of a sparse data map: either a new value or
// a removal.
type ValueChange struct {
	Removed bool
	Value   remotevar.DataObject
}

// DataChanges maps changed keys to their new values or removals.
type DataChanges map[string]ValueChange

// JoinedParticipant is a participant inserted at Index.
type JoinedParticipant struct {
	Index       int
	Participant ParticipantSnapshot
}

// ParticipantChanges is the sparse change to one existing participant.
type ParticipantChanges struct {
	ConnectionInfo Change[string]
	AllocationID   Change[string]
	LastUpdated    Change[time.Time]
	Data           Change[DataChanges]
}

// Empty reports whether nothing changed.
func (c ParticipantChanges) Empty() bool {
	return !c.ConnectionInfo.Changed && !c.AllocationID.Changed &&
		!c.LastUpdated.Changed && !c.Data.Changed
}

// ChangeSet is one sparse update pushed to subscribers. Apply order is
// room fields, room data, joins, leaves, then participant changes.
// Participant indices in Participants refer to the list after joins
// and leaves.
type ChangeSet struct {
	// Version is the room version this change set produces.
	Version         int
	Name            Change[string]
	IsPrivate       Change[bool]
	IsLocked        Change[bool]
	MaxParticipants Change[int]
	HostID          Change[string]
	AvailableSlots  Change[int]
	LastUpdated     Change[time.Time]
	Data            Change[DataChanges]
	Joined          []JoinedParticipant
	Left            []int
	Participants    map[int]ParticipantChanges
}

// Empty reports whether the change set changes nothing.
func (c *ChangeSet) Empty() bool {
	if c.Name.Changed || c.IsPrivate.Changed || c.IsLocked.Changed ||
		c.MaxParticipants.Changed || c.HostID.Changed || c.AvailableSlots.Changed ||
		c.LastUpdated.Changed || c.Data.Changed || len(c.Joined) > 0 || len(c.Left) > 0 {
		return false
	}
	for _, changes := range c.Participants {
		if !changes.Empty() {
			return false
		}
	}
	return true
}

// ConnectionState is the state of an event subscription.
type ConnectionState int

const (
	Unsubscribed ConnectionState = iota
	Subscribing
	Subscribed
	// Unsynced means events may have been missed; fetch a snapshot.
	Unsynced
	Failed
)

func (s ConnectionState) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case Unsynced:
		return "unsynced"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventHandlers receives a subscription's events. Nil handlers are
// skipped. Handlers for one subscription are called sequentially in
// event order.
type EventHandlers struct {
	RoomChanged            func(changes *ChangeSet)
	RoomDeleted            func()
	ConnectionStateChanged func(state ConnectionState)
	Kicked                 func()
}

// Subscription is a live event subscription.
type Subscription interface {
	// Unsubscribe stops delivery. No handler is called after it
	// returns.
	Unsubscribe() error
}
