// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomservice

import (
	"fmt"

	"github.com/bureau-foundation/roomsync/remotevar"
)

// ParticipantOptions is the caller's own participant state sent with
// create and join calls.
type ParticipantOptions struct {
	ConnectionInfo string
	AllocationID   string
	Data           map[string]remotevar.DataObject
}

// CreateOptions configures a new room.
type CreateOptions struct {
	IsPrivate   bool
	IsLocked    bool
	Data        map[string]remotevar.DataObject
	Participant ParticipantOptions
}

// JoinOptions configures a join by id or code.
type JoinOptions struct {
	Participant ParticipantOptions
}

// QuickJoinOptions joins the first open room matching every filter.
type QuickJoinOptions struct {
	Filters     []QueryFilter
	Participant ParticipantOptions
}

// UpdateRoomOptions changes room fields. Nil fields are unchanged.
// Only the host may update a room.
type UpdateRoomOptions struct {
	Name            *string
	MaxParticipants *int
	IsPrivate       *bool
	IsLocked        *bool
	// HostID hands the host role to another participant.
	HostID *string
	Data   map[string]remotevar.DataObject
	// RemoveKeys deletes room data keys.
	RemoveKeys []string
}

// UpdateParticipantOptions changes a participant's own fields. Nil
// fields are unchanged.
type UpdateParticipantOptions struct {
	ConnectionInfo *string
	AllocationID   *string
	Data           map[string]remotevar.DataObject
	RemoveKeys     []string
}

// QueryField names a room attribute a query can filter or sort on.
type QueryField string

const (
	FieldName            QueryField = "name"
	FieldAvailableSlots  QueryField = "available_slots"
	FieldMaxParticipants QueryField = "max_participants"
	FieldLastUpdated     QueryField = "last_updated"
)

// IndexField is the query field for an indexed room data slot.
func IndexField(index remotevar.Index) QueryField {
	return QueryField(index.String())
}

// Index returns the data slot the field refers to, or NoIndex for
// built-in fields.
func (f QueryField) Index() remotevar.Index {
	index, err := remotevar.ParseIndex(string(f))
	if err != nil {
		return remotevar.NoIndex
	}
	return index
}

// Numeric reports whether the field compares as a number.
func (f QueryField) Numeric() bool {
	switch f {
	case FieldAvailableSlots, FieldMaxParticipants:
		return true
	}
	return f.Index().Numeric()
}

func (f QueryField) valid() bool {
	switch f {
	case FieldName, FieldAvailableSlots, FieldMaxParticipants, FieldLastUpdated:
		return true
	}
	return f.Index() != remotevar.NoIndex
}

// FilterOp compares a field to a filter value.
type FilterOp string

const (
	Equal          FilterOp = "eq"
	NotEqual       FilterOp = "ne"
	Less           FilterOp = "lt"
	LessOrEqual    FilterOp = "le"
	Greater        FilterOp = "gt"
	GreaterOrEqual FilterOp = "ge"
	// Contains matches a substring, for string fields only.
	Contains FilterOp = "contains"
)

// QueryFilter is one condition. Value is compared numerically for
// numeric fields and as a string otherwise.
type QueryFilter struct {
	Field QueryField
	Op    FilterOp
	Value string
}

// Validate checks the field and operator.
func (f QueryFilter) Validate() error {
	if !f.Field.valid() {
		return fmt.Errorf("roomservice: unknown query field %q", f.Field)
	}
	switch f.Op {
	case Equal, NotEqual, Less, LessOrEqual, Greater, GreaterOrEqual:
	case Contains:
		if f.Field.Numeric() {
			return fmt.Errorf("roomservice: %s does not apply to numeric field %s", f.Op, f.Field)
		}
	default:
		return fmt.Errorf("roomservice: unknown filter operator %q", f.Op)
	}
	return nil
}

// QueryOrder sorts results by one field.
type QueryOrder struct {
	Field      QueryField
	Descending bool
}

// QueryOptions selects rooms. Private and locked rooms never appear.
type QueryOptions struct {
	// Count caps the results. Zero means the service default.
	Count   int
	Skip    int
	Filters []QueryFilter
	Order   []QueryOrder
}
