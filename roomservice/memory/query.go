// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
)

const (
	defaultQueryCount = 10
	maxQueryCount     = 100
)

// fieldValue returns r's value for field as a string and, for numeric
// fields, a number. ok is false when the room has no public data in
// the field's index slot.
func (r *room) fieldValue(field roomservice.QueryField) (text string, number float64, ok bool) {
	switch field {
	case roomservice.FieldName:
		return r.name, 0, true
	case roomservice.FieldAvailableSlots:
		slots := r.availableSlots()
		return strconv.Itoa(slots), float64(slots), true
	case roomservice.FieldMaxParticipants:
		return strconv.Itoa(r.capacity), float64(r.capacity), true
	case roomservice.FieldLastUpdated:
		return r.updated.UTC().Format(time.RFC3339Nano), 0, true
	}

	index := field.Index()
	for _, value := range r.data {
		if value.Index != index || value.Visibility != remotevar.Public {
			continue
		}
		if !index.Numeric() {
			return value.Value, 0, true
		}
		number, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return "", 0, false
		}
		return value.Value, number, true
	}
	return "", 0, false
}

func (r *room) matches(filter roomservice.QueryFilter) bool {
	text, number, ok := r.fieldValue(filter.Field)
	if !ok {
		return false
	}

	var order int
	if filter.Field.Numeric() {
		want, err := strconv.ParseFloat(filter.Value, 64)
		if err != nil {
			return false
		}
		order = cmp.Compare(number, want)
	} else {
		if filter.Op == roomservice.Contains {
			return strings.Contains(text, filter.Value)
		}
		order = strings.Compare(text, filter.Value)
	}

	switch filter.Op {
	case roomservice.Equal:
		return order == 0
	case roomservice.NotEqual:
		return order != 0
	case roomservice.Less:
		return order < 0
	case roomservice.LessOrEqual:
		return order <= 0
	case roomservice.Greater:
		return order > 0
	case roomservice.GreaterOrEqual:
		return order >= 0
	}
	return false
}

// open reports whether r can be found by query or quick join.
func (r *room) open() bool {
	return !r.private && !r.locked && r.availableSlots() > 0
}

func (r *room) matchesAll(filters []roomservice.QueryFilter) bool {
	for _, filter := range filters {
		if !r.matches(filter) {
			return false
		}
	}
	return true
}

// compareRooms orders by the requested fields, then oldest first.
func compareRooms(order []roomservice.QueryOrder) func(a, b *room) int {
	return func(a, b *room) int {
		for _, key := range order {
			aText, aNumber, _ := a.fieldValue(key.Field)
			bText, bNumber, _ := b.fieldValue(key.Field)
			var result int
			if key.Field.Numeric() {
				result = cmp.Compare(aNumber, bNumber)
			} else {
				result = strings.Compare(aText, bText)
			}
			if key.Descending {
				result = -result
			}
			if result != 0 {
				return result
			}
		}
		if result := a.created.Compare(b.created); result != 0 {
			return result
		}
		return strings.Compare(a.id, b.id)
	}
}

// selectRoomsLocked returns the open rooms matching filters, ordered.
func (s *Service) selectRoomsLocked(filters []roomservice.QueryFilter, order []roomservice.QueryOrder) []*room {
	var selected []*room
	for _, r := range s.rooms {
		if r.open() && r.matchesAll(filters) {
			selected = append(selected, r)
		}
	}
	slices.SortFunc(selected, compareRooms(order))
	return selected
}
