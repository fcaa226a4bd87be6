// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/bureau-foundation/roomsync/lib/observable"
	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
)

// Participant mirrors one member of a room. P is the participant's
// declared variable set.
type Participant[P any] struct {
	id             *observable.Cell[string]
	connectionInfo *observable.Cell[string]
	allocationID   *observable.Cell[string]
	isHost         *observable.Cell[bool]
	joined         *observable.Cell[time.Time]
	lastUpdated    *observable.Cell[time.Time]
	slotIndex      *observable.Cell[int]

	variables *P
	registry  *remotevar.Registry
}

// NewParticipant returns a participant with every field at its zero
// value and every variable at its default. The slot index is -1 until
// the participant is placed in a room.
func NewParticipant[P any](schema *remotevar.Schema[P]) *Participant[P] {
	variables, registry := schema.New()
	return &Participant[P]{
		id:             observable.New(""),
		connectionInfo: observable.New(""),
		allocationID:   observable.New(""),
		isHost:         observable.New(false),
		joined:         observable.NewFunc(time.Time{}, time.Time.Equal),
		lastUpdated:    observable.NewFunc(time.Time{}, time.Time.Equal),
		slotIndex:      observable.New(-1),
		variables:      variables,
		registry:       registry,
	}
}

func (p *Participant[P]) ID() observable.Value[string] { return p.id }

// ConnectionInfo is writable so the local participant can stage its
// connection details before pushing them.
func (p *Participant[P]) ConnectionInfo() *observable.Cell[string] { return p.connectionInfo }

// AllocationID is the relay allocation the participant connects
// through. Writable for the same reason as ConnectionInfo.
func (p *Participant[P]) AllocationID() *observable.Cell[string] { return p.allocationID }

func (p *Participant[P]) IsHost() observable.Value[bool]           { return p.isHost }
func (p *Participant[P]) Joined() observable.Value[time.Time]      { return p.joined }
func (p *Participant[P]) LastUpdated() observable.Value[time.Time] { return p.lastUpdated }

// SlotIndex is the participant's position in the room's list.
func (p *Participant[P]) SlotIndex() observable.Value[int] { return p.slotIndex }

// Variables returns the declared variable set.
func (p *Participant[P]) Variables() *P { return p.variables }

// Registry returns the keyed view of Variables.
func (p *Participant[P]) Registry() *remotevar.Registry { return p.registry }

// CopyFromSnapshot overwrites identity, connection, timestamps, slot
// index, and host flag, then parses every variable present in the
// snapshot. Variables absent from the snapshot keep their values. It
// returns the snapshot keys no variable declares and any parse
// failures; neither stops the copy.
func (p *Participant[P]) CopyFromSnapshot(snapshot roomservice.ParticipantSnapshot, index int, isHost bool) (unknown []string, err error) {
	p.id.Set(snapshot.ID)
	p.connectionInfo.Set(snapshot.ConnectionInfo)
	p.allocationID.Set(snapshot.AllocationID)
	p.joined.Set(snapshot.Joined)
	p.lastUpdated.Set(snapshot.LastUpdated)
	p.slotIndex.Set(index)
	p.isHost.Set(isHost)
	return p.registry.ApplyData(snapshot.Data)
}

// ApplyChanges applies only the fields marked changed.
func (p *Participant[P]) ApplyChanges(changes roomservice.ParticipantChanges) (unknown []string, err error) {
	if changes.ConnectionInfo.Changed {
		p.connectionInfo.Set(changes.ConnectionInfo.Value)
	}
	if changes.AllocationID.Changed {
		p.allocationID.Set(changes.AllocationID.Value)
	}
	if changes.LastUpdated.Changed {
		p.lastUpdated.Set(changes.LastUpdated.Value)
	}
	if changes.Data.Changed {
		return applyDataChanges(p.registry, changes.Data.Value)
	}
	return nil, nil
}

// ToSnapshot serializes the participant. Copying the result into a
// fresh participant reproduces every variable payload.
func (p *Participant[P]) ToSnapshot() (roomservice.ParticipantSnapshot, error) {
	data, err := p.registry.DataObjects()
	if err != nil {
		return roomservice.ParticipantSnapshot{}, err
	}
	return roomservice.ParticipantSnapshot{
		ID:             p.id.Get(),
		ConnectionInfo: p.connectionInfo.Get(),
		AllocationID:   p.allocationID.Get(),
		Joined:         p.joined.Get(),
		LastUpdated:    p.lastUpdated.Get(),
		Data:           data,
	}, nil
}

// reset returns the participant to the state NewParticipant built,
// keeping its id.
func (p *Participant[P]) reset() {
	p.connectionInfo.Set("")
	p.allocationID.Set("")
	p.isHost.Set(false)
	p.joined.Set(time.Time{})
	p.lastUpdated.Set(time.Time{})
	p.slotIndex.Set(-1)
	p.registry.ResetAll()
}

// applyDataChanges applies one sparse data map to registry in key
// order. A removed key resets its variable to the declared default and
// counts as synced, so the default is not pushed back; the variable
// itself stays.
func applyDataChanges(registry *remotevar.Registry, changes roomservice.DataChanges) (unknown []string, err error) {
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(changes)) {
		change := changes[key]
		variable, ok := registry.Get(key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if change.Removed {
			variable.Reset()
			if syncErr := variable.MarkSynced(); syncErr != nil {
				errs = append(errs, syncErr)
			}
			continue
		}
		if applyErr := variable.Apply(change.Value); applyErr != nil {
			errs = append(errs, applyErr)
		}
	}
	return unknown, errors.Join(errs...)
}
