// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomservice

import (
	"slices"

	"github.com/bureau-foundation/roomsync/remotevar"
)

// Diff computes the sparse ChangeSet that turns before into after.
// Both snapshots must describe the same room as seen by the same
// viewer. Applying the result to a mirror of before, in ChangeSet
// order, yields a mirror of after.
//
// Participants are matched by ID. When the survivors keep their
// relative order (the service only appends and removes), joins are
// placed at their final positions and leaves are emitted highest index
// first. Otherwise every participant leaves and rejoins.
func Diff(before, after *RoomSnapshot) *ChangeSet {
	changes := &ChangeSet{}
	diffScalar(&changes.Name, before.Name, after.Name)
	diffScalar(&changes.IsPrivate, before.IsPrivate, after.IsPrivate)
	diffScalar(&changes.IsLocked, before.IsLocked, after.IsLocked)
	diffScalar(&changes.MaxParticipants, before.MaxParticipants, after.MaxParticipants)
	diffScalar(&changes.HostID, before.HostID, after.HostID)
	diffScalar(&changes.AvailableSlots, before.AvailableSlots, after.AvailableSlots)
	if !before.LastUpdated.Equal(after.LastUpdated) {
		changes.LastUpdated = Set(after.LastUpdated)
	}
	if data := diffData(before.Data, after.Data); len(data) > 0 {
		changes.Data = Set(data)
	}

	diffParticipants(changes, before.Participants, after.Participants)
	return changes
}

func diffScalar[T comparable](change *Change[T], before, after T) {
	if before != after {
		*change = Set(after)
	}
}

func diffData(before, after map[string]remotevar.DataObject) DataChanges {
	changes := make(DataChanges)
	for key, value := range after {
		if previous, ok := before[key]; !ok || previous != value {
			changes[key] = ValueChange{Value: value}
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			changes[key] = ValueChange{Removed: true}
		}
	}
	return changes
}

func diffParticipants(changes *ChangeSet, before, after []ParticipantSnapshot) {
	inAfter := make(map[string]int, len(after))
	for i, participant := range after {
		inAfter[participant.ID] = i
	}
	inBefore := make(map[string]int, len(before))
	for i, participant := range before {
		inBefore[participant.ID] = i
	}

	// merged is before with every joiner inserted, in the order the
	// mirror will hold them between the joins and the leaves.
	var merged []string
	var leaving []int
	i, j := 0, 0
	for i < len(before) || j < len(after) {
		if i < len(before) {
			if _, survives := inAfter[before[i].ID]; !survives {
				leaving = append(leaving, len(merged))
				merged = append(merged, before[i].ID)
				i++
				continue
			}
		}
		if j < len(after) {
			if _, existed := inBefore[after[j].ID]; !existed {
				changes.Joined = append(changes.Joined, JoinedParticipant{Index: len(merged), Participant: after[j].Clone()})
				merged = append(merged, after[j].ID)
				j++
				continue
			}
		}
		if i < len(before) && j < len(after) && before[i].ID == after[j].ID {
			merged = append(merged, before[i].ID)
			i++
			j++
			continue
		}
		rejoinAll(changes, before, after)
		return
	}

	slices.Reverse(leaving)
	changes.Left = leaving

	for index, participant := range after {
		previous, existed := inBefore[participant.ID]
		if !existed {
			continue
		}
		participantChanges := diffParticipant(before[previous], participant)
		if participantChanges.Empty() {
			continue
		}
		if changes.Participants == nil {
			changes.Participants = make(map[int]ParticipantChanges)
		}
		changes.Participants[index] = participantChanges
	}
}

func rejoinAll(changes *ChangeSet, before, after []ParticipantSnapshot) {
	changes.Joined = changes.Joined[:0]
	for index, participant := range after {
		changes.Joined = append(changes.Joined, JoinedParticipant{Index: index, Participant: participant.Clone()})
	}
	changes.Left = changes.Left[:0]
	for index := len(after) + len(before) - 1; index >= len(after); index-- {
		changes.Left = append(changes.Left, index)
	}
	changes.Participants = nil
}

func diffParticipant(before, after ParticipantSnapshot) ParticipantChanges {
	var changes ParticipantChanges
	diffScalar(&changes.ConnectionInfo, before.ConnectionInfo, after.ConnectionInfo)
	diffScalar(&changes.AllocationID, before.AllocationID, after.AllocationID)
	if !before.LastUpdated.Equal(after.LastUpdated) {
		changes.LastUpdated = Set(after.LastUpdated)
	}
	if data := diffData(before.Data, after.Data); len(data) > 0 {
		changes.Data = Set(data)
	}
	return changes
}
