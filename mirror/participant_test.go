// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"testing"

	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
)

func TestParticipantApplyChangesIsSparse(t *testing.T) {
	participant := NewParticipant(playerSchema)
	if got := participant.SlotIndex().Get(); got != -1 {
		t.Fatalf("new participant has slot index %d, want -1", got)
	}
	if _, err := participant.CopyFromSnapshot(player("p1", "ann"), 2, true); err != nil {
		t.Fatalf("CopyFromSnapshot: %v", err)
	}
	participant.ConnectionInfo().Set("10.0.0.1:7777")

	var names []string
	participant.Variables().Name.Data().Subscribe(func(name string) { names = append(names, name) })

	unknown, err := participant.ApplyChanges(roomservice.ParticipantChanges{
		AllocationID: roomservice.Set("alloc-1"),
		Data: roomservice.Set(roomservice.DataChanges{
			"Ready": {Value: remotevar.DataObject{Value: "true", Visibility: remotevar.Member}},
			"Emote": {Value: remotevar.DataObject{Value: "wave", Visibility: remotevar.Public}},
		}),
	})
	if err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	if len(unknown) != 1 || unknown[0] != "Emote" {
		t.Errorf("unknown keys = %v, want [Emote]", unknown)
	}
	if got := participant.ConnectionInfo().Get(); got != "10.0.0.1:7777" {
		t.Errorf("unchanged connection info overwritten with %q", got)
	}
	if got := participant.AllocationID().Get(); got != "alloc-1" {
		t.Errorf("allocation id = %q, want alloc-1", got)
	}
	if !participant.Variables().Ready.Data().Get() {
		t.Error("Ready not applied")
	}
	if len(names) != 0 {
		t.Errorf("Name observers fired for an untouched key: %v", names)
	}
	if !participant.IsHost().Get() || participant.SlotIndex().Get() != 2 {
		t.Error("ApplyChanges disturbed host flag or slot index")
	}
}

func TestParticipantRemovedVariableResets(t *testing.T) {
	participant := NewParticipant(playerSchema)
	if _, err := participant.CopyFromSnapshot(player("p1", "ann"), 0, false); err != nil {
		t.Fatalf("CopyFromSnapshot: %v", err)
	}

	if _, err := participant.ApplyChanges(roomservice.ParticipantChanges{
		Data: roomservice.Set(roomservice.DataChanges{"Name": {Removed: true}}),
	}); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	if got := participant.Variables().Name.Data().Get(); got != "anon" {
		t.Errorf("removed Name = %q, want the default anon", got)
	}
	dirty, err := participant.Registry().DirtyObjects()
	if err != nil {
		t.Fatalf("DirtyObjects: %v", err)
	}
	if _, ok := dirty["Name"]; ok {
		t.Error("reset Name is dirty; the default would be pushed back")
	}
}

func TestParticipantToSnapshotRoundTrip(t *testing.T) {
	original := NewParticipant(playerSchema)
	source := player("p2", "bob")
	source.ConnectionInfo = "10.0.0.2:7777"
	source.AllocationID = "alloc-2"
	source.Data["Ready"] = remotevar.DataObject{Value: "true", Visibility: remotevar.Member}
	if _, err := original.CopyFromSnapshot(source, 1, false); err != nil {
		t.Fatalf("CopyFromSnapshot: %v", err)
	}

	snapshot, err := original.ToSnapshot()
	if err != nil {
		t.Fatalf("ToSnapshot: %v", err)
	}
	copied := NewParticipant(playerSchema)
	if _, err := copied.CopyFromSnapshot(snapshot, 1, false); err != nil {
		t.Fatalf("CopyFromSnapshot of ToSnapshot: %v", err)
	}

	if copied.ID().Get() != "p2" || copied.ConnectionInfo().Get() != "10.0.0.2:7777" || copied.AllocationID().Get() != "alloc-2" {
		t.Errorf("identity not carried: %+v", snapshot)
	}
	if !copied.Joined().Get().Equal(stamp) {
		t.Errorf("joined = %v, want %v", copied.Joined().Get(), stamp)
	}
	if copied.Variables().Name.Data().Get() != "bob" || !copied.Variables().Ready.Data().Get() {
		t.Errorf("variables not carried: %+v", snapshot.Data)
	}
}
