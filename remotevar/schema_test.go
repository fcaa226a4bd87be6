// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remotevar

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

type testRoom struct {
	Mode  *Var[*Value[string]]
	Round *Var[*Value[int]]
}

func newTestRoom() *testRoom {
	return &testRoom{
		Mode:  NewRoomVar("Mode", String("classic"), Public, S1),
		Round: NewRoomVar("Round", Int(0), Member, NoIndex),
	}
}

func listTestRoom(r *testRoom) []Variable { return []Variable{r.Mode, r.Round} }

var testRoomSchema = MustSchema(ScopeRoom, newTestRoom, listTestRoom)

func TestSchemaKeys(t *testing.T) {
	if keys := testRoomSchema.Keys(); !slices.Equal(keys, []string{"Mode", "Round"}) {
		t.Errorf("Keys() = %v", keys)
	}
	owner, registry := testRoomSchema.New()
	if registry.Len() != 2 {
		t.Fatalf("Len() = %d", registry.Len())
	}
	variable, ok := registry.Get("Round")
	if !ok || variable != Variable(owner.Round) {
		t.Error("Get(Round) did not return the owner's variable")
	}
}

func TestSchemaValidation(t *testing.T) {
	type pair struct{ A, B Variable }
	cases := []struct {
		name  string
		scope Scope
		list  func(*pair) []Variable
		want  string
	}{
		{"duplicate", ScopeRoom, func(p *pair) []Variable {
			return []Variable{NewRoomVar("X", String(""), Public, NoIndex), NewRoomVar("X", Int(0), Public, NoIndex)}
		}, "duplicate key"},
		{"empty key", ScopeRoom, func(p *pair) []Variable {
			return []Variable{NewRoomVar("", String(""), Public, NoIndex)}
		}, "empty key"},
		{"wrong scope", ScopeRoom, func(p *pair) []Variable {
			return []Variable{NewParticipantVar("X", String(""), Public)}
		}, "scope"},
		{"nil variable", ScopeParticipant, func(p *pair) []Variable {
			return []Variable{nil}
		}, "nil"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSchema(tc.scope, func() *pair { return &pair{} }, tc.list)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestMustSchemaPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustSchema did not panic on an invalid schema")
		}
	}()
	MustSchema(ScopeRoom, func() *testRoom { return &testRoom{} }, func(*testRoom) []Variable {
		return []Variable{NewRoomVar("", String(""), Public, NoIndex)}
	})
}

func TestBindRejectsMismatchedOwner(t *testing.T) {
	if _, err := testRoomSchema.Bind(nil); err == nil {
		t.Error("Bind(nil) succeeded")
	}
	owner := newTestRoom()
	owner.Round = NewRoomVar("Turn", Int(0), Public, NoIndex)
	if _, err := testRoomSchema.Bind(owner); err == nil {
		t.Error("Bind accepted an owner with a renamed key")
	}
}

func TestRegistryApplyData(t *testing.T) {
	owner, registry := testRoomSchema.New()
	owner.Round.Data().Set(4)

	unknown, err := registry.ApplyData(map[string]DataObject{
		"Mode":  {Value: "arena", Visibility: Public, Index: S1},
		"Extra": {Value: "x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(unknown, []string{"Extra"}) {
		t.Errorf("unknown = %v", unknown)
	}
	if owner.Mode.Data().Get() != "arena" {
		t.Errorf("Mode = %q", owner.Mode.Data().Get())
	}
	if owner.Round.Data().Get() != 4 {
		t.Error("absent key was overwritten")
	}
}

func TestRegistryApplyDataContinuesPastParseErrors(t *testing.T) {
	owner, registry := testRoomSchema.New()
	_, err := registry.ApplyData(map[string]DataObject{
		"Mode":  {Value: "arena"},
		"Round": {Value: "not a number"},
	})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Key != "Round" {
		t.Fatalf("err = %v, want ParseError for Round", err)
	}
	if owner.Mode.Data().Get() != "arena" {
		t.Error("valid key was not applied alongside the failing one")
	}
}

func TestRegistryDirtyObjects(t *testing.T) {
	owner, registry := testRoomSchema.New()

	initial, err := registry.DirtyObjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(initial) != 2 {
		t.Fatalf("fresh registry has %d dirty objects, want 2", len(initial))
	}
	if err := registry.MarkSynced(registry.Keys()...); err != nil {
		t.Fatal(err)
	}

	owner.Round.Data().Set(9)
	dirty, err := registry.DirtyObjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(dirty) != 1 || dirty["Round"].Value != "9" || dirty["Round"].Visibility != Member {
		t.Errorf("DirtyObjects = %+v", dirty)
	}
}

func TestRegistryReset(t *testing.T) {
	owner, registry := testRoomSchema.New()
	owner.Mode.Data().Set("arena")
	owner.Round.Data().Set(3)

	if !registry.Reset("Mode") || registry.Reset("Missing") {
		t.Error("Reset reported the wrong declared-ness")
	}
	if owner.Mode.Data().Get() != "classic" || owner.Round.Data().Get() != 3 {
		t.Error("Reset(Mode) touched the wrong variables")
	}
	registry.ResetAll()
	if owner.Round.Data().Get() != 0 {
		t.Error("ResetAll left Round set")
	}
}

func TestEmptySchemas(t *testing.T) {
	_, registry := NoParticipantVariables.New()
	if registry.Len() != 0 {
		t.Errorf("Len() = %d", registry.Len())
	}
	unknown, err := registry.ApplyData(map[string]DataObject{"k": {}})
	if err != nil || len(unknown) != 1 {
		t.Errorf("ApplyData = %v, %v", unknown, err)
	}
}
