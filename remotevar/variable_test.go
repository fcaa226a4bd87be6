// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remotevar

import (
	"errors"
	"strconv"
	"testing"
)

func TestRoomVarApply(t *testing.T) {
	mode := NewRoomVar("GameMode", String("classic"), Public, S1)

	var indexes []Index
	mode.Index().Subscribe(func(index Index) { indexes = append(indexes, index) })

	err := mode.Apply(DataObject{Value: "arena", Visibility: Member, Index: S2})
	if err != nil {
		t.Fatal(err)
	}
	if mode.Data().Get() != "arena" {
		t.Errorf("value = %q", mode.Data().Get())
	}
	if mode.Visibility().Get() != Member {
		t.Errorf("visibility = %v", mode.Visibility().Get())
	}
	if len(indexes) != 1 || indexes[0] != S2 {
		t.Errorf("index notifications = %v, want [S2]", indexes)
	}
}

func TestParticipantVarIgnoresIndex(t *testing.T) {
	ready := NewParticipantVar("Ready", Bool(false), Member)
	if err := ready.Apply(DataObject{Value: "true", Visibility: Private, Index: N3}); err != nil {
		t.Fatal(err)
	}
	if ready.Index().Get() != NoIndex {
		t.Errorf("participant variable picked up index %v", ready.Index().Get())
	}
	object, err := ready.DataObject()
	if err != nil {
		t.Fatal(err)
	}
	if object != (DataObject{Value: "true", Visibility: Private}) {
		t.Errorf("DataObject = %+v", object)
	}
}

func TestApplyParseError(t *testing.T) {
	score := NewRoomVar("Score", Int(10), Public, N1)
	err := score.Apply(DataObject{Value: "ten", Visibility: Private, Index: N2})

	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Key != "Score" {
		t.Fatalf("err = %v, want *ParseError for Score", err)
	}
	var numErr *strconv.NumError
	if !errors.As(err, &numErr) {
		t.Errorf("ParseError does not unwrap to the payload error: %v", err)
	}
	if score.Data().Get() != 10 || score.Visibility().Get() != Public || score.Index().Get() != N1 {
		t.Error("failed Apply changed the variable")
	}
}

func TestVarReset(t *testing.T) {
	mode := NewRoomVar("GameMode", String("classic"), Public, S1)
	if err := mode.Apply(DataObject{Value: "arena", Visibility: Private, Index: S4}); err != nil {
		t.Fatal(err)
	}
	mode.Reset()
	object, err := mode.DataObject()
	if err != nil {
		t.Fatal(err)
	}
	if object != (DataObject{Value: "classic", Visibility: Public, Index: S1}) {
		t.Errorf("after Reset, DataObject = %+v", object)
	}
}

func TestDirtyTracking(t *testing.T) {
	level := NewRoomVar("Level", Int(1), Public, NoIndex)

	dirty, err := level.Dirty()
	if err != nil || !dirty {
		t.Fatalf("never-synced variable: dirty = %v, err = %v", dirty, err)
	}

	if err := level.MarkSynced(); err != nil {
		t.Fatal(err)
	}
	if dirty, _ := level.Dirty(); dirty {
		t.Error("dirty immediately after MarkSynced")
	}

	level.Data().Set(2)
	if dirty, _ := level.Dirty(); !dirty {
		t.Error("value change did not mark dirty")
	}
	level.Data().Set(1)
	if dirty, _ := level.Dirty(); dirty {
		t.Error("restoring the synced value left the variable dirty")
	}

	level.SetVisibility(Private)
	if dirty, _ := level.Dirty(); !dirty {
		t.Error("visibility change did not mark dirty")
	}

	if err := level.Apply(DataObject{Value: "3", Visibility: Member}); err != nil {
		t.Fatal(err)
	}
	if dirty, _ := level.Dirty(); dirty {
		t.Error("applied remote value is dirty")
	}
}

func TestFingerprintSeparatesFields(t *testing.T) {
	base := FingerprintOf("ab", DataObject{Value: "c"})
	cases := map[string]Fingerprint{
		"shifted boundary": FingerprintOf("a", DataObject{Value: "bc"}),
		"visibility":       FingerprintOf("ab", DataObject{Value: "c", Visibility: Member}),
		"index":            FingerprintOf("ab", DataObject{Value: "c", Index: S1}),
	}
	for name, other := range cases {
		if other == base {
			t.Errorf("%s: fingerprint collision", name)
		}
	}
	if FingerprintOf("ab", DataObject{Value: "c"}) != base {
		t.Error("fingerprint is not deterministic")
	}
	if len(base.String()) != 64 {
		t.Errorf("String() = %q, want 64 hex digits", base.String())
	}
}

func TestVisibilityAndIndexText(t *testing.T) {
	for _, visibility := range []Visibility{Public, Member, Private} {
		text, err := visibility.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var parsed Visibility
		if err := parsed.UnmarshalText(text); err != nil || parsed != visibility {
			t.Errorf("visibility %v: parsed %v, %v", visibility, parsed, err)
		}
	}
	for index := NoIndex; index <= N5; index++ {
		text, err := index.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var parsed Index
		if err := parsed.UnmarshalText(text); err != nil || parsed != index {
			t.Errorf("index %v: parsed %v, %v", index, parsed, err)
		}
	}
	if !N1.Numeric() || S5.Numeric() || NoIndex.Numeric() {
		t.Error("Numeric misclassifies slots")
	}
	if _, err := ParseIndex("S9"); err == nil {
		t.Error("ParseIndex accepted S9")
	}
}

func TestMarkSentKeepsLaterEdits(t *testing.T) {
	mode := NewRoomVar("Mode", String("ffa"), Public, S1)
	if err := mode.MarkSynced(); err != nil {
		t.Fatal(err)
	}

	mode.Data().Set("koth")
	sent, err := mode.DataObject()
	if err != nil {
		t.Fatal(err)
	}
	mode.MarkSent(sent)
	mode.Data().Set("ctf")

	if dirty, _ := mode.Dirty(); !dirty {
		t.Error("edit made after the send is not dirty")
	}
	if err := mode.Apply(sent); err != nil {
		t.Fatal(err)
	}
	if got := mode.Data().Get(); got != "ctf" {
		t.Errorf("echo of the sent value overwrote the edit: Mode = %q", got)
	}

	newer := DataObject{Value: "duel", Visibility: Public, Index: S1}
	if err := mode.Apply(newer); err != nil {
		t.Fatal(err)
	}
	if got := mode.Data().Get(); got != "duel" {
		t.Errorf("a newer remote value was skipped: Mode = %q", got)
	}
	if dirty, _ := mode.Dirty(); dirty {
		t.Error("dirty after applying a remote value")
	}
}

func TestMarkSentRevert(t *testing.T) {
	level := NewRoomVar("Level", Int(1), Public, NoIndex)
	if err := level.MarkSynced(); err != nil {
		t.Fatal(err)
	}
	level.Data().Set(2)
	sent, err := level.DataObject()
	if err != nil {
		t.Fatal(err)
	}

	revert := level.MarkSent(sent)
	if dirty, _ := level.Dirty(); dirty {
		t.Fatal("dirty right after MarkSent of the current value")
	}
	revert()
	if dirty, _ := level.Dirty(); !dirty {
		t.Error("reverted send left the variable clean")
	}

	// A value applied after the send is newer than the revert.
	revert = level.MarkSent(sent)
	if err := level.Apply(DataObject{Value: "5", Visibility: Public}); err != nil {
		t.Fatal(err)
	}
	revert()
	if dirty, _ := level.Dirty(); dirty {
		t.Error("revert discarded a later exchange")
	}
}

func TestResetForgetsExchange(t *testing.T) {
	mode := NewRoomVar("Mode", String("ffa"), Public, S1)
	if err := mode.Apply(DataObject{Value: "ctf", Visibility: Public, Index: S1}); err != nil {
		t.Fatal(err)
	}
	mode.Reset()
	if dirty, _ := mode.Dirty(); !dirty {
		t.Error("reset variable is clean against a room it no longer mirrors")
	}
	if err := mode.Apply(DataObject{Value: "ctf", Visibility: Public, Index: S1}); err != nil {
		t.Fatal(err)
	}
	if got := mode.Data().Get(); got != "ctf" {
		t.Errorf("value from a fresh room skipped after Reset: Mode = %q", got)
	}
}
