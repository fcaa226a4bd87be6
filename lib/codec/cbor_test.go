// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type loadout struct {
	Weapon  string    `json:"weapon"`
	Ammo    int       `json:"ammo"`
	Perks   []string  `json:"perks,omitempty"`
	Updated time.Time `json:"updated"`
}

func TestMarshalRoundTrip(t *testing.T) {
	original := loadout{
		Weapon:  "rail",
		Ammo:    12,
		Perks:   []string{"dash", "shield"},
		Updated: time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC),
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded loadout
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Weapon != original.Weapon || decoded.Ammo != original.Ammo {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
	if len(decoded.Perks) != 2 || decoded.Perks[1] != "shield" {
		t.Errorf("perks = %v", decoded.Perks)
	}
	if !decoded.Updated.Equal(original.Updated) {
		t.Errorf("updated = %v, want %v", decoded.Updated, original.Updated)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	value := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding %d differs from the first", i)
		}
	}
}

func TestJSONTagsNameFields(t *testing.T) {
	data, err := Marshal(loadout{Weapon: "bow"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"weapon": "bow"`) {
		t.Errorf("diagnostic %s does not use the json field name", diagnostic)
	}
	if strings.Contains(diagnostic, "perks") {
		t.Errorf("omitempty field present: %s", diagnostic)
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"slot": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var decoded loadout
	if err := Unmarshal([]byte{0xff, 0x00, 0x13}, &decoded); err == nil {
		t.Fatal("Unmarshal accepted invalid CBOR")
	}
}
