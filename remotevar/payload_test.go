// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remotevar

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/roomsync/lib/compress"
)

// roundTrip serializes payload, parses the result into fresh, and
// returns the wire form.
func roundTrip(t *testing.T, payload, fresh Payload) string {
	t.Helper()
	wire, err := payload.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := fresh.Parse(wire); err != nil {
		t.Fatalf("Parse(%q): %v", wire, err)
	}
	return wire
}

func TestScalarRoundTrip(t *testing.T) {
	for _, value := range []string{"", "blue", "with spaces", "ünïcödé"} {
		source, target := String(value), String("default")
		roundTrip(t, source, target)
		if target.Get() != value {
			t.Errorf("string %q round-tripped to %q", value, target.Get())
		}
	}

	for _, value := range []int{0, 1, -42, math.MaxInt64, math.MinInt64} {
		source, target := Int(value), Int(7)
		roundTrip(t, source, target)
		if target.Get() != value {
			t.Errorf("int %d round-tripped to %d", value, target.Get())
		}
	}

	for _, value := range []float64{0, 1.5, -0.1, math.MaxFloat64, math.SmallestNonzeroFloat64, 1.0 / 3} {
		source, target := Float(value), Float(9)
		roundTrip(t, source, target)
		if math.Float64bits(target.Get()) != math.Float64bits(value) {
			t.Errorf("float %v round-tripped to %v", value, target.Get())
		}
	}

	for _, value := range []bool{true, false} {
		source, target := Bool(value), Bool(!value)
		roundTrip(t, source, target)
		if target.Get() != value {
			t.Errorf("bool %v round-tripped to %v", value, target.Get())
		}
	}
}

func TestFloatNaNIsStable(t *testing.T) {
	payload := Float(math.NaN())
	calls := 0
	payload.Subscribe(func(float64) { calls++ })

	if payload.Set(math.NaN()) {
		t.Error("Set(NaN) on a NaN payload reported a change")
	}
	if err := payload.Parse("NaN"); err != nil {
		t.Fatalf("Parse(NaN): %v", err)
	}
	if calls != 0 {
		t.Errorf("observers fired %d times for NaN over NaN", calls)
	}

	copied := Float(0)
	roundTrip(t, payload, copied)
	if !math.IsNaN(copied.Get()) {
		t.Errorf("NaN round-tripped to %v", copied.Get())
	}
	if !payload.Set(1) {
		t.Error("Set(1) on a NaN payload reported no change")
	}
}

func TestTimeRoundTrip(t *testing.T) {
	stamp := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.FixedZone("X", 3600))
	source, target := Time(stamp), Time(time.Time{})
	wire := roundTrip(t, source, target)
	if !target.Get().Equal(stamp) {
		t.Errorf("time round-tripped to %v, want %v", target.Get(), stamp)
	}
	if !strings.HasSuffix(wire, "Z") {
		t.Errorf("wire form %q is not UTC", wire)
	}

	zero := Time(time.Time{})
	wire, err := zero.Serialize()
	if err != nil || wire != "" {
		t.Errorf("zero time serialized to (%q, %v), want empty", wire, err)
	}
}

func TestEmptyRemoteIsZeroValue(t *testing.T) {
	number := Int(12)
	if err := number.Parse(""); err != nil {
		t.Fatal(err)
	}
	if number.Get() != 0 {
		t.Errorf("Int parsed empty string to %d", number.Get())
	}

	flag := Bool(true)
	if err := flag.Parse(""); err != nil {
		t.Fatal(err)
	}
	if flag.Get() {
		t.Error("Bool parsed empty string to true")
	}
}

func TestParseFailureLeavesValue(t *testing.T) {
	number := Int(5)
	calls := 0
	number.Subscribe(func(int) { calls++ })
	if err := number.Parse("five"); err == nil {
		t.Fatal("expected parse error")
	}
	if number.Get() != 5 || calls != 0 {
		t.Errorf("value = %d, calls = %d after failed parse", number.Get(), calls)
	}
}

type loadout struct {
	Weapon string   `json:"weapon" cbor:"weapon"`
	Perks  []string `json:"perks" cbor:"perks"`
	Level  int      `json:"level" cbor:"level"`
}

func TestJSONRoundTrip(t *testing.T) {
	value := loadout{Weapon: "bow", Perks: []string{"swift", "keen"}, Level: 3}
	source, target := JSON(value), JSON(loadout{})
	roundTrip(t, source, target)
	got := target.Get()
	if got.Weapon != "bow" || got.Level != 3 || len(got.Perks) != 2 || got.Perks[1] != "keen" {
		t.Errorf("JSON round-tripped to %+v", got)
	}
}

func TestJSONEqualityIsStructural(t *testing.T) {
	payload := JSON(loadout{Weapon: "bow", Perks: []string{"swift"}})
	calls := 0
	payload.Subscribe(func(loadout) { calls++ })
	payload.Set(loadout{Weapon: "bow", Perks: []string{"swift"}})
	if calls != 0 {
		t.Errorf("structurally equal write notified %d times", calls)
	}
}

func TestCBORRoundTrip(t *testing.T) {
	perks := make([]string, 200)
	for i := range perks {
		perks[i] = "repeated-perk-name"
	}
	value := loadout{Weapon: "staff", Perks: perks, Level: 60}

	for _, algorithm := range []compress.Algorithm{compress.None, compress.LZ4, compress.Zstd, compress.Auto} {
		t.Run(algorithm.String(), func(t *testing.T) {
			source, target := CBOR(value, algorithm), CBOR(loadout{}, algorithm)
			wire := roundTrip(t, source, target)
			if strings.ContainsAny(wire, "+/=") {
				t.Errorf("wire form is not unpadded base64url: %q", wire[:16])
			}
			got := target.Get()
			if got.Weapon != "staff" || got.Level != 60 || len(got.Perks) != 200 {
				t.Errorf("CBOR round-tripped to weapon=%q level=%d perks=%d", got.Weapon, got.Level, len(got.Perks))
			}
		})
	}
}

func TestCBORRejectsGarbage(t *testing.T) {
	payload := CBOR(loadout{Level: 1}, compress.None)
	if err := payload.Parse("not base64!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if payload.Get().Level != 1 {
		t.Error("failed parse changed the value")
	}
}

func TestResetRestoresDefault(t *testing.T) {
	name := String("anon")
	name.Set("vera")
	name.Reset()
	if name.Get() != "anon" || name.Default() != "anon" {
		t.Errorf("after Reset, Get = %q", name.Get())
	}
}
