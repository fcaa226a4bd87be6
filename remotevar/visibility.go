// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remotevar

import "fmt"

// Visibility controls who the room service shows a value to.
type Visibility uint8

const (
	// Public values are visible to anyone, including query results.
	Public Visibility = iota
	// Member values are visible to participants of the room.
	Member
	// Private room values are visible to the host only. Private
	// participant values are visible to that participant only.
	Private
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case Member:
		return "member"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("visibility(%d)", uint8(v))
	}
}

// ParseVisibility parses the String form.
func ParseVisibility(name string) (Visibility, error) {
	switch name {
	case "public", "":
		return Public, nil
	case "member":
		return Member, nil
	case "private":
		return Private, nil
	default:
		return Public, fmt.Errorf("remotevar: unknown visibility %q", name)
	}
}

func (v Visibility) MarshalText() ([]byte, error) {
	if v > Private {
		return nil, fmt.Errorf("remotevar: invalid visibility %d", uint8(v))
	}
	return []byte(v.String()), nil
}

func (v *Visibility) UnmarshalText(text []byte) error {
	parsed, err := ParseVisibility(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Index names one of the service's queryable slots for room data.
// S1..S5 hold strings, N1..N5 hold numbers. Participant data is never
// indexed.
type Index uint8

const (
	NoIndex Index = iota
	S1
	S2
	S3
	S4
	S5
	N1
	N2
	N3
	N4
	N5
)

var indexNames = [...]string{"", "S1", "S2", "S3", "S4", "S5", "N1", "N2", "N3", "N4", "N5"}

func (i Index) String() string {
	if int(i) < len(indexNames) {
		if i == NoIndex {
			return "none"
		}
		return indexNames[i]
	}
	return fmt.Sprintf("index(%d)", uint8(i))
}

// Numeric reports whether the slot compares numerically.
func (i Index) Numeric() bool { return i >= N1 && i <= N5 }

// ParseIndex parses the String form. "" and "none" both mean NoIndex.
func ParseIndex(name string) (Index, error) {
	if name == "none" {
		return NoIndex, nil
	}
	for i, candidate := range indexNames {
		if candidate == name {
			return Index(i), nil
		}
	}
	return NoIndex, fmt.Errorf("remotevar: unknown index %q", name)
}

func (i Index) MarshalText() ([]byte, error) {
	if int(i) >= len(indexNames) {
		return nil, fmt.Errorf("remotevar: invalid index %d", uint8(i))
	}
	return []byte(i.String()), nil
}

func (i *Index) UnmarshalText(text []byte) error {
	parsed, err := ParseIndex(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Scope says whether a variable lives on the room or on a participant.
type Scope uint8

const (
	ScopeRoom Scope = iota
	ScopeParticipant
)

func (s Scope) String() string {
	if s == ScopeParticipant {
		return "participant"
	}
	return "room"
}

// DataObject is one value in the service's key/value store.
type DataObject struct {
	Value      string     `json:"value"`
	Visibility Visibility `json:"visibility"`
	Index      Index      `json:"index,omitempty"`
}
