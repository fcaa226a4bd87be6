// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remotevar

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/roomsync/lib/observable"
)

// Variable is the untyped view of a declared field that registries
// and mirrors work with.
type Variable interface {
	// Key is the remote key. It never changes.
	Key() string
	Scope() Scope
	// Apply copies a remote value in. The variable is unchanged when
	// the value fails to parse.
	Apply(remote DataObject) error
	// DataObject serializes the variable for an outbound write.
	DataObject() (DataObject, error)
	// Reset restores the declared default payload and metadata.
	Reset()
	// Dirty reports whether the current value differs from the last
	// one exchanged with the service.
	Dirty() (bool, error)
	// MarkSynced records the current value as exchanged.
	MarkSynced() error
	// MarkSent records sent as exchanged ahead of the write that
	// carries it. The returned function restores the previous record
	// and is called when the write fails.
	MarkSent(sent DataObject) (revert func())
}

// ParseError reports a remote value that a variable could not parse.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("remotevar: parsing %q: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Var binds a key to a typed payload P. Room variables carry an
// observable visibility and index that the remote copy may change;
// participant variables carry visibility only.
type Var[P Payload] struct {
	key   string
	scope Scope

	declaredVisibility Visibility
	declaredIndex      Index
	visibility         *observable.Cell[Visibility]
	index              *observable.Cell[Index]

	payload P

	mu        sync.Mutex
	synced    Fingerprint
	hasSynced bool
}

var _ Variable = (*Var[*Value[string]])(nil)

// NewRoomVar declares a room-scoped variable.
func NewRoomVar[P Payload](key string, payload P, visibility Visibility, index Index) *Var[P] {
	return newVar(key, ScopeRoom, payload, visibility, index)
}

// NewParticipantVar declares a participant-scoped variable.
func NewParticipantVar[P Payload](key string, payload P, visibility Visibility) *Var[P] {
	return newVar(key, ScopeParticipant, payload, visibility, NoIndex)
}

func newVar[P Payload](key string, scope Scope, payload P, visibility Visibility, index Index) *Var[P] {
	return &Var[P]{
		key:                key,
		scope:              scope,
		declaredVisibility: visibility,
		declaredIndex:      index,
		visibility:         observable.New(visibility),
		index:              observable.New(index),
		payload:            payload,
	}
}

func (v *Var[P]) Key() string  { return v.key }
func (v *Var[P]) Scope() Scope { return v.scope }

// Data returns the typed payload.
func (v *Var[P]) Data() P { return v.payload }

// Visibility returns the current visibility.
func (v *Var[P]) Visibility() observable.Value[Visibility] { return v.visibility }

// Index returns the current index slot. Always NoIndex for
// participant variables.
func (v *Var[P]) Index() observable.Value[Index] { return v.index }

// SetVisibility changes the visibility sent on the next write.
func (v *Var[P]) SetVisibility(visibility Visibility) { v.visibility.Set(visibility) }

// Apply copies remote in. A remote value equal to the last one
// exchanged is skipped while the local value differs from it: the
// service has not moved since that exchange, so the local edit is the
// newer write and stays dirty for the next push.
func (v *Var[P]) Apply(remote DataObject) error {
	if v.supersedes(remote) {
		return nil
	}
	if err := v.payload.Parse(remote.Value); err != nil {
		return &ParseError{Key: v.key, Err: err}
	}
	v.visibility.Set(remote.Visibility)
	if v.scope == ScopeRoom {
		v.index.Set(remote.Index)
	}
	return v.MarkSynced()
}

func (v *Var[P]) DataObject() (DataObject, error) {
	value, err := v.payload.Serialize()
	if err != nil {
		return DataObject{}, fmt.Errorf("remotevar: serializing %q: %w", v.key, err)
	}
	object := DataObject{Value: value, Visibility: v.visibility.Get()}
	if v.scope == ScopeRoom {
		object.Index = v.index.Get()
	}
	return object, nil
}

// Reset restores the declared default and forgets the last exchanged
// value, so the variable is dirty until the next exchange.
func (v *Var[P]) Reset() {
	v.payload.Reset()
	v.visibility.Set(v.declaredVisibility)
	v.index.Set(v.declaredIndex)
	v.mu.Lock()
	v.synced, v.hasSynced = Fingerprint{}, false
	v.mu.Unlock()
}

func (v *Var[P]) Dirty() (bool, error) {
	current, err := v.fingerprint()
	if err != nil {
		return false, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.hasSynced || current != v.synced, nil
}

func (v *Var[P]) MarkSynced() error {
	current, err := v.fingerprint()
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.synced, v.hasSynced = current, true
	v.mu.Unlock()
	return nil
}

func (v *Var[P]) MarkSent(sent DataObject) (revert func()) {
	fingerprint := FingerprintOf(v.key, sent)
	v.mu.Lock()
	previous, hadSynced := v.synced, v.hasSynced
	v.synced, v.hasSynced = fingerprint, true
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		// A value applied since then is a newer exchange; keep it.
		if v.hasSynced && v.synced == fingerprint {
			v.synced, v.hasSynced = previous, hadSynced
		}
	}
}

// supersedes reports whether the local value is a pending edit made
// after remote was last exchanged.
func (v *Var[P]) supersedes(remote DataObject) bool {
	current, err := v.fingerprint()
	if err != nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasSynced && v.synced == FingerprintOf(v.key, remote) && current != v.synced
}

func (v *Var[P]) fingerprint() (Fingerprint, error) {
	object, err := v.DataObject()
	if err != nil {
		return Fingerprint{}, err
	}
	return FingerprintOf(v.key, object), nil
}
