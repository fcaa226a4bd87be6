// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remotevar

import (
	"errors"
	"slices"
)

// Registry is the keyed view of one owner's variables. The variable
// set is fixed when the registry is built; only values change.
type Registry struct {
	variables []Variable
	byKey     map[string]Variable
}

// Len returns the number of declared variables.
func (r *Registry) Len() int { return len(r.variables) }

// Keys returns the declared keys in declaration order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.variables))
	for i, variable := range r.variables {
		keys[i] = variable.Key()
	}
	return keys
}

// Get looks a variable up by key.
func (r *Registry) Get(key string) (Variable, bool) {
	variable, ok := r.byKey[key]
	return variable, ok
}

// All returns the variables in declaration order.
func (r *Registry) All() []Variable { return slices.Clone(r.variables) }

// ApplyData copies every present remote value into its variable.
// Declared keys absent from data keep their values. The returned keys
// are those in data that no variable declares. Parse failures are
// joined into the error; the other keys are still applied.
func (r *Registry) ApplyData(data map[string]DataObject) (unknown []string, err error) {
	var errs []error
	for _, variable := range r.variables {
		remote, present := data[variable.Key()]
		if !present {
			continue
		}
		if applyErr := variable.Apply(remote); applyErr != nil {
			errs = append(errs, applyErr)
		}
	}
	for key := range data {
		if _, declared := r.byKey[key]; !declared {
			unknown = append(unknown, key)
		}
	}
	slices.Sort(unknown)
	return unknown, errors.Join(errs...)
}

// DataObjects serializes every variable, keyed by key.
func (r *Registry) DataObjects() (map[string]DataObject, error) {
	objects := make(map[string]DataObject, len(r.variables))
	for _, variable := range r.variables {
		object, err := variable.DataObject()
		if err != nil {
			return nil, err
		}
		objects[variable.Key()] = object
	}
	return objects, nil
}

// DirtyObjects serializes only the variables whose values changed
// since they were last synced. Pass the result to MarkSent just before
// the write that carries it.
func (r *Registry) DirtyObjects() (map[string]DataObject, error) {
	objects := make(map[string]DataObject)
	for _, variable := range r.variables {
		dirty, err := variable.Dirty()
		if err != nil {
			return nil, err
		}
		if !dirty {
			continue
		}
		object, err := variable.DataObject()
		if err != nil {
			return nil, err
		}
		objects[variable.Key()] = object
	}
	return objects, nil
}

// MarkSynced records the named variables as exchanged. Unknown keys
// are ignored.
func (r *Registry) MarkSynced(keys ...string) error {
	for _, key := range keys {
		variable, ok := r.byKey[key]
		if !ok {
			continue
		}
		if err := variable.MarkSynced(); err != nil {
			return err
		}
	}
	return nil
}

// MarkSent records every object in sent as exchanged, keyed like
// DataObjects. Edits made after sent was serialized stay dirty, and
// remote echoes of sent do not overwrite them. The returned function
// undoes the records for a write that failed. Unknown keys are
// ignored.
func (r *Registry) MarkSent(sent map[string]DataObject) (revert func()) {
	reverts := make([]func(), 0, len(sent))
	for key, object := range sent {
		if variable, ok := r.byKey[key]; ok {
			reverts = append(reverts, variable.MarkSent(object))
		}
	}
	return func() {
		for _, revert := range reverts {
			revert()
		}
	}
}

// Reset restores one variable to its default. It reports whether the
// key is declared.
func (r *Registry) Reset(key string) bool {
	variable, ok := r.byKey[key]
	if ok {
		variable.Reset()
	}
	return ok
}

// ResetAll restores every variable to its default.
func (r *Registry) ResetAll() {
	for _, variable := range r.variables {
		variable.Reset()
	}
}
