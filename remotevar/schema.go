// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remotevar

import (
	"errors"
	"fmt"
	"slices"
)

// Schema describes the set of variables an owner type T declares.
// newFn builds a fresh T with every variable at its default, and
// listFn returns T's variables in declaration order. Both must be
// deterministic: every T built by newFn lists the same keys.
type Schema[T any] struct {
	scope  Scope
	newFn  func() *T
	listFn func(*T) []Variable
	keys   []string
}

// NewSchema validates a schema by building one prototype and checking
// its variables: none nil, all of the given scope, keys non-empty and
// unique.
func NewSchema[T any](scope Scope, newFn func() *T, listFn func(*T) []Variable) (*Schema[T], error) {
	if newFn == nil || listFn == nil {
		return nil, errors.New("remotevar: schema needs both a constructor and a variable list")
	}
	prototype := newFn()
	if prototype == nil {
		return nil, errors.New("remotevar: schema constructor returned nil")
	}
	variables := listFn(prototype)
	keys := make([]string, 0, len(variables))
	seen := make(map[string]struct{}, len(variables))
	for position, variable := range variables {
		if variable == nil {
			return nil, fmt.Errorf("remotevar: variable %d is nil", position)
		}
		if variable.Scope() != scope {
			return nil, fmt.Errorf("remotevar: variable %q has scope %s, schema wants %s", variable.Key(), variable.Scope(), scope)
		}
		key := variable.Key()
		if key == "" {
			return nil, fmt.Errorf("remotevar: variable %d has an empty key", position)
		}
		if _, duplicate := seen[key]; duplicate {
			return nil, fmt.Errorf("remotevar: duplicate key %q", key)
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return &Schema[T]{scope: scope, newFn: newFn, listFn: listFn, keys: keys}, nil
}

// MustSchema is NewSchema for package-level declarations. It panics on
// an invalid schema.
func MustSchema[T any](scope Scope, newFn func() *T, listFn func(*T) []Variable) *Schema[T] {
	schema, err := NewSchema(scope, newFn, listFn)
	if err != nil {
		panic(err)
	}
	return schema
}

func (s *Schema[T]) Scope() Scope { return s.scope }

// Keys returns the declared keys in declaration order.
func (s *Schema[T]) Keys() []string { return slices.Clone(s.keys) }

// New builds a fresh owner and its registry.
func (s *Schema[T]) New() (*T, *Registry) {
	owner := s.newFn()
	registry, err := s.Bind(owner)
	if err != nil {
		// The constructor was validated when the schema was built.
		panic(err)
	}
	return owner, registry
}

// Bind builds a registry over an existing owner. It fails when the
// owner's variables do not match the schema's keys.
func (s *Schema[T]) Bind(owner *T) (*Registry, error) {
	if owner == nil {
		return nil, errors.New("remotevar: binding a nil owner")
	}
	variables := s.listFn(owner)
	if len(variables) != len(s.keys) {
		return nil, fmt.Errorf("remotevar: owner lists %d variables, schema declares %d", len(variables), len(s.keys))
	}
	registry := &Registry{
		variables: make([]Variable, len(variables)),
		byKey:     make(map[string]Variable, len(variables)),
	}
	for position, variable := range variables {
		if variable == nil || variable.Key() != s.keys[position] {
			return nil, fmt.Errorf("remotevar: owner variable %d does not match key %q", position, s.keys[position])
		}
		registry.variables[position] = variable
		registry.byKey[variable.Key()] = variable
	}
	return registry, nil
}

// None is the owner type for rooms or participants that declare no
// variables.
type None struct{}

// NoRoomVariables and NoParticipantVariables are empty schemas.
var (
	NoRoomVariables        = MustSchema(ScopeRoom, func() *None { return &None{} }, func(*None) []Variable { return nil })
	NoParticipantVariables = MustSchema(ScopeParticipant, func() *None { return &None{} }, func(*None) []Variable { return nil })
)
