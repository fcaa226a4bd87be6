// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package observable

import "sync"

// Value is the read-only view of a Cell. Mirrors hand out Value for
// fields that only reconciliation may write (room id, host id, ...).
type Value[T any] interface {
	Get() T
	Subscribe(observer func(T)) (cancel func())
}

// Cell holds one value of type T. The zero Cell is not usable; build
// one with New or NewFunc. Cell is safe for concurrent use.
type Cell[T any] struct {
	mu        sync.Mutex
	value     T
	equal     func(a, b T) bool
	observers []observerEntry[T]
	nextID    uint64
}

type observerEntry[T any] struct {
	id       uint64
	observer func(T)
}

// New returns a Cell for a comparable type holding initial. Float
// NaN never compares equal to itself under ==, so a NaN cell notifies
// on every Set; use NewFunc with a NaN-aware equal for such values.
func New[T comparable](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		equal: func(a, b T) bool { return a == b },
	}
}

// NewFunc returns a Cell that compares values with equal. Use it for
// types where == is unavailable or would compare identity.
//
//	tags := observable.NewFunc([]string(nil), slices.Equal[[]string])
func NewFunc[T any](initial T, equal func(a, b T) bool) *Cell[T] {
	return &Cell[T]{value: initial, equal: equal}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set stores value and notifies observers if it differs from the
// current value. It reports whether the value changed.
func (c *Cell[T]) Set(value T) bool {
	c.mu.Lock()
	if c.equal(c.value, value) {
		c.mu.Unlock()
		return false
	}
	c.value = value
	observers := c.snapshotLocked()
	c.mu.Unlock()

	notify(observers, value)
	return true
}

// ForceSet stores value and notifies observers even when it equals the
// current value.
func (c *Cell[T]) ForceSet(value T) {
	c.mu.Lock()
	c.value = value
	observers := c.snapshotLocked()
	c.mu.Unlock()

	notify(observers, value)
}

// SetSilently stores value without notifying anyone.
func (c *Cell[T]) SetSilently(value T) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

// Subscribe registers observer for effective writes. The returned
// cancel func removes it and is safe to call more than once.
func (c *Cell[T]) Subscribe(observer func(T)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.observers = append(c.observers, observerEntry[T]{id: id, observer: observer})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, entry := range c.observers {
			if entry.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// ReadOnly returns c as a Value.
func (c *Cell[T]) ReadOnly() Value[T] { return c }

func (c *Cell[T]) snapshotLocked() []func(T) {
	if len(c.observers) == 0 {
		return nil
	}
	observers := make([]func(T), len(c.observers))
	for i, entry := range c.observers {
		observers[i] = entry.observer
	}
	return observers
}

func notify[T any](observers []func(T), value T) {
	for _, observer := range observers {
		observer(value)
	}
}
