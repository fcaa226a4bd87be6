// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import "sync"

// observerList is an ordered set of callbacks. Callers snapshot it
// and invoke the callbacks outside any lock.
type observerList[T any] struct {
	mu      sync.Mutex
	entries []observerEntry[T]
	nextID  uint64
}

type observerEntry[T any] struct {
	id       uint64
	callback func(T)
}

func (l *observerList[T]) add(callback func(T)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.entries = append(l.entries, observerEntry[T]{id: id, callback: callback})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, entry := range l.entries {
			if entry.id == id {
				l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
				return
			}
		}
	}
}

func (l *observerList[T]) notify(value T) {
	l.mu.Lock()
	callbacks := make([]func(T), len(l.entries))
	for i, entry := range l.entries {
		callbacks[i] = entry.callback
	}
	l.mu.Unlock()

	for _, callback := range callbacks {
		callback(value)
	}
}
