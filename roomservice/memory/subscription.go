// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"sync"

	"github.com/bureau-foundation/roomsync/roomservice"
)

// subscription delivers one subscriber's events in order on its own
// goroutine. The service enqueues under its lock, so queue order is
// mutation order.
type subscription struct {
	service       *Service
	roomID        string
	participantID string
	handlers      roomservice.EventHandlers

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []func(roomservice.EventHandlers)
	draining bool
	stopped  bool
	done     chan struct{}
}

func newSubscription(service *Service, roomID, participantID string, handlers roomservice.EventHandlers) *subscription {
	sub := &subscription{
		service:       service,
		roomID:        roomID,
		participantID: participantID,
		handlers:      handlers,
		done:          make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)
	go sub.run()
	return sub
}

func (s *subscription) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.draining && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		next(s.handlers)
	}
}

func (s *subscription) push(event func(roomservice.EventHandlers)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining || s.stopped {
		return
	}
	s.queue = append(s.queue, event)
	s.cond.Signal()
}

func (s *subscription) pushState(state roomservice.ConnectionState) {
	s.push(func(handlers roomservice.EventHandlers) {
		if handlers.ConnectionStateChanged != nil {
			handlers.ConnectionStateChanged(state)
		}
	})
}

// finish delivers what is queued, then ends the goroutine.
func (s *subscription) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
	s.cond.Signal()
}

// stop drops queued events and ends the goroutine.
func (s *subscription) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.queue = nil
	s.cond.Signal()
}

// Unsubscribe stops delivery. A handler already running when it is
// called may finish; no other handler runs afterwards. It is safe to
// call from inside a handler.
func (s *subscription) Unsubscribe() error {
	s.service.unsubscribe(s)
	return nil
}

// Done is closed when the delivery goroutine exits.
func (s *subscription) Done() <-chan struct{} {
	return s.done
}
