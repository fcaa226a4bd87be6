// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/roomsync/lib/clock"
	"github.com/bureau-foundation/roomsync/lib/config"
	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
)

// DefaultTTL is how long a room lives without a keep-alive.
const DefaultTTL = 30 * time.Second

// Config configures a Service.
type Config struct {
	// Clock defaults to clock.Real().
	Clock clock.Clock
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// TTL defaults to DefaultTTL.
	TTL time.Duration
	// MaxCapacity bounds room capacity. Defaults to 100.
	MaxCapacity int
}

// Service holds every room. It is safe for concurrent use.
type Service struct {
	clock       clock.Clock
	logger      *slog.Logger
	ttl         time.Duration
	maxCapacity int

	mu       sync.Mutex
	rooms    map[string]*room
	codes    map[string]string
	failures map[config.Operation][]error
}

type room struct {
	id        string
	code      string
	name      string
	hostID    string
	private   bool
	locked    bool
	capacity  int
	created   time.Time
	updated   time.Time
	keepAlive time.Time
	version   int

	data         map[string]remotevar.DataObject
	participants []*participant
	subscribers  []*subscription
}

type participant struct {
	id             string
	connectionInfo string
	allocationID   string
	joined         time.Time
	updated        time.Time
	data           map[string]remotevar.DataObject
}

// New returns an empty service.
func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 100
	}
	return &Service{
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		ttl:         cfg.TTL,
		maxCapacity: cfg.MaxCapacity,
		rooms:       make(map[string]*room),
		codes:       make(map[string]string),
		failures:    make(map[config.Operation][]error),
	}
}

// Client returns a client acting as participantID. An empty id gets a
// fresh random one.
func (s *Service) Client(participantID string) *Client {
	if participantID == "" {
		participantID = uuid.NewString()
	}
	return &Client{service: s, participantID: participantID}
}

// FailNext makes the next call of operation fail with err before it
// touches any state. Queued failures are consumed in order.
func (s *Service) FailNext(operation config.Operation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = append(s.failures[operation], err)
}

func (s *Service) takeFailure(operation config.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.failures[operation]
	if len(queued) == 0 {
		return nil
	}
	s.failures[operation] = queued[1:]
	return queued[0]
}

// Sweep deletes every room whose last keep-alive is older than the
// TTL and returns their ids.
func (s *Service) Sweep() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-s.ttl)
	var expired []string
	for id, r := range s.rooms {
		if r.keepAlive.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	slices.Sort(expired)
	for _, id := range expired {
		s.logger.Info("room expired", "room_id", id, "ttl", s.ttl)
		s.deleteRoomLocked(s.rooms[id])
	}
	return expired
}

// Snapshot returns the unfiltered state of a room, as the service
// stores it.
func (s *Service) Snapshot(roomID string) (*roomservice.RoomSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	return r.view("", true), true
}

// RoomCount returns the number of live rooms.
func (s *Service) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// mutateLocked runs change against r and publishes the result to every
// subscriber that is still a member afterwards.
func (s *Service) mutateLocked(r *room, change func()) {
	before := make([]*roomservice.RoomSnapshot, len(r.subscribers))
	for i, sub := range r.subscribers {
		before[i] = r.view(sub.participantID, false)
	}

	change()
	r.version++
	r.updated = s.clock.Now()

	for i, sub := range r.subscribers {
		if r.indexOf(sub.participantID) < 0 {
			continue
		}
		changes := roomservice.Diff(before[i], r.view(sub.participantID, false))
		changes.Version = r.version
		sub.push(func(handlers roomservice.EventHandlers) {
			if handlers.RoomChanged != nil {
				handlers.RoomChanged(changes)
			}
		})
	}
}

// removeLocked removes participantID from r. kicked selects whether
// that participant's subscriptions see Kicked. The host role moves to
// the first remaining participant; an empty room is deleted.
func (s *Service) removeLocked(r *room, participantID string, kicked bool) {
	s.mutateLocked(r, func() {
		index := r.indexOf(participantID)
		r.participants = slices.Delete(r.participants, index, index+1)
		if r.hostID == participantID && len(r.participants) > 0 {
			r.hostID = r.participants[0].id
			s.logger.Info("host migrated", "room_id", r.id, "from", participantID, "to", r.hostID)
		}
	})

	r.subscribers = slices.DeleteFunc(r.subscribers, func(sub *subscription) bool {
		if sub.participantID != participantID {
			return false
		}
		if kicked {
			sub.push(func(handlers roomservice.EventHandlers) {
				if handlers.Kicked != nil {
					handlers.Kicked()
				}
			})
		}
		sub.pushState(roomservice.Unsubscribed)
		sub.finish()
		return true
	})

	if len(r.participants) == 0 {
		s.deleteRoomLocked(r)
	}
}

func (s *Service) deleteRoomLocked(r *room) {
	for _, sub := range r.subscribers {
		sub.push(func(handlers roomservice.EventHandlers) {
			if handlers.RoomDeleted != nil {
				handlers.RoomDeleted()
			}
		})
		sub.pushState(roomservice.Unsubscribed)
		sub.finish()
	}
	r.subscribers = nil
	delete(s.rooms, r.id)
	delete(s.codes, r.code)
}

func (s *Service) unsubscribe(target *subscription) {
	s.mu.Lock()
	if r, ok := s.rooms[target.roomID]; ok {
		r.subscribers = slices.DeleteFunc(r.subscribers, func(sub *subscription) bool { return sub == target })
	}
	s.mu.Unlock()
	target.stop()
}

func (r *room) indexOf(participantID string) int {
	return slices.IndexFunc(r.participants, func(p *participant) bool { return p.id == participantID })
}

func (r *room) availableSlots() int {
	return r.capacity - len(r.participants)
}

// view builds the snapshot viewer may see. all bypasses visibility.
func (r *room) view(viewerID string, all bool) *roomservice.RoomSnapshot {
	member := all || r.indexOf(viewerID) >= 0
	host := all || viewerID == r.hostID

	snapshot := &roomservice.RoomSnapshot{
		ID:              r.id,
		Name:            r.name,
		HostID:          r.hostID,
		IsPrivate:       r.private,
		IsLocked:        r.locked,
		MaxParticipants: r.capacity,
		AvailableSlots:  r.availableSlots(),
		Created:         r.created,
		LastUpdated:     r.updated,
		Data:            filterData(r.data, member, host),
		Version:         r.version,
	}
	if member {
		snapshot.Code = r.code
	}
	for _, p := range r.participants {
		if !member {
			continue
		}
		snapshot.Participants = append(snapshot.Participants, roomservice.ParticipantSnapshot{
			ID:             p.id,
			ConnectionInfo: p.connectionInfo,
			AllocationID:   p.allocationID,
			Joined:         p.joined,
			LastUpdated:    p.updated,
			Data:           filterData(p.data, member, all || viewerID == p.id),
		})
	}
	return snapshot
}

// filterData keeps Public values, Member values for members, and
// Private values for the owner (the host for room data, the
// participant itself for participant data).
func filterData(data map[string]remotevar.DataObject, member, owner bool) map[string]remotevar.DataObject {
	filtered := make(map[string]remotevar.DataObject, len(data))
	for key, value := range data {
		switch value.Visibility {
		case remotevar.Public:
		case remotevar.Member:
			if !member {
				continue
			}
		case remotevar.Private:
			if !owner {
				continue
			}
		}
		filtered[key] = value
	}
	return filtered
}

func (r *room) summary() roomservice.RoomSummary {
	return roomservice.RoomSummary{
		ID:              r.id,
		Name:            r.name,
		HostID:          r.hostID,
		IsLocked:        r.locked,
		MaxParticipants: r.capacity,
		AvailableSlots:  r.availableSlots(),
		LastUpdated:     r.updated,
		Data:            filterData(r.data, false, false),
	}
}
