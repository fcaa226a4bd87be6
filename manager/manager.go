// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/roomsync/lib/clock"
	"github.com/bureau-foundation/roomsync/lib/config"
	"github.com/bureau-foundation/roomsync/lib/observable"
	"github.com/bureau-foundation/roomsync/lib/ratelimit"
	"github.com/bureau-foundation/roomsync/mirror"
	"github.com/bureau-foundation/roomsync/roomservice"
)

// ErrNotInRoom is returned by operations that need a bound room.
var ErrNotInRoom = errors.New("manager: not in a room")

// ErrNotHost is returned by host-only operations when the local
// participant does not host the bound room.
var ErrNotHost = errors.New("manager: local participant is not the host")

// Config configures a Manager.
type Config struct {
	// Client is the service connection. Its participant id becomes the
	// mirror's local id.
	Client roomservice.Client

	// Settings supplies limits, the keep-alive interval, and room
	// defaults. Defaults to config.Default().
	Settings *config.Config

	// ResyncOnStale fetches a full snapshot whenever a change set
	// references participants or keys the mirror does not know.
	ResyncOnStale bool

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manager is safe for concurrent use.
type Manager[R, P any] struct {
	client   roomservice.Client
	room     *mirror.Room[R, P]
	settings *config.Config
	resync   bool
	logger   *slog.Logger

	limiters  map[config.Operation]*ratelimit.Limiter
	keepAlive *KeepAlive
	state     *observable.Cell[roomservice.ConnectionState]

	// lifetime is cancelled by Close and bounds background resyncs.
	lifetime context.Context
	shutdown context.CancelFunc

	mu      sync.Mutex
	binding *binding
	closed  bool

	// syncMu serializes writes into the mirror so version checks and
	// the writes they guard are atomic.
	syncMu sync.Mutex
}

// binding is one membership. Event handlers compare against the
// manager's current binding so late events from an old subscription
// are dropped.
type binding struct {
	roomID       string
	subscription roomservice.Subscription

	// version is the newest room version copied into the mirror.
	// Guarded by syncMu.
	version int
}

// New builds a manager around room. The room's local id is set to the
// client's participant id.
func New[R, P any](cfg Config, room *mirror.Room[R, P]) (*Manager[R, P], error) {
	if cfg.Client == nil {
		return nil, errors.New("manager: client is required")
	}
	if room == nil {
		return nil, errors.New("manager: room is required")
	}
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("manager: invalid settings: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("participant_id", cfg.Client.ParticipantID())

	limiters := make(map[config.Operation]*ratelimit.Limiter)
	for _, operation := range config.Operations() {
		limit := cfg.Settings.Limit(operation)
		limiter, err := ratelimit.New(ratelimit.Config{
			Name:    string(operation),
			Permits: limit.Permits,
			Window:  limit.Window.Std(),
			Buffer:  limit.Buffer.Std(),
			Clock:   cfg.Clock,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		limiters[operation] = limiter
	}

	lifetime, shutdown := context.WithCancel(context.Background())
	m := &Manager[R, P]{
		client:   cfg.Client,
		room:     room,
		settings: cfg.Settings,
		resync:   cfg.ResyncOnStale,
		logger:   logger,
		limiters: limiters,
		state:    observable.New(roomservice.Unsubscribed),
		lifetime: lifetime,
		shutdown: shutdown,
	}

	keepAlive, err := NewKeepAlive(KeepAliveConfig{
		Client:     cfg.Client,
		Limiter:    limiters[config.KeepAlive],
		Interval:   cfg.Settings.KeepAlive.Interval.Std(),
		OnRoomGone: m.roomGone,
		Clock:      cfg.Clock,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	m.keepAlive = keepAlive

	room.SetLocalID(cfg.Client.ParticipantID())
	if err := m.applyRoomDefaults(); err != nil {
		return nil, err
	}
	return m, nil
}

// applyRoomDefaults stages the configured capacity and privacy for the
// next Create.
func (m *Manager[R, P]) applyRoomDefaults() error {
	private := m.settings.Room.Private
	return m.room.Configure(m.room.Name().Get(), m.settings.Room.Capacity, &private)
}

// Room returns the mirror.
func (m *Manager[R, P]) Room() *mirror.Room[R, P] { return m.room }

// Limiter returns the limiter for operation.
func (m *Manager[R, P]) Limiter(operation config.Operation) *ratelimit.Limiter {
	return m.limiters[operation]
}

// KeepAlive returns the keep-alive loop.
func (m *Manager[R, P]) KeepAlive() *KeepAlive { return m.keepAlive }

// ConnectionState is the event subscription's state.
func (m *Manager[R, P]) ConnectionState() observable.Value[roomservice.ConnectionState] {
	return m.state
}

// RoomID returns the bound room's id.
func (m *Manager[R, P]) RoomID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.binding == nil {
		return "", false
	}
	return m.binding.roomID, true
}

func (m *Manager[R, P]) boundRoomID() (string, error) {
	roomID, ok := m.RoomID()
	if !ok {
		return "", ErrNotInRoom
	}
	return roomID, nil
}

func (m *Manager[R, P]) requireHost() (string, error) {
	roomID, err := m.boundRoomID()
	if err != nil {
		return "", err
	}
	if !m.room.IsLocalHost() {
		return "", ErrNotHost
	}
	return roomID, nil
}

func (m *Manager[R, P]) requireUnbound() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ratelimit.ErrClosed
	}
	if m.binding != nil {
		return fmt.Errorf("manager: already in room %s; leave it first", m.binding.roomID)
	}
	return nil
}

// localParticipant is the local participant's state for create and
// join calls: every declared variable plus connection details.
func (m *Manager[R, P]) localParticipant() (roomservice.ParticipantOptions, error) {
	local := m.room.Local()
	data, err := local.Registry().DataObjects()
	if err != nil {
		return roomservice.ParticipantOptions{}, err
	}
	return roomservice.ParticipantOptions{
		ConnectionInfo: local.ConnectionInfo().Get(),
		AllocationID:   local.AllocationID().Get(),
		Data:           data,
	}, nil
}
