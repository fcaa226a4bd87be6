// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/roomsync/lib/config"
	"github.com/bureau-foundation/roomsync/lib/ratelimit"
	"github.com/bureau-foundation/roomsync/roomservice"
)

// bind copies snapshot into the mirror and subscribes to the room's
// events. Copying a snapshot that makes the local participant host
// starts keep-alives. If the subscription cannot be established the
// binding is torn down and the error returned; the service membership
// is left as is.
func (m *Manager[R, P]) bind(ctx context.Context, snapshot *roomservice.RoomSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("manager: service returned no room")
	}
	current := &binding{roomID: snapshot.ID}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ratelimit.ErrClosed
	}
	if m.binding != nil {
		m.mu.Unlock()
		return fmt.Errorf("manager: already in room %s; leave it first", m.binding.roomID)
	}
	m.binding = current
	m.mu.Unlock()

	if err := m.copySnapshot(current, snapshot); err != nil {
		m.teardownBinding(current, "invalid snapshot")
		return fmt.Errorf("manager: binding room %s: %w", snapshot.ID, err)
	}

	handlers := roomservice.EventHandlers{
		RoomChanged: func(changes *roomservice.ChangeSet) {
			m.roomChanged(current, changes)
		},
		RoomDeleted: func() {
			m.teardownBinding(current, "room deleted")
		},
		Kicked: func() {
			m.teardownBinding(current, "kicked")
		},
		ConnectionStateChanged: func(state roomservice.ConnectionState) {
			m.connectionStateChanged(current, state)
		},
	}
	subscription, err := ratelimit.AdmitValue(ctx, m.limiters[config.Subscribe], func(ctx context.Context) (roomservice.Subscription, error) {
		return m.client.SubscribeToEvents(ctx, current.roomID, handlers)
	})
	if err != nil {
		m.teardownBinding(current, "subscribe failed")
		return fmt.Errorf("manager: subscribing to room %s: %w", current.roomID, err)
	}

	m.mu.Lock()
	stillBound := m.binding == current
	if stillBound {
		current.subscription = subscription
	}
	m.mu.Unlock()
	if !stillBound {
		// An event tore the binding down while the subscribe call was
		// in flight.
		m.unsubscribe(current.roomID, subscription)
		return fmt.Errorf("manager: room %s was lost while subscribing", current.roomID)
	}

	m.logger.Info("bound to room",
		"room_id", current.roomID,
		"host", m.room.IsLocalHost(),
		"participants", m.room.ParticipantCount(),
	)
	return nil
}

// isCurrent reports whether b is still the active binding.
func (m *Manager[R, P]) isCurrent(b *binding) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.binding == b
}

// copySnapshot replaces the mirror with snapshot unless the mirror
// already holds a newer version.
func (m *Manager[R, P]) copySnapshot(b *binding, snapshot *roomservice.RoomSnapshot) error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	if !m.isCurrent(b) {
		return nil
	}
	if snapshot.Version != 0 && snapshot.Version < b.version {
		m.logger.Debug("dropping stale snapshot",
			"room_id", b.roomID, "version", snapshot.Version, "mirror_version", b.version)
		return nil
	}
	wasHost := m.room.IsLocalHost()
	if _, err := m.room.CopyFromSnapshot(snapshot); err != nil {
		return err
	}
	b.version = snapshot.Version
	m.hostChanged(b, wasHost)
	return nil
}

// copyResponse copies a snapshot returned by an update call into the
// bound mirror.
func (m *Manager[R, P]) copyResponse(snapshot *roomservice.RoomSnapshot) error {
	m.mu.Lock()
	current := m.binding
	m.mu.Unlock()
	if current == nil || snapshot == nil || snapshot.ID != current.roomID {
		return nil
	}
	return m.copySnapshot(current, snapshot)
}

func (m *Manager[R, P]) roomChanged(b *binding, changes *roomservice.ChangeSet) {
	m.syncMu.Lock()
	if !m.isCurrent(b) {
		m.syncMu.Unlock()
		return
	}
	if changes.Version != 0 && changes.Version <= b.version {
		m.syncMu.Unlock()
		m.logger.Debug("dropping change set already in mirror",
			"room_id", b.roomID, "version", changes.Version, "mirror_version", b.version)
		return
	}
	wasHost := m.room.IsLocalHost()
	result, err := m.room.ApplyChangeSet(changes)
	if err != nil {
		m.syncMu.Unlock()
		m.logger.Warn("could not apply room change", "room_id", b.roomID, "error", err)
		return
	}
	if changes.Version != 0 {
		b.version = changes.Version
	}
	m.hostChanged(b, wasHost)
	m.syncMu.Unlock()

	if !result.Stale() {
		return
	}
	if !m.resync {
		m.logger.Debug("mirror is stale",
			"room_id", b.roomID,
			"ignored_participants", result.IgnoredParticipants,
			"unknown_keys", result.UnknownKeys,
		)
		return
	}
	m.logger.Info("mirror is stale, resyncing", "room_id", b.roomID)
	snapshot, err := ratelimit.AdmitValue(m.lifetime, m.limiters[config.Get], func(ctx context.Context) (*roomservice.RoomSnapshot, error) {
		return m.client.Get(ctx, b.roomID)
	})
	if err != nil {
		m.logger.Warn("resync failed", "room_id", b.roomID, "error", err)
		return
	}
	if err := m.copySnapshot(b, snapshot); err != nil {
		m.logger.Warn("resync snapshot rejected", "room_id", b.roomID, "error", err)
	}
}

// hostChanged starts or stops keep-alives when the local participant
// gains or loses the host role. Called with syncMu held.
func (m *Manager[R, P]) hostChanged(b *binding, wasHost bool) {
	isHost := m.room.IsLocalHost()
	switch {
	case isHost && !wasHost:
		m.logger.Info("local participant is now host", "room_id", b.roomID)
		m.keepAlive.BeginTracking(b.roomID)
	case !isHost && wasHost:
		m.logger.Info("local participant is no longer host", "room_id", b.roomID)
		m.keepAlive.EndTracking()
	}
}

func (m *Manager[R, P]) connectionStateChanged(b *binding, state roomservice.ConnectionState) {
	if !m.isCurrent(b) {
		return
	}
	if state == roomservice.Failed {
		m.logger.Warn("room subscription failed", "room_id", b.roomID)
	} else {
		m.logger.Debug("room subscription state changed", "room_id", b.roomID, "state", state)
	}
	m.state.Set(state)
}

// roomGone runs when keep-alives find the hosted room missing.
func (m *Manager[R, P]) roomGone(roomID string) {
	m.teardown(roomID, "room expired")
}

// teardown ends the binding to roomID, if that is the bound room.
func (m *Manager[R, P]) teardown(roomID, reason string) {
	m.mu.Lock()
	current := m.binding
	m.mu.Unlock()
	if current != nil && current.roomID == roomID {
		m.teardownBinding(current, reason)
	}
}

// teardownBinding ends keep-alives, unsubscribes, and resets the
// mirror. It is a no-op if b is no longer the active binding, so late
// events from an old subscription cannot disturb a newer one.
func (m *Manager[R, P]) teardownBinding(b *binding, reason string) {
	m.syncMu.Lock()
	m.mu.Lock()
	if m.binding != b {
		m.mu.Unlock()
		m.syncMu.Unlock()
		return
	}
	m.binding = nil
	subscription := b.subscription
	m.mu.Unlock()

	m.keepAlive.EndTracking()
	m.room.Reset()
	if err := m.applyRoomDefaults(); err != nil {
		m.logger.Warn("could not restore room defaults", "error", err)
	}
	m.syncMu.Unlock()

	if subscription != nil {
		m.unsubscribe(b.roomID, subscription)
	}
	m.state.Set(roomservice.Unsubscribed)
	m.logger.Info("unbound from room", "room_id", b.roomID, "reason", reason)
}

func (m *Manager[R, P]) unsubscribe(roomID string, subscription roomservice.Subscription) {
	if err := subscription.Unsubscribe(); err != nil {
		m.logger.Warn("unsubscribe failed", "room_id", roomID, "error", err)
	}
}
