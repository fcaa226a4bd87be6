// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/roomsync/lib/config"
	"github.com/bureau-foundation/roomsync/lib/ratelimit"
	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
)

// Create creates a room hosted by the local participant using the
// mirror's staged name, capacity, and privacy, and every declared
// room variable. The mirror is bound to the new room and keep-alives
// start.
func (m *Manager[R, P]) Create(ctx context.Context) error {
	if err := m.requireUnbound(); err != nil {
		return err
	}
	roomData, err := m.room.Registry().DataObjects()
	if err != nil {
		return fmt.Errorf("manager: creating room: %w", err)
	}
	participant, err := m.localParticipant()
	if err != nil {
		return fmt.Errorf("manager: creating room: %w", err)
	}

	name := m.room.Name().Get()
	capacity := m.room.Capacity().Get()
	snapshot, err := ratelimit.AdmitValue(ctx, m.limiters[config.Create], func(ctx context.Context) (*roomservice.RoomSnapshot, error) {
		revertRoom := m.room.Registry().MarkSent(roomData)
		revertLocal := m.room.Local().Registry().MarkSent(participant.Data)
		snapshot, err := m.client.Create(ctx, name, capacity, roomservice.CreateOptions{
			IsPrivate:   m.room.Private().Get(),
			IsLocked:    m.room.Locked().Get(),
			Data:        roomData,
			Participant: participant,
		})
		if err != nil {
			revertRoom()
			revertLocal()
		}
		return snapshot, err
	})
	if err != nil {
		return fmt.Errorf("manager: creating room %q: %w", name, err)
	}
	return m.bind(ctx, snapshot)
}

// JoinByID joins the room with the given id.
func (m *Manager[R, P]) JoinByID(ctx context.Context, roomID string) error {
	return m.join(ctx, config.Join, "room "+roomID, func(ctx context.Context, options roomservice.ParticipantOptions) (*roomservice.RoomSnapshot, error) {
		return m.client.JoinByID(ctx, roomID, roomservice.JoinOptions{Participant: options})
	})
}

// JoinByCode joins the room with the given join code. It shares the
// join limit with JoinByID.
func (m *Manager[R, P]) JoinByCode(ctx context.Context, code string) error {
	return m.join(ctx, config.Join, "code "+code, func(ctx context.Context, options roomservice.ParticipantOptions) (*roomservice.RoomSnapshot, error) {
		return m.client.JoinByCode(ctx, code, roomservice.JoinOptions{Participant: options})
	})
}

// QuickJoin joins the first open room matching every filter.
func (m *Manager[R, P]) QuickJoin(ctx context.Context, filters ...roomservice.QueryFilter) error {
	return m.join(ctx, config.QuickJoin, "any matching room", func(ctx context.Context, options roomservice.ParticipantOptions) (*roomservice.RoomSnapshot, error) {
		return m.client.QuickJoin(ctx, roomservice.QuickJoinOptions{Filters: filters, Participant: options})
	})
}

func (m *Manager[R, P]) join(ctx context.Context, operation config.Operation, target string,
	joinFn func(context.Context, roomservice.ParticipantOptions) (*roomservice.RoomSnapshot, error),
) error {
	if err := m.requireUnbound(); err != nil {
		return err
	}
	participant, err := m.localParticipant()
	if err != nil {
		return fmt.Errorf("manager: joining %s: %w", target, err)
	}
	snapshot, err := ratelimit.AdmitValue(ctx, m.limiters[operation], func(ctx context.Context) (*roomservice.RoomSnapshot, error) {
		revert := m.room.Local().Registry().MarkSent(participant.Data)
		snapshot, err := joinFn(ctx, participant)
		if err != nil {
			revert()
		}
		return snapshot, err
	})
	if err != nil {
		return fmt.Errorf("manager: joining %s: %w", target, err)
	}
	return m.bind(ctx, snapshot)
}

// Query lists open rooms. It does not need a bound room.
func (m *Manager[R, P]) Query(ctx context.Context, options roomservice.QueryOptions) ([]roomservice.RoomSummary, error) {
	summaries, err := ratelimit.AdmitValue(ctx, m.limiters[config.Query], func(ctx context.Context) ([]roomservice.RoomSummary, error) {
		return m.client.Query(ctx, options)
	})
	if err != nil {
		return nil, fmt.Errorf("manager: querying rooms: %w", err)
	}
	return summaries, nil
}

// Get fetches the bound room's snapshot without touching the mirror.
func (m *Manager[R, P]) Get(ctx context.Context) (*roomservice.RoomSnapshot, error) {
	roomID, err := m.boundRoomID()
	if err != nil {
		return nil, err
	}
	snapshot, err := ratelimit.AdmitValue(ctx, m.limiters[config.Get], func(ctx context.Context) (*roomservice.RoomSnapshot, error) {
		return m.client.Get(ctx, roomID)
	})
	if err != nil {
		return nil, fmt.Errorf("manager: fetching room %s: %w", roomID, err)
	}
	return snapshot, nil
}

// Resync replaces the mirror's state with a fresh snapshot.
func (m *Manager[R, P]) Resync(ctx context.Context) error {
	snapshot, err := m.Get(ctx)
	if err != nil {
		return err
	}
	return m.copyResponse(snapshot)
}

// UpdateRoom pushes the mirror's name, capacity, privacy, lock state,
// and every dirty room variable. Host only.
func (m *Manager[R, P]) UpdateRoom(ctx context.Context) error {
	roomID, err := m.requireHost()
	if err != nil {
		return err
	}
	dirty, err := m.room.Registry().DirtyObjects()
	if err != nil {
		return fmt.Errorf("manager: updating room %s: %w", roomID, err)
	}
	name := m.room.Name().Get()
	capacity := m.room.Capacity().Get()
	private := m.room.Private().Get()
	locked := m.room.Locked().Get()
	return m.updateRoom(ctx, roomID, roomservice.UpdateRoomOptions{
		Name:            &name,
		MaxParticipants: &capacity,
		IsPrivate:       &private,
		IsLocked:        &locked,
		Data:            dirty,
	})
}

// UpdateRoomVariables pushes the named room variables, or every dirty
// one when no keys are given. Host only.
func (m *Manager[R, P]) UpdateRoomVariables(ctx context.Context, keys ...string) error {
	roomID, err := m.requireHost()
	if err != nil {
		return err
	}
	data, err := selectData(m.room.Registry(), keys)
	if err != nil {
		return fmt.Errorf("manager: updating room %s: %w", roomID, err)
	}
	if len(data) == 0 {
		return nil
	}
	return m.updateRoom(ctx, roomID, roomservice.UpdateRoomOptions{Data: data})
}

// TransferHost hands the host role to another participant. Host only.
func (m *Manager[R, P]) TransferHost(ctx context.Context, participantID string) error {
	roomID, err := m.requireHost()
	if err != nil {
		return err
	}
	return m.updateRoom(ctx, roomID, roomservice.UpdateRoomOptions{HostID: &participantID})
}

func (m *Manager[R, P]) updateRoom(ctx context.Context, roomID string, options roomservice.UpdateRoomOptions) error {
	snapshot, err := ratelimit.AdmitValue(ctx, m.limiters[config.UpdateRoom], func(ctx context.Context) (*roomservice.RoomSnapshot, error) {
		// Marked before the call so the subscription's echo of this
		// write, which can arrive before the call returns, does not
		// overwrite edits made while it was in flight.
		revert := m.room.Registry().MarkSent(options.Data)
		snapshot, err := m.client.UpdateRoom(ctx, roomID, options)
		if err != nil {
			revert()
		}
		return snapshot, err
	})
	if err != nil {
		return fmt.Errorf("manager: updating room %s: %w", roomID, err)
	}
	return m.copyResponse(snapshot)
}

// UpdateParticipant pushes the local participant's connection details
// and every dirty participant variable.
func (m *Manager[R, P]) UpdateParticipant(ctx context.Context) error {
	local := m.room.Local()
	dirty, err := local.Registry().DirtyObjects()
	if err != nil {
		return fmt.Errorf("manager: updating participant: %w", err)
	}
	connectionInfo := local.ConnectionInfo().Get()
	allocationID := local.AllocationID().Get()
	return m.updateParticipant(ctx, roomservice.UpdateParticipantOptions{
		ConnectionInfo: &connectionInfo,
		AllocationID:   &allocationID,
		Data:           dirty,
	})
}

// UpdateParticipantConnection sets and pushes the local participant's
// relay allocation and connection details, and nothing else.
func (m *Manager[R, P]) UpdateParticipantConnection(ctx context.Context, allocationID, connectionInfo string) error {
	local := m.room.Local()
	local.AllocationID().Set(allocationID)
	local.ConnectionInfo().Set(connectionInfo)
	return m.updateParticipant(ctx, roomservice.UpdateParticipantOptions{
		ConnectionInfo: &connectionInfo,
		AllocationID:   &allocationID,
	})
}

// PushParticipantVariables pushes the named local participant
// variables, or every dirty one when no keys are given.
func (m *Manager[R, P]) PushParticipantVariables(ctx context.Context, keys ...string) error {
	data, err := selectData(m.room.Local().Registry(), keys)
	if err != nil {
		return fmt.Errorf("manager: updating participant: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return m.updateParticipant(ctx, roomservice.UpdateParticipantOptions{Data: data})
}

func (m *Manager[R, P]) updateParticipant(ctx context.Context, options roomservice.UpdateParticipantOptions) error {
	roomID, err := m.boundRoomID()
	if err != nil {
		return err
	}
	participantID := m.client.ParticipantID()
	registry := m.room.Local().Registry()
	snapshot, err := ratelimit.AdmitValue(ctx, m.limiters[config.UpdateParticipant], func(ctx context.Context) (*roomservice.RoomSnapshot, error) {
		revert := registry.MarkSent(options.Data)
		snapshot, err := m.client.UpdateParticipant(ctx, roomID, participantID, options)
		if err != nil {
			revert()
		}
		return snapshot, err
	})
	if err != nil {
		return fmt.Errorf("manager: updating participant %s in room %s: %w", participantID, roomID, err)
	}
	return m.copyResponse(snapshot)
}

// selectData serializes the named variables, or the dirty ones when
// keys is empty.
func selectData(registry *remotevar.Registry, keys []string) (map[string]remotevar.DataObject, error) {
	if len(keys) == 0 {
		return registry.DirtyObjects()
	}
	data := make(map[string]remotevar.DataObject, len(keys))
	for _, key := range keys {
		variable, ok := registry.Get(key)
		if !ok {
			return nil, fmt.Errorf("no variable declares key %q", key)
		}
		object, err := variable.DataObject()
		if err != nil {
			return nil, err
		}
		data[key] = object
	}
	return data, nil
}

// Leave removes the local participant from the bound room and tears
// the binding down. The binding is torn down even if the call fails.
func (m *Manager[R, P]) Leave(ctx context.Context) error {
	roomID, err := m.boundRoomID()
	if err != nil {
		return err
	}
	participantID := m.client.ParticipantID()
	err = m.limiters[config.RemoveParticipant].Admit(ctx, func(ctx context.Context) error {
		return m.client.RemoveParticipant(ctx, roomID, participantID)
	})
	m.teardown(roomID, "left")
	if err != nil && !roomservice.IsServiceError(err, roomservice.CodeNotFound) {
		return fmt.Errorf("manager: leaving room %s: %w", roomID, err)
	}
	return nil
}

// Kick removes another participant. Host only.
func (m *Manager[R, P]) Kick(ctx context.Context, participantID string) error {
	roomID, err := m.requireHost()
	if err != nil {
		return err
	}
	err = m.limiters[config.RemoveParticipant].Admit(ctx, func(ctx context.Context) error {
		return m.client.RemoveParticipant(ctx, roomID, participantID)
	})
	if err != nil {
		return fmt.Errorf("manager: removing %s from room %s: %w", participantID, roomID, err)
	}
	return nil
}

// Delete deletes the bound room and tears the binding down. Host only.
func (m *Manager[R, P]) Delete(ctx context.Context) error {
	roomID, err := m.requireHost()
	if err != nil {
		return err
	}
	err = m.limiters[config.Delete].Admit(ctx, func(ctx context.Context) error {
		return m.client.Delete(ctx, roomID)
	})
	if err != nil {
		return fmt.Errorf("manager: deleting room %s: %w", roomID, err)
	}
	m.teardown(roomID, "deleted")
	return nil
}

// Close tears down any binding without calling the service, and fails
// every waiting call with ratelimit.ErrClosed. The manager cannot be
// reused.
func (m *Manager[R, P]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var roomID string
	if m.binding != nil {
		roomID = m.binding.roomID
	}
	m.mu.Unlock()

	if roomID != "" {
		m.teardown(roomID, "closed")
	}
	m.shutdown()
	for _, limiter := range m.limiters {
		limiter.Close()
	}
}
