// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/roomsync/lib/config"
	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
)

// Client acts as one participant against a Service.
type Client struct {
	service       *Service
	participantID string
}

var _ roomservice.Client = (*Client)(nil)

func (c *Client) ParticipantID() string { return c.participantID }

func serviceError(op config.Operation, code string, status int, format string, args ...any) error {
	return &roomservice.ServiceError{
		Op:         string(op),
		Code:       code,
		StatusCode: status,
		Message:    fmt.Sprintf(format, args...),
	}
}

// begin checks the context and any injected failure for op.
func (c *Client) begin(ctx context.Context, op config.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.service.takeFailure(op)
}

// memberRoomLocked looks up a room the caller must belong to.
func (c *Client) memberRoomLocked(op config.Operation, roomID string) (*room, error) {
	r, ok := c.service.rooms[roomID]
	if !ok {
		return nil, serviceError(op, roomservice.CodeNotFound, http.StatusNotFound, "room %s not found", roomID)
	}
	if r.indexOf(c.participantID) < 0 {
		return nil, serviceError(op, roomservice.CodeForbidden, http.StatusForbidden, "%s is not a member of room %s", c.participantID, roomID)
	}
	return r, nil
}

func (c *Client) hostRoomLocked(op config.Operation, roomID string) (*room, error) {
	r, err := c.memberRoomLocked(op, roomID)
	if err != nil {
		return nil, err
	}
	if r.hostID != c.participantID {
		return nil, serviceError(op, roomservice.CodeForbidden, http.StatusForbidden, "only the host may %s", op)
	}
	return r, nil
}

func (c *Client) Create(ctx context.Context, name string, capacity int, options roomservice.CreateOptions) (*roomservice.RoomSnapshot, error) {
	if err := c.begin(ctx, config.Create); err != nil {
		return nil, err
	}
	s := c.service
	if name == "" {
		return nil, serviceError(config.Create, roomservice.CodeInvalidArgument, http.StatusBadRequest, "room name is required")
	}
	if capacity < 1 || capacity > s.maxCapacity {
		return nil, serviceError(config.Create, roomservice.CodeInvalidArgument, http.StatusBadRequest, "capacity %d outside 1..%d", capacity, s.maxCapacity)
	}
	if err := validateData(config.Create, remotevar.ScopeRoom, options.Data); err != nil {
		return nil, err
	}
	if err := validateData(config.Create, remotevar.ScopeParticipant, options.Participant.Data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	r := &room{
		id:        uuid.NewString(),
		code:      s.newCodeLocked(),
		name:      name,
		hostID:    c.participantID,
		private:   options.IsPrivate,
		locked:    options.IsLocked,
		capacity:  capacity,
		created:   now,
		updated:   now,
		keepAlive: now,
		version:   1,
		data:      cloneData(options.Data),
	}
	r.participants = []*participant{c.newParticipant(now, options.Participant)}
	s.rooms[r.id] = r
	s.codes[r.code] = r.id

	s.logger.Info("room created", "room_id", r.id, "host", c.participantID, "capacity", capacity)
	return r.view(c.participantID, false), nil
}

func (c *Client) newParticipant(now time.Time, options roomservice.ParticipantOptions) *participant {
	return &participant{
		id:             c.participantID,
		connectionInfo: options.ConnectionInfo,
		allocationID:   options.AllocationID,
		joined:         now,
		updated:        now,
		data:           cloneData(options.Data),
	}
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (s *Service) newCodeLocked() string {
	for {
		random := uuid.New()
		code := make([]byte, 6)
		for i := range code {
			code[i] = codeAlphabet[int(random[i])%len(codeAlphabet)]
		}
		if _, taken := s.codes[string(code)]; !taken {
			return string(code)
		}
	}
}

func (c *Client) JoinByID(ctx context.Context, roomID string, options roomservice.JoinOptions) (*roomservice.RoomSnapshot, error) {
	if err := c.begin(ctx, config.Join); err != nil {
		return nil, err
	}
	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, serviceError(config.Join, roomservice.CodeNotFound, http.StatusNotFound, "room %s not found", roomID)
	}
	return c.joinLocked(config.Join, r, options.Participant)
}

func (c *Client) JoinByCode(ctx context.Context, code string, options roomservice.JoinOptions) (*roomservice.RoomSnapshot, error) {
	if err := c.begin(ctx, config.Join); err != nil {
		return nil, err
	}
	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.codes[code]
	if !ok {
		return nil, serviceError(config.Join, roomservice.CodeNotFound, http.StatusNotFound, "no room with code %q", code)
	}
	return c.joinLocked(config.Join, s.rooms[roomID], options.Participant)
}

func (c *Client) QuickJoin(ctx context.Context, options roomservice.QuickJoinOptions) (*roomservice.RoomSnapshot, error) {
	if err := c.begin(ctx, config.QuickJoin); err != nil {
		return nil, err
	}
	for _, filter := range options.Filters {
		if err := filter.Validate(); err != nil {
			return nil, serviceError(config.QuickJoin, roomservice.CodeInvalidArgument, http.StatusBadRequest, "%v", err)
		}
	}
	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.selectRoomsLocked(options.Filters, nil) {
		if r.indexOf(c.participantID) >= 0 {
			continue
		}
		return c.joinLocked(config.QuickJoin, r, options.Participant)
	}
	return nil, serviceError(config.QuickJoin, roomservice.CodeNoMatch, http.StatusNotFound, "no open room matches")
}

// joinLocked adds the caller to r. Joining a room the caller is
// already in returns its snapshot unchanged.
func (c *Client) joinLocked(op config.Operation, r *room, options roomservice.ParticipantOptions) (*roomservice.RoomSnapshot, error) {
	if r.indexOf(c.participantID) >= 0 {
		return r.view(c.participantID, false), nil
	}
	if r.locked {
		return nil, serviceError(op, roomservice.CodeRoomLocked, http.StatusForbidden, "room %s is locked", r.id)
	}
	if r.availableSlots() <= 0 {
		return nil, serviceError(op, roomservice.CodeRoomFull, http.StatusConflict, "room %s is full", r.id)
	}
	if err := validateData(op, remotevar.ScopeParticipant, options.Data); err != nil {
		return nil, err
	}

	s := c.service
	s.mutateLocked(r, func() {
		r.participants = append(r.participants, c.newParticipant(s.clock.Now(), options))
	})
	s.logger.Info("participant joined", "room_id", r.id, "participant_id", c.participantID)
	return r.view(c.participantID, false), nil
}

func (c *Client) Query(ctx context.Context, options roomservice.QueryOptions) ([]roomservice.RoomSummary, error) {
	if err := c.begin(ctx, config.Query); err != nil {
		return nil, err
	}
	for _, filter := range options.Filters {
		if err := filter.Validate(); err != nil {
			return nil, serviceError(config.Query, roomservice.CodeInvalidArgument, http.StatusBadRequest, "%v", err)
		}
	}
	count := options.Count
	switch {
	case count == 0:
		count = defaultQueryCount
	case count < 0 || count > maxQueryCount:
		return nil, serviceError(config.Query, roomservice.CodeInvalidArgument, http.StatusBadRequest, "count %d outside 1..%d", count, maxQueryCount)
	}
	if options.Skip < 0 {
		return nil, serviceError(config.Query, roomservice.CodeInvalidArgument, http.StatusBadRequest, "negative skip")
	}

	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := s.selectRoomsLocked(options.Filters, options.Order)
	if options.Skip >= len(selected) {
		return []roomservice.RoomSummary{}, nil
	}
	selected = selected[options.Skip:]
	if len(selected) > count {
		selected = selected[:count]
	}
	summaries := make([]roomservice.RoomSummary, len(selected))
	for i, r := range selected {
		summaries[i] = r.summary()
	}
	return summaries, nil
}

func (c *Client) Get(ctx context.Context, roomID string) (*roomservice.RoomSnapshot, error) {
	if err := c.begin(ctx, config.Get); err != nil {
		return nil, err
	}
	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := c.memberRoomLocked(config.Get, roomID)
	if err != nil {
		return nil, err
	}
	return r.view(c.participantID, false), nil
}

func (c *Client) UpdateRoom(ctx context.Context, roomID string, options roomservice.UpdateRoomOptions) (*roomservice.RoomSnapshot, error) {
	if err := c.begin(ctx, config.UpdateRoom); err != nil {
		return nil, err
	}
	if err := validateData(config.UpdateRoom, remotevar.ScopeRoom, options.Data); err != nil {
		return nil, err
	}
	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := c.hostRoomLocked(config.UpdateRoom, roomID)
	if err != nil {
		return nil, err
	}
	if options.Name != nil && *options.Name == "" {
		return nil, serviceError(config.UpdateRoom, roomservice.CodeInvalidArgument, http.StatusBadRequest, "room name is required")
	}
	if options.MaxParticipants != nil {
		capacity := *options.MaxParticipants
		if capacity < len(r.participants) || capacity < 1 || capacity > s.maxCapacity {
			return nil, serviceError(config.UpdateRoom, roomservice.CodeInvalidArgument, http.StatusBadRequest,
				"capacity %d outside %d..%d", capacity, max(len(r.participants), 1), s.maxCapacity)
		}
	}
	if options.HostID != nil && r.indexOf(*options.HostID) < 0 {
		return nil, serviceError(config.UpdateRoom, roomservice.CodeInvalidArgument, http.StatusBadRequest, "new host %s is not a member", *options.HostID)
	}

	s.mutateLocked(r, func() {
		if options.Name != nil {
			r.name = *options.Name
		}
		if options.MaxParticipants != nil {
			r.capacity = *options.MaxParticipants
		}
		if options.IsPrivate != nil {
			r.private = *options.IsPrivate
		}
		if options.IsLocked != nil {
			r.locked = *options.IsLocked
		}
		if options.HostID != nil {
			r.hostID = *options.HostID
		}
		applyData(r.data, options.Data, options.RemoveKeys)
	})
	return r.view(c.participantID, false), nil
}

func (c *Client) UpdateParticipant(ctx context.Context, roomID, participantID string, options roomservice.UpdateParticipantOptions) (*roomservice.RoomSnapshot, error) {
	if err := c.begin(ctx, config.UpdateParticipant); err != nil {
		return nil, err
	}
	if err := validateData(config.UpdateParticipant, remotevar.ScopeParticipant, options.Data); err != nil {
		return nil, err
	}
	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := c.memberRoomLocked(config.UpdateParticipant, roomID)
	if err != nil {
		return nil, err
	}
	if participantID != c.participantID && r.hostID != c.participantID {
		return nil, serviceError(config.UpdateParticipant, roomservice.CodeForbidden, http.StatusForbidden, "cannot update participant %s", participantID)
	}
	index := r.indexOf(participantID)
	if index < 0 {
		return nil, serviceError(config.UpdateParticipant, roomservice.CodeNotFound, http.StatusNotFound, "participant %s not in room %s", participantID, roomID)
	}

	target := r.participants[index]
	s.mutateLocked(r, func() {
		if options.ConnectionInfo != nil {
			target.connectionInfo = *options.ConnectionInfo
		}
		if options.AllocationID != nil {
			target.allocationID = *options.AllocationID
		}
		applyData(target.data, options.Data, options.RemoveKeys)
		target.updated = s.clock.Now()
	})
	return r.view(c.participantID, false), nil
}

func (c *Client) RemoveParticipant(ctx context.Context, roomID, participantID string) error {
	if err := c.begin(ctx, config.RemoveParticipant); err != nil {
		return err
	}
	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := c.memberRoomLocked(config.RemoveParticipant, roomID)
	if err != nil {
		return err
	}
	self := participantID == c.participantID
	if !self && r.hostID != c.participantID {
		return serviceError(config.RemoveParticipant, roomservice.CodeForbidden, http.StatusForbidden, "only the host may remove %s", participantID)
	}
	if r.indexOf(participantID) < 0 {
		return serviceError(config.RemoveParticipant, roomservice.CodeNotFound, http.StatusNotFound, "participant %s not in room %s", participantID, roomID)
	}

	s.removeLocked(r, participantID, !self)
	s.logger.Info("participant removed", "room_id", roomID, "participant_id", participantID, "by", c.participantID)
	return nil
}

func (c *Client) Delete(ctx context.Context, roomID string) error {
	if err := c.begin(ctx, config.Delete); err != nil {
		return err
	}
	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := c.hostRoomLocked(config.Delete, roomID)
	if err != nil {
		return err
	}
	s.deleteRoomLocked(r)
	s.logger.Info("room deleted", "room_id", roomID)
	return nil
}

func (c *Client) SendKeepAlive(ctx context.Context, roomID string) error {
	if err := c.begin(ctx, config.KeepAlive); err != nil {
		return err
	}
	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := c.hostRoomLocked(config.KeepAlive, roomID)
	if err != nil {
		return err
	}
	r.keepAlive = s.clock.Now()
	return nil
}

func (c *Client) SubscribeToEvents(ctx context.Context, roomID string, handlers roomservice.EventHandlers) (roomservice.Subscription, error) {
	if err := c.begin(ctx, config.Subscribe); err != nil {
		return nil, err
	}
	s := c.service
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := c.memberRoomLocked(config.Subscribe, roomID)
	if err != nil {
		return nil, err
	}
	sub := newSubscription(s, roomID, c.participantID, handlers)
	sub.pushState(roomservice.Subscribing)
	sub.pushState(roomservice.Subscribed)
	r.subscribers = append(r.subscribers, sub)
	return sub, nil
}

// validateData rejects values the service would refuse to store:
// unknown visibility, indexed participant data, and non-numeric values
// in numeric slots.
func validateData(op config.Operation, scope remotevar.Scope, data map[string]remotevar.DataObject) error {
	for key, value := range data {
		if key == "" {
			return serviceError(op, roomservice.CodeInvalidArgument, http.StatusBadRequest, "empty data key")
		}
		if value.Visibility > remotevar.Private {
			return serviceError(op, roomservice.CodeInvalidArgument, http.StatusBadRequest, "%s: invalid visibility %d", key, value.Visibility)
		}
		if value.Index > remotevar.N5 {
			return serviceError(op, roomservice.CodeInvalidArgument, http.StatusBadRequest, "%s: invalid index %d", key, value.Index)
		}
		if scope == remotevar.ScopeParticipant && value.Index != remotevar.NoIndex {
			return serviceError(op, roomservice.CodeInvalidArgument, http.StatusBadRequest, "%s: participant data cannot be indexed", key)
		}
		if value.Index.Numeric() {
			if _, err := strconv.ParseFloat(value.Value, 64); err != nil {
				return serviceError(op, roomservice.CodeInvalidArgument, http.StatusBadRequest, "%s: %s slot needs a number, got %q", key, value.Index, value.Value)
			}
		}
	}
	return nil
}

func applyData(target, set map[string]remotevar.DataObject, remove []string) {
	maps.Copy(target, set)
	for _, key := range remove {
		delete(target, key)
	}
}

func cloneData(data map[string]remotevar.DataObject) map[string]remotevar.DataObject {
	if data == nil {
		return make(map[string]remotevar.DataObject)
	}
	return maps.Clone(data)
}
