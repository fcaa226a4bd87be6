// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomservice

import "context"

// Client is one participant's connection to the room service. Every
// call acts as that participant. Implementations must be safe for
// concurrent use; they do not rate limit.
type Client interface {
	// ParticipantID is the identity this client acts as.
	ParticipantID() string

	Create(ctx context.Context, name string, capacity int, options CreateOptions) (*RoomSnapshot, error)
	JoinByID(ctx context.Context, roomID string, options JoinOptions) (*RoomSnapshot, error)
	JoinByCode(ctx context.Context, code string, options JoinOptions) (*RoomSnapshot, error)
	QuickJoin(ctx context.Context, options QuickJoinOptions) (*RoomSnapshot, error)
	Query(ctx context.Context, options QueryOptions) ([]RoomSummary, error)
	Get(ctx context.Context, roomID string) (*RoomSnapshot, error)

	UpdateRoom(ctx context.Context, roomID string, options UpdateRoomOptions) (*RoomSnapshot, error)
	UpdateParticipant(ctx context.Context, roomID, participantID string, options UpdateParticipantOptions) (*RoomSnapshot, error)

	// RemoveParticipant removes participantID from the room. A
	// participant may remove itself; the host may remove anyone.
	RemoveParticipant(ctx context.Context, roomID, participantID string) error
	// Delete deletes the room. Host only.
	Delete(ctx context.Context, roomID string) error
	// SendKeepAlive keeps the room from expiring. Host only.
	SendKeepAlive(ctx context.Context, roomID string) error

	SubscribeToEvents(ctx context.Context, roomID string, handlers EventHandlers) (Subscription, error)
}
