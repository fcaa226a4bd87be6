// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/roomsync/lib/observable"
	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
)

var (
	// ErrInvalidSnapshot is returned for a nil snapshot. The room is
	// not modified.
	ErrInvalidSnapshot = errors.New("mirror: invalid snapshot")
	// ErrInvalidChangeSet is returned for a nil change set. The room
	// is not modified.
	ErrInvalidChangeSet = errors.New("mirror: invalid change set")
)

// Defaults restored by Reset.
const (
	DefaultCapacity = 4
)

// RoomConfig describes a Room's variable schemas.
type RoomConfig[R, P any] struct {
	RoomSchema        *remotevar.Schema[R]
	ParticipantSchema *remotevar.Schema[P]
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ApplyResult reports references a reconciliation could not resolve.
// A non-empty result usually means the mirror missed an update; fetch
// a full snapshot to resync.
type ApplyResult struct {
	// IgnoredParticipants are out-of-range participant indices.
	IgnoredParticipants []int
	// UnknownKeys are data keys no variable declares. Participant keys
	// are prefixed with the participant id and a slash.
	UnknownKeys []string
	// ParseErrors are the *remotevar.ParseError values for payloads
	// that failed to parse. Those variables kept their prior values.
	ParseErrors []error
}

// Stale reports whether anything could not be resolved.
func (r ApplyResult) Stale() bool {
	return len(r.IgnoredParticipants) > 0 || len(r.UnknownKeys) > 0 || len(r.ParseErrors) > 0
}

func (r *ApplyResult) addErrors(err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		r.ParseErrors = append(r.ParseErrors, joined.Unwrap()...)
		return
	}
	r.ParseErrors = append(r.ParseErrors, err)
}

func (r *ApplyResult) addParticipantKeys(participantID string, keys []string) {
	for _, key := range keys {
		r.UnknownKeys = append(r.UnknownKeys, participantID+"/"+key)
	}
}

// Room mirrors one remote room. R and P are the room's and each
// participant's declared variable sets.
type Room[R, P any] struct {
	logger            *slog.Logger
	participantSchema *remotevar.Schema[P]

	id             *observable.Cell[string]
	code           *observable.Cell[string]
	hostID         *observable.Cell[string]
	name           *observable.Cell[string]
	locked         *observable.Cell[bool]
	private        *observable.Cell[bool]
	capacity       *observable.Cell[int]
	availableSlots *observable.Cell[int]
	lastUpdated    *observable.Cell[time.Time]

	variables *R
	registry  *remotevar.Registry

	joinedObservers observerList[*Participant[P]]
	leftObservers   observerList[*Participant[P]]

	// reconcileMu serializes CopyFromSnapshot, ApplyChangeSet, and
	// Reset. Held while observers run.
	reconcileMu sync.Mutex

	// mu guards participants. Never held while observers run.
	mu           sync.RWMutex
	participants []*Participant[P]
	local        *Participant[P]
}

// NewRoom returns an empty room with default settings.
func NewRoom[R, P any](cfg RoomConfig[R, P]) (*Room[R, P], error) {
	if cfg.RoomSchema == nil || cfg.ParticipantSchema == nil {
		return nil, errors.New("mirror: room and participant schemas are required")
	}
	if cfg.RoomSchema.Scope() != remotevar.ScopeRoom {
		return nil, fmt.Errorf("mirror: room schema has %s scope", cfg.RoomSchema.Scope())
	}
	if cfg.ParticipantSchema.Scope() != remotevar.ScopeParticipant {
		return nil, fmt.Errorf("mirror: participant schema has %s scope", cfg.ParticipantSchema.Scope())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	variables, registry := cfg.RoomSchema.New()
	return &Room[R, P]{
		logger:            cfg.Logger,
		participantSchema: cfg.ParticipantSchema,
		id:                observable.New(""),
		code:              observable.New(""),
		hostID:            observable.New(""),
		name:              observable.New(""),
		locked:            observable.New(false),
		private:           observable.New(false),
		capacity:          observable.New(DefaultCapacity),
		availableSlots:    observable.New(DefaultCapacity),
		lastUpdated:       observable.NewFunc(time.Time{}, time.Time.Equal),
		variables:         variables,
		registry:          registry,
		local:             NewParticipant(cfg.ParticipantSchema),
	}, nil
}

func (r *Room[R, P]) ID() observable.Value[string]             { return r.id }
func (r *Room[R, P]) Code() observable.Value[string]           { return r.code }
func (r *Room[R, P]) HostID() observable.Value[string]         { return r.hostID }
func (r *Room[R, P]) AvailableSlots() observable.Value[int]    { return r.availableSlots }
func (r *Room[R, P]) LastUpdated() observable.Value[time.Time] { return r.lastUpdated }

// Name, Locked, Private, and Capacity are writable locally; the
// manager pushes them with UpdateRoom.
func (r *Room[R, P]) Name() *observable.Cell[string] { return r.name }
func (r *Room[R, P]) Locked() *observable.Cell[bool]  { return r.locked }
func (r *Room[R, P]) Private() *observable.Cell[bool] { return r.private }
func (r *Room[R, P]) Capacity() *observable.Cell[int] { return r.capacity }

// Variables returns the room's declared variable set.
func (r *Room[R, P]) Variables() *R { return r.variables }

// Registry returns the keyed view of Variables.
func (r *Room[R, P]) Registry() *remotevar.Registry { return r.registry }

// Local returns the local participant. It is the same object for the
// life of the Room.
func (r *Room[R, P]) Local() *Participant[P] { return r.local }

// SetLocalID sets the local participant's identity. Call it before the
// first reconciliation.
func (r *Room[R, P]) SetLocalID(id string) {
	r.local.id.Set(id)
}

// IsLocalHost reports whether the local participant hosts the room.
func (r *Room[R, P]) IsLocalHost() bool {
	localID := r.local.id.Get()
	return localID != "" && localID == r.hostID.Get()
}

// Participants returns the current participants in slot order.
func (r *Room[R, P]) Participants() []*Participant[P] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.participants)
}

// ParticipantCount returns the number of participants.
func (r *Room[R, P]) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Participant returns the participant with the given id.
func (r *Room[R, P]) Participant(id string) (*Participant[P], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, participant := range r.participants {
		if participant.id.Get() == id {
			return participant, true
		}
	}
	return nil, false
}

// OnParticipantJoined registers an observer for participants added to
// the list.
func (r *Room[R, P]) OnParticipantJoined(observer func(*Participant[P])) (cancel func()) {
	return r.joinedObservers.add(observer)
}

// OnParticipantLeft registers an observer for participants removed
// from the list.
func (r *Room[R, P]) OnParticipantLeft(observer func(*Participant[P])) (cancel func()) {
	return r.leftObservers.add(observer)
}

// Configure stages local settings for a room this process is about to
// create or update. A nil private leaves the flag unchanged.
func (r *Room[R, P]) Configure(name string, capacity int, private *bool) error {
	if capacity <= 0 {
		return fmt.Errorf("mirror: capacity must be positive, got %d", capacity)
	}
	r.name.Set(name)
	r.capacity.Set(capacity)
	if private != nil {
		r.private.Set(*private)
	}
	return nil
}

// CopyFromSnapshot overwrites the mirror with snapshot. Participant
// slots are rebuilt in snapshot order: the local participant object is
// reused for the local id, other positions overwrite the existing
// object at that position, and new objects are created past the end.
// Objects no longer in the list raise participant-left; new objects
// raise participant-joined.
func (r *Room[R, P]) CopyFromSnapshot(snapshot *roomservice.RoomSnapshot) (ApplyResult, error) {
	if snapshot == nil {
		return ApplyResult{}, ErrInvalidSnapshot
	}
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	var result ApplyResult
	r.id.Set(snapshot.ID)
	r.code.Set(snapshot.Code)
	r.name.Set(snapshot.Name)
	r.hostID.Set(snapshot.HostID)
	r.private.Set(snapshot.IsPrivate)
	r.locked.Set(snapshot.IsLocked)
	r.capacity.Set(snapshot.MaxParticipants)
	r.availableSlots.Set(snapshot.AvailableSlots)
	r.lastUpdated.Set(snapshot.LastUpdated)

	unknown, err := r.registry.ApplyData(snapshot.Data)
	result.UnknownKeys = append(result.UnknownKeys, unknown...)
	result.addErrors(err)

	old := r.Participants()
	localID := r.local.id.Get()
	next := make([]*Participant[P], len(snapshot.Participants))
	placed := make(map[*Participant[P]]bool, len(snapshot.Participants))
	for i, participantSnapshot := range snapshot.Participants {
		var participant *Participant[P]
		switch {
		case localID != "" && participantSnapshot.ID == localID && !placed[r.local]:
			participant = r.local
		case i < len(old) && old[i] != r.local && !placed[old[i]]:
			participant = old[i]
		default:
			participant = NewParticipant(r.participantSchema)
		}
		placed[participant] = true
		next[i] = participant
	}

	for i, participantSnapshot := range snapshot.Participants {
		unknown, err := next[i].CopyFromSnapshot(participantSnapshot, i, participantSnapshot.ID == snapshot.HostID)
		result.addParticipantKeys(participantSnapshot.ID, unknown)
		result.addErrors(err)
	}

	r.mu.Lock()
	r.participants = next
	r.mu.Unlock()

	if !placed[r.local] {
		r.local.isHost.Set(localID != "" && localID == snapshot.HostID)
	}

	previous := make(map[*Participant[P]]bool, len(old))
	for _, participant := range old {
		previous[participant] = true
		if !placed[participant] {
			participant.slotIndex.Set(-1)
			r.leftObservers.notify(participant)
		}
	}
	for _, participant := range next {
		if !previous[participant] {
			r.joinedObservers.notify(participant)
		}
	}

	r.logResult("snapshot", result)
	return result, nil
}

// ApplyChangeSet applies a sparse change set in order: room fields,
// room variables, joins, leaves, then per-participant changes. A
// removed variable resets to its declared default. Join indices are
// clamped to the list; leave and participant-change indices out of
// range are ignored and reported in the result.
func (r *Room[R, P]) ApplyChangeSet(changes *roomservice.ChangeSet) (ApplyResult, error) {
	if changes == nil {
		return ApplyResult{}, ErrInvalidChangeSet
	}
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	var result ApplyResult
	setIfChanged(r.name, changes.Name)
	setIfChanged(r.private, changes.IsPrivate)
	setIfChanged(r.locked, changes.IsLocked)
	setIfChanged(r.capacity, changes.MaxParticipants)
	hostChanged := changes.HostID.Changed && r.hostID.Set(changes.HostID.Value)
	setIfChanged(r.availableSlots, changes.AvailableSlots)
	setIfChanged(r.lastUpdated, changes.LastUpdated)

	if changes.Data.Changed {
		unknown, err := applyDataChanges(r.registry, changes.Data.Value)
		result.UnknownKeys = append(result.UnknownKeys, unknown...)
		result.addErrors(err)
	}

	membershipChanged := false
	hostID := r.hostID.Get()
	for _, joined := range changes.Joined {
		participant := r.participantForJoin(joined.Participant.ID)
		r.mu.Lock()
		index := min(max(joined.Index, 0), len(r.participants))
		r.participants = slices.Insert(r.participants, index, participant)
		r.mu.Unlock()

		unknown, err := participant.CopyFromSnapshot(joined.Participant, index, joined.Participant.ID == hostID)
		result.addParticipantKeys(joined.Participant.ID, unknown)
		result.addErrors(err)
		membershipChanged = true
		r.joinedObservers.notify(participant)
	}

	for _, index := range changes.Left {
		r.mu.Lock()
		if index < 0 || index >= len(r.participants) {
			r.mu.Unlock()
			result.IgnoredParticipants = append(result.IgnoredParticipants, index)
			continue
		}
		participant := r.participants[index]
		r.participants = slices.Delete(r.participants, index, index+1)
		r.mu.Unlock()

		participant.slotIndex.Set(-1)
		membershipChanged = true
		r.leftObservers.notify(participant)
	}

	current := r.Participants()
	if membershipChanged {
		for i, participant := range current {
			participant.slotIndex.Set(i)
		}
	}
	if hostChanged {
		for _, participant := range current {
			participant.isHost.Set(participant.id.Get() == hostID)
		}
		if !slices.Contains(current, r.local) {
			r.local.isHost.Set(r.local.id.Get() == hostID)
		}
	}

	for _, index := range slices.Sorted(maps.Keys(changes.Participants)) {
		if index < 0 || index >= len(current) {
			result.IgnoredParticipants = append(result.IgnoredParticipants, index)
			continue
		}
		participant := current[index]
		unknown, err := participant.ApplyChanges(changes.Participants[index])
		result.addParticipantKeys(participant.id.Get(), unknown)
		result.addErrors(err)
	}

	r.logResult("change set", result)
	return result, nil
}

// participantForJoin returns the local object for the local id when it
// is not already listed, and a fresh participant otherwise.
func (r *Room[R, P]) participantForJoin(id string) *Participant[P] {
	localID := r.local.id.Get()
	if localID != "" && id == localID {
		r.mu.RLock()
		listed := slices.Contains(r.participants, r.local)
		r.mu.RUnlock()
		if !listed {
			return r.local
		}
	}
	return NewParticipant(r.participantSchema)
}

func setIfChanged[T any](cell *observable.Cell[T], change roomservice.Change[T]) {
	if change.Changed {
		cell.Set(change.Value)
	}
}

func (r *Room[R, P]) logResult(source string, result ApplyResult) {
	if !result.Stale() {
		return
	}
	r.logger.Debug("unresolved references in room update",
		"room_id", r.id.Get(),
		"source", source,
		"ignored_participants", result.IgnoredParticipants,
		"unknown_keys", result.UnknownKeys,
		"parse_errors", len(result.ParseErrors),
	)
}

// Reset restores every field to its default, resets every variable,
// and empties the participant list with participant-left
// notifications. The local participant keeps its id and object
// identity but loses its host flag.
func (r *Room[R, P]) Reset() {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	r.id.Set("")
	r.code.Set("")
	r.hostID.Set("")
	r.name.Set("")
	r.locked.Set(false)
	r.private.Set(false)
	r.capacity.Set(DefaultCapacity)
	r.availableSlots.Set(DefaultCapacity)
	r.lastUpdated.Set(time.Time{})
	r.registry.ResetAll()

	r.mu.Lock()
	dropped := r.participants
	r.participants = nil
	r.mu.Unlock()

	r.local.reset()
	for _, participant := range dropped {
		participant.slotIndex.Set(-1)
		r.leftObservers.notify(participant)
	}
}

// Snapshot serializes the mirror. Copying the result into a fresh Room
// with the same schemas reproduces every field and variable.
func (r *Room[R, P]) Snapshot() (*roomservice.RoomSnapshot, error) {
	data, err := r.registry.DataObjects()
	if err != nil {
		return nil, err
	}
	snapshot := &roomservice.RoomSnapshot{
		ID:              r.id.Get(),
		Code:            r.code.Get(),
		Name:            r.name.Get(),
		HostID:          r.hostID.Get(),
		IsPrivate:       r.private.Get(),
		IsLocked:        r.locked.Get(),
		MaxParticipants: r.capacity.Get(),
		AvailableSlots:  r.availableSlots.Get(),
		LastUpdated:     r.lastUpdated.Get(),
		Data:            data,
	}
	for _, participant := range r.Participants() {
		participantSnapshot, err := participant.ToSnapshot()
		if err != nil {
			return nil, err
		}
		snapshot.Participants = append(snapshot.Participants, participantSnapshot)
	}
	return snapshot, nil
}
