// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/roomsync/lib/clock"
	"github.com/bureau-foundation/roomsync/lib/config"
	"github.com/bureau-foundation/roomsync/lib/testutil"
	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
)

const eventTimeout = 5 * time.Second

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	return New(Config{Clock: fake}), fake
}

// events records everything one subscription delivers.
type events struct {
	changes chan *roomservice.ChangeSet
	deleted chan struct{}
	kicked  chan struct{}
	states  chan roomservice.ConnectionState
}

func subscribe(t *testing.T, client *Client, roomID string) (*events, roomservice.Subscription) {
	t.Helper()
	recorded := &events{
		changes: make(chan *roomservice.ChangeSet, 64),
		deleted: make(chan struct{}, 1),
		kicked:  make(chan struct{}, 1),
		states:  make(chan roomservice.ConnectionState, 16),
	}
	sub, err := client.SubscribeToEvents(context.Background(), roomID, roomservice.EventHandlers{
		RoomChanged:            func(changes *roomservice.ChangeSet) { recorded.changes <- changes },
		RoomDeleted:            func() { recorded.deleted <- struct{}{} },
		Kicked:                 func() { recorded.kicked <- struct{}{} },
		ConnectionStateChanged: func(state roomservice.ConnectionState) { recorded.states <- state },
	})
	if err != nil {
		t.Fatalf("SubscribeToEvents: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	if state := testutil.RequireReceive(t, recorded.states, eventTimeout); state != roomservice.Subscribing {
		t.Fatalf("first state = %v, want subscribing", state)
	}
	if state := testutil.RequireReceive(t, recorded.states, eventTimeout); state != roomservice.Subscribed {
		t.Fatalf("second state = %v, want subscribed", state)
	}
	return recorded, sub
}

func createRoom(t *testing.T, host *Client, options roomservice.CreateOptions) *roomservice.RoomSnapshot {
	t.Helper()
	snapshot, err := host.Create(context.Background(), "lobby", 4, options)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return snapshot
}

func TestCreateAndJoin(t *testing.T) {
	svc, _ := newTestService(t)
	host := svc.Client("host")
	guest := svc.Client("guest")
	ctx := context.Background()

	created := createRoom(t, host, roomservice.CreateOptions{})
	if created.HostID != "host" || len(created.Participants) != 1 || created.AvailableSlots != 3 {
		t.Fatalf("created = %+v", created)
	}
	if len(created.Code) != 6 {
		t.Errorf("code = %q, want 6 characters", created.Code)
	}

	hostEvents, _ := subscribe(t, host, created.ID)

	joined, err := guest.JoinByCode(ctx, created.Code, roomservice.JoinOptions{})
	if err != nil {
		t.Fatalf("JoinByCode: %v", err)
	}
	if len(joined.Participants) != 2 || joined.Participants[1].ID != "guest" {
		t.Fatalf("joined participants = %+v", joined.Participants)
	}

	changes := testutil.RequireReceive(t, hostEvents.changes, eventTimeout)
	if len(changes.Joined) != 1 || changes.Joined[0].Index != 1 || changes.Joined[0].Participant.ID != "guest" {
		t.Errorf("Joined = %+v", changes.Joined)
	}
	if !changes.AvailableSlots.Changed || changes.AvailableSlots.Value != 2 {
		t.Errorf("AvailableSlots = %+v", changes.AvailableSlots)
	}

	// Joining again is idempotent.
	again, err := guest.JoinByID(ctx, created.ID, roomservice.JoinOptions{})
	if err != nil || len(again.Participants) != 2 {
		t.Errorf("second join = %v, %v", again, err)
	}
}

func TestJoinRejections(t *testing.T) {
	svc, _ := newTestService(t)
	host := svc.Client("host")
	ctx := context.Background()

	snapshot, err := host.Create(ctx, "duo", 2, roomservice.CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Client("second").JoinByID(ctx, snapshot.ID, roomservice.JoinOptions{}); err != nil {
		t.Fatal(err)
	}

	_, err = svc.Client("third").JoinByID(ctx, snapshot.ID, roomservice.JoinOptions{})
	if !roomservice.IsServiceError(err, roomservice.CodeRoomFull) {
		t.Errorf("join full room: %v", err)
	}

	locked := true
	capacity := 3
	if _, err := host.UpdateRoom(ctx, snapshot.ID, roomservice.UpdateRoomOptions{IsLocked: &locked, MaxParticipants: &capacity}); err != nil {
		t.Fatal(err)
	}
	_, err = svc.Client("third").JoinByID(ctx, snapshot.ID, roomservice.JoinOptions{})
	if !roomservice.IsServiceError(err, roomservice.CodeRoomLocked) {
		t.Errorf("join locked room: %v", err)
	}

	_, err = svc.Client("third").JoinByCode(ctx, "ZZZZZZ", roomservice.JoinOptions{})
	if !roomservice.IsServiceError(err, roomservice.CodeNotFound) {
		t.Errorf("join unknown code: %v", err)
	}
}

func TestVisibilityFiltering(t *testing.T) {
	svc, _ := newTestService(t)
	host := svc.Client("host")
	guest := svc.Client("guest")
	ctx := context.Background()

	snapshot := createRoom(t, host, roomservice.CreateOptions{
		Data: map[string]remotevar.DataObject{
			"Mode":   {Value: "ffa", Visibility: remotevar.Public, Index: remotevar.S1},
			"Relay":  {Value: "10.0.0.1", Visibility: remotevar.Member},
			"Secret": {Value: "seed", Visibility: remotevar.Private},
		},
		Participant: roomservice.ParticipantOptions{Data: map[string]remotevar.DataObject{
			"Name":  {Value: "hoster", Visibility: remotevar.Member},
			"Token": {Value: "t0k", Visibility: remotevar.Private},
		}},
	})
	if len(snapshot.Data) != 3 || len(snapshot.Participants[0].Data) != 2 {
		t.Fatalf("host sees %d room keys and %d own keys", len(snapshot.Data), len(snapshot.Participants[0].Data))
	}

	seen, err := guest.JoinByID(ctx, snapshot.ID, roomservice.JoinOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := seen.Data["Secret"]; ok {
		t.Error("guest sees private room data")
	}
	if _, ok := seen.Data["Relay"]; !ok {
		t.Error("guest does not see member room data")
	}
	hostView := seen.Participants[0].Data
	if _, ok := hostView["Token"]; ok {
		t.Error("guest sees the host's private participant data")
	}
	if _, ok := hostView["Name"]; !ok {
		t.Error("guest does not see the host's member participant data")
	}

	summaries, err := svc.Client("outsider").Query(ctx, roomservice.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || len(summaries[0].Data) != 1 {
		t.Fatalf("summaries = %+v, want one room with only public data", summaries)
	}
}

func TestRoomChangesAreSparse(t *testing.T) {
	svc, _ := newTestService(t)
	host := svc.Client("host")
	guest := svc.Client("guest")
	ctx := context.Background()

	snapshot := createRoom(t, host, roomservice.CreateOptions{})
	if _, err := guest.JoinByID(ctx, snapshot.ID, roomservice.JoinOptions{}); err != nil {
		t.Fatal(err)
	}
	guestEvents, _ := subscribe(t, guest, snapshot.ID)

	name := "arena"
	_, err := host.UpdateRoom(ctx, snapshot.ID, roomservice.UpdateRoomOptions{
		Name: &name,
		Data: map[string]remotevar.DataObject{"Mode": {Value: "ctf", Visibility: remotevar.Member}},
	})
	if err != nil {
		t.Fatal(err)
	}

	changes := testutil.RequireReceive(t, guestEvents.changes, eventTimeout)
	if !changes.Name.Changed || changes.Name.Value != "arena" {
		t.Errorf("Name = %+v", changes.Name)
	}
	if changes.IsLocked.Changed || changes.MaxParticipants.Changed || len(changes.Joined) != 0 {
		t.Errorf("unrelated fields reported: %+v", changes)
	}
	if changes.Data.Value["Mode"].Value.Value != "ctf" {
		t.Errorf("Data = %+v", changes.Data)
	}

	connection := "relay:1"
	if _, err := guest.UpdateParticipant(ctx, snapshot.ID, "guest", roomservice.UpdateParticipantOptions{ConnectionInfo: &connection}); err != nil {
		t.Fatal(err)
	}
	changes = testutil.RequireReceive(t, guestEvents.changes, eventTimeout)
	participant, ok := changes.Participants[1]
	if !ok || participant.ConnectionInfo.Value != "relay:1" {
		t.Errorf("Participants = %+v", changes.Participants)
	}
}

func TestHostOnlyOperations(t *testing.T) {
	svc, _ := newTestService(t)
	host := svc.Client("host")
	guest := svc.Client("guest")
	ctx := context.Background()

	snapshot := createRoom(t, host, roomservice.CreateOptions{})
	if _, err := guest.JoinByID(ctx, snapshot.ID, roomservice.JoinOptions{}); err != nil {
		t.Fatal(err)
	}

	name := "mine"
	checks := map[string]error{
		"update room": func() error {
			_, err := guest.UpdateRoom(ctx, snapshot.ID, roomservice.UpdateRoomOptions{Name: &name})
			return err
		}(),
		"delete":     guest.Delete(ctx, snapshot.ID),
		"keep-alive": guest.SendKeepAlive(ctx, snapshot.ID),
		"remove host": guest.RemoveParticipant(ctx, snapshot.ID, "host"),
	}
	for name, err := range checks {
		if !roomservice.IsServiceError(err, roomservice.CodeForbidden) {
			t.Errorf("%s by guest: %v, want forbidden", name, err)
		}
	}
}

func TestKickAndHostMigration(t *testing.T) {
	svc, _ := newTestService(t)
	host := svc.Client("host")
	guest := svc.Client("guest")
	third := svc.Client("third")
	ctx := context.Background()

	snapshot := createRoom(t, host, roomservice.CreateOptions{})
	for _, client := range []*Client{guest, third} {
		if _, err := client.JoinByID(ctx, snapshot.ID, roomservice.JoinOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	guestEvents, _ := subscribe(t, guest, snapshot.ID)
	thirdEvents, _ := subscribe(t, third, snapshot.ID)

	if err := host.RemoveParticipant(ctx, snapshot.ID, "guest"); err != nil {
		t.Fatal(err)
	}
	testutil.RequireReceive(t, guestEvents.kicked, eventTimeout)
	if state := testutil.RequireReceive(t, guestEvents.states, eventTimeout); state != roomservice.Unsubscribed {
		t.Errorf("kicked subscription state = %v", state)
	}
	changes := testutil.RequireReceive(t, thirdEvents.changes, eventTimeout)
	if len(changes.Left) != 1 || changes.Left[0] != 1 {
		t.Errorf("Left = %v, want [1]", changes.Left)
	}

	// The host leaving hands the role to the first remaining participant.
	if err := host.RemoveParticipant(ctx, snapshot.ID, "host"); err != nil {
		t.Fatal(err)
	}
	changes = testutil.RequireReceive(t, thirdEvents.changes, eventTimeout)
	if !changes.HostID.Changed || changes.HostID.Value != "third" {
		t.Errorf("HostID = %+v", changes.HostID)
	}
	select {
	case <-thirdEvents.kicked:
		t.Error("remaining participant was kicked")
	default:
	}

	// The last participant leaving deletes the room.
	if err := third.RemoveParticipant(ctx, snapshot.ID, "third"); err != nil {
		t.Fatal(err)
	}
	if svc.RoomCount() != 0 {
		t.Errorf("RoomCount = %d after the last participant left", svc.RoomCount())
	}
}

func TestDeleteNotifiesSubscribers(t *testing.T) {
	svc, _ := newTestService(t)
	host := svc.Client("host")
	snapshot := createRoom(t, host, roomservice.CreateOptions{})
	hostEvents, _ := subscribe(t, host, snapshot.ID)

	if err := host.Delete(context.Background(), snapshot.ID); err != nil {
		t.Fatal(err)
	}
	testutil.RequireReceive(t, hostEvents.deleted, eventTimeout)
	if _, err := host.Get(context.Background(), snapshot.ID); !roomservice.IsServiceError(err, roomservice.CodeNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	svc, _ := newTestService(t)
	host := svc.Client("host")
	snapshot := createRoom(t, host, roomservice.CreateOptions{})
	hostEvents, sub := subscribe(t, host, snapshot.ID)

	if err := sub.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	testutil.RequireClosed(t, sub.(*subscription).Done(), eventTimeout)

	name := "renamed"
	if _, err := host.UpdateRoom(context.Background(), snapshot.ID, roomservice.UpdateRoomOptions{Name: &name}); err != nil {
		t.Fatal(err)
	}
	select {
	case changes := <-hostEvents.changes:
		t.Errorf("delivery after Unsubscribe: %+v", changes)
	default:
	}
}

func TestSweepExpiresRooms(t *testing.T) {
	svc, fake := newTestService(t)
	host := svc.Client("host")
	ctx := context.Background()

	kept := createRoom(t, host, roomservice.CreateOptions{})
	expired, err := svc.Client("other").Create(ctx, "idle", 2, roomservice.CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	fake.Advance(20 * time.Second)
	if err := host.SendKeepAlive(ctx, kept.ID); err != nil {
		t.Fatal(err)
	}
	fake.Advance(15 * time.Second)

	swept := svc.Sweep()
	if len(swept) != 1 || swept[0] != expired.ID {
		t.Errorf("Sweep() = %v, want [%s]", swept, expired.ID)
	}
	if _, ok := svc.Snapshot(kept.ID); !ok {
		t.Error("room with a recent keep-alive was swept")
	}
}

func TestQuery(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rooms := []struct {
		owner, name, mode string
		level             string
		capacity          int
		private           bool
	}{
		{"a", "alpha", "ffa", "3", 4, false},
		{"b", "bravo", "ctf", "7", 8, false},
		{"c", "charlie", "ctf", "5", 4, false},
		{"d", "delta", "ctf", "9", 4, true},
	}
	for _, seed := range rooms {
		_, err := svc.Client(seed.owner).Create(ctx, seed.name, seed.capacity, roomservice.CreateOptions{
			IsPrivate: seed.private,
			Data: map[string]remotevar.DataObject{
				"Mode":  {Value: seed.mode, Index: remotevar.S1},
				"Level": {Value: seed.level, Index: remotevar.N1},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	results, err := svc.Client("seeker").Query(ctx, roomservice.QueryOptions{
		Filters: []roomservice.QueryFilter{
			{Field: roomservice.IndexField(remotevar.S1), Op: roomservice.Equal, Value: "ctf"},
			{Field: roomservice.IndexField(remotevar.N1), Op: roomservice.GreaterOrEqual, Value: "5"},
		},
		Order: []roomservice.QueryOrder{{Field: roomservice.IndexField(remotevar.N1), Descending: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Name != "bravo" || results[1].Name != "charlie" {
		t.Errorf("results = %+v, want bravo then charlie (delta is private)", results)
	}

	_, err = svc.Client("seeker").Query(ctx, roomservice.QueryOptions{
		Filters: []roomservice.QueryFilter{{Field: "colour", Op: roomservice.Equal}},
	})
	if !roomservice.IsServiceError(err, roomservice.CodeInvalidArgument) {
		t.Errorf("bad filter: %v", err)
	}

	joined, err := svc.Client("seeker").QuickJoin(ctx, roomservice.QuickJoinOptions{
		Filters: []roomservice.QueryFilter{{Field: roomservice.FieldMaxParticipants, Op: roomservice.Equal, Value: "8"}},
	})
	if err != nil || joined.Name != "bravo" {
		t.Errorf("QuickJoin = %v, %v", joined, err)
	}

	_, err = svc.Client("late").QuickJoin(ctx, roomservice.QuickJoinOptions{
		Filters: []roomservice.QueryFilter{{Field: roomservice.FieldName, Op: roomservice.Equal, Value: "nowhere"}},
	})
	if !roomservice.IsServiceError(err, roomservice.CodeNoMatch) {
		t.Errorf("QuickJoin with no match: %v", err)
	}
}

func TestValidateData(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Client("a").Create(ctx, "bad", 4, roomservice.CreateOptions{
		Data: map[string]remotevar.DataObject{"Level": {Value: "high", Index: remotevar.N1}},
	})
	if !roomservice.IsServiceError(err, roomservice.CodeInvalidArgument) {
		t.Errorf("non-numeric value in numeric slot: %v", err)
	}

	_, err = svc.Client("a").Create(ctx, "bad", 4, roomservice.CreateOptions{
		Participant: roomservice.ParticipantOptions{Data: map[string]remotevar.DataObject{"Name": {Value: "x", Index: remotevar.S1}}},
	})
	if !roomservice.IsServiceError(err, roomservice.CodeInvalidArgument) {
		t.Errorf("indexed participant data: %v", err)
	}
}

func TestFailNext(t *testing.T) {
	svc, _ := newTestService(t)
	host := svc.Client("host")
	snapshot := createRoom(t, host, roomservice.CreateOptions{})

	injected := errors.New("transport reset")
	svc.FailNext(config.Get, injected)

	if _, err := host.Get(context.Background(), snapshot.ID); !errors.Is(err, injected) {
		t.Errorf("first Get = %v, want injected failure", err)
	}
	if _, err := host.Get(context.Background(), snapshot.ID); err != nil {
		t.Errorf("second Get = %v, want success", err)
	}
}

func TestCancelledContext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Client("a").Create(ctx, "x", 2, roomservice.CreateOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Create with cancelled context: %v", err)
	}
	if svc.RoomCount() != 0 {
		t.Error("cancelled Create still created a room")
	}
}
