// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/roomsync/cmd/roomsync/cli"
	"github.com/bureau-foundation/roomsync/mirror"
	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
)

// replayScript is a recorded room: one snapshot followed by the change
// sets a subscriber received. The file is JSON with // and /* */
// comments and trailing commas allowed.
type replayScript struct {
	// Local is the participant id the mirror treats as itself.
	Local string `json:"local"`

	// RoomKeys and ParticipantKeys declare the mirror's variables.
	// When omitted, every key the script mentions is declared.
	RoomKeys        []string `json:"room_keys"`
	ParticipantKeys []string `json:"participant_keys"`

	Snapshot scriptSnapshot `json:"snapshot"`
	Changes  []scriptChange `json:"changes"`
}

type scriptValue struct {
	Value      string               `json:"value"`
	Visibility remotevar.Visibility `json:"visibility"`
	Index      remotevar.Index      `json:"index"`
}

type scriptParticipant struct {
	ID             string                 `json:"id"`
	ConnectionInfo string                 `json:"connection_info"`
	AllocationID   string                 `json:"allocation_id"`
	Joined         time.Time              `json:"joined"`
	Data           map[string]scriptValue `json:"data"`
}

type scriptSnapshot struct {
	ID             string                 `json:"id"`
	Code           string                 `json:"code"`
	Name           string                 `json:"name"`
	Host           string                 `json:"host"`
	Private        bool                   `json:"private"`
	Locked         bool                   `json:"locked"`
	Capacity       int                    `json:"capacity"`
	AvailableSlots *int                   `json:"available_slots"`
	Data           map[string]scriptValue `json:"data"`
	Participants   []scriptParticipant    `json:"participants"`
}

// scriptChange is one change set. Absent fields are unchanged; a null
// data value removes the key.
type scriptChange struct {
	Name           *string                         `json:"name"`
	Host           *string                         `json:"host"`
	Private        *bool                           `json:"private"`
	Locked         *bool                           `json:"locked"`
	Capacity       *int                            `json:"capacity"`
	AvailableSlots *int                            `json:"available_slots"`
	Data           map[string]*scriptValue         `json:"data"`
	Joined         []scriptJoin                    `json:"joined"`
	Left           []int                           `json:"left"`
	Participants   map[int]scriptParticipantChange `json:"participants"`
}

type scriptJoin struct {
	Index       int               `json:"index"`
	Participant scriptParticipant `json:"participant"`
}

type scriptParticipantChange struct {
	ConnectionInfo *string                 `json:"connection_info"`
	AllocationID   *string                 `json:"allocation_id"`
	Data           map[string]*scriptValue `json:"data"`
}

// parseReplayScript strips JSONC syntax and decodes the script.
func parseReplayScript(data []byte) (*replayScript, error) {
	var script replayScript
	if err := json.Unmarshal(jsonc.ToJSON(data), &script); err != nil {
		return nil, fmt.Errorf("parsing replay script: %w", err)
	}
	if script.Snapshot.ID == "" {
		return nil, fmt.Errorf("parsing replay script: snapshot.id is required")
	}
	return &script, nil
}

func (v scriptValue) object() remotevar.DataObject {
	return remotevar.DataObject{Value: v.Value, Visibility: v.Visibility, Index: v.Index}
}

func objects(values map[string]scriptValue) map[string]remotevar.DataObject {
	converted := make(map[string]remotevar.DataObject, len(values))
	for key, value := range values {
		converted[key] = value.object()
	}
	return converted
}

func (p scriptParticipant) snapshot() roomservice.ParticipantSnapshot {
	return roomservice.ParticipantSnapshot{
		ID:             p.ID,
		ConnectionInfo: p.ConnectionInfo,
		AllocationID:   p.AllocationID,
		Joined:         p.Joined,
		LastUpdated:    p.Joined,
		Data:           objects(p.Data),
	}
}

func (s scriptSnapshot) snapshot() *roomservice.RoomSnapshot {
	snapshot := &roomservice.RoomSnapshot{
		ID:              s.ID,
		Code:            s.Code,
		Name:            s.Name,
		HostID:          s.Host,
		IsPrivate:       s.Private,
		IsLocked:        s.Locked,
		MaxParticipants: s.Capacity,
		AvailableSlots:  s.Capacity - len(s.Participants),
		Data:            objects(s.Data),
	}
	if s.AvailableSlots != nil {
		snapshot.AvailableSlots = *s.AvailableSlots
	}
	for _, participant := range s.Participants {
		snapshot.Participants = append(snapshot.Participants, participant.snapshot())
	}
	return snapshot
}

func change[T any](value *T) roomservice.Change[T] {
	if value == nil {
		return roomservice.Change[T]{}
	}
	return roomservice.Set(*value)
}

func dataChanges(values map[string]*scriptValue) roomservice.Change[roomservice.DataChanges] {
	if len(values) == 0 {
		return roomservice.Change[roomservice.DataChanges]{}
	}
	changes := make(roomservice.DataChanges, len(values))
	for key, value := range values {
		if value == nil {
			changes[key] = roomservice.ValueChange{Removed: true}
			continue
		}
		changes[key] = roomservice.ValueChange{Value: value.object()}
	}
	return roomservice.Set(changes)
}

func (c scriptChange) changeSet(version int) *roomservice.ChangeSet {
	changes := &roomservice.ChangeSet{
		Version:         version,
		Name:            change(c.Name),
		IsPrivate:       change(c.Private),
		IsLocked:        change(c.Locked),
		MaxParticipants: change(c.Capacity),
		HostID:          change(c.Host),
		AvailableSlots:  change(c.AvailableSlots),
		Data:            dataChanges(c.Data),
		Left:            c.Left,
	}
	for _, joined := range c.Joined {
		changes.Joined = append(changes.Joined, roomservice.JoinedParticipant{
			Index:       joined.Index,
			Participant: joined.Participant.snapshot(),
		})
	}
	if len(c.Participants) > 0 {
		changes.Participants = make(map[int]roomservice.ParticipantChanges, len(c.Participants))
		for index, participant := range c.Participants {
			changes.Participants[index] = roomservice.ParticipantChanges{
				ConnectionInfo: change(participant.ConnectionInfo),
				AllocationID:   change(participant.AllocationID),
				Data:           dataChanges(participant.Data),
			}
		}
	}
	return changes
}

// declaredKeys returns the explicit key lists or, when absent, every
// key the script mentions.
func (s *replayScript) declaredKeys() (roomKeys, participantKeys []string) {
	if s.RoomKeys != nil && s.ParticipantKeys != nil {
		return s.RoomKeys, s.ParticipantKeys
	}
	room := make(map[string]bool)
	participant := make(map[string]bool)
	addParticipant := func(p scriptParticipant) {
		for key := range p.Data {
			participant[key] = true
		}
	}
	for key := range s.Snapshot.Data {
		room[key] = true
	}
	for _, p := range s.Snapshot.Participants {
		addParticipant(p)
	}
	for _, c := range s.Changes {
		for key := range c.Data {
			room[key] = true
		}
		for _, joined := range c.Joined {
			addParticipant(joined.Participant)
		}
		for _, changes := range c.Participants {
			for key := range changes.Data {
				participant[key] = true
			}
		}
	}
	roomKeys, participantKeys = s.RoomKeys, s.ParticipantKeys
	if roomKeys == nil {
		roomKeys = slices.Sorted(maps.Keys(room))
	}
	if participantKeys == nil {
		participantKeys = slices.Sorted(maps.Keys(participant))
	}
	return roomKeys, participantKeys
}

// stringVars declares one string variable per key. The replayed values
// carry their own visibility and index.
type stringVars struct {
	variables []remotevar.Variable
}

func stringSchema(scope remotevar.Scope, keys []string) (*remotevar.Schema[stringVars], error) {
	return remotevar.NewSchema(scope,
		func() *stringVars {
			vars := &stringVars{}
			for _, key := range keys {
				if scope == remotevar.ScopeRoom {
					vars.variables = append(vars.variables, remotevar.NewRoomVar(key, remotevar.String(""), remotevar.Public, remotevar.NoIndex))
				} else {
					vars.variables = append(vars.variables, remotevar.NewParticipantVar(key, remotevar.String(""), remotevar.Public))
				}
			}
			return vars
		},
		func(vars *stringVars) []remotevar.Variable { return vars.variables },
	)
}

// replayStep is one applied snapshot or change set in --json output.
type replayStep struct {
	Step                string   `json:"step"`
	IgnoredParticipants []int    `json:"ignored_participants,omitempty"`
	UnknownKeys         []string `json:"unknown_keys,omitempty"`
	ParseErrors         []string `json:"parse_errors,omitempty"`
}

func newReplayStep(name string, result mirror.ApplyResult) replayStep {
	step := replayStep{
		Step:                name,
		IgnoredParticipants: result.IgnoredParticipants,
		UnknownKeys:         result.UnknownKeys,
	}
	for _, err := range result.ParseErrors {
		step.ParseErrors = append(step.ParseErrors, err.Error())
	}
	return step
}

func (s replayStep) stale() bool {
	return len(s.IgnoredParticipants) > 0 || len(s.UnknownKeys) > 0 || len(s.ParseErrors) > 0
}

// replayResult is the --json output.
type replayResult struct {
	Steps []replayStep              `json:"steps"`
	Room  *roomservice.RoomSnapshot `json:"room"`
}

type replayParams struct {
	cli.OutputFlags
	strict bool
	steps  bool
}

func replayCommand(out io.Writer) *cli.Command {
	var params replayParams
	return &cli.Command{
		Name:    "replay",
		Summary: "Apply a recorded snapshot and change sets to a mirror",
		Description: `Build a mirror, copy the script's snapshot into it, apply each change
set in order, and print the resulting room. References the mirror
cannot resolve (participant indices out of range, undeclared keys,
unparseable values) are reported per step.

The script is JSONC: JSON with comments and trailing commas.`,
		Usage: "roomsync replay [flags] <script.jsonc>",
		Examples: []cli.Example{
			{Description: "Replay a recording and show the final room", Command: "roomsync replay lobby.jsonc"},
			{Description: "Fail if any step left the mirror stale", Command: "roomsync replay --strict lobby.jsonc"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("replay", pflag.ContinueOnError)
			params.OutputFlags.AddFlags(flagSet)
			flagSet.BoolVar(&params.strict, "strict", false, "exit with status 2 if any step had unresolved references")
			flagSet.BoolVar(&params.steps, "steps", false, "print the room after every step")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: roomsync replay [flags] <script.jsonc>")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			script, err := parseReplayScript(data)
			if err != nil {
				return err
			}
			return runReplay(out, script, params)
		},
	}
}

func runReplay(out io.Writer, script *replayScript, params replayParams) error {
	logger := cli.NewCommandLogger(params.Verbose).With("command", "replay")

	roomKeys, participantKeys := script.declaredKeys()
	roomSchema, err := stringSchema(remotevar.ScopeRoom, roomKeys)
	if err != nil {
		return err
	}
	participantSchema, err := stringSchema(remotevar.ScopeParticipant, participantKeys)
	if err != nil {
		return err
	}
	room, err := mirror.NewRoom(mirror.RoomConfig[stringVars, stringVars]{
		RoomSchema:        roomSchema,
		ParticipantSchema: participantSchema,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	room.SetLocalID(script.Local)

	text := !params.JSON
	if text {
		room.OnParticipantJoined(func(participant *mirror.Participant[stringVars]) {
			fmt.Fprintf(out, "  + %s joined at slot %d\n", participant.ID().Get(), participant.SlotIndex().Get())
		})
		room.OnParticipantLeft(func(participant *mirror.Participant[stringVars]) {
			fmt.Fprintf(out, "  - %s left\n", participant.ID().Get())
		})
	}

	var steps []replayStep
	record := func(name string, result mirror.ApplyResult) error {
		step := newReplayStep(name, result)
		steps = append(steps, step)
		if !text {
			return nil
		}
		status := "ok"
		if step.stale() {
			status = fmt.Sprintf("stale: ignored participants %v, unknown keys %v, parse errors %v",
				step.IgnoredParticipants, step.UnknownKeys, step.ParseErrors)
		}
		fmt.Fprintf(out, "%s: %s\n", name, status)
		if params.steps {
			snapshot, err := room.Snapshot()
			if err != nil {
				return err
			}
			fmt.Fprint(out, renderSnapshot("after "+name, snapshot))
		}
		return nil
	}

	if text {
		fmt.Fprintln(out, "snapshot:")
	}
	result, err := room.CopyFromSnapshot(script.Snapshot.snapshot())
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := record("snapshot", result); err != nil {
		return err
	}
	for i, scripted := range script.Changes {
		name := fmt.Sprintf("change %d", i+1)
		if text {
			fmt.Fprintf(out, "%s:\n", name)
		}
		result, err := room.ApplyChangeSet(scripted.changeSet(i + 1))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := record(name, result); err != nil {
			return err
		}
	}

	final, err := room.Snapshot()
	if err != nil {
		return err
	}
	if done, err := params.EmitJSON(out, replayResult{Steps: steps, Room: final}); done {
		if err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, renderSnapshot("Final room", final))
	}

	if params.strict && slices.ContainsFunc(steps, replayStep.stale) {
		if text {
			fmt.Fprintln(out, "replay left the mirror stale")
		}
		return &cli.ExitError{Code: 2}
	}
	return nil
}
