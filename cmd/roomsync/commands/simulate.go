// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/roomsync/cmd/roomsync/cli"
	"github.com/bureau-foundation/roomsync/lib/config"
	"github.com/bureau-foundation/roomsync/manager"
	"github.com/bureau-foundation/roomsync/mirror"
	"github.com/bureau-foundation/roomsync/remotevar"
	"github.com/bureau-foundation/roomsync/roomservice"
	"github.com/bureau-foundation/roomsync/roomservice/memory"
)

type matchVars struct {
	Round *remotevar.Var[*remotevar.Value[int]]
	Mode  *remotevar.Var[*remotevar.Value[string]]
}

var matchSchema = remotevar.MustSchema(remotevar.ScopeRoom,
	func() *matchVars {
		return &matchVars{
			Round: remotevar.NewRoomVar("round", remotevar.Int(0), remotevar.Public, remotevar.N1),
			Mode:  remotevar.NewRoomVar("mode", remotevar.String("ffa"), remotevar.Public, remotevar.S1),
		}
	},
	func(v *matchVars) []remotevar.Variable { return []remotevar.Variable{v.Round, v.Mode} },
)

type playerVars struct {
	Ready *remotevar.Var[*remotevar.Value[bool]]
	Score *remotevar.Var[*remotevar.Value[int]]
}

var playerSchema = remotevar.MustSchema(remotevar.ScopeParticipant,
	func() *playerVars {
		return &playerVars{
			Ready: remotevar.NewParticipantVar("ready", remotevar.Bool(false), remotevar.Member),
			Score: remotevar.NewParticipantVar("score", remotevar.Int(0), remotevar.Public),
		}
	},
	func(v *playerVars) []remotevar.Variable { return []remotevar.Variable{v.Ready, v.Score} },
)

type matchManager = manager.Manager[matchVars, playerVars]

type simulateParams struct {
	cli.OutputFlags
	settings settingsFlags
	joiners  int
	rounds   int
	timeout  time.Duration
}

// simulationResult is the --json output.
type simulationResult struct {
	RoomID  string             `json:"room_id"`
	Code    string             `json:"code"`
	Rounds  int                `json:"rounds"`
	Players []simulationPlayer `json:"players"`
	Elapsed string             `json:"elapsed"`
}

type simulationPlayer struct {
	ID        string `json:"id"`
	Host      bool   `json:"host"`
	Ready     bool   `json:"ready"`
	Score     int    `json:"score"`
	Slot      int    `json:"slot"`
	LastRound int    `json:"last_round"`
}

func simulateCommand(out io.Writer) *cli.Command {
	var params simulateParams
	return &cli.Command{
		Name:    "simulate",
		Summary: "Run a host and joiners against an in-process room service",
		Description: `Start an in-process room service, create a room as a host, and have
several joiners join it by code. Each joiner publishes its readiness and
a score; the host then advances the room's round variable until every
joiner's mirror has seen the last round. Everyone leaves and the host
deletes the room.

Every call goes through the configured rate limiters and the host sends
keep-alives, so the run takes as long as the limits require.`,
		Usage: "roomsync simulate [flags]",
		Examples: []cli.Example{
			{Description: "Three joiners, three rounds", Command: "roomsync simulate"},
			{Description: "Watch limiter waits at debug level", Command: "roomsync simulate --joiners 5 --rounds 8 -v"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
			params.OutputFlags.AddFlags(flagSet)
			params.settings.AddFlags(flagSet)
			flagSet.IntVar(&params.joiners, "joiners", 3, "participants joining the host's room")
			flagSet.IntVar(&params.rounds, "rounds", 3, "round updates the host publishes")
			flagSet.DurationVar(&params.timeout, "timeout", 2*time.Minute, "give up after this long")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: roomsync simulate [flags]")
			}
			if params.joiners < 1 || params.rounds < 1 {
				return fmt.Errorf("--joiners and --rounds must be at least 1")
			}
			settings, err := params.settings.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(ctx, params.timeout)
			defer cancel()

			logger := cli.NewCommandLogger(params.Verbose).With("command", "simulate")
			sim := &simulation{
				settings: settings,
				service:  memory.New(memory.Config{Logger: logger}),
				logger:   logger,
				joiners:  params.joiners,
				rounds:   params.rounds,
			}
			result, snapshot, err := sim.run(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(out, result); done {
				return err
			}
			fmt.Fprint(out, renderSnapshot("Host mirror after round "+strconv.Itoa(result.Rounds), snapshot))
			players := newTable("Player", "Slot", "Ready", "Score", "Last round")
			for _, player := range result.Players {
				id := player.ID
				if player.Host {
					id += " (host)"
				}
				players.Row(id, strconv.Itoa(player.Slot), strconv.FormatBool(player.Ready),
					strconv.Itoa(player.Score), strconv.Itoa(player.LastRound))
			}
			_, err = fmt.Fprintf(out, "%s\nFinished in %s\n", players.Render(), result.Elapsed)
			return err
		},
	}
}

type simulation struct {
	settings *config.Config
	service  *memory.Service
	logger   *slog.Logger
	joiners  int
	rounds   int
}

func (s *simulation) newManager(participantID string) (*matchManager, error) {
	room, err := mirror.NewRoom(mirror.RoomConfig[matchVars, playerVars]{
		RoomSchema:        matchSchema,
		ParticipantSchema: playerSchema,
		Logger:            s.logger,
	})
	if err != nil {
		return nil, err
	}
	return manager.New(manager.Config{
		Client:   s.service.Client(participantID),
		Settings: s.settings,
		Logger:   s.logger,
	}, room)
}

// latch closes done once want distinct keys have been marked.
type latch struct {
	mu   sync.Mutex
	seen map[string]bool
	want int
	done chan struct{}
}

func newLatch(want int) *latch {
	return &latch{seen: make(map[string]bool), want: want, done: make(chan struct{})}
}

func (l *latch) mark(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[key] || len(l.seen) >= l.want {
		return
	}
	l.seen[key] = true
	if len(l.seen) == l.want {
		close(l.done)
	}
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *simulation) run(ctx context.Context) (*simulationResult, *roomservice.RoomSnapshot, error) {
	started := time.Now()

	host, err := s.newManager("host")
	if err != nil {
		return nil, nil, err
	}
	defer host.Close()

	ready := newLatch(s.joiners)
	host.Room().OnParticipantJoined(func(participant *mirror.Participant[playerVars]) {
		id := participant.ID().Get()
		readiness := participant.Variables().Ready.Data()
		readiness.Subscribe(func(isReady bool) {
			if isReady {
				ready.mark(id)
			}
		})
		if readiness.Get() {
			ready.mark(id)
		}
	})

	name := "sim-" + uuid.NewString()[:8]
	if err := host.Room().Configure(name, s.joiners+1, nil); err != nil {
		return nil, nil, err
	}
	if err := host.Create(ctx); err != nil {
		return nil, nil, err
	}
	roomID, _ := host.RoomID()
	code := host.Room().Code().Get()
	s.logger.Info("room created", "room_id", roomID, "code", code, "name", name)

	sawLastRound := newLatch(s.joiners)
	release := make(chan struct{})
	players := make([]simulationPlayer, s.joiners)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	group, groupCtx := errgroup.WithContext(runCtx)
	for i := range s.joiners {
		id := fmt.Sprintf("joiner-%d", i+1)
		group.Go(func() error {
			return s.runJoiner(groupCtx, id, code, (i+1)*10, sawLastRound, release, &players[i])
		})
	}

	hostErr := func() error {
		if err := wait(groupCtx, ready.done); err != nil {
			return fmt.Errorf("waiting for joiners to be ready: %w", err)
		}
		s.logger.Info("all joiners ready", "room_id", roomID)
		for round := 1; round <= s.rounds; round++ {
			host.Room().Variables().Round.Data().Set(round)
			if err := host.UpdateRoomVariables(groupCtx, "round"); err != nil {
				return fmt.Errorf("publishing round %d: %w", round, err)
			}
			s.logger.Debug("round published", "room_id", roomID, "round", round)
		}
		return wait(groupCtx, sawLastRound.done)
	}()

	var snapshot *roomservice.RoomSnapshot
	if hostErr == nil {
		snapshot, hostErr = host.Room().Snapshot()
	}
	if hostErr != nil {
		cancelRun()
	}
	close(release)
	if err := errors.Join(hostErr, group.Wait()); err != nil {
		return nil, nil, err
	}

	result := &simulationResult{
		RoomID: roomID,
		Code:   code,
		Rounds: host.Room().Variables().Round.Data().Get(),
	}
	result.Players = append(result.Players, simulationPlayer{
		ID:        "host",
		Host:      true,
		Slot:      0,
		LastRound: result.Rounds,
	})
	result.Players = append(result.Players, players...)

	if err := host.Delete(ctx); err != nil {
		return nil, nil, err
	}
	result.Elapsed = time.Since(started).Round(time.Millisecond).String()
	return result, snapshot, nil
}

// runJoiner joins by code, publishes readiness and a score, waits for
// the last round, then leaves once released.
func (s *simulation) runJoiner(ctx context.Context, id, code string, score int, sawLastRound *latch, release <-chan struct{}, player *simulationPlayer) error {
	m, err := s.newManager(id)
	if err != nil {
		return err
	}
	defer m.Close()

	lastRound := make(chan struct{})
	var once sync.Once
	round := m.Room().Variables().Round.Data()
	round.Subscribe(func(value int) {
		if value >= s.rounds {
			once.Do(func() { close(lastRound) })
		}
	})

	if err := m.JoinByCode(ctx, code); err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	local := m.Room().Local()
	local.Variables().Score.Data().Set(score)
	local.Variables().Ready.Data().Set(true)
	if err := m.PushParticipantVariables(ctx); err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}

	if err := wait(ctx, lastRound); err != nil {
		return fmt.Errorf("%s waiting for round %d: %w", id, s.rounds, err)
	}
	*player = simulationPlayer{
		ID:        id,
		Ready:     local.Variables().Ready.Data().Get(),
		Score:     local.Variables().Score.Data().Get(),
		Slot:      local.SlotIndex().Get(),
		LastRound: round.Get(),
	}
	sawLastRound.mark(id)

	if err := wait(ctx, release); err != nil {
		return err
	}
	return m.Leave(ctx)
}
