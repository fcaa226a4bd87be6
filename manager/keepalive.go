// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/roomsync/lib/clock"
	"github.com/bureau-foundation/roomsync/lib/ratelimit"
	"github.com/bureau-foundation/roomsync/roomservice"
)

// KeepAliveConfig configures a KeepAlive.
type KeepAliveConfig struct {
	// Client sends the keep-alives.
	Client roomservice.Client

	// Limiter admits each keep-alive. Required.
	Limiter *ratelimit.Limiter

	// Interval is the wait between keep-alives.
	Interval time.Duration

	// OnRoomGone is called, on the loop's goroutine, when the service
	// reports the tracked room no longer exists. Tracking has already
	// ended when it runs.
	OnRoomGone func(roomID string)

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// KeepAlive periodically tells the service that a hosted room is still
// in use. It tracks at most one room at a time.
type KeepAlive struct {
	client     roomservice.Client
	limiter    *ratelimit.Limiter
	interval   time.Duration
	onRoomGone func(string)
	clock      clock.Clock
	logger     *slog.Logger

	mu     sync.Mutex
	roomID string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKeepAlive validates cfg. The returned loop is idle.
func NewKeepAlive(cfg KeepAliveConfig) (*KeepAlive, error) {
	if cfg.Client == nil {
		return nil, errors.New("manager: keep-alive needs a client")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("manager: keep-alive needs a limiter")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("manager: keep-alive interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &KeepAlive{
		client:     cfg.Client,
		limiter:    cfg.Limiter,
		interval:   cfg.Interval,
		onRoomGone: cfg.OnRoomGone,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		done:       done,
	}, nil
}

// BeginTracking stops any running loop and starts one for roomID. The
// first keep-alive is sent immediately.
func (k *KeepAlive) BeginTracking(roomID string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cancel != nil {
		k.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	k.roomID = roomID
	k.cancel = cancel
	k.done = done

	k.logger.Debug("keep-alive tracking started", "room_id", roomID, "interval", k.interval)
	go k.run(ctx, roomID, done)
}

// EndTracking stops the loop. A keep-alive already admitted finishes;
// a pending wait is abandoned.
func (k *KeepAlive) EndTracking() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked()
}

func (k *KeepAlive) stopLocked() {
	if k.cancel == nil {
		return
	}
	k.logger.Debug("keep-alive tracking ended", "room_id", k.roomID)
	k.cancel()
	k.cancel = nil
	k.roomID = ""
}

// Tracking returns the tracked room, if any.
func (k *KeepAlive) Tracking() (roomID string, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.roomID, k.cancel != nil
}

// Done is closed when the most recently started loop exits. It is
// closed already when no loop was ever started.
func (k *KeepAlive) Done() <-chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.done
}

func (k *KeepAlive) run(ctx context.Context, roomID string, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}

		err := k.limiter.Admit(ctx, func(ctx context.Context) error {
			return k.client.SendKeepAlive(ctx, roomID)
		})
		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, ratelimit.ErrClosed):
			return
		case roomservice.IsServiceError(err, roomservice.CodeNotFound):
			k.logger.Warn("keep-alive target is gone, ending tracking", "room_id", roomID)
			k.endIfTracking(ctx)
			if k.onRoomGone != nil {
				k.onRoomGone(roomID)
			}
			return
		default:
			k.logger.Warn("keep-alive failed", "room_id", roomID, "error", err)
		}

		select {
		case <-k.clock.After(k.interval):
		case <-ctx.Done():
			return
		}
	}
}

// endIfTracking ends tracking only if this loop is still the current
// one.
func (k *KeepAlive) endIfTracking(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if ctx.Err() == nil {
		k.stopLocked()
	}
}
