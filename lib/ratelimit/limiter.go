// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/roomsync/lib/clock"
	"github.com/bureau-foundation/roomsync/lib/observable"
)

// ErrClosed is returned by Admit after Close.
var ErrClosed = errors.New("ratelimit: limiter closed")

// Config describes one operation class's budget.
type Config struct {
	// Name labels log lines, usually the operation class.
	Name string

	// Permits is the number of calls that may start per window.
	Permits int

	// Window is how long the service remembers a call.
	Window time.Duration

	// Buffer is added to Window to absorb clock skew and network
	// latency between this process and the service.
	Buffer time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Limiter is safe for concurrent use.
type Limiter struct {
	name    string
	permits int
	period  time.Duration
	clock   clock.Clock
	logger  *slog.Logger

	// notifyMu serializes cooldown transitions with their
	// notifications so observers see true and false alternate.
	// Acquired before mu.
	notifyMu sync.Mutex
	cooling  *observable.Cell[bool]

	mu          sync.Mutex
	available   int
	coolingDown bool
	timer       *clock.Timer
	// reset is closed when the budget is restored or the limiter
	// closes. Waiters select on it.
	reset  chan struct{}
	closed bool
}

// New validates cfg and returns a Limiter with a full budget.
func New(cfg Config) (*Limiter, error) {
	if cfg.Permits <= 0 {
		return nil, fmt.Errorf("ratelimit: %s: permits must be positive, got %d", cfg.Name, cfg.Permits)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: %s: window must be positive, got %s", cfg.Name, cfg.Window)
	}
	if cfg.Buffer < 0 {
		return nil, fmt.Errorf("ratelimit: %s: buffer must not be negative, got %s", cfg.Name, cfg.Buffer)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Limiter{
		name:      cfg.Name,
		permits:   cfg.Permits,
		period:    cfg.Window + cfg.Buffer,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		cooling:   observable.New(false),
		available: cfg.Permits,
		reset:     make(chan struct{}),
	}, nil
}

// Admit waits for a permit, runs op, and returns op's error unchanged.
// After op returns (or panics) the cooldown starts if it is not
// already running. If ctx ends while waiting, Admit returns ctx.Err()
// without running op.
func (l *Limiter) Admit(ctx context.Context, op func(ctx context.Context) error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.startCooldown()
	return op(ctx)
}

// AdmitValue is Admit for operations that produce a value.
func AdmitValue[T any](ctx context.Context, l *Limiter, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := l.Admit(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

func (l *Limiter) acquire(ctx context.Context) error {
	waited := false
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return ErrClosed
		}
		if l.available > 0 {
			l.available--
			l.mu.Unlock()
			return nil
		}
		reset := l.reset
		l.mu.Unlock()

		if !waited {
			waited = true
			l.logger.Debug("rate limit reached, waiting for window reset", "operation", l.name)
		}
		select {
		case <-reset:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Limiter) startCooldown() {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if l.coolingDown || l.closed {
		l.mu.Unlock()
		return
	}
	l.coolingDown = true
	l.timer = l.clock.AfterFunc(l.period, l.finishCooldown)
	l.mu.Unlock()

	l.cooling.Set(true)
}

func (l *Limiter) finishCooldown() {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if l.closed || !l.coolingDown {
		l.mu.Unlock()
		return
	}
	l.coolingDown = false
	l.timer = nil
	l.available = l.permits
	close(l.reset)
	l.reset = make(chan struct{})
	l.mu.Unlock()

	l.cooling.Set(false)
}

// OnCooldownChange registers observer for cooldown transitions: true
// when the cooldown starts, false when the budget is restored.
// Observers run synchronously and must not call Admit.
func (l *Limiter) OnCooldownChange(observer func(coolingDown bool)) (cancel func()) {
	return l.cooling.Subscribe(observer)
}

// CoolingDown reports whether the cooldown timer is running.
func (l *Limiter) CoolingDown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.coolingDown
}

// Available returns the permits left in the current window.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available
}

// Close stops the cooldown timer and fails every current and future
// waiter with ErrClosed. Calls already admitted run to completion.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	close(l.reset)
}
