// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every component that waits:
// the admission limiter's cooldown timer, the keep-alive interval, and
// the timestamps stamped by the in-memory room service.
//
// Components hold a Clock in their config struct. Production wiring
// passes Real(). Tests pass Fake() and drive time explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	limiter := ratelimit.New(ratelimit.Config{Permits: 2, Window: time.Second, Clock: fake})
//	// ... start goroutines that call limiter.Admit ...
//	fake.WaitForTimers(1)      // the cooldown timer is armed
//	fake.Advance(time.Second)  // the window resets
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it, so tests never sleep on the
// wall clock to synchronize.
package clock
