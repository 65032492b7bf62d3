// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Components that depend on time (the scheduler runner, coordinator
// idle eviction, recipe wait steps) accept a Clock instead of calling
// the time package directly. Production wiring passes Real(); tests
// pass Fake(), which advances only when told to:
//
//	c := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
//	runner := scheduler.NewRunner(sched, c, interval, logger)
//	// ... start the runner ...
//	c.WaitForTimers(1)             // runner has registered its ticker
//	c.Advance(30 * time.Second)    // fire one tick deterministically
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing past its deadline.
package clock
