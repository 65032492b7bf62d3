// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/slate-labs/slate/lib/clock"
	"github.com/slate-labs/slate/lib/schema"
)

// Registry spawns coordinators on demand, one per dashboard, and owns
// their lifecycles. Different dashboards' coordinators run fully
// independently.
// defaultIdleTimeout is how long a coordinator may sit with no
// connections and no traffic before the registry reclaims it.
const defaultIdleTimeout = 15 * time.Minute

type Registry struct {
	store       Store
	clock       clock.Clock
	logger      *slog.Logger
	idleTimeout time.Duration

	mu           sync.Mutex
	coordinators map[schema.DashboardID]*entry
	baseCtx      context.Context
	cancel       context.CancelFunc
	closed       bool
	running      sync.WaitGroup
}

type entry struct {
	coordinator *Coordinator
	cancel      context.CancelFunc
}

// RegistryConfig holds configuration for creating a Registry.
type RegistryConfig struct {
	// Store backs every spawned coordinator. Required.
	Store Store

	// Clock supplies timestamps. Defaults to the real clock.
	Clock clock.Clock

	// Logger is shared by spawned coordinators. Nil means silent.
	Logger *slog.Logger

	// IdleTimeout is how long a coordinator with no connections is
	// kept before eviction. Zero means defaultIdleTimeout.
	IdleTimeout time.Duration
}

// NewRegistry creates a Registry. Panics if required configuration is
// missing.
func NewRegistry(config RegistryConfig) *Registry {
	if config.Store == nil {
		panic("coordinator: RegistryConfig.Store is required")
	}
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	idleTimeout := config.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = defaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		store:        config.Store,
		clock:        c,
		logger:       logger,
		idleTimeout:  idleTimeout,
		coordinators: make(map[schema.DashboardID]*entry),
		baseCtx:      ctx,
		cancel:       cancel,
	}
	r.running.Add(1)
	go r.sweep()
	return r
}

// sweep periodically evicts coordinators that have gone idle, so
// every dashboard ever viewed does not hold a goroutine and its state
// maps until process exit.
func (r *Registry) sweep() {
	defer r.running.Done()
	ticker := r.clock.NewTicker(r.idleTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-r.baseCtx.Done():
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

// evictIdle stops every coordinator with no connections and no
// activity inside the idle window. A later Get spawns a fresh one
// that rehydrates from its snapshot.
func (r *Registry) evictIdle() {
	cutoff := r.clock.Now().Add(-r.idleTimeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	for dashboardID, existing := range r.coordinators {
		if !existing.coordinator.Idle(cutoff) {
			continue
		}
		existing.cancel()
		delete(r.coordinators, dashboardID)
		r.logger.Debug("evicted idle coordinator", "dashboard_id", dashboardID)
	}
}

// Get returns the running coordinator for a dashboard, spawning and
// hydrating one on first access.
func (r *Registry) Get(ctx context.Context, dashboardID schema.DashboardID) (*Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrStopped
	}
	if existing, ok := r.coordinators[dashboardID]; ok {
		return existing.coordinator, nil
	}

	coordinator, err := New(ctx, Config{
		DashboardID: dashboardID,
		Store:       r.store,
		Clock:       r.clock,
		Logger:      r.logger,
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(r.baseCtx)
	r.coordinators[dashboardID] = &entry{coordinator: coordinator, cancel: cancel}
	r.running.Add(1)
	go func() {
		defer r.running.Done()
		coordinator.Serve(runCtx)
	}()
	return coordinator, nil
}

// Peek returns the coordinator for a dashboard only if one is already
// running. Used by push paths that should not spin up a coordinator
// just to broadcast to nobody.
func (r *Registry) Peek(dashboardID schema.DashboardID) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.coordinators[dashboardID]
	if !ok {
		return nil, false
	}
	return existing.coordinator, true
}

// Len reports how many coordinators are currently live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.coordinators)
}

// Remove stops and discards a dashboard's coordinator, typically after
// the dashboard is deleted.
func (r *Registry) Remove(dashboardID schema.DashboardID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.coordinators[dashboardID]
	if !ok {
		return
	}
	existing.cancel()
	delete(r.coordinators, dashboardID)
}

// Close stops every coordinator and waits for their loops to exit.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.cancel()
	r.coordinators = make(map[schema.DashboardID]*entry)
	r.mu.Unlock()
	r.running.Wait()
}
