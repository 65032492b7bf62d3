// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionbridge binds dashboard terminal items to live
// sessions in the external sandbox service. Session creation is a
// two-phase saga: a local row is inserted in "creating" before any
// remote call, and a remote failure leaves the row in a terminal
// "error" state rather than rolling it back — clients see "creation
// failed" instead of a vanished session.
package sessionbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/slate-labs/slate/lib/clock"
	"github.com/slate-labs/slate/lib/sandbox"
	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/store"
)

var (
	// ErrNoAccess reports that the resource does not exist or the
	// caller cannot see it. The two cases are deliberately
	// indistinguishable.
	ErrNoAccess = errors.New("sessionbridge: not found")

	// ErrInvalidItem reports a session request against an item that is
	// not a terminal.
	ErrInvalidItem = errors.New("sessionbridge: item cannot own a session")

	// ErrConflict reports a transition the session's current status
	// does not admit.
	ErrConflict = errors.New("sessionbridge: state conflict")

	// ErrUpstream reports a sandbox service failure. The local session
	// row has already been moved to its compensating status when this
	// is returned.
	ErrUpstream = errors.New("sessionbridge: sandbox request failed")
)

// Sandbox is the slice of the execution client the bridge uses.
type Sandbox interface {
	CreateSession(ctx context.Context, request sandbox.CreateSessionRequest) (*sandbox.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	CreatePty(ctx context.Context, sessionID string, request sandbox.CreatePtyRequest) (*sandbox.Pty, error)
	OpenPtyStream(ctx context.Context, sessionID, ptyID string) (net.Conn, error)
}

// Notifier pushes session updates into the owning dashboard's
// coordinator.
type Notifier interface {
	PushSession(ctx context.Context, session schema.Session) error
}

// Store is the persistence surface the bridge needs.
type Store interface {
	MembershipRole(ctx context.Context, dashboardID schema.DashboardID, userID schema.UserID) (schema.Role, error)
	Item(ctx context.Context, id schema.ItemID) (schema.DashboardItem, error)
	LiveSessionForItem(ctx context.Context, dashboardID schema.DashboardID, itemID schema.ItemID) (schema.Session, error)
	CreateSession(ctx context.Context, session schema.Session) error
	UpdateSession(ctx context.Context, session schema.Session) error
	Session(ctx context.Context, id schema.SessionID) (schema.Session, error)
}

// Config holds configuration for creating a Bridge.
type Config struct {
	// Store persists session rows. Required.
	Store Store

	// Sandbox is the execution service client. Required.
	Sandbox Sandbox

	// Notifier receives session updates for live broadcast. Optional;
	// nil disables pushes.
	Notifier Notifier

	// Region is requested for new remote sessions.
	Region string

	// Clock supplies timestamps. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives best-effort failure diagnostics. Nil means
	// silent.
	Logger *slog.Logger
}

// Bridge manages the session lifecycle for terminal items.
type Bridge struct {
	store    Store
	sandbox  Sandbox
	notifier Notifier
	region   string
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates a Bridge. Panics if required configuration is missing.
func New(config Config) *Bridge {
	if config.Store == nil {
		panic("sessionbridge: Config.Store is required")
	}
	if config.Sandbox == nil {
		panic("sessionbridge: Config.Sandbox is required")
	}
	c := config.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{
		store:    config.Store,
		sandbox:  config.Sandbox,
		notifier: config.Notifier,
		region:   config.Region,
		clock:    c,
		logger:   logger,
	}
}

// CreateSession attaches a live sandbox session to a terminal item. If
// a session with a live status is already bound to the item, it is
// returned unchanged; this read-then-act reuse is what keeps one
// active session per item. Otherwise creation runs as a two-phase
// saga: insert a "creating" row, provision the remote session and PTY,
// then either activate the row or park it in "error".
func (b *Bridge) CreateSession(ctx context.Context, dashboardID schema.DashboardID, itemID schema.ItemID, userID schema.UserID) (schema.Session, error) {
	role, err := b.store.MembershipRole(ctx, dashboardID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return schema.Session{}, ErrNoAccess
		}
		return schema.Session{}, err
	}
	if !role.CanEdit() {
		return schema.Session{}, ErrNoAccess
	}

	item, err := b.store.Item(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return schema.Session{}, ErrNoAccess
		}
		return schema.Session{}, err
	}
	if item.DashboardID != dashboardID {
		return schema.Session{}, ErrNoAccess
	}
	if item.Type != schema.ItemTypeTerminal {
		return schema.Session{}, fmt.Errorf("%w: item %s is %s", ErrInvalidItem, itemID, item.Type)
	}

	if existing, err := b.store.LiveSessionForItem(ctx, dashboardID, itemID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return schema.Session{}, err
	}

	session := schema.Session{
		ID:          schema.NewSessionID(),
		DashboardID: dashboardID,
		ItemID:      itemID,
		Status:      schema.SessionCreating,
		Region:      b.region,
		CreatedAt:   b.clock.Now().UTC(),
	}
	if err := b.store.CreateSession(ctx, session); err != nil {
		return schema.Session{}, err
	}

	remote, pty, err := b.provision(ctx, session, userID)
	if err != nil {
		session.Status = schema.SessionError
		if updateErr := b.store.UpdateSession(ctx, session); updateErr != nil {
			b.logger.Error("marking session errored",
				"session_id", session.ID,
				"error", updateErr,
			)
		}
		b.push(ctx, session)
		return schema.Session{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	session.SandboxSessionID = remote.ID
	session.PtyID = pty.ID
	session.Status = schema.SessionActive
	if err := b.store.UpdateSession(ctx, session); err != nil {
		return schema.Session{}, err
	}
	b.push(ctx, session)

	b.logger.Info("session active",
		"session_id", session.ID,
		"dashboard_id", dashboardID,
		"item_id", itemID,
		"sandbox_session_id", remote.ID,
	)
	return session, nil
}

// provision creates the remote session and its interactive channel. A
// session that came up without a PTY is useless, so a PTY failure
// tears the remote session back down before reporting.
func (b *Bridge) provision(ctx context.Context, session schema.Session, userID schema.UserID) (*sandbox.Session, *sandbox.Pty, error) {
	remote, err := b.sandbox.CreateSession(ctx, sandbox.CreateSessionRequest{
		Region: b.region,
		Labels: map[string]string{
			"dashboard": string(session.DashboardID),
			"item":      string(session.ItemID),
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating remote session: %w", err)
	}

	pty, err := b.sandbox.CreatePty(ctx, remote.ID, sandbox.CreatePtyRequest{
		OwnerID: string(userID),
		Rows:    24,
		Cols:    80,
	})
	if err != nil {
		if deleteErr := b.sandbox.DeleteSession(ctx, remote.ID); deleteErr != nil {
			b.logger.Warn("cleaning up remote session after pty failure",
				"sandbox_session_id", remote.ID,
				"error", deleteErr,
			)
		}
		return nil, nil, fmt.Errorf("creating pty: %w", err)
	}
	return remote, pty, nil
}

// StopSession ends a session: best-effort remote teardown, then a
// local move to "stopped". Stopping an already-terminal session is a
// conflict.
func (b *Bridge) StopSession(ctx context.Context, sessionID schema.SessionID, userID schema.UserID) (schema.Session, error) {
	session, err := b.store.Session(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return schema.Session{}, ErrNoAccess
		}
		return schema.Session{}, err
	}

	role, err := b.store.MembershipRole(ctx, session.DashboardID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return schema.Session{}, ErrNoAccess
		}
		return schema.Session{}, err
	}
	if !role.CanEdit() {
		return schema.Session{}, ErrNoAccess
	}

	if session.Status.Terminal() {
		return schema.Session{}, fmt.Errorf("%w: session %s already %s", ErrConflict, sessionID, session.Status)
	}

	// The remote side may already be gone; its absence is not our
	// caller's problem.
	if session.SandboxSessionID != "" {
		if err := b.sandbox.DeleteSession(ctx, session.SandboxSessionID); err != nil {
			b.logger.Warn("deleting remote session",
				"session_id", sessionID,
				"sandbox_session_id", session.SandboxSessionID,
				"error", err,
			)
		}
	}

	now := b.clock.Now().UTC()
	session.Status = schema.SessionStopped
	session.StoppedAt = &now
	if err := b.store.UpdateSession(ctx, session); err != nil {
		return schema.Session{}, err
	}
	b.push(ctx, session)
	return session, nil
}

// SessionForUser returns a session visible to the caller: any
// membership role on the owning dashboard suffices.
func (b *Bridge) SessionForUser(ctx context.Context, sessionID schema.SessionID, userID schema.UserID) (schema.Session, error) {
	session, err := b.store.Session(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return schema.Session{}, ErrNoAccess
		}
		return schema.Session{}, err
	}
	if _, err := b.store.MembershipRole(ctx, session.DashboardID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return schema.Session{}, ErrNoAccess
		}
		return schema.Session{}, err
	}
	return session, nil
}

// OpenStream validates the caller and channel, then opens the raw byte
// stream to the sandbox PTY. The requested PTY must be the one bound
// to the session record, and the session must be active.
func (b *Bridge) OpenStream(ctx context.Context, sessionID schema.SessionID, ptyID string, userID schema.UserID) (net.Conn, error) {
	session, err := b.SessionForUser(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status != schema.SessionActive || session.PtyID != ptyID {
		return nil, ErrNoAccess
	}

	conn, err := b.sandbox.OpenPtyStream(ctx, session.SandboxSessionID, session.PtyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return conn, nil
}

// push is best-effort: a coordinator that is down or absent must not
// fail the session operation that already committed.
func (b *Bridge) push(ctx context.Context, session schema.Session) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.PushSession(ctx, session); err != nil {
		b.logger.Warn("pushing session update",
			"session_id", session.ID,
			"error", err,
		)
	}
}
