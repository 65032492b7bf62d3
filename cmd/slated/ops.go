// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slate-labs/slate/lib/clock"
	"github.com/slate-labs/slate/lib/codec"
	"github.com/slate-labs/slate/lib/coordinator"
	"github.com/slate-labs/slate/lib/service"
	"github.com/slate-labs/slate/lib/servicetoken"
	"github.com/slate-labs/slate/lib/store"
	"github.com/slate-labs/slate/lib/version"
)

// defaultTokenTTL is how long a minted service token stays valid when
// the request does not say otherwise.
const defaultTokenTTL = time.Hour

// maxTokenTTL caps requested token lifetimes.
const maxTokenTTL = 30 * 24 * time.Hour

// opsServer backs the operational Unix socket: liveness checks and
// service token minting for sandbox workers.
type opsServer struct {
	signKey   ed25519.PrivateKey
	store     *store.Store
	registry  *coordinator.Registry
	clock     clock.Clock
	startedAt time.Time
	logger    *slog.Logger
}

// register wires the ops actions into a socket server.
func (o *opsServer) register(socket *service.SocketServer) {
	socket.Handle("status", o.handleStatus)
	socket.Handle("info", o.handleInfo)
	socket.Handle("version", o.handleVersion)
	socket.Handle("mint-token", o.handleMintToken)
}

func (o *opsServer) handleStatus(ctx context.Context, raw []byte) (any, error) {
	return map[string]any{
		"pid":     os.Getpid(),
		"version": version.Info(),
		"uptime":  o.clock.Now().Sub(o.startedAt).Round(time.Second).String(),
	}, nil
}

// handleInfo reports what the daemon is carrying: live dashboard
// coordinators and registered schedules.
func (o *opsServer) handleInfo(ctx context.Context, raw []byte) (any, error) {
	schedules, err := o.store.Schedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	enabled := 0
	for _, schedule := range schedules {
		if schedule.Enabled {
			enabled++
		}
	}
	return map[string]any{
		"coordinators":      o.registry.Len(),
		"schedules":         len(schedules),
		"schedules_enabled": enabled,
	}, nil
}

func (o *opsServer) handleVersion(ctx context.Context, raw []byte) (any, error) {
	return map[string]string{"version": version.Full()}, nil
}

// handleMintToken issues a signed internal-API token. The subject
// names the worker the token is for; it shows up in audit logs on the
// receiving side.
func (o *opsServer) handleMintToken(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Subject    string `cbor:"subject"`
		TTLSeconds int64  `cbor:"ttl_seconds"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if request.Subject == "" {
		return nil, fmt.Errorf("missing required field: subject")
	}
	ttl := defaultTokenTTL
	if request.TTLSeconds > 0 {
		ttl = time.Duration(request.TTLSeconds) * time.Second
	}
	if ttl > maxTokenTTL {
		ttl = maxTokenTTL
	}

	now := o.clock.Now()
	token := &servicetoken.Token{
		Subject:   request.Subject,
		Audience:  internalAudience,
		ID:        ulid.Make().String(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	minted, err := servicetoken.Mint(o.signKey, token)
	if err != nil {
		return nil, fmt.Errorf("minting token: %w", err)
	}

	o.logger.Info("service token minted",
		"subject", request.Subject,
		"token_id", token.ID,
		"expires_at", time.Unix(token.ExpiresAt, 0).UTC(),
	)
	return map[string]string{
		"token":      base64.StdEncoding.EncodeToString(minted),
		"token_id":   token.ID,
		"expires_at": time.Unix(token.ExpiresAt, 0).UTC().Format(time.RFC3339),
	}, nil
}
