// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/sessionbridge"
)

// disconnectTimeout bounds the coordinator bookkeeping that runs after
// a websocket's request context is already dead.
const disconnectTimeout = 5 * time.Second

// handleDashboardStream upgrades to a websocket and attaches the
// caller to the dashboard's coordinator: presence events and item
// mutations flow out, cursor and selection updates flow in.
func (s *apiServer) handleDashboardStream(w http.ResponseWriter, r *http.Request) {
	userID, userName, ok := s.identity(w, r)
	if !ok {
		return
	}
	dashboardID := schema.DashboardID(r.PathValue("id"))
	if _, ok := s.requireRole(w, r, dashboardID, userID, false); !ok {
		return
	}
	c, err := s.registry.Get(r.Context(), dashboardID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed",
			"dashboard_id", dashboardID,
			"error", err,
		)
		return
	}
	defer wsConn.CloseNow()

	connection, err := c.Connect(r.Context(), userID, userName)
	if err != nil {
		wsConn.Close(websocket.StatusInternalError, "connect failed")
		return
	}
	defer func() {
		// The request context is gone once the client hangs up; the
		// coordinator still needs to run the leave bookkeeping.
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := c.Disconnect(ctx, connection); err != nil {
			s.logger.Warn("disconnect failed",
				"dashboard_id", dashboardID,
				"user_id", userID,
				"error", err,
			)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		defer cancel()
		for {
			select {
			case event, open := <-connection.Events():
				if !open {
					return
				}
				if err := wsjson.Write(ctx, wsConn, event); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var message schema.ClientMessage
		if err := wsjson.Read(ctx, wsConn, &message); err != nil {
			break
		}
		if err := c.HandleMessage(ctx, connection, message); err != nil {
			s.logger.Warn("client message rejected",
				"dashboard_id", dashboardID,
				"user_id", userID,
				"error", err,
			)
			break
		}
	}
	cancel()
	<-writeDone
}

// handlePtyStream bridges a client websocket to the remote pty stream
// of an active session. Bytes are relayed verbatim in both directions.
func (s *apiServer) handlePtyStream(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	if !s.requireBridge(w) {
		return
	}
	sessionID := schema.SessionID(r.PathValue("id"))
	ptyID := r.PathValue("ptyId")

	remote, err := s.bridge.OpenStream(r.Context(), sessionID, ptyID, userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer remote.Close()

	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed",
			"session_id", sessionID,
			"error", err,
		)
		return
	}
	defer wsConn.CloseNow()

	client := websocket.NetConn(r.Context(), wsConn, websocket.MessageBinary)
	if err := sessionbridge.Proxy(r.Context(), client, remote); err != nil &&
		!errors.Is(err, context.Canceled) {
		s.logger.Warn("pty proxy ended with error",
			"session_id", sessionID,
			"pty_id", ptyID,
			"error", err,
		)
	}
	wsConn.Close(websocket.StatusNormalClosure, "")
}
