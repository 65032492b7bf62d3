// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/slate-labs/slate/lib/codec"
	"github.com/slate-labs/slate/lib/testutil"
)

// startSocketServer serves a SocketServer for the duration of the test
// and returns the socket path.
func startSocketServer(t *testing.T, server *SocketServer, socketPath string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "socket server did not stop"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	// Wait for the socket file to appear.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		err := CallSocket(context.Background(), socketPath, map[string]string{"action": "probe"}, nil)
		if err == nil || strings.Contains(err.Error(), "unknown action") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("socket server never became reachable")
}

func TestSocketRequestResponse(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "ops.sock")
	server := NewSocketServer(socketPath, slog.New(slog.DiscardHandler))

	type echoRequest struct {
		Action  string `cbor:"action"`
		Message string `cbor:"message"`
	}
	type echoResponse struct {
		Message string `cbor:"message"`
	}

	server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
		var request echoRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return echoResponse{Message: request.Message}, nil
	})

	startSocketServer(t, server, socketPath)

	var response echoResponse
	err := CallSocket(context.Background(), socketPath, echoRequest{Action: "echo", Message: "hello"}, &response)
	if err != nil {
		t.Fatalf("CallSocket: %v", err)
	}
	if response.Message != "hello" {
		t.Errorf("Message = %q, want %q", response.Message, "hello")
	}
}

func TestSocketHandlerError(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "ops.sock")
	server := NewSocketServer(socketPath, slog.New(slog.DiscardHandler))

	server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, errors.New("deliberate failure")
	})

	startSocketServer(t, server, socketPath)

	err := CallSocket(context.Background(), socketPath, map[string]string{"action": "fail"}, nil)
	if err == nil {
		t.Fatal("expected error from failing handler")
	}
	if !strings.Contains(err.Error(), "deliberate failure") {
		t.Errorf("error = %q, want it to contain %q", err, "deliberate failure")
	}
}

func TestSocketUnknownAction(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "ops.sock")
	server := NewSocketServer(socketPath, slog.New(slog.DiscardHandler))
	startSocketServer(t, server, socketPath)

	err := CallSocket(context.Background(), socketPath, map[string]string{"action": "nope"}, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown action") {
		t.Errorf("error = %v, want unknown action", err)
	}
}

func TestSocketMissingAction(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "ops.sock")
	server := NewSocketServer(socketPath, slog.New(slog.DiscardHandler))
	startSocketServer(t, server, socketPath)

	err := CallSocket(context.Background(), socketPath, map[string]string{}, nil)
	if err == nil || !strings.Contains(err.Error(), "missing required field") {
		t.Errorf("error = %v, want missing action error", err)
	}
}

func TestSocketDuplicateHandlerPanics(t *testing.T) {
	server := NewSocketServer("/tmp/unused.sock", slog.New(slog.DiscardHandler))
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) { return nil, nil })

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate handler registration")
		}
	}()
	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) { return nil, nil })
}
