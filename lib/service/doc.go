// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the serving primitives shared by Slate
// daemons: an HTTP server with graceful shutdown for the public API
// and WebSocket endpoints, and a CBOR request-response protocol on a
// Unix socket for local operational commands (status, info).
//
// Both servers follow the same lifecycle: construct, then Serve(ctx)
// blocks until the context is cancelled and in-flight work drains.
package service
