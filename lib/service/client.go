// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/slate-labs/slate/lib/codec"
)

// CallSocket performs one request-response cycle against a SocketServer:
// dial, encode the request, decode the Response envelope, close. A
// failure response becomes a Go error; on success the data field is
// decoded into result (which may be nil to discard it).
func CallSocket(ctx context.Context, socketPath string, request any, result any) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if !response.OK {
		if response.Error == "" {
			return errors.New("request failed")
		}
		return errors.New(response.Error)
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}

	return nil
}
