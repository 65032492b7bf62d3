// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package sessionbridge

import (
	"context"
	"errors"
	"io"
	"net"
)

// Proxy copies bytes between a client connection and a sandbox PTY
// stream in both directions until either side closes, the context is
// canceled, or an error occurs. Both connections are closed before
// Proxy returns. A clean EOF from either side is a normal hangup, not
// an error.
func Proxy(ctx context.Context, client, remote net.Conn) error {
	defer client.Close()
	defer remote.Close()

	results := make(chan error, 2)
	pump := func(dst, src net.Conn) {
		_, err := io.Copy(dst, src)
		// Unblock the opposite direction.
		dst.Close()
		src.Close()
		results <- err
	}
	go pump(remote, client)
	go pump(client, remote)

	var firstErr error
	for range 2 {
		select {
		case err := <-results:
			if firstErr == nil && err != nil && !isClosedConn(err) {
				firstErr = err
			}
		case <-ctx.Done():
			client.Close()
			remote.Close()
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}
	return firstErr
}

func isClosedConn(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
