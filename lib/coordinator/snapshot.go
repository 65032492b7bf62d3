// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/slate-labs/slate/lib/codec"
)

// Snapshots are CBOR-encoded and zstd-compressed before hitting the
// store; dashboard state is small but item content and metadata can
// repeat heavily across items.

var (
	snapshotEncoder *zstd.Encoder
	snapshotDecoder *zstd.Decoder
)

func init() {
	var err error
	snapshotEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("coordinator: creating zstd encoder: %v", err))
	}
	snapshotDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("coordinator: creating zstd decoder: %v", err))
	}
}

func encodeSnapshot(state State) ([]byte, error) {
	raw, err := codec.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return snapshotEncoder.EncodeAll(raw, nil), nil
}

func decodeSnapshot(payload []byte) (State, error) {
	raw, err := snapshotDecoder.DecodeAll(payload, nil)
	if err != nil {
		return State{}, fmt.Errorf("decompressing snapshot: %w", err)
	}
	var state State
	if err := codec.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return state, nil
}
