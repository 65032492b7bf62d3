// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Slate's standard CBOR encoding: deterministic
// output (RFC 8949 §4.2) on the encode side, forward-compatible
// decoding (unknown fields ignored) on the decode side. Used for
// coordinator snapshots, the ops socket protocol, and service token
// payloads — the same logical value always produces identical bytes,
// which keeps snapshot diffs and token signatures stable.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Slate never uses non-string map keys. When decoding into an
		// any-typed target (execution contexts, item metadata), pick
		// map[string]any instead of CBOR's default
		// map[interface{}]interface{}, which encoding/json and most Go
		// code cannot handle.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using deterministic encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value, for delayed decoding or
// pre-encoded output.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing deterministic CBOR to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
