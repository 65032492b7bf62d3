// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"errors"
	"testing"
	"time"
)

func TestMintAndVerify(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := &Token{
		Subject:   "scheduler",
		Audience:  "internal",
		ID:        "tok-1",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}

	raw, err := Mint(private, token)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	decoded, err := VerifyAt(public, raw, now)
	if err != nil {
		t.Fatalf("VerifyAt: %v", err)
	}
	if decoded.Subject != "scheduler" || decoded.Audience != "internal" || decoded.ID != "tok-1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	now := time.Now()
	raw, err := Mint(private, &Token{
		Subject:   "scheduler",
		Audience:  "internal",
		ID:        "tok-2",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	// Flip a payload bit.
	tampered := append([]byte(nil), raw...)
	tampered[0] ^= 0x01
	if _, err := VerifyAt(public, tampered, now); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered payload: got %v, want ErrInvalidSignature", err)
	}

	// Wrong key.
	otherPublic, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if _, err := VerifyAt(otherPublic, raw, now); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("wrong key: got %v, want ErrInvalidSignature", err)
	}

	// Too short.
	if _, err := VerifyAt(public, raw[:signatureSize], now); !errors.Is(err, ErrTokenTooShort) {
		t.Errorf("short token: got %v, want ErrTokenTooShort", err)
	}
}

func TestVerifyExpiry(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, err := Mint(private, &Token{
		Subject:   "scheduler",
		Audience:  "internal",
		ID:        "tok-3",
		IssuedAt:  issued.Unix(),
		ExpiresAt: issued.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if _, err := VerifyAt(public, raw, issued.Add(30*time.Minute)); err != nil {
		t.Errorf("mid-lifetime verify: %v", err)
	}
	if _, err := VerifyAt(public, raw, issued.Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired verify: got %v, want ErrTokenExpired", err)
	}
	// Expiry boundary is exclusive: a token is dead at its ExpiresAt
	// second.
	if _, err := VerifyAt(public, raw, issued.Add(time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("boundary verify: got %v, want ErrTokenExpired", err)
	}
}

func TestVerifyForService(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	now := time.Now()
	raw, err := Mint(private, &Token{
		Subject:   "webhook",
		Audience:  "internal",
		ID:        "tok-4",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if _, err := VerifyForServiceAt(public, raw, "internal", now); err != nil {
		t.Errorf("matching audience: %v", err)
	}
	if _, err := VerifyForServiceAt(public, raw, "admin", now); !errors.Is(err, ErrAudienceMismatch) {
		t.Errorf("wrong audience: got %v, want ErrAudienceMismatch", err)
	}
}

func TestLoadOrGenerateKeypair(t *testing.T) {
	stateDir := t.TempDir()

	public1, private1, generated, err := LoadOrGenerateKeypair(stateDir)
	if err != nil {
		t.Fatalf("LoadOrGenerateKeypair (first): %v", err)
	}
	if !generated {
		t.Error("first call should generate")
	}

	public2, private2, generated, err := LoadOrGenerateKeypair(stateDir)
	if err != nil {
		t.Fatalf("LoadOrGenerateKeypair (second): %v", err)
	}
	if generated {
		t.Error("second call should load, not generate")
	}
	if !public1.Equal(public2) || !private1.Equal(private2) {
		t.Error("reloaded keypair differs from generated one")
	}
}
