/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/blocktrron/fastd-go/internal/curve25519x"
)

// PreferredLifetime is how long a handshake keypair is offered as the
// preferred one to start new handshakes with, before it is kept around
// only to finish handshakes already in flight. ValidLifetime is how
// long after that it is kept at all. Both are grounded on
// protocol_ec25519_fhmqvc.c's MAINTENANCE_INTERVAL-derived constants,
// scaled to the same 15s/30s relationship the original uses.
const (
	PreferredLifetime = 15 * time.Second
	ValidLifetime      = 30 * time.Second
)

// IdentityKey is a peer's long-term Curve25519 public key.
type IdentityKey [curve25519x.PublicSize]byte

// IdentitySecret is a local long-term Curve25519 secret key.
type IdentitySecret struct {
	scalar *curve25519x.Scalar
	public IdentityKey
}

// NewIdentitySecret clamps a raw 32-byte secret into an IdentitySecret.
func NewIdentitySecret(raw [curve25519x.SecretSize]byte) (*IdentitySecret, error) {
	sc, err := curve25519x.ClampSecret(&raw)
	if err != nil {
		return nil, fmt.Errorf("protocol: identity secret: %w", err)
	}
	return &IdentitySecret{scalar: sc, public: IdentityKey(curve25519x.BasepointMul(sc).Bytes())}, nil
}

// GenerateIdentitySecret creates a fresh random identity. The genkey
// subcommand does not use it; it calls curve25519x.GenerateSecret
// directly.
func GenerateIdentitySecret() (*IdentitySecret, error) {
	sc, _, err := curve25519x.GenerateSecret()
	if err != nil {
		return nil, err
	}
	return &IdentitySecret{scalar: sc, public: IdentityKey(curve25519x.BasepointMul(sc).Bytes())}, nil
}

// Public returns the associated public identity key.
func (s *IdentitySecret) Public() IdentityKey { return s.public }

// Zero wipes the secret scalar. Callers hold an IdentitySecret for the
// lifetime of the daemon and should only call this at shutdown.
func (s *IdentitySecret) Zero() { s.scalar.Zero() }

// HandshakeKeypair is one ephemeral Curve25519 keypair drawn from the
// handshake-key pool, tagged with the window during which it may be
// offered to start new handshakes (PreferredTill) and the window
// during which it may still be used to finish one already in flight
// (ValidTill).
type HandshakeKeypair struct {
	Secret *curve25519x.Scalar
	Public IdentityKey

	PreferredTill time.Time
	ValidTill     time.Time
}

// Valid reports whether the keypair may still be used to finish a
// handshake at the given time.
func (k *HandshakeKeypair) Valid(now time.Time) bool {
	return now.Before(k.ValidTill)
}

// Preferred reports whether the keypair should still be offered to
// start new handshakes at the given time.
func (k *HandshakeKeypair) Preferred(now time.Time) bool {
	return now.Before(k.PreferredTill)
}

// HandshakePool owns the rolling current/previous ephemeral handshake
// keypairs for the local identity, grounded on
// protocol_ec25519_fhmqvc.c's maintenance() function. It generalizes
// the "one or two keys with overlapping validity" pattern the same way
// device/keypair.go's Keypairs struct does for data-session keys.
type HandshakePool struct {
	mu       sync.Mutex
	current  *HandshakeKeypair
	previous *HandshakeKeypair
}

// NewHandshakePool builds an empty pool; call Maintain once before use.
func NewHandshakePool() *HandshakePool {
	return &HandshakePool{}
}

// Maintain rotates in a fresh handshake keypair if the current one is
// no longer preferred (or absent), demoting the old current keypair to
// previous, and drops previous once it is no longer valid at all.
func (p *HandshakePool) Maintain(now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.previous != nil && !p.previous.Valid(now) {
		p.previous = nil
	}

	if p.current == nil || !p.current.Preferred(now) {
		sc, _, err := curve25519x.GenerateSecret()
		if err != nil {
			return fmt.Errorf("protocol: generating handshake key: %w", err)
		}
		fresh := &HandshakeKeypair{
			Secret:        sc,
			Public:        IdentityKey(curve25519x.BasepointMul(sc).Bytes()),
			PreferredTill: now.Add(PreferredLifetime),
			ValidTill:     now.Add(ValidLifetime),
		}
		if p.current != nil {
			p.previous = p.current
		}
		p.current = fresh
	}
	return nil
}

// Current returns the keypair that should be offered to start new
// handshakes.
func (p *HandshakePool) Current() *HandshakeKeypair {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Find returns the keypair (current or previous) matching the given
// public key, if it is still valid, for matching an inbound
// handshake's recipient-handshake-key record against what we actually
// have live.
func (p *HandshakePool) Find(now time.Time, pub IdentityKey) *HandshakeKeypair {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.current.Public == pub && p.current.Valid(now) {
		return p.current
	}
	if p.previous != nil && p.previous.Public == pub && p.previous.Valid(now) {
		return p.previous
	}
	return nil
}
