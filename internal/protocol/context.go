/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

// Package protocol implements the FHMQV-C authenticated handshake,
// per-peer session state with forward-secret rekey/overlap, and the
// sliding-window anti-replay nonce core. Everything outside this
// package — packet transport, the TUN/datapath, the bulk AEAD method,
// configuration, logging setup, and scheduling — is an external
// collaborator reached only through the narrow interfaces declared in
// method.go, transport.go and scheduler.go.
package protocol

import (
	"sync"

	"github.com/blocktrron/fastd-go/internal/logging"
	"github.com/blocktrron/fastd-go/internal/ratelimiter"
)

// Context is the explicit, passed-around handle to all protocol-core
// state: no package-level singletons, per the design note against
// hidden global state carried over from spec.md §9. One Context
// exists per running daemon instance; tests construct their own to
// get full isolation between cases.
type Context struct {
	Identity *IdentitySecret
	Keys     *HandshakePool
	Peers    *Table

	Method    Method
	Transport Transport
	Scheduler Scheduler

	Log *logging.Logger

	// HandshakeLimiter, if set, throttles handshake Requests per
	// sender address, guarding the (comparatively expensive) FHMQV-C
	// computation against a flood of forged senders. Nil disables
	// limiting, as in tests.
	HandshakeLimiter *ratelimiter.Limiter

	// OnReceive, if set, is called with every successfully decrypted
	// data-frame payload, the handoff point to the Datapath/TUN
	// external collaborator.
	OnReceive func(peer *PeerState, plaintext []byte)

	sessionsMu sync.Mutex
	sessions   map[sessionID]*PeerState
}

// NewContext wires together a fresh protocol context. Callers
// (cmd/fastd, or a test) are responsible for registering peers into
// ctx.Peers and calling ctx.Keys.Maintain before handshakes can
// proceed.
func NewContext(identity *IdentitySecret, method Method, transport Transport, scheduler Scheduler, log *logging.Logger) *Context {
	return &Context{
		Identity:  identity,
		Keys:      NewHandshakePool(),
		Peers:     NewTable(),
		Method:    method,
		Transport: transport,
		Scheduler: scheduler,
		Log:       log,
		sessions:  make(map[sessionID]*PeerState),
	}
}
