/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

// Transport is the packet I/O external collaborator (spec.md's
// explicit Non-goal: no packet transport is implemented by this
// package). The protocol core calls WriteTo to emit handshake and
// data frames and ResolvePeer to turn a received packet's source
// address into a peer when no sender-key hint is available yet
// (floating/dynamic-address peers); internal/transport/loopback is the
// in-process reference implementation used by tests.
type Transport interface {
	// WriteTo sends a framed handshake or data packet to the given
	// peer's currently-known address.
	WriteTo(peer *PeerState, frame []byte) error

	// ResolvePeer maps a source address to the peer it belongs to.
	// Inbound data frames are routed by session ID, not by address; a
	// handshake frame uses ResolvePeer to accept a dynamic or static
	// peer from an address the Transport maps to it, and as the
	// fallback when its sender key doesn't (yet) match any configured
	// peer, giving the
	// Transport a chance to report a floating peer it recognizes by
	// other means (e.g. a prior handshake from the same address).
	ResolvePeer(addr any) (*PeerState, bool)

	// UpdatePeerAddress records a learned or confirmed address for a
	// peer, the "dynamic address drift" case in spec.md §8.
	UpdatePeerAddress(peer *PeerState, addr any)

	// ResolveHostname asks the Transport to (re-)resolve a dynamic
	// peer's configured hostname into a fresh address, out of band;
	// the Transport is expected to call UpdatePeerAddress once
	// resolution completes (spec.md §4.3/§5: "hostname resolution is
	// offloaded to an external resolver and its completion is
	// delivered as a subsequent event"). A Transport with no
	// hostname-resolution capability of its own may treat this as a
	// no-op.
	ResolveHostname(peer *PeerState)
}
