/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

// Package loopback is an in-process reference implementation of
// protocol.Transport: it delivers datagrams directly between
// Transports sharing a Network, standing in for a real UDP socket in
// tests and local demonstration. It plays the role device/send.go and
// device/receive.go play for the real socket in the teacher repo,
// minus any actual I/O — every frame here is handed to
// protocol.Context.HandleInbound synchronously, in-process.
package loopback

import (
	"fmt"
	"sync"

	"github.com/blocktrron/fastd-go/internal/protocol"
)

// Addr is the loopback address space: plain string names.
type Addr string

// Network is a shared in-process medium: Transports registered on the
// same Network can reach each other by Addr.
type Network struct {
	mu     sync.Mutex
	routes map[Addr]*Transport
}

// NewNetwork creates an empty loopback network.
func NewNetwork() *Network {
	return &Network{routes: make(map[Addr]*Transport)}
}

func (n *Network) register(addr Addr, t *Transport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[addr] = t
}

func (n *Network) lookup(addr Addr) (*Transport, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.routes[addr]
	return t, ok
}

// Transport is one endpoint on a loopback Network.
type Transport struct {
	net  *Network
	self Addr

	mu        sync.Mutex
	addrByPeer map[*protocol.PeerState]Addr
	peerByAddr map[Addr]*protocol.PeerState

	// Inbound is invoked for every datagram this Transport receives;
	// wire it to a protocol.Context's HandleInbound.
	Inbound func(raw []byte, addr any) bool
}

// NewTransport registers a new endpoint at addr on net.
func NewTransport(net *Network, addr Addr) *Transport {
	t := &Transport{
		net:        net,
		self:       addr,
		addrByPeer: make(map[*protocol.PeerState]Addr),
		peerByAddr: make(map[Addr]*protocol.PeerState),
	}
	net.register(addr, t)
	return t
}

// WriteTo delivers frame to peer's currently-known address.
func (t *Transport) WriteTo(peer *protocol.PeerState, frame []byte) error {
	t.mu.Lock()
	addr, ok := t.addrByPeer[peer]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("loopback: no known address for peer")
	}

	dest, ok := t.net.lookup(addr)
	if !ok {
		return fmt.Errorf("loopback: no such address %q", addr)
	}
	if dest.Inbound == nil {
		return fmt.Errorf("loopback: destination %q has no inbound handler wired", addr)
	}

	cp := make([]byte, len(frame))
	copy(cp, frame)
	dest.Inbound(cp, t.self)
	return nil
}

// ResolvePeer looks up the peer associated with a previously-learned
// address.
func (t *Transport) ResolvePeer(addr any) (*protocol.PeerState, bool) {
	a, ok := addr.(Addr)
	if !ok {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peerByAddr[a]
	return p, ok
}

// UpdatePeerAddress records addr as peer's current address — the
// "dynamic address drift" case of spec.md §8: a floating peer that
// reconnects from a new address is simply re-learned here.
func (t *Transport) UpdatePeerAddress(peer *protocol.PeerState, addr any) {
	a, ok := addr.(Addr)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, had := t.addrByPeer[peer]; had && old != a {
		delete(t.peerByAddr, old)
	}
	t.addrByPeer[peer] = a
	t.peerByAddr[a] = peer
}

// ResolveHostname is a no-op: the loopback network has no hostnames to
// resolve, every Addr is already a final destination.
func (t *Transport) ResolveHostname(peer *protocol.PeerState) {}

var _ protocol.Transport = (*Transport)(nil)
