/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

// Package udptransport is the real-socket implementation of
// protocol.Transport, binding a single UDP socket and dispatching every
// received datagram to a wired Inbound callback. Grounded on
// opd-ai-toxcore's transport/udp.go (net.ListenPacket plus a background
// receive loop built on net.PacketConn's interface rather than the
// concrete *net.UDPConn, for the same listener-abstraction reasons),
// restructured around the address-learning maps loopback.Transport
// already uses so both Transports satisfy protocol.Transport
// identically from the protocol package's point of view.
package udptransport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/blocktrron/fastd-go/internal/logging"
	"github.com/blocktrron/fastd-go/internal/protocol"
)

// maxDatagramSize is large enough for any handshake or data frame this
// protocol produces; fastd's own wire records are far smaller than a
// typical path MTU.
const maxDatagramSize = 1500

// Transport binds one UDP socket and maps known peers to their current
// remote address by string form ("host:port"), matching net.UDPAddr's
// own String() representation so ResolvePeer/UpdatePeerAddress can key
// off net.Addr.String() directly.
type Transport struct {
	conn net.PacketConn
	log  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	addrByPeer map[*protocol.PeerState]string
	peerByAddr map[string]*protocol.PeerState

	// Inbound is invoked for every received datagram; wire it to a
	// protocol.Context's HandleInbound before traffic starts flowing.
	Inbound func(raw []byte, addr any) bool
}

// Listen binds bindAddr (e.g. "0.0.0.0:10000") and starts the
// background receive loop.
func Listen(bindAddr string, log *logging.Logger) (*Transport, error) {
	conn, err := net.ListenPacket("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: listen %s: %w", bindAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		conn:       conn,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		addrByPeer: make(map[*protocol.PeerState]string),
		peerByAddr: make(map[string]*protocol.PeerState),
	}
	go t.receiveLoop()
	return t, nil
}

// Close stops the receive loop and closes the underlying socket.
func (t *Transport) Close() error {
	t.cancel()
	return t.conn.Close()
}

func (t *Transport) receiveLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.ctx.Done():
				return
			default:
			}
			if t.log != nil {
				t.log.Warnf("udptransport: read: %v", err)
			}
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		if t.Inbound != nil {
			t.Inbound(raw, addr.String())
		}
	}
}

// WriteTo sends frame to peer's currently-known address.
func (t *Transport) WriteTo(peer *protocol.PeerState, frame []byte) error {
	t.mu.Lock()
	addrStr, ok := t.addrByPeer[peer]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("udptransport: no known address for peer")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addrStr)
	if err != nil {
		return fmt.Errorf("udptransport: resolving %s: %w", addrStr, err)
	}

	_, err = t.conn.WriteTo(frame, udpAddr)
	return err
}

// ResolvePeer looks up the peer associated with a previously-learned
// address string.
func (t *Transport) ResolvePeer(addr any) (*protocol.PeerState, bool) {
	a, ok := addr.(string)
	if !ok {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peerByAddr[a]
	return p, ok
}

// UpdatePeerAddress records addr as peer's current address, evicting
// whatever peer used to occupy the old address slot — the mechanism
// spec.md §8's dynamic address drift rides on.
func (t *Transport) UpdatePeerAddress(peer *protocol.PeerState, addr any) {
	a, ok := addr.(string)
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

// ResolveHostname is a no-op here: this reference Transport is handed
// already-resolved "host:port" strings by cmd/fastd at load time, and
// re-resolving a dynamic peer's hostname on the fly is out of scope
// for the reference implementation (spec.md's Transport non-goal). A
// production Transport would start a background net.Resolver lookup
// here and call UpdatePeerAddress once it completes.
func (t *Transport) ResolveHostname(peer *protocol.PeerState) {}

var _ protocol.Transport = (*Transport)(nil)
