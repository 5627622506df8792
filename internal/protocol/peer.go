/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

import (
	"sync"
	"time"
)

// AddressMode selects how a peer's remote address is tracked, one of
// the three discriminators spec.md §3 names for the identity registry.
type AddressMode int

const (
	// AddressFloating peers may be reached at any address: matching an
	// inbound frame is by identity key alone, and the address is
	// simply re-learned on every successfully authenticated frame.
	AddressFloating AddressMode = iota

	// AddressDynamic peers are tracked against a resolved address the
	// Transport maintains (typically re-resolved from a hostname on a
	// timer external to this package). A handshake whose sender
	// address doesn't match the last resolved one triggers
	// re-resolution via Transport.ResolveHostname and is dropped
	// (spec.md §4.3, §8 scenario 6).
	AddressDynamic

	// AddressStatic peers only match their pinned, configured address.
	AddressStatic
)

// PeerConfig is the static, user-configured half of a peer: its name,
// long-term public key, its address-discovery mode, and the
// key/nonce/keepalive timing budgets spec.md §6 requires as
// configuration. It is the narrow slice of internal/config.PeerConfig
// the protocol engine needs; config.PeerConfig converts to this rather
// than protocol importing config, keeping the dependency direction the
// way device/peer.go keeps device independent of manager's config
// package.
type PeerConfig struct {
	Name        string
	Key         IdentityKey
	AddressMode AddressMode
	Enabled     bool

	// KeyValid/KeyRefresh/KeyRefreshSplay bound a session's lifetime:
	// valid_till = now+KeyValid, refresh_after = now+KeyRefresh minus a
	// random splay in [0, KeyRefreshSplay) to desynchronize fleet-wide
	// rekeys (spec.md §4.5/§6). Zero means "no time-based bound",
	// relying solely on the Method's own SessionIsValid/SessionWantRefresh.
	KeyValid        time.Duration
	KeyRefresh      time.Duration
	KeyRefreshSplay time.Duration

	// ReorderTime/ReorderCount configure the nonce replay window
	// (spec.md §4.5/§6); zero means the package defaults.
	ReorderTime  time.Duration
	ReorderCount uint

	// KeepaliveInterval is how long Send waits with nothing sent to a
	// peer before emitting an empty keepalive frame (spec.md §4.4 step
	// 4). Zero disables keepalive scheduling.
	KeepaliveInterval time.Duration
}

// Session is one established FHMQV-C session: the symmetric handshake
// key, session secret, per-direction nonce state, and which side
// initiated it (spec.md §3/§4.4). A PeerState holds up to two of
// these — current and previous — to give forward-secret rekeys a
// grace period during which either may still decrypt inbound traffic.
type Session struct {
	ID           sessionID
	HandshakeKey [32]byte
	Secret       [32]byte

	Initiator bool
	Nonces    *NonceState

	EstablishedAt time.Time
	ValidTill     time.Time // zero means no time-based bound
	RefreshAfter  time.Time // zero means no time-based bound

	// Refreshing is set once check_refresh has scheduled a zero-delay
	// rekey handshake for this session, so a second call doesn't queue
	// a duplicate one (spec.md §4.4 step 2).
	Refreshing bool

	MethodSession any // opaque state owned by the configured Method
}

// timeValid reports whether sess's time-based validity window (if any)
// still holds at now.
func (sess *Session) timeValid(now time.Time) bool {
	return sess.ValidTill.IsZero() || now.Before(sess.ValidTill)
}

// timeWantsRefresh reports whether sess's time-based refresh deadline
// (if any) has passed at now.
func (sess *Session) timeWantsRefresh(now time.Time) bool {
	return !sess.RefreshAfter.IsZero() && !now.Before(sess.RefreshAfter)
}

// HandshakeState is the in-progress state of a handshake that has not
// yet completed: our ephemeral keypair, the peer's ephemeral public key
// once known, and which role we are playing.
// Grounded on protocol_ec25519_fhmqvc.c's fastd_handshake struct.
type HandshakeState struct {
	Initiator bool

	OurHandshakeKey *HandshakeKeypair
	PeerHandshakeKey *IdentityKey

	StartedAt time.Time
}

// PeerState is the runtime state for one configured peer: its static
// config, current/previous sessions, and any handshake in flight.
// Grounded on device/peer.go's Peer struct, generalized from
// WireGuard's single-keypair-pair model to fastd's two-full-session
// overlap model.
type PeerState struct {
	mu sync.Mutex

	Config PeerConfig

	Current  *Session
	Previous *Session

	Handshake *HandshakeState

	LastHandshakeRequestSent time.Time
	HandshakesCleaned        bool

	// Address is a remote address matchSenderKey compares a dynamic or
	// static peer's sender address against. The Transports in this
	// repository do not set it: they keep their own peer/address maps
	// (written by UpdatePeerAddress), and HandleHandshake also accepts
	// a dynamic or static peer whose sender address the Transport's
	// ResolvePeer maps to that peer.
	Address any
}

// NewPeerState creates the runtime state for a configured peer.
func NewPeerState(cfg PeerConfig) *PeerState {
	return &PeerState{Config: cfg}
}

// HasSession reports whether the peer has any session installed right
// now (current or previous); it does not check whether that session is
// still valid.
func (p *PeerState) HasSession() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Current != nil || p.Previous != nil
}

// Table is the identity-keyed registry of all configured peers, plus
// the lookup indices matchSenderKey needs: grounded on
// protocol_ec25519_fhmqvc.c's match_sender_key, which tries a
// hinted peer first, then falls back to scanning all peers sharing a
// dynamic/floating address policy.
type Table struct {
	mu    sync.RWMutex
	byKey map[IdentityKey]*PeerState
}

// NewTable builds an empty peer table.
func NewTable() *Table {
	return &Table{byKey: make(map[IdentityKey]*PeerState)}
}

// Add registers a peer. It replaces any existing entry for the same
// key.
func (t *Table) Add(p *PeerState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey[p.Config.Key] = p
}

// Remove drops a peer from the table.
func (t *Table) Remove(key IdentityKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byKey, key)
}

// ByKey looks a peer up by its static identity key.
func (t *Table) ByKey(key IdentityKey) (*PeerState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byKey[key]
	return p, ok
}

// All returns a snapshot slice of every registered peer, for
// maintenance sweeps.
func (t *Table) All() []*PeerState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*PeerState, 0, len(t.byKey))
	for _, p := range t.byKey {
		out = append(out, p)
	}
	return out
}

// matchSenderKey resolves an inbound handshake's sender identity key
// and address to a configured, enabled peer, applying the
// address-discovery rule its AddressMode names (spec.md §4.3): a
// floating peer matches by key alone; a dynamic peer matches only if
// addr equals its last resolved address (ErrAddressMismatch otherwise,
// so the caller can trigger re-resolution and drop); a static peer
// matches only its pinned address.
func (t *Table) matchSenderKey(key IdentityKey, addr any) (*PeerState, error) {
	p, ok := t.ByKey(key)
	if !ok {
		return nil, ErrUnknownPeer
	}
	if !p.Config.Enabled {
		return nil, ErrPeerDisabled
	}

	switch p.Config.AddressMode {
	case AddressDynamic:
		// Until a hostname has actually been resolved to a known-good
		// address, a dynamic peer never matches: spec.md §5 requires
		// handshakes to a stale/unresolved dynamic peer to be dropped.
		p.mu.Lock()
		known := p.Address
		p.mu.Unlock()
		if known == nil || known != addr {
			return p, ErrAddressMismatch
		}
	case AddressStatic:
		p.mu.Lock()
		known := p.Address
		p.mu.Unlock()
		if known == nil || known != addr {
			return p, ErrAddressMismatch
		}
	}

	return p, nil
}
