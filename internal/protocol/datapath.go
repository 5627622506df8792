/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

import (
	"fmt"
	"time"

	"github.com/blocktrron/fastd-go/internal/wire"
)

// HandshakeTimeout bounds how long a handshake may sit unfinished
// before it is abandoned, grounded on
// protocol_ec25519_fhmqvc.c's MAINTENANCE_INTERVAL-scaled handshake
// retry policy.
const HandshakeTimeout = 10 * time.Second

// Transport envelope tags: every datagram a Context hands to its
// Transport is prefixed with one of these, so a single inbound byte
// stream (as a real UDP socket would deliver) can be demultiplexed
// into the handshake and data paths without guessing at content shape.
// This mirrors WireGuard's own leading message-type byte convention
// and is a Transport-boundary detail, not part of the TLV record
// format in internal/wire.
const (
	envelopeData      byte = 0
	envelopeHandshake byte = 1
)

// sessionUsable reports whether sess may still be used to send traffic:
// both the Method's own validity budget and the peer-configured
// time-based valid_till window must hold (spec.md §4.4 step 1).
func (ctx *Context) sessionUsable(sess *Session, now time.Time) bool {
	if sess == nil {
		return false
	}
	if !sess.timeValid(now) {
		return false
	}
	return ctx.Method == nil || ctx.Method.SessionIsValid(sess.MethodSession)
}

// checkRefresh implements spec.md §4.4 step 2: once a session we
// initiated reports it wants a refresh — by the Method's own
// message/byte budget or by the peer-configured time-based
// refresh_after deadline — a replacement handshake is scheduled with
// zero delay, exactly once per session (Session.Refreshing guards
// against queuing a second one while the first is still in flight).
func (ctx *Context) checkRefresh(peer *PeerState, sess *Session, now time.Time) {
	if sess == nil || !sess.Initiator {
		return
	}

	peer.mu.Lock()
	if sess.Refreshing {
		peer.mu.Unlock()
		return
	}
	wantsRefresh := sess.timeWantsRefresh(now)
	if ctx.Method != nil && ctx.Method.SessionWantRefresh(sess.MethodSession) {
		wantsRefresh = true
	}
	if !wantsRefresh {
		peer.mu.Unlock()
		return
	}
	sess.Refreshing = true
	peer.mu.Unlock()

	start := func() { _ = ctx.StartHandshake(peer, time.Now()) }
	if ctx.Scheduler != nil {
		ctx.Scheduler.ScheduleHandshake(peer, 0, start)
		return
	}
	start()
}

// Send encrypts and transmits a data payload to peer, initiating a
// handshake first if no valid session exists yet. It is the entry
// point the Datapath/TUN external collaborator calls with decrypted
// plaintext it has decided to forward. Grounded on spec.md §4.4's
// send steps 1-4.
func (ctx *Context) Send(peer *PeerState, plaintext []byte) error {
	now := time.Now()

	peer.mu.Lock()
	current := peer.Current
	previous := peer.Previous
	peer.mu.Unlock()

	if !ctx.sessionUsable(current, now) {
		if err := ctx.StartHandshake(peer, now); err != nil {
			return err
		}
		return ErrNoSession
	}

	ctx.checkRefresh(peer, current, now)

	// Until the peer proves (by a successful inbound decrypt under
	// current) that it has switched over, keep sending under previous
	// if we are the one who initiated current and previous is still
	// valid — the peer is only known for certain to still accept
	// previous.
	sess := current
	if current.Initiator && ctx.sessionUsable(previous, now) {
		sess = previous
	}

	if err := ctx.sendOnSession(peer, sess, plaintext); err != nil {
		return err
	}

	if ctx.Scheduler != nil && peer.Config.KeepaliveInterval > 0 {
		ctx.Scheduler.ScheduleKeepalive(peer, peer.Config.KeepaliveInterval, func() {
			_ = ctx.sendConfirmation(peer, sess)
		})
	}
	return nil
}

func (ctx *Context) sendOnSession(peer *PeerState, sess *Session, plaintext []byte) error {
	nonce := sess.Nonces.NextSend()
	ciphertext, err := ctx.Method.Encrypt(sess.MethodSession, nonce, plaintext)
	if err != nil {
		return err
	}

	var hdr [NonceSize]byte = nonce
	frame := make([]byte, 0, 1+len(sess.ID)+len(hdr)+len(ciphertext))
	frame = append(frame, envelopeData)
	frame = append(frame, sess.ID[:]...)
	frame = append(frame, hdr[:]...)
	frame = append(frame, ciphertext...)
	return ctx.Transport.WriteTo(peer, frame)
}

// sendConfirmation sends an empty data frame confirming a freshly
// established session to the peer, consuming a send-nonce slot the
// same way a real payload frame would (see DESIGN.md's Open Question
// resolution on this point).
func (ctx *Context) sendConfirmation(peer *PeerState, sess *Session) error {
	return ctx.sendOnSession(peer, sess, nil)
}

// StartHandshake sends a Request to peer, for a fresh handshake or a
// proactive rekey.
func (ctx *Context) StartHandshake(peer *PeerState, now time.Time) error {
	f, err := buildRequest(ctx, peer, now)
	if err != nil {
		return err
	}
	b, err := f.Marshal()
	if err != nil {
		return err
	}
	return ctx.Transport.WriteTo(peer, envelope(envelopeHandshake, b))
}

// envelope prepends the transport demultiplexing tag to a marshaled
// frame.
func envelope(kind byte, body []byte) []byte {
	out := make([]byte, 0, 1+len(body))
	out = append(out, kind)
	return append(out, body...)
}

// HandleHandshake dispatches an inbound handshake datagram to the
// appropriate stage and sends any reply it produces. Grounded on
// protocol_ec25519_fhmqvc.c's protocol_handshake_handle.
func (ctx *Context) HandleHandshake(raw []byte, addr any) bool {
	f, err := wire.Unmarshal(raw)
	if err != nil {
		ctx.Log.Debugf("handshake: %v", err)
		return false
	}

	senderKey, ok := f.GetFixed(wire.RecordSenderKey, 32)
	if !ok {
		return false
	}
	var key IdentityKey
	copy(key[:], senderKey)

	// A handshake claiming our own identity as its sender is dropped.
	if key == ctx.Identity.Public() {
		return false
	}

	peer, err := ctx.Peers.matchSenderKey(key, addr)
	if err == ErrAddressMismatch {
		// The Transport keeps the address map UpdatePeerAddress writes:
		// a sender address it already maps to this peer also matches.
		if known, ok := ctx.Transport.ResolvePeer(addr); ok && known == peer {
			err = nil
		}
	}
	switch {
	case err == ErrAddressMismatch:
		// Key matches a dynamic or static peer but its address
		// doesn't: trigger re-resolution and drop, per spec.md §4.3/§7
		// kind 5. The address is deliberately NOT updated here — only
		// a successful re-resolution (Transport.UpdatePeerAddress)
		// may move a dynamic/static peer's known address.
		ctx.Transport.ResolveHostname(peer)
		ctx.Log.Debugf("handshake: %v", err)
		return false
	case err != nil:
		if resolved, ok := ctx.Transport.ResolvePeer(addr); ok {
			peer = resolved
		} else {
			ctx.Log.Debugf("handshake: %v", err)
			return false
		}
		ctx.Transport.UpdatePeerAddress(peer, addr)
	default:
		ctx.Transport.UpdatePeerAddress(peer, addr)
	}

	htRaw, ok := f.GetFixed(wire.RecordHandshakeType, 1)
	if !ok {
		return false
	}

	now := time.Now()
	switch htRaw[0] {
	case wire.HandshakeRequest:
		if ctx.HandshakeLimiter != nil && !ctx.HandshakeLimiter.Allow(fmt.Sprint(addr)) {
			ctx.Log.Debugf("handshake: rate limited %v", addr)
			return false
		}
		reply, ok := respondHandshake(ctx, peer, f, now)
		if !ok {
			return false
		}
		b, err := reply.Marshal()
		if err != nil {
			return false
		}
		if err := ctx.Transport.WriteTo(peer, envelope(envelopeHandshake, b)); err != nil {
			return false
		}
		return true

	case wire.HandshakeReply:
		finish, ok := finishHandshake(ctx, peer, f, now)
		if !ok {
			return false
		}
		b, err := finish.Marshal()
		if err != nil {
			return false
		}
		if err := ctx.Transport.WriteTo(peer, envelope(envelopeHandshake, b)); err != nil {
			return false
		}
		peer.mu.Lock()
		sess := peer.Current
		peer.mu.Unlock()
		if sess != nil {
			_ = ctx.sendConfirmation(peer, sess)
		}
		return true

	case wire.HandshakeFinish:
		if !handleFinishHandshake(ctx, peer, f) {
			return false
		}
		// The responder confirms the verified session with an empty
		// data frame.
		peer.mu.Lock()
		sess := peer.Current
		peer.mu.Unlock()
		if sess != nil {
			_ = ctx.sendConfirmation(peer, sess)
		}
		return true

	default:
		return false
	}
}

// HandleInbound is the single entry point a Transport's read loop
// calls with each received datagram: it strips the envelope tag and
// dispatches to the handshake or data path, delivering decrypted data
// frame payloads to OnReceive.
func (ctx *Context) HandleInbound(raw []byte, addr any) bool {
	if len(raw) < 1 {
		return false
	}
	kind, body := raw[0], raw[1:]

	switch kind {
	case envelopeHandshake:
		return ctx.HandleHandshake(body, addr)

	case envelopeData:
		if len(body) < sessionIDSize {
			return false
		}
		var id sessionID
		copy(id[:], body[:sessionIDSize])

		ctx.sessionsMu.Lock()
		peer, ok := ctx.sessions[id]
		ctx.sessionsMu.Unlock()
		if !ok {
			return false
		}

		plaintext, ok := ctx.HandleData(peer, body[sessionIDSize:])
		if !ok {
			return false
		}

		// A successfully authenticated data frame proves the sender
		// controls the session, so it is always safe to (re)learn its
		// source address here — this is what lets a floating peer's
		// address drift mid-session without breaking delivery.
		ctx.Transport.UpdatePeerAddress(peer, addr)

		if ctx.OnReceive != nil {
			ctx.OnReceive(peer, plaintext)
		}
		return true

	default:
		return false
	}
}

// HandleData decrypts an inbound data frame against peer's previous
// session first and then its current one, performing the replay check before and after
// authentication per spec.md §4.5, and returns the plaintext.
func (ctx *Context) HandleData(peer *PeerState, raw []byte) ([]byte, bool) {
	if len(raw) < NonceSize {
		return nil, false
	}
	var nonce Nonce
	copy(nonce[:], raw[:NonceSize])
	ciphertext := raw[NonceSize:]

	peer.mu.Lock()
	sessions := make([]*Session, 0, 2)
	if peer.Previous != nil {
		sessions = append(sessions, peer.Previous)
	}
	if peer.Current != nil {
		sessions = append(sessions, peer.Current)
	}
	cleaned := peer.HandshakesCleaned
	peer.mu.Unlock()

	now := time.Now()
	for _, sess := range sessions {
		if !sess.Nonces.Valid(nonce, now) {
			continue
		}
		plaintext, err := ctx.Method.Decrypt(sess.MethodSession, nonce, ciphertext)
		if err != nil {
			continue
		}
		if !sess.Nonces.ReorderCheck(nonce, now) {
			continue
		}

		peer.mu.Lock()
		isCurrent := peer.Current == sess
		peer.mu.Unlock()

		if isCurrent && !cleaned {
			ctx.onFirstDecryptUnderCurrent(peer, sess)
		}
		ctx.checkRefresh(peer, sess, now)
		return plaintext, true
	}
	return nil, false
}

// onFirstDecryptUnderCurrent implements spec.md §4.4 receive step 3:
// the first successful decrypt under the current session is the proof
// the peer has actually switched over, at which point any
// handshake-in-progress/scheduled-retry state for this peer is
// dropped, the now-superseded previous session is freed, and — if we
// were the one who initiated current — an empty encrypted frame is
// sent so the peer learns of the switch too.
func (ctx *Context) onFirstDecryptUnderCurrent(peer *PeerState, sess *Session) {
	peer.mu.Lock()
	if peer.Current != sess || peer.HandshakesCleaned {
		peer.mu.Unlock()
		return
	}
	peer.Handshake = nil
	peer.HandshakesCleaned = true
	previous := peer.Previous
	peer.Previous = nil
	peer.mu.Unlock()

	if ctx.Scheduler != nil {
		ctx.Scheduler.DeletePeerHandshakes(peer)
	}

	if previous != nil {
		if ctx.Method != nil {
			ctx.Method.SessionFree(previous.MethodSession)
		}
		ctx.sessionsMu.Lock()
		delete(ctx.sessions, previous.ID)
		ctx.sessionsMu.Unlock()
	}

	if sess.Initiator {
		_ = ctx.sendConfirmation(peer, sess)
	}
}

// Maintain runs the periodic per-peer maintenance sweep: rotating the
// handshake-key pool and abandoning handshakes that have been open too
// long. Intended to be called from a Scheduler.Every callback.
func (ctx *Context) Maintain(now time.Time) {
	if err := ctx.Keys.Maintain(now); err != nil {
		ctx.Log.Warnf("handshake key maintenance: %v", err)
	}

	for _, peer := range ctx.Peers.All() {
		peer.mu.Lock()
		if peer.Handshake != nil && now.Sub(peer.Handshake.StartedAt) > HandshakeTimeout {
			peer.Handshake = nil
		}
		peer.mu.Unlock()
	}
}
