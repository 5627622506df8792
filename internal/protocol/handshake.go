/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	mathrand "math/rand/v2"
	"time"

	"github.com/blocktrron/fastd-go/internal/curve25519x"
	"github.com/blocktrron/fastd-go/internal/wire"
)

// splayRand draws the refresh-deadline desynchronization jitter
// (spec.md §4.5's refresh_after formula). It deliberately isn't the
// predictable-without-reason math/rand default seed, but doesn't need
// CSPRNG unpredictability either — it is seeded once from crypto/rand
// at process start purely so restart behavior isn't trivially
// predictable, not because the jitter itself needs to resist an
// adversary.
var splayRand = mathrand.New(mathrand.NewPCG(seedWord(), seedWord()))

func seedWord() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("protocol: seeding splay rand: " + err.Error())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// sessionIDSize is the width of a sessionID in bytes.
const sessionIDSize = 4

// sessionID is a per-session lookup tag carried on every data frame so
// the receiving side can find the right peer/session without relying
// on the packet's source address — the mechanism that lets a floating
// peer's address drift mid-session (spec.md §8's dynamic-address-drift
// case) without breaking delivery. It is derived deterministically
// from the handshake key K rather than exchanged over the wire, so
// both sides compute the identical tag from the same completed
// handshake with no extra protocol round-trip. Grounded on the
// receiver-index idiom in device/keypair.go's Keypair/Keypairs
// (WireGuard's equivalent lookup tag, there negotiated instead of
// derived).
type sessionID [sessionIDSize]byte

var sessionIDTag = []byte{0x04}

func deriveSessionID(handshakeKey [32]byte) sessionID {
	digest := sha256.Sum256(append(append([]byte{}, handshakeKey[:]...), sessionIDTag...))
	var id sessionID
	copy(id[:], digest[:4])
	return id
}

// Domain-separation suffixes distinguishing the handshake key and the
// session secret derived from the same FHMQV-C shared point, so that
// confirmation-tag material (K) can never be mistaken for bulk-cipher
// key material (S) even though both are SHA-256 outputs over the same
// transcript. Grounded on protocol_ec25519_fhmqvc.c deriving both a
// handshake key and a session secret from one shared-secret
// computation; the original reuses a single digest context in a
// specific byte order, reproduced here as explicit domain tags since
// Go's hash.Hash doesn't let us replay a half-finalized digest. (The
// confirmation tag T is not one of these SHA-256 transcript digests —
// it is an HMAC keyed by K; see confirmationTag in util.go.)
var (
	handshakeKeyTag  = []byte{0x01}
	sessionSecretTag = []byte{0x02}
)

// transcriptDigest hashes X||Y||A||B||sigma||tag, the shared input to
// every value FHMQV-C derives from a completed Diffie-Hellman
// exchange.
func transcriptDigest(x, y, a, b, sigma [32]byte, tag []byte) [32]byte {
	h := sha256.New()
	h.Write(x[:])
	h.Write(y[:])
	h.Write(a[:])
	h.Write(b[:])
	h.Write(sigma[:])
	h.Write(tag)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// combinationScalars derives the FHMQV-C d and e values from the
// handshake transcript: the low and high halves of SHA-256(X‖Y‖A‖B),
// each forced non-zero by setting the top bit of its last byte.
// Grounded on protocol_ec25519_fhmqvc.c's computation of d and e in
// respond_handshake/finish_handshake.
func combinationScalars(x, y, a, b [32]byte) (d, e *curve25519x.Scalar, err error) {
	h := sha256.New()
	h.Write(x[:])
	h.Write(y[:])
	h.Write(a[:])
	h.Write(b[:])
	digest := h.Sum(nil)

	d, err = curve25519x.ScalarFromHalfHash(digest[:16])
	if err != nil {
		return nil, nil, err
	}
	e, err = curve25519x.ScalarFromHalfHash(digest[16:])
	if err != nil {
		return nil, nil, err
	}
	return d, e, nil
}

// sharedSecret computes σ for one side of the exchange: ownSecret is
// this side's (ephemeral-secret + combinationScalar*identity-secret);
// peerSum is (peer-ephemeral-point + peerCombinationScalar*peer-identity-point).
// The caller picks which of d/e is "own" vs "peer" depending on role —
// see buildSigmaInitiator/buildSigmaResponder below.
func sharedSecret(ownSecret *curve25519x.Scalar, peerSum *curve25519x.Point) (out [32]byte, bad bool) {
	sigma := peerSum.ScalarMul(ownSecret)
	if sigma.IsIdentity() {
		return out, true
	}
	return sigma.Bytes(), false
}

// buildSigmaInitiator computes σ as the initiator (A), given its own
// ephemeral secret x and identity secret a, the peer's (responder)
// ephemeral and identity public keys Y/B, and the combination scalars
// d (own) and e (peer's).
func buildSigmaInitiator(x, a *curve25519x.Scalar, yPub, bPub IdentityKey, d, e *curve25519x.Scalar) (out [32]byte, bad bool, err error) {
	ownScalar := x.Add(a.Multiply(d))

	yPoint, err := curve25519x.PointFromBytes(yPub[:])
	if err != nil {
		return out, false, err
	}
	bPoint, err := curve25519x.PointFromBytes(bPub[:])
	if err != nil {
		return out, false, err
	}
	peerSum := yPoint.Add(bPoint.ScalarMul(e))

	out, bad = sharedSecret(ownScalar, peerSum)
	return out, bad, nil
}

// buildSigmaResponder computes σ as the responder (B), given its own
// ephemeral secret y and identity secret b, the peer's (initiator)
// ephemeral and identity public keys X/A, and the combination scalars
// e (own) and d (peer's).
func buildSigmaResponder(y, b *curve25519x.Scalar, xPub, aPub IdentityKey, e, d *curve25519x.Scalar) (out [32]byte, bad bool, err error) {
	ownScalar := y.Add(b.Multiply(e))

	xPoint, err := curve25519x.PointFromBytes(xPub[:])
	if err != nil {
		return out, false, err
	}
	aPoint, err := curve25519x.PointFromBytes(aPub[:])
	if err != nil {
		return out, false, err
	}
	peerSum := xPoint.Add(aPoint.ScalarMul(d))

	out, bad = sharedSecret(ownScalar, peerSum)
	return out, bad, nil
}

// buildRequest builds the first handshake message (initiator -> peer):
// our identity key, our fresh/current handshake key, and the peer's
// identity key if already known. Grounded on
// protocol_ec25519_fhmqvc.c's protocol_handshake_init.
func buildRequest(ctx *Context, peer *PeerState, now time.Time) (wire.Frame, error) {
	hk := ctx.Keys.Current()

	peer.mu.Lock()
	peer.Handshake = &HandshakeState{
		Initiator:       true,
		OurHandshakeKey: hk,
		StartedAt:       now,
	}
	peer.LastHandshakeRequestSent = now
	peer.mu.Unlock()

	f := wire.Frame{ReqID: 1}
	f.Add(wire.RecordHandshakeType, []byte{wire.HandshakeRequest})
	a := ctx.Identity.Public()
	f.Add(wire.RecordSenderKey, a[:])
	f.Add(wire.RecordSenderHandshakeKey, hk.Public[:])
	f.Add(wire.RecordRecipientKey, peer.Config.Key[:])
	return f, nil
}

// respondHandshake handles an inbound Request and builds the Reply:
// it picks our live handshake key (generating the shared σ, K and S),
// stashes handshake state, and returns the Reply frame to send back.
// Grounded on protocol_ec25519_fhmqvc.c's respond_handshake.
func respondHandshake(ctx *Context, peer *PeerState, req wire.Frame, now time.Time) (wire.Frame, bool) {
	xRaw, ok := req.GetFixed(wire.RecordSenderHandshakeKey, 32)
	if !ok {
		return wire.Frame{}, false
	}
	var x IdentityKey
	copy(x[:], xRaw)

	// A Request naming a recipient key other than our own current
	// identity is either stale or misdirected; drop it rather than
	// answering on behalf of an identity we no longer hold.
	if recipRaw, ok := req.GetFixed(wire.RecordRecipientKey, 32); ok {
		b := ctx.Identity.Public()
		if !constantTimeEqual(recipRaw, b[:]) {
			return wire.Frame{}, false
		}
	}

	hk := ctx.Keys.Current()
	if hk == nil {
		return wire.Frame{}, false
	}

	a := peer.Config.Key // peer's identity is A (initiator)
	b := ctx.Identity.Public()

	d, e, err := combinationScalars([32]byte(x), [32]byte(hk.Public), [32]byte(a), [32]byte(b))
	if err != nil {
		return wire.Frame{}, false
	}

	sigma, bad, err := buildSigmaResponder(hk.Secret, ctx.Identity.scalar, x, a, e, d)
	if err != nil || bad {
		return wire.Frame{}, false
	}

	k := transcriptDigest([32]byte(x), [32]byte(hk.Public), [32]byte(a), [32]byte(b), sigma, handshakeKeyTag)
	s := transcriptDigest([32]byte(x), [32]byte(hk.Public), [32]byte(a), [32]byte(b), sigma, sessionSecretTag)
	t := confirmationTag(k, b, hk.Public)

	// establish clears peer.Handshake, so the responder's handshake
	// state is recorded after it: handleFinishHandshake needs it to
	// verify the initiator's tag.
	establish(ctx, peer, k, s, false, now)

	peer.mu.Lock()
	peer.Handshake = &HandshakeState{
		Initiator:        false,
		OurHandshakeKey:  hk,
		PeerHandshakeKey: &x,
		StartedAt:        now,
	}
	peer.mu.Unlock()

	f := wire.Frame{ReqID: req.ReqID}
	f.Add(wire.RecordHandshakeType, []byte{wire.HandshakeReply})
	f.Add(wire.RecordSenderKey, b[:])
	f.Add(wire.RecordRecipientKey, a[:])
	f.Add(wire.RecordSenderHandshakeKey, hk.Public[:])
	f.Add(wire.RecordRecipientHandshakeKey, x[:])
	f.Add(wire.RecordT, t[:])

	return f, true
}

// finishHandshake handles an inbound Reply on the initiator side: it
// recomputes σ/K/S, verifies the responder's confirmation tag, and
// builds the Finish message carrying our own confirmation tag.
// Grounded on protocol_ec25519_fhmqvc.c's finish_handshake.
func finishHandshake(ctx *Context, peer *PeerState, reply wire.Frame, now time.Time) (wire.Frame, bool) {
	peer.mu.Lock()
	hs := peer.Handshake
	peer.mu.Unlock()
	if hs == nil || !hs.Initiator {
		return wire.Frame{}, false
	}

	yRaw, ok := reply.GetFixed(wire.RecordSenderHandshakeKey, 32)
	if !ok {
		return wire.Frame{}, false
	}
	var y IdentityKey
	copy(y[:], yRaw)

	// A Reply addressed to an identity other than ours is dropped.
	if recipRaw, ok := reply.GetFixed(wire.RecordRecipientKey, 32); ok {
		own := ctx.Identity.Public()
		if !constantTimeEqual(recipRaw, own[:]) {
			return wire.Frame{}, false
		}
	}

	peerT, ok := reply.GetFixed(wire.RecordT, 32)
	if !ok {
		return wire.Frame{}, false
	}

	// The Reply must echo back the exact handshake key we offered in
	// the Request, and that key must still be one we actually hold
	// live — a stale echo (our handshake key rotated out since we
	// sent the Request) or a mismatched one is dropped rather than
	// trusted.
	echoedRaw, ok := reply.GetFixed(wire.RecordRecipientHandshakeKey, 32)
	if !ok {
		return wire.Frame{}, false
	}
	if !constantTimeEqual(echoedRaw, hs.OurHandshakeKey.Public[:]) {
		return wire.Frame{}, false
	}
	if ctx.Keys.Find(now, hs.OurHandshakeKey.Public) == nil {
		return wire.Frame{}, false
	}

	x := hs.OurHandshakeKey.Public
	a := ctx.Identity.Public()
	b := peer.Config.Key

	d, e, err := combinationScalars([32]byte(x), [32]byte(y), [32]byte(a), [32]byte(b))
	if err != nil {
		return wire.Frame{}, false
	}

	sigma, bad, err := buildSigmaInitiator(hs.OurHandshakeKey.Secret, ctx.Identity.scalar, y, b, d, e)
	if err != nil || bad {
		return wire.Frame{}, false
	}

	k := transcriptDigest([32]byte(x), [32]byte(y), [32]byte(a), [32]byte(b), sigma, handshakeKeyTag)
	s := transcriptDigest([32]byte(x), [32]byte(y), [32]byte(a), [32]byte(b), sigma, sessionSecretTag)

	// T_R was sent by the responder over its own identity/handshake
	// pair (B, Y).
	if !verifyConfirmationTag(k, b, y, peerT) {
		return wire.Frame{}, false
	}

	// T_I is taken over our own (initiator's) identity/handshake pair
	// (A, X), so it can never equal the responder's T_R.
	ourT := confirmationTag(k, a, x)

	f := wire.Frame{ReqID: reply.ReqID}
	f.Add(wire.RecordHandshakeType, []byte{wire.HandshakeFinish})
	f.Add(wire.RecordSenderKey, a[:])
	f.Add(wire.RecordRecipientKey, b[:])
	f.Add(wire.RecordSenderHandshakeKey, x[:])
	f.Add(wire.RecordRecipientHandshakeKey, y[:])
	f.Add(wire.RecordT, ourT[:])

	establish(ctx, peer, k, s, true, now)
	return f, true
}

// handleFinishHandshake handles an inbound Finish on the responder
// side: verifies the initiator's confirmation tag against the session
// already established in respondHandshake. Grounded on
// protocol_ec25519_fhmqvc.c's handle_finish_handshake.
func handleFinishHandshake(ctx *Context, peer *PeerState, finish wire.Frame) bool {
	peer.mu.Lock()
	hs := peer.Handshake
	session := peer.Current
	peer.mu.Unlock()
	if hs == nil || hs.Initiator || session == nil {
		return false
	}

	// A Finish addressed to an identity other than ours is dropped.
	if recipRaw, ok := finish.GetFixed(wire.RecordRecipientKey, 32); ok {
		own := ctx.Identity.Public()
		if !constantTimeEqual(recipRaw, own[:]) {
			return false
		}
	}

	peerT, ok := finish.GetFixed(wire.RecordT, 32)
	if !ok {
		return false
	}

	// The Finish must echo back the exact handshake key we offered in
	// the Reply, still held live — see the matching check in
	// finishHandshake.
	echoedRaw, ok := finish.GetFixed(wire.RecordRecipientHandshakeKey, 32)
	if !ok {
		return false
	}
	if !constantTimeEqual(echoedRaw, hs.OurHandshakeKey.Public[:]) {
		return false
	}
	now := time.Now()
	if ctx.Keys.Find(now, hs.OurHandshakeKey.Public) == nil {
		return false
	}

	x := *hs.PeerHandshakeKey
	y := hs.OurHandshakeKey.Public
	a := peer.Config.Key
	b := ctx.Identity.Public()

	d, e, err := combinationScalars([32]byte(x), [32]byte(y), [32]byte(a), [32]byte(b))
	if err != nil {
		return false
	}
	sigma, bad, err := buildSigmaResponder(hs.OurHandshakeKey.Secret, ctx.Identity.scalar, x, a, e, d)
	if err != nil || bad {
		return false
	}

	k := transcriptDigest([32]byte(x), [32]byte(y), [32]byte(a), [32]byte(b), sigma, handshakeKeyTag)

	// T_I was sent by the initiator over its own identity/handshake
	// pair (A, X).
	if !verifyConfirmationTag(k, a, x, peerT) {
		return false
	}

	peer.mu.Lock()
	peer.Handshake = nil
	peer.mu.Unlock()
	return true
}

// establish installs a freshly derived session secret as the peer's
// new current session, per spec.md §4.2/§4.4 step 1: if the existing
// current session is still valid and the existing previous session is
// not, current is demoted to previous to give the overlap window spec.md
// describes; otherwise current is simply retired in place, since a
// previous session that is still valid must not be clobbered by a
// session that was never trusted enough to carry traffic. Grounded on
// protocol_ec25519_fhmqvc.c's establish().
func establish(ctx *Context, peer *PeerState, handshakeKey, secret [32]byte, initiator bool, now time.Time) {
	id := deriveSessionID(handshakeKey)

	sess := &Session{
		ID:            id,
		HandshakeKey:  handshakeKey,
		Secret:        secret,
		Initiator:     initiator,
		Nonces:        initNonceState(initiator, uint64(peer.Config.ReorderCount), peer.Config.ReorderTime),
		EstablishedAt: now,
	}
	if peer.Config.KeyValid > 0 {
		sess.ValidTill = now.Add(peer.Config.KeyValid)
	}
	if peer.Config.KeyRefresh > 0 {
		splay := time.Duration(0)
		if peer.Config.KeyRefreshSplay > 0 {
			splay = time.Duration(splayRand.Int64N(int64(peer.Config.KeyRefreshSplay)))
		}
		sess.RefreshAfter = now.Add(peer.Config.KeyRefresh - splay)
	}

	if ctx.Method != nil {
		ms, err := ctx.Method.SessionInit(secret, initiator)
		if err != nil {
			// Nothing has been changed yet: the peer keeps its
			// existing sessions.
			return
		}
		sess.MethodSession = ms
	}

	ctx.sessionsMu.Lock()
	ctx.sessions[id] = peer
	ctx.sessionsMu.Unlock()

	sessionValid := func(s *Session) bool {
		return s != nil && (ctx.Method == nil || ctx.Method.SessionIsValid(s.MethodSession))
	}

	peer.mu.Lock()
	if peer.Current != nil {
		currentValid := sessionValid(peer.Current)
		previousValid := sessionValid(peer.Previous)

		if currentValid && !previousValid {
			if peer.Previous != nil {
				if ctx.Method != nil {
					ctx.Method.SessionFree(peer.Previous.MethodSession)
				}
				ctx.sessionsMu.Lock()
				delete(ctx.sessions, peer.Previous.ID)
				ctx.sessionsMu.Unlock()
			}
			peer.Previous = peer.Current
		} else {
			if ctx.Method != nil {
				ctx.Method.SessionFree(peer.Current.MethodSession)
			}
			ctx.sessionsMu.Lock()
			delete(ctx.sessions, peer.Current.ID)
			ctx.sessionsMu.Unlock()
		}
	}
	peer.Current = sess
	peer.Handshake = nil
	peer.HandshakesCleaned = false
	if ctx.Scheduler != nil {
		ctx.Scheduler.DeletePeerHandshakes(peer)
	}
	peer.mu.Unlock()
}
