/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

// Method is the bulk AEAD plug-in contract (spec.md §6): everything
// about how data-frame payloads are actually encrypted lives behind
// this interface, so the handshake/session core never depends on a
// specific cipher. internal/method/chachapoly is the reference
// implementation; grounded on device/keypair.go's
// Keypair.send/receive shape, generalized from WireGuard's fixed
// ChaCha20-Poly1305-only pair into a swappable interface.
type Method interface {
	// SessionInit derives whatever per-session state the method needs
	// (e.g. AEAD instances) from the FHMQV-C session secret, given
	// which side initiated the handshake.
	SessionInit(secret [32]byte, initiator bool) (any, error)

	// Encrypt seals a plaintext payload for the given session and
	// send nonce, returning the ciphertext to place after the data
	// frame's nonce header.
	Encrypt(session any, nonce Nonce, plaintext []byte) ([]byte, error)

	// Decrypt opens a ciphertext payload for the given session and
	// received nonce.
	Decrypt(session any, nonce Nonce, ciphertext []byte) ([]byte, error)

	// SessionIsValid reports whether session is still usable at all —
	// false once its send nonce would wrap or it has otherwise
	// exceeded the method's own validity budget (spec.md §3). A
	// session the Method reports invalid for is retired at the next
	// establish() and must never be selected to send on.
	SessionIsValid(session any) bool

	// SessionIsInitiator reports which side of the handshake derived
	// this session, needed to pick the correct nonce parity.
	SessionIsInitiator(session any) bool

	// SessionWantRefresh reports whether the method believes this
	// session's keys are due for a rekey (e.g. approaching a nonce or
	// byte-count limit), independent of the core's time-based rekey
	// policy.
	SessionWantRefresh(session any) bool

	// SessionFree releases any resources/secrets held by session.
	SessionFree(session any)

	// MinEncryptHeadSpace reports how many bytes of header room
	// Encrypt needs reserved before the plaintext it is given.
	MinEncryptHeadSpace() int
}
