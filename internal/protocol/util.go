/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// constantTimeEqual compares two byte slices without leaking timing
// information about where they first differ.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// confirmationTag computes T = HMAC-SHA-256(K, identityPub ‖
// handshakePub) — the sender's own identity and ephemeral handshake
// public keys, keyed by the handshake key K. Grounded on
// protocol_ec25519_fhmqvc.c's make_authenticator, per spec.md §4.2's
// authenticator formula.
func confirmationTag(k [32]byte, identityPub, handshakePub IdentityKey) [32]byte {
	mac := hmac.New(sha256.New, k[:])
	mac.Write(identityPub[:])
	mac.Write(handshakePub[:])
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// verifyConfirmationTag checks a received T against the expected one
// in constant time via crypto/hmac's own Equal helper.
func verifyConfirmationTag(k [32]byte, identityPub, handshakePub IdentityKey, got []byte) bool {
	want := confirmationTag(k, identityPub, handshakePub)
	return hmac.Equal(want[:], got)
}
