/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

// Package chachapoly is the reference bulk AEAD Method implementation:
// two independent ChaCha20-Poly1305 instances per session, one per
// direction, keyed from the FHMQV-C session secret via HKDF-flavored
// domain separation. Grounded on device/keypair.go's Keypair
// send/receive AEAD pair, generalized from WireGuard's fixed algorithm
// choice into an implementation of the protocol.Method contract.
package chachapoly

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/blocktrron/fastd-go/internal/protocol"
)

var errShortCiphertext = errors.New("chachapoly: ciphertext shorter than overhead")

// rekeyAfterMessages is the send-count threshold at which
// SessionWantRefresh starts reporting true, well short of any real risk
// to the 48-bit nonce space (protocol.NonceSize steps by 2, so roughly
// 2^47 distinct send values are available per session). rejectAfterMessages
// is the hard stop SessionIsValid enforces, 2^26 times the refresh
// threshold and still below that nonce space. The two constants play
// the roles of WireGuard's RekeyAfterMessages and RejectAfterMessages
// (originally read from send.go, since
// deleted from the workspace once its AEAD framing was folded into this
// package — see DESIGN.md).
const (
	rekeyAfterMessages  = 1 << 20
	rejectAfterMessages = 1 << 46
)

// Method implements protocol.Method with ChaCha20-Poly1305.
type Method struct{}

// New returns the reference chachapoly Method.
func New() Method { return Method{} }

type session struct {
	initiator bool
	send      recvFn
	recv      recvFn

	sendCount atomic.Uint64
}

type recvFn struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// deriveDirectionalKeys splits the session secret into two 32-byte
// AEAD keys, one for each direction, via domain-separated SHA-256 —
// the same "hash the shared secret with a direction tag" idiom the
// handshake package uses for K vs S, rather than a full HKDF since a
// single extraction round over a high-entropy 32-byte secret already
// gives each key full independent entropy.
func deriveDirectionalKeys(secret [32]byte) (initiatorToResponder, responderToInitiator [32]byte) {
	h1 := sha256.Sum256(append(append([]byte{}, secret[:]...), 0x10))
	h2 := sha256.Sum256(append(append([]byte{}, secret[:]...), 0x20))
	return h1, h2
}

// SessionInit builds the two AEAD instances for a session, choosing
// which key is ours to send with based on which side of the handshake
// we played.
func (Method) SessionInit(secret [32]byte, initiator bool) (any, error) {
	itr, rti := deriveDirectionalKeys(secret)

	var sendKey, recvKey [32]byte
	if initiator {
		sendKey, recvKey = itr, rti
	} else {
		sendKey, recvKey = rti, itr
	}

	sendAEAD, err := chacha20poly1305.New(sendKey[:])
	if err != nil {
		return nil, fmt.Errorf("chachapoly: send AEAD: %w", err)
	}
	recvAEAD, err := chacha20poly1305.New(recvKey[:])
	if err != nil {
		return nil, fmt.Errorf("chachapoly: recv AEAD: %w", err)
	}

	return &session{
		initiator: initiator,
		send:      recvFn{aead: sendAEAD},
		recv:      recvFn{aead: recvAEAD},
	}, nil
}

func nonceBytes(n protocol.Nonce) []byte {
	var buf [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(buf[:8], n.Uint64())
	return buf[:]
}

// Encrypt seals plaintext under the session's send key.
func (Method) Encrypt(sessionState any, nonce protocol.Nonce, plaintext []byte) ([]byte, error) {
	s := sessionState.(*session)
	s.sendCount.Add(1)
	return s.send.aead.Seal(nil, nonceBytes(nonce), plaintext, nil), nil
}

// Decrypt opens ciphertext under the session's receive key.
func (Method) Decrypt(sessionState any, nonce protocol.Nonce, ciphertext []byte) ([]byte, error) {
	s := sessionState.(*session)
	if len(ciphertext) < chacha20poly1305.Overhead {
		return nil, errShortCiphertext
	}
	return s.recv.aead.Open(nil, nonceBytes(nonce), ciphertext, nil)
}

// SessionIsInitiator reports which side derived this session.
func (Method) SessionIsInitiator(sessionState any) bool {
	return sessionState.(*session).initiator
}

// SessionIsValid reports whether session has sent fewer than
// rejectAfterMessages payloads. A session that has wrapped this budget
// must never be selected to send under again; establish() retires it
// on the next handshake rather than keeping it as previous.
func (Method) SessionIsValid(sessionState any) bool {
	s := sessionState.(*session)
	return s.sendCount.Load() < rejectAfterMessages
}

// SessionWantRefresh reports true once session has sent at least
// rekeyAfterMessages payloads, signaling that a proactive rekey is due
// well before SessionIsValid would start rejecting it.
func (Method) SessionWantRefresh(sessionState any) bool {
	s := sessionState.(*session)
	return s.sendCount.Load() >= rekeyAfterMessages
}

// SessionFree is a no-op: Go's garbage collector reclaims the AEAD
// state once the Session holding it is dropped, and chacha20poly1305
// keeps no secret state outside the struct itself to scrub explicitly.
func (Method) SessionFree(sessionState any) {}

// MinEncryptHeadSpace reports 0: the AEAD tag is appended after the
// plaintext, so this method needs no reserved header room of its own.
func (Method) MinEncryptHeadSpace() int { return 0 }

var _ protocol.Method = Method{}
