/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

import "errors"

// errDrop is the internal sentinel for "malformed or untrusted input,
// drop silently" per spec.md §7 kind 3: handshake and data-path
// functions that can fail this way report success as a bool to their
// caller rather than propagating an error value, logging at Debug and
// returning false. It never crosses a package boundary.
var errDrop = errors.New("protocol: dropped")

// ErrUnknownPeer is returned when a received frame cannot be matched
// to any configured peer (spec.md §7 kind 5: trigger-and-drop).
var ErrUnknownPeer = errors.New("protocol: unknown peer")

// ErrPeerDisabled is returned when an operation is attempted against a
// peer configured with Enabled=false (spec.md §7 kind 2).
var ErrPeerDisabled = errors.New("protocol: peer disabled")

// ErrNoSession is returned by Send for a peer that has no usable
// session; Send has then started a handshake instead of sending.
var ErrNoSession = errors.New("protocol: no established session")

// ErrAddressMismatch is returned by matchSenderKey when a dynamic or
// static peer's sender key matches but its address doesn't (spec.md
// §4.3/§7 kind 5: trigger re-resolution and drop).
var ErrAddressMismatch = errors.New("protocol: sender address mismatch")
