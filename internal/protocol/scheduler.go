/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

import "time"

// Scheduler is the external collaborator responsible for per-peer
// delayed tasks — rekey handshakes and keepalive retransmission — plus
// their cancellation, without the core depending on a specific timer
// implementation (spec.md §6's schedule_handshake/delete_peer_handshakes/
// schedule_keepalive/delete_peer_keepalives contract).
// internal/scheduler/timerwheel is the reference time.AfterFunc-based
// implementation, grounded on the teacher's timers.go idiom; it also
// exposes a concrete Every/Close pair cmd/fastd uses directly for the
// periodic maintenance sweep, which is not part of this interface since
// it isn't a per-peer task.
type Scheduler interface {
	// ScheduleHandshake arranges for fn to run once after delay,
	// replacing any handshake task already scheduled for peer.
	ScheduleHandshake(peer *PeerState, delay time.Duration, fn func())

	// DeletePeerHandshakes cancels any handshake task scheduled for
	// peer.
	DeletePeerHandshakes(peer *PeerState)

	// ScheduleKeepalive arranges for fn to run once after delay,
	// replacing any keepalive task already scheduled for peer.
	ScheduleKeepalive(peer *PeerState, delay time.Duration, fn func())

	// DeletePeerKeepalives cancels any keepalive task scheduled for
	// peer.
	DeletePeerKeepalives(peer *PeerState)
}
