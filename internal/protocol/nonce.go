/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

import "time"

// NonceSize is the width in bytes of the little-endian send/receive
// counters carried in every data frame header.
const NonceSize = 6

// defaultReorderWindow is the out-of-order acceptance bitmap width used
// when a peer's configured reorder_count is zero (i.e. unset): a
// received counter up to this many steps behind the highest seen
// counter is still accepted (and recorded), anything older is stale.
// Spec.md §6 caps the configurable value at 63; this default matches
// the package's historical fixed window.
const defaultReorderWindow = 64

// Nonce is a 6-byte little-endian counter. Bit 0 of the counter
// encodes the role that incremented it: even values belong to the
// session's initiator-numbered stream, odd to the responder-numbered
// stream, so the two directions can never collide on the same wire
// value: the initiator sends from zero, the responder from one.
type Nonce [NonceSize]byte

// Uint64 returns the counter as an integer for arithmetic.
func (n Nonce) Uint64() uint64 {
	var v uint64
	for i := NonceSize - 1; i >= 0; i-- {
		v = v<<8 | uint64(n[i])
	}
	return v
}

// fromUint64 writes v as a little-endian NonceSize counter.
func fromUint64(v uint64) Nonce {
	var n Nonce
	for i := 0; i < NonceSize; i++ {
		n[i] = byte(v)
		v >>= 8
	}
	return n
}

// NonceState tracks the send counter and the receive replay window for
// one session in one direction pair. It is grounded directly on
// methods/common.c's fastd_method_session_common: send nonce, receive
// nonce, and a reorder bitmap recording which of the reorderWindow
// counters immediately below the highest one seen have already been
// accepted, plus reorderTime-bounded staleness rejection (spec.md §4.5,
// §6's configurable reorder_time/reorder_count).
type NonceState struct {
	// send is the next counter value this side will use to send.
	send uint64

	// reorderWindow is how many counters below the high-water mark are
	// still accepted; zero means defaultReorderWindow.
	reorderWindow uint64

	// reorderTime bounds how long ago the last in-order/new-maximum
	// reception may have been for an older, reordered counter to still
	// be accepted; zero disables the check.
	reorderTime time.Duration

	// receiveSeen is true once at least one packet has been received
	// on this session; the first ReorderCheck sets it and takes that
	// packet's counter as the high-water mark.
	receiveSeen bool

	// receiveHighest is the highest counter value accepted so far.
	receiveHighest uint64

	// receiveLast is when the highest counter was last advanced — the
	// "last in-order reception" spec.md §4.5 measures reorder_time
	// staleness against.
	receiveLast time.Time

	// receiveReorderSeen bit i set means "receiveHighest-1-i has
	// already been accepted".
	receiveReorderSeen uint64
}

// initNonceState sets up the send/receive counters for a freshly
// established session. Only the send counter is seeded: the initiator
// sends even counters starting at 0, the responder odd counters
// starting at 1. The receive state starts empty; the first accepted
// packet sets the high-water mark. window and reorderTime come from the
// peer's configured reorder_count/reorder_time (spec.md §6); a zero
// window falls back to defaultReorderWindow.
func initNonceState(initiator bool, window uint64, reorderTime time.Duration) *NonceState {
	ns := &NonceState{reorderWindow: window, reorderTime: reorderTime}
	if initiator {
		ns.send = 0
	} else {
		// Responder's first sent counter must be odd so it can never
		// collide with an initiator-numbered counter on the wire.
		ns.send = 1
	}
	return ns
}

func (ns *NonceState) window() uint64 {
	if ns.reorderWindow == 0 {
		return defaultReorderWindow
	}
	return ns.reorderWindow
}

// NextSend returns the next send counter and advances it. Every call
// consumes a slot, including for session-confirmation empty frames —
// see DESIGN.md's Open Question resolution on this point.
func (ns *NonceState) NextSend() Nonce {
	v := ns.send
	ns.send += 2
	return fromUint64(v)
}

// Valid performs the pre-authentication replay check: a read-only
// test of whether a received counter could possibly be fresh. It must
// be called, and must pass, before the packet's authentication tag is
// verified; it never mutates state, since an attacker-forged packet
// must not be able to perturb replay bookkeeping before it has been
// authenticated (methods/common.c's fastd_method_is_nonce_valid). A
// reordered/duplicate counter (age >= 0) is additionally rejected if
// the last in-order reception was more than reorderTime ago, per
// spec.md §4.5's "Stale reorder" rule.
func (ns *NonceState) Valid(n Nonce, now time.Time) bool {
	v := n.Uint64()

	if !ns.receiveSeen {
		return true
	}
	if v > ns.receiveHighest {
		return true
	}

	if ns.reorderTime > 0 && !ns.receiveLast.IsZero() && now.Sub(ns.receiveLast) > ns.reorderTime {
		return false
	}

	age := ns.receiveHighest - v
	if age == 0 || age > ns.window() {
		return false
	}

	bit := age - 1
	return ns.receiveReorderSeen&(1<<bit) == 0
}

// ReorderCheck performs the post-authentication bookkeeping update:
// having already verified the packet's authentication tag, record its
// counter as seen and report whether it should be accepted (it could
// have raced with another packet between the Valid pre-check and tag
// verification). This mutates state and must only be called once per
// received, authenticated packet.
//
// Grounded on methods/common.c's fastd_method_reorder_check. When a
// packet advances the high-water mark (negative age in the original),
// the original shifts the bitmap and then computes
// `session->receive_reorder_seen |= (1 >> (age+1))` — a right shift of
// a fixed 1, which yields the right bit only for an advance of one, so
// a larger advance does not record the previous highest counter as
// seen. That is fixed here: after the left shift by the advance, bit
// advance-1 (the previous highest counter) is set directly.
func (ns *NonceState) ReorderCheck(n Nonce, now time.Time) bool {
	v := n.Uint64()

	if !ns.receiveSeen {
		ns.receiveSeen = true
		ns.receiveHighest = v
		ns.receiveReorderSeen = 0
		ns.receiveLast = now
		return true
	}

	if v > ns.receiveHighest {
		advance := v - ns.receiveHighest
		window := ns.window()
		if advance >= window {
			ns.receiveReorderSeen = 0
		} else {
			ns.receiveReorderSeen <<= advance
			// The previous highest counter is now `advance` steps
			// behind the new one; record it as seen.
			ns.receiveReorderSeen |= 1 << (advance - 1)
		}
		ns.receiveHighest = v
		ns.receiveLast = now
		return true
	}

	if ns.reorderTime > 0 && !ns.receiveLast.IsZero() && now.Sub(ns.receiveLast) > ns.reorderTime {
		return false
	}

	age := ns.receiveHighest - v
	if age == 0 || age > ns.window() {
		return false
	}

	bit := age - 1
	if ns.receiveReorderSeen&(1<<bit) != 0 {
		return false
	}
	ns.receiveReorderSeen |= 1 << bit
	return true
}
