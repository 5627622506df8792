/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package protocol

import "time"

// PeerStatus is a point-in-time snapshot of one configured peer, for
// the status subcommand. Grounded on manager/webui.go's PeerInfo, pared
// down to what the protocol core itself actually knows (no
// tx/rx byte counters here — those belong to the Method/Datapath, not
// the handshake/session core).
type PeerStatus struct {
	Name        string
	Key         IdentityKey
	AddressMode AddressMode
	Enabled     bool
	Connected   bool

	Initiator      bool
	EstablishedFor time.Duration

	HandshakePending bool
}

// Status snapshots every configured peer's current session state.
func (ctx *Context) Status() []PeerStatus {
	peers := ctx.Peers.All()
	out := make([]PeerStatus, 0, len(peers))

	now := time.Now()
	for _, p := range peers {
		p.mu.Lock()
		st := PeerStatus{
			Name:             p.Config.Name,
			Key:              p.Config.Key,
			AddressMode:      p.Config.AddressMode,
			Enabled:          p.Config.Enabled,
			HandshakePending: p.Handshake != nil,
		}
		if p.Current != nil {
			st.Connected = true
			st.Initiator = p.Current.Initiator
			st.EstablishedFor = now.Sub(p.Current.EstablishedAt)
		}
		p.mu.Unlock()
		out = append(out, st)
	}
	return out
}
