/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

// Package timerwheel is the reference protocol.Scheduler
// implementation: every per-peer task is just a time.AfterFunc under
// the hood, tracked per peer so a fresh handshake/keepalive task
// replaces (rather than piles up alongside) whatever was scheduled
// before it. Grounded on the teacher's own timers.go, which builds
// WireGuard's entire keepalive/rekey timer set the same way rather
// than reaching for a dedicated timer-wheel library.
package timerwheel

import (
	"sync"
	"time"

	"github.com/blocktrron/fastd-go/internal/protocol"
)

// Scheduler implements protocol.Scheduler with stdlib timers, plus a
// concrete Every/Close pair for the periodic maintenance sweep, which
// cmd/fastd drives directly against the concrete type rather than
// through protocol.Scheduler.
type Scheduler struct {
	mu      sync.Mutex
	closed  bool
	cancels []func()

	handshakes map[*protocol.PeerState]func()
	keepalives map[*protocol.PeerState]func()
}

// New returns a ready-to-use Scheduler.
func New() *Scheduler {
	return &Scheduler{
		handshakes: make(map[*protocol.PeerState]func()),
		keepalives: make(map[*protocol.PeerState]func()),
	}
}

// ScheduleHandshake arranges for fn to run once after delay, canceling
// any handshake task already scheduled for peer first.
func (s *Scheduler) ScheduleHandshake(peer *protocol.PeerState, delay time.Duration, fn func()) {
	s.scheduleTask(s.handshakes, peer, delay, fn)
}

// DeletePeerHandshakes cancels any handshake task scheduled for peer.
func (s *Scheduler) DeletePeerHandshakes(peer *protocol.PeerState) {
	s.cancelTask(s.handshakes, peer)
}

// ScheduleKeepalive arranges for fn to run once after delay, canceling
// any keepalive task already scheduled for peer first.
func (s *Scheduler) ScheduleKeepalive(peer *protocol.PeerState, delay time.Duration, fn func()) {
	s.scheduleTask(s.keepalives, peer, delay, fn)
}

// DeletePeerKeepalives cancels any keepalive task scheduled for peer.
func (s *Scheduler) DeletePeerKeepalives(peer *protocol.PeerState) {
	s.cancelTask(s.keepalives, peer)
}

func (s *Scheduler) scheduleTask(tasks map[*protocol.PeerState]func(), peer *protocol.PeerState, delay time.Duration, fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if cancel, ok := tasks[peer]; ok {
		cancel()
	}
	delete(tasks, peer)
	s.mu.Unlock()

	t := time.AfterFunc(delay, fn)
	cancel := func() { t.Stop() }

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	tasks[peer] = cancel
	s.mu.Unlock()
}

func (s *Scheduler) cancelTask(tasks map[*protocol.PeerState]func(), peer *protocol.PeerState) {
	s.mu.Lock()
	cancel, ok := tasks[peer]
	delete(tasks, peer)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Every schedules fn to run repeatedly every d, starting after the
// first interval elapses (never immediately), matching time.Ticker
// semantics. Not part of protocol.Scheduler: it backs cmd/fastd's
// maintenance sweep, which holds this concrete type directly rather
// than reaching for it through the per-peer interface.
func (s *Scheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
	s.track(cancel)
	return cancel
}

// After runs fn once after d. The returned function cancels it if it
// has not fired yet; Close cancels it too.
func (s *Scheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	cancel := func() { t.Stop() }
	s.track(cancel)
	return cancel
}

func (s *Scheduler) track(cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cancel()
		return
	}
	s.cancels = append(s.cancels, cancel)
}

// Close cancels every outstanding timer and ticker, for clean shutdown.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	for _, cancel := range s.handshakes {
		cancels = append(cancels, cancel)
	}
	for _, cancel := range s.keepalives {
		cancels = append(cancels, cancel)
	}
	s.handshakes = make(map[*protocol.PeerState]func())
	s.keepalives = make(map[*protocol.PeerState]func())
	s.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

var _ protocol.Scheduler = (*Scheduler)(nil)
