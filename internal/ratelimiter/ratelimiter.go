/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

// Package ratelimiter is a per-source token bucket, adapted from
// wireguard-go's own handshake ratelimiter to guard fastd-go's handshake
// Request path against a flood of forged senders: unlike WireGuard,
// which keys its bucket on the sender's IP address, this one keys on
// whatever opaque string the Transport layer hands the protocol core,
// so it works unmodified over loopback's string addresses or a real
// UDP socket's "host:port" form alike.
package ratelimiter

import (
	"sync"
	"time"
)

const (
	packetsPerSecond   = 20
	packetsBurstable   = 5
	garbageCollectTime = time.Second
	packetCost         = int64(time.Second) / packetsPerSecond
	maxTokens          = packetCost * packetsBurstable
)

type entry struct {
	mu       sync.Mutex
	lastTime time.Time
	tokens   int64
}

// Limiter is a token bucket per source key, with a background sweep
// that evicts entries that have gone quiet.
type Limiter struct {
	mu      sync.RWMutex
	timeNow func() time.Time

	stopReset chan struct{}
	table     map[string]*entry
}

// New creates and starts a Limiter. Call Close when done.
func New() *Limiter {
	l := &Limiter{timeNow: time.Now, table: make(map[string]*entry)}
	l.stopReset = make(chan struct{})

	stopReset := l.stopReset
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case _, ok := <-stopReset:
				if !ok {
					return
				}
			case <-ticker.C:
				l.cleanup()
			}
		}
	}()

	return l
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopReset != nil {
		close(l.stopReset)
		l.stopReset = nil
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.table {
		e.mu.Lock()
		stale := l.timeNow().Sub(e.lastTime) > garbageCollectTime
		e.mu.Unlock()
		if stale {
			delete(l.table, key)
		}
	}
}

// Allow reports whether a packet from key may proceed, consuming one
// token from its bucket if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.RLock()
	e, ok := l.table[key]
	l.mu.RUnlock()

	if !ok {
		e = &entry{tokens: maxTokens - packetCost, lastTime: l.timeNow()}
		l.mu.Lock()
		l.table[key] = e
		l.mu.Unlock()
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := l.timeNow()
	e.tokens += now.Sub(e.lastTime).Nanoseconds()
	e.lastTime = now
	if e.tokens > maxTokens {
		e.tokens = maxTokens
	}
	if e.tokens > packetCost {
		e.tokens -= packetCost
		return true
	}
	return false
}
