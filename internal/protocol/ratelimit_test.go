package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blocktrron/fastd-go/internal/ratelimiter"
)

func TestHandshakeLimiterThrottlesFloodedRequests(t *testing.T) {
	ctxA, ctxB, peerOnA, _ := handshakePair(t)

	limiter := ratelimiter.New()
	defer limiter.Close()
	ctxB.HandshakeLimiter = limiter

	accepted := 0
	const attempts = 40
	for i := 0; i < attempts; i++ {
		peerOnA.Handshake = nil
		now := time.Now()
		req, err := buildRequest(ctxA, peerOnA, now)
		require.NoError(t, err)
		raw, err := req.Marshal()
		require.NoError(t, err)

		if ctxB.HandleHandshake(raw, "attacker:1") {
			accepted++
		}
	}

	require.Less(t, accepted, attempts, "a flood of requests from one address must eventually be throttled")
}

func TestHandshakeLimiterAllowsDistinctAddresses(t *testing.T) {
	ctxA, ctxB, peerOnA, _ := handshakePair(t)

	limiter := ratelimiter.New()
	defer limiter.Close()
	ctxB.HandshakeLimiter = limiter

	now := time.Now()
	req, err := buildRequest(ctxA, peerOnA, now)
	require.NoError(t, err)
	raw, err := req.Marshal()
	require.NoError(t, err)

	require.True(t, ctxB.HandleHandshake(raw, "fresh-peer:1"))
}
