package timerwheel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAfterFires(t *testing.T) {
	s := New()
	defer s.Close()

	var fired atomic.Bool
	s.After(10*time.Millisecond, func() { fired.Store(true) })

	require.Eventually(t, fired.Load, time.Second, time.Millisecond)
}

func TestEveryFiresRepeatedly(t *testing.T) {
	s := New()
	defer s.Close()

	var count atomic.Int32
	cancel := s.Every(5*time.Millisecond, func() { count.Add(1) })
	defer cancel()

	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestCloseCancelsOutstandingTimers(t *testing.T) {
	s := New()
	var fired atomic.Bool
	s.After(20*time.Millisecond, func() { fired.Store(true) })
	s.Close()

	time.Sleep(40 * time.Millisecond)
	require.False(t, fired.Load())
}
