package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewAndWithDoNotPanic(t *testing.T) {
	l := New(logrus.DebugLevel)
	l.Debugf("debug %d", 1)
	l.Verbosef("verbose %s", "ok")
	l.Warnf("warn")
	l.Errorf("error")

	child := l.With("peer", "office")
	child.Debugf("scoped")
}

func TestNop(t *testing.T) {
	NewNop().Errorf("should not print")
}
