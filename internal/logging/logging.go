/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

// Package logging wraps logrus behind the small call-site shape the
// protocol core uses (Debugf/Verbosef/Warnf/Errorf), so handshake and
// session code reads the same way the teacher's device.log.Verbosef
// call sites did, without the core importing logrus directly.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the narrow logging surface the protocol core depends on.
// Protocol-level errors (spec.md §7 kind 3) are always logged at Debug,
// never Warn or above, since they are expected traffic (retransmits,
// stale peers, scans) rather than operational problems.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger writing to stderr with the given level.
func New(level logrus.Level) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{entry: logrus.NewEntry(l)}
}

// NewNop builds a Logger that discards everything, for tests.
func NewNop() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.PanicLevel)
	return &Logger{entry: logrus.NewEntry(l)}
}

// With returns a child logger with an additional field, e.g. the peer
// name, attached to every subsequent line.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debugf(format string, args ...any)   { l.entry.Debugf(format, args...) }
func (l *Logger) Verbosef(format string, args ...any) { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)    { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any)   { l.entry.Errorf(format, args...) }
