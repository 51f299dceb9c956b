// Package sdolog supplies the structured logger shared by the builder,
// analyzer, and diagnostics bag. Log output is fields, not interpolated strings,
// so a host process can filter and aggregate on them.
package sdolog

import "github.com/sirupsen/logrus"

// Discard is a logger that drops everything; it is the default used by any
// component constructed without an explicit logger, so logging is always
// opt-in and never required for correctness.
var Discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}()

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Or returns l if non-nil, otherwise Discard. Every component that accepts
// an optional *logrus.Logger calls this once at construction time.
func Or(l *logrus.Logger) *logrus.Logger {
	if l != nil {
		return l
	}
	return Discard
}
