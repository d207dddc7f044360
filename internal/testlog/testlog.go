// Package testlog provides loggers that write through testing.TB so output
// is attached to the test that produced it.
package testlog

import (
	"testing"

	"github.com/rs/zerolog"
)

// New returns a debug-level logger bound to t.
func New(t testing.TB) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// Ptr is New for APIs that take *zerolog.Logger.
func Ptr(t testing.TB) *zerolog.Logger {
	l := New(t)
	return &l
}
