package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{" DEBUG ", zerolog.DebugLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "1")
	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	assert.Equal(t, Config{Level: zerolog.ErrorLevel, Timestamp: false, NoColor: true}, cfg)

	t.Setenv(EnvLogNoColor, "maybe")
	cfg = defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	assert.False(t, cfg.NoColor)
}

func TestNewWritesConsole(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "test", Config{Level: zerolog.InfoLevel, NoColor: true})
	l.Debug().Msg("hidden")
	l.Info().Uint8("node_id", 42).Msg("heartbeat published")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "heartbeat published")
	assert.Contains(t, out, "node_id=42")
	assert.Contains(t, out, "app=test")
}
