package config

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/soypat/cyphal-node/canard"
	"github.com/soypat/cyphal-node/dsdl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "node.toml"))
	require.NoError(t, err)

	assert.Equal(t, canard.NodeID(42), cfg.NodeID)
	assert.Equal(t, "org.example.esc", cfg.Name)
	assert.Equal(t, canard.MTU_CAN_FD, cfg.MTU)
	assert.Equal(t, 128, cfg.TxCapacity)
	assert.Equal(t, 500*time.Millisecond, cfg.HeartbeatInterval)
	assert.Equal(t, time.Second, cfg.TIDTimeout)
	assert.Equal(t, dsdl.Version{Major: 2, Minor: 1}, cfg.HardwareVersion)
	assert.Equal(t, dsdl.Version{Major: 0, Minor: 9}, cfg.SoftwareVersion)
	assert.Equal(t, uint64(0xdeadbeef), cfg.VCSRevision)
	assert.Equal(t, [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, cfg.UniqueID)
	require.Len(t, cfg.Ports, 3)

	id, ok := cfg.ResolvePort(1)
	assert.True(t, ok)
	assert.Equal(t, canard.PortID(2101), id)
	_, ok = cfg.ResolvePort(3)
	assert.False(t, ok)

	idx, ok := cfg.PortIndex("register.access")
	assert.True(t, ok)
	assert.Equal(t, uint8(2), idx)
	_, ok = cfg.PortIndex("missing")
	assert.False(t, ok)

	nc := cfg.NodeConfig()
	assert.Equal(t, canard.Microsecond(500_000), nc.HeartbeatPeriod)
	assert.Equal(t, canard.Microsecond(1_000_000), nc.TIDTimeout)
	assert.Equal(t, "org.example.esc", nc.Info.Name)
	assert.Equal(t, dsdl.Version{Major: 1}, nc.Info.ProtocolVersion)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "absent.toml"))
	assert.Error(t, err)
}

func TestDecodeDefaults(t *testing.T) {
	cfg, err := Decode(`name = "org.example.min"`)
	require.NoError(t, err)
	want := Default()
	want.Name = "org.example.min"
	assert.Equal(t, want, cfg)
	assert.True(t, cfg.NodeID.IsUnset())
}

func TestDecodeInvalid(t *testing.T) {
	tests := map[string]string{
		"node id range":    `node_id = 128`,
		"mtu":              `mtu = 16`,
		"tx capacity":      `tx_capacity = 0`,
		"slow heartbeat":   `heartbeat_interval = "2s"`,
		"empty name":       `name = " "`,
		"unique id length": `unique_id = "0011"`,
		"unknown key":      `bitrate = 1000000`,
		"port range":       "[[port]]\nname = \"x\"\nid = 9000",
		"duplicate port":   "[[port]]\nname = \"x\"\nid = 1\n[[port]]\nname = \"x\"\nid = 2",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}

	_, err := Decode(`heartbeat_interval = "soon"`)
	assert.Error(t, err)
	_, err = Decode(`software_version = "one"`)
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "node.toml"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))
	again, err := Decode(buf.String())
	require.NoError(t, err, buf.String())
	assert.Equal(t, cfg, again)
}
