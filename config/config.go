// Package config loads node settings from TOML files.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml/v2"
	"github.com/soypat/cyphal-node/canard"
	"github.com/soypat/cyphal-node/dsdl"
	"github.com/soypat/cyphal-node/node"
)

var ErrInvalid = errors.New("config: invalid value")

// Port is a named subject or service register. Its index in Config.Ports is
// the register index handlers bind to.
type Port struct {
	Name string `toml:"name"`
	ID   uint16 `toml:"id"`
}

// Config is the validated node configuration.
type Config struct {
	NodeID            canard.NodeID
	Name              string
	MTU               int
	TxCapacity        int
	HeartbeatInterval time.Duration
	TIDTimeout        time.Duration
	HardwareVersion   dsdl.Version
	SoftwareVersion   dsdl.Version
	VCSRevision       uint64
	UniqueID          [16]byte
	Ports             []Port
}

type fileConfig struct {
	NodeID            *int   `toml:"node_id,omitempty"`
	Name              string `toml:"name"`
	MTU               int    `toml:"mtu"`
	TxCapacity        int    `toml:"tx_capacity"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	TIDTimeout        string `toml:"tid_timeout"`
	HardwareVersion   string `toml:"hardware_version"`
	SoftwareVersion   string `toml:"software_version"`
	VCSRevision       string `toml:"vcs_revision"`
	UniqueID          string `toml:"unique_id"`
	Ports             []Port `toml:"port,omitempty"`
}

// Default returns the configuration of an anonymous classic-CAN node.
func Default() Config {
	return Config{
		NodeID:            canard.NodeIDUnset,
		Name:              "org.opencyphal.node",
		MTU:               canard.MTU_CAN_CLASSIC,
		TxCapacity:        node.DefaultTxCapacity,
		HeartbeatInterval: time.Second,
		TIDTimeout:        2 * time.Second,
		SoftwareVersion:   dsdl.Version{Major: 1},
	}
}

// Load reads path and overlays the keys it defines on Default.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load node config: %w", err)
	}
	cfg, err := apply(Default(), &raw, meta)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode is Load for configuration already in memory.
func Decode(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("decode node config: %w", err)
	}
	return apply(Default(), &raw, meta)
}

func apply(cfg Config, raw *fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}
	if meta.IsDefined("node_id") && raw.NodeID != nil {
		id := *raw.NodeID
		if id < 0 || id > canard.NODE_ID_MAX {
			return Config{}, fmt.Errorf("%w: node_id %d out of range 0..%d", ErrInvalid, id, canard.NODE_ID_MAX)
		}
		cfg.NodeID = canard.NodeID(id)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}

	if meta.IsDefined("mtu") {
		cfg.MTU = raw.MTU
	}

	if meta.IsDefined("tx_capacity") {
		cfg.TxCapacity = raw.TxCapacity
	}

	if meta.IsDefined("heartbeat_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HeartbeatInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse heartbeat_interval: %w", err)
		}
		cfg.HeartbeatInterval = d
	}

	if meta.IsDefined("tid_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.TIDTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse tid_timeout: %w", err)
		}
		cfg.TIDTimeout = d
	}

	if meta.IsDefined("hardware_version") {
		v, err := parseVersion(raw.HardwareVersion)
		if err != nil {
			return Config{}, fmt.Errorf("parse hardware_version: %w", err)
		}
		cfg.HardwareVersion = v
	}

	if meta.IsDefined("software_version") {
		v, err := parseVersion(raw.SoftwareVersion)
		if err != nil {
			return Config{}, fmt.Errorf("parse software_version: %w", err)
		}
		cfg.SoftwareVersion = v
	}

	if meta.IsDefined("vcs_revision") {
		rev, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw.VCSRevision), "0x"), 16, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse vcs_revision: %w", err)
		}
		cfg.VCSRevision = rev
	}

	if meta.IsDefined("unique_id") {
		b, err := hex.DecodeString(strings.TrimSpace(raw.UniqueID))
		if err != nil {
			return Config{}, fmt.Errorf("parse unique_id: %w", err)
		}
		if len(b) != len(cfg.UniqueID) {
			return Config{}, fmt.Errorf("%w: unique_id must be %d bytes, got %d", ErrInvalid, len(cfg.UniqueID), len(b))
		}
		copy(cfg.UniqueID[:], b)
	}

	if meta.IsDefined("port") {
		cfg.Ports = normalizePorts(raw.Ports)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and the uniqueness of port names.
func (c *Config) Validate() error {
	switch {
	case !c.NodeID.IsValid():
		return fmt.Errorf("%w: node_id %d", ErrInvalid, c.NodeID)
	case c.Name == "" || len(c.Name) > dsdl.GetInfoNameCapacity:
		return fmt.Errorf("%w: name must be 1..%d bytes", ErrInvalid, dsdl.GetInfoNameCapacity)
	case c.MTU != canard.MTU_CAN_CLASSIC && c.MTU != canard.MTU_CAN_FD:
		return fmt.Errorf("%w: mtu %d, want %d or %d", ErrInvalid, c.MTU, canard.MTU_CAN_CLASSIC, canard.MTU_CAN_FD)
	case c.TxCapacity <= 0:
		return fmt.Errorf("%w: tx_capacity %d", ErrInvalid, c.TxCapacity)
	case c.HeartbeatInterval <= 0 || c.HeartbeatInterval > dsdl.HeartbeatMaxPublicationPeriod*time.Second:
		return fmt.Errorf("%w: heartbeat_interval %s, want (0, %ds]", ErrInvalid, c.HeartbeatInterval, dsdl.HeartbeatMaxPublicationPeriod)
	case c.TIDTimeout <= 0:
		return fmt.Errorf("%w: tid_timeout %s", ErrInvalid, c.TIDTimeout)
	case len(c.Ports) > 0xff:
		return fmt.Errorf("%w: %d ports exceed register index range", ErrInvalid, len(c.Ports))
	}
	seen := make(map[string]struct{}, len(c.Ports))
	for i, p := range c.Ports {
		if p.Name == "" {
			return fmt.Errorf("%w: port %d has no name", ErrInvalid, i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: duplicate port %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.ID > canard.SUBJECT_ID_MAX {
			return fmt.Errorf("%w: port %q id %d", ErrInvalid, p.Name, p.ID)
		}
	}
	return nil
}

// ResolvePort returns the identifier held by port register idx.
func (c *Config) ResolvePort(idx uint8) (canard.PortID, bool) {
	if int(idx) >= len(c.Ports) {
		return canard.PortIDUnset, false
	}
	return canard.PortID(c.Ports[idx].ID), true
}

// PortIndex returns the register index of the named port.
func (c *Config) PortIndex(name string) (uint8, bool) {
	for i, p := range c.Ports {
		if p.Name == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// Info returns the GetInfo response describing this node.
func (c *Config) Info() dsdl.GetInfoResponse {
	return dsdl.GetInfoResponse{
		ProtocolVersion:       dsdl.Version{Major: 1},
		HardwareVersion:       c.HardwareVersion,
		SoftwareVersion:       c.SoftwareVersion,
		SoftwareVCSRevisionID: c.VCSRevision,
		UniqueID:              c.UniqueID,
		Name:                  c.Name,
	}
}

// NodeConfig converts c into the parameters of node.New.
func (c *Config) NodeConfig() node.Config {
	return node.Config{
		NodeID:          c.NodeID,
		MTU:             c.MTU,
		TxCapacity:      c.TxCapacity,
		HeartbeatPeriod: canard.Microsecond(c.HeartbeatInterval.Microseconds()),
		TIDTimeout:      canard.Microsecond(c.TIDTimeout.Microseconds()),
		Info:            c.Info(),
	}
}

// Encode writes c in the file format read by Load.
func (c *Config) Encode(w io.Writer) error {
	raw := fileConfig{
		Name:              c.Name,
		MTU:               c.MTU,
		TxCapacity:        c.TxCapacity,
		HeartbeatInterval: c.HeartbeatInterval.String(),
		TIDTimeout:        c.TIDTimeout.String(),
		HardwareVersion:   formatVersion(c.HardwareVersion),
		SoftwareVersion:   formatVersion(c.SoftwareVersion),
		VCSRevision:       strconv.FormatUint(c.VCSRevision, 16),
		UniqueID:          hex.EncodeToString(c.UniqueID[:]),
		Ports:             c.Ports,
	}
	if c.NodeID.IsSet() {
		id := int(c.NodeID)
		raw.NodeID = &id
	}
	enc := gotoml.NewEncoder(w)
	enc.SetIndentTables(true)
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("encode node config: %w", err)
	}
	return nil
}

func parseVersion(raw string) (dsdl.Version, error) {
	major, minor, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok {
		minor = "0"
	}
	maj, err := strconv.ParseUint(major, 10, 8)
	if err != nil {
		return dsdl.Version{}, err
	}
	mnr, err := strconv.ParseUint(minor, 10, 8)
	if err != nil {
		return dsdl.Version{}, err
	}
	return dsdl.Version{Major: uint8(maj), Minor: uint8(mnr)}, nil
}

func formatVersion(v dsdl.Version) string {
	return strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor))
}

func normalizePorts(in []Port) []Port {
	if len(in) == 0 {
		return nil
	}
	out := make([]Port, 0, len(in))
	for _, p := range in {
		p.Name = strings.TrimSpace(p.Name)
		out = append(out, p)
	}
	return out
}
