package dsdl

import "strconv"

// uavcan.node.Heartbeat.1.0
const (
	HeartbeatSubjectID = 7509
	HeartbeatExtent    = 12
	HeartbeatSize      = 7

	// HeartbeatMaxPublicationPeriod is the maximum publication period in seconds.
	HeartbeatMaxPublicationPeriod = 1
	// HeartbeatOfflineTimeout is how long in seconds a node may stay silent
	// before it is considered offline.
	HeartbeatOfflineTimeout = 3
)

// Health is uavcan.node.Health.1.0.
type Health uint8

const (
	HealthNominal Health = iota
	HealthAdvisory
	HealthCaution
	HealthWarning
)

func (h Health) String() string {
	switch h {
	case HealthNominal:
		return "nominal"
	case HealthAdvisory:
		return "advisory"
	case HealthCaution:
		return "caution"
	case HealthWarning:
		return "warning"
	}
	return "health(" + strconv.Itoa(int(h)) + ")"
}

// Mode is uavcan.node.Mode.1.0.
type Mode uint8

const (
	ModeOperational Mode = iota
	ModeInitialization
	ModeMaintenance
	ModeSoftwareUpdate
)

func (m Mode) String() string {
	switch m {
	case ModeOperational:
		return "operational"
	case ModeInitialization:
		return "initialization"
	case ModeMaintenance:
		return "maintenance"
	case ModeSoftwareUpdate:
		return "software_update"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// Heartbeat is uavcan.node.Heartbeat.1.0.
type Heartbeat struct {
	Uptime                   uint32 // seconds
	Health                   Health
	Mode                     Mode
	VendorSpecificStatusCode uint8
}

// MarshalTo serializes h into buf and returns the number of bytes written.
func (h *Heartbeat) MarshalTo(buf []byte) (int, error) {
	w := writer{buf: buf}
	w.u32(h.Uptime)
	w.u8(uint8(h.Health) & 0b11)
	w.u8(uint8(h.Mode) & 0b111)
	w.u8(h.VendorSpecificStatusCode)
	return w.result()
}

// Unmarshal deserializes h from buf.
func (h *Heartbeat) Unmarshal(buf []byte) error {
	r := reader{buf: buf}
	h.Uptime = r.u32()
	h.Health = Health(r.u8() & 0b11)
	h.Mode = Mode(r.u8() & 0b111)
	h.VendorSpecificStatusCode = r.u8()
	return nil
}
