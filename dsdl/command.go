package dsdl

import "strconv"

// uavcan.node.ExecuteCommand.1.1
const (
	ExecuteCommandServiceID         = 435
	ExecuteCommandRequestExtent     = 300
	ExecuteCommandResponseExtent    = 48
	ExecuteCommandResponseSize      = 1
	ExecuteCommandParameterCapacity = 255
)

// Standard command codes. Codes below 65280 are vendor-specific.
const (
	CommandRestart               uint16 = 65535
	CommandPowerOff              uint16 = 65534
	CommandBeginSoftwareUpdate   uint16 = 65533
	CommandFactoryReset          uint16 = 65532
	CommandEmergencyStop         uint16 = 65531
	CommandStorePersistentStates uint16 = 65530
)

// CommandStatus is the status field of the ExecuteCommand response.
type CommandStatus uint8

const (
	StatusSuccess CommandStatus = iota
	StatusFailure
	StatusNotAuthorized
	StatusBadCommand
	StatusBadParameter
	StatusBadState
	StatusInternalError
)

func (s CommandStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusNotAuthorized:
		return "not_authorized"
	case StatusBadCommand:
		return "bad_command"
	case StatusBadParameter:
		return "bad_parameter"
	case StatusBadState:
		return "bad_state"
	case StatusInternalError:
		return "internal_error"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// ExecuteCommandRequest is the request of uavcan.node.ExecuteCommand.1.1.
type ExecuteCommandRequest struct {
	Command   uint16
	Parameter []byte
}

func (r *ExecuteCommandRequest) MarshalTo(buf []byte) (int, error) {
	w := writer{buf: buf}
	w.u16(r.Command)
	w.bytes(r.Parameter, ExecuteCommandParameterCapacity)
	return w.result()
}

func (r *ExecuteCommandRequest) Unmarshal(buf []byte) error {
	rd := reader{buf: buf}
	r.Command = rd.u16()
	var err error
	r.Parameter, err = rd.bytes(ExecuteCommandParameterCapacity)
	return err
}

// ExecuteCommandResponse is the response of uavcan.node.ExecuteCommand.1.1.
type ExecuteCommandResponse struct {
	Status CommandStatus
}

func (r *ExecuteCommandResponse) MarshalTo(buf []byte) (int, error) {
	w := writer{buf: buf}
	w.u8(uint8(r.Status))
	return w.result()
}

func (r *ExecuteCommandResponse) Unmarshal(buf []byte) error {
	rd := reader{buf: buf}
	r.Status = CommandStatus(rd.u8())
	return nil
}
