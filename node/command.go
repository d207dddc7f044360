package node

import (
	"github.com/soypat/cyphal-node/canard"
	"github.com/soypat/cyphal-node/dsdl"
)

// CommandExecutor performs node-local actions requested over the bus.
// Long-running work must be started and tracked elsewhere; ExecuteCommand
// only reports whether the action was accepted.
type CommandExecutor interface {
	ExecuteCommand(command uint16, parameter []byte) dsdl.CommandStatus
}

// CommandFunc adapts a function to CommandExecutor.
type CommandFunc func(command uint16, parameter []byte) dsdl.CommandStatus

func (f CommandFunc) ExecuteCommand(command uint16, parameter []byte) dsdl.CommandStatus {
	return f(command, parameter)
}

// CommandMux dispatches commands by code. Unknown codes yield StatusBadCommand.
// Handlers are added at start-of-day; lookups do not allocate.
type CommandMux struct {
	handlers map[uint16]CommandFunc
}

func NewCommandMux() *CommandMux {
	return &CommandMux{handlers: make(map[uint16]CommandFunc)}
}

// Handle registers fn for command, replacing any previous function.
func (m *CommandMux) Handle(command uint16, fn CommandFunc) {
	m.handlers[command] = fn
}

func (m *CommandMux) ExecuteCommand(command uint16, parameter []byte) dsdl.CommandStatus {
	fn, ok := m.handlers[command]
	if !ok {
		return dsdl.StatusBadCommand
	}
	return fn(command, parameter)
}

// ExecuteCommandHandler serves uavcan.node.ExecuteCommand.1.1. Every request
// gets exactly one response; failures are reported in its status field.
type ExecuteCommandHandler struct {
	ServiceSubscriber
	exec CommandExecutor
}

func NewExecuteCommandHandler(ins *canard.Instance, txq *canard.TxQueue, exec CommandExecutor) *ExecuteCommandHandler {
	h := &ExecuteCommandHandler{exec: exec}
	h.BindService(ins, txq, dsdl.ExecuteCommandServiceID)
	return h
}

func (h *ExecuteCommandHandler) Subscribe() error {
	return h.SubscribeRequest(dsdl.ExecuteCommandRequestExtent)
}

func (h *ExecuteCommandHandler) Dispatch(tr *canard.Transfer) {
	var req dsdl.ExecuteCommandRequest
	// Truncated requests are zero-extended and still decode.
	status := dsdl.StatusBadParameter
	if err := req.Unmarshal(tr.Payload); err == nil {
		status = h.execute(&req)
	}
	resp := dsdl.ExecuteCommandResponse{Status: status}
	var buf [dsdl.ExecuteCommandResponseSize]byte
	n, _ := resp.MarshalTo(buf[:])
	if err := h.PushResponse(tr, buf[:n]); err != nil {
		return
	}
	h.log.Info().
		Uint8("remote", uint8(tr.Metadata.Remote)).
		Uint16("command", req.Command).
		Stringer("status", status).
		Msg("command executed")
}

func (h *ExecuteCommandHandler) execute(req *dsdl.ExecuteCommandRequest) (status dsdl.CommandStatus) {
	if h.exec == nil {
		return dsdl.StatusBadCommand
	}
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Uint16("command", req.Command).Msg("command executor panicked")
			status = dsdl.StatusInternalError
		}
	}()
	return h.exec.ExecuteCommand(req.Command, req.Parameter)
}
