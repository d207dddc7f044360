package node

import (
	"github.com/soypat/cyphal-node/canard"
)

// MessageHandler passes every message on one subject to a callback. It is the
// building block of driver handlers whose subject comes from configuration.
type MessageHandler struct {
	Subscriber
	extent int
	fn     func(tr *canard.Transfer)
}

// NewMessageHandler binds a handler to a fixed subject.
func NewMessageHandler(ins *canard.Instance, txq *canard.TxQueue, port canard.PortID, extent int, fn func(*canard.Transfer)) *MessageHandler {
	h := &MessageHandler{extent: extent, fn: fn}
	h.BindMessage(ins, txq, port)
	return h
}

// NewRegisterMessageHandler binds a handler to the subject held by register
// idx. On error the returned handler is inert and cannot be registered.
func NewRegisterMessageHandler(ins *canard.Instance, txq *canard.TxQueue, regs PortResolver, idx uint8, extent int, fn func(*canard.Transfer)) (*MessageHandler, error) {
	h := &MessageHandler{extent: extent, fn: fn}
	err := h.BindRegister(ins, txq, regs, idx)
	return h, err
}

func (h *MessageHandler) Subscribe() error {
	return h.SubscribeMessage(h.extent)
}

func (h *MessageHandler) Dispatch(tr *canard.Transfer) {
	if h.fn != nil {
		h.fn(tr)
	}
}
