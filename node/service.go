package node

import (
	"fmt"

	"github.com/soypat/cyphal-node/canard"
)

// ResponseTimeout bounds how long a response may wait in the tx queue,
// counted from the arrival of the request.
const ResponseTimeout canard.Microsecond = 1_000_000

// ServiceSubscriber is the embeddable base of request/response handlers.
type ServiceSubscriber struct {
	Subscriber
	// Response template; copied for every response and never modified after bind.
	metadata canard.Metadata
}

// BindService binds s to a service on the given transport.
func (s *ServiceSubscriber) BindService(ins *canard.Instance, txq *canard.TxQueue, port canard.PortID) {
	s.bind(canard.TxKindRequest, ins, txq, port)
	s.initMetadata()
}

// BindServiceRegister binds s to the service stored in configuration register idx.
func (s *ServiceSubscriber) BindServiceRegister(ins *canard.Instance, txq *canard.TxQueue, regs PortResolver, idx uint8) error {
	err := s.bindRegister(canard.TxKindRequest, ins, txq, regs, idx)
	s.initMetadata()
	return err
}

func (s *ServiceSubscriber) initMetadata() {
	s.metadata = canard.Metadata{
		Priority: canard.PriorityNominal,
		TxKind:   canard.TxKindResponse,
		Port:     s.port,
	}
}

// Metadata returns the response metadata template.
func (s *ServiceSubscriber) Metadata() canard.Metadata { return s.metadata }

// PushResponse enqueues payload as the response to req. It must be called at
// most once per request. Transport errors such as canard.ErrQueueFull are
// returned as is; the response is not retried.
func (s *ServiceSubscriber) PushResponse(req *canard.Transfer, payload []byte) error {
	switch {
	case req == nil:
		return ErrInvalidArgument
	case s.txq == nil || s.ins == nil:
		return ErrNotBound
	case req.Metadata.TxKind != canard.TxKindRequest || req.Metadata.Port != s.port:
		return ErrNotRequest
	}
	md := s.metadata
	md.Remote = req.Metadata.Remote
	md.TID = req.Metadata.TID
	if _, err := s.txq.Push(s.ins.NodeID, req.Timestamp+ResponseTimeout, &md, payload); err != nil {
		s.log.Warn().Err(err).Uint16("port", uint16(s.port)).Uint8("remote", uint8(md.Remote)).Msg("response dropped")
		return fmt.Errorf("respond on %d to node %d: %w", s.port, md.Remote, err)
	}
	return nil
}
