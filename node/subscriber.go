package node

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/soypat/cyphal-node/canard"
)

// Handler is the unit of protocol behavior routed by a Registry.
type Handler interface {
	// PortID returns the subject or service the handler is bound to. It does
	// not change after construction.
	PortID() canard.PortID
	// Kind is TxKindMessage for subject handlers and TxKindRequest for
	// service handlers.
	Kind() canard.TxKind
	// Subscribe registers the handler's subscription with the transport.
	// Calling it again after success is a no-op.
	Subscribe() error
	// Dispatch consumes one transfer whose port and kind match the handler.
	// It must return promptly; it runs inside the node's tick.
	Dispatch(tr *canard.Transfer)
}

// PortResolver maps a configuration register index to the port identifier
// assigned to it by the installation.
type PortResolver interface {
	ResolvePort(idx uint8) (canard.PortID, bool)
}

// Subscriber is the embeddable base of every handler. It owns the transport
// subscription and must not be copied once bound.
type Subscriber struct {
	sub        canard.Subscription
	port       canard.PortID
	kind       canard.TxKind
	ins        *canard.Instance
	txq        *canard.TxQueue
	tidTimeout canard.Microsecond
	subscribed bool
	log        zerolog.Logger
}

// BindMessage binds s to a subject on the given transport.
func (s *Subscriber) BindMessage(ins *canard.Instance, txq *canard.TxQueue, port canard.PortID) {
	s.bind(canard.TxKindMessage, ins, txq, port)
}

// BindRegister binds s to the subject stored in configuration register idx.
// If the register cannot be resolved s is left inert: it reports
// canard.PortIDUnset and refuses to subscribe.
func (s *Subscriber) BindRegister(ins *canard.Instance, txq *canard.TxQueue, regs PortResolver, idx uint8) error {
	return s.bindRegister(canard.TxKindMessage, ins, txq, regs, idx)
}

func (s *Subscriber) bindRegister(kind canard.TxKind, ins *canard.Instance, txq *canard.TxQueue, regs PortResolver, idx uint8) error {
	port := canard.PortIDUnset
	ok := false
	if regs != nil {
		port, ok = regs.ResolvePort(idx)
	}
	if !ok || (kind == canard.TxKindMessage && !port.IsSubject()) || (kind != canard.TxKindMessage && !port.IsService()) {
		s.bind(kind, ins, txq, canard.PortIDUnset)
		return fmt.Errorf("register %d: %w", idx, ErrPortUnresolved)
	}
	s.bind(kind, ins, txq, port)
	return nil
}

func (s *Subscriber) bind(kind canard.TxKind, ins *canard.Instance, txq *canard.TxQueue, port canard.PortID) {
	s.kind = kind
	s.ins = ins
	s.txq = txq
	s.port = port
	s.tidTimeout = canard.DefaultTIDTimeout
	s.subscribed = false
	s.log = zerolog.Nop()
}

func (s *Subscriber) PortID() canard.PortID { return s.port }

func (s *Subscriber) Kind() canard.TxKind { return s.kind }

// Subscribed reports whether the transport subscription is in place.
func (s *Subscriber) Subscribed() bool { return s.subscribed }

// Inert reports whether the handler has no usable port.
func (s *Subscriber) Inert() bool { return s.port == canard.PortIDUnset }

// SetLogger replaces the handler's logger, which defaults to a no-op logger.
func (s *Subscriber) SetLogger(l zerolog.Logger) { s.log = l }

// Logger returns the handler's logger.
func (s *Subscriber) Logger() *zerolog.Logger { return &s.log }

// SetTIDTimeout changes the transfer-ID timeout used by the next Subscribe.
func (s *Subscriber) SetTIDTimeout(timeout canard.Microsecond) { s.tidTimeout = timeout }

// Subscription returns the transport subscription, or nil before Subscribe.
func (s *Subscriber) Subscription() *canard.Subscription {
	if !s.subscribed {
		return nil
	}
	return &s.sub
}

// SubscribeMessage registers a message subscription on the bound port.
func (s *Subscriber) SubscribeMessage(extent int) error {
	return s.subscribe(canard.TxKindMessage, extent)
}

// SubscribeRequest registers a service request subscription on the bound port.
func (s *Subscriber) SubscribeRequest(extent int) error {
	return s.subscribe(canard.TxKindRequest, extent)
}

func (s *Subscriber) subscribe(kind canard.TxKind, extent int) error {
	switch {
	case s.ins == nil:
		return ErrNotBound
	case s.Inert():
		return ErrPortUnresolved
	case kind != s.kind:
		return fmt.Errorf("%w: bound as %s, subscribing as %s", ErrKindMismatch, s.kind, kind)
	case s.subscribed:
		return nil
	}
	if err := s.ins.Subscribe(kind, s.port, extent, s.tidTimeout, &s.sub); err != nil {
		return fmt.Errorf("subscribe %s %d: %w", kind, s.port, err)
	}
	s.subscribed = true
	s.log.Debug().Stringer("kind", kind).Uint16("port", uint16(s.port)).Int("extent", extent).Msg("subscribed")
	return nil
}
