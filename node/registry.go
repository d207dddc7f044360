package node

import (
	"fmt"
	"reflect"

	"github.com/soypat/cyphal-node/canard"
)

// noCopy makes go vet's copylocks check flag copies of the embedding struct.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Registry routes received transfers to handlers. It holds at most
// MaxHandlers handlers in registration order and never allocates, copies or
// releases them; their lifetime belongs to whoever constructed them.
//
// A Registry must be initialized with Init before use and must not be copied.
type Registry struct {
	noCopy   noCopy
	ins      *canard.Instance
	txq      *canard.TxQueue
	handlers [MaxHandlers]Handler
	n        int
}

// Init binds the registry to the transport. It must be called exactly once,
// before any Register call.
func (r *Registry) Init(ins *canard.Instance, txq *canard.TxQueue) error {
	switch {
	case ins == nil || txq == nil:
		return ErrInvalidArgument
	case r.ins != nil:
		return ErrAlreadyInitialized
	}
	r.ins = ins
	r.txq = txq
	return nil
}

// Register appends h. It fails without modifying the registry when capacity
// is exhausted, when h has no resolved port, or when another handler of the
// same kind is already bound to h's port. Callers should treat any error as a
// boot-time configuration defect.
func (r *Registry) Register(h Handler) error {
	switch {
	case r.ins == nil:
		return ErrNotInitialized
	case isNil(h):
		return ErrNilHandler
	case h.PortID() == canard.PortIDUnset:
		return ErrPortUnresolved
	case r.n >= len(r.handlers):
		return ErrRegistryFull
	}
	if prev, ok := r.Lookup(h.Kind(), h.PortID()); ok {
		return fmt.Errorf("%w: %s %d held by %T", ErrDuplicatePort, h.Kind(), h.PortID(), prev)
	}
	r.handlers[r.n] = h
	r.n++
	return nil
}

// Route dispatches tr to the first registered handler whose port and kind
// match, and reports whether one was found. Transfers without a handler are
// silently ignored.
func (r *Registry) Route(tr *canard.Transfer) bool {
	if tr == nil {
		return false
	}
	for _, h := range r.handlers[:r.n] {
		if accepts(h, &tr.Metadata) {
			h.Dispatch(tr)
			return true
		}
	}
	return false
}

// Lookup returns the handler bound to port for the given kind.
func (r *Registry) Lookup(kind canard.TxKind, port canard.PortID) (Handler, bool) {
	for _, h := range r.handlers[:r.n] {
		if h.Kind() == kind && h.PortID() == port {
			return h, true
		}
	}
	return nil, false
}

// SubscribeAll calls Subscribe on every handler in registration order and
// stops at the first failure.
func (r *Registry) SubscribeAll() error {
	for _, h := range r.handlers[:r.n] {
		if err := h.Subscribe(); err != nil {
			return fmt.Errorf("%s %d: %w", h.Kind(), h.PortID(), err)
		}
	}
	return nil
}

// Each calls fn for every handler in registration order.
func (r *Registry) Each(fn func(Handler)) {
	for _, h := range r.handlers[:r.n] {
		fn(h)
	}
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int { return r.n }

// Cap returns the fixed capacity of the registry.
func (r *Registry) Cap() int { return len(r.handlers) }

// unregisterLast removes the most recently registered handler.
func (r *Registry) unregisterLast() {
	if r.n == 0 {
		return
	}
	r.n--
	r.handlers[r.n] = nil
}

// isNil also catches typed nil pointers, whose methods would dereference nil.
func isNil(h Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// accepts reports whether h handles transfers described by md. Message
// handlers take messages and service handlers take requests; responses are
// never routed.
func accepts(h Handler, md *canard.Metadata) bool {
	if h.PortID() != md.Port {
		return false
	}
	switch md.TxKind {
	case canard.TxKindMessage, canard.TxKindRequest:
		return h.Kind() == md.TxKind
	}
	return false
}
