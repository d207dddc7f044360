package node

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/soypat/cyphal-node/canard"
	"github.com/soypat/cyphal-node/dsdl"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultTxCapacity                         = 64
	DefaultHeartbeatPeriod canard.Microsecond = dsdl.HeartbeatMaxPublicationPeriod * 1_000_000
)

// Config parametrizes New.
type Config struct {
	// NodeID of the local node. canard.NodeIDUnset makes the node anonymous:
	// it receives messages but publishes no heartbeat and answers no requests.
	NodeID canard.NodeID
	// MTU of outgoing frames, canard.MTU_CAN_CLASSIC if zero.
	MTU int
	// TxCapacity is the maximum number of frames in the tx queue.
	TxCapacity int
	// HeartbeatPeriod between publications of the local heartbeat.
	HeartbeatPeriod canard.Microsecond
	// TIDTimeout of every built-in subscription.
	TIDTimeout canard.Microsecond
	// Info is served by the GetInfo handler.
	Info dsdl.GetInfoResponse
	// Logger is used by the node and handed to every registered handler.
	Logger *zerolog.Logger
	// Observer receives counters. May be nil.
	Observer Observer
}

// Observer is notified of traffic through the node. Calls happen on the tick
// goroutine and must not block.
type Observer interface {
	FrameAccepted()
	FrameRejected(err error)
	TransferRouted(kind canard.TxKind, dispatched bool)
	TxDropped(n int)
	TxQueueDepth(n int)
}

type nopObserver struct{}

func (nopObserver) FrameAccepted()                     {}
func (nopObserver) FrameRejected(error)                {}
func (nopObserver) TransferRouted(canard.TxKind, bool) {}
func (nopObserver) TxDropped(int)                      {}
func (nopObserver) TxQueueDepth(int)                   {}

// Node ties the transport, the registry and the mandatory node services
// together. It must be driven from a single goroutine.
type Node struct {
	ins *canard.Instance
	txq canard.TxQueue
	reg Registry

	heartbeat *HeartbeatHandler
	info      *NodeInfoHandler
	command   *ExecuteCommandHandler

	status   dsdl.Heartbeat
	hbPeriod canard.Microsecond
	hbNext   canard.Microsecond
	hbTID    canard.TID
	started  bool
	start    canard.Microsecond

	tidTimeout canard.Microsecond
	rx         canard.Transfer
	obs        Observer
	log        zerolog.Logger
}

// New creates a node with the Heartbeat, GetInfo and ExecuteCommand handlers
// registered and subscribed. tracker and exec may be nil.
func New(cfg Config, tracker LivenessTracker, exec CommandExecutor) (*Node, error) {
	if !cfg.NodeID.IsValid() {
		return nil, fmt.Errorf("node id %d: %w", cfg.NodeID, canard.ErrInvalidNodeID)
	}
	if cfg.MTU == 0 {
		cfg.MTU = canard.MTU_CAN_CLASSIC
	}
	if cfg.TxCapacity <= 0 {
		cfg.TxCapacity = DefaultTxCapacity
	}
	if cfg.HeartbeatPeriod == 0 {
		cfg.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if cfg.TIDTimeout == 0 {
		cfg.TIDTimeout = canard.DefaultTIDTimeout
	}
	n := &Node{
		ins:        canard.NewInstance(cfg.NodeID),
		txq:        canard.TxQueue{Cap: cfg.TxCapacity, MTU: cfg.MTU},
		hbPeriod:   cfg.HeartbeatPeriod,
		tidTimeout: cfg.TIDTimeout,
		obs:        cfg.Observer,
		log:        zerolog.Nop(),
		status:     dsdl.Heartbeat{Health: dsdl.HealthNominal, Mode: dsdl.ModeOperational},
	}
	if cfg.Logger != nil {
		n.log = cfg.Logger.With().Uint8("node_id", uint8(cfg.NodeID)).Logger()
	}
	if n.obs == nil {
		n.obs = nopObserver{}
	}
	if err := n.reg.Init(n.ins, &n.txq); err != nil {
		return nil, err
	}
	info, err := NewNodeInfoHandler(n.ins, &n.txq, cfg.Info)
	if err != nil {
		return nil, err
	}
	n.info = info
	n.heartbeat = NewHeartbeatHandler(n.ins, &n.txq, tracker)
	n.command = NewExecuteCommandHandler(n.ins, &n.txq, exec)

	builtins := []Handler{n.heartbeat}
	if cfg.NodeID.IsSet() {
		// Anonymous nodes cannot respond to service requests.
		builtins = append(builtins, n.info, n.command)
	}
	for _, h := range builtins {
		if err := n.Register(h); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Register adds h to the registry and subscribes it. Handlers that accept a
// logger get a child of the node's logger. If the subscription fails h is
// removed again and its registry slot is freed.
func (n *Node) Register(h Handler) error {
	if err := n.reg.Register(h); err != nil {
		return err
	}
	if lh, ok := h.(interface{ SetLogger(zerolog.Logger) }); ok {
		// Handler events carry their own port field.
		lh.SetLogger(n.log.With().Str("handler", fmt.Sprintf("%T", h)).Logger())
	}
	if th, ok := h.(interface{ SetTIDTimeout(canard.Microsecond) }); ok {
		th.SetTIDTimeout(n.tidTimeout)
	}
	if err := h.Subscribe(); err != nil {
		n.reg.unregisterLast()
		return fmt.Errorf("%s %d: %w", h.Kind(), h.PortID(), err)
	}
	n.log.Debug().Stringer("kind", h.Kind()).Uint16("port", uint16(h.PortID())).Int("handlers", n.reg.Len()).Msg("handler registered")
	return nil
}

// HandleFrame feeds a received frame to the transport. When the frame
// completes a transfer it is routed to its handler and HandleFrame reports
// whether a handler consumed it.
func (n *Node) HandleFrame(now canard.Microsecond, frame *canard.Frame) bool {
	return n.HandleFrameRTI(now, frame, 0)
}

// HandleFrameRTI is HandleFrame for a node attached to redundant interfaces;
// rti is the index of the interface the frame arrived on.
func (n *Node) HandleFrameRTI(now canard.Microsecond, frame *canard.Frame, rti uint8) bool {
	sub, err := n.ins.Accept(now, frame, rti, &n.rx)
	if err != nil {
		n.obs.FrameRejected(err)
		if !errors.Is(err, canard.ErrNoMatchingSub) && !errors.Is(err, canard.ErrBadDstAddr) {
			n.log.Debug().Err(err).Msg("frame rejected")
		}
		return false
	}
	n.obs.FrameAccepted()
	if sub == nil {
		return false
	}
	dispatched := n.reg.Route(&n.rx)
	n.obs.TransferRouted(n.rx.Metadata.TxKind, dispatched)
	n.obs.TxQueueDepth(n.txq.Len())
	return dispatched
}

// Tick publishes the local heartbeat when due. The first call marks the start
// of the node's uptime.
func (n *Node) Tick(now canard.Microsecond) error {
	if !n.started {
		n.started = true
		n.start = now
		n.hbNext = now
	}
	if !n.ins.NodeID.IsSet() || now < n.hbNext {
		return nil
	}
	n.hbNext += n.hbPeriod
	if n.hbNext <= now {
		// Skip publications missed while the tick was stalled.
		n.hbNext = now + n.hbPeriod
	}
	n.status.Uptime = n.Uptime(now)
	var buf [dsdl.HeartbeatSize]byte
	sz, err := n.status.MarshalTo(buf[:])
	if err != nil {
		return err
	}
	md := canard.Metadata{
		Priority: canard.PriorityNominal,
		TxKind:   canard.TxKindMessage,
		Port:     dsdl.HeartbeatSubjectID,
		Remote:   canard.NodeIDUnset,
		TID:      n.hbTID,
	}
	n.hbTID = n.hbTID.Next()
	_, err = n.txq.Push(n.ins.NodeID, now+n.hbPeriod, &md, buf[:sz])
	n.obs.TxQueueDepth(n.txq.Len())
	if err != nil {
		n.log.Warn().Err(err).Msg("heartbeat dropped")
		return fmt.Errorf("publish heartbeat: %w", err)
	}
	return nil
}

// DrainTx hands queued frames in priority order to send. Frames whose
// deadline has passed are discarded. A send error stops the drain and leaves
// the failed frame at the head of the queue.
func (n *Node) DrainTx(now canard.Microsecond, send func(canard.Frame) error) (sent int, err error) {
	dropped := 0
	for item := n.txq.Peek(); item != nil; item = n.txq.Peek() {
		if item.Deadline() < now {
			n.txq.Pop(item)
			dropped++
			continue
		}
		if err = send(item.Frame()); err != nil {
			break
		}
		n.txq.Pop(item)
		sent++
	}
	if dropped > 0 {
		n.obs.TxDropped(dropped)
		n.log.Warn().Int("frames", dropped).Msg("tx deadline expired")
	}
	n.obs.TxQueueDepth(n.txq.Len())
	return sent, err
}

// Uptime in whole seconds since the first Tick.
func (n *Node) Uptime(now canard.Microsecond) uint32 {
	if !n.started || now < n.start {
		return 0
	}
	return uint32((now - n.start) / 1_000_000)
}

func (n *Node) SetHealth(h dsdl.Health) { n.status.Health = h }

func (n *Node) SetMode(m dsdl.Mode) { n.status.Mode = m }

func (n *Node) SetVendorStatus(code uint8) { n.status.VendorSpecificStatusCode = code }

// Status returns the heartbeat that the next Tick will publish, minus uptime.
func (n *Node) Status() dsdl.Heartbeat { return n.status }

func (n *Node) NodeID() canard.NodeID { return n.ins.NodeID }

func (n *Node) Instance() *canard.Instance { return n.ins }

func (n *Node) TxQueue() *canard.TxQueue { return &n.txq }

func (n *Node) Registry() *Registry { return &n.reg }

func (n *Node) NodeInfo() *NodeInfoHandler { return n.info }

func (n *Node) Logger() *zerolog.Logger { return &n.log }
