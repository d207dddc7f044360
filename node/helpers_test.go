package node_test

import (
	"testing"

	"github.com/soypat/cyphal-node/canard"
	"github.com/soypat/cyphal-node/dsdl"
	"github.com/soypat/cyphal-node/node"
	"github.com/stretchr/testify/require"
)

// fakeHandler records every transfer dispatched to it.
type fakeHandler struct {
	port         canard.PortID
	kind         canard.TxKind
	subscribeErr error
	subscribed   int
	got          []canard.Transfer
}

func (f *fakeHandler) PortID() canard.PortID { return f.port }
func (f *fakeHandler) Kind() canard.TxKind   { return f.kind }

func (f *fakeHandler) Subscribe() error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed++
	return nil
}

func (f *fakeHandler) Dispatch(tr *canard.Transfer) {
	cp := *tr
	cp.Payload = append([]byte(nil), tr.Payload...)
	f.got = append(f.got, cp)
}

func newRegistry(t *testing.T) *node.Registry {
	t.Helper()
	reg := &node.Registry{}
	require.NoError(t, reg.Init(canard.NewInstance(42), &canard.TxQueue{Cap: 16, MTU: canard.MTU_CAN_CLASSIC}))
	return reg
}

func transfer(kind canard.TxKind, port canard.PortID, remote canard.NodeID, tid canard.TID, payload ...byte) *canard.Transfer {
	return &canard.Transfer{
		Metadata: canard.Metadata{
			Priority: canard.PriorityNominal,
			TxKind:   kind,
			Port:     port,
			Remote:   remote,
			TID:      tid,
		},
		Timestamp: 1_000,
		Payload:   payload,
	}
}

type heartbeatRecord struct {
	src canard.NodeID
	hb  dsdl.Heartbeat
	ts  canard.Microsecond
}

type fakeTracker struct {
	seen []heartbeatRecord
}

func (f *fakeTracker) ObserveHeartbeat(src canard.NodeID, hb dsdl.Heartbeat, ts canard.Microsecond) {
	f.seen = append(f.seen, heartbeatRecord{src: src, hb: hb, ts: ts})
}

type countingObserver struct {
	accepted, rejected int
	routed, unrouted   int
	dropped            int
	depth              int
}

func (c *countingObserver) FrameAccepted()      { c.accepted++ }
func (c *countingObserver) FrameRejected(error) { c.rejected++ }
func (c *countingObserver) TxDropped(n int)     { c.dropped += n }
func (c *countingObserver) TxQueueDepth(n int)  { c.depth = n }
func (c *countingObserver) TransferRouted(_ canard.TxKind, dispatched bool) {
	if dispatched {
		c.routed++
	} else {
		c.unrouted++
	}
}

type mapResolver map[uint8]canard.PortID

func (m mapResolver) ResolvePort(idx uint8) (canard.PortID, bool) {
	p, ok := m[idx]
	return p, ok
}

// peer is a remote node on the same simulated bus as the node under test.
type peer struct {
	ins *canard.Instance
	txq canard.TxQueue
	rx  canard.Transfer
}

func newPeer(t *testing.T, id canard.NodeID) *peer {
	t.Helper()
	return &peer{
		ins: canard.NewInstance(id),
		txq: canard.TxQueue{Cap: 256, MTU: canard.MTU_CAN_CLASSIC},
	}
}

func (p *peer) request(t *testing.T, dst canard.NodeID, service canard.PortID, tid canard.TID, payload []byte) {
	t.Helper()
	md := canard.Metadata{Priority: canard.PriorityNominal, TxKind: canard.TxKindRequest, Port: service, Remote: dst, TID: tid}
	_, err := p.txq.Push(p.ins.NodeID, 10_000_000, &md, payload)
	require.NoError(t, err)
}

func (p *peer) publish(t *testing.T, subject canard.PortID, tid canard.TID, payload []byte) {
	t.Helper()
	md := canard.Metadata{Priority: canard.PriorityNominal, TxKind: canard.TxKindMessage, Port: subject, Remote: canard.NodeIDUnset, TID: tid}
	_, err := p.txq.Push(p.ins.NodeID, 10_000_000, &md, payload)
	require.NoError(t, err)
}

// sendTo moves every queued frame of p into n and returns how many completed
// transfers were dispatched.
func (p *peer) sendTo(n *node.Node, now canard.Microsecond) (dispatched int) {
	for item := p.txq.Pop(nil); item != nil; item = p.txq.Pop(nil) {
		f := item.Frame()
		f.Payload = append([]byte(nil), f.Payload...)
		if n.HandleFrame(now, &f) {
			dispatched++
		}
	}
	return dispatched
}

// receiveFrom drains the node's tx queue into p and returns the completed
// transfers addressed to p's subscriptions.
func (p *peer) receiveFrom(t *testing.T, n *node.Node, now canard.Microsecond) []canard.Transfer {
	t.Helper()
	var got []canard.Transfer
	_, err := n.DrainTx(now, func(f canard.Frame) error {
		f.Payload = append([]byte(nil), f.Payload...)
		sub, err := p.ins.Accept(now, &f, 0, &p.rx)
		if err != nil || sub == nil {
			return nil
		}
		cp := p.rx
		cp.Payload = append([]byte(nil), p.rx.Payload...)
		got = append(got, cp)
		return nil
	})
	require.NoError(t, err)
	return got
}

func (p *peer) subscribe(t *testing.T, kind canard.TxKind, port canard.PortID, extent int) {
	t.Helper()
	require.NoError(t, p.ins.Subscribe(kind, port, extent, canard.DefaultTIDTimeout, &canard.Subscription{}))
}

func testInfo() dsdl.GetInfoResponse {
	return dsdl.GetInfoResponse{
		HardwareVersion:       dsdl.Version{Major: 2, Minor: 1},
		SoftwareVersion:       dsdl.Version{Major: 0, Minor: 9},
		SoftwareVCSRevisionID: 0xdeadbeef,
		UniqueID:              [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		Name:                  "org.example.node",
	}
}
