package canard

import (
	"bytes"
	"errors"
	"testing"
)

const (
	testCANID CANID = 0b001_00_0_11_0110011001100_0_0100111
	testPort        = 0xccc
)

func TestInstanceSubscribe(t *testing.T) {
	ins, _, accept := newInstanceHelper(42)
	_, err := accept(0, 1000e6, uint32(testCANID), []byte{byte(makeTail(true, true, true, 0))})
	if !errors.Is(err, ErrNoMatchingSub) {
		t.Fatalf("expecting ErrNoMatchingSub, got %v", err)
	}

	// Create a message subscription.
	subMsg := Subscription{}
	err = ins.Subscribe(TxKindMessage, testPort, 32, 2e6, &subMsg)
	if err != nil {
		t.Error("unexpected error on new", err)
	}
	// Replacement should annihilate values written in first call to Subscribe.
	const replacedExtent, replacedTimeout = 16, 1e6
	err = ins.Subscribe(TxKindMessage, testPort, replacedExtent, replacedTimeout, &subMsg)
	if err != nil {
		t.Error(err)
	}
	subs := ins.Subscriptions(TxKindMessage)
	if len(subs) != 1 {
		t.Fatal("expected single subscription, got", len(subs))
	}
	got := subs[0]
	if got != &subMsg {
		t.Error("subMsg pointer incorrectly set")
	}
	if got.Port() != testPort {
		t.Errorf("wrong Subscription portid. got %v, expected %v", got.Port(), testPort)
	}
	if got.Extent() != replacedExtent {
		t.Error("extent replacement failed")
	}
	if got.TIDTimeout() != replacedTimeout {
		t.Error("timeout replacement failed")
	}
	for _, ptr := range got.sessions {
		if ptr != nil {
			t.Error("all sessions should be uninitialized, got ", *ptr)
		}
	}

	// Create request subscription.
	subReq := &Subscription{}
	const reqPort, reqExtent, reqTimeout = 0b0000110011, 20, 3e6
	err = ins.Subscribe(TxKindRequest, reqPort, reqExtent, reqTimeout, subReq)
	if err != nil {
		t.Error(err)
	}
	subs = ins.Subscriptions(TxKindMessage)
	if len(subs) != 1 || subs[0] != &subMsg {
		t.Fatal("message subscriptions disturbed by request subscription")
	}
	subs = ins.Subscriptions(TxKindRequest)
	if len(subs) != 1 {
		t.Fatal("expected single request subscription, got", len(subs))
	}
	got = subs[0]
	if got != subReq {
		t.Error("subReq pointer incorrectly set")
	}
	if got.Extent() != reqExtent || got.Port() != reqPort || got.TIDTimeout() != reqTimeout {
		t.Error("got request value not set correctly, got", *got)
	}

	if !ins.Unsubscribe(TxKindRequest, reqPort) {
		t.Error("expected unsubscribe to find request subscription")
	}
	if ins.Unsubscribe(TxKindRequest, reqPort) {
		t.Error("second unsubscribe should report nothing removed")
	}
	if err := ins.Subscribe(TxKindRequest, SERVICE_ID_MAX+1, 1, 1, subReq); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("out of range service id accepted: %v", err)
	}
}

func TestInstanceAccept(t *testing.T) {
	const timeout = 1e8 + 1
	ins, transfer, accept := newInstanceHelper(42)
	sub := &Subscription{}
	err := ins.Subscribe(TxKindMessage, testPort, 16, timeout, sub)
	if err != nil {
		t.Fatal(err)
	}
	got, err := accept(0, timeout, uint32(testCANID), []byte{0xde, 0xad, byte(makeTail(true, true, true, 0))})
	if err != nil {
		t.Fatal(err)
	}
	if got != sub {
		t.Fatal("expected completed transfer on subscription")
	}
	if sub.Port() != testCANID.PortID() {
		t.Error("port ID not expected", testCANID.PortID(), sub.Port())
	}
	if transfer.Timestamp != timeout {
		t.Error("transfer timestamp not set", transfer)
	}
	if transfer.Metadata.TxKind != TxKindMessage {
		t.Error("txkind expected to be message")
	}
	if transfer.Metadata.Remote != testCANID.Source() || transfer.Metadata.Priority != PriorityImmediate {
		t.Error("metadata not taken from CAN ID", transfer.Metadata)
	}
	if !bytes.Equal(transfer.Payload, []byte{0xde, 0xad}) {
		t.Error("payload mismatch", transfer.Payload)
	}

	// Same transfer-ID again is a duplicate and must be ignored.
	got, err = accept(0, timeout+1, uint32(testCANID), []byte{0xde, 0xad, byte(makeTail(true, true, true, 0))})
	if err != nil || got != nil {
		t.Fatalf("duplicate transfer accepted: %v %v", got, err)
	}
	// After the transfer-ID timeout the same ID is accepted again.
	got, _ = accept(0, 3*timeout, uint32(testCANID), []byte{0xbe, byte(makeTail(true, true, true, 0))})
	if got != sub {
		t.Fatal("transfer after TID timeout should be accepted")
	}
}

func TestAcceptMultiFrame(t *testing.T) {
	for _, mtu := range []int{MTU_CAN_CLASSIC, MTU_CAN_FD} {
		for _, size := range []int{0, 6, 7, 13, 14, 63, 64, 100, 300} {
			que := TxQueue{Cap: 100, MTU: mtu}
			ins, transfer, accept := newInstanceHelper(NodeIDUnset)
			sub := &Subscription{}
			if err := ins.Subscribe(TxKindMessage, 1234, 512, DefaultTIDTimeout, sub); err != nil {
				t.Fatal(err)
			}
			meta := Metadata{Priority: PriorityHigh, TxKind: TxKindMessage, Port: 1234, Remote: NodeIDUnset, TID: 7}
			payload := testPayload(size)
			if _, err := que.Push(12, 10, &meta, payload); err != nil {
				t.Fatalf("mtu=%d size=%d: %v", mtu, size, err)
			}
			got, err := drain(&que, accept, 100)
			if err != nil {
				t.Fatalf("mtu=%d size=%d: %v", mtu, size, err)
			}
			if got != sub {
				t.Fatalf("mtu=%d size=%d: transfer not completed", mtu, size)
			}
			// Multi-frame payloads may carry trailing padding.
			if len(transfer.Payload) < size || !bytes.Equal(transfer.Payload[:size], payload) {
				t.Errorf("mtu=%d size=%d: payload mismatch %v", mtu, size, transfer.Payload)
			}
			if transfer.Metadata.Remote != 12 || transfer.Metadata.TID != 7 {
				t.Errorf("mtu=%d size=%d: metadata %+v", mtu, size, transfer.Metadata)
			}
		}
	}
}

func TestAcceptTruncatesToExtent(t *testing.T) {
	que := TxQueue{Cap: 100, MTU: MTU_CAN_CLASSIC}
	ins, transfer, accept := newInstanceHelper(NodeIDUnset)
	sub := &Subscription{}
	if err := ins.Subscribe(TxKindMessage, 10, 5, DefaultTIDTimeout, sub); err != nil {
		t.Fatal(err)
	}
	meta := Metadata{TxKind: TxKindMessage, Port: 10, Remote: NodeIDUnset}
	payload := testPayload(40)
	if _, err := que.Push(3, 0, &meta, payload); err != nil {
		t.Fatal(err)
	}
	got, err := drain(&que, accept, 0)
	if err != nil || got != sub {
		t.Fatalf("transfer not completed: %v", err)
	}
	if !bytes.Equal(transfer.Payload, payload[:5]) {
		t.Error("expected payload truncated to extent, got", transfer.Payload)
	}
}

func TestAcceptCorruptCRC(t *testing.T) {
	que := TxQueue{Cap: 100, MTU: MTU_CAN_CLASSIC}
	ins, _, accept := newInstanceHelper(NodeIDUnset)
	sub := &Subscription{}
	if err := ins.Subscribe(TxKindMessage, 10, 64, DefaultTIDTimeout, sub); err != nil {
		t.Fatal(err)
	}
	meta := Metadata{TxKind: TxKindMessage, Port: 10, Remote: NodeIDUnset}
	if _, err := que.Push(3, 0, &meta, testPayload(20)); err != nil {
		t.Fatal(err)
	}
	first := true
	for que.Len() > 0 {
		frame := que.Pop(nil).Frame()
		payload := append([]byte(nil), frame.Payload...)
		if first {
			payload[0] ^= 0xff
			first = false
		}
		got, err := accept(0, 0, frame.ExtendedCANID, payload)
		if err != nil || got != nil {
			t.Fatalf("corrupted transfer must not complete: %v %v", got, err)
		}
	}
}

func TestAcceptService(t *testing.T) {
	const server, client = 42, 9
	que := TxQueue{Cap: 10, MTU: MTU_CAN_FD}
	ins, transfer, accept := newInstanceHelper(server)
	sub := &Subscription{}
	if err := ins.Subscribe(TxKindRequest, 430, 0, DefaultTIDTimeout, sub); err != nil {
		t.Fatal(err)
	}
	req := Metadata{Priority: PriorityNominal, TxKind: TxKindRequest, Port: 430, Remote: server, TID: 30}
	if _, err := que.Push(client, 0, &req, nil); err != nil {
		t.Fatal(err)
	}
	got, err := drain(&que, accept, 5)
	if err != nil || got != sub {
		t.Fatalf("request not delivered: %v", err)
	}
	if transfer.Metadata.TxKind != TxKindRequest || transfer.Metadata.Remote != client || transfer.Metadata.TID != 30 {
		t.Errorf("unexpected metadata %+v", transfer.Metadata)
	}

	// A request addressed to another node is rejected.
	req.Remote = server + 1
	if _, err := que.Push(client, 0, &req, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := drain(&que, accept, 5); !errors.Is(err, ErrBadDstAddr) {
		t.Errorf("expected ErrBadDstAddr, got %v", err)
	}
}

func TestParseFrameInvalid(t *testing.T) {
	var model frameModel
	// Start of transfer without toggle.
	frame := Frame{ExtendedCANID: uint32(testCANID), Payload: []byte{byte(makeTail(true, true, false, 0))}}
	if err := parseFrame(0, &frame, &model); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame, got %v", err)
	}
	// Reserved bit 23 set.
	frame = Frame{ExtendedCANID: uint32(testCANID | FLAG_RESERVED_23), Payload: []byte{byte(makeTail(true, true, true, 0))}}
	if err := parseFrame(0, &frame, &model); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame, got %v", err)
	}
	// Anonymous multi-frame start.
	frame = Frame{ExtendedCANID: uint32(testCANID | FLAG_ANONYMOUS_MESSAGE), Payload: append(testPayload(7), byte(makeTail(true, false, true, 0)))}
	if err := parseFrame(0, &frame, &model); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestAVLBalanced(t *testing.T) {
	ins := NewInstance(1)
	subs := make([]Subscription, 200)
	for i := range subs {
		if err := ins.Subscribe(TxKindMessage, PortID(i), 1, 1, &subs[i]); err != nil {
			t.Fatal(err)
		}
	}
	h := ins.rxSub[TxKindMessage].height()
	// AVL height bound for 200 nodes is 1.44*log2(202) ~ 11.
	if h > 11 {
		t.Fatal("tree not balanced, height", h)
	}
	for i := 0; i < len(subs); i += 2 {
		if !ins.Unsubscribe(TxKindMessage, PortID(i)) {
			t.Fatal("missing subscription", i)
		}
	}
	got := ins.Subscriptions(TxKindMessage)
	if len(got) != 100 {
		t.Fatal("expected 100 subscriptions, got", len(got))
	}
	for i, s := range got {
		if s.Port() != PortID(2*i+1) {
			t.Fatalf("in-order traversal broken at %d: port %d", i, s.Port())
		}
	}
	if h := ins.rxSub[TxKindMessage].height(); h > 10 {
		t.Fatal("tree not balanced after removal, height", h)
	}
}
