package canard

import (
	"bytes"
	"testing"
)

type rawFrame struct {
	canid   uint32
	payload []byte
}

// framesOf serializes one message transfer and returns its frames in transmission order.
func framesOf(t *testing.T, mtu int, src NodeID, tid TID, payload []byte) []rawFrame {
	t.Helper()
	que := TxQueue{Cap: 100, MTU: mtu}
	meta := Metadata{Priority: PriorityNominal, TxKind: TxKindMessage, Port: testPort, Remote: NodeIDUnset, TID: tid}
	if _, err := que.Push(src, 1_000_000, &meta, payload); err != nil {
		t.Fatal(err)
	}
	var frames []rawFrame
	for que.Len() > 0 {
		frame := que.Pop(nil).Frame()
		frames = append(frames, rawFrame{
			canid:   frame.ExtendedCANID,
			payload: append([]byte(nil), frame.Payload...),
		})
	}
	return frames
}

func TestAcceptRedundantInterleaved(t *testing.T) {
	const tidTimeout = 2_000_000
	ins, transfer, accept := newInstanceHelper(NodeIDUnset)
	sub := &Subscription{}
	if err := ins.Subscribe(TxKindMessage, testPort, 64, tidTimeout, sub); err != nil {
		t.Fatal(err)
	}
	payload := testPayload(20)
	frames := framesOf(t, MTU_CAN_CLASSIC, 12, 3, payload)
	if len(frames) < 3 {
		t.Fatalf("want a multi-frame transfer, got %d frames", len(frames))
	}
	completed := 0
	ts := Microsecond(1_000)
	for _, f := range frames {
		for rti := uint8(0); rti < 2; rti++ {
			ts += 10
			got, err := accept(rti, ts, f.canid, append([]byte(nil), f.payload...))
			if err != nil {
				t.Fatalf("rti=%d: %v", rti, err)
			}
			if got != nil {
				if rti != 0 {
					t.Fatalf("transfer completed on rti %d, want 0", rti)
				}
				completed++
			}
		}
	}
	if completed != 1 {
		t.Fatalf("completed %d transfers, want 1", completed)
	}
	if len(transfer.Payload) < len(payload) || !bytes.Equal(transfer.Payload[:len(payload)], payload) {
		t.Errorf("payload mismatch %v", transfer.Payload)
	}
	if transfer.Metadata.Remote != 12 || transfer.Metadata.TID != 3 {
		t.Errorf("metadata %+v", transfer.Metadata)
	}
}

func TestAcceptRedundantFailover(t *testing.T) {
	const tidTimeout = 2_000_000
	ins, transfer, accept := newInstanceHelper(NodeIDUnset)
	sub := &Subscription{}
	if err := ins.Subscribe(TxKindMessage, testPort, 64, tidTimeout, sub); err != nil {
		t.Fatal(err)
	}
	feed := func(rti uint8, ts Microsecond, tid TID) *Subscription {
		t.Helper()
		var got *Subscription
		for _, f := range framesOf(t, MTU_CAN_CLASSIC, 12, tid, testPayload(20)) {
			s, err := accept(rti, ts, f.canid, f.payload)
			if err != nil {
				t.Fatalf("rti=%d tid=%d: %v", rti, tid, err)
			}
			if s != nil {
				got = s
			}
		}
		return got
	}
	const start = 10_000
	if feed(0, start, 0) != sub {
		t.Fatal("transfer on rti 0 not completed")
	}
	// rti 0 owns the session until the transfer-ID timeout elapses.
	if feed(1, start+tidTimeout/2, 1) != nil {
		t.Fatal("rti 1 accepted while rti 0 owns the session")
	}
	if feed(1, start+tidTimeout+1, 2) != sub {
		t.Fatal("rti 1 did not take over after the transfer-ID timeout")
	}
	if transfer.Metadata.TID != 2 {
		t.Errorf("got tid %d, want 2", transfer.Metadata.TID)
	}
	if feed(0, start+tidTimeout+100, 3) != nil {
		t.Fatal("rti 0 accepted after rti 1 took over")
	}
	if feed(1, start+tidTimeout+200, 3) != sub {
		t.Fatal("next transfer on rti 1 not completed")
	}
}
