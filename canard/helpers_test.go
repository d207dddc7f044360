package canard

func newInstanceHelper(id NodeID) (ins *Instance, t *Transfer, accept func(rti uint8, timestamp Microsecond, canid uint32, payload []byte) (*Subscription, error)) {
	ins = NewInstance(id)
	t = &Transfer{}
	accept = func(rti uint8, timestamp Microsecond, canid uint32, payload []byte) (*Subscription, error) {
		return ins.Accept(timestamp, &Frame{
			ExtendedCANID: canid,
			Payload:       payload,
		}, rti, t)
	}
	return ins, t, accept
}

// drain pops every frame in the queue and feeds it to accept until a transfer completes.
func drain(q *TxQueue, accept func(rti uint8, timestamp Microsecond, canid uint32, payload []byte) (*Subscription, error), ts Microsecond) (*Subscription, error) {
	var (
		got *Subscription
		err error
	)
	for q.Len() > 0 {
		item := q.Pop(nil)
		frame := item.Frame()
		payload := append([]byte(nil), frame.Payload...)
		got, err = accept(0, ts, frame.ExtendedCANID, payload)
		if err != nil {
			return nil, err
		}
	}
	return got, nil
}

func testPayload(n int) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i & 0xff)
	}
	return payload
}
