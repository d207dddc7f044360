package canard

// Contains OpenCyphal receive logic. Exported API first.

// Instance is the local node as seen by the transport. The zero value is an
// instance with node-ID zero; use NewInstance for an anonymous node.
type Instance struct {
	NodeID NodeID
	// One subscription index per transfer kind.
	rxSub [numberOfTxKinds]*treeNode[*Subscription]
}

// NewInstance returns an instance with the given node-ID, which may be NodeIDUnset.
func NewInstance(id NodeID) *Instance {
	return &Instance{NodeID: id}
}

// Subscription binds a port to an expected payload extent. It is owned by the
// caller and must stay in place (not copied) while subscribed.
type Subscription struct {
	node       treeNode[*Subscription]
	kind       TxKind
	tidTimeout Microsecond
	extent     int
	port       PortID
	sessions   [NODE_ID_MAX + 1]*rxSession
}

func (s *Subscription) Port() PortID            { return s.port }
func (s *Subscription) Kind() TxKind            { return s.kind }
func (s *Subscription) Extent() int             { return s.extent }
func (s *Subscription) TIDTimeout() Microsecond { return s.tidTimeout }

// Subscribe registers sub for transfers of the given kind and port. A
// previous subscription on the same kind and port is replaced.
func (ins *Instance) Subscribe(kind TxKind, port PortID, extent int, tidTimeout Microsecond, sub *Subscription) error {
	switch {
	case ins == nil || sub == nil || extent < 0:
		return ErrInvalidArgument
	case kind >= numberOfTxKinds:
		return ErrTransferKind
	case kind == TxKindMessage && !port.IsSubject(), kind != TxKindMessage && !port.IsService():
		return ErrInvalidArgument
	}
	ins.Unsubscribe(kind, port)
	*sub = Subscription{
		kind:       kind,
		tidTimeout: tidTimeout,
		extent:     extent,
		port:       port,
	}
	sub.node.owner = sub
	got := search(&ins.rxSub[kind], comparePort(port), func() *treeNode[*Subscription] { return &sub.node })
	if got != &sub.node {
		panic("canard: subscription index corrupted")
	}
	return nil
}

// Unsubscribe removes the subscription on kind and port and reports whether one existed.
func (ins *Instance) Unsubscribe(kind TxKind, port PortID) bool {
	if kind >= numberOfTxKinds {
		return false
	}
	got := search(&ins.rxSub[kind], comparePort(port), nil)
	if got == nil {
		return false
	}
	remove(&ins.rxSub[kind], got)
	return true
}

// Subscriptions returns the subscriptions of a kind ordered by port.
func (ins *Instance) Subscriptions(kind TxKind) (subs []*Subscription) {
	if kind >= numberOfTxKinds {
		panic(ErrTransferKind)
	}
	ins.rxSub[kind].traverse(func(s *Subscription) {
		subs = append(subs, s)
	})
	return subs
}

// Accept processes a received frame. rti is the redundant transport index the
// frame arrived on. When the frame completes a transfer, outTx is filled in and
// the matching subscription is returned. A nil subscription with a nil error
// means the frame was consumed but the transfer is not complete yet.
func (ins *Instance) Accept(timestamp Microsecond, frame *Frame, rti uint8, outTx *Transfer) (*Subscription, error) {
	switch {
	case ins == nil || outTx == nil || frame == nil:
		return nil, ErrInvalidArgument
	case len(frame.Payload) == 0:
		return nil, errEmptyPayload
	}
	var model frameModel
	if err := parseFrame(timestamp, frame, &model); err != nil {
		return nil, err
	}
	if !model.dstNode.IsUnset() && ins.NodeID != model.dstNode {
		return nil, ErrBadDstAddr
	}
	// Logarithmic in the number of subscriptions; the rest of the pipeline is
	// free of loops except for payload copies.
	got := search(&ins.rxSub[model.txKind], comparePort(model.port), nil)
	if got == nil {
		return nil, ErrNoMatchingSub
	}
	sub := got.owner
	done, err := sub.acceptFrame(&model, rti, outTx)
	if err != nil || !done {
		return nil, err
	}
	return sub, nil
}

// Below is private API.

func comparePort(sought PortID) func(*Subscription) int {
	return func(s *Subscription) int {
		switch {
		case sought == s.port:
			return 0
		case sought > s.port:
			return 1
		}
		return -1
	}
}

type rxSession struct {
	txTimestamp      Microsecond
	totalPayloadSize int
	payload          []byte
	crc              CRC
	tid              TID
	// Redundant Transport Index
	rti    uint8
	toggle bool
}

func (sub *Subscription) acceptFrame(frame *frameModel, rti uint8, outTx *Transfer) (bool, error) {
	switch {
	case frame.tid > TRANSFER_ID_MAX:
		return false, ErrBadTransferID
	case !frame.srcNode.IsValid():
		return false, ErrInvalidNodeID
	}
	if frame.srcNode.IsUnset() {
		// Anonymous transfers are stateless and always single-frame.
		size := min(sub.extent, len(frame.payload))
		outTx.Metadata.fromFrame(frame)
		outTx.Timestamp = frame.timestamp
		outTx.Payload = append([]byte(nil), frame.payload[:size]...)
		return true, nil
	}
	rxs := sub.sessions[frame.srcNode]
	if rxs == nil {
		if !frame.txStart {
			// Cannot receive the transfer without its first frame.
			return false, nil
		}
		rxs = &rxSession{
			txTimestamp: frame.timestamp,
			crc:         newCRC(),
			tid:         frame.tid,
			rti:         rti,
			toggle:      initialToggle,
		}
		sub.sessions[frame.srcNode] = rxs
	}
	return rxs.update(frame, rti, sub.tidTimeout, sub.extent, outTx), nil
}

func (rxs *rxSession) update(frame *frameModel, rti uint8, tidTimeout Microsecond, extent int, outTx *Transfer) bool {
	tidTimedOut := frame.timestamp > rxs.txTimestamp && frame.timestamp-rxs.txTimestamp > tidTimeout
	notPreviousTID := tidDifference(rxs.tid, frame.tid) > 1
	needRestart := tidTimedOut || (rxs.rti == rti && frame.txStart && notPreviousTID)
	if needRestart {
		rxs.totalPayloadSize = 0
		rxs.payload = rxs.payload[:0]
		rxs.crc = newCRC()
		rxs.tid = frame.tid
		rxs.toggle = initialToggle
		rxs.rti = rti
		if !frame.txStart {
			// Start of transfer was missed; nothing to do with this frame.
			rxs.restart()
			return false
		}
	}
	if rxs.rti != rti || frame.toggle != rxs.toggle || frame.tid != rxs.tid {
		return false
	}
	return rxs.acceptFrame(frame, extent, outTx)
}

func (rxs *rxSession) acceptFrame(frame *frameModel, extent int, outTx *Transfer) bool {
	if frame.txStart {
		rxs.txTimestamp = frame.timestamp
	}
	singleFrame := frame.txStart && frame.txEnd
	if !singleFrame {
		rxs.crc = rxs.crc.Add(frame.payload)
	}
	rxs.writePayload(extent, frame.payload)
	if !frame.txEnd {
		rxs.toggle = !rxs.toggle
		return false
	}
	done := singleFrame || rxs.crc == crcResidue
	if done {
		outTx.Metadata.fromFrame(frame)
		outTx.Timestamp = rxs.txTimestamp
		outTx.Payload = rxs.payload
		if !singleFrame {
			// Cut off the CRC unless extent truncation already dropped it.
			truncated := rxs.totalPayloadSize - len(rxs.payload)
			if truncated < crcSize {
				outTx.Payload = outTx.Payload[:len(outTx.Payload)-(crcSize-truncated)]
			}
		}
		// Ownership passes to the application.
		rxs.payload = nil
	}
	rxs.restart()
	return done
}

func (rxs *rxSession) writePayload(extent int, payload []byte) {
	rxs.totalPayloadSize += len(payload)
	if rxs.payload == nil && extent > 0 {
		// Allocate the payload lazily, as late as possible.
		rxs.payload = make([]byte, 0, extent)
	}
	n := len(payload)
	if len(rxs.payload)+n > extent {
		n = extent - len(rxs.payload)
	}
	rxs.payload = append(rxs.payload, payload[:n]...)
}

// restart prepares the session for the next transfer-ID. RTI is retained.
func (rxs *rxSession) restart() {
	rxs.totalPayloadSize = 0
	if rxs.payload != nil {
		rxs.payload = rxs.payload[:0]
	}
	rxs.crc = newCRC()
	rxs.tid = rxs.tid.Next()
	rxs.toggle = initialToggle
}

func tidDifference(a, b TID) uint8 {
	diff := int16(a) - int16(b)
	if diff < 0 {
		diff += 1 << TRANSFER_ID_BIT_LENGTH
	}
	return uint8(diff)
}

func parseFrame(ts Microsecond, frame *Frame, out *frameModel) error {
	canID := CANID(frame.ExtendedCANID)
	if canID > canExtIDMask {
		return ErrInvalidFrame
	}
	out.timestamp = ts
	out.priority = canID.Priority()
	out.srcNode = canID.Source()
	out.port = canID.PortID()
	out.txKind = canID.Kind()
	var valid bool
	if canID.IsMessage() {
		if canID.IsAnonymous() {
			out.srcNode.Unset()
		}
		out.dstNode.Unset()
		// Reserved bits may be unreserved in the future.
		valid = canID&FLAG_RESERVED_23 == 0 && canID&FLAG_RESERVED_07 == 0
	} else {
		out.dstNode = canID.Destination()
		// Source and destination must differ.
		valid = canID&FLAG_RESERVED_23 == 0 && out.srcNode != out.dstNode
	}

	last := len(frame.Payload) - 1
	out.payload = frame.Payload[:last] // Cut off the tail byte.
	tail := Tail(frame.Payload[last])
	out.tid = tail.TransferID()
	out.txStart = tail.IsStart()
	out.txEnd = tail.IsEnd()
	out.toggle = tail.IsToggled()

	// Protocol version check: if SOT is set, then the toggle shall also be set.
	valid = valid && (!out.txStart || out.toggle == initialToggle)
	// Anonymous transfers can be only single-frame transfers.
	valid = valid && ((out.txStart && out.txEnd) || !out.srcNode.IsUnset())
	// Non-last frames of a multi-frame transfer shall utilize the MTU fully.
	valid = valid && (len(out.payload) >= MFT_NON_LAST_FRAME_PAYLOAD_MIN || out.txEnd)
	// A frame that is a part of a multi-frame transfer cannot be empty (tail byte not included).
	valid = valid && (len(out.payload) > 0 || (out.txStart && out.txEnd))
	if !valid {
		return ErrInvalidFrame
	}
	return nil
}
