package canard

// Contains OpenCyphal transmission/transfer logic.

// TxQueue is a prioritized queue of outgoing frames. Frames are ordered by
// CAN ID so that the frame that would win arbitration is dequeued first;
// frames with equal CAN IDs keep their insertion order.
type TxQueue struct {
	// The maximum number of frames this queue is allowed to contain. An attempt to push more
	// fails with ErrQueueFull. This value can be changed by the user at any moment.
	// The purpose of this limitation is to ensure that a blocked queue does not exhaust the heap memory.
	Cap int
	// The transport-layer maximum transmission unit. The value can be changed arbitrarily at any time between
	// pushes. It defines the maximum number of data bytes per CAN data frame in outgoing transfers via this queue.
	//
	// Only the standard values should be used as recommended by Cyphal/CAN;
	// otherwise, networking interoperability issues may arise. See MTU_CAN_CLASSIC and MTU_CAN_FD.
	// Invalid values are treated as the nearest valid value.
	MTU  int
	size int
	root *treeNode[*TxItem]
}

// TxItem is a single frame waiting for transmission.
type TxItem struct {
	node     treeNode[*TxItem]
	nextInTx *TxItem
	deadline Microsecond
	frame    Frame
	buf      [MTU_CAN_FD]byte
}

// Frame returns the frame to hand to the CAN driver.
func (t *TxItem) Frame() Frame { return t.frame }

// Deadline is the time after which the frame should be discarded instead of sent.
func (t *TxItem) Deadline() Microsecond { return t.deadline }

func (t *TxItem) TailByte() Tail {
	return Tail(t.frame.Payload[len(t.frame.Payload)-1])
}

// Len returns the number of frames in the queue.
func (q *TxQueue) Len() int { return q.size }

// Push fragments the transfer described by metadata and payload into frames and
// enqueues them. src is the local node-ID, possibly NodeIDUnset for anonymous
// messages. It returns the number of frames enqueued. Either all frames of the
// transfer are enqueued or none are.
func (q *TxQueue) Push(src NodeID, deadline Microsecond, metadata *Metadata, payload []byte) (int, error) {
	if q == nil || metadata == nil {
		return 0, ErrInvalidArgument
	}
	plMTU := adjustPresentationLayerMTU(q.MTU)
	canID, err := metadata.makeCANID(payload, src, plMTU)
	if err != nil {
		return 0, err
	}
	if len(payload) <= plMTU {
		if q.size+1 > q.Cap {
			return 0, ErrQueueFull
		}
		q.insert(newSingleFrame(deadline, canID, metadata.TID, payload))
		return 1, nil
	}
	numFrames := (len(payload) + crcSize + plMTU - 1) / plMTU
	if q.size+numFrames > q.Cap {
		return 0, ErrQueueFull
	}
	head := newMultiFrameChain(deadline, canID, metadata.TID, plMTU, payload)
	n := 0
	for it := head; it != nil; it = it.nextInTx {
		q.insert(it)
		n++
	}
	return n, nil
}

// Peek returns the highest priority frame without removing it, or nil if the queue is empty.
func (q *TxQueue) Peek() *TxItem {
	n := findExtremum(q.root, false)
	if n == nil {
		return nil
	}
	return n.owner
}

// Pop removes item from the TxQueue and returns the removed item.
// If item is nil then the first item is removed from the Queue and returned.
func (q *TxQueue) Pop(item *TxItem) *TxItem {
	if item == nil {
		item = q.Peek()
		if item == nil {
			return nil
		}
	}
	remove(&q.root, &item.node)
	item.nextInTx = nil
	q.size--
	return item
}

func (q *TxQueue) insert(item *TxItem) {
	item.node.owner = item
	id := item.frame.ExtendedCANID
	got := search(&q.root, func(other *TxItem) int {
		// Never equal: frames with identical CAN IDs go after existing ones.
		if id >= other.frame.ExtendedCANID {
			return 1
		}
		return -1
	}, func() *treeNode[*TxItem] { return &item.node })
	if got != &item.node {
		panic("canard: tx queue index corrupted")
	}
	q.size++
}

func newTxItem(deadline Microsecond, size int, canID uint32) *TxItem {
	tqi := &TxItem{deadline: deadline}
	tqi.frame = Frame{
		ExtendedCANID: canID,
		Payload:       tqi.buf[:size],
	}
	return tqi
}

func newSingleFrame(deadline Microsecond, canID uint32, tid TID, payload []byte) *TxItem {
	frameSize := roundPayloadSizeUp(len(payload) + 1)
	tqi := newTxItem(deadline, frameSize, canID)
	n := copy(tqi.frame.Payload, payload)
	// Single-frame transfers are padded without CRC.
	for ; n < frameSize-1; n++ {
		tqi.frame.Payload[n] = paddingValue
	}
	tqi.frame.Payload[frameSize-1] = byte(makeTail(true, true, true, tid))
	return tqi
}

// newMultiFrameChain splits payload into a linked chain of frames. The last frame
// carries padding and the transfer CRC.
func newMultiFrameChain(deadline Microsecond, canID uint32, tid TID, plMTU int, payload []byte) (head *TxItem) {
	var tail *TxItem
	sizeWithCRC := len(payload) + crcSize
	crc := newCRC().Add(payload)
	toggle := initialToggle
	offset := 0
	for offset < sizeWithCRC {
		frameSize := plMTU + 1
		if sizeWithCRC-offset < plMTU {
			frameSize = roundPayloadSizeUp(sizeWithCRC - offset + 1)
		}
		tqi := newTxItem(deadline, frameSize, canID)
		if head == nil {
			head = tqi
		} else {
			tail.nextInTx = tqi
		}
		tail = tqi

		buf := tqi.frame.Payload[:frameSize-1]
		frameOffset := 0
		if offset < len(payload) {
			n := copy(buf, payload[offset:])
			frameOffset += n
			offset += n
		}
		if offset >= len(payload) {
			// Last frame: padding is covered by the CRC, which goes at the very end.
			for frameOffset+crcSize < len(buf) {
				buf[frameOffset] = paddingValue
				crc = crc.AddByte(paddingValue)
				frameOffset++
			}
			if frameOffset < len(buf) && offset == len(payload) {
				buf[frameOffset] = byte(crc >> 8)
				frameOffset++
				offset++
			}
			if frameOffset < len(buf) && offset > len(payload) {
				buf[frameOffset] = byte(crc)
				frameOffset++
				offset++
			}
		}
		tqi.frame.Payload[frameOffset] = byte(makeTail(head == tail, offset >= sizeWithCRC, toggle, tid))
		toggle = !toggle
	}
	return head
}
