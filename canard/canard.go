// Package canard implements the Cyphal/CAN transport layer: transfer
// (de)fragmentation, CRC protection, transfer-ID bookkeeping, subscription
// lookup and a priority-ordered transmission queue.
package canard

// Microsecond is a monotonic timestamp or duration in microseconds.
// The time system may be arbitrary as long as the clock is steady.
type Microsecond uint64

type NodeID uint8

// NodeIDUnset marks an anonymous node or a broadcast destination.
const NodeIDUnset NodeID = 0xff

//go:inline
func (n NodeID) IsValid() bool {
	return n.IsSet() || n.IsUnset()
}

//go:inline
func (n NodeID) IsUnset() bool { return n == NodeIDUnset }

//go:inline
func (n NodeID) IsSet() bool { return n <= NODE_ID_MAX }

//go:inline
func (n *NodeID) Unset() { *n = NodeIDUnset }

// PortID is a subject-ID or a service-ID depending on the transfer kind.
type PortID uint16

// PortIDUnset is never a valid subject or service. Handlers whose port could
// not be resolved carry it.
const PortIDUnset PortID = 0xffff

// IsSubject reports whether p is within the subject-ID range.
func (p PortID) IsSubject() bool { return p <= SUBJECT_ID_MAX }

// IsService reports whether p is within the service-ID range.
func (p PortID) IsService() bool { return p <= SERVICE_ID_MAX }

// TID is a transfer-ID.
type TID uint8

// Next returns the transfer-ID following t with wraparound.
func (t TID) Next() TID { return (t + 1) & TRANSFER_ID_MAX }

// Tail is the last byte of a frame payload and contains transfer
// control flow data such as if the transfer is a start/end frame
// and if toggle bit is set.
type Tail byte

func (t Tail) IsToggled() bool { return t&TAIL_TOGGLE != 0 }
func (t Tail) IsStart() bool   { return t&TAIL_START_OF_TRANSFER != 0 }
func (t Tail) IsEnd() bool     { return t&TAIL_END_OF_TRANSFER != 0 }
func (t Tail) TransferID() TID { return TID(t & TRANSFER_ID_MAX) }

func makeTail(start, end, toggle bool, tid TID) Tail {
	tail := Tail(tid & TRANSFER_ID_MAX)
	tail |= Tail(b2i(toggle) << 5)
	tail |= Tail(b2i(end) << 6)
	tail |= Tail(b2i(start) << 7)
	return tail
}

// Frame is a single extended CAN (FD) data frame. Payload includes the tail byte.
type Frame struct {
	ExtendedCANID uint32
	Payload       []byte
}

// Metadata describes a transfer independent of its payload.
type Metadata struct {
	Priority Priority
	TxKind   TxKind
	Port     PortID
	// Remote is the source node for received transfers and the
	// destination node for outgoing service transfers.
	Remote NodeID
	TID    TID
}

// Transfer is a fully reassembled transfer.
type Transfer struct {
	Metadata Metadata
	// The timestamp of the first received CAN frame of this transfer.
	Timestamp Microsecond
	Payload   []byte
}

// frameModel is the parsed representation of a received frame.
type frameModel struct {
	timestamp Microsecond
	priority  Priority
	txKind    TxKind
	port      PortID
	srcNode   NodeID
	dstNode   NodeID
	tid       TID
	txStart   bool
	txEnd     bool
	toggle    bool
	// payload excludes the tail byte.
	payload []byte
}

func (md *Metadata) fromFrame(frame *frameModel) {
	md.Priority = frame.priority
	md.TxKind = frame.txKind
	md.Port = frame.port
	md.Remote = frame.srcNode
	md.TID = frame.tid
}

// CANID is a 29-bit extended CAN identifier carrying a Cyphal session specifier.
type CANID uint32

const canExtIDMask = 1<<29 - 1

func (can CANID) Priority() Priority  { return Priority(can>>offset_Priority) & priorityMask }
func (can CANID) Source() NodeID      { return NodeID(can & NODE_ID_MAX) }
func (can CANID) Destination() NodeID { return NodeID((can >> offset_DstNodeID) & NODE_ID_MAX) }
func (can CANID) IsMessage() bool     { return can&FLAG_SERVICE_NOT_MESSAGE == 0 }
func (can CANID) IsRequest() bool {
	return !can.IsMessage() && can&FLAG_REQUEST_NOT_RESPONSE != 0
}
func (can CANID) IsAnonymous() bool { return can.IsMessage() && can&FLAG_ANONYMOUS_MESSAGE != 0 }

func (can CANID) Kind() TxKind {
	switch {
	case can.IsMessage():
		return TxKindMessage
	case can.IsRequest():
		return TxKindRequest
	}
	return TxKindResponse
}

func (can CANID) PortID() PortID {
	if can.IsMessage() {
		return PortID(can>>offset_SubjectID) & SUBJECT_ID_MAX
	}
	return PortID(can>>offset_ServiceID) & SERVICE_ID_MAX
}

func (m *Metadata) makeCANID(payload []byte, local NodeID, plMTU int) (uint32, error) {
	var out uint32
	switch {
	case m.Priority >= numOfPriorities:
		return 0, ErrInvalidArgument
	case m.TxKind == TxKindMessage && m.Remote.IsUnset() && m.Port.IsSubject():
		if local.IsSet() {
			out = makeMessageSessionSpecifier(m.Port, local)
			break
		}
		if len(payload) > plMTU {
			// Anonymous multi-frame transfers are not allowed.
			return 0, ErrAnonymous
		}
		out = makeMessageSessionSpecifier(m.Port, newNodeID(payload)) | FLAG_ANONYMOUS_MESSAGE
	case m.TxKind.IsService() && m.Remote.IsSet() && m.Port.IsService():
		if !local.IsSet() {
			return 0, ErrAnonymous
		}
		out = makeServiceSessionSpecifier(m.Port, m.TxKind == TxKindRequest, local, m.Remote)
	default:
		return 0, ErrInvalidArgument
	}
	out |= uint32(m.Priority) << offset_Priority
	return out & canExtIDMask, nil
}

func newNodeID(data []byte) NodeID {
	return NodeID(newCRC().Add(data)) & NODE_ID_MAX
}

func makeMessageSessionSpecifier(subject PortID, src NodeID) uint32 {
	aux := uint32(subject) | (SUBJECT_ID_MAX + 1) | ((SUBJECT_ID_MAX + 1) * 2)
	return uint32(src) | aux<<offset_SubjectID
}

func makeServiceSessionSpecifier(service PortID, request bool, src, dst NodeID) uint32 {
	spec := uint32(src) | uint32(dst)<<offset_DstNodeID
	spec |= uint32(service) << offset_ServiceID
	if request {
		spec |= FLAG_REQUEST_NOT_RESPONSE
	}
	return spec | FLAG_SERVICE_NOT_MESSAGE
}

// adjustPresentationLayerMTU clamps mtuBytes to a valid CAN data length and
// subtracts the tail byte.
func adjustPresentationLayerMTU(mtuBytes int) int {
	var mtu int
	switch {
	case mtuBytes < MTU_CAN_CLASSIC:
		mtu = MTU_CAN_CLASSIC
	case mtuBytes <= MTU_CAN_FD:
		mtu = int(canDLCToLength[canLengthToDLC[mtuBytes]])
	default:
		mtu = MTU_CAN_FD
	}
	return mtu - 1
}

func roundPayloadSizeUp(x int) int {
	return int(canDLCToLength[canLengthToDLC[x]])
}
