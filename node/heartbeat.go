package node

import (
	"github.com/soypat/cyphal-node/canard"
	"github.com/soypat/cyphal-node/dsdl"
)

// LivenessTracker consumes heartbeats published by other nodes.
type LivenessTracker interface {
	ObserveHeartbeat(src canard.NodeID, hb dsdl.Heartbeat, ts canard.Microsecond)
}

// HeartbeatHandler ingests uavcan.node.Heartbeat.1.0 messages and forwards
// them to a LivenessTracker. It keeps no peer state of its own.
type HeartbeatHandler struct {
	Subscriber
	tracker LivenessTracker
}

func NewHeartbeatHandler(ins *canard.Instance, txq *canard.TxQueue, tracker LivenessTracker) *HeartbeatHandler {
	h := &HeartbeatHandler{tracker: tracker}
	h.BindMessage(ins, txq, dsdl.HeartbeatSubjectID)
	return h
}

func (h *HeartbeatHandler) Subscribe() error {
	return h.SubscribeMessage(dsdl.HeartbeatExtent)
}

func (h *HeartbeatHandler) Dispatch(tr *canard.Transfer) {
	src := tr.Metadata.Remote
	if !src.IsSet() {
		h.log.Debug().Msg("anonymous heartbeat ignored")
		return
	}
	var hb dsdl.Heartbeat
	if err := hb.Unmarshal(tr.Payload); err != nil {
		h.log.Debug().Err(err).Uint8("src", uint8(src)).Msg("heartbeat dropped")
		return
	}
	if h.tracker != nil {
		h.tracker.ObserveHeartbeat(src, hb, tr.Timestamp)
	}
}
