package node

import (
	"fmt"

	"github.com/soypat/cyphal-node/canard"
	"github.com/soypat/cyphal-node/dsdl"
)

// NodeInfoHandler answers uavcan.node.GetInfo.1.0 with a response that is
// serialized once at construction.
type NodeInfoHandler struct {
	ServiceSubscriber
	response [dsdl.GetInfoResponseMaxSize]byte
	size     int
}

// NewNodeInfoHandler fails if info cannot be serialized. A zero protocol
// version is replaced by 1.0.
func NewNodeInfoHandler(ins *canard.Instance, txq *canard.TxQueue, info dsdl.GetInfoResponse) (*NodeInfoHandler, error) {
	if info.ProtocolVersion == (dsdl.Version{}) {
		info.ProtocolVersion = dsdl.Version{Major: 1, Minor: 0}
	}
	h := &NodeInfoHandler{}
	n, err := info.MarshalTo(h.response[:])
	if err != nil {
		return nil, fmt.Errorf("node info %q: %w", info.Name, err)
	}
	h.size = n
	h.BindService(ins, txq, dsdl.GetInfoServiceID)
	return h, nil
}

func (h *NodeInfoHandler) Subscribe() error {
	return h.SubscribeRequest(dsdl.GetInfoRequestExtent)
}

// Dispatch replies with the cached identity regardless of the request content.
func (h *NodeInfoHandler) Dispatch(tr *canard.Transfer) {
	// Push copies the payload, so the cached response is never shared with the queue.
	if err := h.PushResponse(tr, h.response[:h.size]); err != nil {
		return
	}
	h.log.Debug().Uint8("remote", uint8(tr.Metadata.Remote)).Msg("node info served")
}

// Response returns the serialized GetInfo response.
func (h *NodeInfoHandler) Response() []byte {
	return append([]byte(nil), h.response[:h.size]...)
}
