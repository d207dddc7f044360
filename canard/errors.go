package canard

import (
	"errors"
	"strconv"
)

var (
	ErrInvalidArgument = errors.New("canard: invalid argument")
	ErrInvalidFrame    = errors.New("canard: invalid frame")
	ErrBadDstAddr      = errors.New("canard: bad destination address on frame")
	ErrInvalidNodeID   = errors.New("canard: node id must be in 0.." + strconv.FormatUint(NODE_ID_MAX, 10))
	ErrNoMatchingSub   = errors.New("canard: no matching subscription")
	ErrBadTransferID   = errors.New("canard: transfer id must be in 0.." + strconv.FormatUint(TRANSFER_ID_MAX, 10))
	ErrTransferKind    = errors.New("canard: undefined transfer kind")
	ErrQueueFull       = errors.New("canard: tx queue capacity exceeded")
	ErrAnonymous       = errors.New("canard: anonymous node cannot emit this transfer")

	errEmptyPayload = errors.New("canard: empty or nil payload")
)
