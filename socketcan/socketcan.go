// Package socketcan sends and receives Cyphal frames through a Linux raw CAN
// socket. CAN FD is used when the interface supports it.
package socketcan

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/soypat/cyphal-node/canard"
)

var (
	ErrClosed      = errors.New("socketcan: closed")
	ErrUnsupported = errors.New("socketcan: not supported on this platform")
	ErrFrameSize   = errors.New("socketcan: payload exceeds interface MTU")
)

// Layout of struct can_frame and struct canfd_frame from linux/can.h.
const (
	classicFrameSize = 16
	fdFrameSize      = 72
	headerSize       = 8

	effFlag = 0x80000000
	rtrFlag = 0x40000000
	errFlag = 0x20000000
	effMask = 0x1fffffff

	fdFlagBRS = 0x01
)

// encodeFrame writes f into buf as a can_frame, or as a canfd_frame with
// bit rate switching when the payload does not fit a classic frame. fd
// reports whether the socket accepts CAN FD frames.
func encodeFrame(buf *[fdFrameSize]byte, f *canard.Frame, fd bool) ([]byte, error) {
	n := len(f.Payload)
	switch {
	case n > canard.MTU_CAN_FD:
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameSize, n)
	case n > canard.MTU_CAN_CLASSIC && !fd:
		return nil, fmt.Errorf("%w: %d bytes on classic CAN", ErrFrameSize, n)
	}
	*buf = [fdFrameSize]byte{}
	binary.NativeEndian.PutUint32(buf[0:4], f.ExtendedCANID&effMask|effFlag)
	buf[4] = uint8(n)
	copy(buf[headerSize:], f.Payload)
	if n > canard.MTU_CAN_CLASSIC {
		buf[5] = fdFlagBRS
		return buf[:fdFrameSize], nil
	}
	return buf[:classicFrameSize], nil
}

// decodeFrame parses a can_frame or canfd_frame read from the socket. It
// reports false for standard, remote and error frames, which Cyphal ignores.
func decodeFrame(raw []byte) (canard.Frame, bool) {
	if len(raw) != classicFrameSize && len(raw) != fdFrameSize {
		return canard.Frame{}, false
	}
	id := binary.NativeEndian.Uint32(raw[0:4])
	if id&effFlag == 0 || id&(rtrFlag|errFlag) != 0 {
		return canard.Frame{}, false
	}
	n := int(raw[4])
	if n > len(raw)-headerSize {
		return canard.Frame{}, false
	}
	payload := make([]byte, n)
	copy(payload, raw[headerSize:headerSize+n])
	return canard.Frame{ExtendedCANID: id & effMask, Payload: payload}, true
}
