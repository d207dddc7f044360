//go:build linux

package socketcan

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/soypat/cyphal-node/canard"
	"golang.org/x/sys/unix"
)

// pollInterval bounds how long Receive blocks before checking for Close.
const pollInterval = 100 * time.Millisecond

// Bus is a raw CAN socket bound to one interface. Send and Receive may be
// called from different goroutines.
type Bus struct {
	fd     int
	iface  string
	canFD  bool
	closed atomic.Bool
	rxbuf  [fdFrameSize]byte
	txbuf  [fdFrameSize]byte
}

// Dial opens a raw CAN socket on iface, such as "can0" or "vcan0".
func Dial(iface string) (*Bus, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan: %w", err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: socket: %w", err)
	}
	b := &Bus{fd: fd, iface: iface}
	// Interfaces with a classic MTU reject the option; they stay classic.
	b.canFD = unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1) == nil && ifi.MTU >= fdFrameSize
	tv := unix.NsecToTimeval(pollInterval.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: receive timeout: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind %s: %w", iface, err)
	}
	return b, nil
}

// FD reports whether the interface carries CAN FD frames.
func (b *Bus) FD() bool { return b.canFD }

// MTU returns the largest frame payload the interface accepts.
func (b *Bus) MTU() int {
	if b.canFD {
		return canard.MTU_CAN_FD
	}
	return canard.MTU_CAN_CLASSIC
}

func (b *Bus) Iface() string { return b.iface }

// Send writes one frame. It must not be called concurrently with itself.
func (b *Bus) Send(f canard.Frame) error {
	if b.closed.Load() {
		return ErrClosed
	}
	raw, err := encodeFrame(&b.txbuf, &f, b.canFD)
	if err != nil {
		return err
	}
	_, err = unix.Write(b.fd, raw)
	if err != nil {
		return fmt.Errorf("socketcan: write %s: %w", b.iface, err)
	}
	return nil
}

// Receive blocks until a Cyphal frame arrives or the bus is closed. Standard,
// remote and error frames are skipped.
func (b *Bus) Receive() (canard.Frame, error) {
	for {
		if b.closed.Load() {
			return canard.Frame{}, ErrClosed
		}
		n, err := unix.Read(b.fd, b.rxbuf[:])
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			if b.closed.Load() {
				return canard.Frame{}, ErrClosed
			}
			return canard.Frame{}, fmt.Errorf("socketcan: read %s: %w", b.iface, err)
		}
		if f, ok := decodeFrame(b.rxbuf[:n]); ok {
			return f, nil
		}
	}
}

// Close releases the socket. A blocked Receive returns ErrClosed within
// pollInterval.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	return unix.Close(b.fd)
}
