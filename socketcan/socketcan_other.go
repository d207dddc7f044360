//go:build !linux

package socketcan

import "github.com/soypat/cyphal-node/canard"

// Bus is unavailable outside Linux; Dial always fails.
type Bus struct{}

func Dial(iface string) (*Bus, error) { return nil, ErrUnsupported }

func (b *Bus) FD() bool { return false }

func (b *Bus) MTU() int { return canard.MTU_CAN_CLASSIC }

func (b *Bus) Iface() string { return "" }

func (b *Bus) Send(canard.Frame) error { return ErrUnsupported }

func (b *Bus) Receive() (canard.Frame, error) { return canard.Frame{}, ErrUnsupported }

func (b *Bus) Close() error { return ErrUnsupported }
