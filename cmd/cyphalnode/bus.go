package main

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/soypat/cyphal-node/canard"
	"github.com/soypat/cyphal-node/candump"
	"github.com/soypat/cyphal-node/socketcan"
)

// bus is a CAN interface. Send and Receive are called from different
// goroutines.
type bus interface {
	Send(canard.Frame) error
	Receive() (canard.Frame, error)
	Close() error
	MTU() int
}

// streamBus reads candump lines from r and writes sent frames to w, so a node
// can be driven from a log or piped into candump-compatible tools.
type streamBus struct {
	iface string
	mtu   int
	rd    *candump.Reader
	mu    sync.Mutex
	wr    *candump.Writer
	c     io.Closer
}

func newStreamBus(iface string, r io.Reader, w io.Writer, mtu int) *streamBus {
	b := &streamBus{iface: iface, mtu: mtu, rd: candump.NewReader(r), wr: candump.NewWriter(w)}
	if c, ok := r.(io.Closer); ok {
		b.c = c
	}
	return b
}

func (b *streamBus) Send(f canard.Frame) error {
	rec := candump.Record{
		Time:  time.Now(),
		Iface: b.iface,
		FD:    b.mtu > canard.MTU_CAN_CLASSIC,
		Frame: f,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wr.Write(&rec)
}

func (b *streamBus) Receive() (canard.Frame, error) {
	rec, err := b.rd.Next()
	if err != nil {
		return canard.Frame{}, err
	}
	return rec.Frame, nil
}

func (b *streamBus) Close() error {
	if b.c != nil {
		return b.c.Close()
	}
	return nil
}

func (b *streamBus) MTU() int { return b.mtu }

func openBus(iface string, stdin io.Reader, stdout io.Writer, mtu int) (bus, error) {
	if iface == "-" {
		return newStreamBus("can0", stdin, stdout, mtu), nil
	}
	b, err := socketcan.Dial(iface)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// isClosed reports whether err marks the normal end of a bus.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, socketcan.ErrClosed)
}
