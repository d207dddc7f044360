// Package dsdl serializes the standard uavcan.node data types handled by the
// node core. Encoding is little-endian and follows the DSDL implicit
// truncation and zero-extension rules: decoding a short buffer behaves as if
// the missing bytes were zero, and trailing bytes are ignored.
package dsdl

import (
	"encoding/binary"
	"errors"
)

var (
	ErrBufferTooSmall = errors.New("dsdl: buffer too small")
	ErrBadLength      = errors.New("dsdl: array length exceeds capacity")
)

// reader reads little-endian fields with implicit zero extension.
type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() uint8 {
	var v uint8
	if r.off < len(r.buf) {
		v = r.buf[r.off]
	}
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	var b [2]byte
	r.read(b[:])
	return binary.LittleEndian.Uint16(b[:])
}

func (r *reader) u32() uint32 {
	var b [4]byte
	r.read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (r *reader) u64() uint64 {
	var b [8]byte
	r.read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

func (r *reader) read(dst []byte) {
	if r.off < len(r.buf) {
		copy(dst, r.buf[r.off:])
	}
	r.off += len(dst)
}

// bytes reads a variable-length uint8 array with an 8-bit length prefix.
func (r *reader) bytes(capacity int) ([]byte, error) {
	n := int(r.u8())
	if n > capacity {
		return nil, ErrBadLength
	}
	out := make([]byte, n)
	r.read(out)
	return out, nil
}

// writer appends little-endian fields to a caller-provided buffer.
type writer struct {
	buf []byte
	off int
	err error
}

func (w *writer) reserve(n int) []byte {
	if w.err != nil {
		return nil
	}
	if w.off+n > len(w.buf) {
		w.err = ErrBufferTooSmall
		return nil
	}
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b
}

func (w *writer) u8(v uint8) {
	if b := w.reserve(1); b != nil {
		b[0] = v
	}
}

func (w *writer) u16(v uint16) {
	if b := w.reserve(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
}

func (w *writer) u32(v uint32) {
	if b := w.reserve(4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
}

func (w *writer) u64(v uint64) {
	if b := w.reserve(8); b != nil {
		binary.LittleEndian.PutUint64(b, v)
	}
}

func (w *writer) raw(v []byte) {
	if b := w.reserve(len(v)); b != nil {
		copy(b, v)
	}
}

func (w *writer) bytes(v []byte, capacity int) {
	if len(v) > capacity {
		w.err = ErrBadLength
		return
	}
	w.u8(uint8(len(v)))
	w.raw(v)
}

func (w *writer) result() (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	return w.off, nil
}
