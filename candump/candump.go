// Package candump reads and writes CAN traffic in the log format of
// can-utils' candump -L:
//
//	(1618392022.123456) can0 107D552A#0000000000E0
//	(1618392022.123789) can0 107D552A##10000000000E0
//
// The first form is a classic frame and the second a CAN FD frame whose
// flags nibble follows the double hash. Cyphal uses extended identifiers
// only, so standard 11-bit identifiers are rejected.
package candump

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/soypat/cyphal-node/canard"
)

var (
	ErrSyntax     = errors.New("candump: malformed line")
	ErrStandardID = errors.New("candump: standard identifier")
	ErrRemote     = errors.New("candump: remote frame")
)

// Record is one logged frame.
type Record struct {
	Time  time.Time
	Iface string
	// FD marks a CAN FD frame; Flags holds its BRS/ESI nibble.
	FD    bool
	Flags uint8
	Frame canard.Frame
}

// Parse decodes a single log line.
func Parse(line string) (Record, error) {
	var rec Record
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return rec, fmt.Errorf("%w: want 3 fields, got %d", ErrSyntax, len(fields))
	}
	ts, err := parseTime(fields[0])
	if err != nil {
		return rec, err
	}
	rec.Time = ts
	rec.Iface = fields[1]

	id, data, ok := strings.Cut(fields[2], "#")
	if !ok {
		return rec, fmt.Errorf("%w: missing '#' in %q", ErrSyntax, fields[2])
	}
	if len(id) != 8 {
		return rec, fmt.Errorf("%w: %q", ErrStandardID, id)
	}
	canID, err := strconv.ParseUint(id, 16, 32)
	if err != nil || canID >= 1<<29 {
		return rec, fmt.Errorf("%w: identifier %q", ErrSyntax, id)
	}
	rec.Frame.ExtendedCANID = uint32(canID)

	switch {
	case strings.HasPrefix(data, "#"):
		if len(data) < 2 {
			return rec, fmt.Errorf("%w: missing FD flags", ErrSyntax)
		}
		flags, err := strconv.ParseUint(data[1:2], 16, 8)
		if err != nil {
			return rec, fmt.Errorf("%w: FD flags %q", ErrSyntax, data[1:2])
		}
		rec.FD = true
		rec.Flags = uint8(flags)
		data = data[2:]
	case strings.HasPrefix(data, "R"):
		return rec, ErrRemote
	}
	payload, err := hex.DecodeString(data)
	if err != nil {
		return rec, fmt.Errorf("%w: payload: %v", ErrSyntax, err)
	}
	maxLen := canard.MTU_CAN_CLASSIC
	if rec.FD {
		maxLen = canard.MTU_CAN_FD
	}
	if len(payload) > maxLen {
		return rec, fmt.Errorf("%w: %d byte payload", ErrSyntax, len(payload))
	}
	rec.Frame.Payload = payload
	return rec, nil
}

func parseTime(field string) (time.Time, error) {
	if len(field) < 3 || field[0] != '(' || field[len(field)-1] != ')' {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrSyntax, field)
	}
	secs, frac, _ := strings.Cut(field[1:len(field)-1], ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrSyntax, field)
	}
	var usec int64
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		usec, err = strconv.ParseInt(frac+strings.Repeat("0", 6-len(frac)), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrSyntax, field)
		}
	}
	return time.Unix(sec, usec*1000), nil
}

// AppendFormat appends the log line of r, without a newline, to dst.
func (r *Record) AppendFormat(dst []byte) []byte {
	usec := r.Time.UnixMicro()
	dst = append(dst, '(')
	dst = strconv.AppendInt(dst, usec/1_000_000, 10)
	dst = append(dst, '.')
	frac := strconv.FormatInt(usec%1_000_000, 10)
	for i := len(frac); i < 6; i++ {
		dst = append(dst, '0')
	}
	dst = append(dst, frac...)
	dst = append(dst, ") "...)
	dst = append(dst, r.Iface...)
	dst = append(dst, ' ')
	dst = fmt.Appendf(dst, "%08X", r.Frame.ExtendedCANID)
	dst = append(dst, '#')
	if r.FD {
		dst = append(dst, '#', "0123456789ABCDEF"[r.Flags&0xf])
	}
	return append(dst, strings.ToUpper(hex.EncodeToString(r.Frame.Payload))...)
}

func (r *Record) String() string { return string(r.AppendFormat(nil)) }

// Reader reads records from a candump log, skipping blank lines.
type Reader struct {
	s    *bufio.Scanner
	line int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{s: bufio.NewScanner(r)}
}

// Next returns the next record or io.EOF at the end of input.
func (r *Reader) Next() (Record, error) {
	for r.s.Scan() {
		r.line++
		line := strings.TrimSpace(r.s.Text())
		if line == "" {
			continue
		}
		rec, err := Parse(line)
		if err != nil {
			return rec, fmt.Errorf("line %d: %w", r.line, err)
		}
		return rec, nil
	}
	if err := r.s.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

// Writer writes records as candump log lines.
type Writer struct {
	w   io.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(r *Record) error {
	w.buf = append(r.AppendFormat(w.buf[:0]), '\n')
	_, err := w.w.Write(w.buf)
	return err
}
