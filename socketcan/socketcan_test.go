package socketcan

import (
	"encoding/binary"
	"testing"

	"github.com/soypat/cyphal-node/canard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeClassic(t *testing.T) {
	var buf [fdFrameSize]byte
	f := canard.Frame{ExtendedCANID: 0x107D552A, Payload: []byte{1, 2, 3, 0xe0}}
	raw, err := encodeFrame(&buf, &f, false)
	require.NoError(t, err)
	require.Len(t, raw, classicFrameSize)
	assert.Equal(t, uint32(0x107D552A|effFlag), binary.NativeEndian.Uint32(raw[:4]))
	assert.Equal(t, uint8(4), raw[4])
	assert.Equal(t, []byte{1, 2, 3, 0xe0, 0, 0, 0, 0}, raw[headerSize:])

	got, ok := decodeFrame(raw)
	require.True(t, ok)
	assert.Equal(t, f, got)
}

func TestEncodeFD(t *testing.T) {
	var buf [fdFrameSize]byte
	payload := make([]byte, 20)
	payload[19] = 0xe0
	f := canard.Frame{ExtendedCANID: 0x0C00_1234, Payload: payload}

	_, err := encodeFrame(&buf, &f, false)
	assert.ErrorIs(t, err, ErrFrameSize)

	raw, err := encodeFrame(&buf, &f, true)
	require.NoError(t, err)
	require.Len(t, raw, fdFrameSize)
	assert.Equal(t, uint8(fdFlagBRS), raw[5])
	got, ok := decodeFrame(raw)
	require.True(t, ok)
	assert.Equal(t, f, got)

	f.Payload = make([]byte, 65)
	_, err = encodeFrame(&buf, &f, true)
	assert.ErrorIs(t, err, ErrFrameSize)
}

func TestDecodeSkips(t *testing.T) {
	var raw [classicFrameSize]byte
	binary.NativeEndian.PutUint32(raw[:4], 0x123)
	_, ok := decodeFrame(raw[:])
	assert.False(t, ok, "standard identifier")

	binary.NativeEndian.PutUint32(raw[:4], 0x1234|effFlag|rtrFlag)
	_, ok = decodeFrame(raw[:])
	assert.False(t, ok, "remote frame")

	binary.NativeEndian.PutUint32(raw[:4], 0x1234|effFlag|errFlag)
	_, ok = decodeFrame(raw[:])
	assert.False(t, ok, "error frame")

	binary.NativeEndian.PutUint32(raw[:4], 0x1234|effFlag)
	raw[4] = 9
	_, ok = decodeFrame(raw[:])
	assert.False(t, ok, "length beyond classic frame")

	_, ok = decodeFrame(raw[:10])
	assert.False(t, ok, "short read")
}
