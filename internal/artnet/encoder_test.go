package artnet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeader(t *testing.T) {
	ps, err := Encode([]byte{10, 20, 30}, 3, 0)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	p := ps[0]

	assert.Equal(t, []byte("Art-Net\x00"), p[:8])
	assert.Equal(t, []byte{0x00, 0x50}, p[8:10])
	assert.Equal(t, []byte{0x00, 14}, p[10:12])
	assert.Equal(t, byte(0), p[12])
	assert.Equal(t, byte(0), p[13])
	assert.Equal(t, []byte{3, 0}, p[14:16])
	assert.Equal(t, []byte{0, 3}, p[16:18])
	assert.Equal(t, []byte{30, 10, 20}, p[18:])
}

func TestEncodeSplitsUniverses(t *testing.T) {
	leds := 16 * 16
	rgb := make([]byte, leds*3)
	for i := range rgb {
		rgb[i] = byte(i)
	}
	ps, err := Encode(rgb, 7, 0)
	require.NoError(t, err)
	require.Len(t, ps, 2)

	assert.Equal(t, 7, Universe(ps[0]))
	assert.Equal(t, 8, Universe(ps[1]))
	assert.Len(t, Payload(ps[0]), 170*3)
	assert.Len(t, Payload(ps[1]), (leds-170)*3)

	// first LED of the second packet is LED 170
	second := Payload(ps[1])
	src := rgb[170*3:]
	assert.Equal(t, []byte{src[2], src[0], src[1]}, second[:3])
}

func TestEncodeDMXStartPadding(t *testing.T) {
	ps, err := Encode([]byte{1, 2, 3, 4, 5, 6}, 0, 2)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, []byte{0, 8}, ps[0][16:18])
	assert.Equal(t, []byte{0, 0, 3, 1, 2, 6, 4, 5}, Payload(ps[0]))
}

func TestEncodeEmpty(t *testing.T) {
	ps, err := Encode(nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestEncodeShortFrameHighStart(t *testing.T) {
	ps, err := Encode(make([]byte, 64*3), 0, 100)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, []byte{0x01, 0x24}, ps[0][16:18]) // 292
	assert.Len(t, Payload(ps[0]), 292)

	ps, err = Encode([]byte{1, 2, 3}, 0, 509)
	require.NoError(t, err)
	assert.Len(t, Payload(ps[0]), 512)

	ps, err = Encode(nil, 0, 600)
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode([]byte{1, 2}, 0, 0)
	assert.ErrorIs(t, err, ErrPayloadLength)

	_, err = Encode([]byte{1, 2, 3}, 0, 510)
	assert.ErrorIs(t, err, ErrStartAddress)

	// a full 170-LED universe leaves room for two leading bytes only
	_, err = Encode(make([]byte, 171*3), 0, 3)
	assert.ErrorIs(t, err, ErrStartAddress)

	_, err = Encode([]byte{1, 2, 3}, 0, -1)
	assert.ErrorIs(t, err, ErrStartAddress)

	_, err = Encode(make([]byte, 171*3), MaxUniverse, 0)
	assert.ErrorIs(t, err, ErrUniverse)
}

func TestPayloadRejectsForeignPackets(t *testing.T) {
	assert.Nil(t, Payload([]byte("short")))
	assert.Nil(t, Payload(bytes.Repeat([]byte{1}, 30)))
}
