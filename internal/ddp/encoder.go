// Package ddp encodes pixel buffers as Distributed Display Protocol packets.
package ddp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Port = 4048

	HeaderLen     = 10
	FlagPush      = 0x40
	TypeRGB       = 1
	DefaultID     = 1
	MaxPayload    = 1440
	bytesPerLED   = 3
	LEDsPerPacket = MaxPayload / bytesPerLED
)

var (
	ErrPayloadLength = errors.New("ddp: rgb length is not a multiple of 3")
	ErrShortPacket   = errors.New("ddp: short packet")
)

// Header is the decoded fixed header of one packet.
type Header struct {
	Flags  byte
	Seq    uint8
	Type   byte
	ID     byte
	Offset uint32
	Length uint16
}

func (h Header) Push() bool { return h.Flags&FlagPush != 0 }

// Encode splits rgb into packets of at most MaxPayload bytes. All packets
// carry seq; only the final one has the push flag set. Pixel bytes are
// copied in R,G,B order.
func Encode(rgb []byte, seq uint8) ([][]byte, error) {
	if len(rgb)%bytesPerLED != 0 {
		return nil, fmt.Errorf("%w: %d", ErrPayloadLength, len(rgb))
	}
	if len(rgb) == 0 {
		return nil, nil
	}
	n := (len(rgb) + MaxPayload - 1) / MaxPayload
	packets := make([][]byte, 0, n)
	for off := 0; off < len(rgb); off += MaxPayload {
		end := min(off+MaxPayload, len(rgb))
		h := Header{
			Seq:    seq,
			Type:   TypeRGB,
			ID:     DefaultID,
			Offset: uint32(off),
			Length: uint16(end - off),
		}
		if end == len(rgb) {
			h.Flags = FlagPush
		}
		packets = append(packets, build(h, rgb[off:end]))
	}
	return packets, nil
}

func build(h Header, data []byte) []byte {
	p := make([]byte, HeaderLen+len(data))
	p[0] = h.Flags
	p[1] = h.Seq
	p[2] = h.Type
	p[3] = h.ID
	binary.BigEndian.PutUint32(p[4:], h.Offset)
	binary.BigEndian.PutUint16(p[8:], h.Length)
	copy(p[HeaderLen:], data)
	return p
}

// Parse decodes a packet produced by Encode. The returned data aliases p.
func Parse(p []byte) (Header, []byte, error) {
	if len(p) < HeaderLen {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(p))
	}
	h := Header{
		Flags:  p[0],
		Seq:    p[1],
		Type:   p[2],
		ID:     p[3],
		Offset: binary.BigEndian.Uint32(p[4:]),
		Length: binary.BigEndian.Uint16(p[8:]),
	}
	if HeaderLen+int(h.Length) > len(p) {
		return h, nil, fmt.Errorf("%w: length %d, have %d", ErrShortPacket, h.Length, len(p)-HeaderLen)
	}
	return h, p[HeaderLen : HeaderLen+int(h.Length)], nil
}
