// Package artnet builds ArtDMX packets for LED strips driven as DMX universes.
package artnet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Port = 6454

	HeaderLen     = 18
	OpDMX         = 0x5000
	ProtocolVer   = 14
	MaxChannels   = 512
	LEDsPerPacket = 170
	MaxUniverse   = 0x7FFF
	bytesPerLED   = 3
)

var (
	ErrStartAddress  = errors.New("artnet: dmx start address out of range")
	ErrPayloadLength = errors.New("artnet: rgb length is not a multiple of 3")
	ErrUniverse      = errors.New("artnet: universe out of range")
)

var id = [8]byte{'A', 'r', 't', '-', 'N', 'e', 't', 0}

// Encode splits an RGB buffer into ArtDMX packets of at most 170 LEDs.
// Packet k addresses universe universeBase+k. Each payload starts with
// dmxStart zero bytes followed by the LEDs in B,R,G order.
func Encode(rgb []byte, universeBase, dmxStart int) ([][]byte, error) {
	if len(rgb)%bytesPerLED != 0 {
		return nil, fmt.Errorf("%w: %d", ErrPayloadLength, len(rgb))
	}
	leds := len(rgb) / bytesPerLED
	if leds == 0 {
		return nil, nil
	}
	if err := CheckStart(dmxStart, leds); err != nil {
		return nil, err
	}
	n := (leds + LEDsPerPacket - 1) / LEDsPerPacket
	if universeBase < 0 || universeBase+n-1 > MaxUniverse {
		return nil, fmt.Errorf("%w: %d..%d", ErrUniverse, universeBase, universeBase+n-1)
	}

	packets := make([][]byte, 0, n)
	for k := 0; k < n; k++ {
		first := k * LEDsPerPacket
		count := min(LEDsPerPacket, leds-first)
		packets = append(packets, build(universeBase+k, dmxStart, rgb[first*bytesPerLED:(first+count)*bytesPerLED]))
	}
	return packets, nil
}

// CheckStart reports whether dmxStart leaves room in one universe for the
// largest packet a strip of leds LEDs produces.
func CheckStart(dmxStart, leds int) error {
	if dmxStart < 0 || dmxStart+bytesPerLED*min(leds, LEDsPerPacket) > MaxChannels {
		return fmt.Errorf("%w: %d with %d leds", ErrStartAddress, dmxStart, leds)
	}
	return nil
}

func build(universe, dmxStart int, rgb []byte) []byte {
	length := dmxStart + len(rgb)
	p := make([]byte, HeaderLen+length)
	copy(p, id[:])
	binary.LittleEndian.PutUint16(p[8:], OpDMX)
	binary.BigEndian.PutUint16(p[10:], ProtocolVer)
	p[12] = 0 // sequence
	p[13] = 0 // physical
	binary.LittleEndian.PutUint16(p[14:], uint16(universe))
	binary.BigEndian.PutUint16(p[16:], uint16(length))

	out := p[HeaderLen+dmxStart:]
	for i := 0; i+2 < len(rgb); i += bytesPerLED {
		out[i] = rgb[i+2]
		out[i+1] = rgb[i]
		out[i+2] = rgb[i+1]
	}
	return p
}

// Universe reads the universe field of an ArtDMX packet.
func Universe(p []byte) int {
	if len(p) < HeaderLen {
		return -1
	}
	return int(binary.LittleEndian.Uint16(p[14:]))
}

// Payload returns the DMX data of an ArtDMX packet, or nil if p is not one.
func Payload(p []byte) []byte {
	if len(p) < HeaderLen || string(p[:8]) != string(id[:]) || binary.LittleEndian.Uint16(p[8:]) != OpDMX {
		return nil
	}
	n := int(binary.BigEndian.Uint16(p[16:]))
	if HeaderLen+n > len(p) {
		return nil
	}
	return p[HeaderLen : HeaderLen+n]
}
