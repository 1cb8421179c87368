package aggregator

import (
	"fmt"
)

// NIA packet layout. Every bulk read returns PacketLength bytes; the number
// of valid sample groups sits at CountOffset and the groups themselves are
// packed from SampleOffset at SampleStride bytes each.
const (
	PacketLength = 64
	CountOffset  = 54
	SampleOffset = 0
	SampleStride = 3

	// MaxSamplesPerPacket is the physical capacity of one packet
	MaxSamplesPerPacket = (PacketLength - SampleOffset) / SampleStride
)

// DecodeError reports a packet the decoder rejected. The packet is dropped
// as a whole; no samples are produced from it.
type DecodeError struct {
	Reason string
	Count  int
	Length int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode packet: %s (count=%d, length=%d)", e.Reason, e.Count, e.Length)
}

// DecodePacket reconstructs the 24-bit unsigned samples carried by one raw
// packet. Each group is little-endian: b0 + b1*256 + b2*65536.
func DecodePacket(raw []byte) ([]uint32, error) {
	if len(raw) < PacketLength {
		return nil, &DecodeError{Reason: "truncated packet", Length: len(raw)}
	}

	count := int(raw[CountOffset])
	if count > MaxSamplesPerPacket {
		return nil, &DecodeError{Reason: "count exceeds packet capacity", Count: count, Length: len(raw)}
	}

	samples := make([]uint32, count)
	for i := 0; i < count; i++ {
		off := SampleOffset + i*SampleStride
		samples[i] = uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16
	}
	return samples, nil
}

// EncodeSamples packs samples into dst using the packet layout and writes
// the count field last. Values above 24 bits are truncated. dst must be at
// least PacketLength bytes and len(samples) at most MaxSamplesPerPacket.
// A group overlapping CountOffset carries the count in that byte, exactly as
// the headset produces it.
func EncodeSamples(dst []byte, samples []uint32) error {
	if len(dst) < PacketLength {
		return fmt.Errorf("encode packet: buffer too small (%d bytes)", len(dst))
	}
	if len(samples) > MaxSamplesPerPacket {
		return fmt.Errorf("encode packet: %d samples exceed capacity %d", len(samples), MaxSamplesPerPacket)
	}

	for i, s := range samples {
		off := SampleOffset + i*SampleStride
		dst[off] = byte(s)
		dst[off+1] = byte(s >> 8)
		dst[off+2] = byte(s >> 16)
	}
	dst[CountOffset] = byte(len(samples))
	return nil
}

// Mean returns the arithmetic mean of the samples, 0 for none
func Mean(samples []uint32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	return sum / float64(len(samples))
}

// ToFloat converts samples for the DSP stages
func ToFloat(samples []uint32) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}
