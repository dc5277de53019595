// Package packet implements the sample datagram wire format:
//
//	[seq: u16 LE][sample_0: u32 LE]...[sample_{N-1}: u32 LE]
//
// N is fixed for the lifetime of a stream session.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	HeaderLen = 2
	SampleLen = 4

	// DefaultSamplesPerPacket gives the classic 1026-byte packet.
	DefaultSamplesPerPacket = 256
)

var (
	ErrInvalidSampleCount = errors.New("packet: samples per packet must be positive")
	ErrMalformed          = errors.New("packet: malformed datagram")
)

// Size returns the encoded length of a packet carrying n samples.
func Size(n int) int {
	return HeaderLen + SampleLen*n
}

// Append encodes a packet onto dst and returns the extended slice.
func Append(dst []byte, seq uint16, samples []uint32) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, seq)
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, s)
	}
	return dst
}

// Assemble encodes a packet into a freshly allocated slice.
func Assemble(seq uint16, samples []uint32) []byte {
	return Append(make([]byte, 0, Size(len(samples))), seq, samples)
}

// Parse decodes a datagram. The sample slice is appended to dst.
func Parse(b []byte, dst []uint32) (uint16, []uint32, error) {
	if len(b) < HeaderLen || (len(b)-HeaderLen)%SampleLen != 0 {
		return 0, dst, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	seq := binary.LittleEndian.Uint16(b)
	for off := HeaderLen; off < len(b); off += SampleLen {
		dst = append(dst, binary.LittleEndian.Uint32(b[off:]))
	}
	return seq, dst, nil
}

// Assembler holds the per-session sample count.
type Assembler struct {
	samples int
}

// NewAssembler validates the sample count once, at configuration time.
func NewAssembler(samplesPerPacket int) (*Assembler, error) {
	if samplesPerPacket <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleCount, samplesPerPacket)
	}
	return &Assembler{samples: samplesPerPacket}, nil
}

// Samples returns the number of samples carried by each packet.
func (a *Assembler) Samples() int { return a.samples }

// Size returns the encoded length of every packet this assembler produces.
func (a *Assembler) Size() int { return Size(a.samples) }

// Append encodes seq and exactly Samples() samples onto dst. Extra samples
// are ignored; a short batch is a caller bug and panics.
func (a *Assembler) Append(dst []byte, seq uint16, samples []uint32) []byte {
	return Append(dst, seq, samples[:a.samples])
}
