// Package wav builds the canonical 44-byte PCM WAV container around raw
// captured samples.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the length of the canonical PCM header.
const HeaderSize = 44

const (
	fmtChunkSize = 16
	formatPCM    = 1
)

var (
	// ErrEmptySource is returned when there are no raw bytes to wrap.
	ErrEmptySource = errors.New("raw source is empty")
	// ErrIO marks read/write failures while building a container.
	ErrIO = errors.New("container i/o failure")
	// ErrInvalidHeader is returned by ParseHeader for anything that is not a canonical PCM header.
	ErrInvalidHeader = errors.New("invalid wav header")
)

// Params describes the sample layout of the raw payload.
type Params struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// BytesPerSample is the size of one sample of one channel.
func (p Params) BytesPerSample() int {
	return p.BitDepth / 8
}

// ByteRate is sampleRate * channels * bytesPerSample.
func (p Params) ByteRate() int {
	return p.SampleRate * p.Channels * p.BytesPerSample()
}

// BlockAlign is channels * bytesPerSample.
func (p Params) BlockAlign() int {
	return p.Channels * p.BytesPerSample()
}

func (p Params) validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	if p.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", p.Channels)
	}
	if p.BitDepth <= 0 || p.BitDepth%8 != 0 {
		return fmt.Errorf("bit depth must be a positive multiple of 8, got %d", p.BitDepth)
	}
	return nil
}

// Header is the decoded form of the 44-byte header.
type Header struct {
	RiffChunkSize uint32
	FmtChunkSize  uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitDepth      uint16
	DataLength    uint32
}

// Params returns the layout described by the header.
func (h Header) Params() Params {
	return Params{
		SampleRate: int(h.SampleRate),
		Channels:   int(h.Channels),
		BitDepth:   int(h.BitDepth),
	}
}

// EncodeHeader returns the header for dataLength bytes of payload.
// Every field is little-endian and truncated to its width; payloads of
// 4 GiB and beyond do not fit and wrap around.
func EncodeHeader(dataLength int64, p Params) []byte {
	h := make([]byte, HeaderSize)
	le := binary.LittleEndian

	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], uint32(dataLength+36))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], fmtChunkSize)
	le.PutUint16(h[20:22], formatPCM)
	le.PutUint16(h[22:24], uint16(p.Channels))
	le.PutUint32(h[24:28], uint32(p.SampleRate))
	le.PutUint32(h[28:32], uint32(p.ByteRate()))
	le.PutUint16(h[32:34], uint16(p.BlockAlign()))
	le.PutUint16(h[34:36], uint16(p.BitDepth))
	copy(h[36:40], "data")
	le.PutUint32(h[40:44], uint32(dataLength))

	return h
}

// ParseHeader decodes a header produced by EncodeHeader.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidHeader, HeaderSize, len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Header{}, fmt.Errorf("%w: missing RIFF/WAVE tags", ErrInvalidHeader)
	}
	if string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return Header{}, fmt.Errorf("%w: missing fmt/data chunk ids", ErrInvalidHeader)
	}

	le := binary.LittleEndian
	h := Header{
		RiffChunkSize: le.Uint32(b[4:8]),
		FmtChunkSize:  le.Uint32(b[16:20]),
		AudioFormat:   le.Uint16(b[20:22]),
		Channels:      le.Uint16(b[22:24]),
		SampleRate:    le.Uint32(b[24:28]),
		ByteRate:      le.Uint32(b[28:32]),
		BlockAlign:    le.Uint16(b[32:34]),
		BitDepth:      le.Uint16(b[34:36]),
		DataLength:    le.Uint32(b[40:44]),
	}
	if h.FmtChunkSize != fmtChunkSize || h.AudioFormat != formatPCM {
		return Header{}, fmt.Errorf("%w: not a PCM fmt chunk (size %d, format %d)", ErrInvalidHeader, h.FmtChunkSize, h.AudioFormat)
	}
	return h, nil
}
