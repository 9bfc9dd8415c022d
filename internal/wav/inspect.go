package wav

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

// Info summarizes an existing container.
type Info struct {
	Path       string
	FileSize   int64
	Header     Header
	Format     *audio.Format
	BitDepth   int
	Frames     int
	DataLength int64
	Duration   time.Duration
	// Peak is the largest distance from silence seen in the payload, in sample units.
	Peak int
}

// Inspect opens path, checks it with an independent decoder and reports what
// it holds.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open container: %w", ErrIO, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat container: %w", ErrIO, err)
	}

	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, raw); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is %d bytes", ErrInvalidHeader, st.Size())
		}
		return nil, fmt.Errorf("%w: read header: %w", ErrIO, err)
	}
	hdr, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}

	peak, err := payloadPeak(f, hdr)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: rewind container: %w", ErrIO, err)
	}
	d := gowav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: decoder rejected %s", ErrInvalidHeader, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %w", ErrIO, err)
	}

	info := &Info{
		Path:       path,
		FileSize:   st.Size(),
		Header:     hdr,
		Format:     buf.Format,
		BitDepth:   int(d.BitDepth),
		Frames:     buf.NumFrames(),
		DataLength: int64(hdr.DataLength),
		Peak:       peak,
	}
	if hdr.ByteRate > 0 {
		info.Duration = time.Duration(float64(hdr.DataLength) / float64(hdr.ByteRate) * float64(time.Second))
	}
	return info, nil
}

// payloadPeak scans the payload following the header. 8-bit samples are
// unsigned around 128, wider ones are signed little-endian.
func payloadPeak(r io.Reader, hdr Header) (int, error) {
	width := int(hdr.BitDepth) / 8
	if width < 1 || width > 4 {
		return 0, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidHeader, hdr.BitDepth)
	}

	br := bufio.NewReader(io.LimitReader(r, int64(hdr.DataLength)))
	sample := make([]byte, width)
	peak := 0
	for {
		if _, err := io.ReadFull(br, sample); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return peak, nil
			}
			return 0, fmt.Errorf("%w: read payload: %w", ErrIO, err)
		}
		v := decodeSample(sample)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
}

func decodeSample(b []byte) int {
	switch len(b) {
	case 1:
		return int(b[0]) - 128
	case 2:
		return int(int16(uint16(b[0]) | uint16(b[1])<<8))
	case 3:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
		if v&0x800000 != 0 {
			v |= ^0xffffff
		}
		return int(v)
	default:
		return int(int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24))
	}
}
