package wav

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const copyBufferSize = 32 * 1024

// Write emits the header for dataLength bytes followed by exactly dataLength
// bytes read from src.
func Write(dst io.Writer, src io.Reader, dataLength int64, p Params) error {
	if dataLength <= 0 {
		return ErrEmptySource
	}
	if err := p.validate(); err != nil {
		return err
	}

	if _, err := dst.Write(EncodeHeader(dataLength, p)); err != nil {
		return fmt.Errorf("%w: write header: %w", ErrIO, err)
	}
	if _, err := io.CopyN(dst, src, dataLength); err != nil {
		return fmt.Errorf("%w: copy payload: %w", ErrIO, err)
	}
	return nil
}

// WriteContainer wraps the raw file at rawPath into a container at dstPath and
// returns the number of bytes written.
//
// An empty or missing payload yields ErrEmptySource and leaves dstPath
// untouched. Any other failure wraps ErrIO; the destination may then hold a
// partial file which callers should treat as corrupt.
func WriteContainer(rawPath, dstPath string, p Params) (int64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}

	src, err := os.Open(rawPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s does not exist", ErrEmptySource, rawPath)
		}
		return 0, fmt.Errorf("%w: open raw source: %w", ErrIO, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat raw source: %w", ErrIO, err)
	}
	dataLength := info.Size()
	if dataLength == 0 {
		return 0, ErrEmptySource
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return 0, fmt.Errorf("%w: create container: %w", ErrIO, err)
	}

	w := bufio.NewWriterSize(dst, copyBufferSize)
	if err := Write(w, bufio.NewReaderSize(src, copyBufferSize), dataLength, p); err != nil {
		dst.Close()
		return 0, err
	}
	if err := w.Flush(); err != nil {
		dst.Close()
		return 0, fmt.Errorf("%w: flush container: %w", ErrIO, err)
	}
	if err := dst.Close(); err != nil {
		return 0, fmt.Errorf("%w: close container: %w", ErrIO, err)
	}

	total := HeaderSize + dataLength
	slog.Debug("Container written", "raw", rawPath, "container", dstPath,
		"data_bytes", dataLength, "sample_rate", p.SampleRate, "channels", p.Channels, "bit_depth", p.BitDepth)
	return total, nil
}
