package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedAsset is returned for files the decoders do not handle.
var ErrUnsupportedAsset = errors.New("unsupported audio asset")

// AssetInfo describes a decodable playback asset.
type AssetInfo struct {
	Path       string
	SampleRate int
	Channels   int
	Precision  int
	Duration   time.Duration
}

type asset struct {
	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
}

func openAsset(path string) (*asset, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".wav" && ext != ".mp3" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset: %w", err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode asset %s: %w", path, err)
	}

	return &asset{file: f, streamer: streamer, format: format}, nil
}

func (a *asset) Close() error {
	err := a.streamer.Close()
	// the decoders may already have closed the file
	a.file.Close()
	return err
}

// ProbeAsset decodes the header of path and reports its format.
func ProbeAsset(path string) (*AssetInfo, error) {
	a, err := openAsset(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return &AssetInfo{
		Path:       path,
		SampleRate: int(a.format.SampleRate),
		Channels:   a.format.NumChannels,
		Precision:  a.format.Precision,
		Duration:   a.format.SampleRate.D(a.streamer.Len()),
	}, nil
}

// ValidateAsset checks that path exists and can be decoded.
func ValidateAsset(path string) error {
	if path == "" {
		return fmt.Errorf("no playback source configured")
	}
	_, err := ProbeAsset(path)
	return err
}

func mediaErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedAsset):
		return MediaErrorUnsupported
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return MediaErrorIO
	default:
		return MediaErrorMalformed
	}
}
