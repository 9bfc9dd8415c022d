package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/playcapture/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeSoftware BackendType = "software"
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeAuto     BackendType = "auto"
)

var (
	// ErrUnknownSession is returned when a tap is attached to a session the output mix does not know.
	ErrUnknownSession = errors.New("unknown audio session")
	// ErrTapReleased is returned by operations on a released tap.
	ErrTapReleased = errors.New("tap already released")
)

// WaveformFunc receives one capture window of unsigned 8-bit samples and the
// sampling rate the platform reports for it. The chunk is only valid for the
// duration of the call.
type WaveformFunc func(chunk []byte, samplingRate int)

// Tap observes the samples an audio session renders to the output mix.
type Tap interface {
	// SetCaptureWindow sets the number of samples per delivered chunk. Only
	// valid while the tap is disabled.
	SetCaptureWindow(size int) error
	CaptureWindowRange() (min, max int)
	Enable() error
	// Release disables and frees the tap. Safe to call more than once and on
	// a tap that was never enabled.
	Release() error
}

// Backend defines the interface for audio backend implementations
type Backend interface {
	// Create a new player; callbacks fire on backend goroutines
	NewPlayer(cb PlayerCallbacks) Player

	// Attach a waveform tap to a playback session, 0 meaning the whole output mix
	AttachTap(sessionID int, onWaveform WaveformFunc) (Tap, error)

	// List available capture sources
	ListSources() ([]string, error)

	// Validate that a playback asset can be played by this backend
	ValidateSource(source string) error

	// Get the backend type
	GetType() BackendType
}

// NewBackend creates the backend selected by configuration
func NewBackend(cfg *config.Config) (Backend, error) {
	backendType := determineBackend(cfg)

	switch backendType {
	case BackendTypePipeWire:
		return NewPipeWireBackend(cfg.Playback.Target, cfg.Capture.SampleRate), nil
	case BackendTypeSoftware:
		return NewSoftwareBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", backendType)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Playback.Backend) {
	case "pipewire":
		return BackendTypePipeWire
	case "software":
		return BackendTypeSoftware
	case "", "auto":
		// PipeWire only when the user pointed us at a sink and the tools exist
		if cfg.Playback.Target != "" && pipeWireToolsAvailable() {
			return BackendTypePipeWire
		}
		return BackendTypeSoftware
	}

	slog.Warn("Unknown audio backend, falling back to software", "backend", cfg.Playback.Backend)
	return BackendTypeSoftware
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	backends := []BackendType{BackendTypeSoftware}

	if pipeWireToolsAvailable() {
		backends = append(backends, BackendTypePipeWire)
	}

	return backends
}

func pipeWireToolsAvailable() bool {
	for _, tool := range []string{"pw-play", "pw-record", "pw-link"} {
		if _, err := exec.LookPath(tool); err != nil {
			return false
		}
	}
	return true
}
