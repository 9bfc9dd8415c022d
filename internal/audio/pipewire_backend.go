package audio

import (
	"fmt"
	"log/slog"
)

// PipeWireBackend implements the Backend interface for PipeWire
type PipeWireBackend struct {
	pipewire   *PipeWire
	target     string
	sampleRate int
}

func NewPipeWireBackend(target string, sampleRate int) *PipeWireBackend {
	return &PipeWireBackend{
		pipewire:   NewPipeWire(),
		target:     target,
		sampleRate: sampleRate,
	}
}

// NewPlayer creates a new pw-play based player
func (p *PipeWireBackend) NewPlayer(cb PlayerCallbacks) Player {
	return NewPipeWirePlayer(cb)
}

// AttachTap creates a pw-record tap on the configured sink monitor. PipeWire
// cannot isolate one stream here, so every tap sees the whole mix.
func (p *PipeWireBackend) AttachTap(sessionID int, onWaveform WaveformFunc) (Tap, error) {
	if onWaveform == nil {
		return nil, fmt.Errorf("waveform callback is required")
	}
	if sessionID != 0 {
		slog.Debug("PipeWire tap ignores session id, capturing sink monitor", "session", sessionID, "target", p.target)
	}
	return NewPipeWireTap(p.target, p.sampleRate, onWaveform), nil
}

// ListSources returns available PipeWire ports
func (p *PipeWireBackend) ListSources() ([]string, error) {
	return p.pipewire.ListPorts()
}

// ValidateSource checks the asset and, when configured, the capture target
func (p *PipeWireBackend) ValidateSource(source string) error {
	if err := ValidateAsset(source); err != nil {
		return err
	}
	if p.target == "" {
		return nil
	}
	return p.pipewire.ValidateNode(p.target)
}

// GetType returns the backend type
func (p *PipeWireBackend) GetType() BackendType {
	return BackendTypePipeWire
}
