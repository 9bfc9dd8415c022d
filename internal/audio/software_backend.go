package audio

import (
	"fmt"
	"sort"
	"time"
)

const defaultChunkDuration = 20 * time.Millisecond

// SoftwareBackend renders assets into an in-process output mix instead of a
// sound device. Taps read back exactly what was rendered.
type SoftwareBackend struct {
	mix      *Mix
	chunk    time.Duration
	realtime bool
}

type SoftwareOption func(*SoftwareBackend)

// WithChunkDuration sets how much audio each render step produces.
func WithChunkDuration(d time.Duration) SoftwareOption {
	return func(b *SoftwareBackend) {
		if d > 0 {
			b.chunk = d
		}
	}
}

// WithRealtime paces rendering against the wall clock. Without it assets are
// rendered as fast as the taps consume them and no frame is dropped.
func WithRealtime(realtime bool) SoftwareOption {
	return func(b *SoftwareBackend) { b.realtime = realtime }
}

func NewSoftwareBackend(opts ...SoftwareOption) *SoftwareBackend {
	b := &SoftwareBackend{
		chunk:    defaultChunkDuration,
		realtime: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.mix = NewMix(!b.realtime)
	return b
}

// Mix exposes the output mix the backend renders into.
func (b *SoftwareBackend) Mix() *Mix {
	return b.mix
}

func (b *SoftwareBackend) NewPlayer(cb PlayerCallbacks) Player {
	return newSoftwarePlayer(b.mix, cb, b.chunk, b.realtime)
}

func (b *SoftwareBackend) AttachTap(sessionID int, onWaveform WaveformFunc) (Tap, error) {
	if onWaveform == nil {
		return nil, fmt.Errorf("waveform callback is required")
	}
	if sessionID < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSession, sessionID)
	}
	if sessionID != 0 && !b.mix.HasSession(sessionID) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSession, sessionID)
	}
	return newSoftwareTap(b.mix, sessionID, onWaveform), nil
}

// ListSources returns the output mix followed by every active session.
func (b *SoftwareBackend) ListSources() ([]string, error) {
	ids := b.mix.Sessions()
	sort.Ints(ids)

	sources := []string{"software:mix"}
	for _, id := range ids {
		sources = append(sources, fmt.Sprintf("software:session-%d", id))
	}
	return sources, nil
}

func (b *SoftwareBackend) ValidateSource(source string) error {
	return ValidateAsset(source)
}

func (b *SoftwareBackend) GetType() BackendType {
	return BackendTypeSoftware
}
