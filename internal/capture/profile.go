package capture

import (
	"github.com/audiolibrelab/playcapture/internal/config"
	"github.com/audiolibrelab/playcapture/internal/wav"
)

// Profile is the sample layout of both the raw file and the container.
type Profile struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultProfile is 44100 Hz, mono, unsigned 8-bit.
func DefaultProfile() Profile {
	return Profile{
		SampleRate: config.DefaultSampleRate,
		Channels:   config.DefaultChannels,
		BitDepth:   config.DefaultBitDepth,
	}
}

// EffectiveSampleRate returns negotiated when it lies in the supported range
// and the profile rate otherwise.
func (p Profile) EffectiveSampleRate(negotiated int) int {
	if negotiated >= config.MinSampleRate && negotiated <= config.MaxSampleRate {
		return negotiated
	}
	return p.SampleRate
}

func (p Profile) params(sampleRate int) wav.Params {
	return wav.Params{
		SampleRate: sampleRate,
		Channels:   p.Channels,
		BitDepth:   p.BitDepth,
	}
}
