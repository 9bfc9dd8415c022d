package wav

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	spiky := bytes.Repeat([]byte{128}, 4410)
	spiky[100] = 228 // +100 from silence
	spiky[200] = 8   // -120 from silence

	tests := []struct {
		name     string
		payload  []byte
		params   Params
		peak     int
		duration time.Duration
	}{
		{"negative peak wins", spiky, mono8, 120, 100 * time.Millisecond},
		{"ramp reaches byte 0", ramp(4096), Params{SampleRate: 8192, Channels: 1, BitDepth: 8}, 128, 500 * time.Millisecond},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			raw := writeRaw(t, dir, tc.payload)
			dst := filepath.Join(dir, "recorded_audio.wav")
			_, err := WriteContainer(raw, dst, tc.params)
			require.NoError(t, err)

			info, err := Inspect(dst)
			require.NoError(t, err)
			n := len(tc.payload)
			assert.Equal(t, int64(n+HeaderSize), info.FileSize)
			assert.Equal(t, int64(n), info.DataLength)
			assert.Equal(t, n, info.Frames)
			assert.Equal(t, 8, info.BitDepth)
			assert.Equal(t, tc.peak, info.Peak)
			assert.InDelta(t, tc.duration.Seconds(), info.Duration.Seconds(), 0.001)
			require.NotNil(t, info.Format)
			assert.Equal(t, tc.params.SampleRate, info.Format.SampleRate)
			assert.Equal(t, 1, info.Format.NumChannels)
		})
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"text", []byte("not a wav file")},
		{"truncated", []byte("RIFF")},
		{"zeroes", make([]byte, 100)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "junk.wav")
			require.NoError(t, os.WriteFile(p, tc.content, 0o644))

			_, err := Inspect(p)
			assert.ErrorIs(t, err, ErrInvalidHeader)
		})
	}

	_, err := Inspect(filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
