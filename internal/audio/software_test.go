package audio

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestAsset writes a 16-bit mono wav holding frames copies of value.
func writeTestAsset(t *testing.T, sampleRate, frames, value int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	data := make([]int, frames)
	for i := range data {
		data[i] = value
	}
	enc := gowav.NewEncoder(f, sampleRate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

type playerEvents struct {
	prepared  chan int
	completed chan struct{}
	failed    chan [2]int
}

func newPlayerEvents() (*playerEvents, PlayerCallbacks) {
	ev := &playerEvents{
		prepared:  make(chan int, 1),
		completed: make(chan struct{}, 1),
		failed:    make(chan [2]int, 1),
	}
	return ev, PlayerCallbacks{
		OnPrepared:   func(id int) { ev.prepared <- id },
		OnCompletion: func() { ev.completed <- struct{}{} },
		OnError:      func(code, extra int) { ev.failed <- [2]int{code, extra} },
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	var zero T
	return zero
}

type collector struct {
	mu     sync.Mutex
	bytes  []byte
	rates  []int
	chunks int
}

func (c *collector) onWaveform(chunk []byte, rate int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytes = append(c.bytes, chunk...)
	c.rates = append(c.rates, rate)
	c.chunks++
}

func TestSoftwarePlaybackIsCaptured(t *testing.T) {
	asset := writeTestAsset(t, 8000, 4000, 16000)
	backend := NewSoftwareBackend(WithRealtime(false))

	ev, cb := newPlayerEvents()
	player := backend.NewPlayer(cb)
	require.NoError(t, player.SetSource(asset))
	require.NoError(t, player.PrepareAsync())

	session := waitFor(t, ev.prepared)
	require.NotZero(t, session)
	assert.Equal(t, session, player.SessionID())
	assert.Equal(t, PlayerPrepared, player.Status())

	var got collector
	tap, err := backend.AttachTap(session, got.onWaveform)
	require.NoError(t, err)
	_, max := tap.CaptureWindowRange()
	require.NoError(t, tap.SetCaptureWindow(max))
	require.NoError(t, tap.Enable())

	require.NoError(t, player.Start())
	waitFor(t, ev.completed)
	assert.Equal(t, PlayerCompleted, player.Status())

	require.NoError(t, tap.Release())
	require.NoError(t, player.Release())

	// only whole windows are delivered
	assert.Equal(t, 3, got.chunks)
	assert.Len(t, got.bytes, 3*1024)
	for _, r := range got.rates {
		assert.Equal(t, 8000, r)
	}
	for _, b := range got.bytes {
		require.Equal(t, got.bytes[0], b)
	}
	assert.Greater(t, got.bytes[0], byte(128))
	assert.False(t, backend.Mix().HasSession(session))
}

func TestSoftwareMixTapSeesEverySession(t *testing.T) {
	asset := writeTestAsset(t, 8000, 1024, -8000)
	backend := NewSoftwareBackend(WithRealtime(false))

	var got collector
	tap, err := backend.AttachTap(0, got.onWaveform)
	require.NoError(t, err)
	require.NoError(t, tap.Enable())

	ev, cb := newPlayerEvents()
	player := backend.NewPlayer(cb)
	require.NoError(t, player.SetSource(asset))
	require.NoError(t, player.PrepareAsync())
	waitFor(t, ev.prepared)
	require.NoError(t, player.Start())
	waitFor(t, ev.completed)

	require.NoError(t, tap.Release())
	require.NoError(t, player.Release())

	assert.Len(t, got.bytes, 1024)
	assert.Less(t, got.bytes[0], byte(128))
}

func TestSoftwarePrepareFailures(t *testing.T) {
	dir := t.TempDir()
	unsupported := filepath.Join(dir, "track.ogg")
	require.NoError(t, os.WriteFile(unsupported, []byte("OggS"), 0o644))
	corrupt := filepath.Join(dir, "track.wav")
	require.NoError(t, os.WriteFile(corrupt, []byte("definitely not riff"), 0o644))

	tests := []struct {
		name string
		path string
		code int
	}{
		{"unsupported extension", unsupported, MediaErrorUnsupported},
		{"corrupt wav", corrupt, MediaErrorMalformed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := NewSoftwareBackend(WithRealtime(false))
			ev, cb := newPlayerEvents()
			player := backend.NewPlayer(cb)
			require.NoError(t, player.SetSource(tc.path))
			require.NoError(t, player.PrepareAsync())

			failure := waitFor(t, ev.failed)
			assert.Equal(t, tc.code, failure[0])
			assert.Equal(t, PlayerError, player.Status())
			assert.NoError(t, player.Release())
		})
	}
}

func TestSoftwarePlayerStateChecks(t *testing.T) {
	backend := NewSoftwareBackend()
	player := backend.NewPlayer(PlayerCallbacks{})

	assert.Error(t, player.SetSource(filepath.Join(t.TempDir(), "missing.wav")))
	assert.Error(t, player.PrepareAsync(), "prepare without a source")
	assert.Error(t, player.Start(), "start before prepare")
	assert.NoError(t, player.Release())
	assert.NoError(t, player.Release())
	assert.Equal(t, PlayerReleased, player.Status())
}

func TestSoftwareReleaseStopsRealtimePlayback(t *testing.T) {
	asset := writeTestAsset(t, 8000, 8000*10, 1000)
	backend := NewSoftwareBackend(WithChunkDuration(5 * time.Millisecond))

	ev, cb := newPlayerEvents()
	player := backend.NewPlayer(cb)
	require.NoError(t, player.SetSource(asset))
	require.NoError(t, player.PrepareAsync())
	waitFor(t, ev.prepared)
	require.NoError(t, player.Start())

	done := make(chan struct{})
	go func() {
		player.Release()
		close(done)
	}()
	waitFor(t, done)

	select {
	case <-ev.completed:
		t.Fatal("released player must not report completion")
	default:
	}
}

func TestAttachTapChecks(t *testing.T) {
	backend := NewSoftwareBackend()

	_, err := backend.AttachTap(42, func([]byte, int) {})
	assert.ErrorIs(t, err, ErrUnknownSession)

	_, err = backend.AttachTap(-1, func([]byte, int) {})
	assert.ErrorIs(t, err, ErrUnknownSession)

	_, err = backend.AttachTap(0, nil)
	assert.Error(t, err)

	tap, err := backend.AttachTap(0, func([]byte, int) {})
	require.NoError(t, err)
	assert.Error(t, tap.SetCaptureWindow(MinCaptureWindow-1))
	assert.Error(t, tap.SetCaptureWindow(MaxCaptureWindow+1))
	require.NoError(t, tap.Enable())
	assert.Error(t, tap.SetCaptureWindow(MinCaptureWindow), "window is fixed while enabled")
	assert.NoError(t, tap.Release())
	assert.NoError(t, tap.Release())
	assert.ErrorIs(t, tap.Enable(), ErrTapReleased)
}

func TestMixSessionsAndDrops(t *testing.T) {
	mix := NewMix(false)
	a := mix.OpenSession()
	b := mix.OpenSession()
	assert.NotZero(t, a)
	assert.Greater(t, b, a)
	assert.ElementsMatch(t, []int{a, b}, mix.Sessions())

	sub := mix.subscribe(a)
	for i := 0; i < 100; i++ {
		mix.Publish(Frame{Session: a, SampleRate: 8000, Samples: []float64{0}})
	}
	mix.Publish(Frame{Session: b, SampleRate: 8000, Samples: []float64{0}})
	assert.Len(t, sub.ch, cap(sub.ch))
	assert.Equal(t, int64(100-cap(sub.ch)), sub.dropped.Load())

	mix.unsubscribe(sub)
	mix.unsubscribe(sub)
	mix.CloseSession(a)
	assert.False(t, mix.HasSession(a))
}

func TestToUnsigned8(t *testing.T) {
	assert.Equal(t, byte(128), toUnsigned8(0))
	assert.Equal(t, byte(255), toUnsigned8(1))
	assert.Equal(t, byte(1), toUnsigned8(-1))
	assert.Equal(t, byte(255), toUnsigned8(3))
	assert.Equal(t, byte(1), toUnsigned8(-3))
}

func TestProbeAsset(t *testing.T) {
	asset := writeTestAsset(t, 22050, 22050, 0)
	info, err := ProbeAsset(asset)
	require.NoError(t, err)
	assert.Equal(t, 22050, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, time.Second, info.Duration)

	assert.Error(t, ValidateAsset(""))
	assert.ErrorIs(t, ValidateAsset("song.flac"), ErrUnsupportedAsset)
}
