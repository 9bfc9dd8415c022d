package capture

import (
	"errors"
	"sync"

	"github.com/audiolibrelab/playcapture/internal/audio"
)

type fakeBackend struct {
	mu      sync.Mutex
	players []*fakePlayer
	taps    []*fakeTap

	setSourceErr error
	prepareErr   error
	startErr     error
	attachErr    error
	enableErr    error
	// tapReleaseGate, when set, blocks tap Release until closed
	tapReleaseGate chan struct{}
}

func (b *fakeBackend) NewPlayer(cb audio.PlayerCallbacks) audio.Player {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &fakePlayer{
		cb:           cb,
		setSourceErr: b.setSourceErr,
		prepareErr:   b.prepareErr,
		startErr:     b.startErr,
		status:       audio.PlayerIdle,
	}
	b.players = append(b.players, p)
	return p
}

func (b *fakeBackend) AttachTap(sessionID int, onWaveform audio.WaveformFunc) (audio.Tap, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attachErr != nil {
		return nil, b.attachErr
	}
	t := &fakeTap{
		session:     sessionID,
		onWaveform:  onWaveform,
		enableErr:   b.enableErr,
		releaseGate: b.tapReleaseGate,
	}
	b.taps = append(b.taps, t)
	return t, nil
}

func (b *fakeBackend) ListSources() ([]string, error)     { return []string{"fake:mix"}, nil }
func (b *fakeBackend) ValidateSource(source string) error { return nil }
func (b *fakeBackend) GetType() audio.BackendType         { return "fake" }

func (b *fakeBackend) player(i int) *fakePlayer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.players) {
		return nil
	}
	return b.players[i]
}

func (b *fakeBackend) tap(i int) *fakeTap {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.taps) {
		return nil
	}
	return b.taps[i]
}

func (b *fakeBackend) playerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.players)
}

type fakePlayer struct {
	cb audio.PlayerCallbacks

	setSourceErr error
	prepareErr   error
	startErr     error

	mu        sync.Mutex
	status    audio.PlayerStatus
	source    string
	sessionID int
	started   bool
	releases  int
}

func (p *fakePlayer) SetSource(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setSourceErr != nil {
		return p.setSourceErr
	}
	p.source = path
	p.status = audio.PlayerInitialized
	return nil
}

func (p *fakePlayer) PrepareAsync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prepareErr != nil {
		return p.prepareErr
	}
	p.status = audio.PlayerPreparing
	return nil
}

func (p *fakePlayer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.started = true
	p.status = audio.PlayerStarted
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = audio.PlayerStopped
	return nil
}

func (p *fakePlayer) SessionID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

func (p *fakePlayer) Status() audio.PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakePlayer) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	p.status = audio.PlayerReleased
	return nil
}

// prepared simulates the asynchronous prepare finishing.
func (p *fakePlayer) prepared(sessionID int) {
	p.mu.Lock()
	p.sessionID = sessionID
	p.status = audio.PlayerPrepared
	p.mu.Unlock()
	p.cb.OnPrepared(sessionID)
}

func (p *fakePlayer) complete() { p.cb.OnCompletion() }

func (p *fakePlayer) fail(code, extra int) { p.cb.OnError(code, extra) }

func (p *fakePlayer) isStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *fakePlayer) releaseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releases
}

var errFakeEnable = errors.New("visualizer refused")

type fakeTap struct {
	session     int
	onWaveform  audio.WaveformFunc
	enableErr   error
	releaseGate chan struct{}

	mu       sync.Mutex
	window   int
	enabled  bool
	releases int
}

func (t *fakeTap) SetCaptureWindow(size int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = size
	return nil
}

func (t *fakeTap) CaptureWindowRange() (int, int) { return 128, 1024 }

func (t *fakeTap) Enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enableErr != nil {
		return t.enableErr
	}
	t.enabled = true
	return nil
}

func (t *fakeTap) Release() error {
	if t.releaseGate != nil {
		<-t.releaseGate
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
	t.releases++
	return nil
}

// deliver simulates one waveform callback on the tap goroutine.
func (t *fakeTap) deliver(chunk []byte, rate int) {
	t.onWaveform(chunk, rate)
}

func (t *fakeTap) captureWindow() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window
}

func (t *fakeTap) releaseCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.releases
}
