package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

type softwarePlayer struct {
	mix      *Mix
	cb       PlayerCallbacks
	chunk    time.Duration
	realtime bool

	mutex     sync.Mutex
	status    PlayerStatus
	source    string
	asset     *asset
	sessionID int
	cancel    context.CancelFunc

	wg sync.WaitGroup
}

func newSoftwarePlayer(mix *Mix, cb PlayerCallbacks, chunk time.Duration, realtime bool) *softwarePlayer {
	return &softwarePlayer{
		mix:      mix,
		cb:       cb,
		chunk:    chunk,
		realtime: realtime,
		status:   PlayerIdle,
	}
}

func (p *softwarePlayer) SetSource(path string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.status != PlayerIdle {
		return fmt.Errorf("source can only be set on an idle player, current: %s", p.status)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("playback source unavailable: %w", err)
	}

	p.source = path
	p.status = PlayerInitialized
	return nil
}

func (p *softwarePlayer) PrepareAsync() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.status != PlayerInitialized {
		return fmt.Errorf("can only prepare an initialized player, current: %s", p.status)
	}
	p.status = PlayerPreparing

	p.wg.Add(1)
	go p.prepare(p.source)
	return nil
}

func (p *softwarePlayer) prepare(source string) {
	defer p.wg.Done()

	a, err := openAsset(source)

	p.mutex.Lock()
	if p.status == PlayerReleased {
		p.mutex.Unlock()
		if a != nil {
			a.Close()
		}
		return
	}
	if err != nil {
		p.status = PlayerError
		p.mutex.Unlock()
		slog.Warn("Software player failed to prepare", "source", source, "error", err)
		p.cb.failed(mediaErrorCode(err), 0)
		return
	}
	p.asset = a
	p.sessionID = p.mix.OpenSession()
	p.status = PlayerPrepared
	id := p.sessionID
	p.mutex.Unlock()

	slog.Debug("Software player prepared", "source", source, "session", id,
		"sample_rate", int(a.format.SampleRate), "channels", a.format.NumChannels)
	p.cb.prepared(id)
}

func (p *softwarePlayer) Start() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.status != PlayerPrepared {
		return fmt.Errorf("can only start a prepared player, current: %s", p.status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.status = PlayerStarted

	p.wg.Add(1)
	go p.render(ctx, p.asset, p.sessionID)

	slog.Debug("Software playback started", "source", p.source, "session", p.sessionID)
	return nil
}

// render streams the asset into the mix one chunk at a time.
func (p *softwarePlayer) render(ctx context.Context, a *asset, session int) {
	defer p.wg.Done()

	rate := int(a.format.SampleRate)
	n := a.format.SampleRate.N(p.chunk)
	if n < 1 {
		n = 1
	}
	buf := make([][2]float64, n)

	var tick <-chan time.Time
	if p.realtime {
		ticker := time.NewTicker(p.chunk)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return
		}

		got, ok := a.streamer.Stream(buf)
		if got > 0 {
			mono := make([]float64, got)
			for i := 0; i < got; i++ {
				mono[i] = (buf[i][0] + buf[i][1]) / 2
			}
			p.mix.Publish(Frame{Session: session, SampleRate: rate, Samples: mono})
		}
		if !ok {
			break
		}
	}

	streamErr := a.streamer.Err()

	p.mutex.Lock()
	if p.status != PlayerStarted {
		p.mutex.Unlock()
		return
	}
	if streamErr != nil {
		p.status = PlayerError
	} else {
		p.status = PlayerCompleted
	}
	p.mutex.Unlock()

	if streamErr != nil {
		slog.Warn("Software playback failed", "session", session, "error", streamErr)
		p.cb.failed(MediaErrorIO, 0)
		return
	}
	slog.Debug("Software playback completed", "session", session)
	p.cb.completed()
}

func (p *softwarePlayer) Stop() error {
	p.mutex.Lock()
	if p.status != PlayerStarted && p.status != PlayerPrepared {
		status := p.status
		p.mutex.Unlock()
		return fmt.Errorf("can only stop a prepared or started player, current: %s", status)
	}
	p.status = PlayerStopped
	cancel := p.cancel
	p.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (p *softwarePlayer) SessionID() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.sessionID
}

func (p *softwarePlayer) Status() PlayerStatus {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.status
}

func (p *softwarePlayer) Release() error {
	p.mutex.Lock()
	if p.status == PlayerReleased {
		p.mutex.Unlock()
		return nil
	}
	p.status = PlayerReleased
	cancel := p.cancel
	p.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	p.mutex.Lock()
	defer p.mutex.Unlock()

	var err error
	if p.asset != nil {
		err = p.asset.Close()
		p.asset = nil
	}
	if p.sessionID != 0 {
		p.mix.CloseSession(p.sessionID)
	}

	slog.Debug("Software player released", "session", p.sessionID)
	return err
}
