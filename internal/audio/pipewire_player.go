package audio

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// PipeWirePlayer plays assets through pw-play. PipeWire does not hand out a
// per-stream session id, so prepared players report session 0.
type PipeWirePlayer struct {
	cb PlayerCallbacks

	mutex  sync.Mutex
	status PlayerStatus
	source string
	proc   *process

	wg sync.WaitGroup
}

func NewPipeWirePlayer(cb PlayerCallbacks) *PipeWirePlayer {
	return &PipeWirePlayer{cb: cb, status: PlayerIdle}
}

func (p *PipeWirePlayer) SetSource(path string) error {
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

func (p *PipeWirePlayer) PrepareAsync() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.status != PlayerInitialized {
		return fmt.Errorf("can only prepare an initialized player, current: %s", p.status)
	}
	p.status = PlayerPreparing

	p.wg.Add(1)
	go func(source string) {
		defer p.wg.Done()

		info, err := ProbeAsset(source)

		p.mutex.Lock()
		if p.status == PlayerReleased {
			p.mutex.Unlock()
			return
		}
		if err != nil {
			p.status = PlayerError
			p.mutex.Unlock()
			slog.Warn("PipeWire player failed to prepare", "source", source, "error", err)
			p.cb.failed(mediaErrorCode(err), 0)
			return
		}
		p.status = PlayerPrepared
		p.mutex.Unlock()

		slog.Debug("PipeWire player prepared", "source", source, "sample_rate", info.SampleRate, "duration", info.Duration)
		p.cb.prepared(0)
	}(p.source)

	return nil
}

func (p *PipeWirePlayer) Start() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.status != PlayerPrepared {
		return fmt.Errorf("can only start a prepared player, current: %s", p.status)
	}

	proc := newProcess("pw-play", p.source)
	if err := proc.start(nil); err != nil {
		p.status = PlayerError
		return err
	}
	p.proc = proc
	p.status = PlayerStarted

	p.wg.Add(1)
	go p.monitor(proc)
	return nil
}

// monitor waits for pw-play and maps its exit to completion or error
func (p *PipeWirePlayer) monitor(proc *process) {
	defer p.wg.Done()

	err := proc.wait()
	if proc.stopped() {
		return
	}

	p.mutex.Lock()
	if p.status != PlayerStarted {
		p.mutex.Unlock()
		return
	}
	if err != nil {
		p.status = PlayerError
	} else {
		p.status = PlayerCompleted
	}
	p.mutex.Unlock()

	if err != nil {
		slog.Warn("pw-play exited with error", "source", p.source, "error", err)
		p.cb.failed(MediaErrorIO, exitCode(err))
		return
	}
	slog.Debug("pw-play completed", "source", p.source)
	p.cb.completed()
}

func (p *PipeWirePlayer) Stop() error {
	p.mutex.Lock()
	if p.status != PlayerStarted && p.status != PlayerPrepared {
		status := p.status
		p.mutex.Unlock()
		return fmt.Errorf("can only stop a prepared or started player, current: %s", status)
	}
	p.status = PlayerStopped
	proc := p.proc
	p.mutex.Unlock()

	if proc != nil {
		proc.stop()
	}
	return nil
}

func (p *PipeWirePlayer) SessionID() int {
	return 0
}

func (p *PipeWirePlayer) Status() PlayerStatus {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.status
}

func (p *PipeWirePlayer) Release() error {
	p.mutex.Lock()
	if p.status == PlayerReleased {
		p.mutex.Unlock()
		return nil
	}
	p.status = PlayerReleased
	proc := p.proc
	p.mutex.Unlock()

	if proc != nil {
		proc.stop()
	}
	p.wg.Wait()

	slog.Debug("PipeWire player released", "source", p.source)
	return nil
}
