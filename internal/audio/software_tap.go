package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Capture window bounds, in samples per delivered chunk.
const (
	MinCaptureWindow = 128
	MaxCaptureWindow = 1024
)

type softwareTap struct {
	mix        *Mix
	session    int
	onWaveform WaveformFunc

	mutex    sync.Mutex
	window   int
	enabled  bool
	released bool
	sub      *mixSubscription

	wg sync.WaitGroup
}

func newSoftwareTap(mix *Mix, session int, onWaveform WaveformFunc) *softwareTap {
	return &softwareTap{
		mix:        mix,
		session:    session,
		onWaveform: onWaveform,
		window:     MinCaptureWindow,
	}
}

func (t *softwareTap) CaptureWindowRange() (int, int) {
	return MinCaptureWindow, MaxCaptureWindow
}

func (t *softwareTap) SetCaptureWindow(size int) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.released {
		return ErrTapReleased
	}
	if t.enabled {
		return fmt.Errorf("capture window can only change while the tap is disabled")
	}
	if size < MinCaptureWindow || size > MaxCaptureWindow {
		return fmt.Errorf("capture window %d outside [%d, %d]", size, MinCaptureWindow, MaxCaptureWindow)
	}
	t.window = size
	return nil
}

func (t *softwareTap) Enable() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.released {
		return ErrTapReleased
	}
	if t.enabled {
		return nil
	}

	t.sub = t.mix.subscribe(t.session)
	t.enabled = true

	t.wg.Add(1)
	go t.run(t.sub, t.window)

	slog.Debug("Software tap enabled", "session", t.session, "window", t.window)
	return nil
}

// run converts mix frames to unsigned 8-bit samples and delivers them in
// window-sized chunks. A partial window at release is discarded.
func (t *softwareTap) run(sub *mixSubscription, window int) {
	defer t.wg.Done()

	pending := make([]byte, 0, window)
	for {
		select {
		case <-sub.done:
			return
		case f := <-sub.ch:
			for _, s := range f.Samples {
				pending = append(pending, toUnsigned8(s))
				if len(pending) == window {
					t.onWaveform(pending, f.SampleRate)
					pending = pending[:0]
				}
			}
		}
	}
}

func (t *softwareTap) Release() error {
	t.mutex.Lock()
	if t.released {
		t.mutex.Unlock()
		return nil
	}
	t.released = true
	t.enabled = false
	sub := t.sub
	t.mutex.Unlock()

	if sub != nil {
		t.mix.unsubscribe(sub)
		t.wg.Wait()
		if dropped := sub.dropped.Load(); dropped > 0 {
			slog.Debug("Software tap dropped frames", "session", t.session, "frames", dropped)
		}
	}
	return nil
}

// toUnsigned8 maps a sample in [-1, 1] to unsigned 8-bit PCM centred on 128.
func toUnsigned8(s float64) byte {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return byte(math.Round(128 + s*127))
}
