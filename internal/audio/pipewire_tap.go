package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// PipeWireTap records the monitor of a sink with pw-record as unsigned 8-bit
// mono and delivers it in capture-window sized chunks.
type PipeWireTap struct {
	target     string
	sampleRate int
	onWaveform WaveformFunc

	mutex    sync.Mutex
	window   int
	enabled  bool
	released bool
	proc     *process

	wg sync.WaitGroup
}

func NewPipeWireTap(target string, sampleRate int, onWaveform WaveformFunc) *PipeWireTap {
	return &PipeWireTap{
		target:     target,
		sampleRate: sampleRate,
		onWaveform: onWaveform,
		window:     MinCaptureWindow,
	}
}

func (t *PipeWireTap) CaptureWindowRange() (int, int) {
	return MinCaptureWindow, MaxCaptureWindow
}

func (t *PipeWireTap) SetCaptureWindow(size int) error {
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

// buildRecordArgs builds the pw-record command line
func (t *PipeWireTap) buildRecordArgs() []string {
	args := []string{
		"pw-record",
		"--format=u8",
		fmt.Sprintf("--rate=%d", t.sampleRate),
		"--channels=1",
		"-P", "{ stream.capture.sink=true }",
	}
	if t.target != "" {
		args = append(args, "--target="+t.target)
	}
	return append(args, "-") // stdout
}

func (t *PipeWireTap) Enable() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.released {
		return ErrTapReleased
	}
	if t.enabled {
		return nil
	}

	proc := newProcess(t.buildRecordArgs()...)
	var stdout io.ReadCloser
	if err := proc.start(&stdout); err != nil {
		return err
	}
	t.proc = proc
	t.enabled = true

	t.wg.Add(1)
	go t.read(proc, stdout, t.window)

	slog.Info("PipeWire tap enabled", "target", t.target, "rate", t.sampleRate, "window", t.window)
	return nil
}

func (t *PipeWireTap) read(proc *process, stdout io.Reader, window int) {
	defer t.wg.Done()

	chunk := make([]byte, window)
	for {
		_, err := io.ReadFull(stdout, chunk)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !proc.stopped() {
				slog.Warn("PipeWire tap read failed", "target", t.target, "error", err)
			}
			break
		}
		t.onWaveform(chunk, t.sampleRate)
	}

	if err := proc.wait(); err != nil && !proc.stopped() {
		slog.Warn("pw-record exited unexpectedly", "target", t.target, "exit_code", exitCode(err))
	}
}

func (t *PipeWireTap) Release() error {
	t.mutex.Lock()
	if t.released {
		t.mutex.Unlock()
		return nil
	}
	t.released = true
	t.enabled = false
	proc := t.proc
	t.mutex.Unlock()

	if proc != nil {
		proc.stop()
		t.wg.Wait()
	}
	return nil
}
