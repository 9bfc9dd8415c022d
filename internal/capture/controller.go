// Package capture coordinates playback of an asset with capture of what it
// renders, and turns the capture into a container when the session ends.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/playcapture/internal/audio"
	"github.com/audiolibrelab/playcapture/internal/sink"
	"github.com/audiolibrelab/playcapture/internal/wav"
)

const eventQueueSize = 64

// Options configures a Controller. Paths are reused by every session.
type Options struct {
	Profile       Profile
	Source        string
	RawPath       string
	ContainerPath string

	// GraceDelay is how long to keep capturing after playback completes.
	GraceDelay time.Duration
	// StrictSessionID skips capture when playback reports audio session 0
	// instead of attaching to the whole output mix.
	StrictSessionID bool
	// FailFastWrites ends the session on the first failed sink write.
	FailFastWrites bool
	// KeepRaw keeps the raw sample file after the container is written.
	KeepRaw bool

	// Permission reports whether capture is authorized. Nil means granted.
	Permission func() bool

	// OnStatus and OnFinalized run on the controller goroutine and must not
	// call Start or Stop synchronously. A setup failure reports Failed
	// followed by Idle.
	OnStatus    func(state State, message string)
	OnFinalized func(Result)
}

// Result describes a finished session.
type Result struct {
	SessionID            string        `json:"session_id"`
	Source               string        `json:"source"`
	RawPath              string        `json:"raw_path"`
	ContainerPath        string        `json:"container_path,omitempty"`
	BytesCaptured        int64         `json:"bytes_captured"`
	ContainerBytes       int64         `json:"container_bytes"`
	SampleRate           int           `json:"sample_rate,omitempty"`
	NegotiatedSampleRate int           `json:"negotiated_sample_rate"`
	WriteFailures        int64         `json:"write_failures"`
	CaptureSkipped       bool          `json:"capture_skipped"`
	Reason               StopReason    `json:"reason"`
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration"`
	Err                  error         `json:"-"`
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State                State     `json:"state"`
	SessionID            string    `json:"session_id,omitempty"`
	Source               string    `json:"source,omitempty"`
	BytesCaptured        int64     `json:"bytes_captured"`
	NegotiatedSampleRate int       `json:"negotiated_sample_rate,omitempty"`
	CaptureSkipped       bool      `json:"capture_skipped"`
	StartedAt            time.Time `json:"started_at,omitempty"`
}

type session struct {
	id        string
	gen       uint64
	startedAt time.Time

	sink   *sink.Sink
	player audio.Player
	tap    audio.Tap

	negotiatedRate atomic.Int64
	captureSkipped atomic.Bool
	writeFailed    atomic.Bool
	graceTimer     *time.Timer

	// first runtime failure, reported with the result
	err error
	// Stop callers waiting for finalization
	waiters []chan reply
}

type eventKind int

const (
	evStart eventKind = iota
	evStop
	evPrepared
	evCompleted
	evGraceExpired
	evPlayerError
	evWriteFailed
	evFinalized
)

type event struct {
	kind         eventKind
	gen          uint64
	audioSession int
	code, extra  int
	err          error
	result       *Result
	reply        chan reply
}

type reply struct {
	result *Result
	err    error
}

// Controller runs one capture session at a time. All transitions happen on a
// single goroutine fed by an event queue; player and tap callbacks only post
// events.
type Controller struct {
	backend audio.Backend
	opts    Options

	events    chan event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	state   atomic.Int32
	current atomic.Pointer[session]

	mu   sync.Mutex
	last *Result

	// owned by the run goroutine
	session    *session
	generation uint64
}

// New starts the controller's event loop. Call Close to stop it.
func New(backend audio.Backend, opts Options) *Controller {
	if opts.Profile == (Profile{}) {
		opts.Profile = DefaultProfile()
	}
	if opts.GraceDelay < 0 {
		opts.GraceDelay = 0
	}

	c := &Controller{
		backend: backend,
		opts:    opts,
		events:  make(chan event, eventQueueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// Start begins a session. It returns once playback is being prepared; the
// session then progresses on its own.
func (c *Controller) Start() error {
	return c.request(evStart).err
}

// Stop ends the active session and returns its result. With no active
// session it only re-announces Idle and returns a nil result.
func (c *Controller) Stop() (*Result, error) {
	r := c.request(evStop)
	return r.result, r.err
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// Snapshot reports the current state and live session counters.
func (c *Controller) Snapshot() Snapshot {
	snap := Snapshot{State: c.State()}
	if s := c.current.Load(); s != nil {
		snap.SessionID = s.id
		snap.Source = c.opts.Source
		snap.StartedAt = s.startedAt
		snap.BytesCaptured = s.sink.BytesWritten()
		snap.NegotiatedSampleRate = int(s.negotiatedRate.Load())
		snap.CaptureSkipped = s.captureSkipped.Load()
	}
	return snap
}

// LastResult returns the result of the most recent session, if any.
func (c *Controller) LastResult() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	r := *c.last
	return &r
}

// Close finalizes any active session and stops the controller.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
	return nil
}

func (c *Controller) request(kind eventKind) reply {
	ch := make(chan reply, 1)
	select {
	case c.events <- event{kind: kind, reply: ch}:
	case <-c.done:
		return reply{err: ErrClosed}
	}
	select {
	case r := <-ch:
		return r
	case <-c.done:
		return reply{err: ErrClosed}
	}
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) run() {
	defer close(c.done)

	quit := c.quit
	closing := false
	for {
		select {
		case ev := <-c.events:
			c.handle(ev, closing)
			if closing && c.session == nil {
				return
			}
		case <-quit:
			quit = nil
			closing = true
			if c.session == nil {
				return
			}
			if c.State() != Finalizing {
				c.finalize(ReasonClosed)
			}
		}
	}
}

func (c *Controller) handle(ev event, closing bool) {
	switch ev.kind {
	case evStart:
		if closing {
			ev.reply <- reply{err: ErrClosed}
			return
		}
		ev.reply <- reply{err: c.handleStart()}
		return
	case evStop:
		if c.session == nil {
			c.notify(Idle, "Stopped")
			ev.reply <- reply{}
			return
		}
		c.session.waiters = append(c.session.waiters, ev.reply)
		if c.State() != Finalizing {
			c.finalize(ReasonStopped)
		}
		return
	}

	s := c.session
	if s == nil || s.gen != ev.gen {
		slog.Debug("Ignoring event for a finished session", "kind", ev.kind, "gen", ev.gen)
		return
	}
	if ev.kind == evFinalized {
		c.finished(s, ev.result, ev.err)
		return
	}
	if c.State() == Finalizing {
		return
	}

	switch ev.kind {
	case evPrepared:
		c.handlePrepared(s, ev.audioSession)
	case evCompleted:
		c.handleCompleted(s)
	case evGraceExpired:
		c.finalize(ReasonCompleted)
	case evPlayerError:
		c.handlePlayerError(s, ev.code, ev.extra)
	case evWriteFailed:
		if c.State() == Capturing {
			s.err = fmt.Errorf("%w: %w", ErrIO, ev.err)
			slog.Warn("Raw sink write failed, finalizing capture", "session", s.id, "error", ev.err)
			c.finalize(ReasonWriteFailure)
		}
	}
}

func (c *Controller) handleStart() error {
	if c.session != nil {
		st := c.State()
		c.notify(st, "Already recording")
		return fmt.Errorf("%w (state %s)", ErrAlreadyActive, st)
	}

	if c.opts.Permission != nil && !c.opts.Permission() {
		return c.fail(ErrPermissionDenied)
	}
	if c.opts.RawPath == "" || c.opts.ContainerPath == "" {
		return c.fail(ErrPathsNotInitialized)
	}

	if err := os.MkdirAll(filepath.Dir(c.opts.RawPath), 0o755); err != nil {
		return c.fail(fmt.Errorf("%w: create output directory: %w", ErrIO, err))
	}
	out, err := sink.Open(c.opts.RawPath)
	if err != nil {
		return c.fail(fmt.Errorf("%w: %w", ErrIO, err))
	}

	c.generation++
	s := &session{
		id:        uuid.NewString(),
		gen:       c.generation,
		startedAt: time.Now(),
		sink:      out,
	}
	gen := s.gen
	s.player = c.backend.NewPlayer(audio.PlayerCallbacks{
		OnPrepared: func(audioSession int) {
			c.post(event{kind: evPrepared, gen: gen, audioSession: audioSession})
		},
		OnCompletion: func() {
			c.post(event{kind: evCompleted, gen: gen})
		},
		OnError: func(code, extra int) {
			c.post(event{kind: evPlayerError, gen: gen, code: code, extra: extra})
		},
	})

	if err := s.player.SetSource(c.opts.Source); err != nil {
		c.rollback(s)
		return c.fail(fmt.Errorf("%w: %w", ErrPlaybackSetup, err))
	}
	if err := s.player.PrepareAsync(); err != nil {
		c.rollback(s)
		return c.fail(fmt.Errorf("%w: %w", ErrPlaybackSetup, err))
	}

	c.session = s
	c.current.Store(s)
	slog.Info("Capture session started", "session", s.id, "source", c.opts.Source, "raw", c.opts.RawPath)
	c.setState(Preparing, "Preparing playback")
	return nil
}

// rollback releases everything a half-built session holds.
func (c *Controller) rollback(s *session) {
	if s.player != nil {
		if err := s.player.Release(); err != nil {
			slog.Warn("Failed to release player during rollback", "error", err)
		}
	}
	if err := s.sink.Close(); err != nil {
		slog.Warn("Failed to close raw sink during rollback", "error", err)
	}
	if err := os.Remove(c.opts.RawPath); err != nil && !os.IsNotExist(err) {
		slog.Debug("Failed to remove empty raw file", "path", c.opts.RawPath, "error", err)
	}
}

// fail reports a setup error once and leaves the controller Idle. The
// Failed notification is followed by Idle.
func (c *Controller) fail(err error) error {
	slog.Error("Capture setup failed", "error", err)
	c.state.Store(int32(Idle))
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(Failed, err.Error())
		c.opts.OnStatus(Idle, "Ready")
	}
	return err
}

func (c *Controller) handlePrepared(s *session, audioSession int) {
	if c.State() != Preparing {
		return
	}

	if err := s.player.Start(); err != nil {
		s.err = fmt.Errorf("%w: start: %w", ErrPlaybackSetup, err)
		c.finalize(ReasonPlaybackError)
		return
	}

	if err := c.attachTap(s, audioSession); err != nil {
		s.captureSkipped.Store(true)
		slog.Warn("Playing without capture", "session", s.id, "error", err)
		c.setState(Capturing, "Playing without capture: "+err.Error())
		return
	}
	c.setState(Capturing, "Recording")
}

func (c *Controller) attachTap(s *session, audioSession int) error {
	if audioSession == 0 {
		if c.opts.StrictSessionID {
			return fmt.Errorf("%w: playback reported audio session 0", ErrCaptureUnavailable)
		}
		slog.Warn("Audio session id is 0, capturing the whole output mix", "session", s.id)
	}

	tap, err := c.backend.AttachTap(audioSession, c.waveformHandler(s))
	if err != nil {
		return fmt.Errorf("%w: attach: %w", ErrCaptureUnavailable, err)
	}

	_, max := tap.CaptureWindowRange()
	if err := tap.SetCaptureWindow(max); err != nil {
		tap.Release()
		return fmt.Errorf("%w: capture window: %w", ErrCaptureUnavailable, err)
	}
	if err := tap.Enable(); err != nil {
		tap.Release()
		return fmt.Errorf("%w: enable: %w", ErrCaptureUnavailable, err)
	}

	s.tap = tap
	slog.Debug("Capture tap enabled", "session", s.id, "audio_session", audioSession, "window", max)
	return nil
}

// waveformHandler runs on the tap goroutine.
func (c *Controller) waveformHandler(s *session) audio.WaveformFunc {
	return func(chunk []byte, samplingRate int) {
		s.negotiatedRate.Store(int64(samplingRate))
		if err := s.sink.WriteChunk(chunk); err != nil && c.opts.FailFastWrites {
			if s.writeFailed.CompareAndSwap(false, true) {
				// the tap goroutine must not block on a full queue
				go c.post(event{kind: evWriteFailed, gen: s.gen, err: err})
			}
		}
	}
}

func (c *Controller) handleCompleted(s *session) {
	if s.graceTimer != nil {
		return
	}
	slog.Info("Playback completed", "session", s.id, "grace", c.opts.GraceDelay)
	if c.opts.GraceDelay == 0 {
		c.finalize(ReasonCompleted)
		return
	}
	gen := s.gen
	s.graceTimer = time.AfterFunc(c.opts.GraceDelay, func() {
		c.post(event{kind: evGraceExpired, gen: gen})
	})
}

func (c *Controller) handlePlayerError(s *session, code, extra int) {
	if c.State() == Preparing {
		// nothing played yet, so nothing to preserve
		c.session = nil
		c.current.Store(nil)
		c.rollback(s)
		err := c.fail(fmt.Errorf("%w: player error %d (%d)", ErrPlaybackSetup, code, extra))
		c.record(&Result{
			SessionID: s.id,
			Source:    c.opts.Source,
			RawPath:   c.opts.RawPath,
			Reason:    ReasonSetupFailed,
			StartedAt: s.startedAt,
			Duration:  time.Since(s.startedAt),
			Err:       err,
		})
		return
	}

	s.err = fmt.Errorf("%w: player error %d (%d)", ErrPlaybackRuntime, code, extra)
	slog.Warn("Playback error, finalizing capture", "session", s.id, "code", code, "extra", extra)
	c.finalize(ReasonPlaybackError)
}

// finalize moves the active session to Finalizing and tears it down on a
// worker goroutine, so Start and Stop keep getting answers meanwhile. The
// worker reports back with evFinalized.
func (c *Controller) finalize(reason StopReason) {
	s := c.session
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	c.setState(Finalizing, "Finalizing recording")

	go func() {
		res, err := c.teardown(s, reason)
		c.post(event{kind: evFinalized, gen: s.gen, result: res, err: err})
	}()
}

// teardown releases the session resources and writes the container when
// anything was captured.
func (c *Controller) teardown(s *session, reason StopReason) (*Result, error) {
	if s.tap != nil {
		if err := s.tap.Release(); err != nil {
			slog.Warn("Failed to release capture tap", "session", s.id, "error", err)
		}
	}
	if err := s.player.Release(); err != nil {
		slog.Warn("Failed to release player", "session", s.id, "error", err)
	}

	var errs []error
	if err := s.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrIO, err))
	}

	res := &Result{
		SessionID:            s.id,
		Source:               c.opts.Source,
		RawPath:              c.opts.RawPath,
		NegotiatedSampleRate: int(s.negotiatedRate.Load()),
		WriteFailures:        s.sink.Failures(),
		CaptureSkipped:       s.captureSkipped.Load(),
		Reason:               reason,
		StartedAt:            s.startedAt,
	}

	// captured length comes from the file, not the counters
	info, err := os.Stat(c.opts.RawPath)
	switch {
	case err != nil:
		if !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("%w: stat raw file: %w", ErrIO, err))
		}
	case info.Size() > 0:
		res.BytesCaptured = info.Size()
		res.SampleRate = c.opts.Profile.EffectiveSampleRate(res.NegotiatedSampleRate)
		n, err := wav.WriteContainer(c.opts.RawPath, c.opts.ContainerPath, c.opts.Profile.params(res.SampleRate))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: write container: %w", ErrIO, err))
		} else {
			res.ContainerPath = c.opts.ContainerPath
			res.ContainerBytes = n
		}
	}

	if !c.opts.KeepRaw && (res.ContainerBytes > 0 || res.BytesCaptured == 0) {
		if err := os.Remove(c.opts.RawPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove raw file", "path", c.opts.RawPath, "error", err)
		}
	}

	finalizeErr := errors.Join(errs...)
	res.Err = errors.Join(s.err, finalizeErr)
	res.Duration = time.Since(s.startedAt)
	return res, finalizeErr
}

// finished returns the controller to Idle and answers waiting Stop callers.
func (c *Controller) finished(s *session, res *Result, finalizeErr error) {
	c.session = nil
	c.current.Store(nil)

	slog.Info("Capture session finished", "session", s.id, "reason", res.Reason,
		"bytes", res.BytesCaptured, "sample_rate", res.SampleRate, "container", res.ContainerPath, "error", res.Err)

	c.setState(Idle, idleMessage(res, finalizeErr))
	c.record(res)

	for _, w := range s.waiters {
		w <- reply{result: res, err: finalizeErr}
	}
}

func idleMessage(res *Result, finalizeErr error) string {
	switch {
	case finalizeErr != nil:
		return "Stopped. Recording could not be saved: " + finalizeErr.Error()
	case res.ContainerBytes > 0:
		return fmt.Sprintf("Stopped. Recording saved to %s", res.ContainerPath)
	default:
		return "Stopped. Nothing was captured"
	}
}

func (c *Controller) record(res *Result) {
	c.mu.Lock()
	c.last = res
	c.mu.Unlock()

	if c.opts.OnFinalized != nil {
		c.opts.OnFinalized(*res)
	}
}

func (c *Controller) setState(st State, message string) {
	c.state.Store(int32(st))
	c.notify(st, message)
}

func (c *Controller) notify(st State, message string) {
	slog.Debug("Capture status", "state", st, "message", message)
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(st, message)
	}
}
