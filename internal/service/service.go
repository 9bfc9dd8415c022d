package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/playcapture/internal/audio"
	"github.com/audiolibrelab/playcapture/internal/capture"
	"github.com/audiolibrelab/playcapture/internal/config"
	"github.com/audiolibrelab/playcapture/internal/export"
	"github.com/audiolibrelab/playcapture/internal/play"
	"github.com/audiolibrelab/playcapture/internal/wav"
)

// Service represents the core PlayCapture service interface
type Service interface {
	// Capture operations
	StartCapture() error
	StopCapture() (*capture.Result, error)
	GetCaptureStatus() CaptureStatus
	LastResult() *capture.Result
	WaitIdle(ctx context.Context) (*capture.Result, error)

	// Recording operations
	Inspect() (*wav.Info, error)
	Export(ctx context.Context) (string, error)
	Preview(ctx context.Context) error

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config

	// Information operations
	ListSources() ([]string, error)
	GetLastError() string

	Close() error
}

// CaptureStatus is the controller snapshot plus what the service knows
// about it.
type CaptureStatus struct {
	capture.Snapshot
	Message   string            `json:"message"`
	Backend   audio.BackendType `json:"backend"`
	LastError string            `json:"last_error,omitempty"`
}

type Option func(*PlayCaptureService)

// WithBackend replaces the backend chosen from configuration.
func WithBackend(b audio.Backend) Option {
	return func(s *PlayCaptureService) { s.backendOverride = b }
}

// WithStatusListener receives every status notification. It runs on the
// controller goroutine and must not call StartCapture or StopCapture.
func WithStatusListener(fn func(state capture.State, message string)) Option {
	return func(s *PlayCaptureService) { s.listener = fn }
}

// PlayCaptureService is the main service implementation
type PlayCaptureService struct {
	configFile      string
	backendOverride audio.Backend
	listener        func(capture.State, string)

	mu         sync.RWMutex
	cfg        *config.Config
	backend    audio.Backend
	controller *capture.Controller
	message    string
	// closed when the pending session finishes
	idle chan struct{}

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new PlayCapture service instance
func New(cfg *config.Config, configFile string, opts ...Option) (*PlayCaptureService, error) {
	s := &PlayCaptureService{configFile: configFile}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.setup(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// setup builds backend and controller for cfg. Caller holds mu or owns s.
func (s *PlayCaptureService) setup(cfg *config.Config) error {
	backend := s.backendOverride
	if backend == nil {
		b, err := audio.NewBackend(cfg)
		if err != nil {
			return fmt.Errorf("failed to create audio backend: %w", err)
		}
		backend = b
	}

	permission := cfg.Capture.PermissionGranted
	s.cfg = cfg
	s.backend = backend
	s.message = "Ready"
	s.controller = capture.New(backend, capture.Options{
		Profile: capture.Profile{
			SampleRate: cfg.Capture.SampleRate,
			Channels:   cfg.Capture.Channels,
			BitDepth:   cfg.Capture.BitDepth,
		},
		Source:          cfg.Playback.Source,
		RawPath:         cfg.RawPath(),
		ContainerPath:   cfg.ContainerPath(),
		GraceDelay:      cfg.Capture.GraceDelay,
		StrictSessionID: cfg.Capture.StrictSessionID,
		FailFastWrites:  cfg.Capture.FailFastWrites,
		KeepRaw:         cfg.Output.KeepRaw,
		Permission:      func() bool { return permission },
		OnStatus:        s.onStatus,
		OnFinalized:     s.onFinalized,
	})

	slog.Debug("Capture service ready", "backend", backend.GetType(), "source", cfg.Playback.Source,
		"container", cfg.ContainerPath())
	return nil
}

func (s *PlayCaptureService) onStatus(state capture.State, message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()

	switch state {
	case capture.Failed:
		s.setLastError(message)
	case capture.Capturing:
		s.clearLastError()
	}

	if s.listener != nil {
		s.listener(state, message)
	}
}

func (s *PlayCaptureService) onFinalized(res capture.Result) {
	if res.Err != nil {
		s.setLastError(fmt.Sprintf("Recording finished with errors: %v", res.Err))
	}
	s.signalIdle()
}

func (s *PlayCaptureService) signalIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
}

// StartCapture plays the configured source and captures what it renders
func (s *PlayCaptureService) StartCapture() error {
	slog.Debug("Service.StartCapture called")

	s.mu.Lock()
	ctrl := s.controller
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	s.mu.Unlock()

	if err := ctrl.Start(); err != nil {
		if !errors.Is(err, capture.ErrAlreadyActive) {
			// nothing is running, so nobody else will wake waiters
			s.signalIdle()
		}
		s.setLastError(fmt.Sprintf("Failed to start capture: %v", err))
		return err
	}
	s.clearLastError()
	return nil
}

// StopCapture stops the active session and returns its result
func (s *PlayCaptureService) StopCapture() (*capture.Result, error) {
	s.mu.RLock()
	ctrl := s.controller
	s.mu.RUnlock()

	res, err := ctrl.Stop()
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop capture: %v", err))
		return res, err
	}
	return res, nil
}

// GetCaptureStatus returns the current state and live counters
func (s *PlayCaptureService) GetCaptureStatus() CaptureStatus {
	s.mu.RLock()
	ctrl, backend, message := s.controller, s.backend, s.message
	s.mu.RUnlock()

	return CaptureStatus{
		Snapshot:  ctrl.Snapshot(),
		Message:   message,
		Backend:   backend.GetType(),
		LastError: s.GetLastError(),
	}
}

func (s *PlayCaptureService) LastResult() *capture.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controller.LastResult()
}

// WaitIdle blocks until the session started last has finished and returns
// its result. Without a pending session it returns the last result at once.
func (s *PlayCaptureService) WaitIdle(ctx context.Context) (*capture.Result, error) {
	s.mu.RLock()
	idle := s.idle
	s.mu.RUnlock()

	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.LastResult(), nil
}

// Inspect reads back the finished container
func (s *PlayCaptureService) Inspect() (*wav.Info, error) {
	return wav.Inspect(s.GetConfig().ContainerPath())
}

// Export transcodes the finished container to the configured format
func (s *PlayCaptureService) Export(ctx context.Context) (string, error) {
	path, err := export.New(s.GetConfig()).Export(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Export failed: %v", err))
		return "", err
	}
	return path, nil
}

// Preview plays the finished container
func (s *PlayCaptureService) Preview(ctx context.Context) error {
	return play.New(s.GetConfig()).Play(ctx)
}

// LoadProfile loads a new configuration profile. It refuses while a session
// is active.
func (s *PlayCaptureService) LoadProfile(profile string) error {
	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}

	s.mu.Lock()
	old := s.controller
	if st := old.State(); st != capture.Idle {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot switch profile while %s", capture.ErrAlreadyActive, st)
	}
	err = s.setup(newCfg)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	// old callbacks take mu, so close outside of it
	old.Close()
	slog.Info("Configuration profile loaded", "profile", profile)
	return nil
}

// GetConfig returns the current configuration
func (s *PlayCaptureService) GetConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ListSources lists what the backend can capture from
func (s *PlayCaptureService) ListSources() ([]string, error) {
	s.mu.RLock()
	backend := s.backend
	s.mu.RUnlock()
	return backend.ListSources()
}

// Close finalizes any active session and shuts the controller down
func (s *PlayCaptureService) Close() error {
	s.mu.RLock()
	ctrl := s.controller
	s.mu.RUnlock()
	return ctrl.Close()
}

// GetLastError returns the last error message (thread-safe)
func (s *PlayCaptureService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *PlayCaptureService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *PlayCaptureService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
