package capture

import "errors"

var (
	ErrPermissionDenied    = errors.New("capture permission not granted")
	ErrAlreadyActive       = errors.New("a capture session is already active")
	ErrPathsNotInitialized = errors.New("output paths are not initialized")
	ErrIO                  = errors.New("capture i/o failure")
	ErrPlaybackSetup       = errors.New("playback setup failed")
	ErrPlaybackRuntime     = errors.New("playback failed")
	ErrCaptureUnavailable  = errors.New("capture unavailable")
	ErrClosed              = errors.New("controller closed")
)
