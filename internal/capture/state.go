package capture

// State is the lifecycle state of the controller.
type State int32

const (
	Idle State = iota
	Preparing
	Capturing
	Finalizing
	// Failed is reported when session setup fails; the controller is back in
	// Idle by the time the notification is delivered.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Preparing:
		return "PREPARING"
	case Capturing:
		return "CAPTURING"
	case Finalizing:
		return "FINALIZING"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets State render by name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StopReason says what ended a session.
type StopReason string

const (
	ReasonStopped       StopReason = "stopped"
	ReasonCompleted     StopReason = "completed"
	ReasonPlaybackError StopReason = "playback-error"
	ReasonWriteFailure  StopReason = "write-failure"
	ReasonSetupFailed   StopReason = "setup-failed"
	ReasonClosed        StopReason = "closed"
)
