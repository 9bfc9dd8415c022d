package audio

// PlayerStatus represents the current state of a player
type PlayerStatus string

const (
	PlayerIdle        PlayerStatus = "IDLE"
	PlayerInitialized PlayerStatus = "INITIALIZED"
	PlayerPreparing   PlayerStatus = "PREPARING"
	PlayerPrepared    PlayerStatus = "PREPARED"
	PlayerStarted     PlayerStatus = "STARTED"
	PlayerStopped     PlayerStatus = "STOPPED"
	PlayerCompleted   PlayerStatus = "COMPLETED"
	PlayerError       PlayerStatus = "ERROR"
	PlayerReleased    PlayerStatus = "RELEASED"
)

// Error codes passed to PlayerCallbacks.OnError.
const (
	MediaErrorUnknown     = 1
	MediaErrorIO          = -1004
	MediaErrorMalformed   = -1007
	MediaErrorUnsupported = -1010
)

// PlayerCallbacks are invoked from backend goroutines. Nil fields are skipped.
type PlayerCallbacks struct {
	OnPrepared   func(sessionID int)
	OnCompletion func()
	OnError      func(code, extra int)
}

func (cb PlayerCallbacks) prepared(sessionID int) {
	if cb.OnPrepared != nil {
		cb.OnPrepared(sessionID)
	}
}

func (cb PlayerCallbacks) completed() {
	if cb.OnCompletion != nil {
		cb.OnCompletion()
	}
}

func (cb PlayerCallbacks) failed(code, extra int) {
	if cb.OnError != nil {
		cb.OnError(code, extra)
	}
}

// Player defines the interface that all playback engines must implement
type Player interface {
	SetSource(path string) error
	// PrepareAsync returns immediately; readiness is reported through OnPrepared or OnError
	PrepareAsync() error
	Start() error
	Stop() error

	// SessionID is the audio session the output mix knows this player by, 0 when unknown
	SessionID() int
	Status() PlayerStatus

	// Release stops playback and frees resources. Safe to call more than once.
	Release() error
}
