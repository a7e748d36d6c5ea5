package lifecycle

// State represents the lifecycle state of a supervised process.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateRunning
	StateRestarting
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLaunching:
		return "Launching"
	case StateRunning:
		return "Running"
	case StateRestarting:
		return "Restarting"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}
