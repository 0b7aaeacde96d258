package bridge

// State is the lifecycle of the web app inside one runtime instance.
type State int32

const (
	StateNotCreated State = iota
	StateLoaded
	StateStarted
	StateReady
)

func (s State) String() string {
	switch s {
	case StateNotCreated:
		return "not_created"
	case StateLoaded:
		return "loaded"
	case StateStarted:
		return "started"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
