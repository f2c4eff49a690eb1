package session

// State is a session's position in the load/save lifecycle. A session only
// moves forward; Failed is reachable from anywhere.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateCreating
	StateSelecting
	StateEncoding
	StateFetching
	StateMerging
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateCreating:
		return "creating"
	case StateSelecting:
		return "selecting"
	case StateEncoding:
		return "encoding"
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
