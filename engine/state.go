package engine

// State is the engine lifecycle state.
type State int32

const (
	NotStarted State = iota
	Started
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Started:
		return "started"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
