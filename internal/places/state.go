package places

// Status is the orchestrator's externally visible state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusRefreshing
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusRefreshing:
		return "refreshing"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Event drives status transitions.
type Event int

const (
	EventLoad Event = iota
	EventCacheHit
	EventFetchStart
	EventFetchOK
	EventFetchFail
	EventFallbackOK
	EventFallbackFail
	EventRefreshStart
	EventRefreshDone
)

// Transition is the pure status function: no ambient flags, just
// (current state, event) to next state. Unknown combinations keep the
// current state.
func Transition(s Status, e Event) Status {
	switch e {
	case EventLoad:
		return StatusLoading
	case EventCacheHit:
		return StatusIdle
	case EventFetchStart, EventRefreshStart:
		return StatusRefreshing
	case EventFetchOK, EventFallbackOK, EventRefreshDone:
		return StatusIdle
	case EventFetchFail:
		// a failed fetch is not terminal until the fallback also fails
		return StatusRefreshing
	case EventFallbackFail:
		return StatusError
	default:
		return s
	}
}
