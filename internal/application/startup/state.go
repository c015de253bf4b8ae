package startup

// State is a phase of the one-shot startup sequence.
type State int32

// States in the order the coordinator moves through them. AwaitingMount is
// skipped in local mode.
const (
	StateNotStarted State = iota
	StateDetectingEnvironment
	StateAwaitingMount
	StateLoadingConfig
	StateReadyForTraffic
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateDetectingEnvironment:
		return "detecting_environment"
	case StateAwaitingMount:
		return "awaiting_mount"
	case StateLoadingConfig:
		return "loading_config"
	case StateReadyForTraffic:
		return "ready_for_traffic"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}
