package capture

// OnlineState classifies a Manager's attached inputs (spec §4.4).
type OnlineState int

const (
	StateOffline OnlineState = iota
	StateOnline
	StateMixed
)

func (s OnlineState) String() string {
	switch s {
	case StateOnline:
		return "Online"
	case StateMixed:
		return "Mixed"
	default:
		return "Offline"
	}
}

// RunState classifies the manager's run loop activity.
type RunState int

const (
	RunStopped RunState = iota
	RunRunning
	RunLoading
	RunPaused
)

func (r RunState) String() string {
	switch r {
	case RunRunning:
		return "Running"
	case RunLoading:
		return "Loading"
	case RunPaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// Status is the manager's derived {Online|Offline|Mixed} x
// {Running|Loading|Paused} snapshot (spec §4.4).
type Status struct {
	Online OnlineState
	Run    RunState
}
