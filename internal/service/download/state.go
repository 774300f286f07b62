package download

// State is a step of one download request.
type State int

const (
	StateIdle State = iota
	StateAwaitingFormatChoice
	StateReserving
	StateFetching
	StateSizeChecking
	StateDelivering
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StateAwaitingFormatChoice: "awaiting_format_choice",
	StateReserving:            "reserving",
	StateFetching:             "fetching",
	StateSizeChecking:         "size_checking",
	StateDelivering:           "delivering",
	StateDone:                 "done",
	StateFailed:               "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Outcome is where a request ended. FailedIn and Err are set only when State is StateFailed.
type Outcome struct {
	State    State
	FailedIn State
	Err      error
}

func (o Outcome) Failed() bool { return o.State == StateFailed }
