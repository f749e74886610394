package transfer

// State is a step of the session state machine. States only move forward.
type State uint8

const (
	StateStart State = iota
	StateReadFilename
	StateReadLength
	StateAwaitDecision
	StateSendResponse
	StateOpenDestination
	StateReadPayload
	StateReadTerminator
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateStart:           "start",
	StateReadFilename:    "read_filename",
	StateReadLength:      "read_length",
	StateAwaitDecision:   "await_decision",
	StateSendResponse:    "send_response",
	StateOpenDestination: "open_destination",
	StateReadPayload:     "read_payload",
	StateReadTerminator:  "read_terminator",
	StateDone:            "done",
	StateAborted:         "aborted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}
