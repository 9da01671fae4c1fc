package conversation

// State is the position of a Loop in the turn state machine.
type State int32

const (
	// StateAwaitingUserInput is the idle state between user turns.
	StateAwaitingUserInput State = iota
	// StateModelRequested is set while the backend is being called.
	StateModelRequested
	// StateToolDispatch is set while requested tool calls are executed.
	StateToolDispatch
	// StateResponseReady is set when the turn has terminated.
	StateResponseReady
)

var stateNames = map[State]string{
	StateAwaitingUserInput: "AwaitingUserInput",
	StateModelRequested:    "ModelRequested",
	StateToolDispatch:      "ToolDispatch",
	StateResponseReady:     "ResponseReady",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "Unknown"
}
