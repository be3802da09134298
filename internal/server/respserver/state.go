package respserver

// State is the phase of a client connection.
//
//	Connecting -> ReadingCommand -> Executing -> WritingReply -> ReadingCommand
//
// Any state moves to Closing on a decode error, peer shutdown, timeout,
// QUIT, server shutdown or a failed write. Closing becomes Closed once the
// outbound buffer is flushed or discarded.
type State int32

const (
	StateConnecting State = iota
	StateReadingCommand
	StateExecuting
	StateWritingReply
	StateClosing
	StateClosed
)

var stateNames = [...]string{
	StateConnecting:     "connecting",
	StateReadingCommand: "reading",
	StateExecuting:      "executing",
	StateWritingReply:   "writing",
	StateClosing:        "closing",
	StateClosed:         "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// canMove reports whether the transition from s to next is legal.
func (s State) canMove(next State) bool {
	switch next {
	case StateClosing:
		return s != StateClosed
	case StateClosed:
		return s == StateClosing
	case StateReadingCommand:
		return s == StateConnecting || s == StateWritingReply || s == StateReadingCommand
	case StateExecuting:
		return s == StateReadingCommand || s == StateWritingReply
	case StateWritingReply:
		return s == StateExecuting
	}
	return false
}
