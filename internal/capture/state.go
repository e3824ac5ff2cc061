package capture

import "fmt"

// State is a recording session's lifecycle position.
type State int

const (
	Idle State = iota
	Recording
	Stopping
	Processing
	Responded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Processing:
		return "processing"
	case Responded:
		return "responded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether a new Start may begin from s after an implicit reset.
func (s State) Terminal() bool {
	return s == Responded || s == Failed
}

// Event drives a transition.
type Event int

const (
	EventStart Event = iota
	EventStop
	EventAssembled
	EventRespond
	EventFail
	EventReset
)

func (e Event) String() string {
	return [...]string{"start", "stop", "assembled", "respond", "fail", "reset"}[e]
}

var transitions = map[State]map[Event]State{
	Idle: {
		EventStart: Recording,
		EventFail:  Failed,
	},
	Recording: {
		EventStop: Stopping,
		EventFail: Failed,
	},
	Stopping: {
		EventAssembled: Processing,
		EventFail:      Failed,
	},
	Processing: {
		EventRespond: Responded,
		EventFail:    Failed,
	},
	Responded: {
		EventStart: Recording,
		EventReset: Idle,
	},
	Failed: {
		EventStart: Recording,
		EventReset: Idle,
	},
}

// Next returns the state reached from s on ev, or an error when ev is not
// valid in s.
func Next(s State, ev Event) (State, error) {
	if next, ok := transitions[s][ev]; ok {
		return next, nil
	}
	return s, fmt.Errorf("cannot %s while %s", ev, s)
}
