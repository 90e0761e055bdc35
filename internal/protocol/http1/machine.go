package http1

import (
	"fmt"

	"github.com/indigo-web/preview/http/status"
)

// State is the phase a connection is in. Every connection starts Idle.
type State uint8

const (
	// Idle waits for the next request head.
	Idle State = iota
	// AwaitingBody drains the body of the received request.
	AwaitingBody
	// SendingResponse streams the response. Inbound bytes are left untouched meanwhile.
	SendingResponse
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingBody:
		return "AwaitingBody"
	case SendingResponse:
		return "SendingResponse"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

type Event uint8

const (
	RequestReceived Event = iota + 1
	RequestComplete
	ResponseComplete
)

func (e Event) String() string {
	switch e {
	case RequestReceived:
		return "requestReceived"
	case RequestComplete:
		return "requestComplete"
	case ResponseComplete:
		return "responseComplete"
	default:
		return fmt.Sprintf("Event(%d)", uint8(e))
	}
}

// TransitionError is returned for an event the current state cannot accept. It
// matches status.ErrProtocolViolation.
type TransitionError struct {
	From  State
	Event Event
}

func (t TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s in state %s", t.Event, t.From)
}

func (t TransitionError) Unwrap() error {
	return status.ErrProtocolViolation
}

// Transition returns the state following the event. On an illegal event the
// state is returned unchanged together with a TransitionError.
func Transition(from State, event Event) (State, error) {
	switch from {
	case Idle:
		if event == RequestReceived {
			return AwaitingBody, nil
		}
	case AwaitingBody:
		if event == RequestComplete {
			return SendingResponse, nil
		}
	case SendingResponse:
		if event == ResponseComplete {
			return Idle, nil
		}
	}

	return from, TransitionError{From: from, Event: event}
}

// Machine holds the state of a single connection. It isn't safe for concurrent
// use, as it is meant to be touched by the connection's event loop only.
type Machine struct {
	state State
}

func (m *Machine) State() State {
	return m.state
}

// Fire applies the event. The state stays the same if the event is illegal.
func (m *Machine) Fire(event Event) error {
	next, err := Transition(m.state, event)
	if err != nil {
		return err
	}

	m.state = next
	return nil
}
