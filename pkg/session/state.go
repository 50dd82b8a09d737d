package session

import "fmt"

// AgentState is the call's single turn-taking state.
type AgentState int32

const (
	// StateListening: caller audio flows to recognition.
	StateListening AgentState = iota
	// StateProcessing: an utterance flushed and a reply is generating.
	StateProcessing
	// StateSpeaking: reply audio is being sent or playing.
	StateSpeaking
)

func (s AgentState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// legalNext is the transition graph. Same-state re-entry is always
// allowed and handled before this table is consulted.
var legalNext = map[AgentState]AgentState{
	StateListening:  StateProcessing,
	StateProcessing: StateSpeaking,
	StateSpeaking:   StateListening,
}

// ErrIllegalTransition wraps a rejected state change. The gateway treats
// it as fatal to the call.
type ErrIllegalTransition struct {
	From, To AgentState
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal agent state transition %s -> %s", e.From, e.To)
}
