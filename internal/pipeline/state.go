package pipeline

import (
	"fmt"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
)

// State is a stage of one chat request.
type State string

// Pipeline states in forward order. Failed is reachable from any
// non-terminal state.
const (
	StateReceived   State = "received"
	StateEmbedding  State = "embedding"
	StateRetrieving State = "retrieving"
	StateReranking  State = "reranking"
	StateGenerating State = "generating"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// transitions lists the legal forward moves. Reranking and persisting are
// optional, so generating and done each have two predecessors.
var transitions = map[State][]State{
	StateReceived:   {StateEmbedding},
	StateEmbedding:  {StateRetrieving},
	StateRetrieving: {StateReranking, StateGenerating},
	StateReranking:  {StateGenerating},
	StateGenerating: {StatePersisting, StateDone},
	StatePersisting: {StateDone},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// machine tracks the current state of one run.
type machine struct {
	state State
}

func newMachine() *machine {
	return &machine{state: StateReceived}
}

func (m *machine) current() State {
	return m.state
}

// to moves to next, or returns ErrCodeIllegalState without moving.
func (m *machine) to(next State) error {
	if m.state.Terminal() {
		return illegal(m.state, next)
	}
	if next == StateFailed {
		m.state = next
		return nil
	}
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return illegal(m.state, next)
}

func illegal(from, to State) error {
	return perrors.New(perrors.ErrCodeIllegalState, fmt.Sprintf("illegal transition %s -> %s", from, to), nil)
}
