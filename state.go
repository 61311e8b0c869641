package audiochain

import (
	"fmt"
	"sync/atomic"

	"pipelined.dev/audiochain/fault"
)

// PipeState identifies the lifecycle state of the engine graph.
type PipeState int32

// Pipe states.
const (
	// Built means chunks and algos can be created and connected.
	Built PipeState = iota
	// Playing means the graph is initialized and scheduled.
	Playing
	// Cleanup is a transitional state of teardown after stop or failure.
	Cleanup
	// Stopped means the graph was played and torn down. It can be mutated
	// and played again.
	Stopped
)

var pipeStateNames = [...]string{
	Built:   "built",
	Playing: "playing",
	Cleanup: "cleanup",
	Stopped: "stopped",
}

func (s PipeState) String() string {
	if s >= 0 && int(s) < len(pipeStateNames) {
		return pipeStateNames[s]
	}
	return fmt.Sprintf("pipe state(%d)", s)
}

// Command is passed to Play.
type Command uint8

// Play commands.
const (
	Start Command = iota
	Stop
	Clean
)

func (c Command) String() string {
	switch c {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Clean:
		return "cleanup"
	}
	return fmt.Sprintf("command(%d)", c)
}

// AlgoState identifies the tuning state of algo instance.
type AlgoState int32

// Algo states.
const (
	// Disabled algo is skipped by the scheduler.
	Disabled AlgoState = iota
	// Enabled algo is processed every frame.
	Enabled
	// ApplyConfigRequested means that staged dynamic config is committed
	// at the next process slot.
	ApplyConfigRequested
	// ApplyReinitRequested means that staged static config is committed
	// with reinit at the next process slot.
	ApplyReinitRequested
	// ApplyReinitOnGoing means that algo is reinitialized. It's not
	// processed.
	ApplyReinitOnGoing
	// ApplyReinitCompleted means that reinit succeeded. Processing resumes
	// one cycle later.
	ApplyReinitCompleted
)

var algoStateNames = [...]string{
	Disabled:             "disabled",
	Enabled:              "enabled",
	ApplyConfigRequested: "applyConfigRequested",
	ApplyReinitRequested: "applyReinitRequested",
	ApplyReinitOnGoing:   "applyReinitOnGoing",
	ApplyReinitCompleted: "applyReinitCompleted",
}

func (s AlgoState) String() string {
	if s >= 0 && int(s) < len(algoStateNames) {
		return algoStateNames[s]
	}
	return fmt.Sprintf("algo state(%d)", s)
}

// processes returns true if algo in this state can be processed.
func (s AlgoState) processes() bool {
	return s == Enabled || s == ApplyConfigRequested
}

// algoTransitions lists legal transitions. Disabled is reachable from
// every state.
var algoTransitions = map[AlgoState][]AlgoState{
	Disabled:             {Enabled},
	Enabled:              {ApplyConfigRequested, ApplyReinitRequested},
	ApplyConfigRequested: {Enabled},
	ApplyReinitRequested: {ApplyReinitOnGoing},
	// failed reinit returns to last good config
	ApplyReinitOnGoing:   {ApplyReinitCompleted, Enabled},
	ApplyReinitCompleted: {Enabled},
}

// CanTransition returns true if algo can move from one state to another.
func CanTransition(from, to AlgoState) bool {
	if to == Disabled || from == to {
		return true
	}
	for _, s := range algoTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionFunc observes algo state changes.
type TransitionFunc func(a AlgoRef, from, to AlgoState)

// algoState is an atomic holder of algo state.
type algoState struct {
	v atomic.Int32
}

func (s *algoState) load() AlgoState {
	return AlgoState(s.v.Load())
}

// transition moves state if transition is legal.
func (s *algoState) transition(name string, to AlgoState) (AlgoState, error) {
	from := s.load()
	if !CanTransition(from, to) {
		return from, fault.New(fault.InvalidState, "algo transition", name, "%v to %v", from, to)
	}
	s.v.Store(int32(to))
	return from, nil
}

// pipeState is an atomic holder of pipe state.
type pipeState struct {
	v atomic.Int32
}

func (s *pipeState) load() PipeState {
	return PipeState(s.v.Load())
}

func (s *pipeState) store(v PipeState) {
	s.v.Store(int32(v))
}

// mutable returns error if graph structure cannot be changed.
func (s *pipeState) mutable(op, subject string) error {
	if st := s.load(); st == Playing || st == Cleanup {
		return fault.New(fault.InvalidState, op, subject, "pipe is %v", st)
	}
	return nil
}
