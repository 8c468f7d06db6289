package orchestrator

// State is a stage of a run.
type State int

const (
	Idle State = iota
	Resolving
	BuildingContext
	Reviewing
	Aggregating
	Done
	Failed
)

var stateNames = [...]string{"idle", "resolving", "building-context", "reviewing", "aggregating", "done", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	Idle:            {Resolving},
	Resolving:       {BuildingContext, Failed},
	BuildingContext: {Reviewing, Done},
	Reviewing:       {Aggregating, Done},
	Aggregating:     {BuildingContext, Done},
	Done:            {Resolving},
	Failed:          {Resolving},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
