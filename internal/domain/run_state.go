package domain

// RunState tracks where a pipeline run currently is.
type RunState string

const (
	RunStateReceived     RunState = "RECEIVED"
	RunStateValidating   RunState = "VALIDATING"
	RunStateTransforming RunState = "TRANSFORMING"
	RunStateLogged       RunState = "LOGGED"
)

var runStateTransitions = map[RunState][]RunState{
	RunStateReceived:     {RunStateValidating},
	RunStateValidating:   {RunStateTransforming, RunStateLogged},
	RunStateTransforming: {RunStateLogged},
	RunStateLogged:       {},
}

// CanTransition reports whether moving from s to next is allowed.
func (s RunState) CanTransition(next RunState) bool {
	for _, allowed := range runStateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunStateLogged
}
