package flow

import "fmt"

type State string

const (
	StateModuleWelcome  State = "MODULE_WELCOME"
	StateSegmentContent State = "SEGMENT_CONTENT"
	StateExercise       State = "EXERCISE"
	StateModuleComplete State = "MODULE_COMPLETE"

	// StateFreeConversation is used by non-learning-flow sessions and is not
	// subject to the transition table.
	StateFreeConversation State = "FREE_CONVERSATION"
)

type Action string

const (
	ActionBeginModule   Action = "BEGIN_MODULE"
	ActionNextSegment   Action = "NEXT_SEGMENT"
	ActionStartExercise Action = "START_EXERCISE"
	ActionSubmitAnswer  Action = "SUBMIT_ANSWER"
)

// Snapshot is the slice of progress the guards look at.
type Snapshot struct {
	SegmentCount          int
	CompletedSegmentCount int
}

type transition struct {
	from   State
	action Action
	to     State
	guard  func(Snapshot) bool
}

// Table order matters: the first matching row whose guard passes wins, so the
// guarded SEGMENT_CONTENT -> MODULE_COMPLETE row sits after the unguarded
// SEGMENT_CONTENT -> SEGMENT_CONTENT row only for readability; lookup checks
// guards per row.
var transitions = []transition{
	{from: StateModuleWelcome, action: ActionBeginModule, to: StateModuleWelcome},
	{from: StateModuleWelcome, action: ActionNextSegment, to: StateSegmentContent},
	{from: StateSegmentContent, action: ActionStartExercise, to: StateExercise},
	{from: StateExercise, action: ActionSubmitAnswer, to: StateSegmentContent},
	{from: StateSegmentContent, action: ActionNextSegment, to: StateSegmentContent},
	{
		from:   StateSegmentContent,
		action: ActionNextSegment,
		to:     StateModuleComplete,
		guard: func(s Snapshot) bool {
			return s.CompletedSegmentCount == s.SegmentCount
		},
	},
}

type InvalidTransitionError struct {
	From   State
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.Action)
}

func findTransition(state State, action Action, snap Snapshot) *transition {
	var fallback *transition
	for i := range transitions {
		t := &transitions[i]
		if t.from != state || t.action != action {
			continue
		}
		if t.guard == nil {
			if fallback == nil {
				fallback = t
			}
			continue
		}
		if t.guard(snap) {
			return t
		}
	}
	return fallback
}

// CanTransition reports whether action is legal in state for the given
// progress snapshot. There is no implicit stay: unmatched pairs are illegal.
func CanTransition(state State, action Action, snap Snapshot) bool {
	return findTransition(state, action, snap) != nil
}

// Transition returns the next state or an *InvalidTransitionError.
func Transition(state State, action Action, snap Snapshot) (State, error) {
	t := findTransition(state, action, snap)
	if t == nil {
		return "", &InvalidTransitionError{From: state, Action: action}
	}
	return t.to, nil
}

// AllowedActions lists the actions the client may take from state, guard
// satisfaction included. Guarded rows override unguarded ones for the same
// (state, action) pair, so each action appears at most once.
func AllowedActions(state State, snap Snapshot) []Action {
	seen := make(map[Action]bool)
	var actions []Action
	for i := range transitions {
		t := &transitions[i]
		if t.from != state || seen[t.action] {
			continue
		}
		if t.guard != nil && !t.guard(snap) {
			continue
		}
		seen[t.action] = true
		actions = append(actions, t.action)
	}
	return actions
}

func IsTerminal(state State) bool {
	return state == StateModuleComplete
}
