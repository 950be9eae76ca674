package guardrail

import "fmt"

// Action is the outcome of a guardrail evaluation.
type Action string

const (
	// ActionAllow lets the intended action proceed unchanged.
	ActionAllow Action = "allow"

	// ActionRedirect steers the user toward a different, safer path.
	ActionRedirect Action = "redirect"

	// ActionRestrict lets a reduced form of the action proceed.
	ActionRestrict Action = "restrict"

	// ActionBlock stops the action entirely.
	ActionBlock Action = "block"
)

// Actions lists every action in increasing order of restrictiveness.
var Actions = []Action{ActionAllow, ActionRedirect, ActionRestrict, ActionBlock}

// Priority returns the position of the action in the restrictiveness order.
// Unknown actions return -1 so they never win a comparison.
func (a Action) Priority() int {
	switch a {
	case ActionAllow:
		return 0
	case ActionRedirect:
		return 1
	case ActionRestrict:
		return 2
	case ActionBlock:
		return 3
	default:
		return -1
	}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a.Priority() >= 0
}

// AtLeast reports whether a is as restrictive as other or more.
func (a Action) AtLeast(other Action) bool {
	return a.Priority() >= other.Priority()
}

// String returns the action name.
func (a Action) String() string {
	return string(a)
}

// MoreRestrictive returns the more restrictive of a and b. On a tie, a is
// returned.
func MoreRestrictive(a, b Action) Action {
	if b.Priority() > a.Priority() {
		return b
	}
	return a
}

// ParseAction converts a string to an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q (valid: allow, redirect, restrict, block)", s)
	}
	return a, nil
}
