package controller

import "gridpilot.ai/internal/sim/grid"

type Action string

const (
	ActionNone  Action = "NONE"
	ActionUp    Action = "UP"
	ActionDown  Action = "DOWN"
	ActionLeft  Action = "LEFT"
	ActionRight Action = "RIGHT"

	// Only meaningful in advanced missions; the host ignores them otherwise.
	ActionLiftObject Action = "LIFT_OBJECT"
	ActionDropObject Action = "DROP_OBJECT"
)

var knownActions = map[Action]struct{}{
	ActionNone:       {},
	ActionUp:         {},
	ActionDown:       {},
	ActionLeft:       {},
	ActionRight:      {},
	ActionLiftObject: {},
	ActionDropObject: {},
}

func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

func ParseAction(s string) (Action, bool) {
	a := Action(s)
	if !a.Valid() {
		return ActionNone, false
	}
	return a, true
}

// StepToward maps a neighboring target to a move, checking RIGHT, LEFT, UP, DOWN in that order.
// UP is +y.
func StepToward(from, to grid.Cell) Action {
	switch {
	case to.X > from.X:
		return ActionRight
	case to.X < from.X:
		return ActionLeft
	case to.Y > from.Y:
		return ActionUp
	case to.Y < from.Y:
		return ActionDown
	default:
		return ActionNone
	}
}
