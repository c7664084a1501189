package controller

import (
	"gridpilot.ai/internal/sim/grid"
	"gridpilot.ai/internal/sim/navigation"
)

type Phase string

const (
	SeekingObject Phase = "SEEKING_OBJECT"
	Transporting  Phase = "TRANSPORTING"
)

// Controller picks one action per tick for a single agent. Its phase and
// carrying flags are the only state kept between ticks; it is not safe for
// concurrent use, but separate controllers share nothing.
type Controller struct {
	missionID string
	advanced  bool
	params    navigation.Params

	phase    Phase
	carrying bool
}

type Option func(*Controller)

func WithParams(p navigation.Params) Option {
	return func(c *Controller) { c.params = p }
}

// New builds a controller for one mission. Advanced missions start by seeking the
// designated object; the rest start transporting.
func New(missionID string, advanced bool, opts ...Option) *Controller {
	c := &Controller{
		missionID: missionID,
		advanced:  advanced,
		params:    navigation.DefaultParams(),
		phase:     Transporting,
	}
	if advanced {
		c.phase = SeekingObject
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) MissionID() string { return c.missionID }
func (c *Controller) Advanced() bool    { return c.advanced }
func (c *Controller) Phase() Phase      { return c.phase }

// Carrying reports whether a lift has been issued and no drop since.
func (c *Controller) Carrying() bool { return c.carrying }

type Decision struct {
	Action Action

	// Phase after this tick.
	Phase    Phase
	Carrying bool

	// Mode and Result are zero when no search ran.
	Mode   navigation.Mode
	Result navigation.Result

	Reason string
}

const (
	ReasonAtTarget = "at_target"
	ReasonAtGoal   = "at_goal"
	ReasonNoTarget = "no_target"
	ReasonNoGoal   = "no_goal"
	ReasonNoPath   = "no_path"
	ReasonStep     = "step"
)

func (c *Controller) NextMove(snap *grid.Snapshot) Action {
	return c.Decide(snap).Action
}

// Decide runs one tick. snap is read, never modified.
func (c *Controller) Decide(snap *grid.Snapshot) Decision {
	if snap == nil {
		snap = &grid.Snapshot{}
	}
	if c.phase == SeekingObject {
		return c.seek(snap)
	}
	return c.transport(snap)
}

func (c *Controller) seek(snap *grid.Snapshot) Decision {
	target, ok := snap.TargetCell()
	if !ok {
		return c.decision(ActionNone, ReasonNoTarget)
	}
	if snap.Self == target {
		c.phase = Transporting
		c.carrying = true
		return c.decision(ActionLiftObject, ReasonAtTarget)
	}
	res := navigation.Search(snap, navigation.Query{
		Origin:   snap.Self,
		Goal:     func(p grid.Cell) bool { return p == target },
		Carrying: false,
		Mode:     navigation.AllShortest,
	}, c.params)
	return c.follow(snap, navigation.AllShortest, res)
}

func (c *Controller) transport(snap *grid.Snapshot) Decision {
	if snap.IsGoal(snap.Self) {
		c.carrying = false
		return c.decision(ActionDropObject, ReasonAtGoal)
	}
	if snap.Goals.Len() == 0 {
		return c.decision(ActionNone, ReasonNoGoal)
	}
	res := navigation.Search(snap, navigation.Query{
		Origin:   snap.Self,
		Goal:     snap.IsGoal,
		Carrying: c.carrying,
		Mode:     navigation.FirstMatch,
	}, c.params)
	return c.follow(snap, navigation.FirstMatch, res)
}

func (c *Controller) follow(snap *grid.Snapshot, mode navigation.Mode, res navigation.Result) Decision {
	next, ok := res.Path.Next()
	if !res.Found || !ok {
		d := c.decision(ActionNone, ReasonNoPath)
		d.Mode, d.Result = mode, res
		return d
	}
	d := c.decision(StepToward(snap.Self, next), ReasonStep)
	d.Mode, d.Result = mode, res
	return d
}

func (c *Controller) decision(a Action, reason string) Decision {
	return Decision{Action: a, Phase: c.phase, Carrying: c.carrying, Reason: reason}
}
