package cognition

import (
	"github.com/curbz/cognition/pkg/geometry"
)

// xtrackResolver recovers from a deviation that left the next waypoint
// unreachable in a straight line.
type xtrackResolver struct{}

func (xtrackResolver) trigger(c *Core) bool {
	p := &c.state.Progress
	a := p.Active
	return p.Plans[a].Defined() && p.XtrackConflict[a] && !p.DirectPathFeasible[a]
}

func (xtrackResolver) initialize(c *Core) {
	p := &c.state.Progress
	c.state.Machines.XtrackCommand = Command{}
	p.P2PActive = false
	c.SendStatus(SeverityNotice, "cross-track deviation %.0f m exceeds %.0f m, waypoint %d not directly reachable",
		p.XtrackDeviation[p.Active], p.AllowedXtrackDev[p.Active], p.NextWP)
}

// compute prefers the active plan's fallback, then the other plan's unless
// it is already flown to completion, and asks for a new path when neither
// is reachable.
func (xtrackResolver) compute(c *Core) (Command, bool) {
	m := &c.state.Machines
	p := &c.state.Progress
	for _, slot := range []PlanSlot{p.Active, p.Active.other()} {
		if !p.Plans[slot].Defined() || !p.FallbackFeasible[slot] {
			continue
		}
		if slot != p.Active && *p.complete(slot) {
			continue
		}
		if slot != p.Active {
			c.SendStatus(SeverityNotice, "joining %s plan %s", slot, p.Plans[slot].ID)
			c.switchPlan(slot)
		}
		cmd := c.flyTo(p.WPNextFallback[slot])
		m.XtrackCommand = cmd
		return cmd, true
	}
	cmd, ready := c.replan(&m.Xtrack)
	if ready {
		m.XtrackCommand = cmd
	}
	return cmd, ready
}

func (xtrackResolver) resolve(c *Core) Command {
	p := &c.state.Progress
	if c.state.Machines.XtrackCommand.Mode == ModeSecondaryFlightPlan {
		return c.nominalCommand()
	}
	if p.FallbackFeasible[p.Active] {
		return c.flyTo(p.WPNextFallback[p.Active])
	}
	return c.state.Machines.XtrackCommand
}

func (xtrackResolver) complete(c *Core) {
	c.state.Progress.P2PActive = false
	c.state.Machines.PendingReturn = true
	c.SendStatus(SeverityInfo, "cross-track recovery complete")
}

func (xtrackResolver) progress(c *Core) (float64, bool) {
	p := &c.state.Progress
	return p.XtrackDeviation[p.Active], true
}

// returnResolver is ReturnToNextWP: after another conflict completes it
// brings the vehicle back onto the active plan.
type returnResolver struct{}

func (returnResolver) trigger(c *Core) bool {
	return c.state.Machines.PendingReturn && c.offNominalPath()
}

func (returnResolver) initialize(c *Core) {
	p := &c.state.Progress
	c.SendStatus(SeverityNotice, "returning to %s plan at waypoint %d", p.Active, p.NextWP)
}

// compute waits for traffic to report a safe turn back, holding the last
// resolution meanwhile.
func (returnResolver) compute(c *Core) (Command, bool) {
	m := &c.state.Machines
	if m.AwaitReturnSafe && !c.state.Inputs.Traffic.ReturnSafe {
		return c.holdResolution(), false
	}
	m.AwaitReturnSafe = false
	if target, ok := c.returnTarget(); ok {
		return c.flyTo(target), true
	}
	return c.replan(&m.Return)
}

func (returnResolver) resolve(c *Core) Command {
	if target, ok := c.returnTarget(); ok {
		return c.flyTo(target)
	}
	return c.nominalCommand()
}

func (returnResolver) complete(c *Core) {
	m := &c.state.Machines
	p := &c.state.Progress
	m.PendingReturn = false
	m.AwaitReturnSafe = false
	p.P2PActive = false
	c.SendStatus(SeverityInfo, "rejoined %s plan %s", p.Active, p.CurrentPlanID)
}

func (returnResolver) progress(c *Core) (float64, bool) {
	p := &c.state.Progress
	return p.XtrackDeviation[p.Active], true
}

// ReturnToNextWP reports whether the return machine is bringing the
// vehicle back to its plan.
func (c *Core) ReturnToNextWP() bool {
	return c.state.Machines.Return.State != ConflictNoop
}

// returnTarget is the next waypoint when it can be flown directly,
// otherwise the fallback point.
func (c *Core) returnTarget() (geometry.Position, bool) {
	p := &c.state.Progress
	a := p.Active
	switch {
	case p.DirectPathFeasible[a]:
		return p.WPNext[a], true
	case p.FallbackFeasible[a]:
		return p.WPNextFallback[a], true
	}
	return geometry.Position{}, false
}
