package cognition

import (
	"math"
	"slices"
)

// resolver is the trigger and resolution body of one conflict machine.
// The machine shape is shared; see stepMachine.
type resolver interface {
	trigger(c *Core) bool
	initialize(c *Core)
	// compute returns the resolution and whether it is ready. While not
	// ready the returned command is what to fly meanwhile.
	compute(c *Core) (Command, bool)
	resolve(c *Core) Command
	complete(c *Core)
	// progress is a metric that shrinks as the conflict resolves; ok is
	// false when the conflict has none.
	progress(c *Core) (metric float64, ok bool)
}

type arbiter struct {
	machine   *ConflictMachine
	resolver  resolver
	authority Authority
}

// arbiters lists the conflict machines, highest priority first.
func (c *Core) arbiters() []arbiter {
	m := &c.state.Machines
	return []arbiter{
		{machine: &m.Geofence, resolver: geofenceResolver{}, authority: AuthorityGeofence},
		{machine: &m.Traffic, resolver: trafficResolver{}, authority: AuthorityTraffic},
		{machine: &m.Xtrack, resolver: xtrackResolver{}, authority: AuthorityXtrack},
		{machine: &m.Return, resolver: returnResolver{}, authority: AuthorityReturn},
	}
}

// conflictPhase reports whether conflict management runs in the current
// flight phase.
func (c *Core) conflictPhase() bool {
	return slices.Contains(c.cfg.ConflictPhases, c.state.Machines.Phase)
}

// manageConflicts steps the highest priority machine that is triggered or
// already active. Every lower machine is frozen in place for the cycle.
func (c *Core) manageConflicts() (Command, Authority, bool) {
	m := &c.state.Machines
	if m.PendingReturn && !c.offNominalPath() && m.Return.State == ConflictNoop {
		m.PendingReturn = false
		m.AwaitReturnSafe = false
	}
	if !c.conflictPhase() {
		return Command{}, AuthorityNominal, false
	}

	for _, a := range c.arbiters() {
		triggered := a.resolver.trigger(c)
		if !triggered && a.machine.State == ConflictNoop {
			continue
		}
		cmd, held := c.stepMachine(a.machine, a.resolver, triggered)
		if held {
			return cmd, a.authority, true
		}
		return Command{}, AuthorityNominal, false
	}
	return Command{}, AuthorityNominal, false
}

// stepMachine advances m by at most one transition and returns the command
// to fly and whether m holds command authority this cycle.
func (c *Core) stepMachine(m *ConflictMachine, r resolver, triggered bool) (Command, bool) {
	switch m.State {
	case ConflictNoop:
		c.transition(m, ConflictInitialize)
		r.initialize(c)
		return c.holdCommand(), true

	case ConflictInitialize:
		if !triggered {
			c.abandon(m)
			return Command{}, false
		}
		c.transition(m, ConflictCompute)
		m.stall = 0
		m.stallWarned = false
		return c.holdCommand(), true

	case ConflictCompute:
		if !triggered {
			c.abandon(m)
			return Command{}, false
		}
		cmd, ready := r.compute(c)
		if ready {
			c.transition(m, ConflictResolve)
			m.ResolveCycles = 0
			m.best = math.Inf(1)
			m.stall = 0
			m.stallWarned = false
		} else {
			c.watchCompute(m)
		}
		return cmd, true

	case ConflictResolve:
		if !triggered {
			c.transition(m, ConflictComplete)
			r.complete(c)
			c.request.Cancel(m.Name)
			return c.holdCommand(), true
		}
		m.ResolveCycles++
		c.watchProgress(m, r)
		return r.resolve(c), true

	case ConflictComplete:
		if triggered {
			c.transition(m, ConflictInitialize)
			r.initialize(c)
			return c.holdCommand(), true
		}
		c.transition(m, ConflictNoop)
		m.rejectNoted = false
		return Command{}, false
	}
	return Command{}, false
}

// abandon drops a conflict that cleared before a resolution was flown.
func (c *Core) abandon(m *ConflictMachine) {
	c.request.Cancel(m.Name)
	c.transition(m, ConflictNoop)
	m.rejectNoted = false
}

func (c *Core) transition(m *ConflictMachine, to ConflictState) {
	from := m.State
	m.State = to
	c.event(Event{Kind: EventConflict, Source: m.Name, From: from.String(), To: to.String()})
	c.log.Debug("conflict state", "machine", m.Name, "from", from.String(), "to", to.String(), "cycle", c.cycle)
}

// watchProgress raises one warning when a resolution stops improving for
// the configured number of cycles.
func (c *Core) watchProgress(m *ConflictMachine, r resolver) {
	if metric, ok := r.progress(c); ok && metric < m.best-0.5 {
		m.best = metric
		m.stall = 0
		m.stallWarned = false
		return
	}
	m.stall++
	if m.stall >= c.cfg.ResolveStallCycles && !m.stallWarned {
		m.stallWarned = true
		c.SendStatus(SeverityWarning, "%s conflict unresolved after %d cycles, holding resolution", m.Name, m.ResolveCycles)
	}
}

// watchCompute raises one warning when no resolution has been computed
// for the configured number of cycles.
func (c *Core) watchCompute(m *ConflictMachine) {
	m.stall++
	if m.stall >= c.cfg.ResolveStallCycles && !m.stallWarned {
		m.stallWarned = true
		c.SendStatus(SeverityWarning, "%s conflict unresolved after %d cycles, no resolution available", m.Name, m.stall)
	}
}

// offNominalPath reports whether the vehicle is outside the allowed
// deviation of the active plan.
func (c *Core) offNominalPath() bool {
	p := &c.state.Progress
	return p.Plans[p.Active].Defined() && p.XtrackConflict[p.Active]
}

// replan drives a machine's path search. It posts a request when none is
// outstanding, installs a ready result as the active secondary plan and
// reports whether a plan command is ready.
func (c *Core) replan(m *ConflictMachine) (Command, bool) {
	c.preemptRequest(m)
	switch c.request.Poll() {
	case RequestReady:
		if c.request.Owner() != m.Name {
			break
		}
		res, err := c.request.Consume(m.Name)
		if err != nil {
			break
		}
		if len(res.Waypoints) == 0 {
			c.declareUnrecoverable(m.Name)
			return c.holdCommand(), false
		}
		c.installSearchPlan(res)
		p := &c.state.Progress
		return planCommand(SecondaryPlan, p.CurrentPlanID, p.NextWP), true

	case RequestPending:
		if c.request.Owner() == m.Name {
			return c.holdCommand(), false
		}
	}

	p := &c.state.Progress
	k := c.state.Inputs.Kinematics
	stop := p.WPNext[p.Active]
	if !p.Plans[p.Active].Defined() {
		stop = k.Position
	}
	_ = c.FindNewPath(m, c.cfg.SearchType, k.Position, k.Velocity, stop)
	return c.holdCommand(), false
}

// preemptRequest frees a request held by a machine of lower priority than
// m. The owner is frozen while m is active and posts again once it resumes.
func (c *Core) preemptRequest(m *ConflictMachine) {
	owner := c.request.Owner()
	if owner == "" || owner == m.Name {
		return
	}
	for _, a := range c.arbiters() {
		switch a.machine.Name {
		case owner:
			return
		case m.Name:
			c.request.Cancel(owner)
			c.log.Info("path request preempted", "owner", owner, "by", m.Name, "cycle", c.cycle)
			return
		}
	}
}

// installSearchPlan makes a path search result the active secondary plan.
func (c *Core) installSearchPlan(res PathResult) {
	p := &c.state.Progress
	id := p.Plans[PrimaryPlan].ID + "-detour"
	fp := FlightPlan{ID: id, Waypoints: res.Waypoints, Revision: p.revisions[SecondaryPlan]}
	c.installPlan(SecondaryPlan, fp)
	c.switchPlan(SecondaryPlan)
}

// declareUnrecoverable flags a conflict no resolution exists for. The
// flight phase machine answers it with an emergency descent.
func (c *Core) declareUnrecoverable(by string) {
	m := &c.state.Machines
	if m.Unrecoverable {
		return
	}
	m.Unrecoverable = true
	m.UnrecoverableBy = by
	c.SendStatus(SeverityCritical, "%s: no path exists, conflict unrecoverable", by)
}
