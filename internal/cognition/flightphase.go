package cognition

import (
	"github.com/curbz/cognition/pkg/geometry"
)

// nextPhase is the nominal successor of each phase.
var nextPhase = map[FlightPhase]FlightPhase{
	PhaseIdle:             PhaseTaxi,
	PhaseTaxi:             PhaseTakeoff,
	PhaseTakeoff:          PhaseClimb,
	PhaseClimb:            PhaseCruise,
	PhaseCruise:           PhaseDescent,
	PhaseDescent:          PhaseApproach,
	PhaseApproach:         PhaseLanding,
	PhaseEmergencyDescent: PhaseLanding,
	PhaseLanding:          PhaseLanding,
}

func (c *Core) phaseFunc(p FlightPhase) func() (Outcome, Command) {
	switch p {
	case PhaseIdle:
		return c.Idle
	case PhaseTaxi:
		return c.Taxi
	case PhaseTakeoff:
		return c.Takeoff
	case PhaseClimb:
		return c.Climb
	case PhaseCruise:
		return c.Cruise
	case PhaseDescent:
		return c.Descent
	case PhaseApproach:
		return c.Approach
	case PhaseEmergencyDescent:
		return c.EmergencyDescent
	}
	return c.Landing
}

// FlightPhases runs the flight phase machine for one cycle. While a
// conflict machine holds authority the phase functions are not run, but an
// emergency still preempts.
func (c *Core) FlightPhases(conflictHeld bool) (Command, Authority) {
	m := &c.state.Machines
	c.checkEmergency()
	if conflictHeld && c.conflictPhase() {
		return c.holdCommand(), AuthorityNominal
	}

	phase := m.Phase
	outcome, cmd := c.phaseFunc(phase)()
	auth := phaseAuthority(cmd)

	if outcome == Running && (phase == PhaseCruise || phase == PhaseApproach) {
		if mcmd, ok := c.TimeManagement(); ok {
			cmd, auth = mcmd, AuthorityMerge
		}
	}

	prev := m.PhaseOutcome
	m.PhaseOutcome = outcome
	switch outcome {
	case Succeeded:
		if phase == PhaseLanding {
			if prev != Succeeded {
				c.SendStatus(SeverityInfo, "landed")
			}
			break
		}
		if phase == PhaseIdle && c.state.Inputs.Mission.Start > 0 {
			c.startAirborne()
			break
		}
		c.setPhase(nextPhase[phase], "%s complete", phase)
	case Failed:
		c.enterEmergency(c.state.Inputs.Ditch.Ditch && !c.state.Inputs.Ditch.Reset, "%s failed", phase)
		return c.holdCommand(), AuthorityPhase
	}
	return cmd, auth
}

func phaseAuthority(cmd Command) Authority {
	switch cmd.Mode {
	case ModePrimaryFlightPlan, ModeSecondaryFlightPlan:
		return AuthorityNominal
	}
	return AuthorityPhase
}

// checkEmergency preempts every phase but LANDING on a ditch request or an
// unrecoverable conflict, and undoes a ditch on a reset.
func (c *Core) checkEmergency() {
	m := &c.state.Machines
	d := c.state.Inputs.Ditch

	if m.Phase == PhaseEmergencyDescent && m.Ditching && d.Reset {
		m.Ditching = false
		m.ditchWarned = false
		c.SendStatus(SeverityNotice, "ditch cancelled, resuming cruise")
		c.setPhase(PhaseCruise, "ditch reset")
		return
	}
	if m.Phase == PhaseLanding {
		return
	}
	switch {
	case d.Ditch && !d.Reset && !m.Ditching:
		c.enterEmergency(true, "ditch requested")
	case m.Unrecoverable:
		c.enterEmergency(d.Ditch && !d.Reset, "unrecoverable %s conflict", m.UnrecoverableBy)
	}
}

// enterEmergency switches to EMERGENCY_DESCENT and reports it.
func (c *Core) enterEmergency(ditch bool, format string, args ...any) {
	m := &c.state.Machines
	reason := c.printer.Sprintf(format, args...)
	m.Ditching = ditch
	m.Unrecoverable = false
	m.ditchWarned = false
	c.SendStatus(SeverityCritical, "emergency descent: %s", reason)
	c.setPhase(PhaseEmergencyDescent, "%s", reason)
}

// setPhase enters phase to and resets its per-phase state.
func (c *Core) setPhase(to FlightPhase, format string, args ...any) {
	m := &c.state.Machines
	from := m.Phase
	reason := c.printer.Sprintf(format, args...)

	switch to {
	case PhaseTakeoff:
		m.TakeoffState = Initializing
	case PhaseCruise:
		m.CruiseState = Initializing
	case PhaseEmergencyDescent:
		m.EmergencyDescentState = Initializing
	case PhaseLanding:
		m.landingSite = c.landingSite(from)
	}
	m.Phase = to
	m.PhaseOutcome = Initializing

	c.event(Event{Kind: EventPhase, Source: "flight phase", From: from.String(), To: to.String(), Text: reason})
	c.log.Info("flight phase", "from", from.String(), "to", to.String(), "reason", reason, "cycle", c.cycle)
	if to != PhaseEmergencyDescent {
		c.SendStatus(SeverityInfo, "%s, entering %s", reason, to)
	}
}

// landingSite is the final primary waypoint on a nominal approach, the
// ditch site when ditching and the current position otherwise.
func (c *Core) landingSite(from FlightPhase) geometry.Position {
	m := &c.state.Machines
	pos := c.state.Inputs.Kinematics.Position
	if from == PhaseEmergencyDescent {
		if m.Ditching && c.state.Inputs.Ditch.RouteFeasible {
			return c.state.Inputs.Ditch.Site
		}
		return pos
	}
	if final, ok := c.finalWaypoint(); ok {
		return final
	}
	return pos
}

// startAirborne begins a mission in flight: tracking jumps to the mission
// start waypoint and the vehicle goes straight to CRUISE.
func (c *Core) startAirborne() {
	p := &c.state.Progress
	m := &c.state.Machines
	fp := p.Plans[PrimaryPlan]
	k := min(c.state.Inputs.Mission.Start, fp.Len()-1)
	p.NextPlanWP[PrimaryPlan] = k
	p.NextFeasibleWP[PrimaryPlan] = k
	c.switchPlan(PrimaryPlan)
	m.launchAlt = fp.Waypoints[0].Alt
	c.setPhase(PhaseCruise, "airborne start at waypoint %d", k)
}

// effectivePhase reports MERGING while a merge schedule is active in
// CRUISE or APPROACH.
func (c *Core) effectivePhase() FlightPhase {
	m := &c.state.Machines
	if c.state.Inputs.Merge.Active && (m.Phase == PhaseCruise || m.Phase == PhaseApproach) {
		return PhaseMerging
	}
	return m.Phase
}
