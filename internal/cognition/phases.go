package cognition

import (
	"github.com/curbz/cognition/pkg/geometry"
)

// Each phase function reports its outcome for the cycle and the command it
// wants flown. Plan following phases return the nominal command.

// Idle waits for a mission start and a primary flight plan.
func (c *Core) Idle() (Outcome, Command) {
	ms := c.state.Inputs.Mission.Start
	if ms < 0 || !c.state.Progress.PrimaryFPReceived {
		return Running, modeCommand(ModeNoop)
	}
	return Succeeded, modeCommand(ModeNoop)
}

// Taxi is complete as soon as it is entered; ground movement is handled
// outside the core.
func (c *Core) Taxi() (Outcome, Command) {
	return Succeeded, modeCommand(ModeNoop)
}

// Takeoff commands a vertical takeoff and succeeds on the autopilot's
// report or on reaching the takeoff altitude above the launch point.
func (c *Core) Takeoff() (Outcome, Command) {
	m := &c.state.Machines
	k := c.state.Inputs.Kinematics
	cmd := modeCommand(ModeTakeoff, c.cfg.TakeoffAltitude)

	if m.TakeoffState == Initializing {
		m.launchAlt = k.Position.Alt
		m.TakeoffState = Running
		return Initializing, cmd
	}
	switch {
	case c.state.Inputs.Mission.TakeoffComplete < 0:
		m.TakeoffState = Failed
	case c.state.Inputs.Mission.TakeoffComplete > 0 || k.Position.Alt-m.launchAlt >= c.cfg.TakeoffAltitude:
		m.TakeoffState = Succeeded
	}
	return m.TakeoffState, cmd
}

// Climb follows the plan up to the altitude of the next primary waypoint.
// It fails when altitude stops increasing for the configured number of
// cycles.
func (c *Core) Climb() (Outcome, Command) {
	m := &c.state.Machines
	alt := c.state.Inputs.Kinematics.Position.Alt
	cmd := c.nominalCommand()

	if m.PhaseOutcome == Initializing {
		m.climbBest = alt
		m.climbStall = 0
		return Running, cmd
	}
	if alt >= c.climbTarget()-c.cfg.ClimbAngleVRange {
		return Succeeded, cmd
	}
	if alt > m.climbBest+0.5 {
		m.climbBest = alt
		m.climbStall = 0
	} else {
		m.climbStall++
	}
	if m.climbStall >= c.cfg.ClimbStallCycles {
		return Failed, cmd
	}
	return Running, cmd
}

func (c *Core) climbTarget() float64 {
	p := &c.state.Progress
	target := c.state.Machines.launchAlt + c.cfg.TakeoffAltitude
	if fp := p.Plans[PrimaryPlan]; fp.Defined() {
		target = max(target, fp.Waypoints[p.NextPlanWP[PrimaryPlan]].Alt)
	}
	return target
}

// Cruise follows the plan until top of descent or the end of the primary
// plan.
func (c *Core) Cruise() (Outcome, Command) {
	m := &c.state.Machines
	p := &c.state.Progress

	if m.CruiseState == Initializing {
		m.CruiseState = Running
	}
	if p.Active == PrimaryPlan && (p.TopOfDescent || p.FP1Complete) {
		m.CruiseState = Succeeded
	}
	return m.CruiseState, c.nominalCommand()
}

// Descent follows the plan down until close to the final waypoint.
func (c *Core) Descent() (Outcome, Command) {
	cmd := c.nominalCommand()
	final, ok := c.finalWaypoint()
	if !ok {
		return Failed, cmd
	}
	pos := c.state.Inputs.Kinematics.Position
	if pos.Alt-final.Alt <= c.cfg.ApproachAltitude || geometry.DistM(pos, final) <= c.cfg.ApproachDistance {
		return Succeeded, cmd
	}
	return Running, cmd
}

// Approach follows the plan to the final waypoint.
func (c *Core) Approach() (Outcome, Command) {
	cmd := c.nominalCommand()
	final, ok := c.finalWaypoint()
	if !ok {
		return Failed, cmd
	}
	pos := c.state.Inputs.Kinematics.Position
	if c.state.Progress.FP1Complete || geometry.DistM(pos, final) <= c.captureRadius() {
		return Succeeded, cmd
	}
	return Running, cmd
}

// Landing commands a landing at the landing site and succeeds once the
// autopilot reports the vehicle on the ground.
func (c *Core) Landing() (Outcome, Command) {
	if c.state.Inputs.Kinematics.Landed {
		return Succeeded, modeCommand(ModeNoop)
	}
	s := c.state.Machines.landingSite
	return Running, modeCommand(ModeLand, s.Lat, s.Lon, s.Alt)
}

// EmergencyDescent flies to the ditch site when ditching on a feasible
// route, otherwise descends in place down to the emergency floor.
func (c *Core) EmergencyDescent() (Outcome, Command) {
	m := &c.state.Machines
	k := c.state.Inputs.Kinematics
	d := c.state.Inputs.Ditch

	first := m.EmergencyDescentState == Initializing
	if first {
		m.EmergencyDescentState = Running
	}

	if m.Ditching && !d.RouteFeasible && !m.ditchWarned {
		m.ditchWarned = true
		c.SendStatus(SeverityWarning, "ditch route infeasible, descending in place")
	}

	if m.Ditching && d.RouteFeasible {
		if d.End || k.Landed {
			m.EmergencyDescentState = Succeeded
		}
		var cmd Command
		if geometry.DistM(k.Position, d.Site) <= c.guidanceRadius() {
			cmd = modeCommand(ModeLand, d.Site.Lat, d.Site.Lon, d.Site.Alt)
		} else {
			cmd = c.flyTo(geometry.Position{Lat: d.Site.Lat, Lon: d.Site.Lon, Alt: k.Position.Alt})
		}
		return c.emergencyOutcome(first), cmd
	}

	if k.Landed || k.Position.Alt-m.launchAlt <= c.cfg.EmergencyFloor {
		m.EmergencyDescentState = Succeeded
	}
	return c.emergencyOutcome(first), velCommand(k.Heading, 0, -c.cfg.EmergencyDescentRate)
}

func (c *Core) emergencyOutcome(first bool) Outcome {
	if first && c.state.Machines.EmergencyDescentState != Succeeded {
		return Initializing
	}
	return c.state.Machines.EmergencyDescentState
}

func (c *Core) finalWaypoint() (geometry.Position, bool) {
	fp := c.state.Progress.Plans[PrimaryPlan]
	if !fp.Defined() {
		return geometry.Position{}, false
	}
	return fp.Waypoints[fp.Len()-1].Position, true
}
