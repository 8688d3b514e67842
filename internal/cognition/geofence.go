package cognition

import (
	"github.com/curbz/cognition/pkg/geometry"
)

type geofenceResolver struct{}

func (geofenceResolver) trigger(c *Core) bool {
	g := c.state.Inputs.Geofence
	return g.KeepInConflict || g.KeepOutConflict
}

func (geofenceResolver) initialize(c *Core) {
	c.state.Machines.GeofenceCommand = Command{}
	c.state.Progress.P2PActive = false
	kind := "keep-in"
	if c.state.Inputs.Geofence.KeepOutConflict {
		kind = "keep-out"
	}
	c.SendStatus(SeverityWarning, "geofence %s violation", kind)
}

func (geofenceResolver) compute(c *Core) (Command, bool) {
	m := &c.state.Machines
	pos := c.state.Inputs.Kinematics.Position

	if target, ok := c.geofenceRecovery(); ok && c.pathClear(pos, target) {
		cmd := c.flyTo(target)
		m.GeofenceCommand = cmd
		return cmd, true
	}
	cmd, ready := c.replan(&m.Geofence)
	if ready {
		m.GeofenceCommand = cmd
	}
	return cmd, ready
}

func (geofenceResolver) resolve(c *Core) Command {
	cmd := c.state.Machines.GeofenceCommand
	if cmd.Mode == ModeSecondaryFlightPlan {
		return c.nominalCommand()
	}
	return cmd
}

func (geofenceResolver) complete(c *Core) {
	m := &c.state.Machines
	c.state.Progress.P2PActive = false
	m.PendingReturn = true
	c.SendStatus(SeverityInfo, "geofence conflict resolved")
}

func (geofenceResolver) progress(c *Core) (float64, bool) {
	p := &c.state.Progress
	if !p.P2PActive {
		return 0, false
	}
	return geometry.DistM(c.state.Inputs.Kinematics.Position, p.P2PTarget), true
}

// geofenceRecovery picks the point to fly back to: the monitor's recovery
// position for a keep-out violation, otherwise the last position seen
// outside any violation.
func (c *Core) geofenceRecovery() (geometry.Position, bool) {
	g := c.state.Inputs.Geofence
	if g.KeepOutConflict {
		return g.RecoveryPosition, true
	}
	p := &c.state.Progress
	return p.LastSafePosition, p.HaveSafePosition
}

// flyTo builds a point to point command and arms p2p completion tracking.
func (c *Core) flyTo(target geometry.Position) Command {
	p := &c.state.Progress
	p.P2PTarget = target
	p.P2PActive = true
	p.P2PComplete = false
	return p2pCommand(target, c.waypointSpeed())
}
