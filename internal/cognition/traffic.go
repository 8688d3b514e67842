package cognition

import (
	"math"

	"github.com/curbz/cognition/pkg/util"
)

type trafficResolver struct{}

func (trafficResolver) trigger(c *Core) bool {
	return c.state.Inputs.Traffic.Conflict
}

// initialize snapshots the current state as the fallback resolution.
func (trafficResolver) initialize(c *Core) {
	m := &c.state.Machines
	k := c.state.Inputs.Kinematics
	m.PrevRes = Resolution{
		Type:   ResolutionNone,
		Track:  k.Heading,
		Speed:  k.GroundSpeed,
		Alt:    k.Position.Alt,
		VSpeed: 0,
	}
	m.AwaitReturnSafe = false
	c.SendStatus(SeverityWarning, "traffic conflict detected")
}

func (trafficResolver) compute(c *Core) (Command, bool) {
	m := &c.state.Machines
	m.PrevRes.Type = c.GetResolutionType()
	if m.PrevRes.Type == ResolutionSearch {
		return c.replan(&m.Traffic)
	}
	c.SendStatus(SeverityNotice, "traffic resolution: %s", m.PrevRes.Type)
	return c.RunTrafficResolution(), true
}

func (trafficResolver) resolve(c *Core) Command {
	if c.state.Machines.PrevRes.Type == ResolutionSearch {
		return c.nominalCommand()
	}
	return c.RunTrafficResolution()
}

func (trafficResolver) complete(c *Core) {
	m := &c.state.Machines
	m.PendingReturn = true
	m.AwaitReturnSafe = m.PrevRes.Type != ResolutionSearch
	c.SendStatus(SeverityInfo, "traffic conflict resolved")
}

func (trafficResolver) progress(*Core) (float64, bool) { return 0, false }

// GetResolutionType selects how to resolve the current traffic conflict.
// A feasible type suggested by the detection service wins; otherwise the
// configured priority is walked in order. SEARCH is the fallback when no
// kinematic resolution is feasible.
func (c *Core) GetResolutionType() ResolutionType {
	t := c.state.Inputs.Traffic
	if t.Suggested == ResolutionSearch || (t.Suggested != ResolutionNone && c.resolutionFeasible(t.Suggested)) {
		return t.Suggested
	}
	for _, r := range c.cfg.ResolutionPriority {
		if c.resolutionFeasible(r) {
			return r
		}
	}
	return ResolutionSearch
}

func (c *Core) resolutionFeasible(r ResolutionType) bool {
	t := c.state.Inputs.Traffic
	switch r {
	case ResolutionTrack:
		return util.Finite(t.PreferredTrack) && !t.TrackBands.Conflicting(t.PreferredTrack)
	case ResolutionSpeed:
		return util.Finite(t.PreferredSpeed) && t.PreferredSpeed >= c.cfg.MinSpeed && t.PreferredSpeed <= c.cfg.MaxSpeed
	case ResolutionAltitude:
		return util.Finite(t.PreferredAlt)
	case ResolutionVerticalSpeed:
		return t.VSBandsNum > 0 && (util.Finite(t.ResVUp) || util.Finite(t.ResVDown))
	}
	return false
}

// RunTrafficResolution turns the selected resolution into a velocity
// command, bypassing flight plan following. A dimension whose advisory has
// gone invalid keeps its last valid value.
func (c *Core) RunTrafficResolution() Command {
	m := &c.state.Machines
	t := c.state.Inputs.Traffic
	k := c.state.Inputs.Kinematics
	res := &m.PrevRes

	switch res.Type {
	case ResolutionTrack:
		if util.Finite(t.PreferredTrack) {
			res.Track = t.PreferredTrack
		}
		return velCommand(res.Track, k.GroundSpeed, 0)

	case ResolutionSpeed:
		if util.Finite(t.PreferredSpeed) {
			res.Speed = util.Clamp(t.PreferredSpeed, c.cfg.MinSpeed, c.cfg.MaxSpeed)
		}
		return velCommand(k.Heading, res.Speed, 0)

	case ResolutionAltitude:
		if util.Finite(t.PreferredAlt) {
			res.Alt = t.PreferredAlt
		}
		res.VSpeed = c.climbRateToward(res.Alt)
		return velCommand(k.Heading, k.GroundSpeed, res.VSpeed)

	case ResolutionVerticalSpeed:
		if vs, ok := c.bandVerticalSpeed(); ok {
			res.VSpeed = vs
		}
		return velCommand(k.Heading, k.GroundSpeed, res.VSpeed)
	}
	return c.holdCommand()
}

// climbRateToward is a proportional vertical speed toward alt, limited to
// the configured climb and descent rates.
func (c *Core) climbRateToward(alt float64) float64 {
	err := alt - c.state.Inputs.Kinematics.Position.Alt
	return util.Clamp(c.cfg.ClimbRateGain*err, c.cfg.MinClimbRate, c.cfg.MaxClimbRate)
}

// bandVerticalSpeed picks the smaller magnitude of the advised climb and
// descent rates.
func (c *Core) bandVerticalSpeed() (float64, bool) {
	t := c.state.Inputs.Traffic
	up, down := t.ResVUp, t.ResVDown
	var vs float64
	switch {
	case util.Finite(up) && util.Finite(down):
		vs = up
		if math.Abs(down) < math.Abs(up) {
			vs = down
		}
	case util.Finite(up):
		vs = up
	case util.Finite(down):
		vs = down
	default:
		return 0, false
	}
	return util.Clamp(vs, c.cfg.MinClimbRate, c.cfg.MaxClimbRate), true
}

// holdResolution keeps flying the last traffic resolution.
func (c *Core) holdResolution() Command {
	switch c.state.Machines.PrevRes.Type {
	case ResolutionTrack, ResolutionSpeed, ResolutionAltitude, ResolutionVerticalSpeed:
		return c.RunTrafficResolution()
	}
	return c.holdCommand()
}
