package cognition

import (
	"math"

	"github.com/curbz/cognition/pkg/geometry"
	"github.com/curbz/cognition/pkg/util"
)

// TimeManagement adjusts speed so the vehicle reaches the merge fix at its
// scheduled time. A speed change is only commanded when the required speed
// moves by more than the configured tolerance.
func (c *Core) TimeManagement() (Command, bool) {
	in := &c.state.Inputs
	m := &c.state.Machines
	p := &c.state.Progress
	if !in.Merge.Active || !in.Merge.WPMetricTime || !p.Plans[p.Active].Defined() {
		m.mergeSpeed = 0
		return Command{}, false
	}

	dist := geometry.DistM(in.Kinematics.Position, p.WPNext[p.Active])
	remaining := in.Merge.RefWPTime - in.ScenarioTime
	required := c.cfg.MaxSpeed
	if remaining > 0 {
		required = dist / remaining
	}
	required = util.Clamp(required, c.cfg.MinSpeed, c.cfg.MaxSpeed)

	if m.mergeSpeed > 0 && math.Abs(required-m.mergeSpeed) <= c.cfg.SpeedTolerance {
		return Command{}, false
	}
	m.mergeSpeed = required
	c.SendStatus(SeverityInfo, "merging: %.1f m/s to reach waypoint %d at %.0f s", required, p.NextWP, in.Merge.RefWPTime)
	return modeCommand(ModeSpeedChange, required), true
}

// mergeFixReached replaces the waypoint reached report while merging with
// the arrival error against the schedule.
func (c *Core) mergeFixReached() {
	in := &c.state.Inputs
	c.SendStatus(SeverityInfo, "merge fix %d reached, %+.1f s against schedule",
		c.state.Progress.ReachedWP, in.ScenarioTime-in.Merge.RefWPTime)
}
