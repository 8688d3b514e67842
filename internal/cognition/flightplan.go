package cognition

import (
	"math"

	"github.com/curbz/cognition/pkg/geometry"
)

// minFenceArea is the smallest polygon area, in square degrees, treated as
// a real fence. Degenerate definitions are ignored.
const minFenceArea = 1e-10

// firstWP is the index a fresh plan starts tracking at. Waypoint 0 is the
// plan origin, so tracking starts at 1 when there is more than one.
func firstWP(fp FlightPlan) int {
	if fp.Len() > 1 {
		return 1
	}
	return 0
}

func (c *Core) captureRadius() float64 {
	gs := c.state.Inputs.Kinematics.GroundSpeed
	return math.Max(c.cfg.MinCaptureRadius, c.cfg.CaptureRadiusScaling*gs)
}

func (c *Core) guidanceRadius() float64 {
	gs := c.state.Inputs.Kinematics.GroundSpeed
	return math.Max(c.cfg.MinCaptureRadius, c.cfg.GuidanceRadiusScaling*gs)
}

func (p *PlanProgress) complete(slot PlanSlot) *bool {
	if slot == SecondaryPlan {
		return &p.FP2Complete
	}
	return &p.FP1Complete
}

// trackFlightPlan advances waypoints, recomputes cross-track deviation and
// maintains the fallback waypoints of both plans.
func (c *Core) trackFlightPlan() {
	p := &c.state.Progress
	in := &c.state.Inputs
	pos := in.Kinematics.Position
	p.WPReached = false

	for slot := PrimaryPlan; slot <= SecondaryPlan; slot++ {
		fp := in.Plans[slot]
		if fp.Revision == 0 || fp.Revision == p.revisions[slot] {
			continue
		}
		p.revisions[slot] = fp.Revision
		c.installPlan(slot, fp)
	}

	for slot := PrimaryPlan; slot <= SecondaryPlan; slot++ {
		if !p.Plans[slot].Defined() {
			continue
		}
		c.advanceWaypoint(slot)
		c.trackSegment(slot)
	}

	if p.WPReached {
		if in.Merge.Active {
			c.mergeFixReached()
		} else {
			c.SendStatus(SeverityInfo, "reached waypoint %d of %s plan %s", p.ReachedWP, p.Active, p.CurrentPlanID)
			c.state.Output.SendStatusWPReached = true
			c.state.Output.ReachedWP = p.ReachedWP
			c.state.Output.ReachedPlanID = p.CurrentPlanID
		}
	}

	if p.Active == SecondaryPlan && p.FP2Complete && p.Plans[PrimaryPlan].Defined() {
		c.SendStatus(SeverityInfo, "secondary plan %s complete, resuming primary plan at waypoint %d",
			p.Plans[SecondaryPlan].ID, p.NextPlanWP[PrimaryPlan])
		c.switchPlan(PrimaryPlan)
	}

	if p.P2PActive && geometry.DistM(pos, p.P2PTarget) <= c.guidanceRadius() {
		p.P2PComplete = true
	}

	p.NextWP = p.NextPlanWP[p.Active]
	p.NumWaypoints = p.Plans[p.Active].Len()
	p.TopOfDescent = c.topOfDescent()

	if !in.Geofence.KeepInConflict && !in.Geofence.KeepOutConflict {
		p.LastSafePosition = pos
		p.HaveSafePosition = true
	}
}

// installPlan puts fp into slot and reseeds its tracking.
func (c *Core) installPlan(slot PlanSlot, fp FlightPlan) {
	p := &c.state.Progress
	p.Plans[slot] = fp
	p.NextPlanWP[slot] = firstWP(fp)
	p.NextFeasibleWP[slot] = p.NextPlanWP[slot]
	*p.complete(slot) = false

	if slot == PrimaryPlan && !p.PrimaryFPReceived {
		p.PrimaryFPReceived = true
		c.switchPlan(PrimaryPlan)
	}
	if slot == p.Active {
		c.switchPlan(slot)
	}
	c.SendStatus(SeverityInfo, "%s flight plan %s loaded with %d waypoints", slot, fp.ID, fp.Len())
}

// switchPlan makes slot the active plan. Plan flags, plan id and the
// active waypoint index change together.
func (c *Core) switchPlan(slot PlanSlot) {
	p := &c.state.Progress
	if p.Active != slot {
		c.log.Debug("active plan switched", "from", p.Active.String(), "to", slot.String())
	}
	p.Active = slot
	p.Plan0 = slot == PrimaryPlan
	p.Plan1 = slot == SecondaryPlan
	p.CurrentPlanID = p.Plans[slot].ID
	p.NextWP = p.NextPlanWP[slot]
	p.NumWaypoints = p.Plans[slot].Len()
}

// advanceWaypoint moves past the next waypoint once it is inside the
// capture radius. The final waypoint marks the plan complete instead.
func (c *Core) advanceWaypoint(slot PlanSlot) {
	p := &c.state.Progress
	fp := p.Plans[slot]
	last := fp.Len() - 1
	next := min(p.NextPlanWP[slot], last)
	p.NextPlanWP[slot] = next
	if *p.complete(slot) {
		return
	}

	pos := c.state.Inputs.Kinematics.Position
	if geometry.DistM(pos, fp.Waypoints[next].Position) > c.captureRadius() {
		return
	}
	if slot == p.Active {
		p.WPReached = true
		p.ReachedWP = next
	}
	if next < last {
		p.NextPlanWP[slot] = next + 1
	} else {
		*p.complete(slot) = true
	}
}

// trackSegment computes the deviation from the current leg and the
// fallback target used when the next waypoint cannot be flown directly.
func (c *Core) trackSegment(slot PlanSlot) {
	p := &c.state.Progress
	fp := p.Plans[slot]
	pos := c.state.Inputs.Kinematics.Position
	next := p.NextPlanWP[slot]

	nextPos := fp.Waypoints[next].Position
	prevPos := pos
	if next > 0 {
		prevPos = fp.Waypoints[next-1].Position
	}
	p.WPPrev[slot], p.WPNext[slot] = prevPos, nextPos

	xtd := 0.0
	if next > 0 {
		xtd, _ = geometry.CrossTrack(prevPos, nextPos, pos)
		xtd = math.Abs(xtd)
	}
	allowed := c.state.Inputs.CrossTrack.AllowedDeviation[slot]
	if allowed <= 0 {
		allowed = c.cfg.XtrkDev
	}
	p.XtrackDeviation[slot] = xtd
	p.AllowedXtrackDev[slot] = allowed
	p.XtrackConflict[slot] = xtd > allowed
	p.DirectPathFeasible[slot] = c.pathClear(pos, nextPos)

	p.NextFeasibleWP[slot] = next
	p.FallbackFeasible[slot] = false
	cp := geometry.ClosestPointOnSegment(prevPos, nextPos, pos)
	if c.pathClear(pos, cp) && c.pathClear(cp, nextPos) {
		p.WPNextFallback[slot] = cp
		p.FallbackFeasible[slot] = true
		return
	}
	for j := next + 1; j < fp.Len(); j++ {
		if c.pathClear(pos, fp.Waypoints[j].Position) {
			p.WPNextFallback[slot] = fp.Waypoints[j].Position
			p.NextFeasibleWP[slot] = j
			p.FallbackFeasible[slot] = true
			return
		}
	}
}

// pathClear reports whether the straight path a-b respects every fence.
// Fences a is already violating are skipped so an exit path is not
// rejected by the fence being escaped.
func (c *Core) pathClear(a, b geometry.Position) bool {
	for _, f := range c.state.Inputs.Fences {
		if geometry.CalculateRoughArea(f.Vertices) < minFenceArea {
			continue
		}
		if f.Contains(a) != f.KeepIn {
			continue
		}
		if geometry.SegmentCrossesPolygon(a, b, f.Vertices) {
			return false
		}
	}
	return true
}

// topOfDescent reports whether the remaining primary plan distance is
// within what a descent at the configured climb angle needs.
func (c *Core) topOfDescent() bool {
	p := &c.state.Progress
	if p.Active != PrimaryPlan || !p.Plans[PrimaryPlan].Defined() {
		return false
	}
	wps := p.Plans[PrimaryPlan].Waypoints
	final := wps[len(wps)-1].Position
	pos := c.state.Inputs.Kinematics.Position

	drop := pos.Alt - final.Alt
	if drop <= c.cfg.AltitudeTolerance {
		return false
	}
	next := p.NextPlanWP[PrimaryPlan]
	remaining := geometry.DistM(pos, wps[next].Position)
	for i := next; i < len(wps)-1; i++ {
		remaining += geometry.DistM(wps[i].Position, wps[i+1].Position)
	}
	need := drop/math.Tan(c.cfg.ClimbAngle*math.Pi/180) + c.cfg.ClimbAngleHRange
	return remaining <= need
}

// nominalCommand follows the active flight plan, or holds without one.
func (c *Core) nominalCommand() Command {
	p := &c.state.Progress
	if !p.Plans[p.Active].Defined() {
		return c.holdCommand()
	}
	return planCommand(p.Active, p.CurrentPlanID, p.NextWP)
}

// waypointSpeed is the commanded speed toward the active next waypoint.
func (c *Core) waypointSpeed() float64 {
	p := &c.state.Progress
	fp := p.Plans[p.Active]
	if fp.Defined() && p.NextWP < fp.Len() && fp.Waypoints[p.NextWP].Speed > 0 {
		return fp.Waypoints[p.NextWP].Speed
	}
	return c.cfg.DefaultWpSpeed
}
