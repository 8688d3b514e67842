package cognition

import (
	"strings"
	"testing"

	"github.com/curbz/cognition/pkg/geometry"
)

func TestWaypointCaptureAdvances(t *testing.T) {
	s := newSim(t)
	s.cruising(1, at(500, 0, 50))

	s.place(at(995, 0, 50))
	r := s.step()
	o := r.Output
	if !o.SendStatusWPReached || o.ReachedWP != 1 {
		t.Fatalf("waypoint reached = %v %d, want waypoint 1", o.SendStatusWPReached, o.ReachedWP)
	}
	if !strings.Contains(o.Status, "reached waypoint 1 of primary plan survey") {
		t.Errorf("status = %q", o.Status)
	}
	if o.Command != ModePrimaryFlightPlan || o.Params[0] != 2 {
		t.Errorf("command = %s %v, want PRIMARY_FLIGHTPLAN [2]", o.Command, o.Params)
	}
	if r = s.step(); r.Output.SendStatusWPReached {
		t.Errorf("waypoint 1 reported twice")
	}

	var reached []int
	last := s.c.State().Progress.NextWP
	for north := 1000.0; north <= 2010; north += 5 {
		s.place(at(north, 0, 50))
		r := s.step()
		if r.Output.SendStatusWPReached {
			reached = append(reached, r.Output.ReachedWP)
		}
		next := s.c.State().Progress.NextWP
		if next < last {
			t.Fatalf("next waypoint went back from %d to %d at %.0f m", last, next, north)
		}
		last = next
	}
	if len(reached) != 1 || reached[0] != 2 || last != 3 {
		t.Fatalf("reached %v next %d, want [2] next 3", reached, last)
	}

	if err := s.c.Feed().SetFlightPlan(PrimaryPlan, surveyPlan()); err != nil {
		t.Fatalf("SetFlightPlan: %v", err)
	}
	s.step()
	if p := s.c.State().Progress; p.NextWP != 3 {
		t.Errorf("re-sent plan moved next waypoint to %d", p.NextWP)
	}
}

func TestMergingSuppressesWaypointReached(t *testing.T) {
	s := newSim(t)
	s.cruising(1, at(500, 0, 50))
	s.c.Feed().UpdateMerge(MergeSchedule{Active: true, RefWPTime: 100})

	s.place(at(995, 0, 50))
	r := s.step()
	if r.EffectivePhase != PhaseMerging {
		t.Fatalf("effective phase = %s, want MERGING", r.EffectivePhase)
	}
	if r.Output.SendStatusWPReached {
		t.Errorf("waypoint reached published while merging")
	}
	if !strings.Contains(r.Output.Status, "merge fix 1 reached") {
		t.Errorf("status = %q, want the merge fix report", r.Output.Status)
	}
	if p := s.c.State().Progress; p.NextWP != 2 {
		t.Errorf("next waypoint = %d, want 2", p.NextWP)
	}
}

func TestSecondaryPlanCompleteResumesPrimary(t *testing.T) {
	s := newSim(t)
	s.cruising(1, at(500, 0, 50))
	if err := s.c.Feed().UpdateTraffic(advisory(true)); err != nil {
		t.Fatalf("UpdateTraffic: %v", err)
	}
	s.until(5, "path request", func(r Report) bool { return r.Output.PathRequest })
	s.c.Feed().DeliverPath(PathResult{Waypoints: []Waypoint{
		{Position: at(550, 50, 50)},
		{Position: at(800, 50, 50)},
		{Position: at(1200, 0, 50)},
	}})
	if r := s.step(); r.PlanID != "survey-detour" {
		t.Fatalf("plan = %q, want the detour", r.PlanID)
	}

	s.place(at(560, 50, 50))
	if err := s.c.Feed().UpdateTraffic(advisory(false)); err != nil {
		t.Fatalf("UpdateTraffic: %v", err)
	}
	s.step()
	s.step()
	if st := s.c.State(); st.Machines.Traffic.State != ConflictNoop || st.Machines.PendingReturn {
		t.Fatalf("traffic %s pending return %v", st.Machines.Traffic.State, st.Machines.PendingReturn)
	}

	s.place(at(795, 50, 50))
	r := s.step()
	if !r.Output.SendStatusWPReached || r.Output.ReachedWP != 1 || r.PlanID != "survey-detour" {
		t.Fatalf("detour waypoint 1 not reported: %v %d %q", r.Output.SendStatusWPReached, r.Output.ReachedWP, r.PlanID)
	}

	s.place(at(1195, 0, 50))
	r = s.step()
	if o := r.Output; !o.SendStatusWPReached || o.ReachedWP != 2 || o.ReachedPlanID != "survey-detour" {
		t.Errorf("final detour waypoint not reported: %v %d %q", o.SendStatusWPReached, o.ReachedWP, o.ReachedPlanID)
	}
	p := s.c.State().Progress
	if !p.FP2Complete || p.Active != PrimaryPlan || !p.Plan0 || p.Plan1 {
		t.Fatalf("after detour: complete %v active %s plan0 %v plan1 %v", p.FP2Complete, p.Active, p.Plan0, p.Plan1)
	}
	if r.PlanID != "survey" || r.Output.Command != ModePrimaryFlightPlan || r.Output.Params[0] != 1 {
		t.Errorf("command = %s %v on %q, want PRIMARY_FLIGHTPLAN [1] on survey", r.Output.Command, r.Output.Params, r.PlanID)
	}
}

func TestKeepInRecoversToLastSafePosition(t *testing.T) {
	s := newSim(t)
	s.cruising(1, at(500, 0, 50))
	safe := at(500, 0, 50)

	s.place(at(500, 30, 50))
	s.c.Feed().UpdateGeofence(GeofenceStatus{KeepInConflict: true})
	r := s.step()
	if r.Authority != AuthorityGeofence || !strings.Contains(r.Output.Status, "keep-in") {
		t.Fatalf("first cycle: %s %q", r.Authority, r.Output.Status)
	}
	if p := s.c.State().Progress; p.LastSafePosition != safe {
		t.Errorf("last safe position moved into the violation: %+v", p.LastSafePosition)
	}

	s.step()
	r = s.step()
	if r.Output.Command != ModePoint2Point {
		t.Fatalf("resolution = %s, want POINT2POINT", r.Output.Command)
	}
	if r.Output.Params[0] != safe.Lat || r.Output.Params[1] != safe.Lon {
		t.Errorf("target = %v, want the last safe position", r.Output.Params[:2])
	}

	s.c.Feed().UpdateGeofence(GeofenceStatus{})
	s.step()
	s.step()
	r = s.step()
	if !r.Returning || r.Authority != AuthorityReturn {
		t.Fatalf("return not started: returning %v authority %s", r.Returning, r.Authority)
	}
	s.step()
	r = s.step()
	wp1 := surveyPlan().Waypoints[1].Position
	if r.Output.Command != ModePoint2Point || r.Output.Params[0] != wp1.Lat || r.Output.Params[1] != wp1.Lon {
		t.Errorf("return command = %s %v, want POINT2POINT to waypoint 1", r.Output.Command, r.Output.Params)
	}

	s.place(safe)
	s.step()
	r = s.step()
	if r.Returning || r.Authority != AuthorityNominal {
		t.Errorf("after rejoining: returning %v authority %s", r.Returning, r.Authority)
	}
}

func TestGeofenceContains(t *testing.T) {
	f := fenceBox("box", 0, 100, 0, 100)
	f.Floor, f.Ceiling = 10, 60
	tests := []struct {
		name string
		p    geometry.Position
		want bool
	}{
		{"inside", at(50, 50, 30), true},
		{"outside laterally", at(150, 50, 30), false},
		{"below floor", at(50, 50, 5), false},
		{"above ceiling", at(50, 50, 70), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.Contains(tc.p); got != tc.want {
				t.Errorf("Contains = %v, want %v", got, tc.want)
			}
		})
	}

	f.Ceiling = 0
	if !f.Contains(at(50, 50, 5000)) {
		t.Errorf("zero ceiling should be unbounded")
	}
}
