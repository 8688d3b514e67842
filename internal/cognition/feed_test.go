package cognition

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSetFlightPlanRejectsEmpty(t *testing.T) {
	f := newFeed()
	err := f.SetFlightPlan(PrimaryPlan, FlightPlan{ID: "empty"})
	if !errors.Is(err, ErrEmptyFlightPlan) {
		t.Fatalf("err = %v, want ErrEmptyFlightPlan", err)
	}
	if l := f.latch(); l.inputs.Plans[PrimaryPlan].Defined() {
		t.Errorf("empty plan was installed")
	}
}

func TestSetFlightPlanResendKeepsRevision(t *testing.T) {
	f := newFeed()
	plan := surveyPlan()
	if err := f.SetFlightPlan(PrimaryPlan, plan); err != nil {
		t.Fatalf("SetFlightPlan: %v", err)
	}
	first := f.latch().inputs.Plans[PrimaryPlan].Revision

	if err := f.SetFlightPlan(PrimaryPlan, surveyPlan()); err != nil {
		t.Fatalf("SetFlightPlan: %v", err)
	}
	if got := f.latch().inputs.Plans[PrimaryPlan].Revision; got != first {
		t.Errorf("identical re-send moved revision %d to %d", first, got)
	}

	plan.Waypoints[2].Alt = 80
	if err := f.SetFlightPlan(PrimaryPlan, plan); err != nil {
		t.Fatalf("SetFlightPlan: %v", err)
	}
	l := f.latch()
	if got := l.inputs.Plans[PrimaryPlan].Revision; got == first {
		t.Errorf("changed plan kept revision %d", got)
	}
	if got := l.inputs.Plans[PrimaryPlan].Waypoints[2].Alt; got != 80 {
		t.Errorf("waypoint 2 altitude = %v, want 80", got)
	}
}

func TestUpdateTrafficKeepsPreviousOnTooManyBands(t *testing.T) {
	f := newFeed()
	good := advisory(true)
	good.PreferredTrack = 45
	if err := f.UpdateTraffic(good); err != nil {
		t.Fatalf("UpdateTraffic: %v", err)
	}

	bad := advisory(false)
	bad.TrackBands = make(TrackBands, MaxTrackBands+1)
	if err := f.UpdateTraffic(bad); !errors.Is(err, ErrTooManyBands) {
		t.Fatalf("err = %v, want ErrTooManyBands", err)
	}
	if l := f.latch(); !l.inputs.Traffic.Conflict || l.inputs.Traffic.PreferredTrack != 45 {
		t.Errorf("previous advisory lost: %+v", l.inputs.Traffic)
	}
}

func TestLatchIsolatesCycle(t *testing.T) {
	f := newFeed()
	plan := surveyPlan()
	if err := f.SetFlightPlan(PrimaryPlan, plan); err != nil {
		t.Fatalf("SetFlightPlan: %v", err)
	}
	fences := []Geofence{{ID: "a", Vertices: [][2]float64{{0, 0}, {0, 1}, {1, 1}}}}
	f.SetFences(fences)

	l := f.latch()
	fences[0].Vertices[0] = [2]float64{9, 9}
	plan.Waypoints[0].Alt = 999
	if v := l.inputs.Fences[0].Vertices[0]; v != [2]float64{0, 0} {
		t.Errorf("latched fence changed to %v", v)
	}
	if got := l.inputs.Plans[PrimaryPlan].Waypoints[0].Alt; got != 0 {
		t.Errorf("latched waypoint altitude = %v, want 0", got)
	}
	if l.inputs.Plans[PrimaryPlan].Revision == 0 {
		t.Errorf("plan revision not stamped")
	}
}

func TestLatchFlags(t *testing.T) {
	f := newFeed()
	if l := f.latch(); l.kinematicsNew || l.reset || l.path != nil {
		t.Fatalf("fresh feed latched %+v", l)
	}

	f.UpdateKinematics(Kinematics{GroundSpeed: 3})
	f.RequestReset()
	f.DeliverPath(PathResult{Waypoints: []Waypoint{{}}})
	l := f.latch()
	if !l.kinematicsNew || !l.reset || l.path == nil {
		t.Fatalf("latched %+v, want new kinematics, reset and a path", l)
	}

	if l = f.latch(); l.kinematicsNew || l.reset || l.path != nil {
		t.Errorf("flags not consumed: %+v", l)
	}
	if l.inputs.Kinematics.GroundSpeed != 3 {
		t.Errorf("kinematics not retained between latches")
	}
}

func TestClockNeverRegresses(t *testing.T) {
	s := newSim(t)
	s.step()
	last := s.now
	s.c.Feed().UpdateClock(last.Add(-time.Second), 0)
	r, err := s.c.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !r.Time.Equal(last) {
		t.Errorf("time = %v, want held at %v", r.Time, last)
	}
	if st := s.c.State(); st.Inputs.ScenarioTime != s.scen {
		t.Errorf("scenario time = %v, want held at %v", st.Inputs.ScenarioTime, s.scen)
	}
}
