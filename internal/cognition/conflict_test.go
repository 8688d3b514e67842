package cognition

import (
	"math"
	"strings"
	"testing"

	"github.com/curbz/cognition/pkg/geometry"
)

func TestGeofenceKeepOutRecovery(t *testing.T) {
	s := newSim(t)
	s.cruising(1, at(500, 0, 50))
	recovery := at(450, 0, 50)
	s.c.Feed().UpdateGeofence(GeofenceStatus{KeepOutConflict: true, RecoveryPosition: recovery})

	r := s.step()
	if r.Authority != AuthorityGeofence || !hasEvent(r, EventConflict, "INITIALIZE") {
		t.Fatalf("first cycle: authority %s events %+v", r.Authority, r.Events)
	}
	if r.Output.Severity != SeverityWarning || !strings.Contains(r.Output.Status, "keep-out") {
		t.Errorf("status = %s %q, want the keep-out warning", r.Output.Severity, r.Output.Status)
	}
	if r.Output.Command != ModeVector || r.Output.Params[1] != 5 || r.Output.Params[2] != 0 {
		t.Errorf("initialize command = %s %v, want a level hold", r.Output.Command, r.Output.Params)
	}

	r = s.step()
	if !hasEvent(r, EventConflict, "COMPUTE") || r.Output.Command != ModeVector {
		t.Fatalf("second cycle: %s events %+v", r.Output.Command, r.Events)
	}

	r = s.step()
	if !hasEvent(r, EventConflict, "RESOLVE") {
		t.Fatalf("third cycle did not reach RESOLVE: %+v", r.Events)
	}
	want := []float64{recovery.Lat, recovery.Lon, 50, 5}
	if r.Output.Command != ModePoint2Point || len(r.Output.Params) != 4 {
		t.Fatalf("resolution = %s %v, want POINT2POINT", r.Output.Command, r.Output.Params)
	}
	for i, v := range want {
		if r.Output.Params[i] != v {
			t.Errorf("param %d = %v, want %v", i, r.Output.Params[i], v)
		}
	}
	if r = s.step(); r.Authority != AuthorityGeofence || r.Output.Command != ModePoint2Point {
		t.Errorf("resolving: %s by %s", r.Output.Command, r.Authority)
	}

	s.c.Feed().UpdateGeofence(GeofenceStatus{})
	r = s.step()
	if !hasEvent(r, EventConflict, "COMPLETE") || r.Authority != AuthorityGeofence {
		t.Fatalf("clear cycle: authority %s events %+v", r.Authority, r.Events)
	}
	if !s.c.State().Machines.PendingReturn {
		t.Errorf("return not requested after geofence resolution")
	}

	r = s.step()
	st := s.c.State()
	if st.Machines.Geofence.State != ConflictNoop || r.Authority != AuthorityNominal {
		t.Errorf("after completion: geofence %s authority %s", st.Machines.Geofence.State, r.Authority)
	}
	if st.Machines.PendingReturn {
		t.Errorf("return still pending while on the nominal path")
	}
}

func TestTrafficAltitudeResolution(t *testing.T) {
	s := newSim(t)
	s.cruising(1, at(500, 0, 50))
	a := advisory(true)
	a.PreferredAlt = 80
	if err := s.c.Feed().UpdateTraffic(a); err != nil {
		t.Fatalf("UpdateTraffic: %v", err)
	}

	s.step()
	s.step()
	r := s.step()
	if r.Authority != AuthorityTraffic {
		t.Fatalf("authority = %s, want TRAFFIC", r.Authority)
	}
	want := []float64{0, 5, 3}
	if r.Output.Command != ModeVector || len(r.Output.Params) != 3 {
		t.Fatalf("resolution = %s %v, want VECTOR %v", r.Output.Command, r.Output.Params, want)
	}
	for i, v := range want {
		if r.Output.Params[i] != v {
			t.Errorf("param %d = %v, want %v", i, r.Output.Params[i], v)
		}
	}
	if st := s.c.State(); st.Machines.PrevRes.Type != ResolutionAltitude {
		t.Errorf("resolution type = %s, want ALTITUDE", st.Machines.PrevRes.Type)
	}

	if err := s.c.Feed().UpdateTraffic(advisory(false)); err != nil {
		t.Fatalf("UpdateTraffic: %v", err)
	}
	s.step()
	st := s.c.State()
	if st.Machines.Traffic.State != ConflictComplete || !st.Machines.AwaitReturnSafe || !st.Machines.PendingReturn {
		t.Errorf("after clear: traffic %s await %v pending %v", st.Machines.Traffic.State,
			st.Machines.AwaitReturnSafe, st.Machines.PendingReturn)
	}
}

func TestHigherPriorityFreezesLower(t *testing.T) {
	s := newSim(t)
	s.cruising(1, at(500, 0, 50))
	a := advisory(true)
	a.PreferredAlt = 80
	if err := s.c.Feed().UpdateTraffic(a); err != nil {
		t.Fatalf("UpdateTraffic: %v", err)
	}
	s.step()
	s.step()
	s.step()

	s.c.Feed().UpdateGeofence(GeofenceStatus{KeepOutConflict: true, RecoveryPosition: at(450, 0, 50)})
	r := s.step()
	st := s.c.State()
	if r.Authority != AuthorityGeofence || st.Machines.Geofence.State != ConflictInitialize {
		t.Fatalf("geofence did not take authority: %s, state %s", r.Authority, st.Machines.Geofence.State)
	}
	if st.Machines.Traffic.State != ConflictResolve {
		t.Errorf("traffic moved to %s while frozen", st.Machines.Traffic.State)
	}
	if hasEvent(r, EventConflict, "COMPLETE") {
		t.Errorf("frozen machine transitioned: %+v", r.Events)
	}

	s.c.Feed().UpdateGeofence(GeofenceStatus{})
	s.step()
	if st := s.c.State(); st.Machines.Geofence.State != ConflictNoop {
		t.Fatalf("geofence = %s, want NOOPC", st.Machines.Geofence.State)
	}
	r = s.step()
	if r.Authority != AuthorityTraffic || r.Output.Params[2] != 3 {
		t.Errorf("traffic did not resume: %s %v", r.Authority, r.Output.Params)
	}
}

func TestTrafficSearchReplan(t *testing.T) {
	start := func(t *testing.T) *sim {
		s := newSim(t)
		s.cruising(1, at(500, 0, 50))
		if err := s.c.Feed().UpdateTraffic(advisory(true)); err != nil {
			t.Fatalf("UpdateTraffic: %v", err)
		}
		r := s.until(5, "path request", func(r Report) bool { return r.Output.PathRequest })
		if r.Authority != AuthorityTraffic {
			t.Errorf("authority = %s, want TRAFFIC", r.Authority)
		}
		if stop := surveyPlan().Waypoints[1].Position; r.Output.Search.Stop != stop {
			t.Errorf("search stop = %+v, want %+v", r.Output.Search.Stop, stop)
		}
		if st := s.c.State(); st.Request != RequestPending {
			t.Fatalf("request = %s, want PROCESSING", st.Request)
		}
		if r = s.step(); r.Output.PathRequest {
			t.Errorf("request posted twice while pending")
		}
		return s
	}

	t.Run("detour installed", func(t *testing.T) {
		s := start(t)
		s.c.Feed().DeliverPath(PathResult{Waypoints: []Waypoint{
			{Position: at(600, 100, 50)},
			{Position: at(1200, 0, 50)},
		}})
		r := s.step()
		o := r.Output
		if o.Command != ModeSecondaryFlightPlan || o.PlanID != "survey-detour" || o.Params[0] != 1 {
			t.Fatalf("command = %s %v %q, want SECONDARY_FLIGHTPLAN [1] survey-detour", o.Command, o.Params, o.PlanID)
		}
		if r.PlanID != "survey-detour" || r.Authority != AuthorityTraffic {
			t.Errorf("plan %q authority %s", r.PlanID, r.Authority)
		}
		st := s.c.State()
		if st.Progress.Active != SecondaryPlan || !st.Progress.Plan1 || st.Progress.Plan0 {
			t.Errorf("active plan flags: %+v", st.Progress)
		}
		if st.Request != RequestIdle {
			t.Errorf("request = %s after consume, want NIL", st.Request)
		}
	})

	t.Run("no path", func(t *testing.T) {
		s := start(t)
		s.c.Feed().DeliverPath(PathResult{})
		r := s.step()
		if r.Phase != PhaseEmergencyDescent || r.Authority != AuthorityPhase {
			t.Fatalf("phase %s authority %s, want EMERGENCY_DESCENT by PHASE", r.Phase, r.Authority)
		}
		if r.Output.Severity != SeverityCritical {
			t.Errorf("status severity = %s, want CRITICAL", r.Output.Severity)
		}
		if r.Output.Command != ModeVector || r.Output.Params[2] != -2 {
			t.Errorf("command = %s %v, want an emergency descent", r.Output.Command, r.Output.Params)
		}
	})
}

func TestCrossTrackFallback(t *testing.T) {
	s := newSim(t)
	s.cruising(2, at(1500, 300, 50))

	corners := []geometry.Position{at(1700, 100, 0), at(1700, 400, 0), at(1800, 400, 0), at(1800, 100, 0)}
	var box [][2]float64
	for _, p := range corners {
		box = append(box, [2]float64{p.Lat, p.Lon})
	}
	s.c.Feed().SetFences([]Geofence{{ID: "tower", Vertices: box}})

	r := s.step()
	if r.Authority != AuthorityXtrack || r.Output.Severity != SeverityNotice {
		t.Fatalf("first cycle: %s status %s %q", r.Authority, r.Output.Severity, r.Output.Status)
	}
	s.step()
	r = s.step()
	if r.Output.Command != ModePoint2Point || r.Authority != AuthorityXtrack {
		t.Fatalf("resolution = %s by %s, want POINT2POINT by XTRACK", r.Output.Command, r.Authority)
	}
	target := geometry.Position{Lat: r.Output.Params[0], Lon: r.Output.Params[1], Alt: r.Output.Params[2]}
	if d := geometry.DistM(target, at(1500, 0, 50)); d > 2 {
		t.Errorf("fallback target %.1f m from the closest point on the leg", d)
	}

	s.place(at(1500, 0, 50))
	r = s.step()
	if !hasEvent(r, EventConflict, "COMPLETE") {
		t.Fatalf("recovery did not complete on track: %+v", r.Events)
	}
	r = s.step()
	if r.Authority != AuthorityNominal || r.Output.Command != ModePrimaryFlightPlan {
		t.Errorf("after recovery: %s by %s", r.Output.Command, r.Authority)
	}
}

func TestGetResolutionType(t *testing.T) {
	tests := []struct {
		name   string
		adjust func(*TrafficAdvisory)
		want   ResolutionType
	}{
		{name: "nothing feasible", adjust: func(*TrafficAdvisory) {}, want: ResolutionSearch},
		{name: "track first", adjust: func(a *TrafficAdvisory) { a.PreferredTrack = 90; a.PreferredAlt = 80 }, want: ResolutionTrack},
		{name: "track in a near band", adjust: func(a *TrafficAdvisory) {
			a.PreferredTrack = 90
			a.PreferredSpeed = 8
			a.TrackBands = TrackBands{{Type: BandNear, Min: 80, Max: 100}}
		}, want: ResolutionSpeed},
		{name: "speed out of range", adjust: func(a *TrafficAdvisory) { a.PreferredSpeed = 40; a.PreferredAlt = 80 }, want: ResolutionAltitude},
		{name: "vertical speed bands", adjust: func(a *TrafficAdvisory) { a.VSBandsNum = 1; a.ResVDown = -1 }, want: ResolutionVerticalSpeed},
		{name: "feasible suggestion wins", adjust: func(a *TrafficAdvisory) {
			a.Suggested = ResolutionAltitude
			a.PreferredTrack = 90
			a.PreferredAlt = 80
		}, want: ResolutionAltitude},
		{name: "infeasible suggestion ignored", adjust: func(a *TrafficAdvisory) {
			a.Suggested = ResolutionSpeed
			a.PreferredTrack = 90
		}, want: ResolutionTrack},
		{name: "search suggestion", adjust: func(a *TrafficAdvisory) { a.Suggested = ResolutionSearch; a.PreferredTrack = 90 }, want: ResolutionSearch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := New(DefaultConfig(), nil)
			a := advisory(true)
			tc.adjust(&a)
			c.state.Inputs.Traffic = a
			if got := c.GetResolutionType(); got != tc.want {
				t.Errorf("GetResolutionType = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestBandVerticalSpeedPrefersSmallerMagnitude(t *testing.T) {
	c := New(DefaultConfig(), nil)
	a := advisory(true)
	a.VSBandsNum = 2
	a.ResVUp, a.ResVDown = 2.5, -1
	c.state.Inputs.Traffic = a
	if vs, ok := c.bandVerticalSpeed(); !ok || vs != -1 {
		t.Errorf("bandVerticalSpeed = %v %v, want -1 true", vs, ok)
	}
	a.ResVUp, a.ResVDown = 9, math.NaN()
	c.state.Inputs.Traffic = a
	if vs, ok := c.bandVerticalSpeed(); !ok || vs != 3 {
		t.Errorf("bandVerticalSpeed = %v %v, want the climb limit 3", vs, ok)
	}
}

// fenceBox is a keep-out box spanning north n1..n2 and east e1..e2.
func fenceBox(id string, n1, n2, e1, e2 float64) Geofence {
	var box [][2]float64
	for _, p := range []geometry.Position{at(n1, e1, 0), at(n1, e2, 0), at(n2, e2, 0), at(n2, e1, 0)} {
		box = append(box, [2]float64{p.Lat, p.Lon})
	}
	return Geofence{ID: id, Vertices: box}
}

func TestGeofencePreemptsTrafficPathRequest(t *testing.T) {
	s := newSim(t)
	s.cruising(1, at(500, 0, 50))
	if err := s.c.Feed().UpdateTraffic(advisory(true)); err != nil {
		t.Fatalf("UpdateTraffic: %v", err)
	}
	s.until(5, "traffic path request", func(r Report) bool { return r.Output.PathRequest })

	// the fence sits between the vehicle and the recovery position
	s.c.Feed().SetFences([]Geofence{fenceBox("tower", 380, 420, -100, 100)})
	s.c.Feed().UpdateGeofence(GeofenceStatus{KeepOutConflict: true, RecoveryPosition: at(300, 0, 50)})
	if r := s.step(); r.Authority != AuthorityGeofence {
		t.Fatalf("authority = %s, want GEOFENCE", r.Authority)
	}

	s.c.Feed().DeliverPath(PathResult{Waypoints: []Waypoint{{Position: at(500, 0, 50)}, {Position: at(900, 80, 50)}}})
	s.step()
	if st := s.c.State(); st.Request != RequestReady || s.c.request.Owner() != "traffic" {
		t.Fatalf("request = %s owned by %q, want the traffic result waiting", st.Request, s.c.request.Owner())
	}

	r := s.step()
	if !r.Output.PathRequest || r.Output.Search.Stop != surveyPlan().Waypoints[1].Position {
		t.Fatalf("geofence did not request a path: %+v", r.Output)
	}
	st := s.c.State()
	if st.Request != RequestPending || s.c.request.Owner() != "geofence" {
		t.Fatalf("request = %s owned by %q, want geofence pending", st.Request, s.c.request.Owner())
	}
	if st.Machines.Traffic.State != ConflictCompute {
		t.Errorf("traffic = %s, want it frozen in COMPUTE", st.Machines.Traffic.State)
	}

	s.c.Feed().DeliverPath(PathResult{Waypoints: []Waypoint{{Position: at(500, 0, 50)}, {Position: at(1000, 150, 50)}}})
	r = s.step()
	if !hasEvent(r, EventConflict, "RESOLVE") || r.Authority != AuthorityGeofence {
		t.Fatalf("geofence not resolving: %s %+v", r.Authority, r.Events)
	}
	if r.Output.Command != ModeSecondaryFlightPlan || r.Output.PlanID != "survey-detour" {
		t.Errorf("command = %s %q, want the detour plan", r.Output.Command, r.Output.PlanID)
	}

	s.c.Feed().UpdateGeofence(GeofenceStatus{})
	s.step()
	s.step()
	if st := s.c.State(); st.Machines.Geofence.State != ConflictNoop {
		t.Fatalf("geofence = %s, want NOOPC", st.Machines.Geofence.State)
	}
	r = s.step()
	if !r.Output.PathRequest || r.Authority != AuthorityTraffic || s.c.request.Owner() != "traffic" {
		t.Errorf("traffic did not request again on resuming: %s owner %q", r.Authority, s.c.request.Owner())
	}
}

func TestComputeStallWarnsOnce(t *testing.T) {
	s := newSim(t, func(c *Config) { c.ResolveStallCycles = 5 })
	s.cruising(1, at(500, 0, 50))
	s.c.Feed().SetFences([]Geofence{fenceBox("tower", 380, 420, -100, 100)})
	s.c.Feed().UpdateGeofence(GeofenceStatus{KeepOutConflict: true, RecoveryPosition: at(300, 0, 50)})

	r := s.until(10, "stall warning", func(r Report) bool { return strings.Contains(r.Output.Status, "unresolved") })
	if r.Output.Severity != SeverityWarning || !strings.HasPrefix(r.Output.Status, "geofence") {
		t.Errorf("status = %s %q", r.Output.Severity, r.Output.Status)
	}
	for i := 0; i < 20; i++ {
		if r := s.step(); strings.Contains(r.Output.Status, "unresolved") {
			t.Fatalf("stall reported again after %d cycles", i+1)
		}
	}
	if st := s.c.State(); st.Machines.Geofence.State != ConflictCompute {
		t.Errorf("geofence = %s, want COMPUTE while the path is outstanding", st.Machines.Geofence.State)
	}
}

func TestCrossTrackSkipsCompletedPlan(t *testing.T) {
	tests := []struct {
		name       string
		fp2Done    bool
		wantReady  bool
		wantActive PlanSlot
	}{
		{name: "secondary available", wantReady: true, wantActive: SecondaryPlan},
		{name: "secondary complete", fp2Done: true, wantActive: PrimaryPlan},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := New(DefaultConfig(), nil)
			p := &c.state.Progress
			p.Plans[PrimaryPlan] = surveyPlan()
			p.Plans[SecondaryPlan] = FlightPlan{ID: "survey-detour", Waypoints: surveyPlan().Waypoints[:2]}
			c.switchPlan(PrimaryPlan)
			p.FallbackFeasible[SecondaryPlan] = true
			p.WPNextFallback[SecondaryPlan] = at(1000, 0, 50)
			p.FP2Complete = tc.fp2Done

			cmd, ready := xtrackResolver{}.compute(c)
			if ready != tc.wantReady || p.Active != tc.wantActive {
				t.Fatalf("compute = %s ready %v active %s, want ready %v active %s",
					cmd.Mode, ready, p.Active, tc.wantReady, tc.wantActive)
			}
			if !ready && c.request.Owner() != "cross-track" {
				t.Errorf("no path requested, owner %q", c.request.Owner())
			}
		})
	}
}
