package cognition

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/curbz/cognition/pkg/geometry"
)

var (
	simEpoch = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	origin   = geometry.Position{Lat: 37, Lon: -76}
)

// at offsets origin by meters north and east.
func at(north, east, alt float64) geometry.Position {
	p := geometry.Destination(origin, 0, north)
	p = geometry.Destination(p, 90, east)
	p.Alt = alt
	return p
}

func surveyPlan() FlightPlan {
	return FlightPlan{ID: "survey", Waypoints: []Waypoint{
		{Position: at(0, 0, 0)},
		{Position: at(1000, 0, 50)},
		{Position: at(2000, 0, 50)},
		{Position: at(3000, 0, 0)},
	}}
}

// advisory is a traffic advisory with every preferred value absent.
func advisory(conflict bool) TrafficAdvisory {
	return TrafficAdvisory{
		Conflict:       conflict,
		PreferredTrack: math.NaN(),
		PreferredSpeed: math.NaN(),
		PreferredAlt:   math.NaN(),
		ResVUp:         math.NaN(),
		ResVDown:       math.NaN(),
	}
}

// sim drives a core the way the vehicle bus would: clock and kinematics
// are fed before every cycle.
type sim struct {
	t    *testing.T
	c    *Core
	now  time.Time
	scen float64
	k    Kinematics
}

func newSim(t *testing.T, mutate ...func(*Config)) *sim {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	c := New(cfg, nil)
	if err := c.Feed().SetFlightPlan(PrimaryPlan, surveyPlan()); err != nil {
		t.Fatalf("SetFlightPlan: %v", err)
	}
	return &sim{t: t, c: c, now: simEpoch, k: Kinematics{GroundSpeed: 5}}
}

func (s *sim) place(p geometry.Position) { s.k.Position = p }

func (s *sim) step() Report {
	s.t.Helper()
	s.now = s.now.Add(100 * time.Millisecond)
	s.scen += 0.1
	f := s.c.Feed()
	f.UpdateClock(s.now, s.scen)
	f.UpdateKinematics(s.k)
	r, err := s.c.RunCycle(context.Background())
	if err != nil {
		s.t.Fatalf("RunCycle: %v", err)
	}
	return r
}

func (s *sim) until(max int, what string, done func(Report) bool) Report {
	s.t.Helper()
	for i := 0; i < max; i++ {
		if r := s.step(); done(r) {
			return r
		}
	}
	s.t.Fatalf("%s not reached after %d cycles", what, max)
	return Report{}
}

// cruising starts an airborne mission at waypoint wp with the vehicle at
// pos and runs until the startup statuses have been emitted.
func (s *sim) cruising(wp int, pos geometry.Position) {
	s.t.Helper()
	s.c.Feed().UpdateMission(Mission{Start: wp})
	s.place(pos)
	s.until(3, "cruise", func(r Report) bool { return r.Phase == PhaseCruise })
	s.step()
	if n := s.c.statuses.len(); n != 0 {
		s.t.Fatalf("%d statuses still queued after startup", n)
	}
}

func hasEvent(r Report, kind EventKind, to string) bool {
	for _, e := range r.Events {
		if e.Kind == kind && e.To == to {
			return true
		}
	}
	return false
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }
