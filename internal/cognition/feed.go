package cognition

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mohae/deepcopy"
)

var ErrEmptyFlightPlan = errors.New("flight plan has no waypoints")

// Feed is the inbound side of the core. Producers write into it from any
// goroutine; the core latches a consistent copy at the start of each cycle
// so that no cycle observes half of an update.
type Feed struct {
	mu       sync.Mutex
	pending  Inputs
	path     *PathResult
	reset    bool
	kinSeq   uint64
	planSeq  uint64
	latchSeq uint64
}

func newFeed() *Feed {
	return &Feed{pending: newInputs()}
}

// UpdateClock records the current UTC and scenario time.
func (f *Feed) UpdateClock(utc time.Time, scenario float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.UTCTime = utc
	f.pending.ScenarioTime = scenario
}

// UpdateKinematics records a new vehicle state.
func (f *Feed) UpdateKinematics(k Kinematics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Kinematics = k
	f.kinSeq++
}

// SetFlightPlan installs a plan into a slot. Re-sending the plan already in
// the slot is a no-op.
func (f *Feed) SetFlightPlan(slot PlanSlot, fp FlightPlan) error {
	if !fp.Defined() {
		return fmt.Errorf("%s plan %q: %w", slot, fp.ID, ErrEmptyFlightPlan)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.pending.Plans[slot]
	if cur.ID == fp.ID && slices.Equal(cur.Waypoints, fp.Waypoints) {
		return nil
	}
	f.planSeq++
	fp.Waypoints = slices.Clone(fp.Waypoints)
	fp.Revision = f.planSeq
	f.pending.Plans[slot] = fp
	return nil
}

// UpdateTraffic records a traffic advisory. An advisory with more than
// MaxTrackBands bands is rejected and the previous one stays in effect.
func (f *Feed) UpdateTraffic(a TrafficAdvisory) error {
	if err := a.TrackBands.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Traffic = a
	return nil
}

// UpdateGeofence records the geofence monitor's violation report.
func (f *Feed) UpdateGeofence(g GeofenceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Geofence = g
}

// SetFences replaces the geofence definitions.
func (f *Feed) SetFences(fences []Geofence) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Fences = fences
}

// UpdateCrossTrack records per plan allowed deviations.
func (f *Feed) UpdateCrossTrack(l CrossTrackLimits) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.CrossTrack = l
}

// UpdateDitch records the ditching flags.
func (f *Feed) UpdateDitch(d DitchRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Ditch = d
}

// UpdateMission records mission start and takeoff reports.
func (f *Feed) UpdateMission(m Mission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Mission = m
}

// UpdateMerge records the merge schedule.
func (f *Feed) UpdateMerge(m MergeSchedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Merge = m
}

// DeliverPath hands a path search result to the core. It is matched to the
// outstanding request at the next cycle start.
func (f *Feed) DeliverPath(r PathResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path = &r
}

// RequestReset asks the core to reset its flight phases before the next
// cycle.
func (f *Feed) RequestReset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = true
}

// latched is one cycle's worth of inbound data.
type latched struct {
	inputs        Inputs
	path          *PathResult
	reset         bool
	kinematicsNew bool
}

func (f *Feed) latch() latched {
	f.mu.Lock()
	defer f.mu.Unlock()

	l := latched{
		inputs:        deepcopy.Copy(f.pending).(Inputs),
		path:          f.path,
		reset:         f.reset,
		kinematicsNew: f.kinSeq != f.latchSeq,
	}
	f.path = nil
	f.reset = false
	f.latchSeq = f.kinSeq
	return l
}
