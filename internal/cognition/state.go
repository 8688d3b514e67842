package cognition

import (
	"math"
	"time"

	"github.com/curbz/cognition/pkg/geometry"
)

// Waypoint is one point of a flight plan. Speed is the commanded ground
// speed for the leg ending at the waypoint (0 selects the configured
// default). Time is the scheduled scenario time of arrival, 0 when unset.
type Waypoint struct {
	geometry.Position
	Speed float64 `json:"speed,omitempty"`
	Time  float64 `json:"time,omitempty"`
}

// FlightPlan is an identified waypoint sequence. Revision is bumped by the
// feed on every update so the tracker can tell a new plan from a re-send.
type FlightPlan struct {
	ID        string
	Waypoints []Waypoint
	Revision  uint64
}

// Len returns the number of waypoints.
func (fp FlightPlan) Len() int { return len(fp.Waypoints) }

// Defined reports whether the plan holds any waypoints.
func (fp FlightPlan) Defined() bool { return len(fp.Waypoints) > 0 }

// Kinematics is the vehicle state supplied by perception.
type Kinematics struct {
	Position    geometry.Position
	Velocity    [3]float64 // north, east, down in m/s
	Heading     float64    // true track in degrees
	GroundSpeed float64    // m/s
	Landed      bool       // weight on wheels reported by the autopilot
}

// VerticalSpeed returns the climb rate in m/s, positive up.
func (k Kinematics) VerticalSpeed() float64 { return -k.Velocity[2] }

// Geofence is a keep-in or keep-out polygon. Vertices are [lat, lon].
type Geofence struct {
	ID       string
	KeepIn   bool
	Vertices [][2]float64
	Floor    float64
	Ceiling  float64
}

// Contains reports whether p lies inside the fence volume. A zero ceiling
// means unbounded.
func (g Geofence) Contains(p geometry.Position) bool {
	if p.Alt < g.Floor || (g.Ceiling > g.Floor && p.Alt > g.Ceiling) {
		return false
	}
	return geometry.IsPointInPolygon(p.Lat, p.Lon, g.Vertices)
}

// GeofenceStatus is the violation report of the geofence monitor.
type GeofenceStatus struct {
	KeepInConflict   bool
	KeepOutConflict  bool
	RecoveryPosition geometry.Position
}

// TrafficAdvisory is the output of the conflict detection service. A NaN
// preferred value means no resolution exists in that dimension.
type TrafficAdvisory struct {
	Conflict      bool
	TrackConflict bool
	SpeedConflict bool
	AltConflict   bool
	ReturnSafe    bool

	Suggested      ResolutionType
	PreferredTrack float64
	PreferredSpeed float64
	PreferredAlt   float64
	DTHR           float64
	ZTHR           float64

	VSBandsNum int
	ResVUp     float64
	ResVDown   float64
	TrackBands TrackBands
}

// CrossTrackLimits overrides the configured allowed deviation per plan slot.
// Zero keeps the configured value.
type CrossTrackLimits struct {
	AllowedDeviation [2]float64
}

// DitchRequest carries the ditching flags.
type DitchRequest struct {
	Site          geometry.Position
	Ditch         bool
	Reset         bool
	End           bool
	RouteFeasible bool
}

// Mission carries mission level commands. Start < 0 means not started,
// 0 means takeoff from the ground and k > 0 means airborne start at
// waypoint k of the primary plan. TakeoffComplete is 1 when the autopilot
// reports a completed takeoff and -1 when it reports a failure.
type Mission struct {
	Start           int
	TakeoffComplete int
}

// MergeSchedule carries the arrival sequencing state.
type MergeSchedule struct {
	Active       bool
	RefWPTime    float64
	WPMetricTime bool
}

// Inputs is the latched view of everything external producers delivered.
// Components treat it as read only for the duration of a cycle.
type Inputs struct {
	UTCTime      time.Time
	ScenarioTime float64
	Kinematics   Kinematics
	Plans        [2]FlightPlan
	Fences       []Geofence
	Geofence     GeofenceStatus
	Traffic      TrafficAdvisory
	CrossTrack   CrossTrackLimits
	Ditch        DitchRequest
	Mission      Mission
	Merge        MergeSchedule
}

func newInputs() Inputs {
	return Inputs{
		Mission: Mission{Start: -1},
		Traffic: TrafficAdvisory{
			PreferredTrack: math.NaN(),
			PreferredSpeed: math.NaN(),
			PreferredAlt:   math.NaN(),
			ResVUp:         math.NaN(),
			ResVDown:       math.NaN(),
		},
	}
}

// PlanProgress is the flight plan tracker's bookkeeping.
type PlanProgress struct {
	Plans             [2]FlightPlan
	Active            PlanSlot
	Plan0, Plan1      bool
	CurrentPlanID     string
	NextWP            int
	NumWaypoints      int
	PrimaryFPReceived bool

	// Per slot tracking, indexed by PlanSlot.
	NextPlanWP         [2]int
	NextFeasibleWP     [2]int
	WPPrev             [2]geometry.Position
	WPNext             [2]geometry.Position
	WPNextFallback     [2]geometry.Position
	XtrackDeviation    [2]float64
	XtrackConflict     [2]bool
	DirectPathFeasible [2]bool
	FallbackFeasible   [2]bool
	AllowedXtrackDev   [2]float64

	P2PTarget   geometry.Position
	P2PActive   bool
	P2PComplete bool
	FP1Complete bool
	FP2Complete bool

	TopOfDescent bool
	WPReached    bool
	ReachedWP    int

	LastSafePosition geometry.Position
	HaveSafePosition bool

	revisions [2]uint64
}

// ConflictMachine is the state of one conflict sub-machine.
type ConflictMachine struct {
	Name          string
	State         ConflictState
	ResolveCycles int

	best        float64
	stall       int
	stallWarned bool
	rejectNoted bool
}

// Resolution holds the last valid traffic resolution values.
type Resolution struct {
	Type   ResolutionType
	Track  float64
	Speed  float64
	Alt    float64
	VSpeed float64
}

// Machines is the phase and sub-machine state.
type Machines struct {
	Phase        FlightPhase
	PhaseOutcome Outcome

	TakeoffState          Outcome
	CruiseState           Outcome
	EmergencyDescentState Outcome

	Geofence ConflictMachine
	Traffic  ConflictMachine
	Xtrack   ConflictMachine
	Return   ConflictMachine

	PendingReturn   bool
	AwaitReturnSafe bool

	GeofenceCommand Command
	XtrackCommand   Command
	PrevRes         Resolution

	Ditching        bool
	Unrecoverable   bool
	UnrecoverableBy string

	launchAlt   float64
	climbBest   float64
	climbStall  int
	landingSite geometry.Position
	mergeSpeed  float64
	ditchWarned bool
}

func newMachines() Machines {
	return Machines{
		Phase:    PhaseIdle,
		Geofence: ConflictMachine{Name: "geofence"},
		Traffic:  ConflictMachine{Name: "traffic"},
		Xtrack:   ConflictMachine{Name: "cross-track"},
		Return:   ConflictMachine{Name: "return"},
		PrevRes:  Resolution{Track: math.NaN(), Speed: math.NaN(), Alt: math.NaN(), VSpeed: math.NaN()},
	}
}

// FlightState is the full per flight record, split into the views each
// stage of a cycle reads and writes.
type FlightState struct {
	Inputs   Inputs
	Progress PlanProgress
	Machines Machines
	Output   Output
	Request  RequestState
}
