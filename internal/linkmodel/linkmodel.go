package linkmodel

import "encoding/json"

// Message types carried on the vehicle bus.
const (
	// inbound
	TypeState       = "state"
	TypeFlightPlan  = "flightplan"
	TypeTraffic     = "traffic"
	TypeGeofence    = "geofence"
	TypeFeasibility = "feasibility"
	TypeMission     = "mission"
	TypeMerge       = "merge"
	TypePathResult  = "path_result"
	TypeDitch       = "ditch"
	TypeReset       = "reset"

	// outbound
	TypeGuidanceParams = "guidance_params"
	TypeCommand        = "command"
	TypeStatus         = "status"
	TypeWPReached      = "wp_reached"
	TypePathRequest    = "path_request"

	TypeResult = "result"
	TypeError  = "error"
)

// Envelope wraps every message on the bus.
type Envelope struct {
	RequestID int64           `json:"req_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Success   bool            `json:"success,omitempty"`
}

// ErrorPayload is used if Type is "error".
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

type State struct {
	UTC          int64      `json:"utc_ms"`
	ScenarioTime float64    `json:"scenario_time"`
	Position     Position   `json:"position"`
	Velocity     [3]float64 `json:"velocity_ned"`
	Heading      float64    `json:"heading"`
	GroundSpeed  float64    `json:"ground_speed"`
	Landed       bool       `json:"landed"`
}

type Waypoint struct {
	Position
	Speed float64 `json:"speed,omitempty"`
	Time  float64 `json:"time,omitempty"`
}

type FlightPlan struct {
	Slot      string     `json:"slot"` // "primary" or "secondary"
	ID        string     `json:"id"`
	Waypoints []Waypoint `json:"waypoints"`
}

type TrackBand struct {
	Type string  `json:"type"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Traffic is the detect and avoid advisory. Absent preferred values are
// null.
type Traffic struct {
	Conflict      bool        `json:"conflict"`
	TrackConflict bool        `json:"track_conflict"`
	SpeedConflict bool        `json:"speed_conflict"`
	AltConflict   bool        `json:"alt_conflict"`
	ReturnSafe    bool        `json:"return_safe"`
	Suggested     string      `json:"suggested,omitempty"`
	Track         *float64    `json:"preferred_track"`
	Speed         *float64    `json:"preferred_speed"`
	Alt           *float64    `json:"preferred_alt"`
	DTHR          float64     `json:"dthr"`
	ZTHR          float64     `json:"zthr"`
	VSBands       int         `json:"vs_bands"`
	ResVUp        *float64    `json:"res_vup"`
	ResVDown      *float64    `json:"res_vdown"`
	TrackBands    []TrackBand `json:"track_bands"`
}

type Fence struct {
	ID       string       `json:"id"`
	KeepIn   bool         `json:"keep_in"`
	Vertices [][2]float64 `json:"vertices"`
	Floor    float64      `json:"floor"`
	Ceiling  float64      `json:"ceiling"`
}

// Geofence carries the monitor's conflict flags. Fences replaces the fence
// set when present.
type Geofence struct {
	KeepInConflict  bool      `json:"keep_in_conflict"`
	KeepOutConflict bool      `json:"keep_out_conflict"`
	Recovery        *Position `json:"recovery,omitempty"`
	Fences          []Fence   `json:"fences,omitempty"`
}

type Feasibility struct {
	AllowedDeviation [2]float64 `json:"allowed_xtrack_dev"`
}

type Mission struct {
	Start           int `json:"start"`
	TakeoffComplete int `json:"takeoff_complete"`
}

type Merge struct {
	Active       bool    `json:"active"`
	RefWPTime    float64 `json:"ref_wp_time"`
	WPMetricTime bool    `json:"wp_metric_time"`
}

type Ditch struct {
	Site          Position `json:"site"`
	Ditch         bool     `json:"ditch"`
	Reset         bool     `json:"reset"`
	End           bool     `json:"end"`
	RouteFeasible bool     `json:"route_feasible"`
}

type PathResult struct {
	Waypoints []Waypoint `json:"waypoints"`
}

type GuidanceParams struct {
	DefaultWpSpeed        float64 `json:"default_wp_speed"`
	CaptureRadiusScaling  float64 `json:"capture_radius_scaling"`
	GuidanceRadiusScaling float64 `json:"guidance_radius_scaling"`
	ClimbAngle            float64 `json:"climb_angle"`
	ClimbAngleVRange      float64 `json:"climb_angle_vrange"`
	ClimbAngleHRange      float64 `json:"climb_angle_hrange"`
	ClimbRateGain         float64 `json:"climb_rate_gain"`
	MaxClimbRate          float64 `json:"max_climb_rate"`
	MinClimbRate          float64 `json:"min_climb_rate"`
	YawForward            bool    `json:"yaw_forward"`
}

type Command struct {
	Cycle  uint64    `json:"cycle"`
	Mode   string    `json:"mode"`
	Params []float64 `json:"params"`
	PlanID string    `json:"plan_id,omitempty"`
}

type Status struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

type WPReached struct {
	PlanID string `json:"plan_id"`
	Index  int    `json:"index"`
}

type PathRequest struct {
	SearchType uint8      `json:"search_type"`
	Start      Position   `json:"start"`
	Stop       Position   `json:"stop"`
	Velocity   [3]float64 `json:"velocity_ned"`
}
