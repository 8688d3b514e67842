package link

import (
	"math"
	"time"

	"github.com/curbz/cognition/internal/cognition"
	"github.com/curbz/cognition/internal/linkmodel"
	"github.com/curbz/cognition/pkg/geometry"
)

func toPosition(p linkmodel.Position) geometry.Position {
	return geometry.Position{Lat: p.Lat, Lon: p.Lon, Alt: p.Alt}
}

func fromPosition(p geometry.Position) linkmodel.Position {
	return linkmodel.Position{Lat: p.Lat, Lon: p.Lon, Alt: p.Alt}
}

// orNaN maps an absent advisory value to NaN.
func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func toKinematics(m linkmodel.State) (time.Time, float64, cognition.Kinematics) {
	utc := time.UnixMilli(m.UTC).UTC()
	return utc, m.ScenarioTime, cognition.Kinematics{
		Position:    toPosition(m.Position),
		Velocity:    m.Velocity,
		Heading:     m.Heading,
		GroundSpeed: m.GroundSpeed,
		Landed:      m.Landed,
	}
}

func toWaypoints(in []linkmodel.Waypoint) []cognition.Waypoint {
	out := make([]cognition.Waypoint, 0, len(in))
	for _, w := range in {
		out = append(out, cognition.Waypoint{Position: toPosition(w.Position), Speed: w.Speed, Time: w.Time})
	}
	return out
}

func toFlightPlan(m linkmodel.FlightPlan) cognition.FlightPlan {
	return cognition.FlightPlan{ID: m.ID, Waypoints: toWaypoints(m.Waypoints)}
}

func toTraffic(m linkmodel.Traffic) (cognition.TrafficAdvisory, error) {
	bands := make([]cognition.TrackBand, 0, len(m.TrackBands))
	for _, b := range m.TrackBands {
		var bt cognition.BandType
		if err := bt.UnmarshalText([]byte(b.Type)); err != nil {
			return cognition.TrafficAdvisory{}, err
		}
		bands = append(bands, cognition.TrackBand{Type: bt, Min: b.Min, Max: b.Max})
	}
	tb, err := cognition.NewTrackBands(bands...)
	if err != nil {
		return cognition.TrafficAdvisory{}, err
	}

	a := cognition.TrafficAdvisory{
		Conflict:       m.Conflict,
		TrackConflict:  m.TrackConflict,
		SpeedConflict:  m.SpeedConflict,
		AltConflict:    m.AltConflict,
		ReturnSafe:     m.ReturnSafe,
		PreferredTrack: orNaN(m.Track),
		PreferredSpeed: orNaN(m.Speed),
		PreferredAlt:   orNaN(m.Alt),
		DTHR:           m.DTHR,
		ZTHR:           m.ZTHR,
		VSBandsNum:     m.VSBands,
		ResVUp:         orNaN(m.ResVUp),
		ResVDown:       orNaN(m.ResVDown),
		TrackBands:     tb,
	}
	if m.Suggested != "" {
		if err := a.Suggested.UnmarshalText([]byte(m.Suggested)); err != nil {
			return cognition.TrafficAdvisory{}, err
		}
	}
	return a, nil
}

// toGeofence returns nil fences when the message carries no definitions.
func toGeofence(m linkmodel.Geofence) (cognition.GeofenceStatus, []cognition.Geofence) {
	status := cognition.GeofenceStatus{
		KeepInConflict:  m.KeepInConflict,
		KeepOutConflict: m.KeepOutConflict,
	}
	if m.Recovery != nil {
		status.RecoveryPosition = toPosition(*m.Recovery)
	}
	if m.Fences == nil {
		return status, nil
	}
	fences := make([]cognition.Geofence, 0, len(m.Fences))
	for _, f := range m.Fences {
		fences = append(fences, cognition.Geofence{
			ID:       f.ID,
			KeepIn:   f.KeepIn,
			Vertices: f.Vertices,
			Floor:    f.Floor,
			Ceiling:  f.Ceiling,
		})
	}
	return status, fences
}

func toDitch(m linkmodel.Ditch) cognition.DitchRequest {
	return cognition.DitchRequest{
		Site:          toPosition(m.Site),
		Ditch:         m.Ditch,
		Reset:         m.Reset,
		End:           m.End,
		RouteFeasible: m.RouteFeasible,
	}
}
