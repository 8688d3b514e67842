package geometry

import (
	"math"
)

// EarthRadiusM is the mean earth radius in meters.
const EarthRadiusM = 6371000.0

// Position is a geodetic position. Lat/Lon are degrees, Alt is meters.
type Position struct {
	Lat float64 `json:"lat" msgpack:"lat"`
	Lon float64 `json:"lon" msgpack:"lon"`
	Alt float64 `json:"alt" msgpack:"alt"`
}

// --- Geometry Helpers ---

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }

// wrapPi folds an angle in radians into [-pi, pi].
func wrapPi(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// NormalizeHeading folds a heading in degrees into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// centralAngle is the haversine great-circle angle between two points, in radians.
func centralAngle(lat1, lon1, lat2, lon2 float64) float64 {
	r1, r2 := toRad(lat1), toRad(lat2)

	dLat := toRad(lat2 - lat1)
	// --- handle dateline crossing ---
	dLon := wrapPi(toRad(lon2 - lon1))

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(r1)*math.Cos(r2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistM returns the horizontal great-circle distance between a and b in meters.
func DistM(a, b Position) float64 {
	return EarthRadiusM * centralAngle(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Bearing returns the initial true bearing from a to b in degrees [0, 360).
func Bearing(a, b Position) float64 {
	r1, r2 := toRad(a.Lat), toRad(b.Lat)
	dLon := wrapPi(toRad(b.Lon - a.Lon))

	y := math.Sin(dLon) * math.Cos(r2)
	x := math.Cos(r1)*math.Sin(r2) - math.Sin(r1)*math.Cos(r2)*math.Cos(dLon)
	return NormalizeHeading(toDeg(math.Atan2(y, x)))
}

// Destination returns the point reached travelling dist meters from p on the
// given true bearing. Altitude is carried over from p.
func Destination(p Position, bearing, dist float64) Position {
	d := dist / EarthRadiusM
	brg := toRad(bearing)
	lat1, lon1 := toRad(p.Lat), toRad(p.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(math.Sin(brg)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return Position{Lat: toDeg(lat2), Lon: toDeg(wrapPi(lon2)), Alt: p.Alt}
}

// CrossTrack returns the signed cross-track distance of p from the great
// circle through a and b (meters, positive right of track) and the
// along-track distance of p's projection measured from a.
func CrossTrack(a, b, p Position) (xtd, atd float64) {
	d13 := centralAngle(a.Lat, a.Lon, p.Lat, p.Lon)
	if d13 == 0 {
		return 0, 0
	}
	t13 := toRad(Bearing(a, p))
	t12 := toRad(Bearing(a, b))

	xa := math.Asin(math.Sin(d13) * math.Sin(t13-t12))
	c := math.Cos(d13) / math.Cos(xa)
	// rounding can push the ratio just past 1
	c = math.Max(-1, math.Min(1, c))
	aa := math.Acos(c)
	if math.Cos(t13-t12) < 0 {
		aa = -aa
	}
	return xa * EarthRadiusM, aa * EarthRadiusM
}

// ClosestPointOnSegment returns the point on segment a-b nearest to p.
// Altitude is interpolated linearly along the segment.
func ClosestPointOnSegment(a, b, p Position) Position {
	length := DistM(a, b)
	if length == 0 {
		return a
	}
	_, atd := CrossTrack(a, b, p)
	switch {
	case atd <= 0:
		return a
	case atd >= length:
		return b
	}
	q := Destination(a, Bearing(a, b), atd)
	q.Alt = a.Alt + (b.Alt-a.Alt)*atd/length
	return q
}

func IsPointInPolygon(lat, lon float64, polygon [][2]float64) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1

	for i := 0; i < len(polygon); i++ {
		xi, yi := polygon[i][0], shiftLon(polygon[i][1], lon)
		xj, yj := polygon[j][0], shiftLon(polygon[j][1], lon)

		// Standard Ray Casting logic using the (potentially) shifted coordinates
		if ((yi > lon) != (yj > lon)) &&
			(lat < (xj-xi)*(lon-yi)/(yj-yi)+xi) {
			inside = !inside
		}
		j = i
	}

	return inside
}

// shiftLon moves lon by a full turn when it sits on the far side of the
// dateline relative to ref, so the two compare continuously.
func shiftLon(lon, ref float64) float64 {
	if lon-ref > 180 {
		return lon - 360
	} else if lon-ref < -180 {
		return lon + 360
	}
	return lon
}

// SegmentCrossesPolygon reports whether the straight segment a-b enters or
// crosses the boundary of polygon. A segment that starts and ends outside a
// polygon it never touches returns false. Edges are treated in a local
// lat/lon plane, which is adequate at geofence scale.
func SegmentCrossesPolygon(a, b Position, polygon [][2]float64) bool {
	if len(polygon) < 3 {
		return false
	}
	if IsPointInPolygon(a.Lat, a.Lon, polygon) != IsPointInPolygon(b.Lat, b.Lon, polygon) {
		return true
	}
	ref := a.Lon
	p1 := [2]float64{a.Lat, a.Lon}
	p2 := [2]float64{b.Lat, shiftLon(b.Lon, ref)}

	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		q1 := [2]float64{polygon[j][0], shiftLon(polygon[j][1], ref)}
		q2 := [2]float64{polygon[i][0], shiftLon(polygon[i][1], ref)}
		if segmentsIntersect(p1, p2, q1, q2) {
			return true
		}
		j = i
	}
	return false
}

func orient(p, q, r [2]float64) float64 {
	return (q[0]-p[0])*(r[1]-p[1]) - (q[1]-p[1])*(r[0]-p[0])
}

func onSegment(p, q, r [2]float64) bool {
	return math.Min(p[0], r[0]) <= q[0] && q[0] <= math.Max(p[0], r[0]) &&
		math.Min(p[1], r[1]) <= q[1] && q[1] <= math.Max(p[1], r[1])
}

func segmentsIntersect(p1, p2, q1, q2 [2]float64) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	switch {
	case d1 == 0 && onSegment(q1, p1, q2):
		return true
	case d2 == 0 && onSegment(q1, p2, q2):
		return true
	case d3 == 0 && onSegment(p1, q1, p2):
		return true
	case d4 == 0 && onSegment(p1, q2, p2):
		return true
	}
	return false
}

func CalculateRoughArea(polygon [][2]float64) float64 {
	if len(polygon) < 3 {
		return 0
	}

	var area float64
	j := len(polygon) - 1

	for i := 0; i < len(polygon); i++ {
		latI, lonI := polygon[i][0], polygon[i][1]
		latJ, lonJ := polygon[j][0], shiftLon(polygon[j][1], polygon[i][1])

		// Shoelace formula: (x1*y2 - x2*y1)
		// Note: Using Lat as X and Lon as Y for a "rough" area
		area += (latI * lonJ) - (latJ * lonI)
		j = i
	}

	return math.Abs(area / 2.0)
}
