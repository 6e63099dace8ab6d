package domain

import "math"

// EarthRadiusKm is the mean Earth radius used by HaversineKm.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometers between two
// points given in degrees.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// NearestFinder locates the closest station to a coordinate.
type NearestFinder interface {
	// Nearest returns the closest station and its distance in km, or false
	// when there is no candidate.
	Nearest(lat, lon float64) (Station, float64, bool)
}

// LinearScan is an O(n) NearestFinder over stations with finite coordinates.
// Equidistant stations resolve to the one that came first in input order.
type LinearScan struct {
	stations []Station
}

// NewLinearScan drops stations with non-finite coordinates and keeps the
// remaining order.
func NewLinearScan(stations []Station) *LinearScan {
	valid := make([]Station, 0, len(stations))
	for _, s := range stations {
		if isFinite(s.Lat) && isFinite(s.Lon) {
			valid = append(valid, s)
		}
	}
	return &LinearScan{stations: valid}
}

// Len returns the number of candidate stations.
func (l *LinearScan) Len() int {
	return len(l.stations)
}

func (l *LinearScan) Nearest(lat, lon float64) (Station, float64, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, s := range l.stations {
		d := HaversineKm(lat, lon, s.Lat, s.Lon)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Station{}, 0, false
	}
	return l.stations[best], bestDist, true
}

// Correlate binds every city to its nearest station using a LinearScan.
func Correlate(cities []City, stations []Station) []City {
	return CorrelateWith(cities, NewLinearScan(stations))
}

// CorrelateWith binds every city through finder. It returns new values and
// never edits the input slice. Cities with non-finite coordinates, or all
// cities when finder has no candidates, come back unchanged.
func CorrelateWith(cities []City, finder NearestFinder) []City {
	out := make([]City, len(cities))
	for i, c := range cities {
		if isFinite(c.Lat) && isFinite(c.Lon) {
			if s, d, ok := finder.Nearest(c.Lat, c.Lon); ok {
				dist := d
				c.StationID = s.ID
				c.DistanceKm = &dist
			}
		}
		out[i] = c
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
