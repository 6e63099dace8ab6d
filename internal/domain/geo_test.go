package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineKm_Properties(t *testing.T) {
	points := [][2]float64{
		{52.52, 13.40},
		{48.85, 2.35},
		{53.55, 9.99},
		{-33.87, 151.21},
		{0, 179.9},
		{0, -179.9},
	}

	for _, a := range points {
		assert.InDelta(t, 0, HaversineKm(a[0], a[1], a[0], a[1]), 1e-9, "distance(a,a)")
		for _, b := range points {
			ab := HaversineKm(a[0], a[1], b[0], b[1])
			ba := HaversineKm(b[0], b[1], a[0], a[1])
			assert.InDelta(t, ab, ba, 1e-9, "symmetry")
			for _, c := range points {
				ac := HaversineKm(a[0], a[1], c[0], c[1])
				cb := HaversineKm(c[0], c[1], b[0], b[1])
				assert.LessOrEqual(t, ab, ac+cb+1e-9, "triangle inequality")
			}
		}
	}
}

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name string
		a, b [2]float64
		want float64
	}{
		{"berlin to nearby station", [2]float64{52.52, 13.40}, [2]float64{52.50, 13.30}, 7.124},
		{"berlin to paris", [2]float64{52.52, 13.40}, [2]float64{48.85, 2.35}, 877.68},
		{"antimeridian", [2]float64{0, 179.9}, [2]float64{0, -179.9}, 22.24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a[0], tt.a[1], tt.b[0], tt.b[1])
			assert.InDelta(t, tt.want, got, 0.01)
		})
	}
}

func TestCorrelate_BerlinBindsToClosestStation(t *testing.T) {
	cities := []City{NewCity("Berlin", 52.52, 13.40)}
	stations := []Station{
		{ID: "S1", Lat: 52.50, Lon: 13.30},
		{ID: "S2", Lat: 48.85, Lon: 2.35},
	}

	got := Correlate(cities, stations)

	require.Len(t, got, 1)
	assert.Equal(t, "S1", got[0].StationID)
	require.NotNil(t, got[0].DistanceKm)
	assert.InDelta(t, HaversineKm(52.52, 13.40, 52.50, 13.30), *got[0].DistanceKm, 1e-12)
	assert.False(t, cities[0].Bound(), "input city must not be modified")
}

func TestCorrelate_MinimizesDistance(t *testing.T) {
	stations := []Station{
		{ID: "hamburg", Lat: 53.63, Lon: 9.99},
		{ID: "munich", Lat: 48.16, Lon: 11.54},
		{ID: "cologne", Lat: 50.86, Lon: 7.16},
		{ID: "dresden", Lat: 51.13, Lon: 13.75},
		{ID: "bad", Lat: math.NaN(), Lon: 10},
	}
	cities := []City{
		NewCity("Kiel", 54.32, 10.13),
		NewCity("Augsburg", 48.37, 10.90),
		NewCity("Bonn", 50.73, 7.10),
		NewCity("Leipzig", 51.34, 12.37),
		NewCity("Kassel", 51.31, 9.48),
	}

	got := Correlate(cities, stations)

	ids := map[string]bool{}
	for _, s := range stations[:4] {
		ids[s.ID] = true
	}
	for _, c := range got {
		require.True(t, ids[c.StationID], "city %s bound to unknown station %q", c.Name, c.StationID)
		for _, s := range stations[:4] {
			assert.LessOrEqual(t, *c.DistanceKm, HaversineKm(c.Lat, c.Lon, s.Lat, s.Lon)+1e-9)
		}
	}
}

func TestCorrelate_TieResolvesToFirstSeen(t *testing.T) {
	cities := []City{NewCity("Origin", 0, 0)}
	stations := []Station{
		{ID: "east", Lat: 0, Lon: 1},
		{ID: "west", Lat: 0, Lon: -1},
	}

	assert.Equal(t, "east", Correlate(cities, stations)[0].StationID)

	stations[0], stations[1] = stations[1], stations[0]
	assert.Equal(t, "west", Correlate(cities, stations)[0].StationID)
}

func TestCorrelate_NoValidStations(t *testing.T) {
	cities := []City{NewCity("Berlin", 52.52, 13.40), NewCity("Bonn", 50.73, 7.10)}
	stations := []Station{
		{ID: "nan", Lat: math.NaN(), Lon: 13},
		{ID: "inf", Lat: 52, Lon: math.Inf(1)},
	}

	got := Correlate(cities, stations)

	assert.Equal(t, cities, got)
	assert.Equal(t, 0, NewLinearScan(stations).Len())
}

func TestCorrelate_CityWithoutCoordinatesStaysUnbound(t *testing.T) {
	cities := []City{NewCity("Nowhere", math.NaN(), 0)}
	got := Correlate(cities, []Station{{ID: "S1", Lat: 1, Lon: 1}})
	assert.False(t, got[0].Bound())
	assert.Nil(t, got[0].DistanceKm)
}
