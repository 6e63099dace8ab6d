package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// City is a named point of interest bound to its nearest station.
type City struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	StationID  string   `json:"station_id,omitempty"` // empty when unbound
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// NewCity builds an unbound city with a deterministic ID.
func NewCity(name string, lat, lon float64) City {
	return City{
		ID:   cityID(name, lat, lon),
		Name: name,
		Lat:  lat,
		Lon:  lon,
	}
}

// Bound reports whether the correlation step assigned a station.
func (c City) Bound() bool {
	return c.StationID != ""
}

// cityID hashes name|lat|lon so that cities sharing a name stay distinct.
func cityID(name string, lat, lon float64) string {
	key := fmt.Sprintf("%s|%.4f|%.4f", name, lat, lon)
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:8])
}

// CityList is one parsed city file.
type CityList struct {
	Cities []City `json:"cities"`
}

// Station is a physical measurement point from the live feed.
type Station struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Elevation *float64 `json:"elevation,omitempty"`
	Lat       float64  `json:"lat"` // NaN when the feed had no usable value
	Lon       float64  `json:"lon"`
}

// Measurement is one live reading or one archived daily record. All values
// are optional; a nil field is a gap in the source, not zero.
type Measurement struct {
	StationID       string   `json:"station_id"`
	Date            string   `json:"date"`
	TemperatureMean *float64 `json:"temperature_mean,omitempty"`
	TemperatureMin  *float64 `json:"temperature_min,omitempty"`
	TemperatureMax  *float64 `json:"temperature_max,omitempty"`
	HumidityMean    *float64 `json:"humidity_mean,omitempty"`
}

// LiveData is one parse of the live telemetry feed: the station set and the
// latest reading per station.
type LiveData struct {
	Stations     []Station              `json:"stations"`
	Measurements map[string]Measurement `json:"measurements"` // by station ID
}

// StationArchive is the multi-decade daily record of one station.
type StationArchive struct {
	StationID string        `json:"station_id"`
	Range     DateRange     `json:"range"`
	Records   []Measurement `json:"records"`
	byDate    map[string]int
}

// NewStationArchive indexes records by their date string. Records must be in
// chronological order; the first and last rows define the range.
func NewStationArchive(stationID string, records []Measurement) *StationArchive {
	a := &StationArchive{
		StationID: stationID,
		Records:   records,
		byDate:    make(map[string]int, len(records)),
	}
	for i, r := range records {
		a.byDate[r.Date] = i
	}
	if len(records) > 0 {
		a.Range = DateRange{From: records[0].Date, To: records[len(records)-1].Date}
	}
	return a
}

// On returns the record for date, keyed by the unmodified date string.
func (a *StationArchive) On(date string) (Measurement, bool) {
	i, ok := a.byDate[date]
	if !ok {
		return Measurement{}, false
	}
	return a.Records[i], true
}

// DailySnapshot holds every station's archived record for a single date.
type DailySnapshot struct {
	Date         string                 `json:"date"`
	Measurements map[string]Measurement `json:"measurements"` // by station ID
}

// RollingAverageRecord is one date of a rolling-average series with a sparse
// set of named metrics (tas, tasmin, tasmax, hurs, ...).
type RollingAverageRecord struct {
	Date    string             `json:"date"`
	Metrics map[string]float64 `json:"metrics"`
}

// RollingAverageSeries is the rolling-average file of one station.
type RollingAverageSeries struct {
	StationID string                 `json:"station_id"`
	Window    int                    `json:"window_days"`
	Range     DateRange              `json:"range"`
	Records   []RollingAverageRecord `json:"records"`
}

// YearlyMeanByDay holds reference-period means of one station for one
// calendar day.
type YearlyMeanByDay struct {
	StationID string             `json:"station_id"`
	Metrics   map[string]float64 `json:"metrics"` // tasmin, tasmax, tas
}

// TasMax returns the reference maximum temperature.
func (y YearlyMeanByDay) TasMax() (float64, bool) {
	v, ok := y.Metrics["tasmax"]
	return v, ok
}

// YearlyMeans is the yearly-mean file for one calendar day, by station ID.
type YearlyMeans struct {
	Day       CalendarDay                `json:"day"`
	ByStation map[string]YearlyMeanByDay `json:"by_station"`
}

// ReferenceHourlySeries is the interpolated reference value of one station
// for each hour of a calendar day, keyed hour_0 ... hour_23.
type ReferenceHourlySeries struct {
	StationID string             `json:"station_id"`
	Metrics   map[string]float64 `json:"metrics"`
}

// At returns the reference value for hour (0-23).
func (s ReferenceHourlySeries) At(hour int) (float64, bool) {
	v, ok := s.Metrics[HourColumn(hour)]
	return v, ok
}

// HourColumn is the column and metric name of an hour bucket.
func HourColumn(hour int) string {
	return fmt.Sprintf("hour_%d", hour)
}

// HourlyReference is the hourly reference file for one calendar day.
type HourlyReference struct {
	Day       CalendarDay                      `json:"day"`
	ByStation map[string]ReferenceHourlySeries `json:"by_station"`
}

// ThresholdSeries counts, per year, the days a station crossed a threshold.
type ThresholdSeries struct {
	Years  []int `json:"x"`
	Counts []int `json:"y"`
}

// ThresholdDays is the merged threshold-day summary of one station, keyed by
// series name such as "daysAbove30tasmax".
type ThresholdDays struct {
	StationID string                     `json:"station_id"`
	Series    map[string]ThresholdSeries `json:"series"`
}
