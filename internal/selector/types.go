package selector

import "github.com/couchcryptid/weather-correlation-sync/internal/domain"

// BoundCities is the city list after nearest-station correlation.
type BoundCities struct {
	Cities   []domain.City
	stations map[string]domain.Station
	byID     map[string]int
}

// City returns the bound city with id.
func (b *BoundCities) City(id string) (domain.City, bool) {
	i, ok := b.byID[id]
	if !ok {
		return domain.City{}, false
	}
	return b.Cities[i], true
}

// CorrelatedPoint is one city joined with its station and the station's
// reading for the selected date.
type CorrelatedPoint struct {
	CityID      string  `json:"city_id"`
	CityName    string  `json:"city_name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	StationID   string  `json:"station_id"`
	StationName string  `json:"station_name"`
	DistanceKm  float64 `json:"distance_km"`

	Date           string   `json:"date"`
	Temperature    *float64 `json:"temperature,omitempty"`
	TemperatureMin *float64 `json:"temperature_min,omitempty"`
	TemperatureMax *float64 `json:"temperature_max,omitempty"`
	Humidity       *float64 `json:"humidity,omitempty"`
}

// PointSet is the output of the correlated-points stage.
type PointSet struct {
	Date   string
	Today  bool
	Points []CorrelatedPoint
}

// Datum is a render-ready point.
type Datum struct {
	CorrelatedPoint
	DisplayTemperature *float64 `json:"display_temperature,omitempty"`
	Anomaly            *float64 `json:"anomaly,omitempty"`
}

// DatumSet is a list of data for one selected date.
type DatumSet struct {
	Date  string  `json:"date"`
	Today bool    `json:"today"`
	Data  []Datum `json:"data"`
}

// AnomalyState tells whether an anomaly variant applies and is computable.
type AnomalyState int

const (
	// AnomalyNotApplicable is the variant that does not match the selected mode.
	AnomalyNotApplicable AnomalyState = iota
	// AnomalyPending waits for a reference dataset or for base data.
	AnomalyPending
	// AnomalyReady carries computed values.
	AnomalyReady
)

func (s AnomalyState) String() string {
	switch s {
	case AnomalyNotApplicable:
		return "not_applicable"
	case AnomalyPending:
		return "pending"
	case AnomalyReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Anomalies holds anomaly values by city ID.
type Anomalies struct {
	State  AnomalyState
	Values map[string]float64
}

// Shared instances keep the anomaly stages reference-stable when they have
// nothing to compute.
var (
	notApplicable = &Anomalies{State: AnomalyNotApplicable}
	pending       = &Anomalies{State: AnomalyPending}
)
