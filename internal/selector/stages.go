package selector

import (
	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
)

// DefaultSampleTarget is the point count above which the dataset is thinned.
const DefaultSampleTarget = 10000

// bindCities correlates the city list with the live station set.
func bindCities(cities *domain.CityList, live *domain.LiveData) *BoundCities {
	if cities == nil || live == nil {
		return nil
	}
	bound := &BoundCities{
		Cities:   domain.Correlate(cities.Cities, live.Stations),
		stations: make(map[string]domain.Station, len(live.Stations)),
	}
	for _, s := range live.Stations {
		if _, ok := bound.stations[s.ID]; !ok {
			bound.stations[s.ID] = s
		}
	}
	bound.byID = make(map[string]int, len(bound.Cities))
	for i, c := range bound.Cities {
		if _, ok := bound.byID[c.ID]; !ok {
			bound.byID[c.ID] = i
		}
	}
	return bound
}

// correlatePoints joins bound cities with the measurement set of the active
// mode. Cities without a station or without a reading are dropped.
func correlatePoints(bound *BoundCities, measurements map[string]domain.Measurement, date string, today bool) *PointSet {
	set := &PointSet{Date: date, Today: today, Points: make([]CorrelatedPoint, 0, len(bound.Cities))}
	for _, c := range bound.Cities {
		if !c.Bound() {
			continue
		}
		m, ok := measurements[c.StationID]
		if !ok {
			continue
		}
		p := CorrelatedPoint{
			CityID:         c.ID,
			CityName:       c.Name,
			Lat:            c.Lat,
			Lon:            c.Lon,
			StationID:      c.StationID,
			StationName:    bound.stations[c.StationID].Name,
			Date:           m.Date,
			Temperature:    m.TemperatureMean,
			TemperatureMin: m.TemperatureMin,
			TemperatureMax: m.TemperatureMax,
			Humidity:       m.HumidityMean,
		}
		if c.DistanceKm != nil {
			p.DistanceKm = *c.DistanceKm
		}
		set.Points = append(set.Points, p)
	}
	return set
}

// baseData picks the display temperature: the live reading today, the
// archived maximum otherwise.
func baseData(points *PointSet) *DatumSet {
	set := &DatumSet{Date: points.Date, Today: points.Today, Data: make([]Datum, len(points.Points))}
	for i, p := range points.Points {
		d := Datum{CorrelatedPoint: p}
		if points.Today {
			d.DisplayTemperature = p.Temperature
		} else {
			d.DisplayTemperature = p.TemperatureMax
		}
		set.Data[i] = d
	}
	return set
}

// todayAnomalies subtracts the hourly reference for the hour of each
// reading's own timestamp from the live temperature.
func todayAnomalies(base *DatumSet, hourly *domain.HourlyReference, today bool) *Anomalies {
	if !today {
		return notApplicable
	}
	if base == nil || hourly == nil {
		return pending
	}
	values := make(map[string]float64, len(base.Data))
	for _, d := range base.Data {
		if d.Temperature == nil {
			continue
		}
		series, ok := hourly.ByStation[d.StationID]
		if !ok {
			continue
		}
		hour, err := domain.HourBucket(d.Date)
		if err != nil {
			continue
		}
		ref, ok := series.At(hour)
		if !ok {
			continue
		}
		values[d.CityID] = *d.Temperature - ref
	}
	return &Anomalies{State: AnomalyReady, Values: values}
}

// historicalAnomalies subtracts the reference maximum of the calendar day from
// the display temperature.
func historicalAnomalies(base *DatumSet, yearly *domain.YearlyMeans, today bool) *Anomalies {
	if today {
		return notApplicable
	}
	if base == nil || yearly == nil {
		return pending
	}
	values := make(map[string]float64, len(base.Data))
	for _, d := range base.Data {
		if d.DisplayTemperature == nil {
			continue
		}
		ref, ok := yearly.ByStation[d.StationID].TasMax()
		if !ok {
			continue
		}
		values[d.CityID] = *d.DisplayTemperature - ref
	}
	return &Anomalies{State: AnomalyReady, Values: values}
}

// merge attaches the applicable anomaly values. Without ready values the base
// set itself is returned.
func merge(base *DatumSet, today, historical *Anomalies) *DatumSet {
	applicable := historical
	if base.Today {
		applicable = today
	}
	if applicable.State != AnomalyReady {
		return base
	}
	out := &DatumSet{Date: base.Date, Today: base.Today, Data: make([]Datum, len(base.Data))}
	for i, d := range base.Data {
		if v, ok := applicable.Values[d.CityID]; ok {
			anomaly := v
			d.Anomaly = &anomaly
		}
		out.Data[i] = d
	}
	return out
}

// sample keeps every stride-th datum, stride = ceil(n/target). Sets at or
// below target pass through unchanged.
func sample(set *DatumSet, target int) *DatumSet {
	n := len(set.Data)
	if target <= 0 || n <= target {
		return set
	}
	stride := (n + target - 1) / target
	out := &DatumSet{Date: set.Date, Today: set.Today, Data: make([]Datum, 0, (n+stride-1)/stride)}
	for i := 0; i < n; i += stride {
		out.Data = append(out.Data, set.Data[i])
	}
	return out
}
