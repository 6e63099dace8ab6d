package selector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
)

func f(v float64) *float64 { return &v }

var (
	berlin  = domain.NewCity("Berlin", 52.52, 13.40)
	paris   = domain.NewCity("Paris", 48.86, 2.35)
	lonely  = domain.NewCity("Lonely", 52.40, 13.35)
	testDay = domain.CalendarDay{Month: 6, Day: 1}
)

func testCities() *domain.CityList {
	return &domain.CityList{Cities: []domain.City{berlin, paris}}
}

func testLive() *domain.LiveData {
	return &domain.LiveData{
		Stations: []domain.Station{
			{ID: "S1", Name: "Berlin-Tempelhof", Lat: 52.50, Lon: 13.30},
			{ID: "S2", Name: "Paris-Montsouris", Lat: 48.85, Lon: 2.35},
		},
		Measurements: map[string]domain.Measurement{
			// 10:30 UTC is 12:30 in Berlin during summer time.
			"S1": {StationID: "S1", Date: "202506011030", TemperatureMean: f(20.5), TemperatureMax: f(22)},
			"S2": {StationID: "S2", Date: "202506011030", TemperatureMean: f(18), TemperatureMax: f(19)},
		},
	}
}

func testHourly() *domain.HourlyReference {
	return &domain.HourlyReference{
		Day: testDay,
		ByStation: map[string]domain.ReferenceHourlySeries{
			"S1": {StationID: "S1", Metrics: map[string]float64{"hour_12": 15.0, "hour_10": 99}},
		},
	}
}

func todayInputs() Inputs {
	return Inputs{
		Cities: testCities(),
		Live:   testLive(),
		Hourly: testHourly(),
		Date:   "2025-06-01",
		Today:  true,
	}
}

func pastInputs() Inputs {
	return Inputs{
		Cities: testCities(),
		Live:   testLive(),
		Daily: &domain.DailySnapshot{Date: "2024-06-01", Measurements: map[string]domain.Measurement{
			"S1": {StationID: "S1", Date: "2024-06-01", TemperatureMean: f(17), TemperatureMax: f(24.5)},
			"S2": {StationID: "S2", Date: "2024-06-01", TemperatureMean: f(16), TemperatureMax: nil},
		}},
		Yearly: &domain.YearlyMeans{Day: testDay, ByStation: map[string]domain.YearlyMeanByDay{
			"S1": {StationID: "S1", Metrics: map[string]float64{"tasmax": 21.0}},
			"S2": {StationID: "S2", Metrics: map[string]float64{"tasmax": 20.0}},
		}},
		Date:  "2024-06-01",
		Today: false,
	}
}

func datumFor(t *testing.T, set *DatumSet, cityID string) Datum {
	t.Helper()
	for _, d := range set.Data {
		if d.CityID == cityID {
			return d
		}
	}
	t.Fatalf("city %s not in dataset", cityID)
	return Datum{}
}

func TestEvaluate_TodayAnomalyAgainstHourlyReference(t *testing.T) {
	p := New(observability.NewMetricsForTesting())
	in := todayInputs()

	out := p.Evaluate(in)
	require.NotNil(t, out)
	assert.True(t, out.Today)
	require.Len(t, out.Data, 2)

	b := datumFor(t, out, berlin.ID)
	assert.Equal(t, "S1", b.StationID)
	assert.Equal(t, "Berlin-Tempelhof", b.StationName)
	assert.Equal(t, f(20.5), b.DisplayTemperature, "live temperature is displayed today")
	require.NotNil(t, b.Anomaly)
	assert.InDelta(t, 5.5, *b.Anomaly, 1e-9)

	assert.Nil(t, datumFor(t, out, paris.ID).Anomaly, "no hourly reference for S2")

	today, historical := p.Anomalies(in)
	assert.Equal(t, AnomalyReady, today.State)
	assert.Equal(t, AnomalyNotApplicable, historical.State)
	assert.Empty(t, historical.Values, "not applicable is not zero")
}

func TestEvaluate_HistoricalAnomalyAgainstYearlyMean(t *testing.T) {
	p := New(nil)
	in := pastInputs()

	out := p.Evaluate(in)
	require.NotNil(t, out)
	assert.False(t, out.Today)

	b := datumFor(t, out, berlin.ID)
	assert.Equal(t, f(24.5), b.DisplayTemperature, "archived maximum is displayed for past dates")
	assert.Equal(t, f(17), b.Temperature, "raw fields carried forward")
	require.NotNil(t, b.Anomaly)
	assert.InDelta(t, 3.5, *b.Anomaly, 1e-9)

	pd := datumFor(t, out, paris.ID)
	assert.Nil(t, pd.DisplayTemperature)
	assert.Nil(t, pd.Anomaly)

	today, historical := p.Anomalies(in)
	assert.Equal(t, AnomalyNotApplicable, today.State)
	assert.Equal(t, AnomalyReady, historical.State)
}

func TestEvaluate_NotReady(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Inputs)
	}{
		{"no cities", func(in *Inputs) { in.Cities = nil }},
		{"no stations", func(in *Inputs) { in.Live = nil }},
		{"no archived snapshot", func(in *Inputs) { in.Daily = nil }},
		{"snapshot of another date", func(in *Inputs) { in.Date = "2024-06-02" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := pastInputs()
			tt.mutate(&in)
			assert.Nil(t, New(nil).Evaluate(in))
		})
	}

	t.Run("today without live feed", func(t *testing.T) {
		in := todayInputs()
		in.Live = nil
		assert.Nil(t, New(nil).Evaluate(in))
	})
}

func TestEvaluate_ZeroPointsIsNotNotReady(t *testing.T) {
	in := pastInputs()
	in.Daily = &domain.DailySnapshot{Date: in.Date, Measurements: map[string]domain.Measurement{}}

	out := New(nil).Evaluate(in)

	require.NotNil(t, out)
	assert.Empty(t, out.Data)
}

func TestEvaluate_MissingMeasurementDropsCity(t *testing.T) {
	in := todayInputs()
	in.Cities = &domain.CityList{Cities: []domain.City{berlin, paris, lonely}}
	delete(in.Live.Measurements, "S2")

	out := New(nil).Evaluate(in)

	require.NotNil(t, out)
	ids := []string{}
	for _, d := range out.Data {
		ids = append(ids, d.CityID)
	}
	assert.ElementsMatch(t, []string{berlin.ID, lonely.ID}, ids)
}

func TestEvaluate_PendingReferenceWithholdsAnomaly(t *testing.T) {
	p := New(nil)
	in := pastInputs()
	yearly := in.Yearly
	in.Yearly = nil

	out := p.Evaluate(in)
	require.NotNil(t, out)
	for _, d := range out.Data {
		assert.Nil(t, d.Anomaly)
	}
	_, historical := p.Anomalies(in)
	assert.Equal(t, AnomalyPending, historical.State)

	in.Yearly = yearly
	out = p.Evaluate(in)
	require.NotNil(t, datumFor(t, out, berlin.ID).Anomaly)
}

func TestEvaluate_ReferenceStableOnIdenticalInputs(t *testing.T) {
	p := New(nil)
	in := pastInputs()

	first := p.Evaluate(in)
	second := p.Evaluate(in)
	assert.Same(t, first, second)

	today := todayInputs()
	a := p.Evaluate(today)
	b := p.Evaluate(today)
	assert.Same(t, a, b)

	today.Live = testLive()
	assert.NotSame(t, a, p.Evaluate(today), "a refetch is a new reference")
}

func TestEvaluate_UpstreamChangeRecomputesOnlyDownstream(t *testing.T) {
	p := New(nil)
	in := pastInputs()
	p.Evaluate(in)

	in.Yearly = &domain.YearlyMeans{Day: testDay, ByStation: in.Yearly.ByStation}
	p.Evaluate(in)

	assert.Equal(t, 1, p.bind.Recomputes())
	assert.Equal(t, 1, p.points.Recomputes())
	assert.Equal(t, 1, p.base.Recomputes())
	assert.Equal(t, 2, p.historical.Recomputes())
	assert.Equal(t, 2, p.merged.Recomputes())
}

func TestEvaluate_Invalidate(t *testing.T) {
	p := New(nil)
	in := pastInputs()
	first := p.Evaluate(in)

	p.Invalidate()

	second := p.Evaluate(in)
	assert.NotSame(t, first, second)
	assert.Equal(t, first, second)
}

func TestSample_StrideDownsampling(t *testing.T) {
	set := &DatumSet{Data: make([]Datum, 25000)}
	for i := range set.Data {
		set.Data[i].CityID = fmt.Sprintf("c%d", i)
	}

	out := sample(set, 10000)

	require.Len(t, out.Data, 8334)
	for i, d := range out.Data {
		require.Equal(t, fmt.Sprintf("c%d", i*3), d.CityID)
	}
	assert.Equal(t, out, sample(set, 10000), "deterministic across runs")
}

func TestSample_BelowTargetPassesThrough(t *testing.T) {
	set := &DatumSet{Data: make([]Datum, 10000)}
	assert.Same(t, set, sample(set, 10000))
}

func TestEvaluate_SamplesLargeSets(t *testing.T) {
	cities := make([]domain.City, 30)
	for i := range cities {
		cities[i] = domain.NewCity(fmt.Sprintf("city-%d", i), 52.5, 13.3+float64(i)*0.001)
	}
	in := todayInputs()
	in.Cities = &domain.CityList{Cities: cities}
	in.Target = 10

	out := New(nil).Evaluate(in)

	require.NotNil(t, out)
	assert.Len(t, out.Data, 10)
	assert.Equal(t, cities[0].ID, out.Data[0].CityID)
	assert.Equal(t, cities[3].ID, out.Data[1].CityID)
}
