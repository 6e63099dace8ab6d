package static

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestParseOptional(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"12.5", ptr(12.5)},
		{" -3 ", ptr(-3)},
		{"0", ptr(0)},
		{"-999", nil},
		{"-999.0", nil},
		{"", nil},
		{"n/a", nil},
		{"NaN", nil},
		{"+Inf", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOptional(tt.in))
		})
	}
}

func TestParseCities(t *testing.T) {
	body := []byte("Berlin,52.52,13.40\n\"Frankfurt, Main\",50.11,8.68\nNowhere,,\n")

	list, err := ParseCities(body)
	require.NoError(t, err)
	require.Len(t, list.Cities, 3)

	assert.Equal(t, "Berlin", list.Cities[0].Name)
	assert.InDelta(t, 52.52, list.Cities[0].Lat, 1e-9)
	assert.Equal(t, "Frankfurt, Main", list.Cities[1].Name)
	assert.True(t, math.IsNaN(list.Cities[2].Lat))
	assert.False(t, list.Cities[0].Bound())
}

func TestParseCities_ToleratesHeader(t *testing.T) {
	list, err := ParseCities([]byte("city_name,lat,lon\nBonn,50.73,7.10\n"))
	require.NoError(t, err)
	require.Len(t, list.Cities, 1)
	assert.Equal(t, "Bonn", list.Cities[0].Name)
}

func TestParseCities_ShortRow(t *testing.T) {
	_, err := ParseCities([]byte("Berlin,52.52\n"))
	assert.ErrorIs(t, err, domain.ErrSchema)
}

const liveCSV = `station_id,station_name,data_date,elevation,lat,lon,humidity,max_temperature,min_temperature,temperature
00433,"Berlin-Tempelhof, Flughafen",202501151020,48,52.4675,13.4021,81,-999,2.1,3.4
00433,"Berlin-Tempelhof, Flughafen",202501151030,48,52.4675,13.4021,80,4.0,2.1,3.6
01048,Dresden-Klotzsche,202501151030,227,51.1278,13.7543,-999,,,1.2
09999,Broken,202501151030,10,-999,13.0,,,,
`

func TestParseLive(t *testing.T) {
	live, err := ParseLive([]byte(liveCSV))
	require.NoError(t, err)

	require.Len(t, live.Stations, 3)
	assert.Equal(t, "Berlin-Tempelhof, Flughafen", live.Stations[0].Name)
	assert.Equal(t, ptr(48), live.Stations[0].Elevation)
	assert.True(t, math.IsNaN(live.Stations[2].Lat), "sentinel coordinate becomes NaN")

	want := domain.Measurement{
		StationID:       "00433",
		Date:            "202501151030",
		TemperatureMean: ptr(3.6),
		TemperatureMin:  ptr(2.1),
		TemperatureMax:  ptr(4.0),
		HumidityMean:    ptr(80),
	}
	if diff := cmp.Diff(want, live.Measurements["00433"]); diff != "" {
		t.Errorf("latest reading mismatch (-want +got):\n%s", diff)
	}

	dresden := live.Measurements["01048"]
	assert.Nil(t, dresden.HumidityMean, "-999 is absent, not a value")
	assert.Nil(t, dresden.TemperatureMax)
	assert.Equal(t, ptr(1.2), dresden.TemperatureMean)
}

func TestParseLive_MissingColumn(t *testing.T) {
	_, err := ParseLive([]byte("station_id,station_name,lat,lon\n1,x,1,1\n"))
	require.ErrorIs(t, err, domain.ErrSchema)
	assert.Contains(t, err.Error(), "data_date")
}

func TestParseLive_Empty(t *testing.T) {
	_, err := ParseLive([]byte("  \n"))
	assert.ErrorIs(t, err, domain.ErrEmptyResponse)
}

func TestParseStationArchive(t *testing.T) {
	body := []byte("date,temperature_mean,temperature_min,temperature_max,humidity_mean\n" +
		"1950-01-01,1.0,-2.0,3.0,90\n" +
		"1950-01-02,,-999,abc,88\n" +
		"2024-12-31,4.5,1.0,7.5,\n")

	a, err := ParseStationArchive(body, "00433")
	require.NoError(t, err)

	assert.Equal(t, domain.DateRange{From: "1950-01-01", To: "2024-12-31"}, a.Range)
	m, ok := a.On("1950-01-02")
	require.True(t, ok)
	assert.Nil(t, m.TemperatureMean)
	assert.Nil(t, m.TemperatureMin)
	assert.Nil(t, m.TemperatureMax)
	assert.Equal(t, ptr(88), m.HumidityMean)
}

func TestParseDailySnapshot(t *testing.T) {
	body := []byte("station_id,date,max_temperature,min_temperature,mean_temperature,mean_humidity\n" +
		"00433,2025-01-01,5.5,-1.0,2.0,85\n" +
		"01048,2025-01-01,-999,,1.0,90\n")

	snap, err := ParseDailySnapshot(body, "2025-01-01")
	require.NoError(t, err)
	require.Len(t, snap.Measurements, 2)
	assert.Equal(t, ptr(5.5), snap.Measurements["00433"].TemperatureMax)
	assert.Nil(t, snap.Measurements["01048"].TemperatureMax)
}

func TestParseDailySnapshot_DateMismatch(t *testing.T) {
	body := []byte("station_id,date,max_temperature,min_temperature,mean_temperature,mean_humidity\n" +
		"00433,2025-01-02,5.5,-1.0,2.0,85\n")

	snap, err := ParseDailySnapshot(body, "2025-01-01")
	require.ErrorIs(t, err, domain.ErrSemantic)
	assert.Nil(t, snap)
	assert.Contains(t, err.Error(), "2025-01-02")
}

func TestParseRollingAverages(t *testing.T) {
	body := []byte("date,tas,tasmin,tasmax,hurs\n1961-01-01,0.5,-2.1,2.9,\n1961-01-02,0.6,,3.0,88.1\n")

	s, err := ParseRollingAverages(body, "00433", 15)
	require.NoError(t, err)

	assert.Equal(t, 15, s.Window)
	assert.Equal(t, domain.DateRange{From: "1961-01-01", To: "1961-01-02"}, s.Range)
	assert.Equal(t, map[string]float64{"tas": 0.5, "tasmin": -2.1, "tasmax": 2.9}, s.Records[0].Metrics)
	assert.Equal(t, map[string]float64{"tas": 0.6, "tasmax": 3.0, "hurs": 88.1}, s.Records[1].Metrics)
}

func TestParseRollingAverages_MissingDate(t *testing.T) {
	_, err := ParseRollingAverages([]byte("day,tas\n1,2\n"), "1", 7)
	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestParseYearlyMeans(t *testing.T) {
	body := []byte("station_id,tasmin,tasmax,tas\n00433,-1.5,3.2,0.8\n01048,,-999,0.1\n")

	y, err := ParseYearlyMeans(body, domain.CalendarDay{Month: 1, Day: 1})
	require.NoError(t, err)

	v, ok := y.ByStation["00433"].TasMax()
	require.True(t, ok)
	assert.InDelta(t, 3.2, v, 1e-9)
	_, ok = y.ByStation["01048"].TasMax()
	assert.False(t, ok)
}

func TestParseHourlyReference(t *testing.T) {
	header := "station_id"
	row := "00433"
	for h := 0; h < 24; h++ {
		header += "," + domain.HourColumn(h)
		if h == 5 {
			row += ",-999"
			continue
		}
		row += ",1." + string(rune('0'+h%10))
	}

	ref, err := ParseHourlyReference([]byte(header+"\n"+row+"\n"), domain.CalendarDay{Month: 7, Day: 15})
	require.NoError(t, err)

	s := ref.ByStation["00433"]
	v, ok := s.At(3)
	require.True(t, ok)
	assert.InDelta(t, 1.3, v, 1e-9)
	_, ok = s.At(5)
	assert.False(t, ok)
}

func TestParseHourlyReference_MissingHour(t *testing.T) {
	_, err := ParseHourlyReference([]byte("station_id,hour_0\n1,2\n"), domain.CalendarDay{Month: 1, Day: 1})
	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestParseThresholdDays(t *testing.T) {
	body := []byte(`{"daysAbove30tasmax":{"x":[1990,1991],"y":[3,7]},"daysBelow0tasmin":{"x":[1990],"y":[40]}}`)

	td, err := ParseThresholdDays(body, "00433")
	require.NoError(t, err)
	assert.Equal(t, domain.ThresholdSeries{Years: []int{1990, 1991}, Counts: []int{3, 7}}, td.Series["daysAbove30tasmax"])

	_, err = ParseThresholdDays([]byte(`{"a":{"x":[1],"y":[]}}`), "1")
	require.ErrorIs(t, err, domain.ErrSchema)

	_, err = ParseThresholdDays([]byte(`not json`), "1")
	require.ErrorIs(t, err, domain.ErrSchema)

	_, err = ParseThresholdDays(nil, "1")
	assert.ErrorIs(t, err, domain.ErrEmptyResponse)
}
