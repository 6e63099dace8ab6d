package static

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
)

// missingValue is the DWD "no value" sentinel.
const missingValue = -999

// table is a parsed delimited file addressed by header name.
type table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// readTable parses a headed CSV body and checks that every required column
// is present. Quoted fields may contain the delimiter.
func readTable(body []byte, required ...string) (*table, error) {
	records, err := readRecords(body)
	if err != nil {
		return nil, err
	}

	t := &table{index: make(map[string]int, len(records[0]))}
	for i, h := range records[0] {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		t.columns = append(t.columns, name)
		t.index[name] = i
	}
	for _, col := range required {
		if _, ok := t.index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrSchema, col)
		}
	}
	t.rows = records[1:]
	return t, nil
}

func readRecords(body []byte) ([][]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, domain.ErrEmptyResponse
	}
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchema, err)
	}
	if len(records) == 0 {
		return nil, domain.ErrEmptyResponse
	}
	return records, nil
}

// get returns the trimmed cell of col, or "" when the row is short.
func (t *table) get(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// metrics collects every present numeric cell of cols into a sparse map.
func (t *table) metrics(row []string, cols []string) map[string]float64 {
	out := make(map[string]float64, len(cols))
	for _, col := range cols {
		if v := parseOptional(t.get(row, col)); v != nil {
			out[col] = *v
		}
	}
	return out
}

// otherColumns lists the header columns not in skip.
func (t *table) otherColumns(skip ...string) []string {
	var out []string
	for _, c := range t.columns {
		skipped := false
		for _, s := range skip {
			if c == s {
				skipped = true
				break
			}
		}
		if !skipped && c != "" {
			out = append(out, c)
		}
	}
	return out
}

// parseOptional parses a reading. Empty cells, unparsable text, non-finite
// values and the -999 sentinel all become nil.
func parseOptional(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v == missingValue {
		return nil
	}
	return &v
}

// parseCoordinate parses a coordinate, returning NaN when absent so the
// correlation step excludes it.
func parseCoordinate(s string) float64 {
	if v := parseOptional(s); v != nil {
		return *v
	}
	return math.NaN()
}

// ParseCities parses the header-less name,lat,lon city list. A leading
// header row is tolerated.
func ParseCities(body []byte) (*domain.CityList, error) {
	records, err := readRecords(body)
	if err != nil {
		return nil, err
	}
	if len(records[0]) >= 3 && strings.EqualFold(strings.TrimSpace(records[0][1]), "lat") {
		records = records[1:]
	}

	list := &domain.CityList{Cities: make([]domain.City, 0, len(records))}
	for i, row := range records {
		if len(row) < 3 {
			return nil, fmt.Errorf("%w: city row %d has %d columns, want 3", domain.ErrSchema, i+1, len(row))
		}
		name := strings.TrimSpace(row[0])
		if name == "" {
			continue
		}
		list.Cities = append(list.Cities, domain.NewCity(name, parseCoordinate(row[1]), parseCoordinate(row[2])))
	}
	return list, nil
}

var liveColumns = []string{"station_id", "data_date", "lat", "lon"}

// ParseLive parses the live telemetry feed. The first row of a station
// defines the station; the row with the latest data_date is its reading.
func ParseLive(body []byte) (*domain.LiveData, error) {
	t, err := readTable(body, liveColumns...)
	if err != nil {
		return nil, err
	}

	live := &domain.LiveData{Measurements: make(map[string]domain.Measurement)}
	seen := make(map[string]bool)
	for _, row := range t.rows {
		id := t.get(row, "station_id")
		if id == "" {
			continue
		}
		if !seen[id] {
			seen[id] = true
			live.Stations = append(live.Stations, domain.Station{
				ID:        id,
				Name:      t.get(row, "station_name"),
				Elevation: parseOptional(t.get(row, "elevation")),
				Lat:       parseCoordinate(t.get(row, "lat")),
				Lon:       parseCoordinate(t.get(row, "lon")),
			})
		}

		m := domain.Measurement{
			StationID:       id,
			Date:            t.get(row, "data_date"),
			TemperatureMean: parseOptional(t.get(row, "temperature")),
			TemperatureMin:  parseOptional(t.get(row, "min_temperature")),
			TemperatureMax:  parseOptional(t.get(row, "max_temperature")),
			HumidityMean:    parseOptional(t.get(row, "humidity")),
		}
		if prev, ok := live.Measurements[id]; !ok || m.Date >= prev.Date {
			live.Measurements[id] = m
		}
	}
	return live, nil
}

// ParseStationArchive parses the chronologically ordered daily archive of
// one station.
func ParseStationArchive(body []byte, stationID string) (*domain.StationArchive, error) {
	t, err := readTable(body, "date")
	if err != nil {
		return nil, err
	}

	records := make([]domain.Measurement, 0, len(t.rows))
	for _, row := range t.rows {
		date := t.get(row, "date")
		if date == "" {
			continue
		}
		records = append(records, domain.Measurement{
			StationID:       stationID,
			Date:            date,
			TemperatureMean: parseOptional(t.get(row, "temperature_mean")),
			TemperatureMin:  parseOptional(t.get(row, "temperature_min")),
			TemperatureMax:  parseOptional(t.get(row, "temperature_max")),
			HumidityMean:    parseOptional(t.get(row, "humidity_mean")),
		})
	}
	return domain.NewStationArchive(stationID, records), nil
}

// ParseDailySnapshot parses the all-stations file of date. Any row dated
// differently rejects the whole file.
func ParseDailySnapshot(body []byte, date string) (*domain.DailySnapshot, error) {
	t, err := readTable(body, "station_id", "date")
	if err != nil {
		return nil, err
	}

	snap := &domain.DailySnapshot{Date: date, Measurements: make(map[string]domain.Measurement, len(t.rows))}
	for i, row := range t.rows {
		rowDate := t.get(row, "date")
		if rowDate != date {
			return nil, fmt.Errorf("%w: row %d has date %q, requested %q", domain.ErrSemantic, i+1, rowDate, date)
		}
		id := t.get(row, "station_id")
		if id == "" {
			continue
		}
		snap.Measurements[id] = domain.Measurement{
			StationID:       id,
			Date:            rowDate,
			TemperatureMean: parseOptional(t.get(row, "mean_temperature")),
			TemperatureMin:  parseOptional(t.get(row, "min_temperature")),
			TemperatureMax:  parseOptional(t.get(row, "max_temperature")),
			HumidityMean:    parseOptional(t.get(row, "mean_humidity")),
		}
	}
	return snap, nil
}

// ParseRollingAverages parses a station's rolling-average file: a date column
// followed by any number of metric columns.
func ParseRollingAverages(body []byte, stationID string, window int) (*domain.RollingAverageSeries, error) {
	t, err := readTable(body, "date")
	if err != nil {
		return nil, err
	}

	cols := t.otherColumns("date")
	series := &domain.RollingAverageSeries{
		StationID: stationID,
		Window:    window,
		Records:   make([]domain.RollingAverageRecord, 0, len(t.rows)),
	}
	for _, row := range t.rows {
		date := t.get(row, "date")
		if date == "" {
			continue
		}
		series.Records = append(series.Records, domain.RollingAverageRecord{Date: date, Metrics: t.metrics(row, cols)})
	}
	if n := len(series.Records); n > 0 {
		series.Range = domain.DateRange{From: series.Records[0].Date, To: series.Records[n-1].Date}
	}
	return series, nil
}

var yearlyMetrics = []string{"tasmin", "tasmax", "tas"}

// ParseYearlyMeans parses the yearly-mean-by-day file of one calendar day.
func ParseYearlyMeans(body []byte, day domain.CalendarDay) (*domain.YearlyMeans, error) {
	t, err := readTable(body, "station_id")
	if err != nil {
		return nil, err
	}

	means := &domain.YearlyMeans{Day: day, ByStation: make(map[string]domain.YearlyMeanByDay, len(t.rows))}
	for _, row := range t.rows {
		id := t.get(row, "station_id")
		if id == "" {
			continue
		}
		means.ByStation[id] = domain.YearlyMeanByDay{StationID: id, Metrics: t.metrics(row, yearlyMetrics)}
	}
	return means, nil
}

var hourColumns = func() []string {
	cols := make([]string, 24)
	for h := range cols {
		cols[h] = domain.HourColumn(h)
	}
	return cols
}()

// ParseHourlyReference parses the hourly reference file of one calendar day.
func ParseHourlyReference(body []byte, day domain.CalendarDay) (*domain.HourlyReference, error) {
	t, err := readTable(body, append([]string{"station_id"}, hourColumns...)...)
	if err != nil {
		return nil, err
	}

	ref := &domain.HourlyReference{Day: day, ByStation: make(map[string]domain.ReferenceHourlySeries, len(t.rows))}
	for _, row := range t.rows {
		id := t.get(row, "station_id")
		if id == "" {
			continue
		}
		ref.ByStation[id] = domain.ReferenceHourlySeries{StationID: id, Metrics: t.metrics(row, hourColumns)}
	}
	return ref, nil
}

// ParseThresholdDays parses a station's merged threshold-day JSON document.
func ParseThresholdDays(body []byte, stationID string) (*domain.ThresholdDays, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, domain.ErrEmptyResponse
	}
	var series map[string]domain.ThresholdSeries
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, fmt.Errorf("%w: decode threshold days: %v", domain.ErrSchema, err)
	}
	for name, s := range series {
		if len(s.Years) != len(s.Counts) {
			return nil, fmt.Errorf("%w: series %q has %d years and %d counts", domain.ErrSchema, name, len(s.Years), len(s.Counts))
		}
	}
	return &domain.ThresholdDays{StationID: stationID, Series: series}, nil
}

// readBody reads at most limit bytes of a response body.
func readBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}
