// Package datasets assembles the cache slice of every dataset type.
package datasets

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/weather-correlation-sync/internal/adapter/static"
	"github.com/couchcryptid/weather-correlation-sync/internal/cache"
	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
)

// Source loads the raw datasets.
type Source interface {
	Cities(ctx context.Context) (*domain.CityList, error)
	Live(ctx context.Context) (*domain.LiveData, error)
	Boundaries(ctx context.Context) (json.RawMessage, error)
	StationArchive(ctx context.Context, stationID string) (*domain.StationArchive, error)
	RollingAverages(ctx context.Context, stationID string) (*domain.RollingAverageSeries, error)
	ThresholdDays(ctx context.Context, stationID string) (*domain.ThresholdDays, error)
	DailySnapshot(ctx context.Context, date string) (*domain.DailySnapshot, error)
	YearlyMeans(ctx context.Context, day domain.CalendarDay) (*domain.YearlyMeans, error)
	HourlyReference(ctx context.Context, day domain.CalendarDay) (*domain.HourlyReference, error)
}

var _ Source = (*static.Client)(nil)

// Slice names, also their fetch-log namespaces.
const (
	SliceCities          = "cities"
	SliceLive            = "live"
	SliceBoundaries      = "boundaries"
	SliceStationArchive  = "station_archive"
	SliceRollingAverages = "rolling_averages"
	SliceThresholdDays   = "threshold_days"
	SliceDailySnapshots  = "daily_snapshots"
	SliceYearlyMeans     = "yearly_means"
	SliceHourlyReference = "hourly_reference"
)

// None is the argument of slices that take no parameters.
type None struct{}

// Config configures the slices.
type Config struct {
	LiveTTL time.Duration
	// Concurrency caps the source requests in flight across all slices.
	// Zero leaves them unbounded.
	Concurrency int
	Clock       clockwork.Clock
	Log         *cache.FetchLog
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Set holds one cache slice per dataset type. Station-scoped slices are keyed
// by station ID, date-scoped ones by the unmodified date string or by the
// calendar day key.
type Set struct {
	Cities     *cache.Value[None, *domain.CityList]
	Live       *cache.Value[None, *domain.LiveData]
	Boundaries *cache.Value[None, json.RawMessage]

	StationArchive  *cache.Context[string, *domain.StationArchive]
	RollingAverages *cache.Keyed[string, *domain.RollingAverageSeries]
	ThresholdDays   *cache.Keyed[string, *domain.ThresholdDays]

	DailySnapshots  *cache.Keyed[string, *domain.DailySnapshot]
	YearlyMeans     *cache.Keyed[domain.CalendarDay, *domain.YearlyMeans]
	HourlyReference *cache.Keyed[domain.CalendarDay, *domain.HourlyReference]
}

// New wires every slice to src.
func New(src Source, cfg Config) *Set {
	opts := func(p cache.Policy) cache.Options {
		return cache.Options{Policy: p, Clock: cfg.Clock, Log: cfg.Log, Metrics: cfg.Metrics, Logger: cfg.Logger}
	}
	var sem *semaphore.Weighted
	if cfg.Concurrency > 0 {
		sem = semaphore.NewWeighted(int64(cfg.Concurrency))
	}
	forever := cache.CacheByKey(0)
	station := func(id string) string { return id }
	day := func(d domain.CalendarDay) string { return d.Key() }

	return &Set{
		Cities: cache.NewValue(SliceCities, limited(sem, func(ctx context.Context, _ None) (*domain.CityList, error) {
			return src.Cities(ctx)
		}), opts(cache.CacheAll())),
		Live: cache.NewValue(SliceLive, limited(sem, func(ctx context.Context, _ None) (*domain.LiveData, error) {
			return src.Live(ctx)
		}), opts(cache.CacheByKey(cfg.LiveTTL))),
		Boundaries: cache.NewValue(SliceBoundaries, limited(sem, func(ctx context.Context, _ None) (json.RawMessage, error) {
			return src.Boundaries(ctx)
		}), opts(cache.CacheAll())),

		StationArchive:  cache.NewContext(SliceStationArchive, limited(sem, src.StationArchive), station, opts(forever)),
		RollingAverages: cache.NewKeyed(SliceRollingAverages, limited(sem, src.RollingAverages), station, opts(forever)),
		ThresholdDays:   cache.NewKeyed(SliceThresholdDays, limited(sem, src.ThresholdDays), station, opts(forever)),

		DailySnapshots:  cache.NewKeyed(SliceDailySnapshots, limited(sem, src.DailySnapshot), func(date string) string { return date }, opts(forever)),
		YearlyMeans:     cache.NewKeyed(SliceYearlyMeans, limited(sem, src.YearlyMeans), day, opts(forever)),
		HourlyReference: cache.NewKeyed(SliceHourlyReference, limited(sem, src.HourlyReference), day, opts(forever)),
	}
}

// limited makes fetch wait for a slot of sem. A nil sem leaves fetch as is.
func limited[A, D any](sem *semaphore.Weighted, fetch func(context.Context, A) (D, error)) cache.FetchFunc[A, D] {
	if sem == nil {
		return fetch
	}
	return func(ctx context.Context, args A) (D, error) {
		if err := sem.Acquire(ctx, 1); err != nil {
			var zero D
			return zero, err
		}
		defer sem.Release(1)
		return fetch(ctx, args)
	}
}

// All lists every slice.
func (s *Set) All() []cache.Tracked {
	return []cache.Tracked{
		s.Cities, s.Live, s.Boundaries,
		s.StationArchive, s.RollingAverages, s.ThresholdDays,
		s.DailySnapshots, s.YearlyMeans, s.HourlyReference,
	}
}

// Reset returns every slice to idle.
func (s *Set) Reset() {
	for _, t := range s.All() {
		t.Reset()
	}
}

// Subscribe registers fn on every slice.
func (s *Set) Subscribe(fn func()) func() {
	all := s.All()
	stops := make([]func(), 0, len(all))
	for _, t := range all {
		stops = append(stops, t.Subscribe(fn))
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// CityList returns the loaded city list.
func (s *Set) CityList() *domain.CityList {
	v, _ := s.Cities.Get()
	return v
}

// LiveData returns the loaded live feed.
func (s *Set) LiveData() *domain.LiveData {
	v, _ := s.Live.Get()
	return v
}

// DailySnapshot returns the loaded snapshot of date.
func (s *Set) DailySnapshot(date string) *domain.DailySnapshot {
	v, _ := s.DailySnapshots.ReadKey(date)
	return v
}

// YearlyMeansFor returns the loaded yearly means of day.
func (s *Set) YearlyMeansFor(day domain.CalendarDay) *domain.YearlyMeans {
	v, _ := s.YearlyMeans.Read(day)
	return v
}

// HourlyReferenceFor returns the loaded hourly reference of day.
func (s *Set) HourlyReferenceFor(day domain.CalendarDay) *domain.HourlyReference {
	v, _ := s.HourlyReference.Read(day)
	return v
}

// Archive returns the loaded archive of stationID.
func (s *Set) Archive(stationID string) *domain.StationArchive {
	v, _ := s.StationArchive.Read(stationID)
	return v
}

// BoundaryDocument returns the loaded boundary GeoJSON.
func (s *Set) BoundaryDocument() (json.RawMessage, bool) {
	return s.Boundaries.Get()
}
