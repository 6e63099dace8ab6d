package selector

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
)

// Sources exposes the currently cached upstream datasets. Each accessor
// returns nil when the dataset is not loaded.
type Sources interface {
	CityList() *domain.CityList
	LiveData() *domain.LiveData
	DailySnapshot(date string) *domain.DailySnapshot
	YearlyMeansFor(day domain.CalendarDay) *domain.YearlyMeans
	HourlyReferenceFor(day domain.CalendarDay) *domain.HourlyReference
}

// DateSelection supplies the selected date.
type DateSelection interface {
	SelectedDate() string
}

// Subscribable is anything that announces changes.
type Subscribable interface {
	Subscribe(fn func()) (unsubscribe func())
}

// Engine re-evaluates the pipeline whenever an upstream changes and
// publishes the result when its reference differs from the previous one.
type Engine struct {
	pipeline  *Pipeline
	sources   Sources
	selection DateSelection
	target    int
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu  sync.Mutex
	seq uint64

	// pubMu orders publication so an older evaluation never replaces a newer one.
	pubMu     sync.Mutex
	published uint64
	output    Cell[*DatumSet]
}

// NewEngine creates an Engine. A target of zero selects DefaultSampleTarget.
func NewEngine(p *Pipeline, sources Sources, selection DateSelection, target int, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if target <= 0 {
		target = DefaultSampleTarget
	}
	return &Engine{
		pipeline:  p,
		sources:   sources,
		selection: selection,
		target:    target,
		logger:    logger,
		metrics:   metrics,
	}
}

// Watch subscribes the engine to every upstream and evaluates once. The
// returned function removes all subscriptions.
func (e *Engine) Watch(upstreams ...Subscribable) func() {
	stops := make([]func(), 0, len(upstreams))
	for _, u := range upstreams {
		stops = append(stops, u.Subscribe(func() { e.Recompute() }))
	}
	e.Recompute()
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// Recompute evaluates the pipeline against the current upstream values.
func (e *Engine) Recompute() *DatumSet {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	in := e.inputs()
	out := e.pipeline.Evaluate(in)
	e.mu.Unlock()

	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if seq < e.published {
		return e.output.Get()
	}
	e.published = seq
	if e.output.Set(out) {
		n := 0
		if out != nil {
			n = len(out.Data)
		}
		e.metrics.DatasetPoints.Set(float64(n))
		e.logger.Debug("dataset updated", "date", in.Date, "today", in.Today, "points", n, "ready", out != nil)
	}
	return out
}

func (e *Engine) inputs() Inputs {
	in := Inputs{
		Cities: e.sources.CityList(),
		Live:   e.sources.LiveData(),
		Date:   e.selection.SelectedDate(),
		Target: e.target,
	}
	if in.Date == "" {
		return in
	}
	in.Today = domain.IsToday(in.Date)
	day, err := domain.CalendarDayOf(in.Date)
	if err != nil {
		return in
	}
	if in.Today {
		in.Hourly = e.sources.HourlyReferenceFor(day)
	} else {
		in.Daily = e.sources.DailySnapshot(in.Date)
		in.Yearly = e.sources.YearlyMeansFor(day)
	}
	return in
}

// Current returns the latest published dataset, nil while not ready.
func (e *Engine) Current() *DatumSet {
	return e.output.Get()
}

// Subscribe registers fn to receive every newly published dataset.
func (e *Engine) Subscribe(fn func(*DatumSet)) func() {
	return e.output.Subscribe(fn)
}

// StationFor returns the station bound to a city.
func (e *Engine) StationFor(cityID string) (string, bool) {
	e.mu.Lock()
	bound := e.pipeline.Bound(e.sources.CityList(), e.sources.LiveData())
	e.mu.Unlock()
	if bound == nil {
		return "", false
	}
	c, ok := bound.City(cityID)
	if !ok || !c.Bound() {
		return "", false
	}
	return c.StationID, true
}

// Cities returns the correlated city list, or nil before cities and
// stations are loaded.
func (e *Engine) Cities() []domain.City {
	e.mu.Lock()
	defer e.mu.Unlock()
	bound := e.pipeline.Bound(e.sources.CityList(), e.sources.LiveData())
	if bound == nil {
		return nil
	}
	return bound.Cities
}

// CheckReadiness returns nil once a dataset has been published.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if e.Current() == nil {
		return errors.New("dataset not ready")
	}
	return nil
}
