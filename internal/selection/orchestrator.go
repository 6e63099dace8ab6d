// Package selection tracks the selected city and date and dispatches the
// fetches each selection needs.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/weather-correlation-sync/internal/cache"
	"github.com/couchcryptid/weather-correlation-sync/internal/datasets"
	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
)

// ErrInvalidSelection is returned for a malformed city ID or date.
var ErrInvalidSelection = errors.New("invalid selection")

// ErrUnknownCity is returned when the loaded city list has no such city.
var ErrUnknownCity = errors.New("unknown city")

const defaultConcurrency = 4

// Config configures an Orchestrator.
type Config struct {
	// Concurrency caps the fetches one transition runs at once.
	Concurrency int
	// MinLoading is the shortest time a transition flag stays raised.
	MinLoading time.Duration
	Clock      clockwork.Clock
}

// Selection is a snapshot of the current selection.
type Selection struct {
	CityID       string `json:"city_id"`
	StationID    string `json:"station_id,omitempty"`
	Date         string `json:"date"`
	Today        bool   `json:"today"`
	CityChanging bool   `json:"city_changing"`
	DateChanging bool   `json:"date_changing"`
}

// Transition describes the effect of a Select call. Done is closed once every
// fetch it spawned has settled; it is already closed for a no-op.
type Transition struct {
	Changed bool
	Done    <-chan struct{}
}

type cityInput struct {
	CityID string `validate:"required"`
}

type dateInput struct {
	Date string `validate:"required,datetime=2006-01-02"`
}

// flag is a transition flag. gen identifies the transition that owns it.
type flag struct {
	active bool
	gen    uint64
	timer  clockwork.Timer
}

type task struct {
	slice    string
	key      string
	dispatch func(ctx context.Context) <-chan cache.Result
}

type pending struct {
	task
	result <-chan cache.Result
}

// StationView is the station scoped data of the selected city: the archive
// range, the archived record and rolling means of the selected date, and the
// threshold-day counts.
type StationView struct {
	CityID        string                       `json:"city_id"`
	StationID     string                       `json:"station_id"`
	Date          string                       `json:"date,omitempty"`
	Range         domain.DateRange             `json:"range"`
	Record        *domain.Measurement          `json:"record,omitempty"`
	RollingWindow int                          `json:"rolling_window_days,omitempty"`
	Rolling       *domain.RollingAverageRecord `json:"rolling,omitempty"`
	Thresholds    *domain.ThresholdDays        `json:"threshold_days,omitempty"`
}

// Orchestrator owns the city and date selection.
type Orchestrator struct {
	sets     *datasets.Set
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// planMu is held from the ShouldFetch checks of a transition until its
	// fetches are dispatched. It is always taken before mu.
	planMu sync.Mutex

	mu       sync.Mutex
	city     string
	station  string
	date     string
	cityFlag flag
	dateFlag flag
	closed   bool
	subs     cache.Notifier
}

// New creates an Orchestrator over sets. Fetches it spawns run until Close.
func New(sets *datasets.Set, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		sets:     sets,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close cancels in-flight fetches, stops pending flag timers and waits for
// spawned work to finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	stopTimer(&o.cityFlag)
	stopTimer(&o.dateFlag)
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

// Bootstrap loads the datasets every selection depends on: the city list,
// the live feed and the boundary document. Failures are joined.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	run := func(name string, should bool, fetch func(context.Context) error) {
		if !should {
			return
		}
		g.Go(func() error {
			if err := fetch(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	none := datasets.None{}
	run(datasets.SliceCities, o.sets.Cities.ShouldFetch(none), func(ctx context.Context) error {
		return o.sets.Cities.Fetch(ctx, none)
	})
	run(datasets.SliceLive, o.sets.Live.ShouldFetch(none), func(ctx context.Context) error {
		return o.sets.Live.Fetch(ctx, none)
	})
	run(datasets.SliceBoundaries, o.sets.Boundaries.ShouldFetch(none), func(ctx context.Context) error {
		return o.sets.Boundaries.Fetch(ctx, none)
	})
	_ = g.Wait()

	o.resyncStation()
	return errors.Join(errs...)
}

// RefreshLive refetches the live feed when its cached copy has expired. It
// reports whether a fetch ran.
func (o *Orchestrator) RefreshLive(ctx context.Context) (bool, error) {
	none := datasets.None{}
	if !o.sets.Live.ShouldFetch(none) {
		return false, nil
	}
	if err := o.sets.Live.Fetch(ctx, none); err != nil {
		return true, err
	}
	o.resyncStation()
	return true, nil
}

// Validate checks a city ID and a date without applying either. Empty
// inputs are not checked.
func (o *Orchestrator) Validate(cityID, date string) error {
	if cityID != "" {
		if err := o.checkCity(cityID); err != nil {
			return err
		}
	}
	if date != "" {
		if _, err := o.checkDate(date); err != nil {
			return err
		}
	}
	return nil
}

// SelectCity selects the city with the given ID and dispatches the station
// scoped datasets of its nearest station.
func (o *Orchestrator) SelectCity(cityID string) (Transition, error) {
	if err := o.checkCity(cityID); err != nil {
		return Transition{}, err
	}

	o.planMu.Lock()
	defer o.planMu.Unlock()

	o.mu.Lock()
	if o.closed || o.city == cityID {
		o.mu.Unlock()
		return noop(), nil
	}
	o.city = cityID
	o.station, _ = o.resolveStation(cityID)
	station := o.station
	gen, start := o.raiseLocked(&o.cityFlag)
	o.mu.Unlock()

	tr := o.follow(&o.cityFlag, gen, start, "city", o.start(o.cityTasks(station)))

	o.metrics.SelectionChanges.WithLabelValues("city").Inc()
	o.logger.Info("city selected", "city_id", cityID, "station_id", station)
	o.subs.Notify()
	return tr, nil
}

// SelectDate selects a "2006-01-02" date and dispatches the date scoped
// datasets: the yearly means of its calendar day always, the daily snapshot
// for past dates, and the hourly reference and live feed for today.
func (o *Orchestrator) SelectDate(date string) (Transition, error) {
	day, err := o.checkDate(date)
	if err != nil {
		return Transition{}, err
	}

	o.planMu.Lock()
	defer o.planMu.Unlock()

	o.mu.Lock()
	if o.closed || o.date == date {
		o.mu.Unlock()
		return noop(), nil
	}
	o.date = date
	today := domain.IsToday(date)
	gen, start := o.raiseLocked(&o.dateFlag)
	o.mu.Unlock()

	tr := o.follow(&o.dateFlag, gen, start, "date", o.start(o.dateTasks(date, day, today)))

	o.metrics.SelectionChanges.WithLabelValues("date").Inc()
	o.logger.Info("date selected", "date", date, "today", today)
	o.subs.Notify()
	return tr, nil
}

// CatchUpDate dispatches the past-date datasets the selected date still
// lacks once it is no longer today, e.g. the daily snapshot of a date that
// was selected as today before midnight. Failed fetches are retried. The
// transition is unchanged when nothing was dispatched.
func (o *Orchestrator) CatchUpDate() Transition {
	o.planMu.Lock()
	defer o.planMu.Unlock()

	o.mu.Lock()
	date, closed := o.date, o.closed
	o.mu.Unlock()
	if closed || date == "" || domain.IsToday(date) {
		return noop()
	}
	day, err := domain.CalendarDayOf(date)
	if err != nil {
		return noop()
	}
	tasks := o.dateTasks(date, day, false)
	if len(tasks) == 0 {
		return noop()
	}

	o.mu.Lock()
	if o.closed || o.date != date {
		o.mu.Unlock()
		return noop()
	}
	gen, start := o.raiseLocked(&o.dateFlag)
	o.mu.Unlock()

	tr := o.follow(&o.dateFlag, gen, start, "date", o.start(tasks))

	o.logger.Info("past-date datasets dispatched", "date", date, "tasks", len(tasks))
	o.subs.Notify()
	return tr
}

// Station returns the station scoped data of the selected city. It reports
// false until a station is bound and its archive is loaded.
func (o *Orchestrator) Station() (StationView, bool) {
	o.mu.Lock()
	view := StationView{CityID: o.city, StationID: o.station, Date: o.date}
	o.mu.Unlock()
	if view.StationID == "" {
		return StationView{}, false
	}

	archive := o.sets.Archive(view.StationID)
	if archive == nil {
		return StationView{}, false
	}
	view.Range = archive.Range
	if view.Date != "" && archive.Range.Contains(view.Date) {
		if rec, ok := archive.On(view.Date); ok {
			view.Record = &rec
		}
	}
	if series, ok := o.sets.RollingAverages.ReadKey(view.StationID); ok && series != nil {
		view.RollingWindow = series.Window
		if rec, ok := rollingOn(series, view.Date); ok {
			view.Rolling = &rec
		}
	}
	if th, ok := o.sets.ThresholdDays.ReadKey(view.StationID); ok {
		view.Thresholds = th
	}
	return view, true
}

func (o *Orchestrator) checkCity(cityID string) error {
	if err := o.validate.Struct(cityInput{CityID: cityID}); err != nil {
		return fmt.Errorf("%w: city: %w", ErrInvalidSelection, err)
	}
	if list := o.sets.CityList(); list != nil && !hasCity(list, cityID) {
		return fmt.Errorf("%w: %s", ErrUnknownCity, cityID)
	}
	return nil
}

func (o *Orchestrator) checkDate(date string) (domain.CalendarDay, error) {
	if err := o.validate.Struct(dateInput{Date: date}); err != nil {
		return domain.CalendarDay{}, fmt.Errorf("%w: date: %w", ErrInvalidSelection, err)
	}
	day, err := domain.CalendarDayOf(date)
	if err != nil {
		return domain.CalendarDay{}, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	return day, nil
}

// SelectedDate returns the selected date, empty before the first selection.
func (o *Orchestrator) SelectedDate() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.date
}

// SelectedCity returns the selected city ID.
func (o *Orchestrator) SelectedCity() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.city
}

// CityChanging reports whether a city transition is in progress.
func (o *Orchestrator) CityChanging() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cityFlag.active
}

// DateChanging reports whether a date transition is in progress.
func (o *Orchestrator) DateChanging() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dateFlag.active
}

// Selection returns the current selection.
func (o *Orchestrator) Selection() Selection {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Selection{
		CityID:       o.city,
		StationID:    o.station,
		Date:         o.date,
		CityChanging: o.cityFlag.active,
		DateChanging: o.dateFlag.active,
	}
	if s.Date != "" {
		s.Today = domain.IsToday(s.Date)
	}
	return s
}

// Subscribe registers fn to run after every selection or flag change.
func (o *Orchestrator) Subscribe(fn func()) func() {
	return o.subs.Subscribe(fn)
}

func (o *Orchestrator) cityTasks(station string) []task {
	if station == "" {
		return nil
	}
	var tasks []task
	if o.sets.StationArchive.ShouldFetch(station) {
		tasks = append(tasks, task{datasets.SliceStationArchive, station, func(ctx context.Context) <-chan cache.Result {
			return o.sets.StationArchive.Dispatch(ctx, station)
		}})
	}
	if o.sets.RollingAverages.ShouldFetch(station) {
		tasks = append(tasks, task{datasets.SliceRollingAverages, station, func(ctx context.Context) <-chan cache.Result {
			return o.sets.RollingAverages.Dispatch(ctx, station)
		}})
	}
	if o.sets.ThresholdDays.ShouldFetch(station) {
		tasks = append(tasks, task{datasets.SliceThresholdDays, station, func(ctx context.Context) <-chan cache.Result {
			return o.sets.ThresholdDays.Dispatch(ctx, station)
		}})
	}
	return tasks
}

func (o *Orchestrator) dateTasks(date string, day domain.CalendarDay, today bool) []task {
	var tasks []task
	if o.sets.YearlyMeans.ShouldFetch(day) {
		tasks = append(tasks, task{datasets.SliceYearlyMeans, day.Key(), func(ctx context.Context) <-chan cache.Result {
			return o.sets.YearlyMeans.Dispatch(ctx, day)
		}})
	}
	if today {
		if o.sets.HourlyReference.ShouldFetch(day) {
			tasks = append(tasks, task{datasets.SliceHourlyReference, day.Key(), func(ctx context.Context) <-chan cache.Result {
				return o.sets.HourlyReference.Dispatch(ctx, day)
			}})
		}
		none := datasets.None{}
		if o.sets.Live.ShouldFetch(none) {
			tasks = append(tasks, task{datasets.SliceLive, "", func(ctx context.Context) <-chan cache.Result {
				return o.sets.Live.Dispatch(ctx, none)
			}})
		}
		return tasks
	}
	if o.sets.DailySnapshots.ShouldFetch(date) {
		tasks = append(tasks, task{datasets.SliceDailySnapshots, date, func(ctx context.Context) <-chan cache.Result {
			return o.sets.DailySnapshots.Dispatch(ctx, date)
		}})
	}
	return tasks
}

// raiseLocked raises f for a new transition and registers the goroutine that
// follow starts for it.
func (o *Orchestrator) raiseLocked(f *flag) (uint64, time.Time) {
	stopTimer(f)
	f.gen++
	f.active = true
	o.wg.Add(1)
	return f.gen, o.cfg.Clock.Now()
}

// start dispatches tasks. Every entry is loading once start returns.
func (o *Orchestrator) start(tasks []task) []pending {
	out := make([]pending, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, pending{task: t, result: t.dispatch(o.ctx)})
	}
	return out
}

// follow waits for work in the background and lowers f once it settled and
// the minimum loading time passed, unless a newer transition took the flag
// over in the meantime.
func (o *Orchestrator) follow(f *flag, gen uint64, start time.Time, kind string, work []pending) Transition {
	done := make(chan struct{})
	go func() {
		defer o.wg.Done()
		defer close(done)
		for _, p := range work {
			if r := <-p.result; r.Err != nil {
				o.logger.Warn("selection fetch failed",
					"transition", kind,
					"slice", p.slice,
					"key", p.key,
					"error", r.Err,
				)
			}
		}
		o.settle(f, gen, start)
	}()
	return Transition{Changed: true, Done: done}
}

func (o *Orchestrator) settle(f *flag, gen uint64, start time.Time) {
	o.mu.Lock()
	if f.gen != gen || o.closed {
		o.mu.Unlock()
		return
	}
	remaining := o.cfg.MinLoading - o.cfg.Clock.Since(start)
	if remaining > 0 {
		f.timer = o.cfg.Clock.AfterFunc(remaining, func() { o.lower(f, gen) })
		o.mu.Unlock()
		return
	}
	f.active = false
	o.mu.Unlock()
	o.subs.Notify()
}

func (o *Orchestrator) lower(f *flag, gen uint64) {
	o.mu.Lock()
	if f.gen != gen || o.closed {
		o.mu.Unlock()
		return
	}
	f.active = false
	f.timer = nil
	o.mu.Unlock()
	o.subs.Notify()
}

// resyncStation dispatches the station scoped datasets again when the
// nearest station of the selected city changed, e.g. because the live feed
// arrived after the city was selected.
func (o *Orchestrator) resyncStation() {
	o.planMu.Lock()
	defer o.planMu.Unlock()

	o.mu.Lock()
	if o.closed || o.city == "" {
		o.mu.Unlock()
		return
	}
	station, ok := o.resolveStation(o.city)
	if !ok || station == o.station {
		o.mu.Unlock()
		return
	}
	o.station = station
	city := o.city
	gen, start := o.raiseLocked(&o.cityFlag)
	o.mu.Unlock()

	o.follow(&o.cityFlag, gen, start, "city", o.start(o.cityTasks(station)))

	o.logger.Info("station rebound", "city_id", city, "station_id", station)
	o.subs.Notify()
}

func (o *Orchestrator) resolveStation(cityID string) (string, bool) {
	list, live := o.sets.CityList(), o.sets.LiveData()
	if list == nil || live == nil {
		return "", false
	}
	for _, c := range list.Cities {
		if c.ID != cityID {
			continue
		}
		if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
			return "", false
		}
		st, _, ok := domain.NewLinearScan(live.Stations).Nearest(c.Lat, c.Lon)
		if !ok {
			return "", false
		}
		return st.ID, true
	}
	return "", false
}

// rollingOn returns the rolling record of date. Records are in chronological
// order.
func rollingOn(series *domain.RollingAverageSeries, date string) (domain.RollingAverageRecord, bool) {
	if date == "" || !series.Range.Contains(date) {
		return domain.RollingAverageRecord{}, false
	}
	i := sort.Search(len(series.Records), func(i int) bool { return series.Records[i].Date >= date })
	if i < len(series.Records) && series.Records[i].Date == date {
		return series.Records[i], true
	}
	return domain.RollingAverageRecord{}, false
}

func hasCity(list *domain.CityList, id string) bool {
	for _, c := range list.Cities {
		if c.ID == id {
			return true
		}
	}
	return false
}

func stopTimer(f *flag) {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func noop() Transition {
	done := make(chan struct{})
	close(done)
	return Transition{Done: done}
}
