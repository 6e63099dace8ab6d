// Package scheduler keeps the live feed fresh while today is selected and
// fetches the past-date datasets once the selected date is no longer today.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
	"github.com/couchcryptid/weather-correlation-sync/internal/selection"
)

const (
	defaultInterval = 5 * time.Minute
	defaultTimeout  = 30 * time.Second
)

// Refresher refetches the live feed when its cached copy has expired and
// dispatches the datasets a past date still lacks.
type Refresher interface {
	RefreshLive(ctx context.Context) (bool, error)
	CatchUpDate() selection.Transition
	SelectedDate() string
}

// Scheduler periodically refreshes the live feed.
type Scheduler struct {
	scheduler *gocron.Scheduler
	target    Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Scheduler. Zero durations select the defaults.
func New(target Refresher, interval, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		target:    target,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start schedules the refresh job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.refresh(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.Info("live refresh scheduled", "interval", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// refresh refetches the live feed while the selected date is today. A date
// that is no longer today gets its missing past-date datasets instead.
func (s *Scheduler) refresh(ctx context.Context) {
	date := s.target.SelectedDate()
	if date == "" {
		s.metrics.LiveRefreshes.WithLabelValues("skipped").Inc()
		return
	}
	if !domain.IsToday(date) {
		if s.target.CatchUpDate().Changed {
			s.metrics.LiveRefreshes.WithLabelValues("caught_up").Inc()
			s.logger.Info("past-date datasets requested", "date", date)
			return
		}
		s.metrics.LiveRefreshes.WithLabelValues("skipped").Inc()
		return
	}

	fetched, err := s.target.RefreshLive(ctx)
	switch {
	case err != nil:
		s.metrics.LiveRefreshes.WithLabelValues("error").Inc()
		s.logger.Warn("live refresh failed", "error", err)
	case fetched:
		s.metrics.LiveRefreshes.WithLabelValues("fetched").Inc()
		s.logger.Debug("live feed refreshed")
	default:
		s.metrics.LiveRefreshes.WithLabelValues("fresh").Inc()
	}
}
