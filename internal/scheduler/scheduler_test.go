package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
	"github.com/couchcryptid/weather-correlation-sync/internal/selection"
)

type fakeRefresher struct {
	mu       sync.Mutex
	date     string
	fetched  bool
	err      error
	calls    int
	catchUp  bool
	catchUps int
}

func (f *fakeRefresher) CatchUpDate() selection.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catchUps++
	return selection.Transition{Changed: f.catchUp}
}

func (f *fakeRefresher) catchUpCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catchUps
}

func (f *fakeRefresher) RefreshLive(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.fetched, f.err
}

func (f *fakeRefresher) SelectedDate() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.date
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func freezeToday(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name         string
		target       *fakeRefresher
		wantLabel    string
		wantCalls    int
		wantCatchUps int
	}{
		{name: "no date selected", target: &fakeRefresher{}, wantLabel: "skipped"},
		{name: "past date complete", target: &fakeRefresher{date: "2025-05-31"}, wantLabel: "skipped", wantCatchUps: 1},
		{name: "past date lacking datasets", target: &fakeRefresher{date: "2025-05-31", catchUp: true}, wantLabel: "caught_up", wantCatchUps: 1},
		{name: "today expired", target: &fakeRefresher{date: "2025-06-01", fetched: true}, wantLabel: "fetched", wantCalls: 1},
		{name: "today fresh", target: &fakeRefresher{date: "2025-06-01"}, wantLabel: "fresh", wantCalls: 1},
		{name: "today failing", target: &fakeRefresher{date: "2025-06-01", err: errors.New("status 503")}, wantLabel: "error", wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freezeToday(t)
			metrics := observability.NewMetricsForTesting()
			s := New(tt.target, time.Minute, time.Second, slog.New(slog.DiscardHandler), metrics)

			s.refresh(context.Background())

			assert.Equal(t, tt.wantCalls, tt.target.callCount())
			assert.Equal(t, tt.wantCatchUps, tt.target.catchUpCount())
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LiveRefreshes.WithLabelValues(tt.wantLabel)))
		})
	}
}

func TestStartRunsJob(t *testing.T) {
	freezeToday(t)
	target := &fakeRefresher{date: "2025-06-01", fetched: true}
	s := New(target, time.Hour, time.Second, slog.New(slog.DiscardHandler), observability.NewMetricsForTesting())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return target.callCount() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRefresh_AfterMidnightRequestsPastDateDatasets(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	target := &fakeRefresher{date: "2025-06-01", catchUp: true}
	metrics := observability.NewMetricsForTesting()
	s := New(target, time.Minute, time.Second, slog.New(slog.DiscardHandler), metrics)

	s.refresh(context.Background())
	assert.Equal(t, 1, target.callCount(), "23:00 in the reference zone is still today")
	assert.Equal(t, 0, target.catchUpCount())

	clock.Advance(2 * time.Hour)
	s.refresh(context.Background())

	assert.Equal(t, 1, target.callCount())
	assert.Equal(t, 1, target.catchUpCount())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.LiveRefreshes.WithLabelValues("caught_up")), 0)
}
