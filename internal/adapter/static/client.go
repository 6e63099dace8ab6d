// Package static reads the weather datasets published as static files.
package static

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
)

// maxBodyBytes bounds a single file read; the largest archives are a few MB.
const maxBodyBytes = 64 << 20

// StatusError is a non-2xx response to a file request.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s: status %d", domain.ErrTransport, e.Path, e.Code)
}

// Unwrap makes a StatusError match domain.ErrTransport.
func (e *StatusError) Unwrap() error {
	return domain.ErrTransport
}

// RollingSpec selects which rolling-average files to read.
type RollingSpec struct {
	FromYear int
	ToYear   int
	Window   int
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// LiveGranularity is the width of the cache-busting token on the live
	// feed. Zero disables busting.
	LiveGranularity time.Duration
	Rolling         RollingSpec
}

// Client fetches and parses the static dataset files below a base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	clock      clockwork.Clock
	liveBust   time.Duration
	rolling    RollingSpec
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a static file client.
func NewClient(cfg ClientConfig, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "static-files",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: breakerSuccess,
		}),
		clock:    clockwork.NewRealClock(),
		liveBust: cfg.LiveGranularity,
		rolling:  cfg.Rolling,
		metrics:  metrics,
		logger:   logger,
	}
}

// breakerSuccess treats client errors as healthy responses: a missing file
// for one station says nothing about the availability of the host.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// CacheBuster returns the cache-defeating token for now at granularity: the
// unix time truncated to the granularity, so every request inside one window
// shares a URL.
func CacheBuster(now time.Time, granularity time.Duration) string {
	return strconv.FormatInt(now.Truncate(granularity).Unix(), 10)
}

// Cities fetches the city list.
func (c *Client) Cities(ctx context.Context) (*domain.CityList, error) {
	body, err := c.get(ctx, "cities", "cities.csv", 0)
	if err != nil {
		return nil, err
	}
	return ParseCities(body)
}

// Live fetches the live telemetry feed, busted at the live granularity.
func (c *Client) Live(ctx context.Context) (*domain.LiveData, error) {
	body, err := c.get(ctx, "live", "live/10min_station_data.csv", c.liveBust)
	if err != nil {
		return nil, err
	}
	return ParseLive(body)
}

// StationArchive fetches the multi-decade daily archive of a station.
func (c *Client) StationArchive(ctx context.Context, stationID string) (*domain.StationArchive, error) {
	body, err := c.get(ctx, "station_archive", "stations/"+url.PathEscape(stationID)+".csv", 0)
	if err != nil {
		return nil, err
	}
	return ParseStationArchive(body, stationID)
}

// DailySnapshot fetches the all-stations file of a past date.
func (c *Client) DailySnapshot(ctx context.Context, date string) (*domain.DailySnapshot, error) {
	body, err := c.get(ctx, "daily_snapshot", "daily/"+url.PathEscape(date)+".csv", 0)
	if err != nil {
		return nil, err
	}
	return ParseDailySnapshot(body, date)
}

// RollingAverages fetches the rolling-average series of a station.
func (c *Client) RollingAverages(ctx context.Context, stationID string) (*domain.RollingAverageSeries, error) {
	name := fmt.Sprintf("rolling/%s_%d-%d_avg_%dd.csv",
		url.PathEscape(stationID), c.rolling.FromYear, c.rolling.ToYear, c.rolling.Window)
	body, err := c.get(ctx, "rolling_averages", name, 0)
	if err != nil {
		return nil, err
	}
	return ParseRollingAverages(body, stationID, c.rolling.Window)
}

// YearlyMeans fetches the yearly-mean-by-day file of a calendar day.
func (c *Client) YearlyMeans(ctx context.Context, day domain.CalendarDay) (*domain.YearlyMeans, error) {
	body, err := c.get(ctx, "yearly_means", "yearly/yearly_mean_by_day_"+day.Key()+".csv", 0)
	if err != nil {
		return nil, err
	}
	return ParseYearlyMeans(body, day)
}

// HourlyReference fetches the hourly reference file of a calendar day.
func (c *Client) HourlyReference(ctx context.Context, day domain.CalendarDay) (*domain.HourlyReference, error) {
	body, err := c.get(ctx, "hourly_reference", "hourly/hourly_"+day.Key()+".csv", 0)
	if err != nil {
		return nil, err
	}
	return ParseHourlyReference(body, day)
}

// ThresholdDays fetches the threshold-day summary of a station.
func (c *Client) ThresholdDays(ctx context.Context, stationID string) (*domain.ThresholdDays, error) {
	body, err := c.get(ctx, "threshold_days", "threshold_days/"+url.PathEscape(stationID)+".json", 0)
	if err != nil {
		return nil, err
	}
	return ParseThresholdDays(body, stationID)
}

// Boundaries fetches the boundary geometry document as an opaque blob.
func (c *Client) Boundaries(ctx context.Context) (json.RawMessage, error) {
	body, err := c.get(ctx, "boundaries", "boundaries.geojson", 0)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, domain.ErrEmptyResponse
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: boundaries are not valid JSON", domain.ErrSchema)
	}
	return json.RawMessage(body), nil
}

// get reads one file through the circuit breaker. A positive bust appends the
// cache-defeating token.
func (c *Client) get(ctx context.Context, dataset, path string, bust time.Duration) ([]byte, error) {
	fullURL := c.baseURL + "/" + path
	if bust > 0 {
		fullURL += "?" + url.Values{"t": {CacheBuster(c.clock.Now(), bust)}}.Encode()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, fullURL, path)
	})
	if err != nil {
		outcome := "transport"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "breaker"
			err = fmt.Errorf("%w: %s: %v", domain.ErrTransport, path, err)
		}
		c.metrics.SourceRequests.WithLabelValues(dataset, outcome).Inc()
		return nil, err
	}

	c.metrics.SourceRequests.WithLabelValues(dataset, "success").Inc()
	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unexpected result type", domain.ErrTransport, path)
	}
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTransport, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Path: path, Code: resp.StatusCode}
	}

	body, err := readBody(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", domain.ErrTransport, path, err)
	}
	c.logger.Debug("static file fetched", "path", path, "bytes", len(body))
	return body, nil
}
