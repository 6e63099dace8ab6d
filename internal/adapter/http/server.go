package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/weather-correlation-sync/internal/cache"
	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/selection"
	"github.com/couchcryptid/weather-correlation-sync/internal/selector"
)

const maxSelectionBody = 1 << 10

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Dataset exposes the derived dataset and the correlated cities.
type Dataset interface {
	Current() *selector.DatumSet
	Cities() []domain.City
}

// Selector changes and reports the selection.
type Selector interface {
	Validate(cityID, date string) error
	SelectCity(cityID string) (selection.Transition, error)
	SelectDate(date string) (selection.Transition, error)
	Selection() selection.Selection
	Station() (selection.StationView, bool)
}

// Slices exposes the cache slices for diagnostics.
type Slices interface {
	All() []cache.Tracked
	BoundaryDocument() (json.RawMessage, bool)
}

// API groups the collaborators behind the /v1 routes. Routes whose
// collaborator is nil are not registered.
type API struct {
	Dataset   Dataset
	Selection Selector
	Slices    Slices
}

// Server exposes health, readiness, metrics, and the dataset API.
type Server struct {
	httpServer *http.Server
	api        API
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1 routes backed by api.
func NewServer(addr string, ready ReadinessChecker, api API, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		api:    api,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	if api.Dataset != nil {
		mux.HandleFunc("GET /v1/points", s.handlePoints)
		mux.HandleFunc("GET /v1/cities", s.handleCities)
	}
	if api.Selection != nil {
		mux.HandleFunc("GET /v1/selection", s.handleGetSelection)
		mux.HandleFunc("POST /v1/selection", s.handlePostSelection)
		mux.HandleFunc("GET /v1/station", s.handleStation)
	}
	if api.Slices != nil {
		mux.HandleFunc("GET /v1/status", s.handleStatus)
		mux.HandleFunc("GET /v1/boundaries", s.handleBoundaries)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handlePoints answers 503 while the pipeline is not ready, which is distinct
// from a ready dataset with zero points.
func (s *Server) handlePoints(w http.ResponseWriter, _ *http.Request) {
	set := s.api.Dataset.Current()
	if set == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleCities(w http.ResponseWriter, _ *http.Request) {
	cities := s.api.Dataset.Cities()
	if cities == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, cities)
}

func (s *Server) handleGetSelection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.api.Selection.Selection())
}

type selectionRequest struct {
	CityID string `json:"city_id"`
	Date   string `json:"date"`
}

// handlePostSelection applies the city and date found in the body once both
// are valid. With ?wait=true it responds only after the spawned fetches
// settled.
func (s *Server) handlePostSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSelectionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.api.Selection.Validate(req.CityID, req.Date); err != nil {
		writeSelectionError(w, err)
		return
	}

	var pending []selection.Transition
	if req.CityID != "" {
		tr, err := s.api.Selection.SelectCity(req.CityID)
		if err != nil {
			writeSelectionError(w, err)
			return
		}
		pending = append(pending, tr)
	}
	if req.Date != "" {
		tr, err := s.api.Selection.SelectDate(req.Date)
		if err != nil {
			writeSelectionError(w, err)
			return
		}
		pending = append(pending, tr)
	}

	if r.URL.Query().Get("wait") == "true" {
		for _, tr := range pending {
			select {
			case <-tr.Done:
			case <-r.Context().Done():
				return
			}
		}
		writeJSON(w, http.StatusOK, s.api.Selection.Selection())
		return
	}
	writeJSON(w, http.StatusAccepted, s.api.Selection.Selection())
}

func (s *Server) handleStation(w http.ResponseWriter, _ *http.Request) {
	view, ok := s.api.Selection.Station()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type sliceStatus struct {
	Slice  string           `json:"slice"`
	States []cache.KeyState `json:"states"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	all := s.api.Slices.All()
	out := make([]sliceStatus, 0, len(all))
	for _, t := range all {
		out = append(out, sliceStatus{Slice: t.Name(), States: t.States()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBoundaries(w http.ResponseWriter, _ *http.Request) {
	doc, ok := s.api.Slices.BoundaryDocument()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc) //nolint:errcheck // client may have gone away
}

func writeSelectionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, selection.ErrUnknownCity):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, selection.ErrInvalidSelection):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
