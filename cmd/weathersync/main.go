package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/weather-correlation-sync/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-correlation-sync/internal/adapter/kafka"
	"github.com/couchcryptid/weather-correlation-sync/internal/adapter/static"
	"github.com/couchcryptid/weather-correlation-sync/internal/config"
	"github.com/couchcryptid/weather-correlation-sync/internal/datasets"
	"github.com/couchcryptid/weather-correlation-sync/internal/domain"
	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
	"github.com/couchcryptid/weather-correlation-sync/internal/scheduler"
	"github.com/couchcryptid/weather-correlation-sync/internal/selection"
	"github.com/couchcryptid/weather-correlation-sync/internal/selector"
)

// liveCacheBust is the granularity of the live feed's cache-defeating token.
const liveCacheBust = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err := domain.SetReferenceZone(cfg.ReferenceTimezone); err != nil {
		logger.Error("invalid reference zone", "error", err)
		os.Exit(1)
	}
	metrics := observability.NewMetrics()

	client := static.NewClient(static.ClientConfig{
		BaseURL:         cfg.DataBaseURL,
		Timeout:         cfg.FetchTimeout,
		LiveGranularity: liveCacheBust,
		Rolling: static.RollingSpec{
			FromYear: cfg.RollingFromYear,
			ToYear:   cfg.RollingToYear,
			Window:   cfg.RollingWindow,
		},
	}, logger, metrics)

	sets := datasets.New(client, datasets.Config{
		LiveTTL:     cfg.LiveTTL,
		Concurrency: cfg.FetchConcurrency,
		Metrics:     metrics,
		Logger:      logger,
	})
	orch := selection.New(sets, selection.Config{
		Concurrency: cfg.FetchConcurrency,
		MinLoading:  cfg.MinLoadingDuration,
	}, logger, metrics)

	engine := selector.NewEngine(selector.New(metrics), sets, orch, cfg.SampleTarget, logger, metrics)
	unwatch := engine.Watch(sets, orch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the optional Kafka sink.
	var sink *kafkaadapter.Sink
	sinkDone := make(chan struct{})
	if cfg.KafkaEnabled {
		sink = kafkaadapter.NewSink(kafkaadapter.SinkConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaSinkTopic}, logger, metrics)
		unsubscribe := engine.Subscribe(sink.Publish)
		defer unsubscribe()
		go func() {
			defer close(sinkDone)
			if err := sink.Run(ctx); err != nil {
				logger.Error("kafka sink error", "error", err)
			}
		}()
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		close(sinkDone)
		logger.Info("kafka sink disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, engine, httpadapter.API{
		Dataset:   engine,
		Selection: orch,
		Slices:    sets,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Load the shared datasets, then select today and the default city.
	go func() {
		if err := orch.Bootstrap(ctx); err != nil {
			logger.Warn("bootstrap incomplete", "error", err)
		}
		if _, err := orch.SelectDate(domain.Today()); err != nil {
			logger.Error("select date failed", "error", err)
		}
		selectDefaultCity(orch, sets, cfg.DefaultCity, logger)
	}()

	sched := scheduler.New(orch, cfg.LiveRefreshInterval, cfg.FetchTimeout, logger, metrics)
	if err := sched.Start(); err != nil {
		logger.Error("scheduler start failed", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Stop()
	orch.Close()
	unwatch()
	<-sinkDone
	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Error("kafka sink close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func selectDefaultCity(orch *selection.Orchestrator, sets *datasets.Set, name string, logger *slog.Logger) {
	if name == "" {
		return
	}
	list := sets.CityList()
	if list == nil {
		logger.Warn("default city not selected, city list unavailable", "city", name)
		return
	}
	for _, c := range list.Cities {
		if strings.EqualFold(c.Name, name) {
			if _, err := orch.SelectCity(c.ID); err != nil {
				logger.Error("select default city failed", "city", name, "error", err)
			}
			return
		}
	}
	logger.Warn("default city not found", "city", name)
}
