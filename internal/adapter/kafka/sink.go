package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/weather-correlation-sync/internal/observability"
	"github.com/couchcryptid/weather-correlation-sync/internal/selector"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	maxAttempts    = 5
)

// messageWriter is the subset of *kafkago.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// SinkConfig configures the Kafka sink.
type SinkConfig struct {
	Brokers []string
	Topic   string
}

// Sink publishes every new render-ready dataset to a Kafka topic. Only the
// latest dataset is kept while a write is in progress; intermediate ones are
// superseded.
type Sink struct {
	writer  messageWriter
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	pending *selector.DatumSet
	signal  chan struct{}
}

// NewSink creates a Kafka producer for the configured sink topic.
func NewSink(cfg SinkConfig, logger *slog.Logger, metrics *observability.Metrics) *Sink {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newSink(w, clockwork.NewRealClock(), logger, metrics)
}

func newSink(w messageWriter, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Sink {
	return &Sink{
		writer:  w,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		signal:  make(chan struct{}, 1),
	}
}

// Publish queues set for writing. It never blocks; nil sets are ignored.
// It has the signature of a selector.Engine subscriber.
func (s *Sink) Publish(set *selector.DatumSet) {
	if set == nil {
		return
	}
	s.mu.Lock()
	s.pending = set
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Run writes queued datasets until ctx is cancelled.
func (s *Sink) Run(ctx context.Context) error {
	s.logger.Info("kafka sink started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("kafka sink stopping", "reason", ctx.Err())
			return nil
		case <-s.signal:
		}

		s.mu.Lock()
		set := s.pending
		s.pending = nil
		s.mu.Unlock()
		if set == nil {
			continue
		}
		if err := s.write(ctx, set); err != nil && ctx.Err() == nil {
			s.logger.Error("publish dataset failed", "error", err, "date", set.Date, "points", len(set.Data))
		}
	}
}

// write retries with exponential backoff. A newer queued dataset abandons the
// retries of an older one.
func (s *Sink) write(ctx context.Context, set *selector.DatumSet) error {
	msg, err := serializeToMessage(set, s.clock.Now())
	if err != nil {
		return err
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err = s.writer.WriteMessages(ctx, msg)
		if err == nil {
			s.metrics.DatasetsPublished.Inc()
			s.logger.Debug("dataset published", "date", set.Date, "points", len(set.Data))
			return nil
		}
		if attempt == maxAttempts || ctx.Err() != nil || s.superseded() {
			return err
		}
		s.logger.Warn("publish dataset failed, retrying", "error", err, "attempt", attempt, "backoff", backoff)
		if !sleepWithContext(ctx, s.clock, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *Sink) superseded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

// serializeToMessage marshals a dataset into a Kafka message keyed by date.
func serializeToMessage(set *selector.DatumSet, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize dataset: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(set.Date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "date", Value: []byte(set.Date)},
			{Key: "today", Value: []byte(strconv.FormatBool(set.Today))},
			{Key: "points", Value: []byte(strconv.Itoa(len(set.Data)))},
			{Key: "published_at", Value: []byte(publishedAt.UTC().Format(time.RFC3339))},
		},
		Time: publishedAt,
	}, nil
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
