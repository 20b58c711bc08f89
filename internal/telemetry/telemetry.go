// Package telemetry aggregates named counters, gauges and timings in memory
// and periodically hands them to publishers (structured log, Prometheus).
package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Recorder is the write side used by trading components.
type Recorder interface {
	Increment(key string, n int64)
	Gauge(key string, value float64)
	Timing(key string, d time.Duration)
}

// Publisher receives one flattened metric per call. Keys are suffixed with
// ".count", ".gauge" or ".timing"; timings are summed milliseconds.
type Publisher interface {
	Publish(key string, value float64)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(key string, value float64)

// Publish calls f.
func (f PublisherFunc) Publish(key string, value float64) { f(key, value) }

type bucket struct {
	count      int64
	lastGauge  float64
	sumTimings float64
}

// Aggregator is a Recorder whose values are cumulative for the life of the
// process. It is safe for concurrent use.
type Aggregator struct {
	mu         sync.Mutex
	metrics    map[string]*bucket
	publishers []Publisher
	logger     *slog.Logger
}

// NewAggregator creates an Aggregator. With no publishers, Flush writes each
// metric to the logger at info level.
func NewAggregator(logger *slog.Logger, publishers ...Publisher) *Aggregator {
	a := &Aggregator{
		metrics: make(map[string]*bucket),
		logger:  logger.With(slog.String("component", "telemetry")),
	}
	if len(publishers) == 0 {
		publishers = []Publisher{NewLogPublisher(logger)}
	}
	a.publishers = publishers
	return a
}

func (a *Aggregator) bucket(key string) *bucket {
	b, ok := a.metrics[key]
	if !ok {
		b = &bucket{}
		a.metrics[key] = b
	}
	return b
}

// Increment adds n to the counter for key.
func (a *Aggregator) Increment(key string, n int64) {
	a.mu.Lock()
	a.bucket(key).count += n
	a.mu.Unlock()
}

// Gauge records the latest value for key.
func (a *Aggregator) Gauge(key string, value float64) {
	a.mu.Lock()
	a.bucket(key).lastGauge = value
	a.mu.Unlock()
}

// Timing adds d, in milliseconds, to the timing sum for key.
func (a *Aggregator) Timing(key string, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	a.mu.Lock()
	a.bucket(key).sumTimings += ms
	a.mu.Unlock()
}

// Flush publishes every metric, in key order, to every publisher. Publishers
// run under the aggregator lock and must not call back into it.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]string, 0, len(a.metrics))
	for k := range a.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b := a.metrics[k]
		for _, p := range a.publishers {
			p.Publish(k+".count", float64(b.count))
			p.Publish(k+".gauge", b.lastGauge)
			p.Publish(k+".timing", b.sumTimings)
		}
	}
}

// Run flushes every interval until ctx is cancelled, then flushes once more.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("telemetry flush loop started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			a.Flush()
			a.logger.Info("telemetry flush loop stopped")
			return nil
		case <-ticker.C:
			a.Flush()
		}
	}
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Increment(string, int64)      {}
func (discard) Gauge(string, float64)        {}
func (discard) Timing(string, time.Duration) {}
