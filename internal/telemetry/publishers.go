package telemetry

import (
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// NewLogPublisher writes each metric as one info record.
func NewLogPublisher(logger *slog.Logger) Publisher {
	l := logger.With(slog.String("component", "telemetry"))
	return PublisherFunc(func(key string, value float64) {
		l.Info("metric", slog.String("key", key), slog.Float64("value", value))
	})
}

// PrometheusPublisher mirrors flushed metrics into a gauge vector labelled by
// metric key, e.g. tradecore_telemetry{key="orders.sent.count"}.
type PrometheusPublisher struct {
	vec *prometheus.GaugeVec
}

// NewPrometheusPublisher registers the gauge vector with reg.
func NewPrometheusPublisher(reg prometheus.Registerer, namespace string) (*PrometheusPublisher, error) {
	if namespace == "" {
		namespace = "tradecore"
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "telemetry",
		Help:      "Aggregated trading telemetry, one series per metric key",
	}, []string{"key"})
	if err := reg.Register(vec); err != nil {
		return nil, err
	}
	return &PrometheusPublisher{vec: vec}, nil
}

// Publish sets the series for key.
func (p *PrometheusPublisher) Publish(key string, value float64) {
	p.vec.WithLabelValues(strings.ToLower(key)).Set(value)
}
