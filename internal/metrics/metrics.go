// Package metrics holds the prometheus collectors that make btt's fallback
// and conflict paths observable.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry is btt's private registry; nothing is registered globally.
var Registry = prometheus.NewRegistry()

var (
	// TimezoneFallbacks counts unknown timezones that were resolved as UTC.
	TimezoneFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btt",
		Subsystem: "timecalc",
		Name:      "timezone_fallback_total",
		Help:      "Unknown timezones that fell back to UTC during day-boundary resolution.",
	})
	// CryptoFallbacks counts encrypt/decrypt calls that returned their input unchanged.
	CryptoFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btt",
		Subsystem: "securestore",
		Name:      "crypto_fallback_total",
		Help:      "Encrypt or decrypt operations that fell back to returning their input.",
	}, []string{"op"})
	// TrackingConflicts counts rejected lifecycle transitions.
	TrackingConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btt",
		Subsystem: "tracking",
		Name:      "conflicts_total",
		Help:      "Rejected tracking transitions by kind (already_running, already_stopped).",
	}, []string{"kind"})
)

func init() {
	Registry.MustRegister(TimezoneFallbacks, CryptoFallbacks, TrackingConflicts)
}

// RecordTimezoneFallback increments the timezone fallback counter.
func RecordTimezoneFallback() {
	TimezoneFallbacks.Inc()
}

// RecordCryptoFallback increments the crypto fallback counter for op.
func RecordCryptoFallback(op string) {
	CryptoFallbacks.WithLabelValues(op).Inc()
}

// RecordConflict increments the tracking conflict counter for kind.
func RecordConflict(kind string) {
	TrackingConflicts.WithLabelValues(kind).Inc()
}

// Sample is one flattened series of the registry.
type Sample struct {
	Name  string
	Value float64
}

// Snapshot gathers the registry into name{labels} / value pairs, sorted by name.
func Snapshot() ([]Sample, error) {
	families, err := Registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}
	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			out = append(out, Sample{
				Name:  seriesName(mf.GetName(), m.GetLabel()),
				Value: metricValue(mf.GetType(), m),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func seriesName(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

func metricValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}
