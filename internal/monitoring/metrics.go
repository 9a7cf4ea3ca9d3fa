// Package monitoring exposes Prometheus metrics for the company directory.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the process-wide collectors. All methods are safe on a nil
// receiver so callers can run without metrics.
//
// Metrics:
//   - mapvia_queries_total{source} - queries answered, by record source
//   - mapvia_fallbacks_total{reason} - live lookups that fell back to the dataset
//   - mapvia_overpass_failures_total{endpoint,kind} - failed mirror attempts
//   - mapvia_overpass_request_seconds{endpoint} - mirror round-trip time
//   - mapvia_cache_lookups_total{cache,result} - cache hits and misses
//   - mapvia_dataset_records / mapvia_dataset_dropped_rows - last dataset load
type Metrics struct {
	Queries          *prometheus.CounterVec
	Fallbacks        *prometheus.CounterVec
	OverpassFailures *prometheus.CounterVec
	OverpassDuration *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	DatasetRecords   prometheus.Gauge
	DatasetDropped   prometheus.Gauge
}

// NewMetrics registers the collectors with the default registry once and
// returns the shared instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Queries: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mapvia_queries_total",
				Help: "Company queries answered, by record source",
			}, []string{"source"}),
			Fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mapvia_fallbacks_total",
				Help: "Live lookups that fell back to the flat-file dataset",
			}, []string{"reason"}),
			OverpassFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mapvia_overpass_failures_total",
				Help: "Failed Overpass mirror attempts",
			}, []string{"endpoint", "kind"}),
			OverpassDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "mapvia_overpass_request_seconds",
				Help:    "Overpass mirror round-trip time",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 9},
			}, []string{"endpoint"}),
			CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mapvia_cache_lookups_total",
				Help: "Cache lookups by cache and result",
			}, []string{"cache", "result"}),
			DatasetRecords: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "mapvia_dataset_records",
				Help: "Records kept from the last dataset load",
			}),
			DatasetDropped: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "mapvia_dataset_dropped_rows",
				Help: "Rows dropped by the normalizer in the last dataset load",
			}),
		}
	})
	return globalMetrics
}

// ObserveQuery counts a query answered from source.
func (m *Metrics) ObserveQuery(source string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(source).Inc()
}

// ObserveFallback counts a fallback to the dataset.
func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(reason).Inc()
}

// ObserveOverpass records one mirror attempt. kind is empty on success.
func (m *Metrics) ObserveOverpass(endpoint, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OverpassDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	if kind != "" {
		m.OverpassFailures.WithLabelValues(endpoint, kind).Inc()
	}
}

// ObserveCache counts a cache lookup.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// ObserveDataset records the outcome of a dataset load.
func (m *Metrics) ObserveDataset(kept, dropped int) {
	if m == nil {
		return
	}
	m.DatasetRecords.Set(float64(kept))
	m.DatasetDropped.Set(float64(dropped))
}
