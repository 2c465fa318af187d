package obs

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultLatencyBucketsMs covers the range from cached reads to issuance transactions.
var DefaultLatencyBucketsMs = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// HTTPMetrics groups Prometheus collectors for HTTP observability.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers and returns HTTP metrics collectors. Collectors
// already registered under the same names are reused.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = DefaultLatencyBucketsMs
	}
	buckets = append([]float64(nil), buckets...)
	sort.Float64s(buckets)

	m := &HTTPMetrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   buckets,
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
	mustRegisterCollector(reg, m.ReqTotal, func(c prometheus.Collector) {
		if existing, ok := c.(*prometheus.CounterVec); ok {
			m.ReqTotal = existing
		}
	})
	mustRegisterCollector(reg, m.ReqDur, func(c prometheus.Collector) {
		if existing, ok := c.(*prometheus.HistogramVec); ok {
			m.ReqDur = existing
		}
	})
	mustRegisterCollector(reg, m.InFlight, func(c prometheus.Collector) {
		if existing, ok := c.(prometheus.Gauge); ok {
			m.InFlight = existing
		}
	})
	return m
}

// observe records one finished request.
func (m *HTTPMetrics) observe(method, route string, status int, elapsed time.Duration) {
	m.ReqTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.ReqDur.WithLabelValues(method, route).Observe(DurationMillis(elapsed))
}

// ParseBucketsCSV converts a comma-separated list of bucket boundaries
// (milliseconds) into floats. Invalid and non-positive entries are dropped.
func ParseBucketsCSV(csv string) []float64 {
	var out []float64
	for _, part := range strings.Split(csv, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
