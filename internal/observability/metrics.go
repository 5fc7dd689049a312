package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeLoaded = "loaded"
	OutcomeFailed = "failed"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazymod",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"server", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lazymod",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "path", "status"},
	)
	unitLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazymod",
			Subsystem: "unit",
			Name:      "loads_total",
			Help:      "Host loads triggered for units, by outcome.",
		},
		[]string{"unit", "outcome"},
	)
	unitLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lazymod",
			Subsystem: "unit",
			Name:      "load_duration_seconds",
			Help:      "Host load duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"unit", "outcome"},
	)
	placeholdersInstalled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazymod",
			Subsystem: "registry",
			Name:      "placeholders_installed_total",
			Help:      "Placeholders installed into the unit registry.",
		},
		[]string{"unit"},
	)
	callableCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazymod",
			Subsystem: "callable",
			Name:      "calls_total",
			Help:      "Lazy callable invocations.",
		},
		[]string{"unit", "callable", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			unitLoads,
			unitLoadDuration,
			placeholdersInstalled,
			callableCalls,
		)
	})
}

func RecordHTTPRequest(server, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(server, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(server, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordUnitLoad(unit string, loaded bool, duration time.Duration) {
	RegisterMetrics()
	outcome := OutcomeLoaded
	if !loaded {
		outcome = OutcomeFailed
	}
	unitLoads.WithLabelValues(unit, outcome).Inc()
	unitLoadDuration.WithLabelValues(unit, outcome).Observe(duration.Seconds())
}

func RecordPlaceholderInstalled(unit string) {
	RegisterMetrics()
	placeholdersInstalled.WithLabelValues(unit).Inc()
}

func RecordCallableCall(unit, callable string, success bool) {
	RegisterMetrics()
	callableCalls.WithLabelValues(unit, callable, strconv.FormatBool(success)).Inc()
}
