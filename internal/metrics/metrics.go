// Package metrics exposes Prometheus instrumentation for the stream gateway
// and its upstream protection.
//
// All recording methods are safe on a nil *Collector, so components can be
// built without metrics in tests and CLI commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls metric naming.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
}

// DefaultConfig returns metrics enabled under the "lexiz" namespace.
func DefaultConfig() Config {
	return Config{Enabled: true, Namespace: "lexiz", Path: "/metrics"}
}

// Collector holds the registered metric vectors.
type Collector struct {
	registry *prometheus.Registry

	frames          *prometheus.CounterVec
	items           *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
	limiterWait     prometheus.Histogram
	circuitState    prometheus.Gauge
	transitions     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// NewCollector registers all metrics with registry. A nil registry gets a
// fresh one. It returns nil when metrics are disabled.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if !cfg.Enabled {
		return nil
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "lexiz"
	}

	c := &Collector{
		registry: registry,
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "gateway",
			Name:      "frames_total",
			Help:      "Frames written to clients by event type.",
		}, []string{"event"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "gateway",
			Name:      "items_total",
			Help:      "Items completed by kind and outcome.",
		}, []string{"kind", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Duration of admitted upstream calls, including the full stream.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind", "outcome"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Upstream failures by error type.",
		}, []string{"error_type"}),
		limiterWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "limiter",
			Name:      "wait_seconds",
			Help:      "Time callers spent waiting for rate window capacity.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
		}),
		circuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "circuit",
			Name:      "state",
			Help:      "Circuit state (0=closed, 1=open, 2=half-open).",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "circuit",
			Name:      "transitions_total",
			Help:      "Circuit state transitions.",
		}, []string{"from", "to"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	registry.MustRegister(
		c.frames,
		c.items,
		c.upstreamLatency,
		c.upstreamErrors,
		c.limiterWait,
		c.circuitState,
		c.transitions,
		c.httpRequests,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func (c *Collector) FrameWritten(event string) {
	if c == nil {
		return
	}
	c.frames.WithLabelValues(event).Inc()
}

// ItemDone counts a finished item. outcome is "ok", "failed" or "rejected".
func (c *Collector) ItemDone(kind, outcome string) {
	if c == nil {
		return
	}
	c.items.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) UpstreamCall(kind, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.upstreamLatency.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

func (c *Collector) UpstreamError(errorType string) {
	if c == nil {
		return
	}
	c.upstreamErrors.WithLabelValues(errorType).Inc()
}

func (c *Collector) LimiterWaited(d time.Duration) {
	if c == nil {
		return
	}
	c.limiterWait.Observe(d.Seconds())
}

// CircuitTransition records a state change and updates the state gauge.
// state is the numeric value of the new state.
func (c *Collector) CircuitTransition(from, to string, state int) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(from, to).Inc()
	c.circuitState.Set(float64(state))
}

func (c *Collector) HTTPRequest(route string, code int) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, httpCode(code)).Inc()
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
