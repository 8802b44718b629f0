// Package metrics holds the bot's Prometheus collectors.
//
// Every method is safe on a nil *Metrics, so components can take one
// unconditionally and tests can pass nil.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gitnotify"

type Metrics struct {
	reg *prometheus.Registry

	toggles        *prometheus.CounterVec
	toggleDuration prometheus.Histogram
	callbacks      *prometheus.CounterVec
	commands       *prometheus.CounterVec
	webhooks       *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	serviceInfo    *prometheus.GaugeVec
}

func New(version string) *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.toggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "toggles_total",
		Help:      "Setting toggles by scope and result.",
	}, []string{"scope", "result"})
	m.toggleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "toggle_duration_seconds",
		Help:      "Time spent in load, set and persist of one toggle.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})
	m.callbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "callbacks_total",
		Help:      "Inline button presses by outcome.",
	}, []string{"outcome"})
	m.commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Bot commands handled.",
	}, []string{"command"})
	m.webhooks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_total",
		Help:      "Webhook deliveries by platform and decision.",
	}, []string{"platform", "decision"})
	m.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification deliveries by result.",
	}, []string{"result"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "path", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
	m.serviceInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "service_info",
		Help:      "Build information.",
	}, []string{"version"})

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.toggles, m.toggleDuration, m.callbacks, m.commands, m.webhooks,
		m.notifications, m.httpRequests, m.httpDuration, m.serviceInfo,
	)
	m.serviceInfo.WithLabelValues(version).Set(1)
	return m
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Goroutines exports a live goroutine count for one component. fn is read
// on every scrape.
func (m *Metrics) Goroutines(component string, fn func() int64) {
	if m == nil || fn == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "goroutines_active",
		Help:        "Supervised goroutines currently running.",
		ConstLabels: prometheus.Labels{"component": component},
	}, func() float64 { return float64(fn()) }))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Toggle(scope string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.toggles.WithLabelValues(scope, result(ok)).Inc()
	m.toggleDuration.Observe(d.Seconds())
}

func (m *Metrics) Callback(outcome string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}

func (m *Metrics) Webhook(platform, decision string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(platform, decision).Inc()
}

// Notification counts one delivery result: sent, failed, deduped, dropped.
func (m *Metrics) Notification(res string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(res).Inc()
}

// Middleware records request count and latency. path should be the route
// pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
