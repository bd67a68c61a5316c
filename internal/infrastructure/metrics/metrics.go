// Package metrics exposes the manager's Prometheus collectors.
//
// Counters follow what the event loop does: browser requests by kind and
// result, device events by kind and timer firings by job kind and outcome.
// Gauges report cache sizes, connected browsers and armed timer jobs.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/manage-core/internal/manageable"
)

const namespace = "manage"

// Metrics implements the manager's metrics hook on a Prometheus registry.
type Metrics struct {
	reg prometheus.Registerer

	browserRequests *prometheus.CounterVec
	deviceEvents    *prometheus.CounterVec
	timerFirings    *prometheus.CounterVec
	cached          *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		browserRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "browser_requests_total",
				Help:      "Browser requests by kind and result",
			},
			[]string{"kind", "result"},
		),
		deviceEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_events_total",
				Help:      "Inbound device events by kind",
			},
			[]string{"kind"},
		),
		timerFirings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timer_firings_total",
				Help:      "Schedule job firings by job kind and outcome",
			},
			[]string{"kind", "result"},
		),
		cached: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cached_manageables",
				Help:      "Devices and groups held in the cache",
			},
			[]string{"type"},
		),
	}
	reg.MustRegister(m.browserRequests, m.deviceEvents, m.timerFirings, m.cached)
	return m
}

// Watch registers a gauge sampled from fn on every scrape.
func (m *Metrics) Watch(name, help string, fn func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		func() float64 { return float64(fn()) },
	))
}

// BrowserRequest counts a handled browser request by kind and result code.
func (m *Metrics) BrowserRequest(kind, result string) {
	m.browserRequests.WithLabelValues(kind, result).Inc()
}

// DeviceEvent counts an event received from a device.
func (m *Metrics) DeviceEvent(kind string) {
	m.deviceEvents.WithLabelValues(kind).Inc()
}

// TimerFiring counts a start or stop job firing and how it was handled.
func (m *Metrics) TimerFiring(kind, result string) {
	m.timerFirings.WithLabelValues(kind, result).Inc()
}

// CacheSize sets the number of cached manageables of type t.
func (m *Metrics) CacheSize(t manageable.Type, n int) {
	m.cached.WithLabelValues(strings.ToLower(string(t))).Set(float64(n))
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
