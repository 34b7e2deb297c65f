package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the stowage collectors on a private registry. A disabled
// Metrics accepts every call and records nothing.
type Metrics struct {
	cfg      MetricsConfig
	registry *prometheus.Registry

	placements      *prometheus.CounterVec
	placementScore  prometheus.Histogram
	retrievals      *prometheus.CounterVec
	wasteRemoved    *prometheus.CounterVec
	malformedExpiry prometheus.Counter
	imports         *prometheus.CounterVec
	evictions       *prometheus.CounterVec

	operations  *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	requests    *prometheus.CounterVec
	reqDuration *prometheus.HistogramVec
	errKinds    *prometheus.CounterVec
	errCodes    *prometheus.CounterVec

	containers    prometheus.Gauge
	items         prometheus.Gauge
	assigned      prometheus.Gauge
	containerMass *prometheus.GaugeVec
}

// NewMetrics registers every collector under cfg.Namespace.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	m := &Metrics{cfg: cfg}
	if !cfg.Enabled {
		return m, nil
	}

	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	ns := cfg.Namespace
	reg := prometheus.NewRegistry()
	f := newFactory(reg, ns)

	m.registry = reg
	m.placements = f.counterVec("placements_total", "Placement attempts by outcome.", "outcome")
	m.placementScore = f.histogram("placement_score", "Score of the container chosen for each placement.",
		[]float64{0, 10, 25, 50, 75, 100, 125, 150, 200, 300})
	m.retrievals = f.counterVec("retrievals_total", "Retrieval attempts by outcome.", "outcome")
	m.wasteRemoved = f.counterVec("waste_removed_total", "Expired items taken out of containers.", "operation")
	m.malformedExpiry = f.counter("malformed_expiry_total", "Expiry dates that could not be parsed during waste scans.")
	m.imports = f.counterVec("imports_total", "Catalogue imports.", "kind", "status")
	m.evictions = f.counterVec("evictions_total", "Items unassigned by catalogue imports.", "reason")

	m.operations = f.counterVec("operations_total", "Engine operations by status.", "operation", "status")
	m.opDuration = f.histogramVec("operation_duration_seconds", "Engine operation latency.", buckets, "operation")
	m.requests = f.counterVec("http_requests_total", "HTTP requests served.", "method", "route", "status")
	m.reqDuration = f.histogramVec("http_request_duration_seconds", "HTTP request latency.", buckets, "method", "route")
	m.errKinds = f.counterVec("errors_by_kind_total", "Failed operations by error kind.", "kind")
	m.errCodes = f.counterVec("errors_by_code_total", "Failed operations by error code.", "code")

	m.containers = f.gauge("catalogue_containers", "Containers in the catalogue.")
	m.items = f.gauge("catalogue_items", "Items in the catalogue.")
	m.assigned = f.gauge("catalogue_assigned_items", "Items currently held by a container.")
	m.containerMass = f.gaugeVec("container_mass_kg", "Mass held by each container.", "container_id")

	if f.err != nil {
		return nil, f.err
	}
	return m, nil
}

// factory creates collectors and registers them, keeping the first error.
type factory struct {
	reg *prometheus.Registry
	ns  string
	err error
}

func newFactory(reg *prometheus.Registry, ns string) *factory {
	return &factory{reg: reg, ns: ns}
}

func (f *factory) register(c prometheus.Collector) {
	if err := f.reg.Register(c); err != nil && f.err == nil {
		f.err = err
	}
}

func (f *factory) counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: f.ns, Name: name, Help: help})
	f.register(c)
	return c
}

func (f *factory) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: f.ns, Name: name, Help: help}, labels)
	f.register(c)
	return c
}

func (f *factory) gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: f.ns, Name: name, Help: help})
	f.register(g)
	return g
}

func (f *factory) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: f.ns, Name: name, Help: help}, labels)
	f.register(g)
	return g
}

func (f *factory) histogram(name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: f.ns, Name: name, Help: help, Buckets: buckets})
	f.register(h)
	return h
}

func (f *factory) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: f.ns, Name: name, Help: help, Buckets: buckets}, labels)
	f.register(h)
	return h
}

func (m *Metrics) on() bool { return m != nil && m.registry != nil }

// Registry is the private registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if !m.on() {
		return nil
	}
	return m.registry
}

// RecordPlacement counts a placement attempt; score is observed only for
// outcome "placed".
func (m *Metrics) RecordPlacement(outcome string, score float64) {
	if !m.on() {
		return
	}
	m.placements.WithLabelValues(outcome).Inc()
	if outcome == "placed" {
		m.placementScore.Observe(score)
	}
}

func (m *Metrics) RecordRetrieval(outcome string) {
	if m.on() {
		m.retrievals.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RecordWasteRemoved(operation string, n int) {
	if m.on() {
		m.wasteRemoved.WithLabelValues(operation).Add(float64(n))
	}
}

func (m *Metrics) RecordMalformedExpiry() {
	if m.on() {
		m.malformedExpiry.Inc()
	}
}

func (m *Metrics) RecordImport(kind, status string) {
	if m.on() {
		m.imports.WithLabelValues(kind, status).Inc()
	}
}

func (m *Metrics) RecordEviction(reason string) {
	if m.on() {
		m.evictions.WithLabelValues(reason).Inc()
	}
}

// RecordOperation counts an engine operation and observes its latency.
func (m *Metrics) RecordOperation(op, status string, d time.Duration) {
	if !m.on() {
		return
	}
	m.operations.WithLabelValues(op, status).Inc()
	m.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordHTTPRequest counts a served request and observes its latency.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if !m.on() {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.reqDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordError counts a failure by kind and, when set, by code.
func (m *Metrics) RecordError(kind, code string) {
	if !m.on() {
		return
	}
	m.errKinds.WithLabelValues(kind).Inc()
	if code != "" {
		m.errCodes.WithLabelValues(code).Inc()
	}
}

// SetCatalogueSize updates the catalogue gauges.
func (m *Metrics) SetCatalogueSize(containers, items, assigned int) {
	if !m.on() {
		return
	}
	m.containers.Set(float64(containers))
	m.items.Set(float64(items))
	m.assigned.Set(float64(assigned))
}

// ResetContainerMass drops every per-container mass series, so containers
// removed from the catalogue stop being reported.
func (m *Metrics) ResetContainerMass() {
	if m.on() {
		m.containerMass.Reset()
	}
}

func (m *Metrics) SetContainerMass(containerID string, mass float64) {
	if m.on() {
		m.containerMass.WithLabelValues(containerID).Set(mass)
	}
}

// Handler serves the registry in the Prometheus exposition format, or 404
// when metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if !m.on() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
