// Package metrics exposes presence and API metrics to Prometheus.
//
// A Manager owns its own registry. It plugs into the presence pipeline in
// three places, all of which only touch counters and return immediately:
//
//   - presence.Observer for dropped messages, skipped entries and learned
//     devices
//   - presence.Subscriber for packets (by kind, with an RSSI histogram)
//     and sweeps
//   - presence.StateListener for home/away transitions
//
// Tracker totals and listener queue drops are read at scrape time through
// TrackTable and TrackListener. Handler serves the exposition format.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/presence"
)

// Skip reasons used as the reason label of entries_skipped_total.
const (
	ReasonMalformedAdvertisement = "malformed_advertisement"
	ReasonEntryDecode            = "entry_decode"
)

// rssiBuckets cover typical BLE signal strength in dBm.
var rssiBuckets = []float64{-100, -90, -80, -70, -60, -50, -40, -30}

// Counter reports tracker totals. *presence.Table implements it.
type Counter interface {
	Counts() (total, home int)
}

// Manager holds every blegate collector.
type Manager struct {
	namespace   string
	subsystem   string
	registry    *prometheus.Registry
	httpBuckets []float64
	runtime     bool

	messagesDropped prometheus.Counter
	entriesSkipped  *prometheus.CounterVec
	devicesLearned  prometheus.Counter
	packets         *prometheus.CounterVec
	packetRSSI      prometheus.Histogram
	sweeps          prometheus.Counter
	transitions     *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager with its collectors registered.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:   "blegate",
		subsystem:   "presence",
		httpBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.messagesDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_dropped_total",
		Help:      "Gateway messages dropped because the envelope could not be decoded",
	})
	m.entriesSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "entries_skipped_total",
		Help:      "Device entries skipped within otherwise valid messages",
	}, []string{"reason"})
	m.devicesLearned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "devices_learned_total",
		Help:      "Trackers created by auto-learn",
	})
	m.packets = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "packets_total",
		Help:      "Packets broadcast by the dispatcher, by key kind",
	}, []string{"kind"})
	m.packetRSSI = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "packet_rssi_dbm",
		Help:      "Reported signal strength of received packets",
		Buckets:   rssiBuckets,
	})
	m.sweeps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sweeps_total",
		Help:      "Periodic staleness sweeps",
	})
	m.transitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "transitions_total",
		Help:      "Tracker state transitions, by new state",
	}, []string{"to"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route",
		Buckets:   m.httpBuckets,
	}, []string{"method", "route"})
}

// Registry returns the manager's registry.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackTable exports tracker totals read from c at scrape time.
func (m *Manager) TrackTable(c Counter) error {
	tracked := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "devices_tracked",
		Help:      "Trackers in the table",
	}, func() float64 {
		total, _ := c.Counts()
		return float64(total)
	})
	home := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "devices_home",
		Help:      "Trackers currently home",
	}, func() float64 {
		_, h := c.Counts()
		return float64(h)
	})
	for _, col := range []prometheus.Collector{tracked, home} {
		if err := m.registry.Register(col); err != nil {
			return fmt.Errorf("%w: %w", ErrRegisterFailed, err)
		}
	}
	return nil
}

// TrackListener exports the drop count of an async listener.
func (m *Manager) TrackListener(name string, dropped func() uint64) error {
	col := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "listener",
		Name:        "dropped_total",
		Help:        "Calls dropped because a listener queue was full",
		ConstLabels: prometheus.Labels{"listener": name},
	}, func() float64 {
		return float64(dropped())
	})
	if err := m.registry.Register(col); err != nil {
		return fmt.Errorf("%w: %w", ErrRegisterFailed, err)
	}
	return nil
}

// MessageDropped implements presence.Observer.
func (m *Manager) MessageDropped(error) {
	m.messagesDropped.Inc()
}

// EntrySkipped implements presence.Observer.
func (m *Manager) EntrySkipped(err error) {
	reason := ReasonEntryDecode
	if errors.Is(err, beacon.ErrMalformedAdvertisement) {
		reason = ReasonMalformedAdvertisement
	}
	m.entriesSkipped.WithLabelValues(reason).Inc()
}

// DeviceLearned implements presence.Observer.
func (m *Manager) DeviceLearned(beacon.Key) {
	m.devicesLearned.Inc()
}

// HandleEvent implements presence.Subscriber.
func (m *Manager) HandleEvent(ev presence.Event) {
	switch e := ev.(type) {
	case presence.PacketEvent:
		m.packets.WithLabelValues(string(e.Packet.Key.Kind())).Inc()
		if e.Packet.RSSI != nil {
			m.packetRSSI.Observe(float64(*e.Packet.RSSI))
		}
	case presence.SweepEvent:
		m.sweeps.Inc()
	}
}

// OnStateChange implements presence.StateListener. Registrations are not
// counted as transitions.
func (m *Manager) OnStateChange(change presence.StateChange) {
	if change.Registered() {
		return
	}
	m.transitions.WithLabelValues(string(change.To)).Inc()
}

// ObserveHTTP records one served request.
func (m *Manager) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
