// Package prom provides prometheus implementation of the cycle meter.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Meter records tier cycles and engine events as prometheus metrics.
type Meter struct {
	framePeriod time.Duration

	cycleDuration *prometheus.HistogramVec
	cycleLoad     *prometheus.GaugeVec
	cycles        *prometheus.CounterVec
	events        *prometheus.CounterVec

	collectors []prometheus.Collector
}

// New creates and registers meter metrics. Frame period is used to report
// the load ratio of each cycle; zero disables the load gauge.
func New(registry prometheus.Registerer, framePeriod time.Duration) (*Meter, error) {
	m := &Meter{framePeriod: framePeriod}
	m.cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audiochain_cycle_duration_seconds",
			Help:    "Time taken by a node in a scheduler tier",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~80ms
		},
		[]string{"tier", "node"},
	)
	m.cycleLoad = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiochain_cycle_load_ratio",
			Help: "Last cycle duration relative to the frame period",
		},
		[]string{"tier", "node"},
	)
	m.cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiochain_cycles_total",
			Help: "Total number of cycles executed",
		},
		[]string{"tier", "node"},
	)
	m.events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiochain_events_total",
			Help: "Total number of engine events",
		},
		[]string{"event", "node"},
	)
	m.collectors = []prometheus.Collector{m.cycleDuration, m.cycleLoad, m.cycles, m.events}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface.
func (m *Meter) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface.
func (m *Meter) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Cycle records a single cycle of node in tier.
func (m *Meter) Cycle(tier, node string, d time.Duration) {
	m.cycleDuration.WithLabelValues(tier, node).Observe(d.Seconds())
	m.cycles.WithLabelValues(tier, node).Inc()
	if m.framePeriod > 0 {
		m.cycleLoad.WithLabelValues(tier, node).Set(float64(d) / float64(m.framePeriod))
	}
}

// Event increments event counter of node.
func (m *Meter) Event(name, node string) {
	m.events.WithLabelValues(name, node).Inc()
}
