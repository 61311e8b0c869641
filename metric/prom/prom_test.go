package prom

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/audiochain/metric"
)

func TestMeter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := New(registry, 10*time.Millisecond)
	assert.NoError(t, err)

	testCases := []struct {
		name  string
		tier  string
		node  string
		d     time.Duration
		calls int
		load  float64
	}{
		{"process gain", "process", "gain", 2 * time.Millisecond, 3, 0.2},
		{"control rms", "control", "rms", 5 * time.Millisecond, 1, 0.5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < tc.calls; i++ {
				m.Cycle(tc.tier, tc.node, tc.d)
			}
			assert.Equal(t, float64(tc.calls), testutil.ToFloat64(m.cycles.WithLabelValues(tc.tier, tc.node)))
			assert.InDelta(t, tc.load, testutil.ToFloat64(m.cycleLoad.WithLabelValues(tc.tier, tc.node)), 1e-9)
		})
	}
	assert.Equal(t, 2, testutil.CollectAndCount(m.cycleDuration))

	m.Event(metric.EventReinitOverrun, "delay")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.events.WithLabelValues(metric.EventReinitOverrun, "delay")))

	// duplicate registration fails
	_, err = New(registry, 0)
	assert.Error(t, err)
}

func TestMeterInterface(t *testing.T) {
	m, err := New(prometheus.NewRegistry(), 0)
	assert.NoError(t, err)
	var meter metric.Meter = m
	meter.Cycle("process", "gain", time.Millisecond)
	assert.Zero(t, testutil.CollectAndCount(m.cycleLoad))
}
