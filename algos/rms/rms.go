// Package rms provides a sink algo that measures signal level and
// publishes it as control data.
package rms

import (
	"math"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/capability"
	"pipelined.dev/audiochain/param"
	"pipelined.dev/audiochain/signal"
)

// Name of the template.
const Name = "rms"

// Dynamic config.
type Dynamic struct {
	// Window is the number of frames averaged before level is published.
	Window int
}

// Control data.
type Control struct {
	RMS    float64
	Peak   float64
	Frames uint64
}

var (
	dynamic = param.NewTemplate("rms.dynamic",
		Dynamic{Window: 10},
		param.Int("window", func(c *Dynamic) *int { return &c.Window }, 1, 1000, 10),
	)
	control = param.NewTemplate("rms.control",
		Control{},
		param.Float("rms", func(c *Control) *float64 { return &c.RMS }, 0, 1, 0),
		param.Float("peak", func(c *Control) *float64 { return &c.Peak }, 0, 1, 0),
		param.Int("frames", func(c *Control) *uint64 { return &c.Frames }, 0, math.MaxUint32, 0).
			With(param.Disabled),
	)
)

// Descriptor of rms template.
func Descriptor() algo.Descriptor {
	return algo.Descriptor{
		Name:        Name,
		Description: "signal level meter",
		Capabilities: capability.Capabilities{
			In: capability.PinSet{
				Count:        capability.ChunkOne,
				Names:        []string{"in"},
				Interleaving: capability.InterleavingBoth,
				Domain:       capability.DomainTime,
				Encoding:     capability.TypePCM | capability.TypeG711,
				SampleRate:   capability.FsPCMAll | capability.FsCustom,
				Channels:     capability.ChAll,
			},
			Out:  capability.PinSet{Count: capability.ChunkNone},
			Prio: capability.PrioLow,
		},
		Dynamic:    dynamic,
		Control:    control,
		CycleCount: 1000,
		New:        func() algo.Processor { return &Meter{} },
	}
}

// Meter accumulates squares of samples over a window of frames.
type Meter struct {
	d      buffer.Descriptor
	buf    signal.Float64
	window int
	frames int
	sum    float64
	count  int
	peak   float64

	// last complete window
	level, max float64
	total      uint64
	ready      bool
}

// Init allocates frame buffer.
func (m *Meter) Init(ctx *algo.Context) error {
	m.d = ctx.In[0].Descriptor
	m.buf = signal.ForDescriptor(m.d)
	m.reset()
	m.level, m.max, m.total, m.ready = 0, 0, 0, false
	return nil
}

// Deinit releases frame buffer.
func (m *Meter) Deinit(*algo.Context) error {
	m.buf = nil
	return nil
}

// Configure applies window. Partial window is discarded.
func (m *Meter) Configure(ctx *algo.Context) error {
	m.window = ctx.Dynamic.(*Dynamic).Window
	m.reset()
	return nil
}

// Process accumulates a frame.
func (m *Meter) Process(ctx *algo.Context) error {
	if err := signal.Decode(m.d, ctx.In[0].Frame, m.buf); err != nil {
		return err
	}
	for c := range m.buf {
		for _, v := range m.buf[c] {
			m.sum += v * v
			m.peak = math.Max(m.peak, math.Abs(v))
		}
		m.count += len(m.buf[c])
	}
	m.frames++
	m.total++
	if m.frames >= m.window {
		if m.count > 0 {
			m.level = math.Sqrt(m.sum / float64(m.count))
		}
		m.max = m.peak
		m.ready = true
		m.reset()
	}
	return nil
}

// Control publishes the level of the last complete window.
func (m *Meter) Control(ctx *algo.Context) error {
	cfg := ctx.Control.(*Control)
	cfg.Frames = m.total
	if !m.ready {
		return nil
	}
	cfg.RMS, cfg.Peak = m.level, m.max
	m.ready = false
	return nil
}

func (m *Meter) reset() {
	m.frames, m.sum, m.count, m.peak = 0, 0, 0, 0
}
