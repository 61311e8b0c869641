// Package mixer provides an algo that mixes multiple inputs into a single
// output.
package mixer

import (
	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/capability"
	"pipelined.dev/audiochain/param"
	"pipelined.dev/audiochain/signal"
)

// Name of the template.
const Name = "mixer"

// Modes.
const (
	Average int = iota
	Sum
)

// Dynamic config.
type Dynamic struct {
	Mode int
}

var dynamic = param.NewTemplate("mixer.dynamic",
	Dynamic{},
	param.Enum("mode", func(c *Dynamic) *int { return &c.Mode },
		[]param.KeyValue{{Key: "average", Value: int64(Average)}, {Key: "sum", Value: int64(Sum)}},
		Average).
		Describe("sum saturates, average divides by the number of connected inputs"),
)

// Descriptor of mixer template.
func Descriptor() algo.Descriptor {
	pins := capability.PinSet{
		Interleaving: capability.InterleavingBoth,
		Domain:       capability.DomainTime,
		Encoding:     capability.TypePCM | capability.TypeG711,
		SampleRate:   capability.FsPCMAll | capability.FsCustom,
		Channels:     capability.ChAll,
	}
	in, out := pins, pins
	in.Count = capability.ChunkOneMultiple
	out.Count = capability.ChunkOne
	out.Names = []string{"out"}
	return algo.Descriptor{
		Name:        Name,
		Description: "mixes inputs into one output",
		Capabilities: capability.Capabilities{
			In:   in,
			Out:  out,
			Prio: capability.PrioNormal,
			Misc: capability.OptionalInputs,
			Consistency: capability.Consistency{
				In:    buffer.ParamAll,
				InOut: buffer.ParamAll,
			},
		},
		Dynamic:    dynamic,
		CycleCount: 3000,
		New:        func() algo.Processor { return &Mixer{} },
	}
}

// Mixer sums connected inputs sample by sample.
type Mixer struct {
	d      buffer.Descriptor
	frames []signal.Float64
	result signal.Float64
	mode   int
}

// Init allocates a buffer per input.
func (m *Mixer) Init(ctx *algo.Context) error {
	m.d = ctx.Out[0].Descriptor
	m.frames = make([]signal.Float64, len(ctx.In))
	for i := range m.frames {
		m.frames[i] = signal.ForDescriptor(m.d)
	}
	m.result = signal.ForDescriptor(m.d)
	return nil
}

// Deinit releases buffers.
func (m *Mixer) Deinit(*algo.Context) error {
	m.frames, m.result = nil, nil
	return nil
}

// Configure applies mixing mode.
func (m *Mixer) Configure(ctx *algo.Context) error {
	m.mode = ctx.Dynamic.(*Dynamic).Mode
	return nil
}

// Process mixes a frame of every connected input.
func (m *Mixer) Process(ctx *algo.Context) error {
	buffers := m.frames[:0]
	for i := range ctx.In {
		if ctx.In[i].Frame == nil {
			continue
		}
		f := m.frames[len(buffers)]
		if err := signal.Decode(m.d, ctx.In[i].Frame, f); err != nil {
			return err
		}
		buffers = append(buffers, f)
	}
	m.sum(buffers)
	return signal.Encode(m.d, m.result, ctx.Out[0].Frame)
}

// sum writes mixed samples into result.
func (m *Mixer) sum(buffers []signal.Float64) {
	m.result.Zero()
	if len(buffers) == 0 {
		return
	}
	for nc := range m.result {
		for bs := range m.result[nc] {
			var sum float64
			for i := range buffers {
				sum += buffers[i][nc][bs]
			}
			if m.mode == Average {
				sum /= float64(len(buffers))
			}
			m.result[nc][bs] = sum
		}
	}
}
