// Package delay provides an algo that delays signal by whole frames.
package delay

import (
	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/capability"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/param"
	"pipelined.dev/audiochain/signal"
)

// Name of the template.
const Name = "delay"

// MaxFrames is the longest delay.
const MaxFrames = 64

// Static config. Changing the delay line length reinitializes algo.
type Static struct {
	Frames int
}

// Dynamic config.
type Dynamic struct {
	// Mix of delayed signal, 1 is wet only.
	Mix float64
}

var (
	static = param.NewTemplate("delay.static",
		Static{Frames: 1},
		param.Int("frames", func(c *Static) *int { return &c.Frames }, 0, MaxFrames, 1).
			Describe("delay, frames"),
	)
	dynamic = param.NewTemplate("delay.dynamic",
		Dynamic{Mix: 1},
		param.Float("mix", func(c *Dynamic) *float64 { return &c.Mix }, 0, 1, 1),
	)
)

// Descriptor of delay template.
func Descriptor() algo.Descriptor {
	pins := capability.PinSet{
		Count:        capability.ChunkOne,
		Interleaving: capability.InterleavingBoth,
		Domain:       capability.DomainTime,
		Encoding:     capability.TypePCM | capability.TypeG711,
		SampleRate:   capability.FsPCMAll | capability.FsCustom,
		Channels:     capability.ChAll,
	}
	return algo.Descriptor{
		Name:        Name,
		Description: "frame delay line",
		Capabilities: capability.Capabilities{
			In:          pins,
			Out:         pins,
			Prio:        capability.PrioNormal,
			Consistency: capability.Consistency{InOut: buffer.ParamAll},
		},
		Static:     static,
		Dynamic:    dynamic,
		CycleCount: 1500,
		New:        func() algo.Processor { return &Delay{} },
	}
}

// Delay keeps the last frames of input in a line allocated from the algo
// pool.
type Delay struct {
	d    buffer.Descriptor
	line []byte
	size int
	pos  int
	mix  float64
	dry  signal.Float64
	wet  signal.Float64
}

// Init allocates the delay line.
func (d *Delay) Init(ctx *algo.Context) error {
	cfg := ctx.Static.(*Static)
	d.d = ctx.In[0].Descriptor
	d.size = d.d.FrameBytes()
	d.pos = 0
	d.line = nil
	if cfg.Frames > 0 {
		if ctx.Alloc == nil {
			return fault.New(fault.AllocationError, "init delay", ctx.Name, "no allocator")
		}
		line, err := ctx.Alloc(cfg.Frames * d.size)
		if err != nil {
			return err
		}
		d.line = line
	}
	d.dry = signal.ForDescriptor(d.d)
	d.wet = signal.ForDescriptor(d.d)
	return nil
}

// Deinit drops the delay line. Its memory is returned by engine.
func (d *Delay) Deinit(*algo.Context) error {
	d.line, d.dry, d.wet = nil, nil, nil
	return nil
}

// Configure applies mix.
func (d *Delay) Configure(ctx *algo.Context) error {
	d.mix = ctx.Dynamic.(*Dynamic).Mix
	return nil
}

// CheckConsistency rejects mix without delay line.
func (d *Delay) CheckConsistency(ctx *algo.Context) error {
	if ctx.Static.(*Static).Frames == 0 && ctx.Dynamic.(*Dynamic).Mix < 1 {
		return fault.New(fault.Inconsistent, "check delay", ctx.Name, "mix needs at least one frame of delay")
	}
	return nil
}

// Process writes the oldest frame of the line and replaces it with input.
func (d *Delay) Process(ctx *algo.Context) error {
	in, out := ctx.In[0].Frame, ctx.Out[0].Frame
	if len(d.line) == 0 {
		copy(out, in)
		return nil
	}
	slot := d.line[d.pos*d.size : (d.pos+1)*d.size]
	if d.mix >= 1 {
		copy(out, slot)
	} else if err := d.blend(in, slot, out); err != nil {
		return err
	}
	copy(slot, in)
	d.pos = (d.pos + 1) % (len(d.line) / d.size)
	return nil
}

func (d *Delay) blend(in, delayed, out []byte) error {
	if err := signal.Decode(d.d, in, d.dry); err != nil {
		return err
	}
	if err := signal.Decode(d.d, delayed, d.wet); err != nil {
		return err
	}
	for c := range d.wet {
		for i := range d.wet[c] {
			d.wet[c][i] = d.dry[c][i]*(1-d.mix) + d.wet[c][i]*d.mix
		}
	}
	return signal.Encode(d.d, d.wet, out)
}
