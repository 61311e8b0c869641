// Package gain provides an algo that scales signal.
package gain

import (
	"math"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/capability"
	"pipelined.dev/audiochain/param"
	"pipelined.dev/audiochain/signal"
)

// Name of the template.
const Name = "gain"

// Dynamic config.
type Dynamic struct {
	// Gain in dB.
	Gain float64
	Mute bool
}

var dynamic = param.NewTemplate("gain.dynamic",
	Dynamic{},
	param.Float("gain", func(c *Dynamic) *float64 { return &c.Gain }, -96, 24, 0).
		Describe("gain, dB"),
	param.Bool("mute", func(c *Dynamic) *bool { return &c.Mute }, false).
		With(param.WantApply),
)

var pins = capability.PinSet{
	Count:        capability.ChunkOne,
	Interleaving: capability.InterleavingBoth,
	Domain:       capability.DomainTimeFreq,
	Encoding:     capability.TypePCM | capability.TypeG711,
	SampleRate:   capability.FsAll | capability.FsCustom,
	Channels:     capability.ChAll,
}

// Descriptor of gain template.
func Descriptor() algo.Descriptor {
	in, out := pins, pins
	in.Names, out.Names = []string{"in"}, []string{"out"}
	return algo.Descriptor{
		Name:        Name,
		Description: "volume control",
		Capabilities: capability.Capabilities{
			In:          in,
			Out:         out,
			Prio:        capability.PrioAll,
			Consistency: capability.Consistency{InOut: buffer.ParamAll},
		},
		Dynamic:    dynamic,
		CycleCount: 1000,
		New:        func() algo.Processor { return &Gain{} },
	}
}

// Gain multiplies every sample by a linear factor. Unity gain is bypassed.
type Gain struct {
	d      buffer.Descriptor
	buf    signal.Float64
	factor float64
}

// Init allocates frame buffer.
func (g *Gain) Init(ctx *algo.Context) error {
	g.d = ctx.In[0].Descriptor
	g.buf = signal.ForDescriptor(g.d)
	return nil
}

// Deinit releases frame buffer.
func (g *Gain) Deinit(*algo.Context) error {
	g.buf = nil
	return nil
}

// Configure converts gain to linear factor.
func (g *Gain) Configure(ctx *algo.Context) error {
	cfg := ctx.Dynamic.(*Dynamic)
	if cfg.Mute {
		g.factor = 0
		return nil
	}
	g.factor = Factor(cfg.Gain)
	return nil
}

// IsDisabled returns true for unity gain.
func (g *Gain) IsDisabled(*algo.Context) bool {
	return g.factor == 1
}

// Process scales a frame.
func (g *Gain) Process(ctx *algo.Context) error {
	if err := signal.Decode(g.d, ctx.In[0].Frame, g.buf); err != nil {
		return err
	}
	for c := range g.buf {
		for i := range g.buf[c] {
			g.buf[c][i] *= g.factor
		}
	}
	return signal.Encode(g.d, g.buf, ctx.Out[0].Frame)
}

// Factor converts dB to linear factor.
func Factor(db float64) float64 {
	if db == 0 {
		return 1
	}
	return math.Pow(10, db/20)
}
