// Package generator provides a source algo that synthesizes test tones.
package generator

import (
	"math"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/capability"
	"pipelined.dev/audiochain/param"
	"pipelined.dev/audiochain/signal"
)

// Name of the template.
const Name = "generator"

// Waveforms.
const (
	Sine int = iota
	Square
	Silence
)

// Dynamic config.
type Dynamic struct {
	Frequency float64
	Amplitude float64
	Waveform  int
}

var dynamic = param.NewTemplate("generator.dynamic",
	Dynamic{Frequency: 440, Amplitude: 0.5},
	param.Float("frequency", func(c *Dynamic) *float64 { return &c.Frequency }, 1, 20000, 440).
		Describe("tone frequency, Hz"),
	param.Float("amplitude", func(c *Dynamic) *float64 { return &c.Amplitude }, 0, 1, 0.5),
	param.Enum("waveform", func(c *Dynamic) *int { return &c.Waveform },
		[]param.KeyValue{{Key: "sine", Value: int64(Sine)}, {Key: "square", Value: int64(Square)}, {Key: "silence", Value: int64(Silence)}},
		Sine),
)

// Descriptor of generator template.
func Descriptor() algo.Descriptor {
	return algo.Descriptor{
		Name:        Name,
		Description: "tone generator",
		Capabilities: capability.Capabilities{
			In: capability.PinSet{Count: capability.ChunkNone},
			Out: capability.PinSet{
				Count:        capability.ChunkOne,
				Names:        []string{"out"},
				Interleaving: capability.InterleavingBoth,
				Domain:       capability.DomainTime,
				Encoding:     capability.TypePCM | capability.TypeG711,
				SampleRate:   capability.FsPCMAll | capability.FsCustom,
				Channels:     capability.ChAll,
			},
			Prio: capability.PrioNormal,
		},
		Dynamic:    dynamic,
		CycleCount: 2000,
		New:        func() algo.Processor { return &Generator{} },
	}
}

// Generator writes one frame of tone per process call. Phase is kept
// between frames, so frequency changes are glitch free.
type Generator struct {
	d     buffer.Descriptor
	buf   signal.Float64
	phase float64
	step  float64
	amp   float64
	shape int
}

// Init allocates frame buffer.
func (g *Generator) Init(ctx *algo.Context) error {
	g.d = ctx.Out[0].Descriptor
	g.buf = signal.ForDescriptor(g.d)
	g.phase = 0
	return nil
}

// Deinit releases frame buffer.
func (g *Generator) Deinit(*algo.Context) error {
	g.buf = nil
	return nil
}

// Configure applies tone parameters.
func (g *Generator) Configure(ctx *algo.Context) error {
	cfg := ctx.Dynamic.(*Dynamic)
	g.step = 2 * math.Pi * cfg.Frequency / float64(g.d.SampleRate)
	g.amp = cfg.Amplitude
	g.shape = cfg.Waveform
	return nil
}

// Process synthesizes a frame.
func (g *Generator) Process(ctx *algo.Context) error {
	phase := g.phase
	for c := range g.buf {
		phase = g.phase
		for i := range g.buf[c] {
			g.buf[c][i] = g.sample(phase)
			phase = math.Mod(phase+g.step, 2*math.Pi)
		}
	}
	g.phase = phase
	return signal.Encode(g.d, g.buf, ctx.Out[0].Frame)
}

func (g *Generator) sample(phase float64) float64 {
	switch g.shape {
	case Square:
		if phase < math.Pi {
			return g.amp
		}
		return -g.amp
	case Silence:
		return 0
	}
	return g.amp * math.Sin(phase)
}
