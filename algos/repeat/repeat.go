// Package repeat provides an algo that copies its input to multiple
// outputs.
package repeat

import (
	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/capability"
)

// Name of the template.
const Name = "repeat"

// Descriptor of repeat template.
func Descriptor() algo.Descriptor {
	pins := capability.PinSet{
		Interleaving: capability.InterleavingBoth,
		Domain:       capability.DomainTimeFreq,
		Encoding:     capability.TypeAll,
		SampleRate:   capability.FsAll | capability.FsCustom,
		Channels:     capability.ChAll,
	}
	in, out := pins, pins
	in.Count = capability.ChunkOne
	in.Names = []string{"in"}
	out.Count = capability.ChunkOneMultiple
	return algo.Descriptor{
		Name:        Name,
		Description: "copies input to every output",
		Capabilities: capability.Capabilities{
			In:   in,
			Out:  out,
			Prio: capability.PrioAll,
			Consistency: capability.Consistency{
				Out:   buffer.ParamAll,
				InOut: buffer.ParamAll,
			},
		},
		CycleCount: 200,
		New:        func() algo.Processor { return Repeater{} },
	}
}

// Repeater sinks the signal and sources it to multiple chunks.
type Repeater struct{}

// Init is no-op.
func (Repeater) Init(*algo.Context) error { return nil }

// Deinit is no-op.
func (Repeater) Deinit(*algo.Context) error { return nil }

// Configure is no-op.
func (Repeater) Configure(*algo.Context) error { return nil }

// Process copies input frame to every output.
func (Repeater) Process(ctx *algo.Context) error {
	in := ctx.In[0].Frame
	for i := range ctx.Out {
		copy(ctx.Out[i].Frame, in)
	}
	return nil
}
