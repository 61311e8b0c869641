package rms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/algos/rms"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/signal"
)

var desc = buffer.Descriptor{
	Channels:         1,
	SampleRate:       48000,
	ElementsPerFrame: 4,
	FrameCount:       2,
	Encoding:         buffer.Float,
}

func TestMeter(t *testing.T) {
	tests := []struct {
		description string
		window      int
		frames      []float64
		rms         float64
		peak        float64
	}{
		{
			description: "partial window",
			window:      3,
			frames:      []float64{0.5, 0.5},
		},
		{
			description: "constant",
			window:      2,
			frames:      []float64{0.5, 0.5},
			rms:         0.5,
			peak:        0.5,
		},
		{
			description: "last window",
			window:      1,
			frames:      []float64{0.5, -0.25},
			rms:         0.25,
			peak:        0.25,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			d := rms.Descriptor()
			dynamic := rms.Dynamic{Window: test.window}
			ctx := &algo.Context{
				Dynamic: &dynamic,
				Control: d.Control.New(),
				In:      []algo.Pin{{Descriptor: desc, Frame: make([]byte, desc.FrameBytes())}},
			}
			m := d.New()
			require.NoError(t, m.Init(ctx))
			require.NoError(t, m.Configure(ctx))
			for _, v := range test.frames {
				require.NoError(t, signal.Encode(desc, signal.Float64{{v, v, v, v}}, ctx.In[0].Frame))
				require.NoError(t, m.Process(ctx))
			}
			require.NoError(t, m.(algo.Controller).Control(ctx))

			control := ctx.Control.(*rms.Control)
			assert.InDelta(t, test.rms, control.RMS, 1e-6)
			assert.InDelta(t, test.peak, control.Peak, 1e-6)
			assert.Equal(t, uint64(len(test.frames)), control.Frames)

			v, err := d.Control.Get(control, "frames")
			assert.NoError(t, err)
			assert.Equal(t, "2", v)
		})
	}
}
