package mixer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/algos/mixer"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/signal"
)

var desc = buffer.Descriptor{
	Channels:         2,
	SampleRate:       48000,
	ElementsPerFrame: 2,
	FrameCount:       4,
	Encoding:         buffer.Float,
	Interleaving:     buffer.Interleaved,
}

func frame(t *testing.T, v float64) []byte {
	t.Helper()
	floats := signal.ForDescriptor(desc)
	for c := range floats {
		for i := range floats[c] {
			floats[c][i] = v
		}
	}
	b := make([]byte, desc.FrameBytes())
	require.NoError(t, signal.Encode(desc, floats, b))
	return b
}

func TestMixer(t *testing.T) {
	tests := []struct {
		description string
		mode        int
		inputs      []float64
		connected   []bool
		expected    float64
	}{
		{
			description: "average",
			inputs:      []float64{0.7, 0.5},
			connected:   []bool{true, true},
			expected:    0.6,
		},
		{
			description: "sum saturates",
			mode:        mixer.Sum,
			inputs:      []float64{0.7, 0.5},
			connected:   []bool{true, true},
			expected:    1,
		},
		{
			description: "unconnected input",
			inputs:      []float64{0.7, 0.5, 0.1},
			connected:   []bool{true, false, true},
			expected:    0.4,
		},
		{
			description: "no inputs",
			inputs:      []float64{0.7},
			connected:   []bool{false},
			expected:    0,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			cfg := mixer.Dynamic{Mode: test.mode}
			ctx := &algo.Context{
				Dynamic: &cfg,
				Out:     []algo.Pin{{Descriptor: desc, Frame: make([]byte, desc.FrameBytes())}},
			}
			for i, v := range test.inputs {
				pin := algo.Pin{Descriptor: desc}
				if test.connected[i] {
					pin.Frame = frame(t, v)
				}
				ctx.In = append(ctx.In, pin)
			}
			m := mixer.Descriptor().New()
			require.NoError(t, m.Init(ctx))
			require.NoError(t, m.Configure(ctx))
			require.NoError(t, m.Process(ctx))

			result := signal.ForDescriptor(desc)
			require.NoError(t, signal.Decode(desc, ctx.Out[0].Frame, result))
			for c := range result {
				for _, v := range result[c] {
					assert.InDelta(t, test.expected, v, 1e-6)
				}
			}
			assert.NoError(t, m.Deinit(ctx))
		})
	}
}
