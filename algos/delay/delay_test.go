package delay_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/algos/delay"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/signal"
)

var desc = buffer.Descriptor{
	Channels:         1,
	SampleRate:       8000,
	ElementsPerFrame: 2,
	FrameCount:       2,
	Encoding:         buffer.Fixed16,
}

func alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func newContext(static delay.Static, dynamic delay.Dynamic) *algo.Context {
	return &algo.Context{
		Name:    "delay",
		Static:  &static,
		Dynamic: &dynamic,
		In:      []algo.Pin{{Descriptor: desc, Frame: make([]byte, desc.FrameBytes())}},
		Out:     []algo.Pin{{Descriptor: desc, Frame: make([]byte, desc.FrameBytes())}},
		Alloc:   alloc,
	}
}

func TestDelay(t *testing.T) {
	tests := []struct {
		description string
		frames      int
		expected    []byte
	}{
		{
			description: "no delay",
			frames:      0,
			expected:    []byte{1, 2, 3, 4, 5},
		},
		{
			description: "one frame",
			frames:      1,
			expected:    []byte{0, 1, 2, 3, 4},
		},
		{
			description: "three frames",
			frames:      3,
			expected:    []byte{0, 0, 0, 1, 2},
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			ctx := newContext(delay.Static{Frames: test.frames}, delay.Dynamic{Mix: 1})
			d := delay.Descriptor().New()
			require.NoError(t, d.Init(ctx))
			require.NoError(t, d.Configure(ctx))
			var result []byte
			for i := 1; i <= len(test.expected); i++ {
				for j := range ctx.In[0].Frame {
					ctx.In[0].Frame[j] = byte(i)
				}
				require.NoError(t, d.Process(ctx))
				result = append(result, ctx.Out[0].Frame[0])
			}
			assert.Equal(t, test.expected, result)
			assert.NoError(t, d.Deinit(ctx))
		})
	}
}

func TestMix(t *testing.T) {
	ctx := newContext(delay.Static{Frames: 1}, delay.Dynamic{Mix: 0.5})
	d := delay.Descriptor().New()
	require.NoError(t, d.Init(ctx))
	require.NoError(t, d.Configure(ctx))

	in := signal.Float64{{0.5, 0.5}}
	require.NoError(t, signal.Encode(desc, in, ctx.In[0].Frame))
	out := signal.ForDescriptor(desc)
	for _, expected := range []float64{0.25, 0.5} {
		require.NoError(t, d.Process(ctx))
		require.NoError(t, signal.Decode(desc, ctx.Out[0].Frame, out))
		assert.InDelta(t, expected, out[0][0], 1e-3)
	}
}

func TestErrors(t *testing.T) {
	d := delay.Descriptor().New()

	ctx := newContext(delay.Static{Frames: 0}, delay.Dynamic{Mix: 0.5})
	err := d.(algo.ConsistencyChecker).CheckConsistency(ctx)
	assert.True(t, errors.Is(err, fault.ErrInconsistent))

	ctx = newContext(delay.Static{Frames: 2}, delay.Dynamic{Mix: 1})
	ctx.Alloc = nil
	err = d.Init(ctx)
	assert.True(t, errors.Is(err, fault.ErrAllocationError))

	ctx = newContext(delay.Static{Frames: 2}, delay.Dynamic{Mix: 1})
	ctx.Alloc = func(int) ([]byte, error) {
		return nil, fault.New(fault.AllocationError, "alloc", "ramint", "exhausted")
	}
	err = d.Init(ctx)
	assert.True(t, errors.Is(err, fault.ErrAllocationError))
}
