package repeat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/algos/repeat"
	"pipelined.dev/audiochain/capability"
)

func TestRepeat(t *testing.T) {
	tests := []struct {
		description string
		outputs     int
	}{
		{description: "single", outputs: 1},
		{description: "fan out", outputs: 3},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			in := []byte{1, 2, 3, 4}
			ctx := &algo.Context{In: []algo.Pin{{Frame: in}}}
			for i := 0; i < test.outputs; i++ {
				ctx.Out = append(ctx.Out, algo.Pin{Frame: make([]byte, len(in))})
			}
			r := repeat.Descriptor().New()
			require.NoError(t, r.Init(ctx))
			require.NoError(t, r.Process(ctx))
			for _, out := range ctx.Out {
				assert.Equal(t, in, out.Frame)
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	d := repeat.Descriptor()
	assert.True(t, d.Capabilities.Out.Count.Accepts(5))
	assert.False(t, d.Capabilities.In.Count.Accepts(2))
	assert.Equal(t, capability.PrioAll, d.Capabilities.Prio)
}
