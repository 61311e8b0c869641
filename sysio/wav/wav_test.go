package wav_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/signal"
	"pipelined.dev/audiochain/sysio"
	"pipelined.dev/audiochain/sysio/wav"
)

func TestRoundTrip(t *testing.T) {
	var tests = []struct {
		bitDepth int
		channels int
		frames   int
	}{
		{bitDepth: 16, channels: 1, frames: 3},
		{bitDepth: 32, channels: 2, frames: 2},
	}
	for _, test := range tests {
		d := buffer.Descriptor{
			Channels:         test.channels,
			SampleRate:       8000,
			ElementsPerFrame: 4,
			FrameCount:       1,
			Encoding:         buffer.Fixed16,
		}
		if test.bitDepth == 32 {
			d.Encoding = buffer.Fixed32
		}
		path := filepath.Join(t.TempDir(), "out.wav")

		registry := sysio.NewRegistry()
		out, err := registry.Register("out", sysio.Out, d, sysio.WithDepth(test.frames))
		require.NoError(t, err)
		floats := signal.ForDescriptor(d)
		frame := make([]byte, d.FrameBytes())
		for i := 0; i < test.frames; i++ {
			for c := range floats {
				for j := range floats[c] {
					floats[c][j] = 0.25 * float64(c+1)
				}
			}
			require.NoError(t, signal.Encode(d, floats, frame))
			require.True(t, out.Push(frame))
		}

		sink, err := wav.Create(path, d, test.bitDepth)
		require.NoError(t, err)
		n, err := sink.Drain(out)
		assert.NoError(t, err)
		assert.Equal(t, test.frames, n)
		require.NoError(t, sink.Close())

		source, err := wav.Open(path)
		require.NoError(t, err)
		assert.Equal(t, d, source.Descriptor(4))
		in, err := registry.Register("in", sysio.In, d, sysio.WithDepth(test.frames))
		require.NoError(t, err)
		for i := 0; i < test.frames; i++ {
			assert.NoError(t, source.Feed(in))
		}
		assert.True(t, errors.Is(source.Feed(in), io.EOF))
		assert.NoError(t, source.Close())

		for i := 0; i < test.frames; i++ {
			require.True(t, in.Pull(frame))
			require.NoError(t, signal.Decode(d, frame, floats))
			for c := range floats {
				assert.InDeltaSlice(t, []float64{0.25 * float64(c+1), 0.25 * float64(c+1), 0.25 * float64(c+1), 0.25 * float64(c+1)}, floats[c], 1e-3)
			}
		}
	}
}

func TestErrors(t *testing.T) {
	d := buffer.Descriptor{Channels: 1, SampleRate: 8000, ElementsPerFrame: 4, FrameCount: 1}
	_, err := wav.Create(filepath.Join(t.TempDir(), "out.wav"), d, 24)
	assert.True(t, errors.Is(err, wav.ErrUnsupportedBitDepth))

	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file"), 0o600))
	_, err = wav.Open(path)
	assert.Error(t, err)

	_, err = wav.Open(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}
