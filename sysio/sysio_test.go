package sysio_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/pool"
	"pipelined.dev/audiochain/sysio"
)

var desc = buffer.Descriptor{
	Channels:         1,
	SampleRate:       8000,
	ElementsPerFrame: 2,
	FrameCount:       1,
	Encoding:         buffer.Fixed16,
}

func TestInputPort(t *testing.T) {
	r := sysio.NewRegistry()
	p, err := r.Register("mic", sysio.In, desc, sysio.WithDepth(2), sysio.WithPool(pool.RAMInt))
	require.NoError(t, err)
	assert.Equal(t, pool.RAMInt, p.Pool())

	assert.NoError(t, p.Write([]byte{1, 2, 3, 4}))
	assert.NoError(t, p.Write([]byte{5, 6, 7, 8}))
	err = p.Write([]byte{9, 9, 9, 9})
	assert.True(t, fault.IsWarning(err))
	assert.Equal(t, 2, p.Buffered())

	frame := make([]byte, 4)
	assert.True(t, p.Pull(frame))
	assert.Equal(t, []byte{1, 2, 3, 4}, frame)
	assert.True(t, p.Pull(frame))
	assert.Equal(t, []byte{5, 6, 7, 8}, frame)
	// underflow inserts silence
	assert.False(t, p.Pull(frame))
	assert.Equal(t, []byte{0, 0, 0, 0}, frame)

	err = p.Read(frame)
	assert.True(t, errors.Is(err, fault.ErrInvalidState))
	assert.Error(t, p.Write([]byte{1}))
}

func TestOutputPort(t *testing.T) {
	r := sysio.NewRegistry()
	ready := false
	p, err := r.Register("spk", sysio.Out, desc, sysio.WithDepth(1), sysio.WithAvailability(func() bool { return ready }))
	require.NoError(t, err)
	assert.False(t, p.Available())
	ready = true
	assert.True(t, p.Available())

	assert.True(t, p.Push([]byte{1, 2, 3, 4}))
	assert.False(t, p.Push([]byte{5, 6, 7, 8}))

	frame := make([]byte, 4)
	assert.NoError(t, p.Read(frame))
	assert.Equal(t, []byte{1, 2, 3, 4}, frame)
	assert.True(t, fault.IsWarning(p.Read(frame)))

	p.Push([]byte{1, 2, 3, 4})
	p.Reset()
	assert.Zero(t, p.Buffered())
}

func TestRegistry(t *testing.T) {
	r := sysio.NewRegistry()
	_, err := r.Register("spk", sysio.Out, desc)
	require.NoError(t, err)
	_, err = r.Register("mic", sysio.In, desc)
	require.NoError(t, err)

	_, err = r.Register("mic", sysio.In, desc)
	assert.True(t, errors.Is(err, fault.ErrInconsistent))
	_, err = r.Register("bad", sysio.In, buffer.Descriptor{})
	assert.True(t, errors.Is(err, fault.ErrOutOfRange))

	p, ok := r.Lookup("mic")
	assert.True(t, ok)
	assert.Equal(t, sysio.In, p.Direction())
	_, ok = r.Lookup("line")
	assert.False(t, ok)

	ports := r.Ports()
	assert.Equal(t, "mic", ports[0].Name())
	assert.Equal(t, "spk", ports[1].Name())

	var nilRegistry *sysio.Registry
	_, ok = nilRegistry.Lookup("mic")
	assert.False(t, ok)
}
