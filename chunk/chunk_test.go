package chunk_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/chunk"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/pool"
)

var mono = buffer.Descriptor{
	Channels:         1,
	SampleRate:       16000,
	ElementsPerFrame: 4,
	FrameCount:       2,
	Encoding:         buffer.Fixed16,
}

func allocated(t *testing.T, kind chunk.Kind) (*chunk.Chunk, *pool.Set) {
	t.Helper()
	c, err := chunk.New("c", mono, kind, pool.TCM)
	assert.NoError(t, err)
	s := pool.NewSet(nil)
	assert.NoError(t, c.Allocate(s))
	return c, s
}

func TestRing(t *testing.T) {
	c, _ := allocated(t, chunk.UserInOut)
	// no readers: never blocks the writer
	for i := 0; i < 5; i++ {
		assert.NotNil(t, c.WriteFrame())
		c.CommitWrite()
	}
	c.Reset()

	r1 := c.AddReader()
	r2 := c.AddReader()
	assert.Equal(t, 2, c.Space())

	for i := 0; i < 2; i++ {
		f := c.WriteFrame()
		assert.Len(t, f, mono.FrameBytes())
		f[0] = byte(i + 1)
		c.CommitWrite()
	}
	assert.Nil(t, c.WriteFrame())
	assert.Equal(t, 2, c.Available(r1))

	assert.Equal(t, byte(1), c.ReadFrame(r1)[0])
	c.CommitRead(r1)
	// r2 still holds the first frame
	assert.Zero(t, c.Space())

	assert.Equal(t, byte(1), c.ReadFrame(r2)[0])
	c.CommitRead(r2)
	assert.Equal(t, 1, c.Space())
	assert.Equal(t, byte(2), c.ReadFrame(r2)[0])

	c.CommitRead(r1)
	c.CommitRead(r2)
	assert.Nil(t, c.ReadFrame(r1))
	assert.Equal(t, uint64(2), c.Written())
}

func TestConcurrentReaders(t *testing.T) {
	c, _ := allocated(t, chunk.UserInOut)
	readers := []int{c.AddReader(), c.AddReader()}
	const frames = 1000

	var wg sync.WaitGroup
	got := make([][]byte, len(readers))
	for i, r := range readers {
		wg.Add(1)
		go func(i, r int) {
			defer wg.Done()
			for len(got[i]) < frames {
				if f := c.ReadFrame(r); f != nil {
					got[i] = append(got[i], f[0])
					c.CommitRead(r)
				}
			}
		}(i, r)
	}
	for n := 0; n < frames; {
		if f := c.WriteFrame(); f != nil {
			f[0] = byte(n)
			c.CommitWrite()
			n++
		}
	}
	wg.Wait()
	for i := range got {
		for n, v := range got[i] {
			assert.Equal(t, byte(n), v, "reader %d frame %d", i, n)
		}
	}
}

func TestSet(t *testing.T) {
	var tests = []struct {
		kind  chunk.Kind
		key   string
		value string
		err   error
	}{
		{kind: chunk.UserInOut, key: buffer.KeyChannels, value: "2"},
		{kind: chunk.UserInOut, key: chunk.KeyKind, value: "user_src"},
		{kind: chunk.UserInOut, key: chunk.KeyKind, value: "sys_in", err: fault.ErrReadOnly},
		{kind: chunk.UserInOut, key: chunk.KeyPool, value: "ramext"},
		{kind: chunk.UserInOut, key: "color", value: "red", err: fault.ErrNotFound},
		{kind: chunk.SystemIn, key: buffer.KeyChannels, value: "2", err: fault.ErrReadOnly},
	}
	for _, test := range tests {
		c, err := chunk.New("c", mono, test.kind, pool.TCM)
		assert.NoError(t, err)
		err = c.Set(test.key, test.value)
		if test.err != nil {
			assert.True(t, errors.Is(err, test.err), "%s=%s: %v", test.key, test.value, err)
			continue
		}
		assert.NoError(t, err)
		v, err := c.Get(test.key)
		assert.NoError(t, err)
		assert.Equal(t, test.value, v)
	}
}

func TestAllocate(t *testing.T) {
	c, s := allocated(t, chunk.UserInOut)
	assert.False(t, c.Pending())
	assert.NoError(t, c.Set(buffer.KeyChannels, "2"))
	assert.True(t, c.Pending())
	assert.NoError(t, c.Allocate(s))
	assert.Len(t, c.WriteFrame(), 2*mono.FrameBytes())
	assert.Equal(t, 2*mono.Bytes(), s.Stats()[2].Used)

	c.Release(s)
	assert.False(t, c.Allocated())
	assert.Zero(t, s.Stats()[2].Used)

	small := pool.NewSet(map[pool.Tag]int{pool.TCM: 1})
	err := c.Allocate(small)
	assert.True(t, errors.Is(err, fault.ErrAllocationError))
}
