package pool_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/pool"
)

func TestPool(t *testing.T) {
	tests := []struct {
		capacity int
		size     int
		allocs   int
		failAt   int
	}{
		{
			capacity: 1024,
			size:     256,
			allocs:   4,
			failAt:   -1,
		},
		{
			capacity: 1000,
			size:     300,
			allocs:   4,
			failAt:   3,
		},
	}
	for _, test := range tests {
		s := pool.NewSet(map[pool.Tag]int{pool.TCM: test.capacity})
		var blocks []pool.Block
		for i := 0; i < test.allocs; i++ {
			b, err := s.Alloc(pool.TCM, test.size)
			if i == test.failAt {
				assert.True(t, errors.Is(err, fault.ErrAllocationError))
				continue
			}
			assert.NoError(t, err)
			assert.Len(t, b.Data, test.size)
			blocks = append(blocks, b)
		}
		stats := s.Stats()
		assert.Len(t, stats, 1)
		assert.Equal(t, len(blocks)*test.size, stats[0].Used)
		assert.Equal(t, stats[0].Used, stats[0].Peak)
		for _, b := range blocks {
			s.Free(b)
		}
		stats = s.Stats()
		assert.Zero(t, stats[0].Used)
		assert.Equal(t, len(blocks), stats[0].Frees)
	}
}

func TestReserve(t *testing.T) {
	s := pool.NewSet(nil)
	assert.True(t, s.Has(pool.RAMInt))
	assert.NoError(t, s.Reserve(pool.RAMInt, 100))
	s.Release(pool.RAMInt, 100)

	err := s.Reserve(pool.RAMExt, pool.DefaultRAMExtSize+1)
	assert.True(t, errors.Is(err, fault.ErrAllocationError))

	_, err = s.Alloc("sdram", 1)
	assert.True(t, errors.Is(err, fault.ErrNotFound))
}

func TestParseTag(t *testing.T) {
	tag, err := pool.ParseTag(" TCM ")
	assert.NoError(t, err)
	assert.Equal(t, pool.TCM, tag)
	_, err = pool.ParseTag("")
	assert.Error(t, err)
}
