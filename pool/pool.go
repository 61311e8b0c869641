/*
Package pool provides tagged memory pools for chunks and algos.

Pools are partitioned by allocation phase: blocks are requested while the
pipe is stopped or during a controlled reinit, so a pool never serves
concurrent allocations on the audio path. Every pool has a byte budget;
exhausting it is reported synchronously with an AllocationError.
*/
package pool

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"pipelined.dev/audiochain/fault"
)

// Tag identifies a memory pool.
type Tag string

// Default pools.
const (
	TCM    Tag = "tcm"
	RAMInt Tag = "ramint"
	RAMExt Tag = "ramext"
)

// Default budgets.
const (
	DefaultTCMSize    = 64 << 10
	DefaultRAMIntSize = 512 << 10
	DefaultRAMExtSize = 16 << 20
)

// ParseTag parses pool tag. Any non-empty name is accepted, so hosts can
// declare custom pools.
func ParseTag(s string) (Tag, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fault.New(fault.NotFound, "parse pool", s, "empty pool name")
	}
	return Tag(s), nil
}

// Stats of a single pool.
type Stats struct {
	Tag      Tag
	Capacity int
	Used     int
	Peak     int
	Allocs   int
	Frees    int
}

// Block is a chunk of memory allocated from a pool.
type Block struct {
	Tag  Tag
	Data []byte
}

type memPool struct {
	Stats
}

// Set is a set of pools mapped to their tags.
type Set struct {
	m struct {
		sync.Mutex
		pools map[Tag]*memPool
	}
}

// NewSet returns set with provided budgets. Nil sizes create the default
// pools.
func NewSet(sizes map[Tag]int) *Set {
	if len(sizes) == 0 {
		sizes = map[Tag]int{
			TCM:    DefaultTCMSize,
			RAMInt: DefaultRAMIntSize,
			RAMExt: DefaultRAMExtSize,
		}
	}
	s := Set{}
	s.m.pools = make(map[Tag]*memPool, len(sizes))
	for tag, size := range sizes {
		s.m.pools[tag] = &memPool{Stats{Tag: tag, Capacity: size}}
	}
	return &s
}

// Alloc returns zeroed block of provided size from the pool.
func (s *Set) Alloc(tag Tag, size int) (Block, error) {
	if err := s.take("pool alloc", tag, size); err != nil {
		return Block{}, err
	}
	return Block{Tag: tag, Data: make([]byte, size)}, nil
}

// Reserve accounts size bytes in the pool without returning memory. It's
// used for Go values whose memory is managed by the runtime but must fit
// the budget.
func (s *Set) Reserve(tag Tag, size int) error {
	return s.take("pool reserve", tag, size)
}

func (s *Set) take(op string, tag Tag, size int) error {
	if size < 0 {
		return fault.New(fault.OutOfRange, op, string(tag), "negative size %d", size)
	}
	s.m.Lock()
	defer s.m.Unlock()
	p, ok := s.m.pools[tag]
	if !ok {
		return fault.New(fault.NotFound, op, string(tag), "unknown pool")
	}
	if p.Used+size > p.Capacity {
		return fault.New(fault.AllocationError, op, string(tag), "%d bytes requested, %d of %d used", size, p.Used, p.Capacity)
	}
	p.Used += size
	p.Allocs++
	if p.Used > p.Peak {
		p.Peak = p.Used
	}
	return nil
}

// Free returns block to its pool. Double free of the same block is not
// detected.
func (s *Set) Free(b Block) {
	s.Release(b.Tag, len(b.Data))
}

// Release returns size bytes to the pool.
func (s *Set) Release(tag Tag, size int) {
	s.m.Lock()
	defer s.m.Unlock()
	p, ok := s.m.pools[tag]
	if !ok {
		return
	}
	p.Used -= size
	if p.Used < 0 {
		p.Used = 0
	}
	p.Frees++
}

// Has returns true if pool with provided tag exists.
func (s *Set) Has(tag Tag) bool {
	s.m.Lock()
	defer s.m.Unlock()
	_, ok := s.m.pools[tag]
	return ok
}

// Stats returns stats of all pools sorted by tag.
func (s *Set) Stats() []Stats {
	s.m.Lock()
	defer s.m.Unlock()
	stats := make([]Stats, 0, len(s.m.pools))
	for _, p := range s.m.pools {
		stats = append(stats, p.Stats)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Tag < stats[j].Tag
	})
	return stats
}

func (st Stats) String() string {
	return fmt.Sprintf("%s: used %d/%d peak %d allocs %d frees %d", st.Tag, st.Used, st.Capacity, st.Peak, st.Allocs, st.Frees)
}
