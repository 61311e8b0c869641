// Package chunk provides the data-exchange object of the audio graph: a
// named ring of frames shaped by a buffer descriptor.
//
// A chunk has at most one writer and any number of readers. The writer
// fills the frame at the write position and commits it; every reader keeps
// its own cursor, so a frame is released only when all readers consumed
// it. Positions are atomic sequence numbers, which lets the writer and the
// readers live in different scheduling tiers without locks: a slot is
// never written while it's still readable by any reader.
package chunk

import (
	"fmt"
	"strings"
	"sync/atomic"

	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/pool"
)

// Kind of the chunk.
type Kind uint8

// Chunk kinds.
const (
	UserInOut Kind = iota
	UserSource
	UserSink
	SystemIn
	SystemOut
)

var kindNames = map[Kind]string{
	UserInOut:  "user_inout",
	UserSource: "user_src",
	UserSink:   "user_sink",
	SystemIn:   "sys_in",
	SystemOut:  "sys_out",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsSystem returns true for chunks bound to system I/O.
func (k Kind) IsSystem() bool {
	return k == SystemIn || k == SystemOut
}

// ParseKind parses user chunk kind. System kinds cannot be assigned.
func ParseKind(s string) (Kind, error) {
	for k, v := range kindNames {
		if strings.EqualFold(v, s) {
			if k.IsSystem() {
				return 0, fault.New(fault.ReadOnly, "parse chunk type", s, "system type cannot be assigned")
			}
			return k, nil
		}
	}
	return 0, fault.New(fault.OutOfRange, "parse chunk type", s, "unknown type")
}

// Configuration keys of chunk which are not descriptor fields.
const (
	KeyKind = "chunkType"
	KeyPool = "pool"
)

// Chunk is a pooled ring buffer of frames.
type Chunk struct {
	name        string
	description string
	desc        buffer.Descriptor
	kind        Kind
	tag         pool.Tag

	block   pool.Block
	frames  [][]byte
	pending bool

	writes  atomic.Uint64
	cursors []*atomic.Uint64
}

// New returns chunk that is not allocated yet.
func New(name string, d buffer.Descriptor, kind Kind, tag pool.Tag) (*Chunk, error) {
	if name == "" {
		return nil, fault.New(fault.NotFound, "chunk create", name, "empty name")
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("chunk %q: %w", name, err)
	}
	return &Chunk{
		name:    name,
		desc:    d,
		kind:    kind,
		tag:     tag,
		pending: true,
	}, nil
}

// Name of the chunk. Unique within a pipe.
func (c *Chunk) Name() string {
	return c.name
}

// Description is a free-form text.
func (c *Chunk) Description() string {
	return c.description
}

// SetDescription sets free-form text.
func (c *Chunk) SetDescription(s string) {
	c.description = s
}

// Descriptor returns buffer descriptor of the chunk.
func (c *Chunk) Descriptor() buffer.Descriptor {
	return c.desc
}

// Kind returns the kind of the chunk.
func (c *Chunk) Kind() Kind {
	return c.kind
}

// IsSystem returns true if chunk is bound to system I/O.
func (c *Chunk) IsSystem() bool {
	return c.kind.IsSystem()
}

// Pool returns the tag of the pool chunk is allocated from.
func (c *Chunk) Pool() pool.Tag {
	return c.tag
}

// Pending returns true if configuration changed since last allocation.
func (c *Chunk) Pending() bool {
	return c.pending
}

// Allocated returns true if chunk has backing storage.
func (c *Chunk) Allocated() bool {
	return c.frames != nil
}

// Set mutates configuration of the chunk. System chunks are read-only.
// Changes take effect on the next allocation.
func (c *Chunk) Set(key, value string) error {
	const op = "chunk set config"
	if c.IsSystem() {
		return fault.New(fault.ReadOnly, op, c.name, "system chunk")
	}
	switch key {
	case KeyKind:
		k, err := ParseKind(value)
		if err != nil {
			return err
		}
		c.kind = k
		return nil
	case KeyPool:
		tag, err := pool.ParseTag(value)
		if err != nil {
			return err
		}
		c.tag = tag
	default:
		d := c.desc
		if err := d.Set(key, value); err != nil {
			return fmt.Errorf("chunk %q: %w", c.name, err)
		}
		c.desc = d
	}
	c.pending = true
	return nil
}

// Get returns configuration value of the chunk.
func (c *Chunk) Get(key string) (string, error) {
	switch key {
	case KeyKind:
		return c.kind.String(), nil
	case KeyPool:
		return string(c.tag), nil
	}
	return c.desc.Get(key)
}

// Allocate backing storage from the pool set. Previously allocated storage
// is released first.
func (c *Chunk) Allocate(s *pool.Set) error {
	c.Release(s)
	b, err := s.Alloc(c.tag, c.desc.Bytes())
	if err != nil {
		return fmt.Errorf("chunk %q: %w", c.name, err)
	}
	c.block = b
	frameBytes := c.desc.FrameBytes()
	c.frames = make([][]byte, c.desc.FrameCount)
	for i := range c.frames {
		c.frames[i] = b.Data[i*frameBytes : (i+1)*frameBytes : (i+1)*frameBytes]
	}
	c.pending = false
	c.Reset()
	return nil
}

// Release returns backing storage to the pool set.
func (c *Chunk) Release(s *pool.Set) {
	if c.frames == nil {
		return
	}
	s.Free(c.block)
	c.block = pool.Block{}
	c.frames = nil
	c.pending = true
}

// AddReader registers a new reader cursor and returns its index.
func (c *Chunk) AddReader() int {
	cur := &atomic.Uint64{}
	cur.Store(c.writes.Load())
	c.cursors = append(c.cursors, cur)
	return len(c.cursors) - 1
}

// Readers returns number of registered reader cursors.
func (c *Chunk) Readers() int {
	return len(c.cursors)
}

// ClearReaders removes all reader cursors.
func (c *Chunk) ClearReaders() {
	c.cursors = nil
}

// Reset clears frames and positions.
func (c *Chunk) Reset() {
	for i := range c.frames {
		clear(c.frames[i])
	}
	c.writes.Store(0)
	for _, cur := range c.cursors {
		cur.Store(0)
	}
}

// released returns the sequence number of the oldest frame still readable
// by any reader.
func (c *Chunk) released() uint64 {
	oldest := c.writes.Load()
	for _, cur := range c.cursors {
		if r := cur.Load(); r < oldest {
			oldest = r
		}
	}
	return oldest
}

// Space returns number of frames that can be written.
func (c *Chunk) Space() int {
	return len(c.frames) - int(c.writes.Load()-c.released())
}

// Available returns number of frames ready for reader r.
func (c *Chunk) Available(r int) int {
	return int(c.writes.Load() - c.cursors[r].Load())
}

// WriteFrame returns the frame at the write position. Nil is returned if
// ring is full.
func (c *Chunk) WriteFrame() []byte {
	if c.Space() < 1 {
		return nil
	}
	return c.frames[c.writes.Load()%uint64(len(c.frames))]
}

// CommitWrite publishes the frame at the write position to readers.
func (c *Chunk) CommitWrite() {
	c.writes.Add(1)
}

// ReadFrame returns the oldest frame unread by reader r. Nil is returned
// if no frame is available.
func (c *Chunk) ReadFrame(r int) []byte {
	cur := c.cursors[r].Load()
	if c.writes.Load() == cur {
		return nil
	}
	return c.frames[cur%uint64(len(c.frames))]
}

// CommitRead releases the oldest frame of reader r.
func (c *Chunk) CommitRead(r int) {
	c.cursors[r].Add(1)
}

// Written returns total number of committed frames.
func (c *Chunk) Written() uint64 {
	return c.writes.Load()
}

func (c *Chunk) String() string {
	return fmt.Sprintf("%s [%v %v pool=%s]", c.name, c.kind, c.desc, c.tag)
}
