package audiochain

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/chunk"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/internal/arena"
	"pipelined.dev/audiochain/sysio"
)

// ChunkRef is a handle of chunk. Handle of deleted chunk never resolves.
type ChunkRef struct {
	h arena.Handle
}

// IsZero returns true for zero handle.
func (c ChunkRef) IsZero() bool {
	return c.h.IsZero()
}

// pinRef addresses input pin of algo.
type pinRef struct {
	node *node
	pin  int
}

// chunkNode is a chunk of the graph with its connections.
type chunkNode struct {
	*chunk.Chunk
	ref     ChunkRef
	index   int
	port    *sysio.Port
	writer  *node
	readers []pinRef
	// host is a reader cursor of system output and user sink chunks.
	host    int
	deleted bool
}

// writable returns true if chunk can be written by algo.
func (c *chunkNode) writable() bool {
	k := c.Kind()
	return k != chunk.SystemIn && k != chunk.UserSource
}

// sink returns true if chunk is consumed outside of the graph.
func (c *chunkNode) sink() bool {
	k := c.Kind()
	return k == chunk.SystemOut || k == chunk.UserSink
}

// source returns true if chunk is produced outside of the graph.
func (c *chunkNode) source() bool {
	return !c.writable()
}

// removeReader removes reader pins of node. Negative pin removes all.
func (c *chunkNode) removeReader(n *node, pin int) {
	readers := c.readers[:0]
	for _, r := range c.readers {
		if r.node == n && (pin < 0 || r.pin == pin) {
			continue
		}
		readers = append(readers, r)
	}
	c.readers = readers
}

// CreateChunk creates a new chunk. If name matches a system port, the
// chunk is bound to it and descriptor is taken from the port. Otherwise
// chunk storage is allocated from the chunk pool.
func (e *Engine) CreateChunk(name string, d buffer.Descriptor) (ChunkRef, error) {
	const op = "chunk create"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.mutable(op, name); err != nil {
		return ChunkRef{}, err
	}
	if _, ok := e.chunkByName(name); ok {
		return ChunkRef{}, fault.New(fault.Inconsistent, op, name, "duplicate chunk name")
	}
	var (
		c    *chunk.Chunk
		port *sysio.Port
		err  error
	)
	if p, ok := e.ports.Lookup(name); ok {
		kind := chunk.SystemIn
		if p.Direction() == sysio.Out {
			kind = chunk.SystemOut
		}
		port = p
		c, err = chunk.New(name, p.Descriptor(), kind, p.Pool())
	} else {
		tag := e.settings.ChunkPoolTag()
		if !e.pools.Has(tag) {
			return ChunkRef{}, fault.New(fault.NotFound, op, name, "no pool %s", tag)
		}
		c, err = chunk.New(name, d, chunk.UserInOut, tag)
	}
	if err != nil {
		return ChunkRef{}, err
	}
	if err := e.allocate(c); err != nil {
		return ChunkRef{}, err
	}
	cn := &chunkNode{
		Chunk: c,
		index: e.chunkSeq,
		port:  port,
		host:  -1,
	}
	cn.ref = ChunkRef{h: e.chunks.Insert(cn)}
	e.chunkSeq++
	e.log.WithField("chunk", name).Debugf("chunk created: %v", c)
	return cn.ref, nil
}

// allocate allocates chunk storage.
func (e *Engine) allocate(c *chunk.Chunk) error {
	if err := c.Allocate(e.pools); err != nil {
		return err
	}
	if e.settings.LogMalloc {
		e.log.WithFields(logrus.Fields{"chunk": c.Name(), "pool": c.Pool()}).Debugf("allocated %d bytes", c.Descriptor().Bytes())
	}
	return nil
}

// chunk resolves handle. Must be called with engine lock held.
func (e *Engine) chunk(op string, c ChunkRef) (*chunkNode, error) {
	cn, ok := e.chunks.Get(c.h)
	if !ok || cn.deleted {
		return nil, fault.New(fault.NotFound, op, "", "stale or zero chunk handle")
	}
	return cn, nil
}

func (e *Engine) chunkByName(name string) (*chunkNode, bool) {
	var found *chunkNode
	e.chunks.Each(func(_ arena.Handle, c *chunkNode) bool {
		if !c.deleted && c.Name() == name {
			found = c
		}
		return found == nil
	})
	return found, found != nil
}

// ChunkByName returns chunk by name.
func (e *Engine) ChunkByName(name string) (ChunkRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.chunkByName(name)
	if !ok {
		return ChunkRef{}, fault.New(fault.NotFound, "chunk lookup", name, "no chunk")
	}
	return c.ref, nil
}

// SetChunkConfig sets chunk configuration value. Changes are applied when
// pipe starts playing.
func (e *Engine) SetChunkConfig(c ChunkRef, key, value string) error {
	const op = "chunk set config"
	e.mu.Lock()
	defer e.mu.Unlock()
	cn, err := e.chunk(op, c)
	if err != nil {
		return err
	}
	if err := e.state.mutable(op, cn.Name()); err != nil {
		return err
	}
	if err := cn.Set(key, value); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"chunk": cn.Name(), "key": key}).Debugf("set %s", value)
	return nil
}

// SetChunkDescription sets free-form text of chunk.
func (e *Engine) SetChunkDescription(c ChunkRef, description string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cn, err := e.chunk("chunk set description", c)
	if err != nil {
		return err
	}
	cn.SetDescription(description)
	return nil
}

// GetChunkConfig returns chunk configuration value.
func (e *Engine) GetChunkConfig(c ChunkRef, key string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cn, err := e.chunk("chunk get config", c)
	if err != nil {
		return "", err
	}
	return cn.Get(key)
}

// DeleteChunk removes chunk and its connections. Chunk deleted while pipe
// is playing stays in use until pipe stops.
func (e *Engine) DeleteChunk(c ChunkRef) error {
	const op = "chunk delete"
	e.mu.Lock()
	defer e.mu.Unlock()
	cn, err := e.chunk(op, c)
	if err != nil {
		return err
	}
	if e.state.load() == Playing {
		cn.deleted = true
		return nil
	}
	e.removeChunk(cn)
	return nil
}

// removeChunk disconnects and releases chunk.
func (e *Engine) removeChunk(cn *chunkNode) {
	if w := cn.writer; w != nil {
		for i, pc := range w.out {
			if pc == cn {
				w.out[i] = nil
			}
		}
		w.out = trimPins(w.out)
	}
	for _, r := range cn.readers {
		if r.pin < len(r.node.in) {
			r.node.in[r.pin] = nil
		}
		r.node.in = trimPins(r.node.in)
	}
	cn.Release(e.pools)
	e.chunks.Remove(cn.ref.h)
	e.log.WithField("chunk", cn.Name()).Debug("chunk deleted")
}

// ChunkInfo describes chunk.
type ChunkInfo struct {
	Ref        ChunkRef
	Name       string
	Kind       chunk.Kind
	Descriptor buffer.Descriptor
	Writer     string
	Readers    []string
}

// Chunks returns all chunks in creation order.
func (e *Engine) Chunks() []ChunkInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	var infos []ChunkInfo
	for _, c := range e.chunksByIndex() {
		info := ChunkInfo{
			Ref:        c.ref,
			Name:       c.Name(),
			Kind:       c.Kind(),
			Descriptor: c.Descriptor(),
		}
		if c.writer != nil {
			info.Writer = c.writer.name
		}
		for _, r := range c.readers {
			info.Readers = append(info.Readers, r.node.name)
		}
		infos = append(infos, info)
	}
	return infos
}

func (e *Engine) chunksByIndex() []*chunkNode {
	chunks := make([]*chunkNode, 0, e.chunks.Len())
	e.chunks.Each(func(_ arena.Handle, c *chunkNode) bool {
		if !c.deleted {
			chunks = append(chunks, c)
		}
		return true
	})
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].index < chunks[j].index
	})
	return chunks
}

// hostChunk resolves chunk exchanged with host while pipe is playing.
func (e *Engine) hostChunk(op string, c ChunkRef, kind chunk.Kind, frame []byte) (*chunkNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cn, err := e.chunk(op, c)
	if err != nil {
		return nil, err
	}
	if st := e.state.load(); st != Playing {
		return nil, fault.New(fault.InvalidState, op, cn.Name(), "pipe is %v", st)
	}
	if cn.Kind() != kind {
		return nil, fault.New(fault.InvalidState, op, cn.Name(), "%v chunk", cn.Kind())
	}
	if size := cn.Descriptor().FrameBytes(); len(frame) != size {
		return nil, fault.New(fault.Incompatible, op, cn.Name(), "frame of %d bytes, expected %d", len(frame), size)
	}
	return cn, nil
}

// WriteChunk writes a frame into user source chunk. Full chunk drops the
// frame and returns Warning.
func (e *Engine) WriteChunk(c ChunkRef, frame []byte) error {
	const op = "chunk write"
	cn, err := e.hostChunk(op, c, chunk.UserSource, frame)
	if err != nil {
		return err
	}
	dst := cn.WriteFrame()
	if dst == nil {
		return fault.Warningf(op, cn.Name(), "chunk is full, frame dropped")
	}
	copy(dst, frame)
	cn.CommitWrite()
	return nil
}

// ReadChunk reads a frame of user sink chunk. Empty chunk returns Warning
// and leaves frame untouched.
func (e *Engine) ReadChunk(c ChunkRef, frame []byte) error {
	const op = "chunk read"
	cn, err := e.hostChunk(op, c, chunk.UserSink, frame)
	if err != nil {
		return err
	}
	src := cn.ReadFrame(cn.host)
	if src == nil {
		return fault.Warningf(op, cn.Name(), "chunk is empty")
	}
	copy(frame, src)
	cn.CommitRead(cn.host)
	return nil
}

func (c *chunkNode) String() string {
	return fmt.Sprintf("%v", c.Chunk)
}
