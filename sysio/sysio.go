// Package sysio registers host system I/O ports. A port is exposed to the
// graph as a read-only system chunk with the same name. The host side
// exchanges frames with a port through its FIFO; the DataInOut tier moves
// one frame per port per cycle between the FIFO and the chunk.
package sysio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/smallnest/ringbuffer"

	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/pool"
)

// Direction of the port relative to the graph.
type Direction uint8

// Port directions.
const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// DefaultDepth is the default number of frames a port FIFO holds.
const DefaultDepth = 4

// Port is a system buffer.
type Port struct {
	name       string
	direction  Direction
	descriptor buffer.Descriptor
	tag        pool.Tag
	depth      int
	available  func() bool
	fifo       *ringbuffer.RingBuffer
}

// PortOption configures port.
type PortOption func(*Port)

// WithDepth sets the number of frames in the port FIFO.
func WithDepth(frames int) PortOption {
	return func(p *Port) {
		if frames > 0 {
			p.depth = frames
		}
	}
}

// WithPool sets the pool the system chunk is allocated from.
func WithPool(tag pool.Tag) PortOption {
	return func(p *Port) {
		p.tag = tag
	}
}

// WithAvailability sets callback that reports if the hardware side of
// the port is ready for exchange in the current cycle.
func WithAvailability(fn func() bool) PortOption {
	return func(p *Port) {
		p.available = fn
	}
}

// Name of the port.
func (p *Port) Name() string {
	return p.name
}

// Direction of the port.
func (p *Port) Direction() Direction {
	return p.direction
}

// Descriptor of the port frames.
func (p *Port) Descriptor() buffer.Descriptor {
	return p.descriptor
}

// Pool returns the tag of the pool system chunk is allocated from.
func (p *Port) Pool() pool.Tag {
	return p.tag
}

// Available returns true if port can exchange a frame in this cycle.
func (p *Port) Available() bool {
	return p.available == nil || p.available()
}

// Buffered returns number of frames in the port FIFO.
func (p *Port) Buffered() int {
	return p.fifo.Length() / p.descriptor.FrameBytes()
}

// Reset drops buffered frames.
func (p *Port) Reset() {
	p.fifo.Reset()
}

// Write queues a frame from the host to an input port. Full FIFO drops
// the frame and returns Warning.
func (p *Port) Write(frame []byte) error {
	const op = "port write"
	if p.direction != In {
		return fault.New(fault.InvalidState, op, p.name, "output port")
	}
	if !p.put(frame) {
		return fault.Warningf(op, p.name, "fifo is full, frame dropped")
	}
	return nil
}

// Read takes a frame of an output port. Empty FIFO returns Warning and
// leaves frame untouched.
func (p *Port) Read(frame []byte) error {
	const op = "port read"
	if p.direction != Out {
		return fault.New(fault.InvalidState, op, p.name, "input port")
	}
	if !p.take(frame) {
		return fault.Warningf(op, p.name, "fifo is empty")
	}
	return nil
}

// Pull moves a frame from input FIFO to dst. On underflow dst is filled
// with silence and false is returned.
func (p *Port) Pull(dst []byte) bool {
	if p.take(dst) {
		return true
	}
	clear(dst)
	return false
}

// Push moves src frame to output FIFO. On overflow the frame is dropped
// and false is returned.
func (p *Port) Push(src []byte) bool {
	return p.put(src)
}

func (p *Port) put(frame []byte) bool {
	if len(frame) != p.descriptor.FrameBytes() || p.fifo.Free() < len(frame) {
		return false
	}
	n, err := p.fifo.Write(frame)
	return err == nil && n == len(frame)
}

func (p *Port) take(frame []byte) bool {
	if len(frame) != p.descriptor.FrameBytes() || p.fifo.Length() < len(frame) {
		return false
	}
	n, err := p.fifo.Read(frame)
	return err == nil && n == len(frame)
}

func (p *Port) String() string {
	return fmt.Sprintf("%s %v [%v] depth %d", p.name, p.direction, p.descriptor, p.depth)
}

// Registry holds system ports by name.
type Registry struct {
	m struct {
		sync.Mutex
		ports map[string]*Port
	}
}

// NewRegistry returns empty registry.
func NewRegistry() *Registry {
	r := Registry{}
	r.m.ports = make(map[string]*Port)
	return &r
}

// Register adds a new port.
func (r *Registry) Register(name string, dir Direction, d buffer.Descriptor, options ...PortOption) (*Port, error) {
	const op = "register port"
	if name == "" {
		return nil, fault.New(fault.NotFound, op, name, "empty name")
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("port %q: %w", name, err)
	}
	p := &Port{
		name:       name,
		direction:  dir,
		descriptor: d,
		tag:        pool.TCM,
		depth:      DefaultDepth,
	}
	for _, option := range options {
		option(p)
	}
	p.fifo = ringbuffer.New(p.depth * d.FrameBytes())

	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.m.ports[name]; ok {
		return nil, fault.New(fault.Inconsistent, op, name, "already registered")
	}
	r.m.ports[name] = p
	return p, nil
}

// Lookup returns port by name.
func (r *Registry) Lookup(name string) (*Port, bool) {
	if r == nil {
		return nil, false
	}
	r.m.Lock()
	defer r.m.Unlock()
	p, ok := r.m.ports[name]
	return p, ok
}

// Ports returns all ports sorted by name.
func (r *Registry) Ports() []*Port {
	if r == nil {
		return nil
	}
	r.m.Lock()
	defer r.m.Unlock()
	ports := make([]*Port, 0, len(r.m.ports))
	for _, p := range r.m.ports {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool {
		return ports[i].name < ports[j].name
	})
	return ports
}
