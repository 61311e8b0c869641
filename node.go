package audiochain

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/capability"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/internal/arena"
	"pipelined.dev/audiochain/mutable"
	"pipelined.dev/audiochain/pool"
)

// AlgoRef is a handle of algo instance. Handle of deleted instance never
// resolves.
type AlgoRef struct {
	h arena.Handle
}

// IsZero returns true for zero handle.
func (a AlgoRef) IsZero() bool {
	return a.h.IsZero()
}

// CreateFlag modifies algo creation.
type CreateFlag uint8

// Create flags.
const (
	// CreateDisabled creates algo in Disabled state.
	CreateDisabled CreateFlag = 1 << iota
	// DisableTuning rejects hot config of algo.
	DisableTuning
	// DefaultCycleCount reports cycle count of descriptor instead of
	// measured one.
	DefaultCycleCount
)

// Has returns true if all flags are set.
func (f CreateFlag) Has(flags CreateFlag) bool {
	return f&flags == flags
}

// Direction of pin relative to algo.
type Direction uint8

// Pin directions.
const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// node is an algo instance.
type node struct {
	ref         AlgoRef
	name        string
	index       int
	desc        *algo.Descriptor
	flags       CreateFlag
	proc        algo.Processor
	state       algoState
	in, out     []*chunkNode
	inCursors   []int
	reservation pool.Tag

	// processed and controlled count frames for the control tier.
	processed  atomic.Uint64
	controlled atomic.Uint64

	mu            sync.Mutex
	ctx           *algo.Context
	static        any
	dynamic       any
	control       any
	shadowStatic  any
	shadowDynamic any
	pending       mutable.Mutations
	mctx          mutable.Context
	ticket        uuid.UUID
	description   string
	userData      any
	controlCb     ControlFunc
	initialized   bool
	blocks        []pool.Block
}

func (n *node) String() string {
	return n.name
}

// caps returns capabilities of the template.
func (n *node) caps() capability.Capabilities {
	return n.desc.Capabilities
}

// low returns true if algo is processed in the low level tier.
func (n *node) low() bool {
	return n.desc.Capabilities.Prio == capability.PrioLow
}

// newContext returns callback context with pins of connected chunks.
func (n *node) newContext(l logrus.FieldLogger) *algo.Context {
	ctx := &algo.Context{
		Name:     n.name,
		Static:   n.static,
		Dynamic:  n.dynamic,
		Control:  n.control,
		UserData: n.userData,
		Logger:   l.WithField("algo", n.name),
		In:       make([]algo.Pin, len(n.in)),
		Out:      make([]algo.Pin, len(n.out)),
	}
	caps := n.caps()
	for i, c := range n.in {
		ctx.In[i].Name = caps.In.PinName(i)
		if c != nil {
			ctx.In[i].Chunk = c.Name()
			ctx.In[i].Descriptor = c.Descriptor()
		}
	}
	for i, c := range n.out {
		ctx.Out[i].Name = caps.Out.PinName(i)
		if c != nil {
			ctx.Out[i].Chunk = c.Name()
			ctx.Out[i].Descriptor = c.Descriptor()
		}
	}
	return ctx
}

// setState moves algo to a new state and calls the transition hook.
func (e *Engine) setState(n *node, to AlgoState) error {
	from, err := n.state.transition(n.name, to)
	if err != nil {
		return err
	}
	if from != to && e.onTransition != nil {
		e.onTransition(n.ref, from, to)
	}
	return nil
}

// CreateAlgo creates a new instance of registered template. Empty name is
// replaced with template name and instance index. Configs are set to
// template defaults; Init is called when pipe starts playing.
func (e *Engine) CreateAlgo(template, name string, flags CreateFlag, description string) (AlgoRef, error) {
	const op = "algo create"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.mutable(op, template); err != nil {
		return AlgoRef{}, err
	}
	d, err := e.registry.Lookup(template)
	if err != nil {
		return AlgoRef{}, err
	}
	if name == "" {
		name = fmt.Sprintf("%s_%d", template, e.created)
	}
	if _, ok := e.algoByName(name); ok {
		return AlgoRef{}, fault.New(fault.Inconsistent, op, name, "duplicate instance name")
	}
	if d.Capabilities.Misc&capability.SingleInstance != 0 {
		single := true
		e.algos.Each(func(_ arena.Handle, n *node) bool {
			single = n.desc != d
			return single
		})
		if !single {
			return AlgoRef{}, fault.New(fault.Inconsistent, op, name, "%s allows single instance", template)
		}
	}
	tag := e.settings.AlgoPoolTag()
	if err := e.pools.Reserve(tag, d.ConfigSize()); err != nil {
		return AlgoRef{}, fmt.Errorf("algo %q: %w", name, err)
	}
	if e.settings.LogMalloc {
		e.log.WithFields(logrus.Fields{"algo": name, "pool": tag}).Debugf("reserved %d bytes of config", d.ConfigSize())
	}

	n := &node{
		name:        name,
		index:       e.created,
		desc:        d,
		flags:       flags,
		proc:        d.New(),
		reservation: tag,
		description: description,
		mctx:        mutable.Mutable(),
	}
	if d.Static != nil {
		n.static = d.Static.New()
	}
	if d.Dynamic != nil {
		n.dynamic = d.Dynamic.New()
	}
	if d.Control != nil {
		n.control = d.Control.New()
	}
	if flags.Has(CreateDisabled) {
		n.state.v.Store(int32(Disabled))
	} else {
		n.state.v.Store(int32(Enabled))
	}
	n.ref = AlgoRef{h: e.algos.Insert(n)}
	e.created++
	e.log.WithFields(logrus.Fields{"algo": name, "template": template}).Debug("algo created")
	return n.ref, nil
}

// DeleteAlgo disconnects and removes algo.
func (e *Engine) DeleteAlgo(a AlgoRef) error {
	const op = "algo delete"
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.node(op, a)
	if err != nil {
		return err
	}
	if err := e.state.mutable(op, n.name); err != nil {
		return err
	}
	for _, c := range n.in {
		if c != nil {
			c.removeReader(n, -1)
		}
	}
	for _, c := range n.out {
		if c != nil {
			c.writer = nil
		}
	}
	e.pools.Release(n.reservation, n.desc.ConfigSize())
	e.algos.Remove(a.h)
	e.log.WithField("algo", n.name).Debug("algo deleted")
	return nil
}

// node resolves handle. Must be called with engine lock held.
func (e *Engine) node(op string, a AlgoRef) (*node, error) {
	n, ok := e.algos.Get(a.h)
	if !ok {
		return nil, fault.New(fault.NotFound, op, "", "stale or zero algo handle")
	}
	return n, nil
}

func (e *Engine) algoByName(name string) (*node, bool) {
	var found *node
	e.algos.Each(func(_ arena.Handle, n *node) bool {
		if n.name == name {
			found = n
		}
		return found == nil
	})
	return found, found != nil
}

// AlgoByName returns algo instance by name.
func (e *Engine) AlgoByName(name string) (AlgoRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.algoByName(name)
	if !ok {
		return AlgoRef{}, fault.New(fault.NotFound, "algo lookup", name, "no instance")
	}
	return n.ref, nil
}

// AlgoByIndex returns algo instance by its creation index.
func (e *Engine) AlgoByIndex(index int) (AlgoRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var found *node
	e.algos.Each(func(_ arena.Handle, n *node) bool {
		if n.index == index {
			found = n
		}
		return found == nil
	})
	if found == nil {
		return AlgoRef{}, fault.New(fault.NotFound, "algo lookup", fmt.Sprint(index), "no instance")
	}
	return found.ref, nil
}

// AlgoInfo describes algo instance.
type AlgoInfo struct {
	Ref         AlgoRef
	Name        string
	Template    string
	Index       int
	State       AlgoState
	Prio        capability.Prio
	Description string
	In, Out     []string
}

// Algos returns all instances in creation order.
func (e *Engine) Algos() []AlgoInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	var infos []AlgoInfo
	for _, n := range e.nodesByIndex() {
		infos = append(infos, n.info())
	}
	return infos
}

// Algo returns description of algo instance.
func (e *Engine) Algo(a AlgoRef) (AlgoInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.node("algo info", a)
	if err != nil {
		return AlgoInfo{}, err
	}
	return n.info(), nil
}

func (n *node) info() AlgoInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return AlgoInfo{
		Ref:         n.ref,
		Name:        n.name,
		Template:    n.desc.Name,
		Index:       n.index,
		State:       n.state.load(),
		Prio:        n.desc.Capabilities.Prio,
		Description: n.description,
		In:          chunkNames(n.in),
		Out:         chunkNames(n.out),
	}
}

// nodesByIndex returns instances in creation order.
func (e *Engine) nodesByIndex() []*node {
	nodes := make([]*node, 0, e.algos.Len())
	e.algos.Each(func(_ arena.Handle, n *node) bool {
		nodes = append(nodes, n)
		return true
	})
	sortNodes(nodes)
	return nodes
}

func chunkNames(pins []*chunkNode) []string {
	names := make([]string, len(pins))
	for i, c := range pins {
		if c != nil {
			names[i] = c.Name()
		}
	}
	return names
}

// ConnectInput connects chunk to input pin of algo.
func (e *Engine) ConnectInput(a AlgoRef, pin int, c ChunkRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connect(Input, a, pin, c)
}

// ConnectOutput connects chunk to output pin of algo. Chunk can have only
// one writer.
func (e *Engine) ConnectOutput(a AlgoRef, pin int, c ChunkRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connect(Output, a, pin, c)
}

// Connect connects output pin of src and input pin of dst through chunk.
// If input can't be connected, output connection is reverted.
func (e *Engine) Connect(src AlgoRef, outPin int, c ChunkRef, dst AlgoRef, inPin int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.connect(Output, src, outPin, c); err != nil {
		return err
	}
	if err := e.connect(Input, dst, inPin, c); err != nil {
		n, _ := e.node("", src)
		cn, _ := e.chunk("", c)
		n.out[outPin] = nil
		n.out = trimPins(n.out)
		cn.writer = nil
		return err
	}
	return nil
}

func (e *Engine) connect(dir Direction, a AlgoRef, pin int, c ChunkRef) error {
	op := "connect " + dir.String()
	n, err := e.node(op, a)
	if err != nil {
		return err
	}
	cn, err := e.chunk(op, c)
	if err != nil {
		return err
	}
	if err := e.state.mutable(op, n.name); err != nil {
		return err
	}
	caps := n.caps()
	set, ignore := caps.In, capability.IgnorePinIn
	pins := &n.in
	if dir == Output {
		set, ignore = caps.Out, capability.IgnorePinOut
		pins = &n.out
	}
	if max := set.Count.Max(); pin < 0 || (max >= 0 && pin >= max) {
		return fault.New(fault.OutOfRange, op, n.name, "pin %d, template %s has %d", pin, n.desc.Name, max)
	}
	if pin < len(*pins) && (*pins)[pin] != nil {
		return fault.New(fault.InvalidState, op, n.name, "pin %s is connected to %s", set.PinName(pin), (*pins)[pin].Name())
	}
	if dir == Output {
		switch {
		case cn.writer != nil:
			return fault.New(fault.Incompatible, op, cn.Name(), "written by %s", cn.writer.name)
		case !cn.writable():
			return fault.New(fault.Incompatible, op, cn.Name(), "%v chunk is written by host", cn.Kind())
		}
	}
	if caps.Misc&ignore == 0 {
		if err := capability.Check(cn.Descriptor(), set); err != nil {
			return fmt.Errorf("%s %q pin %s: %w", op, n.name, set.PinName(pin), err)
		}
	}
	for len(*pins) <= pin {
		*pins = append(*pins, nil)
	}
	(*pins)[pin] = cn
	if dir == Output {
		cn.writer = n
	} else {
		cn.readers = append(cn.readers, pinRef{node: n, pin: pin})
	}
	e.log.WithFields(logrus.Fields{"algo": n.name, "chunk": cn.Name()}).Debugf("%s pin %s connected", dir, set.PinName(pin))
	return nil
}

// Disconnect removes every connection between algo and chunk.
func (e *Engine) Disconnect(a AlgoRef, c ChunkRef) error {
	const op = "disconnect"
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.node(op, a)
	if err != nil {
		return err
	}
	cn, err := e.chunk(op, c)
	if err != nil {
		return err
	}
	if err := e.state.mutable(op, n.name); err != nil {
		return err
	}
	found := false
	for i, pc := range n.in {
		if pc == cn {
			n.in[i] = nil
			cn.removeReader(n, i)
			found = true
		}
	}
	for i, pc := range n.out {
		if pc == cn {
			n.out[i] = nil
			cn.writer = nil
			found = true
		}
	}
	if !found {
		return fault.New(fault.NotFound, op, n.name, "not connected to %s", cn.Name())
	}
	n.in = trimPins(n.in)
	n.out = trimPins(n.out)
	return nil
}

// trimPins removes trailing unconnected pins.
func trimPins(pins []*chunkNode) []*chunkNode {
	for len(pins) > 0 && pins[len(pins)-1] == nil {
		pins = pins[:len(pins)-1]
	}
	return pins
}

// ConnectedAlgos returns algos connected to chunk. Input direction returns
// readers of chunk, output returns its writer.
func (e *Engine) ConnectedAlgos(c ChunkRef, dir Direction) ([]AlgoRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cn, err := e.chunk("connected algos", c)
	if err != nil {
		return nil, err
	}
	var refs []AlgoRef
	if dir == Output {
		if cn.writer != nil {
			refs = append(refs, cn.writer.ref)
		}
		return refs, nil
	}
	for _, r := range cn.readers {
		refs = append(refs, r.node.ref)
	}
	return refs, nil
}

// Enable moves disabled algo to Enabled state. Enabled algo is not
// changed.
func (e *Engine) Enable(a AlgoRef) error {
	e.mu.Lock()
	n, err := e.node("algo enable", a)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state.load() != Disabled {
		return nil
	}
	return e.setState(n, Enabled)
}

// Disable moves algo to Disabled state. Pending update is discarded and
// reported as failed.
func (e *Engine) Disable(a AlgoRef) error {
	e.mu.Lock()
	n, err := e.node("algo disable", a)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	n.mu.Lock()
	ticket, discarded := n.discard()
	err = e.setState(n, Disabled)
	n.mu.Unlock()
	if discarded {
		e.update(n, ticket, fault.New(fault.InvalidState, "apply config", n.name, "algo disabled"))
	}
	return err
}

// discard drops staged configs and pending mutations. It returns ticket
// of discarded request.
func (n *node) discard() (uuid.UUID, bool) {
	n.shadowStatic, n.shadowDynamic = nil, nil
	if !n.pending.Has(n.mctx) {
		return uuid.Nil, false
	}
	n.pending.Discard(n.mctx)
	ticket := n.ticket
	n.ticket = uuid.Nil
	return ticket, true
}

// describe returns pins of algo for logs.
func (n *node) describe() string {
	return fmt.Sprintf("%s in[%s] out[%s]", n.name, strings.Join(chunkNames(n.in), ","), strings.Join(chunkNames(n.out), ","))
}
