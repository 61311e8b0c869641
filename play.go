package audiochain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/capability"
	"pipelined.dev/audiochain/chunk"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/internal/arena"
	"pipelined.dev/audiochain/internal/runtime"
	"pipelined.dev/audiochain/param"
)

// plan is the fixed schedule of playing session.
type plan struct {
	order    []*node
	process  []*node
	lowLevel []*node
	dataIO   []*node
	inputs   []*chunkNode
	outputs  []*chunkNode
	// budget is the advisory duration of reinit.
	budget time.Duration
	// ctx is done when stop is requested.
	ctx context.Context
	// line executes tiers in the host cycle.
	line runtime.Line
}

// Play executes command. Start initializes the graph and makes it
// schedulable; warnings of initialization are returned as fault.List and
// don't prevent playing. Stop and Clean tear down tuning and then the
// graph; Clean also releases storage of chunks. Stop and Clean are
// idempotent.
func (e *Engine) Play(ctx context.Context, cmd Command) error {
	switch cmd {
	case Start:
		e.sched.Lock()
		defer e.sched.Unlock()
		e.mu.Lock()
		defer e.mu.Unlock()
		err := e.start(ctx)
		var errPlay *ErrorPlay
		if errors.As(err, &errPlay) {
			e.state.store(Stopped)
		}
		return err
	case Stop, Clean:
		e.mu.Lock()
		cancel := e.runCancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		e.sched.Lock()
		defer e.sched.Unlock()
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.stop(cmd == Clean)
	}
	return fault.New(fault.OutOfRange, "play", cmd.String(), "unknown command")
}

func (e *Engine) start(ctx context.Context) error {
	const op = "play"
	if st := e.state.load(); st != Built && st != Stopped {
		return fault.New(fault.InvalidState, op, e.String(), "pipe is %v", st)
	}
	var warnings fault.List

	chunks := e.chunksByIndex()
	for _, c := range chunks {
		if !c.Pending() {
			continue
		}
		if err := e.allocate(c.Chunk); err != nil {
			return &ErrorPlay{Node: c.Name(), ErrInit: err}
		}
	}

	order, err := executionOrder(e.nodesByIndex())
	if err != nil {
		return &ErrorPlay{ErrInit: err}
	}
	w, err := e.validate(order, chunks)
	if err != nil {
		return err
	}
	warnings = warnings.Append(w...)
	attachReaders(order, chunks)

	for i, n := range order {
		w, err := e.initNode(n)
		if err != nil {
			e.log.WithField("algo", n.name).WithError(err).Error("init failed")
			return &ErrorPlay{Node: n.name, ErrInit: err, ErrRollback: e.deinitNodes(order[:i+1])}
		}
		warnings = warnings.Append(w...)
	}

	p := &plan{
		order:  order,
		budget: e.framePeriod() * time.Duration(e.settings.ReinitBudgetPercent) / 100,
	}
	for _, n := range order {
		if e.settings.LowLatency || !n.low() {
			p.process = append(p.process, n)
		} else {
			p.lowLevel = append(p.lowLevel, n)
		}
		if _, ok := n.proc.(algo.DataInOuter); ok {
			p.dataIO = append(p.dataIO, n)
		}
	}
	for _, c := range chunks {
		switch c.Kind() {
		case chunk.SystemIn:
			p.inputs = append(p.inputs, c)
		case chunk.SystemOut:
			p.outputs = append(p.outputs, c)
		}
		if c.port != nil {
			c.port.Reset()
		}
	}
	p.line = e.cycleLine(p)
	if err := p.line.Start(ctx); err != nil {
		return &ErrorPlay{Node: e.String(), ErrInit: err, ErrRollback: e.deinitNodes(order)}
	}
	p.ctx, e.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	e.plan = p
	e.state.store(Playing)
	for _, w := range warnings {
		e.warn(e.String(), w)
	}
	e.log.Infof("playing %d algos, %d chunks", len(order), len(chunks))
	return warnings.Ret()
}

// validate checks pins and chunks of the graph. Hard errors are wrapped
// into ErrorPlay.
func (e *Engine) validate(order []*node, chunks []*chunkNode) (fault.List, error) {
	const op = "validate"
	var warnings fault.List
	for _, n := range order {
		if err := validatePins(n); err != nil {
			return nil, &ErrorPlay{Node: n.name, ErrInit: err}
		}
	}
	for _, c := range chunks {
		switch {
		case c.source() && c.writer != nil:
			return nil, &ErrorPlay{Node: c.Name(), ErrInit: fault.New(fault.Incompatible, op, c.Name(), "%v chunk is written by %s", c.Kind(), c.writer.name)}
		case !c.source() && c.writer == nil && len(c.readers) > 0:
			return nil, &ErrorPlay{Node: c.Name(), ErrInit: fault.New(fault.Inconsistent, op, c.Name(), "chunk has readers but no writer")}
		case c.writer != nil && len(c.readers) == 0 && !c.sink():
			warnings = append(warnings, fault.Warningf(op, c.Name(), "chunk is never read"))
		}
	}

	// every algo fed from outside of the graph must feed outside of the
	// graph as well, unless it has no outputs
	reaches := make(map[*node]bool, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		outputs := 0
		for _, c := range n.out {
			if c == nil {
				continue
			}
			outputs++
			if c.sink() {
				reaches[n] = true
			}
			for _, r := range c.readers {
				if reaches[r.node] {
					reaches[n] = true
				}
			}
		}
		if outputs == 0 {
			reaches[n] = true
		}
	}
	fed := make(map[*node]bool, len(order))
	for _, n := range order {
		for _, c := range n.in {
			if c != nil && (c.source() || (c.writer != nil && fed[c.writer])) {
				fed[n] = true
			}
		}
		if fed[n] && !reaches[n] {
			return nil, &ErrorPlay{Node: n.name, ErrInit: fault.New(fault.Inconsistent, op, n.name, "output never reaches a sink")}
		}
	}
	return warnings, nil
}

// validatePins checks multiplicity, capabilities and consistency of pins.
func validatePins(n *node) error {
	const op = "validate pins"
	caps := n.caps()
	optional := caps.Misc&capability.OptionalInputs != 0
	var in, out []buffer.Descriptor
	for i, c := range n.in {
		if c == nil {
			if optional {
				continue
			}
			return fault.New(fault.Inconsistent, op, n.name, "input %s is not connected", caps.In.PinName(i))
		}
		in = append(in, c.Descriptor())
	}
	for i, c := range n.out {
		if c == nil {
			return fault.New(fault.Inconsistent, op, n.name, "output %s is not connected", caps.Out.PinName(i))
		}
		out = append(out, c.Descriptor())
	}
	if !optional && !caps.In.Count.Accepts(len(in)) {
		return fault.New(fault.Inconsistent, op, n.name, "%d inputs connected", len(in))
	}
	if !caps.Out.Count.Accepts(len(out)) {
		return fault.New(fault.Inconsistent, op, n.name, "%d outputs connected", len(out))
	}
	if caps.Misc&capability.IgnorePinIn == 0 {
		for _, d := range in {
			if err := capability.Check(d, caps.In); err != nil {
				return fmt.Errorf("%s %q: %w", op, n.name, err)
			}
		}
	}
	if caps.Misc&capability.IgnorePinOut == 0 {
		for _, d := range out {
			if err := capability.Check(d, caps.Out); err != nil {
				return fmt.Errorf("%s %q: %w", op, n.name, err)
			}
		}
	}
	for _, d := range in[min(1, len(in)):] {
		if err := buffer.Compatible(in[0], d, caps.Consistency.In); err != nil {
			return fmt.Errorf("%s %q: %w", op, n.name, err)
		}
	}
	for _, d := range out[min(1, len(out)):] {
		if err := buffer.Compatible(out[0], d, caps.Consistency.Out); err != nil {
			return fmt.Errorf("%s %q: %w", op, n.name, err)
		}
	}
	if len(in) > 0 && len(out) > 0 {
		if err := buffer.Compatible(in[0], out[0], caps.Consistency.InOut); err != nil {
			return fmt.Errorf("%s %q: %w", op, n.name, err)
		}
	}
	return nil
}

// attachReaders registers reader cursors of chunks for algos and host.
func attachReaders(order []*node, chunks []*chunkNode) {
	for _, c := range chunks {
		c.ClearReaders()
		c.Reset()
		c.host = -1
		if c.sink() {
			c.host = c.AddReader()
		}
	}
	for _, n := range order {
		n.inCursors = make([]int, len(n.in))
		for i, c := range n.in {
			if c != nil {
				n.inCursors[i] = c.AddReader()
			}
		}
	}
}

// initNode initializes algo for a new playing session.
func (e *Engine) initNode(n *node) (fault.List, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.processed.Store(0)
	n.controlled.Store(0)
	n.shadowStatic, n.shadowDynamic = nil, nil
	n.pending = nil
	initDefault := n.caps().Misc&capability.InitDefault != 0
	for _, c := range []struct {
		t   *param.Template
		cfg any
	}{{n.desc.Static, n.static}, {n.desc.Dynamic, n.dynamic}} {
		switch {
		case c.t == nil:
		case initDefault:
			c.t.Reset(c.cfg)
		default:
			c.t.ResetFlagged(c.cfg, param.AlwaysDefault)
		}
	}
	n.ctx = n.newContext(e.log)
	return e.initProcessor(n)
}

// initProcessor calls Init, Configure and CheckConsistency of algo with
// its live config. Must be called with algo lock held.
func (e *Engine) initProcessor(n *node) (fault.List, error) {
	var warnings fault.List
	collect := func(err error) error {
		if fault.IsWarning(err) {
			warnings = append(warnings, err)
			return nil
		}
		return err
	}
	n.ctx.Static, n.ctx.Dynamic, n.ctx.Control = n.static, n.dynamic, n.control
	n.ctx.UserData = n.userData
	n.ctx.Alloc = func(size int) ([]byte, error) {
		b, err := e.pools.Alloc(n.reservation, size)
		if err != nil {
			return nil, fmt.Errorf("algo %q: %w", n.name, err)
		}
		if e.settings.LogMalloc {
			n.ctx.Logger.WithField("pool", b.Tag).Debugf("allocated %d bytes", size)
		}
		n.blocks = append(n.blocks, b)
		return b.Data, nil
	}
	if e.settings.LogInit {
		n.ctx.Logger.WithFields(logrus.Fields{
			"static":  spew.Sdump(n.static),
			"dynamic": spew.Sdump(n.dynamic),
		}).Debugf("init %s", n.describe())
	}
	if err := collect(n.proc.Init(n.ctx)); err != nil {
		e.freeBlocks(n)
		return nil, err
	}
	n.initialized = true
	if err := collect(n.proc.Configure(n.ctx)); err != nil {
		return nil, err
	}
	if c, ok := n.proc.(algo.ConsistencyChecker); ok {
		if err := collect(c.CheckConsistency(n.ctx)); err != nil {
			return nil, err
		}
	}
	return warnings, nil
}

// deinitProcessor calls Deinit and frees algo memory. Must be called with
// algo lock held.
func (e *Engine) deinitProcessor(n *node) error {
	if !n.initialized {
		return nil
	}
	n.initialized = false
	err := n.proc.Deinit(n.ctx)
	e.freeBlocks(n)
	if fault.IsWarning(err) {
		return nil
	}
	return err
}

func (e *Engine) freeBlocks(n *node) {
	for _, b := range n.blocks {
		e.pools.Free(b)
	}
	n.blocks = nil
}

// deinitNodes deinitializes algos in reverse order.
func (e *Engine) deinitNodes(nodes []*node) error {
	var errs fault.List
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		n.mu.Lock()
		if err := e.deinitProcessor(n); err != nil {
			errs = append(errs, fmt.Errorf("algo %q: %w", n.name, err))
		}
		n.mu.Unlock()
	}
	return errs.Ret()
}

// stop tears down tuning, then the graph. Must be called with schedule
// and engine locks held.
func (e *Engine) stop(release bool) error {
	if e.state.load() != Playing {
		if release {
			e.releaseChunks()
		}
		e.state.store(Stopped)
		return nil
	}
	e.state.store(Cleanup)
	p := e.plan
	e.plan = nil
	if e.runCancel != nil {
		e.runCancel()
		e.runCancel = nil
	}

	var tickets []func()
	for _, n := range p.order {
		n.mu.Lock()
		if ticket, ok := n.discard(); ok {
			n := n
			tickets = append(tickets, func() {
				e.update(n, ticket, fault.New(fault.InvalidState, "apply config", n.name, "pipe stopped"))
			})
		}
		if st := n.state.load(); st != Disabled && st != Enabled {
			n.state.v.Store(int32(Enabled))
			if e.onTransition != nil {
				e.onTransition(n.ref, st, Enabled)
			}
		}
		n.mu.Unlock()
	}
	err := errors.Join(p.line.Flush(context.Background()), e.deinitNodes(p.order))

	var deleted []*chunkNode
	e.chunks.Each(func(_ arena.Handle, c *chunkNode) bool {
		if c.deleted {
			deleted = append(deleted, c)
		}
		return true
	})
	for _, c := range deleted {
		e.removeChunk(c)
	}
	if release {
		e.releaseChunks()
	}
	e.state.store(Stopped)
	for _, fn := range tickets {
		fn()
	}
	if err != nil {
		e.log.WithError(err).Error("stopped with errors")
		return err
	}
	e.log.Info("stopped")
	return nil
}

// releaseChunks returns storage of all chunks to pools. Chunks are
// allocated again when pipe starts.
func (e *Engine) releaseChunks() {
	for _, c := range e.chunksByIndex() {
		c.Release(e.pools)
	}
	if e.settings.LogMalloc {
		e.log.Debug("chunks released")
	}
}

// fail stops the pipe after tier error. Must be called with schedule lock
// held.
func (e *Engine) fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.WithError(err).Error("tier failed")
	if stopErr := e.stop(false); stopErr != nil {
		return errors.Join(err, stopErr)
	}
	return err
}
