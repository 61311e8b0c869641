package audiochain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/internal/runtime"
	"pipelined.dev/audiochain/metric"
)

// Tier is a scheduling priority class.
type Tier uint8

// Tiers in priority order.
const (
	DataInOut Tier = iota
	Process
	ProcessLowLevel
	Control
)

var tierNames = [...]string{
	DataInOut:       "dataInOut",
	Process:         "process",
	ProcessLowLevel: "processLowLevel",
	Control:         "control",
}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return fmt.Sprintf("tier(%d)", t)
}

// Cycle executes every tier once in priority order in the calling
// goroutine. It's used by hosts that drive the graph from their own
// frame clock.
func (e *Engine) Cycle(ctx context.Context) error {
	e.sched.Lock()
	defer e.sched.Unlock()
	p := e.plan
	if p == nil || e.state.load() != Playing {
		return fault.New(fault.InvalidState, "cycle", e.String(), "pipe is %v", e.state.load())
	}
	if err := p.line.Execute(ctx); err != nil {
		return e.fail(err)
	}
	return nil
}

// cycleLine returns tiers executed by Cycle in priority order.
func (e *Engine) cycleLine(p *plan) runtime.Line {
	return runtime.Line{Executors: []runtime.Executor{
		e.tierExecutor(DataInOut, p, e.dataInOut, nil),
		e.tierExecutor(Process, p, e.processTier(Process), nil),
		e.tierExecutor(ProcessLowLevel, p, e.processTier(ProcessLowLevel), nil),
		e.tierExecutor(Control, p, e.controlTier, nil),
	}}
}

// tierExecutor binds tier function to the plan. Signals of trigger missed
// by the tier are reported when executor is flushed.
func (e *Engine) tierExecutor(tier Tier, p *plan, fn func(context.Context, *plan) error, t *runtime.Trigger) runtime.Executor {
	l := e.log.WithField("tier", tier)
	return runtime.Func{
		StartFunc: func(context.Context) error {
			l.Trace("tier started")
			return nil
		},
		ExecuteFunc: func(ctx context.Context) error {
			return fn(ctx, p)
		},
		FlushFunc: func(context.Context) error {
			if t != nil {
				if missed := t.Missed(); missed > 0 {
					l.Warnf("%d triggers missed", missed)
				}
			}
			l.Trace("tier flushed")
			return nil
		},
	}
}

// Run executes every tier in its own goroutine until context is done,
// pipe is stopped or any tier fails. DataInOut is triggered every frame
// period, or by Trigger if frame period is zero; every tier triggers the
// tiers below it when its cycle completes. Tier failure stops the pipe.
func (e *Engine) Run(ctx context.Context) error {
	e.sched.Lock()
	defer e.sched.Unlock()
	p := e.plan
	if p == nil || e.state.load() != Playing {
		return fault.New(fault.InvalidState, "run", e.String(), "pipe is %v", e.state.load())
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(p.ctx, cancel)()

	var (
		dataIO   = runtime.NewTrigger()
		process  = runtime.NewTrigger()
		lowLevel = runtime.NewTrigger()
		control  = runtime.NewTrigger()
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runtime.Run(gctx, e.tierExecutor(DataInOut, p, e.dataInOut, dataIO), dataIO, process)
	})
	if e.settings.LowLatency {
		// low level algos are already in the process tier
		g.Go(func() error {
			return runtime.Run(gctx, e.tierExecutor(Process, p, e.processTier(Process), process), process, control)
		})
	} else {
		g.Go(func() error {
			return runtime.Run(gctx, e.tierExecutor(Process, p, e.processTier(Process), process), process, lowLevel, control)
		})
		g.Go(func() error {
			return runtime.Run(gctx, e.tierExecutor(ProcessLowLevel, p, e.processTier(ProcessLowLevel), lowLevel), lowLevel, control)
		})
	}
	g.Go(func() error {
		return runtime.Run(gctx, e.tierExecutor(Control, p, e.controlTier, control), control)
	})
	if period := e.settings.FramePeriod; period > 0 {
		g.Go(func() error {
			return e.clock(gctx, period, dataIO)
		})
	} else {
		e.mu.Lock()
		e.trigger = dataIO
		e.mu.Unlock()
		defer func() {
			e.mu.Lock()
			e.trigger = nil
			e.mu.Unlock()
		}()
	}
	if e.onCycles != nil && e.settings.CyclesCallbackTimeout > 0 {
		if r, ok := e.meter.(interface{ Stats() []metric.Stats }); ok {
			g.Go(func() error {
				t := time.NewTicker(e.settings.CyclesCallbackTimeout)
				defer t.Stop()
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-t.C:
						e.onCycles(r.Stats())
					}
				}
			})
		}
	}
	e.log.Debug("running")
	if err := g.Wait(); err != nil {
		e.event(metric.EventTierError, e.String())
		return e.fail(err)
	}
	e.log.Debug("run done")
	return nil
}

// clock fires trigger every period.
func (e *Engine) clock(ctx context.Context, period time.Duration, t *runtime.Trigger) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !t.Fire() {
				e.event(metric.EventMissedTrigger, DataInOut.String())
			}
		}
	}
}

// Trigger starts a DataInOut cycle of running engine. It's used when
// frame period is zero and frames are clocked by the host. False is
// returned if engine is not running or previous trigger is still pending.
func (e *Engine) Trigger() bool {
	e.mu.Lock()
	t := e.trigger
	e.mu.Unlock()
	if t == nil {
		return false
	}
	if !t.Fire() {
		e.event(metric.EventMissedTrigger, DataInOut.String())
		return false
	}
	return true
}

// measure starts cycle measurement of node in tier.
func (e *Engine) measure(tier Tier, name string) metric.StopFunc {
	if !e.settings.LogCycles {
		return metric.Start(e.meter, tier.String(), name)
	}
	started := time.Now()
	return func() {
		d := time.Since(started)
		if e.meter != nil {
			e.meter.Cycle(tier.String(), name, d)
		}
		l := e.log.WithFields(logrus.Fields{"tier": tier, "algo": name})
		if timeout := e.settings.CyclesMeasureTimeout; timeout > 0 && d > timeout {
			l.Warnf("cycle took %v", d)
		} else {
			l.Tracef("cycle took %v", d)
		}
	}
}

// measureNode starts cycle measurement of algo. Algos created with
// DefaultCycleCount report the cost of their descriptor instead.
func (e *Engine) measureNode(tier Tier, n *node) metric.StopFunc {
	if !n.flags.Has(DefaultCycleCount) {
		return e.measure(tier, n.name)
	}
	return func() {
		if e.meter != nil {
			e.meter.Cycle(tier.String(), n.name, n.desc.Cost())
		}
	}
}

// dataInOut moves one frame per system port between ports and chunks and
// calls DataInOut of algos.
func (e *Engine) dataInOut(_ context.Context, p *plan) error {
	defer e.measure(DataInOut, "sysio")()
	for _, c := range p.inputs {
		if !c.port.Available() {
			continue
		}
		frame := c.WriteFrame()
		if frame == nil {
			e.event(metric.EventOverflow, c.Name())
			e.warn(c.Name(), fault.Warningf("data in", c.Name(), "chunk is full, frame left in port"))
			continue
		}
		if !c.port.Pull(frame) {
			e.event(metric.EventUnderflow, c.Name())
			e.warn(c.Name(), fault.Warningf("data in", c.Name(), "underflow, silence inserted"))
		}
		c.CommitWrite()
	}
	for _, c := range p.outputs {
		frame := c.ReadFrame(c.host)
		if frame == nil || !c.port.Available() {
			continue
		}
		if !c.port.Push(frame) {
			e.event(metric.EventOverflow, c.Name())
			e.warn(c.Name(), fault.Warningf("data out", c.Name(), "overflow, frame dropped"))
		}
		c.CommitRead(c.host)
	}
	for _, n := range p.dataIO {
		if err := e.dataInOutNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) dataInOutNode(n *node) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.state.load().processes() {
		return nil
	}
	defer e.measureNode(DataInOut, n)()
	if err := n.proc.(algo.DataInOuter).DataInOut(n.ctx); fault.IsError(err) {
		return fmt.Errorf("algo %q data in out: %w", n.name, err)
	}
	return nil
}

// processTier returns function that runs process slots of the tier.
func (e *Engine) processTier(tier Tier) func(context.Context, *plan) error {
	return func(_ context.Context, p *plan) error {
		nodes := p.process
		if tier == ProcessLowLevel {
			nodes = p.lowLevel
		}
		for _, n := range nodes {
			if err := e.slot(tier, n, p); err != nil {
				return err
			}
		}
		return nil
	}
}

// result is a commit result reported after algo lock is released.
type result struct {
	ticket uuid.UUID
	err    error
}

// slot commits pending update of algo and processes a frame if algo is
// ready.
func (e *Engine) slot(tier Tier, n *node, p *plan) error {
	n.mu.Lock()
	var (
		res *result
		err error
	)
	switch n.state.load() {
	case Disabled:
		skip(n)
	case ApplyReinitOnGoing:
	case ApplyConfigRequested:
		res, err = e.commitDynamic(n)
		if err == nil {
			err = e.process(tier, n)
		}
	case ApplyReinitRequested:
		// process is withheld until the next slot
		res, err = e.commitStatic(n, p.budget)
	case ApplyReinitCompleted:
		if err = e.setState(n, Enabled); err == nil {
			err = e.process(tier, n)
		}
	case Enabled:
		err = e.process(tier, n)
	}
	n.mu.Unlock()
	if res != nil {
		e.update(n, res.ticket, res.err)
	}
	return err
}

// skip releases every frame available to a node that doesn't process, so
// writers of its inputs are never held by its cursors. Must be called with
// algo lock held.
func skip(n *node) {
	for i, c := range n.in {
		if c == nil {
			continue
		}
		for c.Available(n.inCursors[i]) > 0 {
			c.CommitRead(n.inCursors[i])
		}
	}
}

// commitDynamic swaps staged dynamic config and configures algo. Failed
// configure restores the last good config. Must be called with algo lock
// held.
func (e *Engine) commitDynamic(n *node) (*result, error) {
	res := &result{ticket: n.ticket}
	undo, err := n.pending.ApplyTo(n.mctx)
	if err == nil {
		if err = n.proc.Configure(n.ctx); fault.IsError(err) {
			undo()
			if restoreErr := n.proc.Configure(n.ctx); fault.IsError(restoreErr) {
				return nil, fmt.Errorf("algo %q restore config: %w", n.name, restoreErr)
			}
		} else if err != nil {
			e.warn(n.name, err)
			err = nil
		}
	}
	res.err = err
	n.ticket = uuid.Nil
	return res, e.setState(n, Enabled)
}

// commitStatic reinitializes algo with staged static config. Failed init
// restores the last good config. Reinit longer than budget is reported,
// but never aborted. Must be called with algo lock held.
func (e *Engine) commitStatic(n *node, budget time.Duration) (*result, error) {
	res := &result{ticket: n.ticket}
	n.ticket = uuid.Nil
	if err := e.setState(n, ApplyReinitOnGoing); err != nil {
		return nil, err
	}
	started := time.Now()
	if err := e.deinitProcessor(n); err != nil {
		return nil, fmt.Errorf("algo %q deinit: %w", n.name, err)
	}
	undo, err := n.pending.ApplyTo(n.mctx)
	if err == nil {
		err = validatePins(n)
	}
	var warnings []error
	if err == nil {
		warnings, err = e.initProcessor(n)
	}
	if err != nil {
		if n.initialized {
			if deinitErr := e.deinitProcessor(n); deinitErr != nil {
				err = errors.Join(err, fmt.Errorf("algo %q deinit: %w", n.name, deinitErr))
			}
		}
		undo()
		if _, restoreErr := e.initProcessor(n); restoreErr != nil {
			return nil, fmt.Errorf("algo %q restore: %w", n.name, restoreErr)
		}
		res.err = err
		return res, e.setState(n, Enabled)
	}
	for _, w := range warnings {
		e.warn(n.name, w)
	}
	if elapsed := time.Since(started); budget > 0 && elapsed > budget {
		e.event(metric.EventReinitOverrun, n.name)
		e.log.WithField("algo", n.name).Warnf("reinit took %v, budget %v", elapsed, budget)
	}
	return res, e.setState(n, ApplyReinitCompleted)
}

// process runs algo on a frame if every input has a frame and every
// output has space. Must be called with algo lock held.
func (e *Engine) process(tier Tier, n *node) error {
	for i, c := range n.in {
		if c != nil && c.Available(n.inCursors[i]) < 1 {
			return nil
		}
	}
	for _, c := range n.out {
		if c.Space() < 1 {
			return nil
		}
	}
	ctx := n.ctx
	for i, c := range n.in {
		if c != nil {
			ctx.In[i].Frame = c.ReadFrame(n.inCursors[i])
		}
	}
	for i, c := range n.out {
		ctx.Out[i].Frame = c.WriteFrame()
	}

	stop := e.measureNode(tier, n)
	var err error
	if d, ok := n.proc.(algo.Disabler); ok && d.IsDisabled(ctx) {
		algo.Bypass(ctx)
	} else {
		err = n.proc.Process(ctx)
	}
	stop()

	for i := range ctx.In {
		ctx.In[i].Frame = nil
	}
	for i := range ctx.Out {
		ctx.Out[i].Frame = nil
	}
	if fault.IsError(err) {
		return fmt.Errorf("algo %q process: %w", n.name, err)
	}
	for i, c := range n.in {
		if c != nil {
			c.CommitRead(n.inCursors[i])
		}
	}
	for _, c := range n.out {
		c.CommitWrite()
	}
	n.processed.Add(1)
	return nil
}

// controlTier calls control callbacks of algos processed since the last
// control cycle.
func (e *Engine) controlTier(_ context.Context, p *plan) error {
	for _, n := range p.order {
		processed := n.processed.Load()
		if processed == n.controlled.Load() {
			continue
		}
		n.controlled.Store(processed)
		if err := e.controlNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) controlNode(n *node) error {
	n.mu.Lock()
	if c, ok := n.proc.(algo.Controller); ok {
		stop := e.measure(Control, n.name)
		err := c.Control(n.ctx)
		stop()
		if fault.IsError(err) {
			n.mu.Unlock()
			return fmt.Errorf("algo %q control: %w", n.name, err)
		}
	}
	cb, control := n.controlCb, n.control
	if cb != nil && n.desc.Control != nil {
		control = n.desc.Control.Clone(n.control)
	}
	n.mu.Unlock()
	if cb != nil {
		cb(n.ref, control)
	}
	return nil
}
