// Package metric accounts execution time of scheduler tiers per node and
// counts engine events. Values are published with expvar.
package metric

import (
	"expvar"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const componentsLabel = "audiochain.cycles"

// Meter receives cycle measurements and engine events.
type Meter interface {
	Cycle(tier, node string, d time.Duration)
	Event(name, node string)
}

// Events counted by the engine.
const (
	// EventReinitOverrun counts reinits that exceeded the cycle budget.
	EventReinitOverrun = "reinit_overrun"
	// EventMissedTrigger counts tier triggers coalesced while the tier
	// was still busy.
	EventMissedTrigger = "missed_trigger"
	// EventUnderflow counts silence inserted on system input.
	EventUnderflow = "underflow"
	// EventOverflow counts frames dropped on system output.
	EventOverflow = "overflow"
	// EventUpdateFailed counts staged configs rejected at commit.
	EventUpdateFailed = "update_failed"
	// EventTierError counts tiers stopped by a callback error.
	EventTierError = "tier_error"
)

// StopFunc stops the measurement started by Start.
type StopFunc func()

// Start begins measurement of a single cycle. Nil meter is allowed.
func Start(m Meter, tier, node string) StopFunc {
	if m == nil {
		return func() {}
	}
	calledAt := time.Now()
	return func() {
		m.Cycle(tier, node, time.Since(calledAt))
	}
}

// Stats of a single node in a single tier.
type Stats struct {
	Tier  string
	Node  string
	Calls int64
	Total time.Duration
	Max   time.Duration
	Last  time.Duration
}

// Average returns average duration of a cycle.
func (s Stats) Average() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Calls)
}

func (s Stats) String() string {
	return fmt.Sprintf("%s/%s: calls %d avg %v max %v last %v", s.Tier, s.Node, s.Calls, s.Average(), s.Max, s.Last)
}

// Expvar is a meter which publishes values with expvar.
type Expvar struct {
	name string
	m    struct {
		sync.Mutex
		cycles map[string]*cycle
		events map[string]*expvar.Int
	}
	vars *expvar.Map
}

type cycle struct {
	tier, node string
	calls      expvar.Int
	total      duration
	max        duration
	last       duration
}

// NewExpvar returns meter published under provided name. If the name is
// already published, the existing variable is reused.
func NewExpvar(name string) *Expvar {
	key := fmt.Sprintf("%s.%s", componentsLabel, name)
	e := Expvar{name: name}
	e.m.cycles = make(map[string]*cycle)
	e.m.events = make(map[string]*expvar.Int)
	if v, ok := expvar.Get(key).(*expvar.Map); ok {
		e.vars = v
	} else {
		e.vars = expvar.NewMap(key)
	}
	return &e
}

// Cycle accounts a single cycle of node in tier.
func (e *Expvar) Cycle(tier, node string, d time.Duration) {
	c := e.cycle(tier, node)
	c.calls.Add(1)
	c.total.add(d)
	c.last.set(d)
	c.max.max(d)
}

// Event increments event counter of node.
func (e *Expvar) Event(name, node string) {
	k := key(node, name)
	e.m.Lock()
	v, ok := e.m.events[k]
	if !ok {
		v = new(expvar.Int)
		e.m.events[k] = v
		e.vars.Set(k, v)
	}
	e.m.Unlock()
	v.Add(1)
}

// Events returns value of event counter of node.
func (e *Expvar) Events(name, node string) int64 {
	e.m.Lock()
	defer e.m.Unlock()
	if v, ok := e.m.events[key(node, name)]; ok {
		return v.Value()
	}
	return 0
}

// Stats returns stats of all measured nodes sorted by tier and node.
func (e *Expvar) Stats() []Stats {
	e.m.Lock()
	defer e.m.Unlock()
	stats := make([]Stats, 0, len(e.m.cycles))
	for _, c := range e.m.cycles {
		stats = append(stats, Stats{
			Tier:  c.tier,
			Node:  c.node,
			Calls: c.calls.Value(),
			Total: c.total.value(),
			Max:   c.max.value(),
			Last:  c.last.value(),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Tier != stats[j].Tier {
			return stats[i].Tier < stats[j].Tier
		}
		return stats[i].Node < stats[j].Node
	})
	return stats
}

func (e *Expvar) cycle(tier, node string) *cycle {
	k := key(tier, node)
	e.m.Lock()
	defer e.m.Unlock()
	if c, ok := e.m.cycles[k]; ok {
		return c
	}
	c := &cycle{tier: tier, node: node}
	e.m.cycles[k] = c
	e.vars.Set(key(k, "calls"), &c.calls)
	e.vars.Set(key(k, "total"), &c.total)
	e.vars.Set(key(k, "max"), &c.max)
	e.vars.Set(key(k, "last"), &c.last)
	return c
}

func key(parts ...string) string {
	return strings.Join(parts, ".")
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)))
}

func (v *duration) value() time.Duration {
	return time.Duration(atomic.LoadInt64(&v.d))
}

func (v *duration) add(delta time.Duration) {
	atomic.AddInt64(&v.d, int64(delta))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}

func (v *duration) max(value time.Duration) {
	for {
		old := atomic.LoadInt64(&v.d)
		if int64(value) <= old || atomic.CompareAndSwapInt64(&v.d, old, int64(value)) {
			return
		}
	}
}
