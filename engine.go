package audiochain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/config"
	"pipelined.dev/audiochain/internal/arena"
	"pipelined.dev/audiochain/internal/runtime"
	"pipelined.dev/audiochain/log"
	"pipelined.dev/audiochain/metric"
	"pipelined.dev/audiochain/param"
	"pipelined.dev/audiochain/pool"
	"pipelined.dev/audiochain/sysio"
)

// Engine owns a single audio graph: its chunks and algos, play lifecycle,
// scheduler and tuning protocol.
//
// Structure is mutated by host goroutines under the engine lock; tier
// callbacks never take it. Every algo has its own lock that guards its
// callbacks and configs, so commits of one algo never pause the others.
type Engine struct {
	uid      string
	name     string
	log      logrus.FieldLogger
	settings config.Settings
	policy   param.Policy
	registry *algo.Registry
	ports    *sysio.Registry
	pools    *pool.Set
	meter    metric.Meter
	notifier *notifier

	onWarning    WarningFunc
	onUpdate     UpdateFunc
	onTransition TransitionFunc
	onCycles     CyclesFunc

	state pipeState

	// sched serializes cycles with play transitions.
	sched sync.Mutex

	mu        sync.Mutex
	algos     arena.Arena[*node]
	chunks    arena.Arena[*chunkNode]
	created   int
	chunkSeq  int
	plan      *plan
	runCancel context.CancelFunc
	trigger   *runtime.Trigger
}

// New creates a new engine and applies provided options. Returned engine
// is in Built state.
func New(options ...Option) (*Engine, error) {
	e := &Engine{
		uid:      newUID(),
		log:      log.Silent(),
		settings: config.Default(),
	}
	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}
	if e.registry == nil {
		e.registry = &algo.Registry{}
	}
	if e.pools == nil {
		e.pools = pool.NewSet(e.settings.PoolSizes())
	}
	if !e.settings.CyclesMeasure {
		e.meter = nil
	}
	e.policy = e.settings.Policy()
	e.notifier = newNotifier(e.settings.WarningDedup, e.onWarning)
	e.log = e.log.WithField("pipe", e.String())
	e.state.store(Built)
	return e, nil
}

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

// Name of the engine set with WithName option.
func (e *Engine) Name() string {
	return e.name
}

func (e *Engine) String() string {
	if e.name == "" {
		return e.uid
	}
	return fmt.Sprintf("%s %s", e.name, e.uid)
}

// State returns current pipe state.
func (e *Engine) State() PipeState {
	return e.state.load()
}

// IsPlaying returns true if pipe is playing.
func (e *Engine) IsPlaying() bool {
	return e.state.load() == Playing
}

// Settings returns engine settings.
func (e *Engine) Settings() config.Settings {
	return e.settings
}

// Registry returns algo registry of the engine.
func (e *Engine) Registry() *algo.Registry {
	return e.registry
}

// Pools returns memory pools of the engine.
func (e *Engine) Pools() *pool.Set {
	return e.pools
}

// framePeriod returns configured frame period or the shortest frame of
// system chunks.
func (e *Engine) framePeriod() time.Duration {
	if e.settings.FramePeriod > 0 {
		return e.settings.FramePeriod
	}
	var period time.Duration
	e.chunks.Each(func(_ arena.Handle, c *chunkNode) bool {
		if d := c.Descriptor().Duration(); c.IsSystem() && (period == 0 || d < period) {
			period = d
		}
		return true
	})
	return period
}
