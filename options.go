package audiochain

import (
	"github.com/sirupsen/logrus"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/config"
	"pipelined.dev/audiochain/metric"
	"pipelined.dev/audiochain/pool"
	"pipelined.dev/audiochain/sysio"
)

// Option provides a way to set functional parameters to engine.
type Option func(*Engine) error

// WithLogger sets logger to engine. If this option is not provided,
// silent logger is used.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) error {
		e.log = logger
		return nil
	}
}

// WithName sets name to engine.
func WithName(n string) Option {
	return func(e *Engine) error {
		e.name = n
		return nil
	}
}

// WithMeter sets meter of cycles and events.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) error {
		e.meter = m
		return nil
	}
}

// WithSettings sets engine settings. Settings are validated.
func WithSettings(s config.Settings) Option {
	return func(e *Engine) error {
		if err := s.Validate(); err != nil {
			return err
		}
		e.settings = s
		return nil
	}
}

// WithRegistry sets registry of algo templates.
func WithRegistry(r *algo.Registry) Option {
	return func(e *Engine) error {
		e.registry = r
		return nil
	}
}

// WithSystemIO sets registry of system ports. Ports can be bound to
// system chunks with the same name.
func WithSystemIO(r *sysio.Registry) Option {
	return func(e *Engine) error {
		e.ports = r
		return nil
	}
}

// WithPools sets memory pools. By default pools are created with sizes
// from settings.
func WithPools(s *pool.Set) Option {
	return func(e *Engine) error {
		e.pools = s
		return nil
	}
}

// WithWarningCallback registers function called on warnings produced by
// the scheduler and commits.
func WithWarningCallback(fn WarningFunc) Option {
	return func(e *Engine) error {
		e.onWarning = fn
		return nil
	}
}

// WithUpdateCallback registers function called when staged config is
// committed or rejected.
func WithUpdateCallback(fn UpdateFunc) Option {
	return func(e *Engine) error {
		e.onUpdate = fn
		return nil
	}
}

// WithTransitionHook registers function called on every algo state
// change. It's called with the algo lock held and must not call engine.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(e *Engine) error {
		e.onTransition = fn
		return nil
	}
}

// WithCyclesCallback registers function called with cycle stats every
// cycles callback timeout while Run is active. Meter must provide stats.
func WithCyclesCallback(fn CyclesFunc) Option {
	return func(e *Engine) error {
		e.onCycles = fn
		return nil
	}
}
