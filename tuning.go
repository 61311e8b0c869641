package audiochain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/mutable"
	"pipelined.dev/audiochain/param"
)

// Common config keys of every algo.
const (
	KeyDescription = "description"
	KeyControlCb   = "controlCb"
	KeyUserData    = "userData"
	KeyEnabled     = "enabled"
)

// Template kinds of algo params.
const (
	StaticParam  = "static"
	DynamicParam = "dynamic"
	ControlParam = "control"
)

// tuned resolves algo for config operation. Algo lock is held on return
// without error.
func (e *Engine) tuned(op string, a AlgoRef) (*node, error) {
	e.mu.Lock()
	n, err := e.node(op, a)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	return n, nil
}

// lookupParam finds field in dynamic, then in static template.
func lookupParam(n *node, key string) (*param.Template, param.Field, error) {
	if f, err := n.desc.Dynamic.Lookup(key); err == nil {
		return n.desc.Dynamic, f, nil
	}
	f, err := n.desc.Static.Lookup(key)
	if err != nil {
		return nil, param.Field{}, fault.New(fault.NotFound, "lookup param", key, "unknown to %s", n.desc.Name)
	}
	return n.desc.Static, f, nil
}

// SetConfig sets algo param with clamp policy of the engine.
func (e *Engine) SetConfig(a AlgoRef, key, value string) error {
	return e.SetConfigPolicy(a, key, value, e.policy)
}

// SetConfigPolicy sets algo param with provided clamp policy. While pipe
// is stopped, live config is updated. While pipe is playing, the value is
// staged and applied by RequestUpdate. Clamped value returns Warning.
func (e *Engine) SetConfigPolicy(a AlgoRef, key, value string, p param.Policy) error {
	const op = "set config"
	n, err := e.tuned(op, a)
	if err != nil {
		return err
	}
	t, f, err := lookupParam(n, key)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	l := e.log.WithFields(logrus.Fields{"algo": n.name, "key": key})
	static := t == n.desc.Static
	if !e.IsPlaying() {
		err = t.Set(n.live(static), key, value, p)
		n.mu.Unlock()
		l.WithError(err).Debugf("cold set %s", value)
		return err
	}
	if err := e.hot(n, f); err != nil {
		n.mu.Unlock()
		return err
	}
	err = t.Set(n.shadow(static), key, value, p)
	n.mu.Unlock()
	l.WithError(err).Debugf("hot set %s", value)
	if fault.IsOK(err) && f.Has(param.WantApply) {
		if _, applyErr := e.RequestUpdate(a); fault.IsError(applyErr) {
			return applyErr
		}
	}
	return err
}

// hot checks that algo accepts hot config. Must be called with algo lock
// held.
func (e *Engine) hot(n *node, f param.Field) error {
	const op = "hot set config"
	switch {
	case !e.settings.Tuning:
		return fault.New(fault.InvalidState, op, n.name, "tuning is disabled")
	case n.flags.Has(DisableTuning):
		return fault.New(fault.InvalidState, op, n.name, "tuning is disabled for algo")
	case f.Has(param.StopGraph):
		return fault.New(fault.InvalidState, op, f.Name, "param requires stopped pipe")
	}
	return nil
}

// live returns live config. Must be called with algo lock held.
func (n *node) live(static bool) any {
	if static {
		return n.static
	}
	return n.dynamic
}

// shadow returns staged config, creating it from live one. Must be called
// with algo lock held.
func (n *node) shadow(static bool) any {
	if static {
		if n.shadowStatic == nil {
			n.shadowStatic = n.desc.Static.Clone(n.static)
		}
		return n.shadowStatic
	}
	if n.shadowDynamic == nil {
		n.shadowDynamic = n.desc.Dynamic.Clone(n.dynamic)
	}
	return n.shadowDynamic
}

// SetConfigPtr assigns whole static or dynamic config. The type of cfg
// selects the template. It's only allowed while pipe is not playing.
func (e *Engine) SetConfigPtr(a AlgoRef, cfg any) error {
	const op = "set config ptr"
	n, err := e.tuned(op, a)
	if err != nil {
		return err
	}
	defer n.mu.Unlock()
	if st := e.state.load(); st == Playing || st == Cleanup {
		return fault.New(fault.InvalidState, op, n.name, "pipe is %v", st)
	}
	switch {
	case n.desc.Static.Owns(cfg):
		return n.desc.Static.Assign(n.static, cfg)
	case n.desc.Dynamic.Owns(cfg):
		return n.desc.Dynamic.Assign(n.dynamic, cfg)
	}
	return fault.New(fault.Incompatible, op, n.name, "%T is not a config of %s", cfg, n.desc.Name)
}

// GetConfig returns live value of algo param. Dynamic template is looked
// up first.
func (e *Engine) GetConfig(a AlgoRef, key string) (string, error) {
	n, err := e.tuned("get config", a)
	if err != nil {
		return "", err
	}
	defer n.mu.Unlock()
	t, _, err := lookupParam(n, key)
	if err != nil {
		return "", err
	}
	return t.Get(n.live(t == n.desc.Static), key)
}

// ResetDefault restores default values of algo configs. While pipe is
// playing, defaults are staged and applied by RequestUpdate.
func (e *Engine) ResetDefault(a AlgoRef) error {
	const op = "reset default"
	n, err := e.tuned(op, a)
	if err != nil {
		return err
	}
	defer n.mu.Unlock()
	if !e.IsPlaying() {
		if t := n.desc.Static; t != nil {
			t.Reset(n.static)
		}
		if t := n.desc.Dynamic; t != nil {
			t.Reset(n.dynamic)
		}
		return nil
	}
	if err := e.hot(n, param.Field{}); err != nil {
		return err
	}
	if t := n.desc.Static; t != nil {
		n.shadowStatic = t.New()
	}
	if t := n.desc.Dynamic; t != nil {
		n.shadowDynamic = t.New()
	}
	return nil
}

// RequestUpdate validates staged configs and schedules their commit at
// the next process slot of algo. Returned ticket is passed to the update
// callback with the result of the commit. Inconsistent configs are
// discarded. Nil ticket is returned if nothing is staged.
func (e *Engine) RequestUpdate(a AlgoRef) (uuid.UUID, error) {
	const op = "request update"
	n, err := e.tuned(op, a)
	if err != nil {
		return uuid.Nil, err
	}
	defer n.mu.Unlock()
	if st := e.state.load(); st != Playing {
		return uuid.Nil, fault.New(fault.InvalidState, op, n.name, "pipe is %v", st)
	}
	switch st := n.state.load(); st {
	case Enabled:
	case Disabled:
		n.shadowStatic, n.shadowDynamic = nil, nil
		return uuid.Nil, fault.New(fault.InvalidState, op, n.name, "algo is disabled")
	default:
		return uuid.Nil, fault.New(fault.InvalidState, op, n.name, "algo is %v", st)
	}
	if n.shadowStatic == nil && n.shadowDynamic == nil {
		return uuid.Nil, nil
	}

	static, dynamic := n.static, n.dynamic
	if n.shadowStatic != nil {
		static = n.shadowStatic
	}
	if n.shadowDynamic != nil {
		dynamic = n.shadowDynamic
	}
	var warning error
	if c, ok := n.proc.(algo.ConsistencyChecker); ok {
		staged := *n.ctx
		staged.Static, staged.Dynamic = static, dynamic
		if err := c.CheckConsistency(&staged); fault.IsError(err) {
			n.shadowStatic, n.shadowDynamic = nil, nil
			return uuid.Nil, fmt.Errorf("%s %q: %w", op, n.name, err)
		} else if err != nil {
			warning = err
		}
	}

	kind := mutable.Dynamic
	if n.shadowStatic != nil {
		kind = mutable.Static
	}
	oldStatic, oldDynamic := n.static, n.dynamic
	n.pending = n.pending.Put(n.mctx.Mutate(kind,
		func() error {
			n.static, n.dynamic = static, dynamic
			n.ctx.Static, n.ctx.Dynamic = static, dynamic
			return nil
		},
		func() {
			n.static, n.dynamic = oldStatic, oldDynamic
			n.ctx.Static, n.ctx.Dynamic = oldStatic, oldDynamic
		},
	))
	n.shadowStatic, n.shadowDynamic = nil, nil
	n.ticket = uuid.New()
	to := ApplyConfigRequested
	if n.pending.Kind(n.mctx) == mutable.Static {
		to = ApplyReinitRequested
	}
	if err := e.setState(n, to); err != nil {
		n.pending.Discard(n.mctx)
		return uuid.Nil, err
	}
	e.log.WithFields(logrus.Fields{"algo": n.name, "ticket": n.ticket}).Debugf("%v update requested", kind)
	return n.ticket, warning
}

// SetCommonConfig sets config shared by all algos: description (string),
// controlCb (ControlFunc), userData (any) and enabled (bool or string).
func (e *Engine) SetCommonConfig(a AlgoRef, key string, value any) error {
	const op = "set common config"
	if key == KeyEnabled {
		enabled, err := parseEnabled(value)
		if err != nil {
			return err
		}
		if enabled {
			return e.Enable(a)
		}
		return e.Disable(a)
	}
	n, err := e.tuned(op, a)
	if err != nil {
		return err
	}
	defer n.mu.Unlock()
	switch key {
	case KeyDescription:
		s, ok := value.(string)
		if !ok {
			return fault.New(fault.Incompatible, op, key, "%T is not a string", value)
		}
		n.description = s
	case KeyControlCb:
		fn, ok := value.(ControlFunc)
		if !ok && value != nil {
			if f, isFunc := value.(func(AlgoRef, any)); isFunc {
				fn, ok = ControlFunc(f), true
			}
		}
		if !ok && value != nil {
			return fault.New(fault.Incompatible, op, key, "%T is not a control callback", value)
		}
		n.controlCb = fn
	case KeyUserData:
		n.userData = value
		if n.ctx != nil {
			n.ctx.UserData = value
		}
	default:
		return fault.New(fault.NotFound, op, key, "unknown common key")
	}
	return nil
}

func parseEnabled(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fault.Wrap(fault.OutOfRange, "set common config", KeyEnabled, err)
		}
		return b, nil
	}
	return false, fault.New(fault.Incompatible, "set common config", KeyEnabled, "%T is not a bool", value)
}

// GetCommonConfig returns config shared by all algos.
func (e *Engine) GetCommonConfig(a AlgoRef, key string) (any, error) {
	n, err := e.tuned("get common config", a)
	if err != nil {
		return nil, err
	}
	defer n.mu.Unlock()
	switch key {
	case KeyDescription:
		return n.description, nil
	case KeyControlCb:
		return n.controlCb, nil
	case KeyUserData:
		return n.userData, nil
	case KeyEnabled:
		return n.state.load() != Disabled, nil
	}
	return nil, fault.New(fault.NotFound, "get common config", key, "unknown common key")
}

// GetControl returns value of algo control data.
func (e *Engine) GetControl(a AlgoRef, key string) (string, error) {
	n, err := e.tuned("get control", a)
	if err != nil {
		return "", err
	}
	defer n.mu.Unlock()
	return n.desc.Control.Get(n.control, key)
}

// SetControl sets value of algo control data.
func (e *Engine) SetControl(a AlgoRef, key, value string) error {
	n, err := e.tuned("set control", a)
	if err != nil {
		return err
	}
	defer n.mu.Unlock()
	return n.desc.Control.Set(n.control, key, value, e.policy)
}

// Param is a field of algo template with its current value.
type Param struct {
	Template string
	param.Field
	Value string
}

// Params enumerates static, dynamic and control params of algo. Private
// fields are omitted.
func (e *Engine) Params(a AlgoRef) ([]Param, error) {
	n, err := e.tuned("params", a)
	if err != nil {
		return nil, err
	}
	defer n.mu.Unlock()
	var params []Param
	for _, set := range []struct {
		kind string
		t    *param.Template
		cfg  any
	}{
		{StaticParam, n.desc.Static, n.static},
		{DynamicParam, n.desc.Dynamic, n.dynamic},
		{ControlParam, n.desc.Control, n.control},
	} {
		for _, f := range set.t.Fields() {
			if f.Has(param.Private) {
				continue
			}
			v, err := set.t.Get(set.cfg, f.Name)
			if err != nil {
				return nil, err
			}
			params = append(params, Param{Template: set.kind, Field: f, Value: v})
		}
	}
	return params, nil
}
