package audiochain

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"pipelined.dev/audiochain/metric"
)

type (
	// WarningFunc receives warnings. Subject is the name of algo, chunk or
	// port the warning refers to.
	WarningFunc func(subject string, err error)

	// UpdateFunc receives the result of a staged config commit. Ticket is
	// the value returned by RequestUpdate; err is nil if config was
	// committed.
	UpdateFunc func(a AlgoRef, ticket uuid.UUID, err error)

	// ControlFunc receives a copy of control data of algo after its
	// control callback.
	ControlFunc func(a AlgoRef, control any)

	// CyclesFunc receives cycle stats.
	CyclesFunc func([]metric.Stats)
)

// sweepThreshold is the number of cached warnings that triggers removal
// of expired ones.
const sweepThreshold = 1024

// notifier delivers warnings. Equal warnings are delivered once per dedup
// period.
type notifier struct {
	fn     WarningFunc
	recent *cache.Cache
}

func newNotifier(dedup time.Duration, fn WarningFunc) *notifier {
	n := notifier{fn: fn}
	if dedup > 0 {
		// no janitor, expired items are swept on demand
		n.recent = cache.New(dedup, 0)
	}
	return &n
}

// warn logs and delivers warning. False is returned if the warning was
// suppressed.
func (n *notifier) warn(l logrus.FieldLogger, subject string, err error) bool {
	if n.recent != nil {
		if n.recent.ItemCount() > sweepThreshold {
			n.recent.DeleteExpired()
		}
		if n.recent.Add(subject+": "+err.Error(), struct{}{}, cache.DefaultExpiration) != nil {
			return false
		}
	}
	l.WithError(err).Warn(subject)
	if n.fn != nil {
		n.fn(subject, err)
	}
	return true
}

// warn reports warning of subject.
func (e *Engine) warn(subject string, err error) {
	e.notifier.warn(e.log, subject, err)
}

// event counts engine event of node.
func (e *Engine) event(name, node string) {
	if e.meter != nil {
		e.meter.Event(name, node)
	}
}

// update reports commit result.
func (e *Engine) update(n *node, ticket uuid.UUID, err error) {
	if err != nil {
		e.event(metric.EventUpdateFailed, n.name)
		e.log.WithFields(logrus.Fields{"algo": n.name, "ticket": ticket}).WithError(err).Warn("config update rejected")
	} else {
		e.log.WithFields(logrus.Fields{"algo": n.name, "ticket": ticket}).Debug("config updated")
	}
	if e.onUpdate != nil {
		e.onUpdate(n.ref, ticket, err)
	}
}
