// Package algo defines the contract between the engine and processing
// algorithms.
//
// An algorithm is registered as a Descriptor: its name, pin capabilities,
// configuration templates and a constructor. Every instance created from a
// descriptor is a Processor driven by the engine through its lifecycle:
// Init when the pipe starts playing or the algo is reinitialized, Configure
// after any configuration change, Process once per frame and Deinit when
// the pipe stops. Optional callbacks are discovered by interface assertion.
package algo

import (
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/audiochain/buffer"
	"pipelined.dev/audiochain/capability"
	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/param"
)

type (
	// Processor is the mandatory set of algo callbacks.
	Processor interface {
		// Init allocates algo resources for the current static config
		// and pins.
		Init(*Context) error
		// Deinit releases algo resources.
		Deinit(*Context) error
		// Configure applies dynamic config. It's called after Init and
		// after every dynamic update.
		Configure(*Context) error
		// Process consumes a frame of every input and produces a frame of
		// every output.
		Process(*Context) error
	}

	// DataInOuter is implemented by algos which exchange data with the
	// host in the DataInOut tier.
	DataInOuter interface {
		DataInOut(*Context) error
	}

	// Controller is implemented by algos which publish control results.
	// Control is called after process of the same frame completed.
	Controller interface {
		Control(*Context) error
	}

	// ConsistencyChecker is implemented by algos with jointly constrained
	// fields. It's called for staged configs before they're committed.
	ConsistencyChecker interface {
		CheckConsistency(*Context) error
	}

	// Disabler is implemented by algos whose config can make them a no-op.
	// Such algos are bypassed instead of processed.
	Disabler interface {
		IsDisabled(*Context) bool
	}
)

// Descriptor is a factory of algo instances.
type Descriptor struct {
	Name         string
	Description  string
	Capabilities capability.Capabilities
	// Static config changes require reinit.
	Static *param.Template
	// Dynamic config changes are applied on the fly.
	Dynamic *param.Template
	// Control holds results published by the algo.
	Control *param.Template
	// CycleCount is the expected cost of a single process call in
	// nanoseconds. It's reported instead of measured time when algo is
	// created with default cycle count.
	CycleCount int
	// New returns a new instance.
	New func() Processor
}

// Cost returns expected duration of a single process call.
func (d *Descriptor) Cost() time.Duration {
	return time.Duration(d.CycleCount) * time.Nanosecond
}

// ConfigSize returns the number of bytes of static and dynamic configs.
func (d *Descriptor) ConfigSize() int {
	return d.Static.Size() + d.Dynamic.Size()
}

// Validate checks descriptor fields required by engine.
func (d *Descriptor) Validate() error {
	const op = "validate algo"
	switch {
	case d.Name == "":
		return fault.New(fault.Inconsistent, op, d.Name, "empty name")
	case d.New == nil:
		return fault.New(fault.Inconsistent, op, d.Name, "no constructor")
	case d.Capabilities.Prio == 0:
		return fault.New(fault.Inconsistent, op, d.Name, "no priority level")
	}
	return nil
}

// Pin is a connection of algo to chunk. Frame is set only for the
// duration of tier callbacks.
type Pin struct {
	Name       string
	Chunk      string
	Descriptor buffer.Descriptor
	Frame      []byte
}

// Context is passed to every algo callback. Configs point to the live
// configuration of the instance.
type Context struct {
	Name     string
	Static   any
	Dynamic  any
	Control  any
	In       []Pin
	Out      []Pin
	UserData any
	Logger   logrus.FieldLogger
	// Alloc returns zeroed memory from the algo pool. It's valid only in
	// Init; the memory is returned when algo is deinitialized.
	Alloc func(size int) ([]byte, error)
}

// Bypass copies every input frame to the output with the same index, if
// both have the same frame size. Other outputs are zeroed.
func Bypass(ctx *Context) {
	for i := range ctx.Out {
		out := ctx.Out[i].Frame
		if i < len(ctx.In) && len(ctx.In[i].Frame) == len(out) {
			copy(out, ctx.In[i].Frame)
			continue
		}
		clear(out)
	}
}
