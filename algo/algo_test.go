package algo_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/capability"
	"pipelined.dev/audiochain/fault"
)

type nop struct{}

func (nop) Init(*algo.Context) error      { return nil }
func (nop) Deinit(*algo.Context) error    { return nil }
func (nop) Configure(*algo.Context) error { return nil }
func (nop) Process(*algo.Context) error   { return nil }

func descriptor(name string) algo.Descriptor {
	return algo.Descriptor{
		Name:         name,
		Capabilities: capability.Capabilities{Prio: capability.PrioNormal},
		New:          func() algo.Processor { return nop{} },
	}
}

func TestRegistry(t *testing.T) {
	r, err := algo.NewRegistry(descriptor("b"), descriptor("a"))
	assert.NoError(t, err)

	d, err := r.Lookup("a")
	assert.NoError(t, err)
	assert.Equal(t, "a", d.Name)
	assert.Zero(t, d.ConfigSize())

	_, err = r.Lookup("c")
	assert.True(t, errors.Is(err, fault.ErrNotFound))

	err = r.Register(descriptor("a"))
	assert.True(t, errors.Is(err, fault.ErrInconsistent))

	names := []string{}
	for _, d := range r.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)

	assert.Panics(t, func() { r.MustRegister(descriptor("b")) })
}

func TestValidate(t *testing.T) {
	var tests = []struct {
		mutate func(*algo.Descriptor)
		valid  bool
	}{
		{mutate: func(*algo.Descriptor) {}, valid: true},
		{mutate: func(d *algo.Descriptor) { d.Name = "" }},
		{mutate: func(d *algo.Descriptor) { d.New = nil }},
		{mutate: func(d *algo.Descriptor) { d.Capabilities.Prio = 0 }},
	}
	for _, test := range tests {
		d := descriptor("x")
		test.mutate(&d)
		err := d.Validate()
		if test.valid {
			assert.NoError(t, err)
		} else {
			assert.True(t, errors.Is(err, fault.ErrInconsistent))
		}
	}
}

func TestBypass(t *testing.T) {
	ctx := &algo.Context{
		In: []algo.Pin{
			{Frame: []byte{1, 2, 3}},
			{Frame: []byte{4}},
		},
		Out: []algo.Pin{
			{Frame: make([]byte, 3)},
			{Frame: []byte{9, 9}},
			{Frame: []byte{7}},
		},
	}
	algo.Bypass(ctx)
	assert.Equal(t, []byte{1, 2, 3}, ctx.Out[0].Frame)
	assert.Equal(t, []byte{0, 0}, ctx.Out[1].Frame)
	assert.Equal(t, []byte{0}, ctx.Out[2].Frame)
}
