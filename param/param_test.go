package param_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/audiochain/fault"
	"pipelined.dev/audiochain/param"
)

type mode uint8

type config struct {
	Gain   float32
	Taps   uint16
	Delay  int
	Mute   bool
	Mode   mode
	Label  string
	Serial int
	Secret int
}

var template = param.NewTemplate("test",
	config{Gain: 1, Taps: 16, Label: "x"},
	param.Float("gain", func(c *config) *float32 { return &c.Gain }, 0, 4, 1),
	param.Int("taps", func(c *config) *uint16 { return &c.Taps }, 1, 256, 16),
	param.Int("delay", func(c *config) *int { return &c.Delay }, -10, 10, 0),
	param.Bool("mute", func(c *config) *bool { return &c.Mute }, false),
	param.Enum("mode", func(c *config) *mode { return &c.Mode }, []param.KeyValue{
		{Key: "off", Value: 0},
		{Key: "soft", Value: 1},
		{Key: "hard", Value: 2},
	}, 0),
	param.String("label", func(c *config) *string { return &c.Label }, 4, "x"),
	param.Int("serial", func(c *config) *int { return &c.Serial }, 0, 100, 0).With(param.Disabled),
	param.Int("secret", func(c *config) *int { return &c.Secret }, 0, 100, 42).With(param.Private|param.AlwaysDefault).InGroup("hidden"),
)

func TestSet(t *testing.T) {
	var tests = []struct {
		name     string
		value    string
		policy   param.Policy
		expected string
		kind     fault.Kind
	}{
		{name: "gain", value: "2.5", expected: "2.5"},
		{name: "gain", value: "7", expected: "4", kind: fault.Warning},
		{name: "gain", value: "7", policy: param.Reject, expected: "1", kind: fault.OutOfRange},
		{name: "taps", value: "0", expected: "1", kind: fault.Warning},
		{name: "taps", value: "-3", expected: "1", kind: fault.Warning},
		{name: "taps", value: "1.5", expected: "16", kind: fault.OutOfRange},
		{name: "delay", value: "-20", expected: "-10", kind: fault.Warning},
		{name: "mute", value: "true", expected: "true"},
		{name: "mute", value: "maybe", expected: "false", kind: fault.OutOfRange},
		{name: "mode", value: "HARD", expected: "hard"},
		{name: "mode", value: "1", expected: "soft"},
		{name: "mode", value: "loud", expected: "off", kind: fault.OutOfRange},
		{name: "label", value: "abcdef", expected: "abcd", kind: fault.Warning},
		{name: "label", value: "abcdef", policy: param.Reject, expected: "x", kind: fault.OutOfRange},
		{name: "label", value: "aéé", expected: "aé", kind: fault.Warning},
		{name: "taps", value: "1e2", expected: "100"},
		{name: "serial", value: "1", expected: "0", kind: fault.ReadOnly},
	}
	for _, test := range tests {
		cfg := template.New()
		err := template.Set(cfg, test.name, test.value, test.policy)
		if test.kind == fault.Unknown {
			assert.NoError(t, err)
		} else {
			assert.Equal(t, test.kind, fault.KindOf(err), "%s=%s: %v", test.name, test.value, err)
		}
		v, err := template.Get(cfg, test.name)
		assert.NoError(t, err)
		assert.Equal(t, test.expected, v, "%s=%s", test.name, test.value)
	}
}

func TestSetWideIntegers(t *testing.T) {
	type wide struct {
		ID    int64
		Stamp uint64
	}
	tmpl := param.NewTemplate("wide", wide{},
		param.Int("id", func(c *wide) *int64 { return &c.ID }, math.MinInt64, 1<<62, 0),
		param.Int("stamp", func(c *wide) *uint64 { return &c.Stamp }, 1, math.MaxUint64, 1),
	)
	var tests = []struct {
		name     string
		value    string
		expected string
		kind     fault.Kind
	}{
		{name: "id", value: "4611686018427387903", expected: "4611686018427387903"},
		{name: "id", value: "-9223372036854775808", expected: "-9223372036854775808"},
		{name: "id", value: "4611686018427387905", expected: "4611686018427387904", kind: fault.Warning},
		{name: "id", value: "-99999999999999999999999", expected: "-9223372036854775808", kind: fault.Warning},
		{name: "stamp", value: "18446744073709551615", expected: "18446744073709551615"},
		{name: "stamp", value: "18446744073709551613", expected: "18446744073709551613"},
		{name: "stamp", value: "99999999999999999999999", expected: "18446744073709551615", kind: fault.Warning},
		{name: "stamp", value: "-1", expected: "1", kind: fault.Warning},
	}
	for _, test := range tests {
		cfg := tmpl.New()
		err := tmpl.Set(cfg, test.name, test.value, param.Clamp)
		if test.kind == fault.Unknown {
			assert.NoError(t, err)
		} else {
			assert.Equal(t, test.kind, fault.KindOf(err), "%s=%s: %v", test.name, test.value, err)
		}
		v, err := tmpl.Get(cfg, test.name)
		assert.NoError(t, err)
		assert.Equal(t, test.expected, v, "%s=%s", test.name, test.value)
	}
}

func TestLookup(t *testing.T) {
	f, err := template.Lookup("taps")
	assert.NoError(t, err)
	assert.Equal(t, param.TypeInt, f.Type)
	assert.Equal(t, float64(256), f.Max)
	assert.Equal(t, "16", f.Default)

	_, err = template.Lookup("volume")
	assert.True(t, errors.Is(err, fault.ErrNotFound))

	var nilTemplate *param.Template
	_, err = nilTemplate.Lookup("taps")
	assert.True(t, errors.Is(err, fault.ErrNotFound))
}

func TestCloneReset(t *testing.T) {
	cfg := template.New().(*config)
	cfg.Gain = 3
	clone := template.Clone(cfg).(*config)
	assert.Equal(t, *cfg, *clone)
	clone.Taps = 3
	assert.Equal(t, uint16(16), cfg.Taps)

	template.Reset(clone)
	assert.Equal(t, config{Gain: 1, Taps: 16, Label: "x"}, *clone)
	assert.Equal(t, "test", template.Name())

	assert.NoError(t, template.Assign(cfg, clone))
	assert.Equal(t, float32(1), cfg.Gain)
	err := template.Assign(cfg, &struct{}{})
	assert.True(t, errors.Is(err, fault.ErrIncompatible))
	_, err = template.Get(&struct{}{}, "gain")
	assert.True(t, errors.Is(err, fault.ErrIncompatible))
}

func TestDump(t *testing.T) {
	values := template.Dump(template.New())
	assert.Len(t, values, 7)
	assert.Equal(t, param.Value{Name: "delay", Value: "0"}, values[0])
	assert.Equal(t, "taps", values[len(values)-1].Name)
	assert.Len(t, template.Fields(), 8)
}

func TestFlags(t *testing.T) {
	f, err := template.Lookup("secret")
	assert.NoError(t, err)
	assert.True(t, f.Has(param.Private))
	assert.False(t, f.Has(param.Private|param.Tool))
	assert.Equal(t, "private|alwaysDefault", f.Flags.String())
	assert.Equal(t, "hidden", f.Group)

	cfg := template.New().(*config)
	template.ResetFlagged(cfg, param.AlwaysDefault)
	assert.Equal(t, 42, cfg.Secret)
	assert.Zero(t, cfg.Serial)
}

func TestParsePolicy(t *testing.T) {
	p, err := param.ParsePolicy("Reject")
	assert.NoError(t, err)
	assert.Equal(t, param.Reject, p)
	p, err = param.ParsePolicy("")
	assert.NoError(t, err)
	assert.Equal(t, param.Clamp, p)
	_, err = param.ParsePolicy("wrap")
	assert.Error(t, err)
}
