// Package param provides typed accessor tables for algo configuration
// structures.
//
// Each configuration of an algo is a plain Go struct. A Template lists its
// fields, and every Field knows how to parse, range-check and format its
// value, so configurations can be tuned by name from text, files and
// command line.
package param

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"pipelined.dev/audiochain/fault"
)

// Type of the field value.
type Type uint8

// Field types.
const (
	TypeInt Type = iota
	TypeFloat
	TypeBool
	TypeEnum
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeEnum:
		return "enum"
	case TypeString:
		return "string"
	}
	return "unknown"
}

// Policy defines what happens with out of range numeric values.
type Policy uint8

const (
	// Clamp sets the nearest bound and reports a warning.
	Clamp Policy = iota
	// Reject returns OutOfRange error and keeps the value.
	Reject
)

func (p Policy) String() string {
	if p == Reject {
		return "reject"
	}
	return "clamp"
}

// ParsePolicy parses clamp policy name.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clamp":
		return Clamp, nil
	case "reject":
		return Reject, nil
	}
	return Clamp, fault.New(fault.OutOfRange, "parse policy", s, "unknown policy")
}

// Flag alters how field is tuned and listed.
type Flag uint16

const (
	// Disabled fields cannot be set by name.
	Disabled Flag = 1 << iota
	// StopGraph fields can be changed only while pipe is not playing.
	StopGraph
	// WantApply fields request update as soon as they're set.
	WantApply
	// Tool fields are meant for tuning tools only.
	Tool
	// Private fields are not listed in dumps.
	Private
	// AlwaysDefault fields are reset to default when the pipe starts
	// playing.
	AlwaysDefault
)

var flagNames = []string{"disabled", "stopGraph", "wantApply", "tool", "private", "alwaysDefault"}

func (f Flag) String() string {
	var names []string
	for i, n := range flagNames {
		if f&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	return strings.Join(names, "|")
}

// KeyValue maps enum key to its numeric value.
type KeyValue struct {
	Key   string
	Value int64
}

// Integer types accepted by int and enum fields.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Real types accepted by float fields.
type Real interface {
	~float32 | ~float64
}

// Field describes a single tunable parameter of configuration structure.
type Field struct {
	Name        string
	Description string
	Type        Type
	// Min and Max bound numeric values.
	Min, Max float64
	Default  string
	Values   []KeyValue
	Group    string
	Flags    Flag

	get func(cfg any) string
	set func(cfg any, value string, p Policy) error
}

// Describe returns a copy of field with description.
func (f Field) Describe(s string) Field {
	f.Description = s
	return f
}

// With returns a copy of field with flags added.
func (f Field) With(flags Flag) Field {
	f.Flags |= flags
	return f
}

// InGroup returns a copy of field assigned to group.
func (f Field) InGroup(g string) Field {
	f.Group = g
	return f
}

// Has returns true if all flags are set.
func (f Field) Has(flags Flag) bool {
	return f.Flags&flags == flags
}

func (f Field) String() string {
	switch f.Type {
	case TypeInt, TypeFloat:
		return fmt.Sprintf("%s %v [%v..%v] default %s", f.Name, f.Type, f.Min, f.Max, f.Default)
	case TypeEnum:
		keys := make([]string, len(f.Values))
		for i := range f.Values {
			keys[i] = f.Values[i].Key
		}
		return fmt.Sprintf("%s enum {%s} default %s", f.Name, strings.Join(keys, ","), f.Default)
	}
	return fmt.Sprintf("%s %v default %q", f.Name, f.Type, f.Default)
}

const opSet = "set param"

func clampOrReject[V Real](name string, v, min, max V, p Policy) (V, error) {
	if v >= min && v <= max {
		return v, nil
	}
	if p == Reject {
		return v, fault.New(fault.OutOfRange, opSet, name, "%v not in [%v..%v]", v, min, max)
	}
	bound := min
	if v > max {
		bound = max
	}
	return bound, fault.Warningf(opSet, name, "%v clamped to %v", v, bound)
}

// Int returns integer field. Ptr returns the address of the field inside
// configuration structure.
func Int[T any, V Integer](name string, ptr func(*T) *V, min, max, def V) Field {
	return Field{
		Name:    name,
		Type:    TypeInt,
		Min:     float64(min),
		Max:     float64(max),
		Default: fmt.Sprint(def),
		get: func(cfg any) string {
			return fmt.Sprint(*ptr(cfg.(*T)))
		},
		set: func(cfg any, value string, p Policy) error {
			// 256 bits keep 64-bit values exact, integral floats like 1e3
			// are accepted as well
			f, _, err := big.ParseFloat(value, 10, 256, big.ToNearestEven)
			if err != nil {
				return fault.Wrap(fault.OutOfRange, opSet, name, err)
			}
			if !f.IsInt() {
				return fault.New(fault.OutOfRange, opSet, name, "%v is not integer", value)
			}
			parsed, _ := f.Int(nil)
			v, err := clampInteger(name, parsed, min, max, p)
			if p == Reject && err != nil {
				return err
			}
			*ptr(cfg.(*T)) = v
			return err
		},
	}
}

func clampInteger[V Integer](name string, v *big.Int, min, max V, p Policy) (V, error) {
	lo, hi := bigInt(min), bigInt(max)
	if v.Cmp(lo) >= 0 && v.Cmp(hi) <= 0 {
		if v.Sign() < 0 {
			return V(v.Int64()), nil
		}
		return V(v.Uint64()), nil
	}
	if p == Reject {
		return 0, fault.New(fault.OutOfRange, opSet, name, "%v not in [%v..%v]", v, min, max)
	}
	bound := min
	if v.Cmp(hi) > 0 {
		bound = max
	}
	return bound, fault.Warningf(opSet, name, "%v clamped to %v", v, bound)
}

func bigInt[V Integer](v V) *big.Int {
	if v < 0 {
		return big.NewInt(int64(v))
	}
	return new(big.Int).SetUint64(uint64(v))
}

// Float returns floating point field.
func Float[T any, V Real](name string, ptr func(*T) *V, min, max, def V) Field {
	return Field{
		Name:    name,
		Type:    TypeFloat,
		Min:     float64(min),
		Max:     float64(max),
		Default: strconv.FormatFloat(float64(def), 'g', -1, 64),
		get: func(cfg any) string {
			return strconv.FormatFloat(float64(*ptr(cfg.(*T))), 'g', -1, 64)
		},
		set: func(cfg any, value string, p Policy) error {
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fault.Wrap(fault.OutOfRange, opSet, name, err)
			}
			v, err := clampOrReject(name, V(parsed), min, max, p)
			if p == Reject && err != nil {
				return err
			}
			*ptr(cfg.(*T)) = v
			return err
		},
	}
}

// Bool returns boolean field.
func Bool[T any](name string, ptr func(*T) *bool, def bool) Field {
	return Field{
		Name:    name,
		Type:    TypeBool,
		Max:     1,
		Default: strconv.FormatBool(def),
		get: func(cfg any) string {
			return strconv.FormatBool(*ptr(cfg.(*T)))
		},
		set: func(cfg any, value string, _ Policy) error {
			v, err := strconv.ParseBool(value)
			if err != nil {
				return fault.Wrap(fault.OutOfRange, opSet, name, err)
			}
			*ptr(cfg.(*T)) = v
			return nil
		},
	}
}

// Enum returns field which accepts one of the keys or their numeric values.
func Enum[T any, V Integer](name string, ptr func(*T) *V, values []KeyValue, def V) Field {
	key := func(v V) string {
		for _, kv := range values {
			if kv.Value == int64(v) {
				return kv.Key
			}
		}
		return fmt.Sprint(v)
	}
	return Field{
		Name:    name,
		Type:    TypeEnum,
		Values:  values,
		Default: key(def),
		get: func(cfg any) string {
			return key(*ptr(cfg.(*T)))
		},
		set: func(cfg any, value string, _ Policy) error {
			for _, kv := range values {
				if strings.EqualFold(kv.Key, value) || strconv.FormatInt(kv.Value, 10) == value {
					*ptr(cfg.(*T)) = V(kv.Value)
					return nil
				}
			}
			return fault.New(fault.OutOfRange, opSet, name, "unknown value %q", value)
		},
	}
}

// String returns text field limited by max length.
func String[T any](name string, ptr func(*T) *string, maxLen int, def string) Field {
	return Field{
		Name:    name,
		Type:    TypeString,
		Max:     float64(maxLen),
		Default: def,
		get: func(cfg any) string {
			return *ptr(cfg.(*T))
		},
		set: func(cfg any, value string, p Policy) error {
			if maxLen > 0 && len(value) > maxLen {
				if p == Reject {
					return fault.New(fault.OutOfRange, opSet, name, "length %d exceeds %d", len(value), maxLen)
				}
				n := maxLen
				for n > 0 && !utf8.RuneStart(value[n]) {
					n--
				}
				*ptr(cfg.(*T)) = value[:n]
				return fault.Warningf(opSet, name, "truncated to %d bytes", n)
			}
			*ptr(cfg.(*T)) = value
			return nil
		},
	}
}
