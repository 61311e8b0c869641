package param

import (
	"fmt"
	"sort"
	"unsafe"

	"pipelined.dev/audiochain/fault"
)

// Template is a named table of fields of configuration structure T. It
// creates, copies and resets configurations without knowing T at the call
// site.
type Template struct {
	name     string
	size     int
	fields   []Field
	index    map[string]int
	defaults func() any
	assign   func(dst, src any)
	owns     func(cfg any) bool
}

// NewTemplate returns template of configuration type T. Defaults value is
// copied into every new configuration.
func NewTemplate[T any](name string, defaults T, fields ...Field) *Template {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if _, ok := index[f.Name]; ok {
			panic(fmt.Sprintf("template %s: duplicate field %s", name, f.Name))
		}
		index[f.Name] = i
	}
	return &Template{
		name:   name,
		size:   int(unsafe.Sizeof(defaults)),
		fields: fields,
		index:  index,
		defaults: func() any {
			cfg := defaults
			return &cfg
		},
		assign: func(dst, src any) {
			*dst.(*T) = *src.(*T)
		},
		owns: func(cfg any) bool {
			_, ok := cfg.(*T)
			return ok
		},
	}
}

// Name of the template.
func (t *Template) Name() string {
	return t.name
}

// Size returns the size of configuration structure in bytes.
func (t *Template) Size() int {
	if t == nil {
		return 0
	}
	return t.size
}

// Fields returns fields sorted by name.
func (t *Template) Fields() []Field {
	if t == nil {
		return nil
	}
	fields := make([]Field, len(t.fields))
	copy(fields, t.fields)
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].Name < fields[j].Name
	})
	return fields
}

// New returns configuration with default values.
func (t *Template) New() any {
	return t.defaults()
}

// Clone returns a copy of configuration.
func (t *Template) Clone(cfg any) any {
	c := t.defaults()
	t.assign(c, cfg)
	return c
}

// Assign copies src configuration into dst.
func (t *Template) Assign(dst, src any) error {
	if !t.owns(dst) || !t.owns(src) {
		return fault.New(fault.Incompatible, "assign config", t.name, "%T to %T", src, dst)
	}
	t.assign(dst, src)
	return nil
}

// Reset restores default values of configuration.
func (t *Template) Reset(cfg any) {
	t.assign(cfg, t.defaults())
}

// Owns returns true if cfg has the configuration type of template.
func (t *Template) Owns(cfg any) bool {
	return t != nil && t.owns(cfg)
}

// Lookup returns field by name.
func (t *Template) Lookup(name string) (Field, error) {
	if t == nil {
		return Field{}, fault.New(fault.NotFound, "lookup param", name, "no template")
	}
	i, ok := t.index[name]
	if !ok {
		return Field{}, fault.New(fault.NotFound, "lookup param", name, "not in %s", t.name)
	}
	return t.fields[i], nil
}

// Set parses value and assigns it to the field of cfg. Clamped values
// return Warning error and still update the field.
func (t *Template) Set(cfg any, name, value string, p Policy) error {
	f, err := t.Lookup(name)
	if err != nil {
		return err
	}
	if f.Has(Disabled) {
		return fault.New(fault.ReadOnly, opSet, name, "disabled")
	}
	if !t.owns(cfg) {
		return fault.New(fault.Incompatible, opSet, name, "%T is not %s", cfg, t.name)
	}
	return f.set(cfg, value, p)
}

// Get returns formatted value of the field of cfg.
func (t *Template) Get(cfg any, name string) (string, error) {
	f, err := t.Lookup(name)
	if err != nil {
		return "", err
	}
	if !t.owns(cfg) {
		return "", fault.New(fault.Incompatible, "get param", name, "%T is not %s", cfg, t.name)
	}
	return f.get(cfg), nil
}

// ResetFlagged restores default values of fields which have flags.
func (t *Template) ResetFlagged(cfg any, flags Flag) {
	if !t.Owns(cfg) {
		return
	}
	for _, f := range t.fields {
		if f.Has(flags) {
			// defaults are in range
			_ = f.set(cfg, f.Default, Clamp)
		}
	}
}

// Value is a named formatted field value.
type Value struct {
	Name  string
	Group string
	Value string
}

// Dump returns values of cfg sorted by name. Private fields are omitted.
func (t *Template) Dump(cfg any) []Value {
	if t == nil || !t.owns(cfg) {
		return nil
	}
	var values []Value
	for _, f := range t.Fields() {
		if f.Has(Private) {
			continue
		}
		values = append(values, Value{Name: f.Name, Group: f.Group, Value: f.get(cfg)})
	}
	return values
}
