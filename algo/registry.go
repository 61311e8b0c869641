package algo

import (
	"fmt"
	"sort"
	"sync"

	"pipelined.dev/audiochain/fault"
)

// Registry maps template names to algo descriptors.
type Registry struct {
	m struct {
		sync.RWMutex
		descriptors map[string]*Descriptor
	}
}

// NewRegistry returns registry populated with provided descriptors.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	var r Registry
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// Register adds descriptor to the registry.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.m.Lock()
	defer r.m.Unlock()
	if r.m.descriptors == nil {
		r.m.descriptors = make(map[string]*Descriptor)
	}
	if _, ok := r.m.descriptors[d.Name]; ok {
		return fault.New(fault.Inconsistent, "register algo", d.Name, "already registered")
	}
	r.m.descriptors[d.Name] = &d
	return nil
}

// MustRegister adds descriptor to the registry and panics on error.
func (r *Registry) MustRegister(descriptors ...Descriptor) {
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			panic(fmt.Sprintf("algo registry: %v", err))
		}
	}
}

// Lookup returns descriptor by template name.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	d, ok := r.m.descriptors[name]
	if !ok {
		return nil, fault.New(fault.NotFound, "lookup algo", name, "unknown template")
	}
	return d, nil
}

// Descriptors returns all descriptors sorted by name.
func (r *Registry) Descriptors() []*Descriptor {
	r.m.RLock()
	defer r.m.RUnlock()
	ds := make([]*Descriptor, 0, len(r.m.descriptors))
	for _, d := range r.m.descriptors {
		ds = append(ds, d)
	}
	sort.Slice(ds, func(i, j int) bool {
		return ds[i].Name < ds[j].Name
	})
	return ds
}
