// Package mutable provides deferred reversible mutations of running
// components.
//
// A mutation is created on the caller side and applied by the goroutine
// that owns the component, at the point where the component is safe to
// change. Every mutation carries its undo, so a batch that fails halfway
// is rolled back in reverse order.
package mutable

import (
	"crypto/rand"
)

// zero value for context is immutable.
var immutable = Context{}

type (
	// Context identifies a mutable component.
	Context [16]byte

	// Kind of mutation. Static mutations require the component to be
	// reinitialized.
	Kind uint8

	// Mutation is a reversible change associated with a certain mutable
	// context.
	Mutation struct {
		Context
		Kind
		apply ApplyFunc
		undo  UndoFunc
	}

	// Mutations is a set of mutations mapped to their contexts.
	Mutations map[Context][]Mutation

	// ApplyFunc mutates the object.
	ApplyFunc func() error

	// UndoFunc reverts successfully applied mutation.
	UndoFunc func()
)

// Mutation kinds.
const (
	Dynamic Kind = iota
	Static
)

func (k Kind) String() string {
	if k == Static {
		return "static"
	}
	return "dynamic"
}

// Mutable returns new mutable context.
func Mutable() Context {
	var id [16]byte
	rand.Read(id[:])
	return id
}

// Mutate associates provided apply and undo functions with context. Undo
// can be nil if mutation cannot be reverted.
func (c Context) Mutate(k Kind, apply ApplyFunc, undo UndoFunc) Mutation {
	if c == immutable {
		panic("mutate immutable")
	}
	return Mutation{
		Context: c,
		Kind:    k,
		apply:   apply,
		undo:    undo,
	}
}

// Apply mutation.
func (m Mutation) Apply() error {
	return m.apply()
}

// Undo mutation.
func (m Mutation) Undo() {
	if m.undo != nil {
		m.undo()
	}
}

// Put mutation to the set of mutations.
func (ms Mutations) Put(m Mutation) Mutations {
	if m.Context == immutable {
		return ms
	}
	if ms == nil {
		return Mutations{m.Context: {m}}
	}
	ms[m.Context] = append(ms[m.Context], m)
	return ms
}

// Has returns true if set contains mutations for context.
func (ms Mutations) Has(id Context) bool {
	_, ok := ms[id]
	return ok
}

// Kind returns Static if any of mutations of context is static.
func (ms Mutations) Kind(id Context) Kind {
	for _, m := range ms[id] {
		if m.Kind == Static {
			return Static
		}
	}
	return Dynamic
}

// ApplyTo consumes mutations defined for context in order. If any of them
// fails, the applied ones are undone in reverse order and the error is
// returned. Returned undo function reverts the whole batch.
func (ms Mutations) ApplyTo(id Context) (UndoFunc, error) {
	if ms == nil || id == immutable {
		return func() {}, nil
	}
	batch, ok := ms[id]
	if !ok {
		return func() {}, nil
	}
	delete(ms, id)
	undo := func(applied []Mutation) UndoFunc {
		return func() {
			for i := len(applied) - 1; i >= 0; i-- {
				applied[i].Undo()
			}
		}
	}
	for i, m := range batch {
		if err := m.Apply(); err != nil {
			undo(batch[:i])()
			return func() {}, err
		}
	}
	return undo(batch), nil
}

// Discard drops mutations for provided context without applying them.
func (ms Mutations) Discard(id Context) {
	delete(ms, id)
}
