// Package algos registers the built-in algo templates.
package algos

import (
	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/algos/delay"
	"pipelined.dev/audiochain/algos/gain"
	"pipelined.dev/audiochain/algos/generator"
	"pipelined.dev/audiochain/algos/mixer"
	"pipelined.dev/audiochain/algos/repeat"
	"pipelined.dev/audiochain/algos/rms"
)

// Descriptors returns descriptors of all built-in templates.
func Descriptors() []algo.Descriptor {
	return []algo.Descriptor{
		delay.Descriptor(),
		gain.Descriptor(),
		generator.Descriptor(),
		mixer.Descriptor(),
		repeat.Descriptor(),
		rms.Descriptor(),
	}
}

// Register adds built-in templates to the registry.
func Register(r *algo.Registry) error {
	for _, d := range Descriptors() {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns a new registry with built-in templates.
func Registry() *algo.Registry {
	var r algo.Registry
	r.MustRegister(Descriptors()...)
	return &r
}
