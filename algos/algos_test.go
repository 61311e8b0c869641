package algos_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/audiochain/algo"
	"pipelined.dev/audiochain/algos"
	"pipelined.dev/audiochain/fault"
)

func TestRegistry(t *testing.T) {
	r := algos.Registry()
	var names []string
	for _, d := range r.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"delay", "gain", "generator", "mixer", "repeat", "rms"}, names)

	err := algos.Register(r)
	assert.True(t, errors.Is(err, fault.ErrInconsistent))

	assert.NoError(t, algos.Register(&algo.Registry{}))
}
