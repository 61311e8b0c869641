package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/audiochain/internal/arena"
)

func TestArena(t *testing.T) {
	var a arena.Arena[string]
	h1 := a.Insert("a")
	h2 := a.Insert("b")
	assert.Equal(t, 2, a.Len())

	v, ok := a.Get(h1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	assert.True(t, a.Remove(h1))
	assert.False(t, a.Remove(h1))
	_, ok = a.Get(h1)
	assert.False(t, ok)

	// slot is reused, old handle stays stale
	h3 := a.Insert("c")
	assert.Equal(t, h1.Index(), h3.Index())
	assert.NotEqual(t, h1, h3)
	_, ok = a.Get(h1)
	assert.False(t, ok)

	var values []string
	a.Each(func(_ arena.Handle, v string) bool {
		values = append(values, v)
		return true
	})
	assert.Equal(t, []string{"c", "b"}, values)

	_, ok = a.Get(arena.Handle{})
	assert.False(t, ok)
	assert.True(t, arena.Handle{}.IsZero())
	assert.False(t, h2.IsZero())
}
