package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaInsertGet(t *testing.T) {
	var a Arena[string]
	h := a.Insert("mesh")
	require.False(t, h.IsZero())

	v, ok := a.Get(h)
	require.True(t, ok)
	assert.Equal(t, "mesh", v)
	assert.Equal(t, 1, a.Len())
}

func TestArenaStaleHandleNeverResolves(t *testing.T) {
	var a Arena[int]
	h := a.Insert(7)
	require.True(t, a.Remove(h))

	_, ok := a.Get(h)
	assert.False(t, ok)
	assert.False(t, a.Remove(h))

	// The slot is reused with a bumped generation; the old handle stays
	// dead.
	h2 := a.Insert(9)
	_, ok = a.Get(h)
	assert.False(t, ok)
	v, ok := a.Get(h2)
	require.True(t, ok)
	assert.Equal(t, 9, v)
}

func TestArenaZeroHandle(t *testing.T) {
	var a Arena[int]
	a.Insert(1)
	_, ok := a.Get(Handle{})
	assert.False(t, ok)
	assert.True(t, Handle{}.IsZero())
}

func TestArenaEach(t *testing.T) {
	var a Arena[int]
	h1 := a.Insert(1)
	a.Insert(2)
	a.Insert(3)
	a.Remove(h1)

	sum := 0
	a.Each(func(_ Handle, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 5, sum)
}

func TestErrorKinds(t *testing.T) {
	err := MissingInputf("field %s absent", "XYZ")
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.NotErrorIs(t, err, ErrInvalidPipeline)
	assert.Contains(t, err.Error(), "XYZ")

	cause := InvalidPipelinef("bad shape")
	wrapped := BackendFailure(cause, "structure build")
	assert.ErrorIs(t, wrapped, ErrBackendFailure)
	assert.ErrorIs(t, wrapped, ErrInvalidPipeline)
}
