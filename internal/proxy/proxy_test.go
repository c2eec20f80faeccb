package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertGetRoundTrip(t *testing.T) {
	a := NewArena[string]()
	h := a.Insert("first")
	v, ok := a.Get(h)
	assert.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestRemoveInvalidatesHandle(t *testing.T) {
	a := NewArena[string]()
	h := a.Insert("x")
	assert.True(t, a.Remove(h))

	_, ok := a.Get(h)
	assert.False(t, ok)
}

func TestRemoveTwiceIsNoop(t *testing.T) {
	a := NewArena[string]()
	h := a.Insert("x")
	assert.True(t, a.Remove(h))
	assert.False(t, a.Remove(h))
}

func TestSlotReuseBumpsGeneration(t *testing.T) {
	a := NewArena[string]()
	h1 := a.Insert("first")
	a.Remove(h1)

	h2 := a.Insert("second")
	assert.Equal(t, h1.Index, h2.Index)
	assert.NotEqual(t, h1.Generation, h2.Generation)

	_, ok := a.Get(h1)
	assert.False(t, ok, "stale handle from before reuse must not resolve")

	v, ok := a.Get(h2)
	assert.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestLenTracksLiveEntries(t *testing.T) {
	a := NewArena[int]()
	h1 := a.Insert(1)
	a.Insert(2)
	assert.Equal(t, 2, a.Len())

	a.Remove(h1)
	assert.Equal(t, 1, a.Len())
}

func TestHandlesListsLiveOnly(t *testing.T) {
	a := NewArena[int]()
	h1 := a.Insert(1)
	h2 := a.Insert(2)
	a.Remove(h1)

	handles := a.Handles()
	assert.Len(t, handles, 1)
	assert.Equal(t, h2, handles[0])
}

func TestSetUpdatesInPlace(t *testing.T) {
	a := NewArena[int]()
	h := a.Insert(1)
	assert.True(t, a.Set(h, 42))
	v, _ := a.Get(h)
	assert.Equal(t, 42, v)
}

func TestGetUnknownIndexIsNotOk(t *testing.T) {
	a := NewArena[int]()
	_, ok := a.Get(Handle{Index: 7, Generation: 0})
	assert.False(t, ok)
}
