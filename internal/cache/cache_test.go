package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSetDelete(t *testing.T) {
	c := New(10)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "value", time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
	assert.True(t, c.Has("a"))

	c.Delete("a")
	assert.False(t, c.Has("a"))

	// Deleting an absent key is a no-op.
	c.Delete("a")
}

func TestExpiryIsLazy(t *testing.T) {
	c := New(10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)

	now = now.Add(30 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(31 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	// The expired entry is gone after the read.
	assert.Equal(t, 0, c.Len())
}

func TestBoundEvictsExpiredFirst(t *testing.T) {
	c := New(3)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("old", 1, time.Second)
	c.Set("b", 2, time.Hour)
	c.Set("c", 3, time.Hour)

	now = now.Add(2 * time.Second)
	c.Set("d", 4, time.Hour)

	assert.False(t, c.Has("old"))
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
	assert.True(t, c.Has("d"))
}

func TestBoundEvictsClosestToExpiry(t *testing.T) {
	c := New(3)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("soon", 1, time.Minute)
	c.Set("later", 2, time.Hour)
	c.Set("latest", 3, 2*time.Hour)

	c.Set("new", 4, time.Hour)

	assert.False(t, c.Has("soon"))
	assert.True(t, c.Has("later"))
	assert.True(t, c.Has("latest"))
	assert.True(t, c.Has("new"))
	assert.Equal(t, 3, c.Len())
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c := New(2)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Set("a", 10, time.Minute)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	assert.True(t, c.Has("b"))
}

func TestClear(t *testing.T) {
	c := New(10)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, time.Minute)
	}
	assert.Equal(t, 5, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
