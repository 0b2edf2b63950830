package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(maxSize int) (*MemoryCache[string, int], *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache[string, int]("test", time.Minute, maxSize)
	mc.now = c.now
	return mc, c
}

func TestMemoryCache_Expiry(t *testing.T) {
	mc, clk := newTestCache(0)

	mc.Set("a", 1)
	v, ok := mc.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clk.t = clk.t.Add(2 * time.Minute)
	_, ok = mc.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, mc.Size())
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	mc, clk := newTestCache(2)

	mc.Set("a", 1)
	clk.t = clk.t.Add(time.Second)
	mc.Set("b", 2)
	clk.t = clk.t.Add(time.Second)
	mc.Set("c", 3)

	_, ok := mc.Get("a")
	assert.False(t, ok)
	_, ok = mc.Get("b")
	assert.True(t, ok)
	_, ok = mc.Get("c")
	assert.True(t, ok)

	// overwriting an existing key does not evict
	mc.Set("c", 30)
	assert.Equal(t, 2, mc.Size())
}

func TestMemoryCache_Delete(t *testing.T) {
	mc, _ := newTestCache(0)

	mc.Set("a", 1)
	mc.Set("b", 2)
	mc.Delete("b")
	assert.Equal(t, 1, mc.Size())

	_, ok := mc.Get("b")
	assert.False(t, ok)
}
