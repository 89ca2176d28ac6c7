package storage

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_Order(t *testing.T) {
	c := NewLRUCache[string, int](3)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	assert.Equal(t, []string{"a", "b", "c"}, c.Keys())

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"b", "c", "a"}, c.Keys())

	// Peek does not promote.
	_, ok = c.Peek("b")
	assert.True(t, ok)
	k, _, ok := c.Oldest()
	assert.True(t, ok)
	assert.Equal(t, "b", k)

	assert.True(t, c.Put("d", 4), "putting past capacity drops the oldest")
	assert.False(t, c.Contains("b"))
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 3, c.Capacity())
}

func TestLRUCache_OverwriteAndRemove(t *testing.T) {
	c := NewLRUCache[int, string](2)
	c.Put(1, "one")
	c.Put(2, "two")
	assert.False(t, c.Put(1, "uno"))
	v, _ := c.Peek(1)
	assert.Equal(t, "uno", v)
	assert.Equal(t, []int{2, 1}, c.Keys())

	assert.True(t, c.Remove(2))
	assert.False(t, c.Remove(2))
	_, ok := c.Get(2)
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, _, ok = c.Oldest()
	assert.False(t, ok)
}

type lruEntry struct {
	key, value int
}

// lruModel is a slice-backed reference ordered from least to most recently used.
type lruModel struct {
	capacity int
	entries  []lruEntry
}

func (m *lruModel) find(key int) int {
	return slices.IndexFunc(m.entries, func(e lruEntry) bool { return e.key == key })
}

func (m *lruModel) touch(i int) {
	e := m.entries[i]
	m.entries = append(slices.Delete(m.entries, i, i+1), e)
}

func (m *lruModel) keys() []int {
	keys := make([]int, 0, len(m.entries))
	for _, e := range m.entries {
		keys = append(keys, e.key)
	}
	return keys
}

func TestLRUCache_Randomized(t *testing.T) {
	for _, capacity := range []int{1, 3, 16} {
		r := rand.New(rand.NewSource(int64(capacity)))
		c := NewLRUCache[int, int](capacity)
		model := &lruModel{capacity: capacity}
		keySpace := capacity * 3

		for iter := 0; iter < 5000; iter++ {
			key := r.Intn(keySpace)
			i := model.find(key)
			switch r.Intn(4) {
			case 0:
				v, ok := c.Get(key)
				assert.Equal(t, i >= 0, ok, "iter %d get %d", iter, key)
				if i >= 0 {
					assert.Equal(t, model.entries[i].value, v, "iter %d", iter)
					model.touch(i)
				}
			case 1:
				_, ok := c.Peek(key)
				assert.Equal(t, i >= 0, ok, "iter %d peek %d", iter, key)
			case 2:
				value := r.Int()
				evicted := c.Put(key, value)
				if i >= 0 {
					model.entries[i].value = value
					model.touch(i)
				} else {
					model.entries = append(model.entries, lruEntry{key, value})
				}
				wantEvict := len(model.entries) > capacity
				if wantEvict {
					model.entries = model.entries[1:]
				}
				assert.Equal(t, wantEvict, evicted, "iter %d put %d", iter, key)
			case 3:
				assert.Equal(t, i >= 0, c.Remove(key), "iter %d remove %d", iter, key)
				if i >= 0 {
					model.entries = slices.Delete(model.entries, i, i+1)
				}
			}
			// The resident set is always the capacity most recently touched keys, in recency order.
			if !assert.Equal(t, model.keys(), c.Keys(), "capacity %d iter %d", capacity, iter) {
				return
			}
		}
	}
}
