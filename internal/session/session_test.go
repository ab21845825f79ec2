package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionGetSet(t *testing.T) {
	s := New()

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("k", []int64{1, 2})
	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []int64{1, 2}, v)

	s.Set("k", "replaced")
	v, _ = s.Get("k")
	assert.Equal(t, "replaced", v)
	assert.Equal(t, 1, s.Len())
}

func TestSessionConcurrentAccess(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%4))
			s.Set(key, n)
			s.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, s.Len())
}
