package cache

import (
	"fmt"
	"testing"
)

func BenchmarkLRU_Get(b *testing.B) {
	c := New[string, int](1000)
	keys := make([]string, 1000)
	for i := range keys {
		keys[i] = fmt.Sprintf("SELECT %d", i)
		c.Set(keys[i], i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(keys[i%len(keys)])
	}
}

func BenchmarkLRU_SetEvict(b *testing.B) {
	c := New[int, int](100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(i, i)
	}
}

func BenchmarkLRU_Parallel(b *testing.B) {
	c := New[int, int](1000)
	for i := 0; i < 1000; i++ {
		c.Set(i, i)
	}
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = c.Get(i % 1000)
			i++
		}
	})
}
