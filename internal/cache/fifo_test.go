package cache

import (
	"sync"
	"testing"
)

func TestFIFO_Evicts(t *testing.T) {
	c := NewFIFO[int, string](2)
	c.Put(1, "a")
	c.Put(2, "b")
	c.Put(3, "c")

	if _, ok := c.Get(1); ok {
		t.Error("oldest entry was not evicted")
	}
	for k, want := range map[int]string{2: "b", 3: "c"} {
		if got, ok := c.Get(k); !ok || got != want {
			t.Errorf("Get(%d) = %q, %v; want %q", k, got, ok, want)
		}
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestFIFO_PutKeepsExisting(t *testing.T) {
	c := NewFIFO[string, int](4)
	c.Put("x", 1)
	c.Put("x", 2)
	if got, _ := c.Get("x"); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
}

func TestFIFO_Concurrent(t *testing.T) {
	c := NewFIFO[int, int](8)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Put(g*100+i, i)
				c.Get(i)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 8 {
		t.Errorf("Len = %d exceeds capacity", c.Len())
	}
}
