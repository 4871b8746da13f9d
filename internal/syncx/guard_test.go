package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard(42)

	if got := g.Get(); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}
	g.Set(100)
	if got := g.Get(); got != 100 {
		t.Errorf("Get() after Set = %d, want 100", got)
	}
}

func TestGuardView(t *testing.T) {
	g := NewGuard([]string{"a.mp4", "b.mp4"})

	if n := View(g, func(v []string) int { return len(v) }); n != 2 {
		t.Errorf("View() = %d, want 2", n)
	}
}

func TestGuardConcurrentWrites(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Write(func(v *int) { *v++ })
		}()
	}
	wg.Wait()

	if got := g.Get(); got != 100 {
		t.Errorf("Get() = %d, want 100", got)
	}
}

func TestHistoryKeepsNewest(t *testing.T) {
	h := NewHistory[int](3)
	for i := 1; i <= 5; i++ {
		h.Push(i)
	}

	got := h.Snapshot()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot() = %v, want %v", got, want)
		}
	}
	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}
}

func TestHistorySnapshotIsCopy(t *testing.T) {
	h := NewHistory[string](2)
	h.Push("a.mp4")
	snap := h.Snapshot()
	snap[0] = "changed"

	if h.Snapshot()[0] != "a.mp4" {
		t.Error("modifying a snapshot changed the history")
	}
}

func TestHistoryMinimumCapacity(t *testing.T) {
	h := NewHistory[int](0)
	h.Push(1)
	h.Push(2)
	if got := h.Snapshot(); len(got) != 1 || got[0] != 2 {
		t.Errorf("Snapshot() = %v, want [2]", got)
	}
}
