package petalsonic

import "testing"

func TestUnboundedQueuePushTryPopFIFOOrder(t *testing.T) {
	q := newUnboundedQueue[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.TryPop()
		if !ok || got != want {
			t.Fatalf("TryPop() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("expected TryPop to report empty after draining")
	}
}

func TestUnboundedQueueDrainAllReturnsEverythingAndClears(t *testing.T) {
	q := newUnboundedQueue[string]()
	q.Push("a")
	q.Push("b")

	got := q.DrainAll()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("DrainAll() = %v, want [a b]", got)
	}
	if more := q.DrainAll(); more != nil {
		t.Fatalf("second DrainAll() = %v, want nil", more)
	}
}

func TestUnboundedQueueNeverBlocksOnPush(t *testing.T) {
	q := newUnboundedQueue[int]()
	for i := 0; i < 10000; i++ {
		q.Push(i)
	}
	drained := q.DrainAll()
	if len(drained) != 10000 {
		t.Fatalf("drained %d items, want 10000", len(drained))
	}
}
