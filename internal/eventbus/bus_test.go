package eventbus

import "testing"

func TestBus_EmitReachesAllListeners(t *testing.T) {
	b := New[int]()

	var gotA, gotB int
	b.Subscribe(func(v int) { gotA = v })
	b.Subscribe(func(v int) { gotB = v })

	b.Emit(7)

	if gotA != 7 || gotB != 7 {
		t.Fatalf("expected both listeners to observe 7, got %d and %d", gotA, gotB)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New[string]()

	var calls int
	unsubscribe := b.Subscribe(func(string) { calls++ })
	b.Emit("x")
	unsubscribe()
	b.Emit("y")

	if calls != 1 {
		t.Fatalf("expected exactly 1 call before unsubscribe, got %d", calls)
	}
}
